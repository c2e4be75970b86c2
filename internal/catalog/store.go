// Package catalog persists the product catalog and answers the storefront's
// two domain questions: which products relate to this one, and is an address
// inside the delivery radius. Backed by Postgres via the pgx stdlib driver,
// with an in-memory mode when no database is configured or reachable.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"hearthside/storefront/internal/breaker"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Category      string    `json:"category"`
	FuelType      string    `json:"fuel_type,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	PriceCents    int64     `json:"price_cents"`
	HeatOutputBTU int       `json:"heat_output_btu,omitempty"`
	Description   string    `json:"description,omitempty"`
	VideoID       string    `json:"video_id,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Patch carries a partial update; nil fields are left unchanged.
type Patch struct {
	Name          *string
	Slug          *string
	Category      *string
	FuelType      *string
	Tags          *[]string
	PriceCents    *int64
	HeatOutputBTU *int
	Description   *string
	VideoID       *string
	Active        *bool
}

type Store struct {
	db      *sql.DB
	brk     *breaker.Breaker
	timeout time.Duration
	cache   *listCache

	memMu sync.RWMutex
	mem   map[string]Product
}

// Open connects to Postgres and bootstraps the schema. On any failure the
// caller should fall back to NewMemory.
func Open(ctx context.Context, dsn string, timeout time.Duration, brk *breaker.Breaker) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("no database dsn configured")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:      db,
		brk:     brk,
		timeout: timeout,
		cache:   newListCache(256, 45*time.Second),
	}
	if err := brk.Do(ctx, timeout, db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema setup failed: %w", err)
	}
	return s, nil
}

// NewMemory creates a store backed by a process-local map. Used when the
// database is unavailable and throughout the test suite.
func NewMemory(brk *breaker.Breaker, timeout time.Duration) *Store {
	return &Store{
		brk:     brk,
		timeout: timeout,
		cache:   newListCache(256, 45*time.Second),
		mem:     make(map[string]Product),
	}
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL,
	category TEXT NOT NULL,
	fuel_type TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '',
	price_cents BIGINT NOT NULL,
	heat_output_btu INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	video_id TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS products_category_idx ON products (category);`
	return s.brk.Do(ctx, s.timeout, func(cctx context.Context) error {
		_, err := s.db.ExecContext(cctx, ddl)
		return err
	})
}

func (s *Store) Create(ctx context.Context, p Product) (Product, error) {
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Slug == "" {
		p.Slug = slugify(p.Name)
	}

	if s.db == nil {
		s.memMu.Lock()
		s.mem[p.ID] = p
		s.memMu.Unlock()
		s.cache.purge()
		return p, nil
	}

	err := s.brk.Do(ctx, s.timeout, func(cctx context.Context) error {
		_, err := s.db.ExecContext(cctx, `
INSERT INTO products (id, name, slug, category, fuel_type, tags, price_cents, heat_output_btu, description, video_id, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			p.ID, p.Name, p.Slug, p.Category, p.FuelType, joinTags(p.Tags),
			p.PriceCents, p.HeatOutputBTU, p.Description, p.VideoID, p.Active,
			p.CreatedAt, p.UpdatedAt)
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.cache.purge()
	return p, nil
}

func (s *Store) Get(ctx context.Context, id string) (Product, error) {
	if s.db == nil {
		s.memMu.RLock()
		p, ok := s.mem[id]
		s.memMu.RUnlock()
		if !ok {
			return Product{}, ErrNotFound
		}
		return p, nil
	}

	var p Product
	var tags string
	err := s.brk.Do(ctx, s.timeout, func(cctx context.Context) error {
		row := s.db.QueryRowContext(cctx, `
SELECT id, name, slug, category, fuel_type, tags, price_cents, heat_output_btu, description, video_id, active, created_at, updated_at
FROM products WHERE id = $1`, id)
		return row.Scan(&p.ID, &p.Name, &p.Slug, &p.Category, &p.FuelType, &tags,
			&p.PriceCents, &p.HeatOutputBTU, &p.Description, &p.VideoID, &p.Active,
			&p.CreatedAt, &p.UpdatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, err
	}
	p.Tags = splitTags(tags)
	return p, nil
}

func (s *Store) Update(ctx context.Context, id string, patch Patch) (Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	applyPatch(&p, patch)
	p.UpdatedAt = time.Now().UTC()

	if s.db == nil {
		s.memMu.Lock()
		s.mem[id] = p
		s.memMu.Unlock()
		s.cache.purge()
		return p, nil
	}

	err = s.brk.Do(ctx, s.timeout, func(cctx context.Context) error {
		res, err := s.db.ExecContext(cctx, `
UPDATE products SET name=$2, slug=$3, category=$4, fuel_type=$5, tags=$6, price_cents=$7,
	heat_output_btu=$8, description=$9, video_id=$10, active=$11, updated_at=$12
WHERE id=$1`,
			p.ID, p.Name, p.Slug, p.Category, p.FuelType, joinTags(p.Tags),
			p.PriceCents, p.HeatOutputBTU, p.Description, p.VideoID, p.Active, p.UpdatedAt)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.cache.purge()
	return p, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		s.memMu.Lock()
		_, ok := s.mem[id]
		delete(s.mem, id)
		s.memMu.Unlock()
		if !ok {
			return ErrNotFound
		}
		s.cache.purge()
		return nil
	}

	err := s.brk.Do(ctx, s.timeout, func(cctx context.Context) error {
		res, err := s.db.ExecContext(cctx, `DELETE FROM products WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.purge()
	return nil
}

// List returns active products in id order with keyset pagination. Results
// are served from a short-lived cache; mutations purge it.
func (s *Store) List(ctx context.Context, limit int, cursor string) ([]Product, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	cacheKey := fmt.Sprintf("%d:%s", limit, cursor)
	if items, next, ok := s.cache.get(cacheKey); ok {
		return items, next, nil
	}

	var items []Product
	if s.db == nil {
		items = s.memList(cursor, limit+1)
	} else {
		err := s.brk.Do(ctx, s.timeout, func(cctx context.Context) error {
			rows, err := s.db.QueryContext(cctx, `
SELECT id, name, slug, category, fuel_type, tags, price_cents, heat_output_btu, description, video_id, active, created_at, updated_at
FROM products WHERE active AND id > $1 ORDER BY id LIMIT $2`, cursor, limit+1)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var p Product
				var tags string
				if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Category, &p.FuelType, &tags,
					&p.PriceCents, &p.HeatOutputBTU, &p.Description, &p.VideoID, &p.Active,
					&p.CreatedAt, &p.UpdatedAt); err != nil {
					return err
				}
				p.Tags = splitTags(tags)
				items = append(items, p)
			}
			return rows.Err()
		})
		if err != nil {
			return nil, "", err
		}
	}

	next := ""
	if len(items) > limit {
		items = items[:limit]
		next = items[limit-1].ID
	}
	s.cache.put(cacheKey, items, next)
	return items, next, nil
}

func (s *Store) memList(cursor string, n int) []Product {
	s.memMu.RLock()
	defer s.memMu.RUnlock()
	items := make([]Product, 0, len(s.mem))
	for _, p := range s.mem {
		if p.Active && p.ID > cursor {
			items = append(items, p)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	if len(items) > n {
		items = items[:n]
	}
	return items
}

// allActive is the candidate pool for relevance scoring, capped to keep the
// scan bounded.
func (s *Store) allActive(ctx context.Context) ([]Product, error) {
	const poolCap = 500
	if s.db == nil {
		return s.memList("", poolCap), nil
	}
	var items []Product
	err := s.brk.Do(ctx, s.timeout, func(cctx context.Context) error {
		rows, err := s.db.QueryContext(cctx, `
SELECT id, name, slug, category, fuel_type, tags, price_cents, heat_output_btu, description, video_id, active, created_at, updated_at
FROM products WHERE active ORDER BY id LIMIT $1`, poolCap)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p Product
			var tags string
			if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Category, &p.FuelType, &tags,
				&p.PriceCents, &p.HeatOutputBTU, &p.Description, &p.VideoID, &p.Active,
				&p.CreatedAt, &p.UpdatedAt); err != nil {
				return err
			}
			p.Tags = splitTags(tags)
			items = append(items, p)
		}
		return rows.Err()
	})
	return items, err
}

func applyPatch(p *Product, patch Patch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Slug != nil {
		p.Slug = *patch.Slug
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.FuelType != nil {
		p.FuelType = *patch.FuelType
	}
	if patch.Tags != nil {
		p.Tags = *patch.Tags
	}
	if patch.PriceCents != nil {
		p.PriceCents = *patch.PriceCents
	}
	if patch.HeatOutputBTU != nil {
		p.HeatOutputBTU = *patch.HeatOutputBTU
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.VideoID != nil {
		p.VideoID = *patch.VideoID
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

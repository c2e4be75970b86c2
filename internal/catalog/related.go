package catalog

import (
	"context"
	"sort"
)

// Related returns up to n products ranked by relevance to the given product.
// Scoring favors same category, shared tags, matching fuel type and nearby
// price; products with a zero score are excluded.
func (s *Store) Related(ctx context.Context, id string, n int) ([]Product, error) {
	if n <= 0 || n > 20 {
		n = 4
	}
	base, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pool, err := s.allActive(ctx)
	if err != nil {
		return nil, err
	}

	type scored struct {
		p     Product
		score int
	}
	ranked := make([]scored, 0, len(pool))
	for _, cand := range pool {
		if cand.ID == base.ID {
			continue
		}
		sc := relevance(base, cand)
		if sc > 0 {
			ranked = append(ranked, scored{cand, sc})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].p.ID < ranked[j].p.ID
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]Product, len(ranked))
	for i, r := range ranked {
		out[i] = r.p
	}
	return out, nil
}

func relevance(base, cand Product) int {
	score := 0
	if cand.Category == base.Category {
		score += 4
	}
	if base.FuelType != "" && cand.FuelType == base.FuelType {
		score += 2
	}
	score += 2 * sharedTags(base.Tags, cand.Tags)
	if base.PriceCents > 0 && cand.PriceCents > 0 {
		diff := base.PriceCents - cand.PriceCents
		if diff < 0 {
			diff = -diff
		}
		// within 25% of the base price counts as comparable
		if diff*4 <= base.PriceCents {
			score++
		}
	}
	return score
}

func sharedTags(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

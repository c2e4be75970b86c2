package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerCfg struct {
	Listen         string   `yaml:"listen"`
	Env            string   `yaml:"env"` // production | development
	ReadTimeoutMs  int      `yaml:"read_timeout_ms"`
	WriteTimeoutMs int      `yaml:"write_timeout_ms"`
	PublicOrigins  []string `yaml:"public_origins"`
	TrustedProxies []string `yaml:"trusted_proxies"`

	TrustedProxyCIDRs []*net.IPNet `yaml:"-"`
}

type CookieCfg struct {
	Name     string `yaml:"name"`
	Domain   string `yaml:"domain"`
	Path     string `yaml:"path"`
	SameSite string `yaml:"same_site"` // Lax | None
	Secure   bool   `yaml:"secure"`
	HTTPOnly bool   `yaml:"http_only"`
}

type TokenCfg struct {
	Alg        string            `yaml:"alg"`
	Keys       map[string]string `yaml:"keys"` // kid -> base64url secret
	CurrentKID string            `yaml:"current_kid"`
	Issuer     string            `yaml:"issuer"`
	SkewSec    int               `yaml:"skew_sec"`
	TTLSec     int               `yaml:"ttl_sec"`
}

type AdminCfg struct {
	Email          string `yaml:"email"`
	PasswordBcrypt string `yaml:"password_bcrypt"`
}

type RatePolicyCfg struct {
	MaxRequests int `yaml:"max_requests"`
	WindowMs    int `yaml:"window_ms"`
}

type LimitsCfg struct {
	Public       RatePolicyCfg `yaml:"public"`
	Admin        RatePolicyCfg `yaml:"admin"`
	Login        RatePolicyCfg `yaml:"login"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	MaxStringLen int           `yaml:"max_string_len"`
}

type RateStoreCfg struct {
	Backend     string `yaml:"backend"` // memory | redis
	RedisAddr   string `yaml:"redis_addr"`
	KeyCapacity int    `yaml:"key_capacity"`
}

type DatabaseCfg struct {
	DSN       string `yaml:"dsn"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type DeliveryCfg struct {
	OriginLat float64 `yaml:"origin_lat"`
	OriginLng float64 `yaml:"origin_lng"`
	RadiusKm  float64 `yaml:"radius_km"`
}

type LoggingCfg struct {
	Level string `yaml:"level"` // info|debug
}

type Config struct {
	Server    ServerCfg    `yaml:"server"`
	Cookie    CookieCfg    `yaml:"cookie"`
	Token     TokenCfg     `yaml:"token"`
	Admin     AdminCfg     `yaml:"admin"`
	Limits    LimitsCfg    `yaml:"limits"`
	RateStore RateStoreCfg `yaml:"rate_store"`
	Database  DatabaseCfg  `yaml:"database"`
	Delivery  DeliveryCfg  `yaml:"delivery"`
	Logging   LoggingCfg   `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	// defaults
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "development"
	}
	if cfg.Server.ReadTimeoutMs == 0 {
		cfg.Server.ReadTimeoutMs = 5000
	}
	if cfg.Server.WriteTimeoutMs == 0 {
		cfg.Server.WriteTimeoutMs = 10000
	}
	if cfg.Cookie.Name == "" {
		cfg.Cookie.Name = "hs_session"
	}
	if cfg.Cookie.Path == "" {
		cfg.Cookie.Path = "/"
	}
	if cfg.Cookie.SameSite == "" {
		cfg.Cookie.SameSite = "Lax"
	}
	if cfg.Token.Alg == "" {
		cfg.Token.Alg = "HS256"
	}
	if cfg.Token.Issuer == "" {
		cfg.Token.Issuer = "hearthside"
	}
	if cfg.Token.SkewSec == 0 {
		cfg.Token.SkewSec = 30
	}
	if cfg.Token.TTLSec == 0 {
		cfg.Token.TTLSec = 24 * 3600
	}
	if cfg.Limits.Public.MaxRequests == 0 {
		cfg.Limits.Public = RatePolicyCfg{MaxRequests: 120, WindowMs: 60_000}
	}
	if cfg.Limits.Admin.MaxRequests == 0 {
		cfg.Limits.Admin = RatePolicyCfg{MaxRequests: 60, WindowMs: 60_000}
	}
	if cfg.Limits.Login.MaxRequests == 0 {
		cfg.Limits.Login = RatePolicyCfg{MaxRequests: 5, WindowMs: 60_000}
	}
	if cfg.Limits.MaxBodyBytes == 0 {
		cfg.Limits.MaxBodyBytes = 64 * 1024
	}
	if cfg.Limits.MaxStringLen == 0 {
		cfg.Limits.MaxStringLen = 2000
	}
	if cfg.RateStore.Backend == "" {
		cfg.RateStore.Backend = "memory"
	}
	if cfg.RateStore.KeyCapacity == 0 {
		cfg.RateStore.KeyCapacity = 10_000
	}
	if cfg.Database.TimeoutMs == 0 {
		cfg.Database.TimeoutMs = 3000
	}
	if cfg.Delivery.RadiusKm == 0 {
		cfg.Delivery.RadiusKm = 80
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	for _, cidr := range cfg.Server.TrustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", cidr, err)
		}
		cfg.Server.TrustedProxyCIDRs = append(cfg.Server.TrustedProxyCIDRs, ipNet)
	}
	return &cfg, nil
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Token.TTLSec) * time.Second
}

func (c *Config) DatabaseTimeout() time.Duration {
	return time.Duration(c.Database.TimeoutMs) * time.Millisecond
}

func (c *Config) Production() bool {
	return c.Server.Env == "production"
}

func (p RatePolicyCfg) Window() time.Duration {
	return time.Duration(p.WindowMs) * time.Millisecond
}

func (c *Config) Validate() error {
	switch c.Server.Env {
	case "production", "development":
	default:
		return errors.New("server.env must be 'production' or 'development'")
	}
	// Signing keys are mandatory. There is deliberately no generated or
	// hardcoded fallback secret: a forgeable shared default would let anyone
	// mint admin sessions.
	if c.Token.CurrentKID == "" || len(c.Token.Keys) == 0 {
		return errors.New("token.keys and token.current_kid required")
	}
	if _, ok := c.Token.Keys[c.Token.CurrentKID]; !ok {
		return errors.New("token.current_kid not found in token.keys")
	}
	switch strings.ToLower(c.Cookie.SameSite) {
	case "lax", "none":
	default:
		return errors.New("cookie.same_site must be 'Lax' or 'None'")
	}
	if c.Admin.Email == "" || c.Admin.PasswordBcrypt == "" {
		return errors.New("admin.email and admin.password_bcrypt required")
	}
	for _, p := range []RatePolicyCfg{c.Limits.Public, c.Limits.Admin, c.Limits.Login} {
		if p.MaxRequests <= 0 || p.WindowMs <= 0 {
			return errors.New("rate limit policies require positive max_requests and window_ms")
		}
	}
	if c.Limits.MaxBodyBytes <= 0 || c.Limits.MaxStringLen <= 0 {
		return errors.New("limits.max_body_bytes and limits.max_string_len must be positive")
	}
	switch c.RateStore.Backend {
	case "memory":
	case "redis":
		if c.RateStore.RedisAddr == "" {
			return errors.New("rate_store.redis_addr required when backend is 'redis'")
		}
	default:
		return errors.New("rate_store.backend must be 'memory' or 'redis'")
	}
	if c.Delivery.RadiusKm < 0 {
		return errors.New("delivery.radius_km must be >= 0")
	}
	if c.Production() && len(c.Server.PublicOrigins) == 0 {
		return errors.New("server.public_origins required in production")
	}
	return nil
}

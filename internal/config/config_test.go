package config

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validYAML = `
server:
  env: "development"
token:
  keys:
    "k1": "c3VwZXJzZWNyZXRrZXl0aGF0aXNsb25n"
  current_kid: "k1"
admin:
  email: "owner@hearthside.example"
  password_bcrypt: "$2a$10$abcdefghijklmnopqrstuv"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func load(t *testing.T, body string) *Config {
	t.Helper()
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := load(t, validYAML)
	if cfg.Server.Listen != ":8080" {
		t.Fatalf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Cookie.Name != "hs_session" {
		t.Fatalf("cookie name = %q", cfg.Cookie.Name)
	}
	if cfg.Limits.Public.MaxRequests != 120 || cfg.Limits.Login.MaxRequests != 5 {
		t.Fatalf("rate defaults = %+v", cfg.Limits)
	}
	if cfg.Limits.MaxBodyBytes != 64*1024 || cfg.Limits.MaxStringLen != 2000 {
		t.Fatalf("size defaults = %+v", cfg.Limits)
	}
	if cfg.RateStore.Backend != "memory" || cfg.RateStore.KeyCapacity != 10_000 {
		t.Fatalf("rate store defaults = %+v", cfg.RateStore)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadParsesTrustedProxies(t *testing.T) {
	cfg := load(t, `
server:
  env: "development"
  trusted_proxies: ["10.0.0.0/8", "192.168.1.0/24"]
token:
  keys:
    "k1": "c3VwZXJzZWNyZXRrZXl0aGF0aXNsb25n"
  current_kid: "k1"
admin:
  email: "owner@hearthside.example"
  password_bcrypt: "$2a$10$abcdefghijklmnopqrstuv"
`)
	if len(cfg.Server.TrustedProxyCIDRs) != 2 {
		t.Fatalf("parsed %d CIDRs", len(cfg.Server.TrustedProxyCIDRs))
	}
	if !cfg.Server.TrustedProxyCIDRs[0].Contains(mustIP("10.1.2.3")) {
		t.Fatal("10.0.0.0/8 should contain 10.1.2.3")
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			"missing signing keys",
			func(c *Config) { c.Token.Keys = nil; c.Token.CurrentKID = "" },
			"token.keys",
		},
		{
			"unknown current kid",
			func(c *Config) { c.Token.CurrentKID = "nope" },
			"current_kid",
		},
		{
			"missing admin credentials",
			func(c *Config) { c.Admin = AdminCfg{} },
			"admin.email",
		},
		{
			"bad env",
			func(c *Config) { c.Server.Env = "staging" },
			"server.env",
		},
		{
			"zero rate budget",
			func(c *Config) { c.Limits.Login.MaxRequests = 0 },
			"rate limit",
		},
		{
			"bad rate backend",
			func(c *Config) { c.RateStore.Backend = "memcached" },
			"rate_store.backend",
		},
		{
			"redis backend without addr",
			func(c *Config) { c.RateStore.Backend = "redis" },
			"redis_addr",
		},
		{
			"production without origins",
			func(c *Config) { c.Server.Env = "production" },
			"public_origins",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := load(t, validYAML)
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadRejectsBadCIDR(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  trusted_proxies: ["not-a-cidr"]
token:
  keys:
    "k1": "c3VwZXJzZWNyZXRrZXl0aGF0aXNsb25n"
  current_kid: "k1"
`))
	if err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
}

func mustIP(s string) net.IP {
	ip := net.ParseIP(s)
	if ip == nil {
		panic("bad ip literal " + s)
	}
	return ip
}

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hearthside/storefront/internal/api"
	"hearthside/storefront/internal/breaker"
	"hearthside/storefront/internal/catalog"
	"hearthside/storefront/internal/config"
	"hearthside/storefront/internal/gate"
	"hearthside/storefront/internal/httputil"
	"hearthside/storefront/internal/metrics"
	"hearthside/storefront/internal/rate"
	"hearthside/storefront/internal/token"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (overrides STOREFRONT_CONFIG env var)")
	flag.Parse()

	// Config path: CLI flag > env var > default
	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = os.Getenv("STOREFRONT_CONFIG")
	}
	if cfgPath == "" {
		cfgPath = "./config.yaml"
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			cfgPath = "./config.example.yaml"
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Logging.Level == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Str("config_path", cfgPath).
		Str("env", cfg.Server.Env).
		Str("listen", cfg.Server.Listen).
		Str("log_level", cfg.Logging.Level).
		Msg("server configuration")
	log.Info().
		Int("public_max", cfg.Limits.Public.MaxRequests).
		Int("admin_max", cfg.Limits.Admin.MaxRequests).
		Int("login_max", cfg.Limits.Login.MaxRequests).
		Str("rate_backend", cfg.RateStore.Backend).
		Int64("max_body_bytes", cfg.Limits.MaxBodyBytes).
		Msg("request limits")

	kr, err := token.NewKeyring(cfg.Token.Alg, cfg.Token.Keys, cfg.Token.CurrentKID, cfg.Token.Issuer, cfg.Token.SkewSec)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create keyring")
	}

	var limiter rate.Limiter
	switch cfg.RateStore.Backend {
	case "redis":
		rc := redis.NewClient(&redis.Options{Addr: cfg.RateStore.RedisAddr})
		limiter = rate.NewRedis(rc, log.Logger)
		log.Info().Str("addr", cfg.RateStore.RedisAddr).Msg("redis rate limiting enabled")
	default:
		limiter = rate.NewMemory(cfg.RateStore.KeyCapacity)
	}

	dbBreaker := breaker.New("catalog-db", breaker.DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := catalog.Open(ctx, cfg.Database.DSN, cfg.DatabaseTimeout(), dbBreaker)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("catalog database unavailable, falling back to in-memory store")
		store = catalog.NewMemory(dbBreaker, cfg.DatabaseTimeout())
	}
	defer store.Close()

	g := gate.New(cfg, kr, limiter)
	a := api.New(cfg, kr, g, store)

	mux := http.NewServeMux()
	a.Routes(mux)

	metrics.MustRegister()
	metrics.BuildInfo.Set(1)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Storefront pages and the admin dashboard are static assets; the
	// admin pages sit behind the session redirect, not the API gate.
	webDir := os.Getenv("STOREFRONT_WEB_DIR")
	if webDir == "" {
		webDir = "./web"
	}
	if _, err := os.Stat(webDir); err == nil {
		mux.Handle("/", http.FileServer(http.Dir(webDir)))
		log.Info().Str("dir", webDir).Msg("serving static pages")
	}

	handler := httputil.Chain(
		httputil.RequestIDMiddleware(log.Logger, cfg.Server.TrustedProxyCIDRs),
		httputil.SecurityHeaders,
		httputil.PageGuard(cfg, kr, []string{"/admin"}, "/login.html"),
	)(mux)

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           handler,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
		IdleTimeout:       90 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Server.Listen).Msg("storefront listening")
		if !cfg.Production() {
			log.Warn().Msg("running in development mode, plaintext HTTP accepted")
		}
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatal().Err(err).Msg("server error")
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown failed, forcing close")
			srv.Close()
		}
		log.Info().Msg("shutdown complete")
	}
}

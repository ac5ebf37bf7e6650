package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/keystone-labs/idemgw"
	"github.com/keystone-labs/idemgw/internal/logging"
	"github.com/keystone-labs/idemgw/internal/requestlog"
	"github.com/keystone-labs/idemgw/internal/version"
	"github.com/keystone-labs/idemgw/store"
)

// serverEnv holds process-level settings; behavioral configuration lives
// in the config file.
type serverEnv struct {
	Port        string   `env:"PORT" envDefault:"8080"`
	ConfigPath  string   `env:"IDEMGW_CONFIG"`
	AuditDSN    string   `env:"IDEMGW_AUDIT_DSN"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
	LogLevel    string   `env:"LOG_LEVEL"`
	LogFormat   string   `env:"LOG_FORMAT"`
}

func main() {
	var envCfg serverEnv
	if err := env.Parse(&envCfg); err != nil {
		log.Fatalf("Failed to parse environment: %v", err)
	}
	logging.Setup(envCfg.LogLevel, envCfg.LogFormat)

	var cfg *idemgw.Config
	if envCfg.ConfigPath != "" {
		loaded, err := idemgw.LoadConfig(envCfg.ConfigPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if err := idemgw.ValidateConfig(*loaded); err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
		cfg = loaded
		log.Printf("Config loaded: key_source=%s, ttl=%ds, store=%s",
			cfg.Key.Source, cfg.TTLSeconds, cfg.Store.Backend)
	} else {
		cfg = &idemgw.Config{
			Key:        idemgw.KeyConfig{Source: idemgw.SourceHeader},
			TTLSeconds: 24 * 60 * 60,
			LocalCache: idemgw.LocalCacheConfig{Enabled: true},
			Store:      idemgw.StoreConfig{Backend: "memory"},
		}
		log.Printf("No IDEMGW_CONFIG set; using defaults (header key, ttl=86400s, memory store)")
	}

	st, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open record store: %v", err)
	}
	defer func() { _ = st.Close() }()

	coord, err := idemgw.New(*cfg, st)
	if err != nil {
		log.Fatalf("Failed to create coordinator: %v", err)
	}
	coord.SetTransform(idemgw.MarkServerCacheHit)

	var audit requestlog.Writer = requestlog.NoopWriter{}
	if envCfg.AuditDSN != "" {
		w, err := requestlog.NewSQLiteWriter(envCfg.AuditDSN)
		if err != nil {
			log.Fatalf("Failed to open audit log: %v", err)
		}
		defer func() { _ = w.Close() }()
		audit = w
		log.Printf("Audit log enabled: %s", envCfg.AuditDSN)
	}

	r := newRouter(coord, st, *cfg, envCfg.CORSOrigins, audit)

	srv := &http.Server{
		Addr:         ":" + envCfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("idemgw %s listening on :%s (store=%s)", version.Short(), envCfg.Port, cfg.Store.Backend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

func openStore(cfg idemgw.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return store.NewSQLiteStore(cfg.DSN)
	case "postgres":
		return store.NewPostgresStore(cfg.DSN)
	default:
		return store.NewMemory(), nil
	}
}

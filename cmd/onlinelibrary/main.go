// cmd/onlinelibrary/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"onlinelibrary/internal/catalog"
	"onlinelibrary/internal/invoice"
	"onlinelibrary/internal/journal"
	"onlinelibrary/internal/lending"
	"onlinelibrary/internal/membership"
	"onlinelibrary/internal/platform/config"
	"onlinelibrary/internal/platform/logger"
	"onlinelibrary/internal/platform/telemetry"
	"onlinelibrary/internal/server"
	"onlinelibrary/internal/session"
	"onlinelibrary/internal/store/memory"
	"onlinelibrary/internal/store/postgres"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// backend is what every service needs from a store.
type backend interface {
	catalog.Repository
	membership.Repository
	lending.Store
	journal.Store
	server.Pinger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("onlinelibrary exited", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "onlinelibrary",
		Short:        "Online library lending service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")

	var migrate bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, migrate)
		},
	}
	serve.Flags().BoolVar(&migrate, "migrate", false, "apply the database schema before serving")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Initialize(cfg.Log.Level, cfg.Log.Format)

			db, err := postgres.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			return postgres.New(db, cfg.Lending.TxTimeout()).Migrate(cmd.Context())
		},
	}

	root.AddCommand(serve, migrateCmd)
	return root
}

func runServe(ctx context.Context, cfg *config.Config, migrate bool) error {
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	log := logger.Get()
	log.Info("starting onlinelibrary", "address", cfg.Server.Addr(), "storage", cfg.Storage.Driver,
		"stock_policy", cfg.Lending.StockPolicy)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", "error", err)
		}
	}()

	store, db, err := openStore(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	loc, err := cfg.Lending.LoadLocation()
	if err != nil {
		return fmt.Errorf("failed to load lending location: %w", err)
	}
	policy, err := lending.ParseStockPolicy(cfg.Lending.StockPolicy)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ledger := lending.NewService(store, invoice.NewBuilder(cfg.Invoice, time.Now), lending.Config{
		StockPolicy:   policy,
		DefaultDays:   cfg.Lending.DefaultDays,
		LateFeePerDay: cfg.Lending.Rate(),
		MaxTxRetries:  cfg.Lending.MaxTxRetries,
		Location:      loc,
	}, lending.NewMetrics(reg), log)

	handler := server.NewRouter(server.Deps{
		Catalog:    catalog.NewService(store, log),
		Membership: membership.NewService(store, log, cfg.Membership.AttemptsPerMinute, cfg.Membership.Burst),
		Lending:    ledger,
		Journal:    journal.NewReader(store),
		Tokens:     session.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL()),
		AdminUser:  cfg.Auth.AdminUser,
		Store:      store,
		Registry:   reg,
		Logger:     log,
	})
	srv := server.New(cfg.Server, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// openStore returns the configured backend. db is nil for the memory store.
func openStore(ctx context.Context, cfg *config.Config, migrate bool) (backend, *sql.DB, error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil, nil
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.New(db, cfg.Lending.TxTimeout())
		if migrate {
			if err := store.Migrate(ctx); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		logger.Info("database connection established", "host", cfg.Database.Host, "database", cfg.Database.Database)
		return store, db, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (payroll.toml + PAYROLL_* env)
  2. Build the zap logger
  3. Open SQLite and apply migrations
  4. Derive the vault key from vault.secret
  5. Wire registry, catalog, tax and insurance calculators, pipeline
  6. Load tax schedules and seed salary items when files are configured
  7. Start the HTTP server and, if enabled, the year-end scheduler

COMMAND-LINE FLAGS:
  -config  Explicit config file (default: search for payroll.toml)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  PAYROLL_VAULT_SECRET=change-me-please-0123 ./server
  PAYROLL_DATABASE_PATH=":memory:" PAYROLL_VAULT_SECRET=... ./server
  ./server -config=/etc/payroll/payroll.toml

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/insurance"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/ratetable"
	"github.com/warp/payroll-engine/salaryitem"
	"github.com/warp/payroll-engine/store/sqlite"
	"github.com/warp/payroll-engine/tax"
	"github.com/warp/payroll-engine/vault"
)

func main() {
	configPath := flag.String("config", "", "config file (default: search for payroll.toml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "payroll: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer store.Close()

	sealer, err := vault.New([]byte(cfg.Vault.Secret))
	if err != nil {
		return fmt.Errorf("init vault: %w", err)
	}

	rates := ratetable.NewRegistry(store,
		ratetable.WithLogger(log.Named("ratetable")),
		ratetable.WithAudit(store))
	catalog := salaryitem.NewCatalog(store,
		salaryitem.WithLogger(log.Named("salaryitem")),
		salaryitem.WithAudit(store))
	taxCalc := tax.NewCalculator(
		tax.WithLogger(log.Named("tax")),
		tax.WithParameters(store))
	ins := insurance.NewCalculator(rates,
		insurance.WithLogger(log.Named("insurance")),
		insurance.WithStatutoryDefault(cfg.Payroll.AllowStatutoryDefault))

	if path := cfg.Tax.SchedulesFile; path != "" {
		years, err := factory.NewScheduleFactory().LoadFile(taxCalc, path)
		if err != nil {
			return fmt.Errorf("load tax schedules: %w", err)
		}
		log.Info("tax schedules loaded", zap.String("file", path), zap.Ints("years", years))
	}

	ctx := context.Background()
	if path := cfg.Catalog.SeedFile; path != "" {
		created, err := factory.NewItemFactory().SeedFile(ctx, catalog, path, generic.ActorSystem)
		if err != nil {
			return fmt.Errorf("seed salary items: %w", err)
		}
		log.Info("salary items seeded", zap.String("file", path), zap.Int("created", created))
	}

	pipeline, err := payroll.New(payroll.Dependencies{
		Employees:  store,
		Leave:      store,
		Catalog:    catalog,
		Insurance:  ins,
		Tax:        taxCalc,
		Records:    store,
		Sealer:     sealer,
		Parameters: store,
		Attendance: store,
	},
		payroll.WithLogger(log.Named("payroll")),
		payroll.WithAudit(store),
		payroll.WithBatchConcurrency(cfg.Payroll.BatchConcurrency))
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Services{
		Store:     store,
		Rates:     rates,
		Catalog:   catalog,
		Payroll:   pipeline,
		Insurance: ins,
		Tax:       taxCalc,
	})
	router := api.NewRouter(handler, api.RouterOptions{
		Logger:         log.Named("http"),
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})

	scheduler := api.NewYearEndScheduler(pipeline, log)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.CloseAfterDay = cfg.Scheduler.CloseAfterDay
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr), zap.String("database", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info("shutting down", zap.Stringer("signal", sig))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

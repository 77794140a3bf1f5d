// Package cli consolidates the initialization shared by cmd/finrep and
// cmd/finrep-worker: env loading, logging, configuration, storage, and the
// alias/rate tables.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"finrep/internal/config"
	"finrep/internal/fx"
	"finrep/internal/log"
	"finrep/internal/normalize"
	"finrep/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger initializes structured logging and sets it as the default.
func SetupLogger(component string) *log.Logger {
	cfg := log.DefaultConfig()
	cfg.Component = component
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitStorage opens the ledger database.
// Returns the repository or exits the process on failure.
func InitStorage(logger *log.Logger, dbPath string) *storage.Repository {
	repo, err := storage.NewRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize storage", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// InitAliases builds the alias tables, overlaying any configured files on the
// compiled-in defaults.
func InitAliases(logger *log.Logger, cfg *config.Config) *normalize.Aliases {
	aliases, err := normalize.NewAliases(cfg.CategoryAliasFile, cfg.VendorAliasFile)
	if err != nil {
		logger.Error("Failed to load alias tables", log.FieldError, err)
		os.Exit(1)
	}
	return aliases
}

// InitRates builds the FX rate table from the configured file. With no file
// configured the table is empty and only reporting-currency amounts convert.
func InitRates(logger *log.Logger, cfg *config.Config) *fx.Table {
	if cfg.FXRatesFile == "" {
		return fx.NewTable(cfg.ReportingCurrency)
	}
	rates, err := fx.LoadTable(cfg.ReportingCurrency, cfg.FXRatesFile)
	if err != nil {
		logger.Error("Failed to load FX rates", log.FieldError, err, "path", cfg.FXRatesFile)
		os.Exit(1)
	}
	return rates
}

// GracefulShutdown returns a context that is cancelled on SIGINT or SIGTERM.
func GracefulShutdown(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		// A second signal kills the process without waiting for cleanup.
		sig = <-sigChan
		logger.Warn("Forced shutdown", "signal", sig.String())
		os.Exit(1)
	}()

	return ctx, cancel
}

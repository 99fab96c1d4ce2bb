// Command reconcile runs one reconciliation pass against the configured
// database and prints the summary as JSON. It exits non-zero when any
// sub-order failed, so it can run from cron.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	procapp "github.com/manavault/backend/internal/application/procurement"
	"github.com/manavault/backend/internal/infrastructure/config"
	"github.com/manavault/backend/internal/infrastructure/logger"
	"github.com/manavault/backend/internal/infrastructure/persistence"
	"github.com/manavault/backend/internal/infrastructure/security"
	"github.com/manavault/backend/internal/infrastructure/supplier"
)

func main() {
	var timeout time.Duration
	flag.DurationVar(&timeout, "timeout", 0, "Abort the run after this long (default: reconciliation.run_timeout)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the summary, logs go to stderr
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	code := run(cfg, timeout, log)
	_ = logger.Sync(log)
	os.Exit(code)
}

func run(cfg *config.Config, timeout time.Duration, log *zap.Logger) int {
	if timeout <= 0 {
		timeout = cfg.Reconciliation.RunTimeout
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := persistence.Open(&cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level)))
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return 1
	}
	defer db.Close()

	cipher, err := security.NewVoucherCipherFromBase64(cfg.Voucher.EncryptionKey)
	if err != nil {
		log.Error("Invalid voucher encryption key", zap.Error(err))
		return 1
	}
	clients, err := supplier.NewClients(cfg.Suppliers, nil, log)
	if err != nil {
		log.Error("Invalid supplier configuration", zap.Error(err))
		return 1
	}

	service := procapp.NewReconciliationService(
		persistence.NewGormCatalogRepository(db.DB),
		persistence.NewGormSubOrderRepository(db.DB),
		persistence.NewGormTransactionScope(db.DB),
		clients.EzCards,
		cipher,
		log,
	)

	summary, err := service.ReconcileAllPending(ctx)
	if err != nil {
		log.Error("Reconciliation failed", zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Error("Failed to write summary", zap.Error(err))
		return 1
	}
	if summary.FailedOrders > 0 {
		return 2
	}
	return 0
}

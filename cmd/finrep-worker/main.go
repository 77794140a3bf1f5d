package main

import (
	"context"
	"errors"
	"os"

	"finrep/internal/amqp"
	"finrep/internal/cli"
	"finrep/internal/core"
	"finrep/internal/log"
	"finrep/internal/storage"
)

// finrep-worker consumes quarantine alerts and surfaces the held-back records
// for remediation. It is intentionally read-only: promotion back into the
// ledger happens through a corrected re-ingestion, never by editing rows.
func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)

	logger.Info("Starting finrep-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo := cli.InitStorage(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := cli.GracefulShutdown(logger)
	defer cancel()

	handler := alertHandler(ctx, repo, logger)
	if err := amqpClient.ConsumeQuarantineAlerts(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Worker stopped gracefully")
}

// alertHandler logs each alert and the matching quarantine records so an
// operator can see what to remediate without querying the database by hand.
func alertHandler(ctx context.Context, repo *storage.Repository, logger *log.Logger) func(*amqp.QuarantineAlertMessage) error {
	return func(msg *amqp.QuarantineAlertMessage) error {
		logger.InfoContext(ctx, "Quarantine alert received",
			log.FieldSource, msg.Source,
			log.FieldQuarantinedCount, msg.Quarantined,
			"rules", msg.Rules)

		recs, err := repo.ListQuarantine(ctx, nil)
		if err != nil {
			return err
		}
		for _, q := range recs {
			if q.Record.Source != msg.Source {
				continue
			}
			logger.InfoContext(ctx, "Quarantined record",
				log.FieldSource, q.Record.Source,
				log.FieldNativeID, q.Record.NativeID(),
				log.FieldRule, string(ruleOf(q)),
				"detail", detailOf(q))
		}
		return nil
	}
}

func ruleOf(q core.QuarantineRecord) core.Rule {
	if len(q.Diagnostics) == 0 {
		return ""
	}
	return q.Diagnostics[0].Rule
}

func detailOf(q core.QuarantineRecord) string {
	if len(q.Diagnostics) == 0 {
		return ""
	}
	return q.Diagnostics[0].Detail
}

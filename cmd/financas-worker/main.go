package main

import (
	"context"
	"errors"
	"os"
	"time"

	"financas/internal/amqp"
	"financas/internal/cli"
	"financas/internal/log"
	"financas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting financas-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required to consume ledger events")
		os.Exit(1)
	}

	// Only the journal is needed here: no database, no publisher.
	journalCfg := *cfg
	journalCfg.DataBackend = "memory"
	journalCfg.MemorySnapshotPath = ""
	journalCfg.AMQPURL = ""
	res := cli.InitBackend(context.Background(), logger, &journalCfg)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	journalWorker := worker.NewJournalWorker(res.Journal, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		stats := journalWorker.Stats()
		logger.Info("Journal worker stopping",
			"written", stats.Written,
			"duplicates", stats.Duplicates,
			"failed", stats.Failed)
		if err := client.Close(); err != nil {
			logger.Error("AMQP close error", log.FieldError, err)
		}
		_ = res.Cleanup()
	})

	go func() {
		err := client.ConsumeLedgerEvents(ctx, journalWorker.HandleMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}

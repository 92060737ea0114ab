package main

import (
	"context"
	"flag"
	"os"
	"time"

	"financas/internal/cli"
	"financas/internal/ledger"
	"financas/internal/log"
	"financas/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "run a single reconciliation pass and exit")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentReconcile)
	logger.Info("Starting reconcile-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	res := cli.InitBackend(context.Background(), logger, cfg)

	opts := []ledger.Option{ledger.WithLogger(logger)}
	if res.Publisher != nil {
		opts = append(opts, ledger.WithPublisher(res.Publisher))
	}
	svc := ledger.NewService(res.Store, opts...)

	reconciler, err := worker.NewReconciler(svc, res.Store, cfg.ReconcileSchedule, logger)
	if err != nil {
		logger.Error("Invalid reconcile schedule", log.FieldError, err)
		os.Exit(1)
	}

	if *once {
		_, err := reconciler.RunOnce(context.Background())
		if cerr := res.Cleanup(); cerr != nil {
			logger.Error("Backend cleanup error", log.FieldError, cerr)
		}
		if err != nil {
			logger.Error("Reconciliation failed", log.FieldError, err)
			os.Exit(1)
		}
		return
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		reconciler.Stop(ctx)
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	reconciler.Start(ctx)
	logger.Info("Reconciler scheduled",
		"schedule", cfg.ReconcileSchedule,
		"next_run", reconciler.Next(time.Now()))

	cli.WaitForShutdown(ctx, done)
}

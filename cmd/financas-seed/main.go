package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"financas/internal/auth"
	"financas/internal/cli"
	"financas/internal/ledger"
	"financas/internal/log"
	"financas/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	users := flag.Int("users", defaults.Users, "number of demo accounts")
	goals := flag.Int("goals", defaults.GoalsPerUser, "goals per account")
	months := flag.Int("months", defaults.Months, "months of history, counted back from today")
	perMonth := flag.Int("per-month", defaults.TransactionsPerMonth, "transactions per month besides the salary")
	rnd := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentSeed)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx := context.Background()
	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	}()

	svc := ledger.NewService(res.Store, ledger.WithLogger(logger))
	authSvc := auth.NewService(res.Store, []byte(cfg.JWTSecret), cfg.TokenTTL, logger)

	out, err := seed.NewGenerator(svc, authSvc, *rnd, logger).Run(ctx, seed.Options{
		Users:                *users,
		GoalsPerUser:         *goals,
		Months:               *months,
		TransactionsPerMonth: *perMonth,
	})
	if err != nil {
		logger.Error("Seeding failed", log.FieldError, err)
		_ = res.Cleanup()
		os.Exit(1)
	}

	fmt.Printf("Seeded %d accounts, %d goals, %d transactions (seed %d)\n",
		len(out.Accounts), out.Goals, out.Transactions, *rnd)
	for _, a := range out.Accounts {
		fmt.Printf("  %s / %s\n", a.Email, seed.DemoPassword)
	}
}

// Package seed fills a ledger with plausible demo data.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"financas/internal/auth"
	"financas/internal/core"
	"financas/internal/ledger"
	"financas/internal/log"
)

// DemoPassword is the password of every generated account.
const DemoPassword = "financas123"

var (
	expenseCategories = []string{
		"Alimentação", "Transporte", "Moradia", "Saúde", "Lazer", "Educação", "Compras", "Contas",
	}
	incomeCategories = []string{"Salário", "Freelance", "Rendimentos"}
	goalNames        = []string{
		"Reserva de emergência", "Viagem", "Carro novo", "Casa própria", "Curso", "Aposentadoria",
	}
)

type Options struct {
	Users                int
	GoalsPerUser         int
	Months               int // counted back from the current month
	TransactionsPerMonth int
}

func DefaultOptions() Options {
	return Options{Users: 2, GoalsPerUser: 3, Months: 6, TransactionsPerMonth: 15}
}

// Result lists what a run created.
type Result struct {
	Accounts     []auth.Account
	Goals        int
	Transactions int
}

// Generator creates data through the ledger so every goal total stays
// consistent with its linked transactions.
type Generator struct {
	ledger *ledger.Service
	auth   *auth.Service
	faker  *gofakeit.Faker
	now    func() time.Time
	logger *log.Logger
}

func NewGenerator(svc *ledger.Service, authSvc *auth.Service, seed int64, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Generator{
		ledger: svc,
		auth:   authSvc,
		faker:  gofakeit.New(seed),
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentSeed),
	}
}

func (g *Generator) amount(min, max float64) core.Money {
	m, _ := core.MoneyFromFloat(g.faker.Price(min, max))
	return m
}

func (g *Generator) randomDay(year, month int) core.Date {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	if now := g.now().UTC(); end.After(now) {
		end = now
	}
	d := g.faker.DateRange(start, end)
	return core.NewDate(d.Year(), int(d.Month()), d.Day())
}

// Run creates opts.Users accounts and fills each with goals and a history
// of transactions, some of them linked to goals.
func (g *Generator) Run(ctx context.Context, opts Options) (Result, error) {
	var res Result
	for i := 0; i < opts.Users; i++ {
		sess, err := g.auth.SignUp(ctx, g.faker.Email(), DemoPassword)
		if err != nil {
			return res, fmt.Errorf("create account: %w", err)
		}
		res.Accounts = append(res.Accounts, sess.User)

		goals, err := g.goals(ctx, sess.User.ID, opts.GoalsPerUser)
		if err != nil {
			return res, err
		}
		res.Goals += len(goals)

		n, err := g.history(ctx, sess.User.ID, goals, opts)
		if err != nil {
			return res, err
		}
		res.Transactions += n

		g.logger.InfoContext(ctx, "Seeded account",
			log.FieldUserID, sess.User.ID,
			"email", sess.User.Email,
			"goals", len(goals),
			"transactions", n)
	}
	return res, nil
}

func (g *Generator) goals(ctx context.Context, userID string, n int) ([]core.Goal, error) {
	out := make([]core.Goal, 0, n)
	for i := 0; i < n; i++ {
		name := goalNames[i%len(goalNames)]
		goal, err := g.ledger.CreateGoal(ctx, userID, core.GoalInput{
			Name:   name,
			Target: g.amount(1000, 50000),
			Color:  g.faker.HexColor(),
		})
		if err != nil {
			return nil, fmt.Errorf("create goal %q: %w", name, err)
		}
		out = append(out, goal)
	}
	return out, nil
}

func (g *Generator) history(ctx context.Context, userID string, goals []core.Goal, opts Options) (int, error) {
	now := g.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(opts.Months - 1), 0)

	count := 0
	for m := 0; m < opts.Months; m++ {
		month := first.AddDate(0, m, 0)
		year, mon := month.Year(), int(month.Month())

		salary := core.TransactionInput{
			Description: "Salário " + g.faker.Company(),
			Category:    incomeCategories[0],
			Value:       g.amount(4000, 9000),
			Date:        core.NewDate(year, mon, 5),
		}
		if salary.Date.After(now) {
			salary.Date = core.NewDate(year, mon, now.Day())
		}
		if _, err := g.ledger.CreateTransaction(ctx, userID, salary); err != nil {
			return count, fmt.Errorf("create salary: %w", err)
		}
		count++

		for i := 0; i < opts.TransactionsPerMonth; i++ {
			in := core.TransactionInput{
				Description: g.faker.Sentence(3),
				Category:    g.faker.RandomString(expenseCategories),
				Value:       g.amount(10, 600).Neg(),
				Date:        g.randomDay(year, mon),
			}
			switch {
			case len(goals) > 0 && g.faker.Number(1, 6) == 1:
				goal := goals[g.faker.Number(0, len(goals)-1)]
				if _, err := g.ledger.Contribute(ctx, userID, goal.ID, ledger.Movement{
					Amount: g.amount(100, 1500),
					Date:   in.Date,
				}); err != nil {
					return count, fmt.Errorf("contribute: %w", err)
				}
			case g.faker.Number(1, 10) == 1:
				in.Category = g.faker.RandomString(incomeCategories[1:])
				in.Value = g.amount(100, 2000)
				fallthrough
			default:
				if _, err := g.ledger.CreateTransaction(ctx, userID, in); err != nil {
					return count, fmt.Errorf("create transaction: %w", err)
				}
			}
			count++
		}
	}
	return count, nil
}

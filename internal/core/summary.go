package core

import (
	"sort"
	"strings"
	"time"
)

// MonthTotals holds income and expense totals for one calendar month.
// Expenses is reported as a positive amount.
type MonthTotals struct {
	Month    int   `json:"month"` // 1-12
	Income   Money `json:"income"`
	Expenses Money `json:"expenses"`
}

// Net returns income minus expenses.
func (m MonthTotals) Net() Money {
	return m.Income.Sub(m.Expenses)
}

// CategoryAmount represents expenses aggregated by category name.
type CategoryAmount struct {
	Category string  `json:"category"`
	Amount   Money   `json:"amount"`
	Share    float64 `json:"share"` // percent of the month's expenses
}

// GoalSummary is a goal together with its derived progress figures.
type GoalSummary struct {
	Goal
	Progress  float64 `json:"progress"`
	Remaining Money   `json:"remaining"`
	Completed bool    `json:"completed"`
}

// Summary is the dashboard view of one month.
type Summary struct {
	Year            int              `json:"year"`
	Month           int              `json:"month"`
	Balance         Money            `json:"balance"`
	MonthIncome     Money            `json:"monthIncome"`
	MonthExpenses   Money            `json:"monthExpenses"`
	MonthBalance    Money            `json:"monthBalance"`
	Monthly         []MonthTotals    `json:"monthly"`
	Categories      []CategoryAmount `json:"categories"`
	Goals           []GoalSummary    `json:"goals"`
	TotalSaved      Money            `json:"totalSaved"`
	TotalTarget     Money            `json:"totalTarget"`
	OverallProgress float64          `json:"overallProgress"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

func inMonth(t Transaction, year, month int) bool {
	return t.Date.Year() == year && t.Date.Month() == month
}

// MonthlyTotals buckets the transactions of year into twelve months.
func MonthlyTotals(txs []Transaction, year int) []MonthTotals {
	out := make([]MonthTotals, 12)
	for i := range out {
		out[i].Month = i + 1
	}
	for _, t := range txs {
		if t.Date.Year() != year {
			continue
		}
		m := &out[t.Date.Month()-1]
		if t.Value.Cents > 0 {
			m.Income = m.Income.Add(t.Value)
		} else {
			m.Expenses = m.Expenses.Add(t.Value.Abs())
		}
	}
	return out
}

// CategoryBreakdown sums the expenses of one month by category, largest
// first.
func CategoryBreakdown(txs []Transaction, year, month int) []CategoryAmount {
	totals := make(map[string]Money)
	var all Money
	for _, t := range txs {
		if t.Value.Cents >= 0 || !inMonth(t, year, month) {
			continue
		}
		amount := t.Value.Abs()
		totals[t.Category] = totals[t.Category].Add(amount)
		all = all.Add(amount)
	}

	out := make([]CategoryAmount, 0, len(totals))
	for cat, amount := range totals {
		share := 0.0
		if all.Cents > 0 {
			share = float64(amount.Cents) / float64(all.Cents) * 100
		}
		out = append(out, CategoryAmount{Category: cat, Amount: amount, Share: share})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Balance is the all-time sum of every transaction value.
func Balance(txs []Transaction) Money {
	var total Money
	for _, t := range txs {
		total = total.Add(t.Value)
	}
	return total
}

// MonthBalance returns income minus expenses for one month.
func MonthBalance(txs []Transaction, year, month int) Money {
	var total Money
	for _, t := range txs {
		if inMonth(t, year, month) {
			total = total.Add(t.Value)
		}
	}
	return total
}

// GoalProgress returns current/target as a percentage clamped to [0, 100].
func GoalProgress(g Goal) float64 {
	return percent(g.Current, g.Target)
}

// Remaining is how much is still missing to reach the target, never
// negative.
func Remaining(g Goal) Money {
	r := g.Target.Sub(g.Current)
	if r.Cents < 0 {
		return Money{}
	}
	return r
}

func percent(part, whole Money) float64 {
	if whole.Cents <= 0 || part.Cents <= 0 {
		return 0
	}
	p := float64(part.Cents) / float64(whole.Cents) * 100
	if p > 100 {
		return 100
	}
	return p
}

// SummarizeGoal derives the progress figures of g.
func SummarizeGoal(g Goal) GoalSummary {
	return GoalSummary{
		Goal:      g,
		Progress:  GoalProgress(g),
		Remaining: Remaining(g),
		Completed: g.Current.Cents >= g.Target.Cents,
	}
}

// BuildSummary computes every dashboard figure for year/month.
func BuildSummary(txs []Transaction, goals []Goal, year, month int) Summary {
	monthly := MonthlyTotals(txs, year)
	s := Summary{
		Year:        year,
		Month:       month,
		Balance:     Balance(txs),
		Monthly:     monthly,
		Categories:  CategoryBreakdown(txs, year, month),
		Goals:       make([]GoalSummary, 0, len(goals)),
		GeneratedAt: time.Now().UTC(),
	}
	if month >= 1 && month <= 12 {
		s.MonthIncome = monthly[month-1].Income
		s.MonthExpenses = monthly[month-1].Expenses
		s.MonthBalance = monthly[month-1].Net()
	}
	for _, g := range goals {
		s.Goals = append(s.Goals, SummarizeGoal(g))
		s.TotalSaved = s.TotalSaved.Add(g.Current)
		s.TotalTarget = s.TotalTarget.Add(g.Target)
	}
	s.OverallProgress = percent(s.TotalSaved, s.TotalTarget)
	return s
}

// TransactionFilter narrows a transaction listing. Zero values disable a
// criterion; Month is only honoured together with Year.
type TransactionFilter struct {
	Year   int
	Month  int
	Search string
	GoalID string
}

func (f TransactionFilter) Validate() error {
	if f.Month < 0 || f.Month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Matches reports whether t passes every criterion of f.
func (f TransactionFilter) Matches(t Transaction) bool {
	if f.Year > 0 {
		if t.Date.Year() != f.Year {
			return false
		}
		if f.Month > 0 && t.Date.Month() != f.Month {
			return false
		}
	}
	if f.GoalID != "" && t.GoalID != f.GoalID {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(t.Description), q) &&
			!strings.Contains(strings.ToLower(t.Category), q) {
			return false
		}
	}
	return true
}

// FilterTransactions returns the matching transactions, newest first.
func FilterTransactions(txs []Transaction, f TransactionFilter) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst orders by date, then creation time, both descending.
func SortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date.Time) {
			return txs[i].Date.After(txs[j].Date.Time)
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

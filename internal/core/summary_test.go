package core

import (
	"testing"
	"time"
)

func tx(id string, cents int64, y, m, d int, cat string) Transaction {
	return Transaction{ID: id, Description: id, Category: cat, Value: Cents(cents), Date: NewDate(y, m, d)}
}

func sampleTransactions() []Transaction {
	return []Transaction{
		tx("salario", 500000, 2025, 1, 5, "Receita"),
		tx("mercado", -24580, 2025, 1, 10, "Alimentação"),
		tx("feira", -5420, 2025, 1, 12, "Alimentação"),
		tx("uber", -3000, 2025, 1, 15, "Transporte"),
		tx("freela", 120000, 2025, 2, 3, "Receita"),
		tx("aluguel", -150000, 2025, 2, 5, "Moradia"),
		tx("antigo", -1000, 2024, 12, 31, "Outros"),
	}
}

func TestMonthlyTotals(t *testing.T) {
	totals := MonthlyTotals(sampleTransactions(), 2025)
	if len(totals) != 12 {
		t.Fatalf("expected 12 months, got %d", len(totals))
	}
	jan := totals[0]
	if jan.Month != 1 || jan.Income.Cents != 500000 || jan.Expenses.Cents != 33000 {
		t.Fatalf("unexpected january totals: %+v", jan)
	}
	if jan.Net().Cents != 467000 {
		t.Fatalf("unexpected january net: %d", jan.Net().Cents)
	}
	feb := totals[1]
	if feb.Income.Cents != 120000 || feb.Expenses.Cents != 150000 {
		t.Fatalf("unexpected february totals: %+v", feb)
	}
	if totals[11].Expenses.Cents != 0 {
		t.Fatalf("december 2024 must not leak into 2025")
	}
}

func TestCategoryBreakdown(t *testing.T) {
	got := CategoryBreakdown(sampleTransactions(), 2025, 1)
	if len(got) != 2 {
		t.Fatalf("expected 2 categories, got %+v", got)
	}
	if got[0].Category != "Alimentação" || got[0].Amount.Cents != 30000 {
		t.Fatalf("unexpected first category: %+v", got[0])
	}
	if got[1].Category != "Transporte" || got[1].Amount.Cents != 3000 {
		t.Fatalf("unexpected second category: %+v", got[1])
	}
	if sum := got[0].Share + got[1].Share; sum < 99.99 || sum > 100.01 {
		t.Fatalf("shares should add up to 100, got %f", sum)
	}
	if len(CategoryBreakdown(sampleTransactions(), 2025, 3)) != 0 {
		t.Fatalf("empty month should have no categories")
	}
}

func TestBalances(t *testing.T) {
	txs := sampleTransactions()
	if b := Balance(txs); b.Cents != 436000 {
		t.Fatalf("unexpected balance %d", b.Cents)
	}
	if b := MonthBalance(txs, 2025, 2); b.Cents != -30000 {
		t.Fatalf("unexpected february balance %d", b.Cents)
	}
}

func TestGoalProgress(t *testing.T) {
	cases := []struct {
		current, target int64
		want            float64
	}{
		{0, 1000, 0},
		{250, 1000, 25},
		{1000, 1000, 100},
		{1500, 1000, 100},
		{-200, 1000, 0},
		{100, 0, 0},
	}
	for _, tc := range cases {
		g := Goal{Current: Cents(tc.current), Target: Cents(tc.target)}
		if got := GoalProgress(g); got != tc.want {
			t.Errorf("progress(%d/%d) = %f, want %f", tc.current, tc.target, got, tc.want)
		}
	}
	if r := Remaining(Goal{Current: Cents(1500), Target: Cents(1000)}); r.Cents != 0 {
		t.Fatalf("remaining should not go negative, got %d", r.Cents)
	}
}

func TestBuildSummary(t *testing.T) {
	goals := []Goal{
		{ID: "g1", Name: "Viagem", Current: Cents(3000), Target: Cents(10000)},
		{ID: "g2", Name: "Reserva", Current: Cents(12000), Target: Cents(10000)},
	}
	s := BuildSummary(sampleTransactions(), goals, 2025, 1)
	if s.MonthIncome.Cents != 500000 || s.MonthExpenses.Cents != 33000 || s.MonthBalance.Cents != 467000 {
		t.Fatalf("unexpected month figures: %+v", s)
	}
	if s.TotalSaved.Cents != 15000 || s.TotalTarget.Cents != 20000 || s.OverallProgress != 75 {
		t.Fatalf("unexpected goal totals: saved=%d target=%d progress=%f", s.TotalSaved.Cents, s.TotalTarget.Cents, s.OverallProgress)
	}
	if !s.Goals[1].Completed || s.Goals[1].Progress != 100 {
		t.Fatalf("second goal should be complete: %+v", s.Goals[1])
	}
}

func TestFilterTransactions(t *testing.T) {
	txs := sampleTransactions()
	txs[1].GoalID = "g1"

	got := FilterTransactions(txs, TransactionFilter{Year: 2025, Month: 1})
	if len(got) != 4 || got[0].ID != "uber" || got[3].ID != "salario" {
		t.Fatalf("unexpected month listing: %v", ids(got))
	}

	got = FilterTransactions(txs, TransactionFilter{Search: "ALIMENTA"})
	if len(got) != 2 {
		t.Fatalf("search should match category, got %v", ids(got))
	}

	got = FilterTransactions(txs, TransactionFilter{GoalID: "g1"})
	if len(got) != 1 || got[0].ID != "mercado" {
		t.Fatalf("goal filter failed: %v", ids(got))
	}

	if err := (TransactionFilter{Month: 13}).Validate(); err == nil {
		t.Fatalf("month 13 should be rejected")
	}
}

func TestSortNewestFirstTieBreak(t *testing.T) {
	now := time.Now()
	a := tx("a", 1, 2025, 1, 1, "X")
	a.CreatedAt = now
	b := tx("b", 1, 2025, 1, 1, "X")
	b.CreatedAt = now.Add(time.Second)
	txs := []Transaction{a, b}
	SortNewestFirst(txs)
	if txs[0].ID != "b" {
		t.Fatalf("later creation should come first on equal dates")
	}
}

func ids(txs []Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

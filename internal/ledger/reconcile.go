package ledger

import (
	"context"

	"financas/internal/core"
	"financas/internal/log"
)

// GoalDrift is a goal whose stored current differs from the sum of its
// linked transactions.
type GoalDrift struct {
	GoalID   string     `json:"goalId"`
	Stored   core.Money `json:"stored"`
	Expected core.Money `json:"expected"`
}

// ReconcileReport summarizes one reconciliation pass for a user.
type ReconcileReport struct {
	UserID        string      `json:"userId"`
	GoalsChecked  int         `json:"goalsChecked"`
	Drifts        []GoalDrift `json:"drifts"`
	DanglingLinks []string    `json:"danglingLinks"` // transaction ids
}

// Clean reports whether nothing needed repair.
func (r ReconcileReport) Clean() bool {
	return len(r.Drifts) == 0 && len(r.DanglingLinks) == 0
}

// Audit compares every goal of userID against its linked transactions
// without changing anything.
func (s *Service) Audit(ctx context.Context, userID string) (ReconcileReport, error) {
	var report ReconcileReport
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		var err error
		report, _, err = s.audit(ctx, userID)
		return err
	})
	return report, backendErr("audit", err)
}

func (s *Service) audit(ctx context.Context, userID string) (ReconcileReport, []core.Transaction, error) {
	report := ReconcileReport{UserID: userID}

	goals, err := s.store.ListGoals(ctx, userID)
	if err != nil {
		return report, nil, backendErr("list goals", err)
	}
	txs, err := s.store.ListTransactions(ctx, userID, core.TransactionFilter{})
	if err != nil {
		return report, nil, backendErr("list transactions", err)
	}

	sums := make(map[string]core.Money, len(goals))
	for _, g := range goals {
		sums[g.ID] = core.Money{}
	}
	var dangling []core.Transaction
	for _, t := range txs {
		if !t.Linked() {
			continue
		}
		sum, ok := sums[t.GoalID]
		if !ok {
			dangling = append(dangling, t)
			report.DanglingLinks = append(report.DanglingLinks, t.ID)
			continue
		}
		sums[t.GoalID] = sum.Add(t.Value)
	}

	report.GoalsChecked = len(goals)
	for _, g := range goals {
		if expected := sums[g.ID]; expected != g.Current {
			report.Drifts = append(report.Drifts, GoalDrift{GoalID: g.ID, Stored: g.Current, Expected: expected})
		}
	}
	return report, dangling, nil
}

// Reconcile recomputes each goal's current from its linked transactions,
// overwriting any drift, and unlinks transactions whose goal is gone. The
// audit and the repair share one store transaction, so ledger mutations
// running at the same time are applied either wholly before or wholly
// after it.
func (s *Service) Reconcile(ctx context.Context, userID string) (ReconcileReport, error) {
	var report ReconcileReport
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		var (
			dangling []core.Transaction
			err      error
		)
		report, dangling, err = s.audit(ctx, userID)
		if err != nil {
			return err
		}
		for _, t := range dangling {
			t.GoalID = ""
			if err := s.store.UpdateTransaction(ctx, t); err != nil {
				return backendErr("unlink transaction", err)
			}
		}
		for _, d := range report.Drifts {
			if err := s.store.SetGoalCurrent(ctx, userID, d.GoalID, d.Expected); err != nil {
				return backendErr("set goal current", err)
			}
		}
		return nil
	})
	if err != nil {
		return report, backendErr("reconcile", err)
	}

	for _, d := range report.Drifts {
		s.logger.WarnContext(ctx, "Repaired goal drift",
			log.FieldUserID, userID,
			log.FieldGoalID, d.GoalID,
			"stored_cents", d.Stored.Cents,
			"expected_cents", d.Expected.Cents)
	}
	if !report.Clean() {
		s.logger.InfoContext(ctx, "Reconciliation repaired ledger",
			log.FieldUserID, userID,
			log.FieldOperation, log.OpReconcile,
			"drifts", len(report.Drifts),
			"dangling_links", len(report.DanglingLinks))
	}
	return report, nil
}

// ReconcileAll runs Reconcile for every user known to users. It keeps going
// after a per-user failure and returns the first error seen.
func (s *Service) ReconcileAll(ctx context.Context, users UserLister) ([]ReconcileReport, error) {
	ids, err := users.ListUserIDs(ctx)
	if err != nil {
		return nil, backendErr("list users", err)
	}
	reports := make([]ReconcileReport, 0, len(ids))
	var firstErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		r, err := s.Reconcile(ctx, id)
		if err != nil {
			s.logger.ErrorContext(ctx, "Reconciliation failed",
				log.FieldUserID, id,
				log.FieldError, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		reports = append(reports, r)
	}
	return reports, firstErr
}

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"financas/internal/amqp"
	"financas/internal/core"
	"financas/internal/ledger"
	"financas/internal/log"
	"financas/internal/storage/memory"
)

type fakeJournal struct {
	events []core.LedgerEvent
	err    error
}

func (f *fakeJournal) AppendEvent(_ context.Context, ev core.LedgerEvent) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, ev)
	return "row", nil
}

func TestJournalWorkerSkipsRedeliveries(t *testing.T) {
	journal := &fakeJournal{}
	w := NewJournalWorker(journal, log.Discard())
	msg := amqp.NewLedgerEventMessage(core.NewLedgerEvent(core.EventTransactionCreated, "alice"))

	for i := 0; i < 3; i++ {
		if err := w.HandleMessage(context.Background(), msg); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if len(journal.events) != 1 {
		t.Fatalf("expected one journal row, got %d", len(journal.events))
	}
	if st := w.Stats(); st.Written != 1 || st.Duplicates != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestJournalWorkerFailureIsRetried(t *testing.T) {
	journal := &fakeJournal{err: errors.New("quota exceeded")}
	w := NewJournalWorker(journal, log.Discard())
	msg := amqp.NewLedgerEventMessage(core.NewLedgerEvent(core.EventGoalCreated, "alice"))

	if err := w.HandleMessage(context.Background(), msg); err == nil {
		t.Fatal("expected error to trigger a requeue")
	}
	journal.err = nil
	if err := w.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if st := w.Stats(); st.Written != 1 || st.Failed != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestNewReconcilerRejectsBadSchedule(t *testing.T) {
	store := memory.New()
	svc := ledger.NewService(store, ledger.WithLogger(log.Discard()))
	if _, err := NewReconciler(svc, store, "every night", log.Discard()); err == nil {
		t.Fatal("expected schedule parse error")
	}

	r, err := NewReconciler(svc, store, "", log.Discard())
	if err != nil {
		t.Fatalf("default schedule: %v", err)
	}
	from := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	if next := r.Next(from); !next.Equal(time.Date(2025, 6, 16, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next run %v", next)
	}
}

func TestReconcilerRepairsDrift(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := ledger.NewService(store, ledger.WithLogger(log.Discard()))

	g, err := svc.CreateGoal(ctx, "alice", core.GoalInput{Name: "Viagem", Target: core.Cents(100000)})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	if _, err := svc.Contribute(ctx, "alice", g.ID, ledger.Movement{Amount: core.Cents(2500)}); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	// corrupt the stored total behind the ledger's back
	if err := store.SetGoalCurrent(ctx, "alice", g.ID, core.Cents(99)); err != nil {
		t.Fatalf("set current: %v", err)
	}

	r, err := NewReconciler(svc, store, "@hourly", log.Discard())
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	reports, err := r.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(reports) != 1 || len(reports[0].Drifts) != 1 {
		t.Fatalf("expected one drift, got %+v", reports)
	}

	fixed, _ := svc.GetGoal(ctx, "alice", g.ID)
	if fixed.Current.Cents != 2500 {
		t.Fatalf("current not repaired: %d", fixed.Current.Cents)
	}

	reports, _ = r.RunOnce(ctx)
	if len(reports) != 1 || !reports[0].Clean() {
		t.Fatalf("second run should be clean: %+v", reports)
	}
}

package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"financas/internal/ledger"
	"financas/internal/log"
)

// DefaultReconcileSchedule runs the reconciler every night at 03:00.
const DefaultReconcileSchedule = "0 3 * * *"

// Reconciler periodically recomputes every goal from its linked
// transactions and repairs any drift.
type Reconciler struct {
	ledger   *ledger.Service
	users    ledger.UserLister
	schedule cron.Schedule
	spec     string
	logger   *log.Logger

	cron    *cron.Cron
	running sync.Mutex
}

// NewReconciler validates spec, a standard five-field cron expression.
func NewReconciler(svc *ledger.Service, users ledger.UserLister, spec string, logger *log.Logger) (*Reconciler, error) {
	if spec == "" {
		spec = DefaultReconcileSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse reconcile schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Reconciler{
		ledger:   svc,
		users:    users,
		schedule: schedule,
		spec:     spec,
		logger:   logger.WithComponent(log.ComponentReconcile),
	}, nil
}

// Next returns the first scheduled run after t.
func (r *Reconciler) Next(t time.Time) time.Time {
	return r.schedule.Next(t)
}

// RunOnce reconciles every user. Overlapping runs are skipped.
func (r *Reconciler) RunOnce(ctx context.Context) ([]ledger.ReconcileReport, error) {
	if !r.running.TryLock() {
		r.logger.WarnContext(ctx, "Reconciliation already running, skipping")
		return nil, nil
	}
	defer r.running.Unlock()

	start := time.Now()
	reports, err := r.ledger.ReconcileAll(ctx, r.users)

	var drifts, dangling int
	for _, rep := range reports {
		drifts += len(rep.Drifts)
		dangling += len(rep.DanglingLinks)
	}
	r.logger.InfoContext(ctx, "Reconciliation finished",
		log.FieldOperation, log.OpReconcile,
		"users", len(reports),
		"drifts", drifts,
		"dangling_links", dangling,
		log.FieldDuration, time.Since(start).Milliseconds())
	return reports, err
}

// Start schedules RunOnce on the cron expression. Runs share ctx.
func (r *Reconciler) Start(ctx context.Context) {
	r.cron = cron.New()
	r.cron.Schedule(r.schedule, cron.FuncJob(func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Scheduled reconciliation failed", log.FieldError, err)
		}
	}))
	r.cron.Start()
	r.logger.InfoContext(ctx, "Reconciler scheduled",
		"schedule", r.spec,
		"next_run", r.Next(time.Now()).Format(time.RFC3339))
}

// Stop waits for a running job to finish or ctx to expire.
func (r *Reconciler) Stop(ctx context.Context) {
	if r.cron == nil {
		return
	}
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
		r.logger.Warn("Reconciler stop timed out")
	}
}

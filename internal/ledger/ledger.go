// Package ledger keeps goal balances consistent with the transactions
// linked to them.
//
// For every goal G of a user, G.Current equals the sum of the values of
// the transactions whose GoalID is G.ID. Every mutation below preserves
// that equality by writing the transaction and applying the matching delta
// to the affected goals inside one store transaction. Reconcile repairs
// drift left by writes that bypassed the ledger.
package ledger

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"financas/internal/core"
	"financas/internal/log"
)

// Service is the ledger consistency engine.
type Service struct {
	store  Store
	events EventPublisher
	logger *log.Logger
	slog   *log.StructuredLogger
	now    func() time.Time
}

type Option func(*Service)

// WithPublisher sends ledger events to p after each mutation.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source used for CreatedAt and default dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentLedger)
	s.slog = log.NewStructuredLogger(s.logger)
	return s
}

// backendErr wraps store failures, letting not-found errors through.
func backendErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrConflict) {
		return err
	}
	var be *core.BackendError
	if errors.As(err, &be) {
		return err
	}
	return &core.BackendError{Op: op, Err: err}
}

// resolveGoal looks up goalID for userID. A goal that does not exist is
// reported as ok == false without error.
func (s *Service) resolveGoal(ctx context.Context, userID, goalID string) (core.Goal, bool, error) {
	if goalID == "" {
		return core.Goal{}, false, nil
	}
	g, err := s.store.GetGoal(ctx, userID, goalID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Goal{}, false, nil
	}
	if err != nil {
		return core.Goal{}, false, backendErr("get goal", err)
	}
	return g, true, nil
}

// eventBatch collects the events of one store transaction. They are
// published only after it commits.
type eventBatch []core.LedgerEvent

func (b *eventBatch) add(ev core.LedgerEvent) {
	*b = append(*b, ev)
}

// atomically runs fn in a store transaction and publishes the queued
// events once it has committed.
func (s *Service) atomically(ctx context.Context, op string, fn func(ctx context.Context, events *eventBatch) error) error {
	var events eventBatch
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		events = events[:0]
		return fn(ctx, &events)
	})
	if err != nil {
		if core.IsValidation(err) {
			return err
		}
		return backendErr(op, err)
	}
	for _, ev := range events {
		s.publish(ctx, ev)
	}
	return nil
}

// adjust applies delta to a goal's current amount.
func (s *Service) adjust(ctx context.Context, events *eventBatch, userID, goalID string, delta core.Money) error {
	if delta.IsZero() {
		return nil
	}
	g, err := s.store.AdjustGoalCurrent(ctx, userID, goalID, delta)
	if err != nil {
		s.slog.LogError(ctx, "Goal adjustment failed", err, log.OpAdjust,
			log.NewFields().WithUser(userID).WithGoalAdjustment(goalID, delta.Cents, 0).WithErrorType("backend"))
		return backendErr("adjust goal", err)
	}
	s.slog.LogGoalAdjusted(ctx, userID, goalID, delta.Cents, g.Current.Cents)

	ev := core.NewLedgerEvent(core.EventGoalAdjusted, userID)
	ev.Goal = &g
	ev.Delta = &delta
	events.add(ev)
	return nil
}

func (s *Service) publish(ctx context.Context, ev core.LedgerEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			log.FieldEventType, string(ev.Type),
			log.FieldUserID, ev.UserID,
			log.FieldError, err)
	}
}

// CreateTransaction validates and stores a new transaction. When the input
// links an existing goal, that goal's current grows by the value. A link to
// a goal that does not exist is dropped.
func (s *Service) CreateTransaction(ctx context.Context, userID string, in core.TransactionInput) (core.Transaction, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}

	t := core.Transaction{
		ID:          core.NewID(),
		UserID:      userID,
		Description: in.Description,
		Category:    in.Category,
		Value:       in.Value,
		Date:        in.Date,
		CreatedAt:   s.now().UTC(),
	}
	err := s.atomically(ctx, "create transaction", func(ctx context.Context, events *eventBatch) error {
		goal, linked, err := s.resolveGoal(ctx, userID, in.GoalID)
		if err != nil {
			return err
		}
		t.GoalID = ""
		if linked {
			t.GoalID = goal.ID
		} else if in.GoalID != "" {
			s.logger.WarnContext(ctx, "Dropping link to unknown goal",
				log.FieldUserID, userID,
				log.FieldGoalID, in.GoalID)
		}

		if err := s.store.InsertTransaction(ctx, t); err != nil {
			return backendErr("insert transaction", err)
		}
		if linked {
			if err := s.adjust(ctx, events, userID, goal.ID, t.Value); err != nil {
				return err
			}
		}
		ev := core.NewLedgerEvent(core.EventTransactionCreated, userID)
		ev.Transaction = &t
		events.add(ev)
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	s.slog.LogTransaction(ctx, log.OpCreate, userID, t.ID, t.Value.Cents, t.Category, t.GoalID)
	return t, nil
}

// UpdateTransaction applies changes to an existing transaction and moves
// the value between goals as needed:
//
//   - same goal before and after: current changes by new-old
//   - link changed: the old goal loses the old value, the new goal gains
//     the new value
func (s *Service) UpdateTransaction(ctx context.Context, userID, id string, changes core.TransactionChanges) (core.Transaction, error) {
	var updated core.Transaction
	err := s.atomically(ctx, "update transaction", func(ctx context.Context, events *eventBatch) error {
		old, err := s.store.GetTransaction(ctx, userID, id)
		if err != nil {
			return backendErr("get transaction", err)
		}
		updated = changes.Apply(old)
		if err := updated.Validate(); err != nil {
			return err
		}

		_, oldLinked, err := s.resolveGoal(ctx, userID, old.GoalID)
		if err != nil {
			return err
		}
		newLinked := oldLinked
		if updated.GoalID != old.GoalID {
			_, newLinked, err = s.resolveGoal(ctx, userID, updated.GoalID)
			if err != nil {
				return err
			}
		}
		if updated.GoalID != "" && !newLinked {
			s.logger.WarnContext(ctx, "Dropping link to unknown goal",
				log.FieldUserID, userID,
				log.FieldTransactionID, id,
				log.FieldGoalID, updated.GoalID)
			updated.GoalID = ""
		}

		if err := s.store.UpdateTransaction(ctx, updated); err != nil {
			return backendErr("update transaction", err)
		}
		if err := s.moveValue(ctx, events, old, updated, oldLinked, newLinked); err != nil {
			return err
		}
		ev := core.NewLedgerEvent(core.EventTransactionUpdated, userID)
		ev.Transaction = &updated
		events.add(ev)
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	s.slog.LogTransaction(ctx, log.OpUpdate, userID, updated.ID, updated.Value.Cents, updated.Category, updated.GoalID)
	return updated, nil
}

func (s *Service) moveValue(ctx context.Context, events *eventBatch, old, updated core.Transaction, oldLinked, newLinked bool) error {
	if old.GoalID == updated.GoalID {
		if !oldLinked {
			return nil
		}
		return s.adjust(ctx, events, old.UserID, old.GoalID, updated.Value.Sub(old.Value))
	}
	if oldLinked {
		if err := s.adjust(ctx, events, old.UserID, old.GoalID, old.Value.Neg()); err != nil {
			return err
		}
	}
	if newLinked {
		return s.adjust(ctx, events, old.UserID, updated.GoalID, updated.Value)
	}
	return nil
}

// DeleteTransaction removes a transaction and takes its value back out of
// the linked goal.
func (s *Service) DeleteTransaction(ctx context.Context, userID, id string) error {
	var t core.Transaction
	err := s.atomically(ctx, "delete transaction", func(ctx context.Context, events *eventBatch) error {
		var err error
		t, err = s.store.GetTransaction(ctx, userID, id)
		if err != nil {
			return backendErr("get transaction", err)
		}
		_, linked, err := s.resolveGoal(ctx, userID, t.GoalID)
		if err != nil {
			return err
		}
		if linked {
			if err := s.adjust(ctx, events, userID, t.GoalID, t.Value.Neg()); err != nil {
				return err
			}
		}
		if err := s.store.DeleteTransaction(ctx, userID, id); err != nil {
			return backendErr("delete transaction", err)
		}
		ev := core.NewLedgerEvent(core.EventTransactionDeleted, userID)
		ev.Transaction = &t
		events.add(ev)
		return nil
	})
	if err != nil {
		return err
	}
	s.slog.LogTransaction(ctx, log.OpDelete, userID, t.ID, t.Value.Cents, t.Category, t.GoalID)
	return nil
}

func (s *Service) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, backendErr("get transaction", err)
	}
	return t, nil
}

// ListTransactions returns the user's transactions matching f, newest
// first.
func (s *Service) ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, userID, f)
	if err != nil {
		return nil, backendErr("list transactions", err)
	}
	return core.FilterTransactions(txs, f), nil
}

// CreateGoal stores a new goal with current set to zero.
func (s *Service) CreateGoal(ctx context.Context, userID string, in core.GoalInput) (core.Goal, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Goal{}, err
	}
	g := core.Goal{
		ID:        core.NewID(),
		UserID:    userID,
		Name:      in.Name,
		Target:    in.Target,
		Color:     in.Color,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.InsertGoal(ctx, g); err != nil {
		return core.Goal{}, backendErr("insert goal", err)
	}
	s.logger.InfoContext(ctx, "Goal created",
		log.FieldUserID, userID,
		log.FieldGoalID, g.ID,
		"target_cents", g.Target.Cents)

	ev := core.NewLedgerEvent(core.EventGoalCreated, userID)
	ev.Goal = &g
	s.publish(ctx, ev)
	return g, nil
}

// UpdateGoal changes name, target or color. Current cannot be set here.
func (s *Service) UpdateGoal(ctx context.Context, userID, id string, changes core.GoalChanges) (core.Goal, error) {
	var g core.Goal
	err := s.atomically(ctx, "update goal", func(ctx context.Context, events *eventBatch) error {
		var err error
		g, err = s.store.GetGoal(ctx, userID, id)
		if err != nil {
			return backendErr("get goal", err)
		}
		g = changes.Apply(g)
		if err := g.Validate(); err != nil {
			return err
		}
		if err := s.store.UpdateGoal(ctx, g); err != nil {
			return backendErr("update goal", err)
		}
		ev := core.NewLedgerEvent(core.EventGoalUpdated, userID)
		ev.Goal = &g
		events.add(ev)
		return nil
	})
	if err != nil {
		return core.Goal{}, err
	}
	return g, nil
}

// DeleteGoal removes a goal and unlinks the transactions that referenced
// it. The transactions themselves are kept.
func (s *Service) DeleteGoal(ctx context.Context, userID, id string) error {
	var unlinked int64
	err := s.atomically(ctx, "delete goal", func(ctx context.Context, events *eventBatch) error {
		g, err := s.store.GetGoal(ctx, userID, id)
		if err != nil {
			return backendErr("get goal", err)
		}
		if err := s.store.DeleteGoal(ctx, userID, id); err != nil {
			return backendErr("delete goal", err)
		}
		unlinked, err = s.store.UnlinkGoal(ctx, userID, id)
		if err != nil {
			return backendErr("unlink goal", err)
		}
		ev := core.NewLedgerEvent(core.EventGoalDeleted, userID)
		ev.Goal = &g
		events.add(ev)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Goal deleted",
		log.FieldUserID, userID,
		log.FieldGoalID, id,
		"unlinked_transactions", unlinked)
	return nil
}

func (s *Service) GetGoal(ctx context.Context, userID, id string) (core.Goal, error) {
	g, err := s.store.GetGoal(ctx, userID, id)
	if err != nil {
		return core.Goal{}, backendErr("get goal", err)
	}
	return g, nil
}

func (s *Service) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	goals, err := s.store.ListGoals(ctx, userID)
	if err != nil {
		return nil, backendErr("list goals", err)
	}
	return goals, nil
}

// Movement is money put into or taken out of a goal. Description and Date
// are optional.
type Movement struct {
	Amount      core.Money
	Description string
	Date        core.Date
}

// Contribute records a deposit into a goal as a positive transaction in
// the investment category.
func (s *Service) Contribute(ctx context.Context, userID, goalID string, m Movement) (core.Transaction, error) {
	return s.move(ctx, userID, goalID, m, "Depósito: ", false)
}

// Withdraw records money taken out of a goal as a negative transaction.
func (s *Service) Withdraw(ctx context.Context, userID, goalID string, m Movement) (core.Transaction, error) {
	return s.move(ctx, userID, goalID, m, "Resgate: ", true)
}

func (s *Service) move(ctx context.Context, userID, goalID string, m Movement, prefix string, negate bool) (core.Transaction, error) {
	if m.Amount.Cents <= 0 {
		return core.Transaction{}, core.ErrNonPositiveAmount
	}
	g, err := s.store.GetGoal(ctx, userID, goalID)
	if err != nil {
		return core.Transaction{}, backendErr("get goal", err)
	}
	desc := m.Description
	if desc == "" {
		desc = prefix + g.Name
	}
	date := m.Date
	if date.IsZero() {
		now := s.now().UTC()
		date = core.NewDate(now.Year(), int(now.Month()), now.Day())
	}
	value := m.Amount
	if negate {
		value = value.Neg()
	}
	return s.CreateTransaction(ctx, userID, core.TransactionInput{
		Description: desc,
		Category:    core.InvestmentCategory,
		Value:       value,
		Date:        date,
		GoalID:      g.ID,
	})
}

// Summary loads the user's data and computes the dashboard figures for
// year/month.
func (s *Service) Summary(ctx context.Context, userID string, year, month int) (core.Summary, error) {
	if month < 1 || month > 12 {
		return core.Summary{}, core.ErrInvalidMonth
	}
	var (
		txs   []core.Transaction
		goals []core.Goal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.store.ListTransactions(gctx, userID, core.TransactionFilter{})
		return backendErr("list transactions", err)
	})
	g.Go(func() error {
		var err error
		goals, err = s.store.ListGoals(gctx, userID)
		return backendErr("list goals", err)
	})
	if err := g.Wait(); err != nil {
		return core.Summary{}, err
	}
	return core.BuildSummary(txs, goals, year, month), nil
}

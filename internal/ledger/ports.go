package ledger

import (
	"context"

	"financas/internal/core"
)

// TransactionStore persists transactions. Every method is scoped to the
// owning user; missing records yield a core.NotFoundError.
type TransactionStore interface {
	InsertTransaction(ctx context.Context, t core.Transaction) error
	GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
	// UpdateTransaction overwrites every mutable field of t.
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, userID, id string) error
	// ListTransactions may pre-filter by year, month and goal. Callers
	// re-apply the filter and the ordering.
	ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error)
	// UnlinkGoal clears goalId on every transaction referencing goalID and
	// returns how many were changed.
	UnlinkGoal(ctx context.Context, userID, goalID string) (int64, error)
}

// GoalStore persists goals.
type GoalStore interface {
	InsertGoal(ctx context.Context, g core.Goal) error
	GetGoal(ctx context.Context, userID, id string) (core.Goal, error)
	ListGoals(ctx context.Context, userID string) ([]core.Goal, error)
	// UpdateGoal writes name, target and color. Current is left alone.
	UpdateGoal(ctx context.Context, g core.Goal) error
	// AdjustGoalCurrent adds delta to current in a single store operation
	// and returns the updated goal.
	AdjustGoalCurrent(ctx context.Context, userID, id string, delta core.Money) (core.Goal, error)
	SetGoalCurrent(ctx context.Context, userID, id string, current core.Money) error
	DeleteGoal(ctx context.Context, userID, id string) error
}

// Store is everything the ledger needs from persistence.
type Store interface {
	TransactionStore
	GoalStore
	// InTx runs fn inside a store transaction carried by the context it
	// passes to fn. Calls made with that context commit together, or not
	// at all when fn returns an error. Calls made with that context must
	// not escape fn. A context that already carries a transaction joins it.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserLister enumerates the owners of ledger data.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// EventPublisher receives a LedgerEvent after each successful mutation.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error
}

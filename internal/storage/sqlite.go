package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"financas/internal/core"
	"financas/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores users, transactions and goals in a SQLite file.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection avoids SQLITE_BUSY. InTx holds it until commit,
	// which serializes ledger transactions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  log.New(log.DefaultConfig()).WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type sqliteTxKey struct{}

type sqliteTx struct {
	repo *SQLiteRepository
	tx   *sql.Tx
}

func (r *SQLiteRepository) txFrom(ctx context.Context) (*sql.Tx, bool) {
	t, ok := ctx.Value(sqliteTxKey{}).(sqliteTx)
	if !ok || t.repo != r {
		return nil, false
	}
	return t.tx, true
}

// queriesFor binds the statements to the transaction carried by ctx, if
// any.
func (r *SQLiteRepository) queriesFor(ctx context.Context) *Queries {
	if tx, ok := r.txFrom(ctx); ok {
		return r.queries.WithTx(tx)
	}
	return r.queries
}

// InTx runs fn in a database transaction. Repository calls made with the
// context passed to fn use that transaction.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := r.txFrom(ctx); ok {
		return fn(ctx)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, sqliteTxKey{}, sqliteTx{repo: r, tx: tx})); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// mapSQLiteErr turns driver errors into core sentinels.
func mapSQLiteErr(err error, entity, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return core.NotFound(entity, id)
	case strings.Contains(err.Error(), "UNIQUE constraint failed"),
		strings.Contains(err.Error(), "constraint failed: UNIQUE"):
		return fmt.Errorf("%s %q: %w", entity, id, core.ErrConflict)
	default:
		return fmt.Errorf("%s %q: %w", entity, id, err)
	}
}

func affected(n int64, err error, entity, id string) error {
	if err != nil {
		return mapSQLiteErr(err, entity, id)
	}
	if n == 0 {
		return core.NotFound(entity, id)
	}
	return nil
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) error {
	return mapSQLiteErr(r.queriesFor(ctx).CreateTransaction(ctx, t), "transaction", t.ID)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	t, err := r.queriesFor(ctx).GetTransaction(ctx, userID, id)
	return t, mapSQLiteErr(err, "transaction", id)
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	n, err := r.queriesFor(ctx).UpdateTransaction(ctx, t)
	return affected(n, err, "transaction", t.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	n, err := r.queriesFor(ctx).DeleteTransaction(ctx, userID, id)
	return affected(n, err, "transaction", id)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	txs, err := r.queriesFor(ctx).ListTransactions(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (r *SQLiteRepository) UnlinkGoal(ctx context.Context, userID, goalID string) (int64, error) {
	if goalID == "" {
		return 0, nil
	}
	n, err := r.queriesFor(ctx).UnlinkGoal(ctx, userID, goalID)
	if err != nil {
		return 0, fmt.Errorf("unlink goal %q: %w", goalID, err)
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "Transactions unlinked from goal",
			log.FieldUserID, userID,
			log.FieldGoalID, goalID,
			"unlinked", n)
	}
	return n, nil
}

func (r *SQLiteRepository) InsertGoal(ctx context.Context, g core.Goal) error {
	return mapSQLiteErr(r.queriesFor(ctx).CreateGoal(ctx, g), "goal", g.ID)
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, userID, id string) (core.Goal, error) {
	g, err := r.queriesFor(ctx).GetGoal(ctx, userID, id)
	return g, mapSQLiteErr(err, "goal", id)
}

func (r *SQLiteRepository) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	goals, err := r.queriesFor(ctx).ListGoals(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g core.Goal) error {
	n, err := r.queriesFor(ctx).UpdateGoal(ctx, g)
	return affected(n, err, "goal", g.ID)
}

// AdjustGoalCurrent increments current and reads the goal back inside one
// transaction, joining the caller's if there is one.
func (r *SQLiteRepository) AdjustGoalCurrent(ctx context.Context, userID, id string, delta core.Money) (core.Goal, error) {
	var g core.Goal
	err := r.InTx(ctx, func(ctx context.Context) error {
		q := r.queriesFor(ctx)
		n, err := q.AdjustGoalCurrent(ctx, userID, id, delta.Cents)
		if err := affected(n, err, "goal", id); err != nil {
			return err
		}
		g, err = q.GetGoal(ctx, userID, id)
		return mapSQLiteErr(err, "goal", id)
	})
	if err != nil {
		return core.Goal{}, err
	}
	return g, nil
}

func (r *SQLiteRepository) SetGoalCurrent(ctx context.Context, userID, id string, current core.Money) error {
	n, err := r.queriesFor(ctx).SetGoalCurrent(ctx, userID, id, current.Cents)
	return affected(n, err, "goal", id)
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, userID, id string) error {
	n, err := r.queriesFor(ctx).DeleteGoal(ctx, userID, id)
	return affected(n, err, "goal", id)
}

func (r *SQLiteRepository) InsertUser(ctx context.Context, u core.User) error {
	return mapSQLiteErr(r.queriesFor(ctx).CreateUser(ctx, u), "user", u.Email)
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	u, err := r.queriesFor(ctx).GetUser(ctx, id)
	return u, mapSQLiteErr(err, "user", id)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	u, err := r.queriesFor(ctx).GetUserByEmail(ctx, email)
	return u, mapSQLiteErr(err, "user", email)
}

func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := r.queriesFor(ctx).ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

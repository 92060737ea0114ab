package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"financas/internal/core"
)

const pgUniqueViolation = "23505"

// PostgresRepository stores ledger data in Postgres through a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository runs the migrations and opens a pool on
// databaseURL.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if err := RunPostgresMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// pgConn is satisfied by *pgxpool.Pool and pgx.Tx.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTxKey struct{}

type pgTx struct {
	repo *PostgresRepository
	tx   pgx.Tx
}

func (r *PostgresRepository) txFrom(ctx context.Context) (pgx.Tx, bool) {
	t, ok := ctx.Value(pgTxKey{}).(pgTx)
	if !ok || t.repo != r {
		return nil, false
	}
	return t.tx, true
}

func (r *PostgresRepository) conn(ctx context.Context) pgConn {
	if tx, ok := r.txFrom(ctx); ok {
		return tx
	}
	return r.pool
}

// forUpdate locks the selected rows until the surrounding transaction
// ends. Outside InTx it adds nothing.
func (r *PostgresRepository) forUpdate(ctx context.Context) string {
	if _, ok := r.txFrom(ctx); ok {
		return " FOR UPDATE"
	}
	return ""
}

// InTx runs fn in a database transaction. Goals and transactions read
// with the context passed to fn stay locked until it commits.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := r.txFrom(ctx); ok {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, pgTxKey{}, pgTx{repo: r, tx: tx}))
	})
}

func mapPgErr(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NotFound(entity, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s %q: %w", entity, id, core.ErrConflict)
	}
	return fmt.Errorf("%s %q: %w", entity, id, err)
}

func pgAffected(tag pgconn.CommandTag, err error, entity, id string) error {
	if err != nil {
		return mapPgErr(err, entity, id)
	}
	if tag.RowsAffected() == 0 {
		return core.NotFound(entity, id)
	}
	return nil
}

func pgGoalID(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanPgTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t      core.Transaction
		value  int64
		date   time.Time
		goalID *string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Description, &t.Category, &value, &date, &goalID, &t.CreatedAt); err != nil {
		return core.Transaction{}, err
	}
	t.Value = core.Cents(value)
	t.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
	if goalID != nil {
		t.GoalID = *goalID
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func scanPgGoal(row pgx.Row) (core.Goal, error) {
	var (
		g       core.Goal
		current int64
		target  int64
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &current, &target, &g.Color, &g.CreatedAt); err != nil {
		return core.Goal{}, err
	}
	g.Current = core.Cents(current)
	g.Target = core.Cents(target)
	g.CreatedAt = g.CreatedAt.UTC()
	return g, nil
}

func (r *PostgresRepository) InsertTransaction(ctx context.Context, t core.Transaction) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.UserID, t.Description, t.Category, t.Value.Cents, t.Date.Time, pgGoalID(t.GoalID), t.CreatedAt)
	return mapPgErr(err, "transaction", t.ID)
}

func (r *PostgresRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 AND id = $2`+r.forUpdate(ctx), userID, id)
	t, err := scanPgTransaction(row)
	return t, mapPgErr(err, "transaction", id)
}

func (r *PostgresRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE transactions SET description = $1, category = $2, value_cents = $3, date = $4, goal_id = $5
		 WHERE user_id = $6 AND id = $7`,
		t.Description, t.Category, t.Value.Cents, t.Date.Time, pgGoalID(t.GoalID), t.UserID, t.ID)
	return pgAffected(tag, err, "transaction", t.ID)
}

func (r *PostgresRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM transactions WHERE user_id = $1 AND id = $2`, userID, id)
	return pgAffected(tag, err, "transaction", id)
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"user_id = $1"}
		args  = []any{userID}
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.Year > 0 {
		where = append(where, "EXTRACT(YEAR FROM date) = "+arg(f.Year))
		if f.Month > 0 {
			where = append(where, "EXTRACT(MONTH FROM date) = "+arg(f.Month))
		}
	}
	if f.GoalID != "" {
		where = append(where, "goal_id = "+arg(f.GoalID))
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+strings.Join(where, " AND ")+
			` ORDER BY date DESC, created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanPgTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UnlinkGoal(ctx context.Context, userID, goalID string) (int64, error) {
	if goalID == "" {
		return 0, nil
	}
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE transactions SET goal_id = NULL WHERE user_id = $1 AND goal_id = $2`, userID, goalID)
	if err != nil {
		return 0, fmt.Errorf("unlink goal %q: %w", goalID, err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) InsertGoal(ctx context.Context, g core.Goal) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO goals (`+goalColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.UserID, g.Name, g.Current.Cents, g.Target.Cents, g.Color, g.CreatedAt)
	return mapPgErr(err, "goal", g.ID)
}

func (r *PostgresRepository) GetGoal(ctx context.Context, userID, id string) (core.Goal, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = $1 AND id = $2`+r.forUpdate(ctx), userID, id)
	g, err := scanPgGoal(row)
	return g, mapPgErr(err, "goal", id)
}

func (r *PostgresRepository) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = $1 ORDER BY created_at, id`+r.forUpdate(ctx), userID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	out := make([]core.Goal, 0)
	for rows.Next() {
		g, err := scanPgGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateGoal(ctx context.Context, g core.Goal) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE goals SET name = $1, target_cents = $2, color = $3 WHERE user_id = $4 AND id = $5`,
		g.Name, g.Target.Cents, g.Color, g.UserID, g.ID)
	return pgAffected(tag, err, "goal", g.ID)
}

func (r *PostgresRepository) AdjustGoalCurrent(ctx context.Context, userID, id string, delta core.Money) (core.Goal, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`UPDATE goals SET current_cents = current_cents + $1 WHERE user_id = $2 AND id = $3
		 RETURNING `+goalColumns, delta.Cents, userID, id)
	g, err := scanPgGoal(row)
	return g, mapPgErr(err, "goal", id)
}

func (r *PostgresRepository) SetGoalCurrent(ctx context.Context, userID, id string, current core.Money) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE goals SET current_cents = $1 WHERE user_id = $2 AND id = $3`, current.Cents, userID, id)
	return pgAffected(tag, err, "goal", id)
}

func (r *PostgresRepository) DeleteGoal(ctx context.Context, userID, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM goals WHERE user_id = $1 AND id = $2`, userID, id)
	return pgAffected(tag, err, "goal", id)
}

func (r *PostgresRepository) InsertUser(ctx context.Context, u core.User) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	return mapPgErr(err, "user", u.Email)
}

func (r *PostgresRepository) getUserWhere(ctx context.Context, column, value string) (core.User, error) {
	var u core.User
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE `+column+` = $1`, value).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return core.User{}, mapPgErr(err, "user", value)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.getUserWhere(ctx, "id", id)
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUserWhere(ctx, "email", email)
}

func (r *PostgresRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id FROM users
		UNION SELECT user_id FROM transactions
		UNION SELECT user_id FROM goals
		ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

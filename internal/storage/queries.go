package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"financas/internal/core"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the SQLite statements of the ledger schema.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const timeLayout = time.RFC3339Nano

const transactionColumns = `id, user_id, description, category, value_cents, date, goal_id, created_at`

const goalColumns = `id, user_id, name, current_cents, target_cents, color, created_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t         core.Transaction
		value     int64
		date      string
		goalID    sql.NullString
		createdAt string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Description, &t.Category, &value, &date, &goalID, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: bad date %q", t.ID, date)
	}
	t.Value = core.Cents(value)
	t.Date = d
	t.GoalID = goalID.String
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return t, nil
}

func scanGoal(row scanner) (core.Goal, error) {
	var (
		g         core.Goal
		current   int64
		target    int64
		createdAt string
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.Name, &current, &target, &g.Color, &createdAt); err != nil {
		return core.Goal{}, err
	}
	g.Current = core.Cents(current)
	g.Target = core.Cents(target)
	g.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return g, nil
}

func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Description, t.Category, t.Value.Cents, t.Date.String(), nullString(t.GoalID), t.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (q *Queries) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	return scanTransaction(row)
}

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET description = ?, category = ?, value_cents = ?, date = ?, goal_id = ?
		 WHERE user_id = ? AND id = ?`,
		t.Description, t.Category, t.Value.Cents, t.Date.String(), nullString(t.GoalID), t.UserID, t.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteTransaction(ctx context.Context, userID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListTransactions pushes the year, month and goal criteria into SQL.
// Search is left to the caller.
func (q *Queries) ListTransactions(ctx context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []interface{}{userID}
	)
	if f.Year > 0 {
		prefix := fmt.Sprintf("%04d-", f.Year)
		if f.Month > 0 {
			prefix += fmt.Sprintf("%02d-", f.Month)
		}
		where = append(where, "date LIKE ?")
		args = append(args, prefix+"%")
	}
	if f.GoalID != "" {
		where = append(where, "goal_id = ?")
		args = append(args, f.GoalID)
	}
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE `+strings.Join(where, " AND ")+
			` ORDER BY date DESC, created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) UnlinkGoal(ctx context.Context, userID, goalID string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET goal_id = NULL WHERE user_id = ? AND goal_id = ?`, userID, goalID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) CreateGoal(ctx context.Context, g core.Goal) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, g.Current.Cents, g.Target.Cents, g.Color, g.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (q *Queries) GetGoal(ctx context.Context, userID, id string) (core.Goal, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? AND id = ?`, userID, id)
	return scanGoal(row)
}

func (q *Queries) ListGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.Goal, 0)
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateGoal(ctx context.Context, g core.Goal) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE goals SET name = ?, target_cents = ?, color = ? WHERE user_id = ? AND id = ?`,
		g.Name, g.Target.Cents, g.Color, g.UserID, g.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) AdjustGoalCurrent(ctx context.Context, userID, id string, delta int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE goals SET current_cents = current_cents + ? WHERE user_id = ? AND id = ?`, delta, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) SetGoalCurrent(ctx context.Context, userID, id string, current int64) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE goals SET current_cents = ? WHERE user_id = ? AND id = ?`, current, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteGoal(ctx context.Context, userID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM goals WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) CreateUser(ctx context.Context, u core.User) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (q *Queries) getUserWhere(ctx context.Context, column, value string) (core.User, error) {
	var (
		u         core.User
		createdAt string
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE `+column+` = ?`, value).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if err != nil {
		return core.User{}, err
	}
	u.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return u, nil
}

func (q *Queries) GetUser(ctx context.Context, id string) (core.User, error) {
	return q.getUserWhere(ctx, "id", id)
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return q.getUserWhere(ctx, "email", email)
}

func (q *Queries) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM users
		UNION SELECT user_id FROM transactions
		UNION SELECT user_id FROM goals
		ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

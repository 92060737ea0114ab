package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"financas/internal/core"
	"financas/internal/ledger"
)

var _ ledger.Store = (*Store)(nil)
var _ ledger.UserLister = (*Store)(nil)

func TestTransactionsAreScopedToUser(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx := core.Transaction{ID: "t1", UserID: "alice", Description: "x", Value: core.Cents(100), Date: core.NewDate(2025, 1, 1)}
	if err := s.InsertTransaction(ctx, tx); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertTransaction(ctx, tx); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate insert should conflict, got %v", err)
	}
	if _, err := s.GetTransaction(ctx, "bob", "t1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("other user must not see t1, got %v", err)
	}
	if err := s.DeleteTransaction(ctx, "bob", "t1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("other user must not delete t1, got %v", err)
	}
	got, err := s.ListTransactions(ctx, "alice", core.TransactionFilter{})
	if err != nil || len(got) != 1 {
		t.Fatalf("expected 1 transaction, got %d (err=%v)", len(got), err)
	}
}

func TestGoalCurrentOperations(t *testing.T) {
	ctx := context.Background()
	s := New()
	g := core.Goal{ID: "g1", UserID: "alice", Name: "Viagem", Target: core.Cents(1000), Color: "#fff"}
	if err := s.InsertGoal(ctx, g); err != nil {
		t.Fatalf("insert goal: %v", err)
	}

	updated, err := s.AdjustGoalCurrent(ctx, "alice", "g1", core.Cents(250))
	if err != nil || updated.Current.Cents != 250 {
		t.Fatalf("adjust: current=%d err=%v", updated.Current.Cents, err)
	}
	if _, err := s.AdjustGoalCurrent(ctx, "bob", "g1", core.Cents(1)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("adjust by other user should fail, got %v", err)
	}

	// UpdateGoal must not overwrite current.
	g.Name = "Europa"
	g.Current = core.Cents(999999)
	if err := s.UpdateGoal(ctx, g); err != nil {
		t.Fatalf("update goal: %v", err)
	}
	got, _ := s.GetGoal(ctx, "alice", "g1")
	if got.Name != "Europa" || got.Current.Cents != 250 {
		t.Fatalf("unexpected goal after update: %+v", got)
	}

	if err := s.SetGoalCurrent(ctx, "alice", "g1", core.Cents(10)); err != nil {
		t.Fatalf("set current: %v", err)
	}
	got, _ = s.GetGoal(ctx, "alice", "g1")
	if got.Current.Cents != 10 {
		t.Fatalf("expected current 10, got %d", got.Current.Cents)
	}
}

func TestUnlinkGoal(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i, goalID := range []string{"g1", "g1", "g2", ""} {
		tx := core.Transaction{ID: string(rune('a' + i)), UserID: "alice", Description: "x", Date: core.NewDate(2025, 1, 1), GoalID: goalID}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	n, err := s.UnlinkGoal(ctx, "alice", "g1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 unlinked, got %d (err=%v)", n, err)
	}
	if n, _ := s.UnlinkGoal(ctx, "alice", ""); n != 0 {
		t.Fatalf("empty goal id must not match, got %d", n)
	}
	linked, _ := s.ListTransactions(ctx, "alice", core.TransactionFilter{GoalID: "g2"})
	if len(linked) != 1 {
		t.Fatalf("g2 link should survive, got %d", len(linked))
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := core.User{ID: "u1", Email: "ana@example.com", PasswordHash: []byte("hash")}
	if err := s.InsertUser(ctx, u); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if err := s.InsertUser(ctx, core.User{ID: "u2", Email: "ana@example.com"}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate email should conflict, got %v", err)
	}
	got, err := s.GetUserByEmail(ctx, "ana@example.com")
	if err != nil || got.ID != "u1" {
		t.Fatalf("lookup by email: %+v (err=%v)", got, err)
	}
	if _, err := s.GetUser(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "snapshot.json")

	s, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("open missing snapshot: %v", err)
	}
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	_ = s.InsertUser(ctx, core.User{ID: "u1", Email: "ana@example.com", PasswordHash: []byte("$2a$hash"), CreatedAt: created})
	_ = s.InsertGoal(ctx, core.Goal{ID: "g1", UserID: "u1", Name: "Casa", Current: core.Cents(-500), Target: core.Cents(100000), Color: "#123456", CreatedAt: created})
	_ = s.InsertTransaction(ctx, core.Transaction{ID: "t1", UserID: "u1", Description: "Resgate", Category: "Investimento", Value: core.Cents(-500), Date: core.NewDate(2025, 2, 1), GoalID: "g1", CreatedAt: created})
	if err := s.Close(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should be renamed away")
	}

	loaded, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer loaded.Close()
	g, err := loaded.GetGoal(ctx, "u1", "g1")
	if err != nil || g.Current.Cents != -500 || g.Color != "#123456" {
		t.Fatalf("goal not restored: %+v (err=%v)", g, err)
	}
	tx, err := loaded.GetTransaction(ctx, "u1", "t1")
	if err != nil || tx.GoalID != "g1" || !tx.Date.Equal(core.NewDate(2025, 2, 1).Time) {
		t.Fatalf("transaction not restored: %+v (err=%v)", tx, err)
	}
	u, err := loaded.GetUserByEmail(ctx, "ana@example.com")
	if err != nil || string(u.PasswordHash) != "$2a$hash" {
		t.Fatalf("user not restored: %+v (err=%v)", u, err)
	}
	ids, _ := loaded.ListUserIDs(ctx)
	if len(ids) != 1 || ids[0] != "u1" {
		t.Fatalf("unexpected user ids %v", ids)
	}
}

func TestNewFromFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFile(path); err == nil {
		t.Fatalf("expected decode error")
	}
}

func readSnapshot(t *testing.T, path string) snapshot {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestSnapshotWrittenOnEveryWrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	s, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.InsertGoal(ctx, core.Goal{ID: "g1", UserID: "u1", Name: "Casa", Target: core.Cents(1000)}); err != nil {
		t.Fatalf("insert goal: %v", err)
	}
	if _, err := s.AdjustGoalCurrent(ctx, "u1", "g1", core.Cents(40)); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	// No Close: a crash here must not lose the writes above.
	snap := readSnapshot(t, path)
	if len(snap.Goals) != 1 || snap.Goals[0].Current.Cents != 40 {
		t.Fatalf("snapshot not current: %+v", snap.Goals)
	}
}

func TestSnapshotLockedWhileOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	first, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := NewFromFile(path); !errors.Is(err, ErrSnapshotLocked) {
		t.Fatalf("second open should fail with ErrSnapshotLocked, got %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	second, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	second.Close()
}

func TestNewFromFileReleasesLockOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFromFile(path); err == nil || errors.Is(err, ErrSnapshotLocked) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if _, err := NewFromFile(path); err == nil || errors.Is(err, ErrSnapshotLocked) {
		t.Fatalf("lock leaked by failed open: %v", err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	s, err := NewFromFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.InsertGoal(ctx, core.Goal{ID: "g1", UserID: "u1", Name: "Casa", Target: core.Cents(1000)}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err = s.InTx(ctx, func(ctx context.Context) error {
		tx := core.Transaction{ID: "t1", UserID: "u1", Description: "x", Value: core.Cents(70), Date: core.NewDate(2025, 1, 1), GoalID: "g1"}
		if err := s.InsertTransaction(ctx, tx); err != nil {
			return err
		}
		// Nested calls join the outer transaction.
		return s.InTx(ctx, func(ctx context.Context) error {
			if _, err := s.AdjustGoalCurrent(ctx, "u1", "g1", tx.Value); err != nil {
				return err
			}
			return boom
		})
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetTransaction(ctx, "u1", "t1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("insert should be rolled back, got %v", err)
	}
	g, _ := s.GetGoal(ctx, "u1", "g1")
	if g.Current.Cents != 0 {
		t.Fatalf("adjustment should be rolled back, current=%d", g.Current.Cents)
	}
	snap := readSnapshot(t, path)
	if len(snap.Transactions) != 0 || snap.Goals[0].Current.Cents != 0 {
		t.Fatalf("snapshot holds rolled back writes: %+v", snap)
	}
}

func TestInTxSerializesTransactions(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.InsertGoal(ctx, core.Goal{ID: "g1", UserID: "u1", Name: "Casa", Target: core.Cents(1000)}); err != nil {
		t.Fatal(err)
	}

	// Each transaction reads current and writes it back incremented; any
	// overlap would lose an increment.
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InTx(ctx, func(ctx context.Context) error {
				g, err := s.GetGoal(ctx, "u1", "g1")
				if err != nil {
					return err
				}
				return s.SetGoalCurrent(ctx, "u1", "g1", g.Current.Add(core.Cents(1)))
			})
		}()
	}
	wg.Wait()
	g, _ := s.GetGoal(ctx, "u1", "g1")
	if g.Current.Cents != 50 {
		t.Fatalf("expected 50 serialized increments, got %d", g.Current.Cents)
	}
}

// Package memory is a process-local store for users, transactions and
// goals, optionally persisted to a JSON snapshot file.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"financas/internal/core"
)

// ErrSnapshotLocked is returned by NewFromFile when another store holds
// the snapshot.
var ErrSnapshotLocked = errors.New("snapshot is in use by another store")

type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	// saveMu orders snapshot writes so an older state never replaces a
	// newer one.
	saveMu sync.Mutex
	inTx   bool

	path string
	lock *flock.Flock

	users        map[string]core.User
	transactions map[string]core.Transaction
	goals        map[string]core.Goal
}

type txKey struct{}

// snapshot is the on-disk layout. The keys match the storage keys used by
// the web client's offline mode so snapshots can be exchanged.
type snapshot struct {
	Goals        []core.Goal        `json:"finance-goals"`
	Transactions []core.Transaction `json:"finance-transactions"`
	Users        []core.User        `json:"users"`
}

func New() *Store {
	return &Store{
		users:        make(map[string]core.User),
		transactions: make(map[string]core.Transaction),
		goals:        make(map[string]core.Goal),
	}
}

// NewFromFile returns a store backed by the snapshot at path. A missing
// file yields an empty store. Every write is saved to path right away.
//
// The store holds an exclusive lock on path+".lock" until Close, so a
// second process (or store) opening the same snapshot fails with
// ErrSnapshotLocked instead of overwriting it.
func NewFromFile(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock snapshot: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", path, ErrSnapshotLocked)
	}

	s, err := load(path)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	s.path = path
	s.lock = lock
	return s, nil
}

func load(path string) (*Store, error) {
	s := New()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for _, u := range snap.Users {
		s.users[u.ID] = u
	}
	for _, t := range snap.Transactions {
		s.transactions[t.ID] = t
	}
	for _, g := range snap.Goals {
		s.goals[g.ID] = g
	}
	return s, nil
}

// Save writes the snapshot atomically. It is a no-op for stores created
// with New.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	snap := snapshot{
		Goals:        make([]core.Goal, 0, len(s.goals)),
		Transactions: make([]core.Transaction, 0, len(s.transactions)),
		Users:        make([]core.User, 0, len(s.users)),
	}
	for _, g := range s.goals {
		snap.Goals = append(snap.Goals, g)
	}
	for _, t := range s.transactions {
		snap.Transactions = append(snap.Transactions, t)
	}
	for _, u := range s.users {
		snap.Users = append(snap.Users, u)
	}
	s.mu.Unlock()

	sort.Slice(snap.Goals, func(i, j int) bool { return snap.Goals[i].ID < snap.Goals[j].ID })
	sort.Slice(snap.Transactions, func(i, j int) bool { return snap.Transactions[i].ID < snap.Transactions[j].ID })
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Close saves the snapshot and releases its lock.
func (s *Store) Close() error {
	err := s.Save()
	if s.lock != nil {
		if uerr := s.lock.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("unlock snapshot: %w", uerr)
		}
	}
	return err
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

// InTx serializes fn against every other InTx call on s. Transactions and
// goals written by fn are restored when it fails; the snapshot is saved
// once fn is done.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	transactions := maps.Clone(s.transactions)
	goals := maps.Clone(s.goals)
	s.inTx = true
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, s))

	s.mu.Lock()
	s.inTx = false
	if err != nil {
		s.transactions = transactions
		s.goals = goals
	}
	s.mu.Unlock()

	if saveErr := s.Save(); err == nil && saveErr != nil {
		return saveErr
	}
	return err
}

// write runs fn under the lock and then saves, unless an InTx in progress
// will save instead.
func (s *Store) write(fn func() error) error {
	s.mu.Lock()
	err := fn()
	deferred := s.inTx
	s.mu.Unlock()
	if err != nil || deferred {
		return err
	}
	return s.Save()
}

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) error {
	return s.write(func() error {
		if _, exists := s.transactions[t.ID]; exists {
			return fmt.Errorf("transaction %q: %w", t.ID, core.ErrConflict)
		}
		s.transactions[t.ID] = t
		return nil
	})
}

func (s *Store) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok || t.UserID != userID {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) error {
	return s.write(func() error {
		cur, ok := s.transactions[t.ID]
		if !ok || cur.UserID != t.UserID {
			return core.NotFound("transaction", t.ID)
		}
		t.CreatedAt = cur.CreatedAt
		s.transactions[t.ID] = t
		return nil
	})
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	return s.write(func() error {
		t, ok := s.transactions[id]
		if !ok || t.UserID != userID {
			return core.NotFound("transaction", id)
		}
		delete(s.transactions, id)
		return nil
	})
}

func (s *Store) ListTransactions(_ context.Context, userID string, f core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0)
	for _, t := range s.transactions {
		if t.UserID == userID && f.Matches(t) {
			out = append(out, t)
		}
	}
	core.SortNewestFirst(out)
	return out, nil
}

func (s *Store) UnlinkGoal(_ context.Context, userID, goalID string) (int64, error) {
	if goalID == "" {
		return 0, nil
	}
	var n int64
	err := s.write(func() error {
		for id, t := range s.transactions {
			if t.UserID == userID && t.GoalID == goalID {
				t.GoalID = ""
				s.transactions[id] = t
				n++
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) InsertGoal(_ context.Context, g core.Goal) error {
	return s.write(func() error {
		if _, exists := s.goals[g.ID]; exists {
			return fmt.Errorf("goal %q: %w", g.ID, core.ErrConflict)
		}
		s.goals[g.ID] = g
		return nil
	})
}

func (s *Store) GetGoal(_ context.Context, userID, id string) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.UserID != userID {
		return core.Goal{}, core.NotFound("goal", id)
	}
	return g, nil
}

func (s *Store) ListGoals(_ context.Context, userID string) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Goal, 0)
	for _, g := range s.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateGoal(_ context.Context, g core.Goal) error {
	return s.write(func() error {
		cur, ok := s.goals[g.ID]
		if !ok || cur.UserID != g.UserID {
			return core.NotFound("goal", g.ID)
		}
		cur.Name = g.Name
		cur.Target = g.Target
		cur.Color = g.Color
		s.goals[g.ID] = cur
		return nil
	})
}

func (s *Store) AdjustGoalCurrent(_ context.Context, userID, id string, delta core.Money) (core.Goal, error) {
	var g core.Goal
	err := s.write(func() error {
		var ok bool
		g, ok = s.goals[id]
		if !ok || g.UserID != userID {
			return core.NotFound("goal", id)
		}
		g.Current = g.Current.Add(delta)
		s.goals[id] = g
		return nil
	})
	if err != nil {
		return core.Goal{}, err
	}
	return g, nil
}

func (s *Store) SetGoalCurrent(_ context.Context, userID, id string, current core.Money) error {
	return s.write(func() error {
		g, ok := s.goals[id]
		if !ok || g.UserID != userID {
			return core.NotFound("goal", id)
		}
		g.Current = current
		s.goals[id] = g
		return nil
	})
}

func (s *Store) DeleteGoal(_ context.Context, userID, id string) error {
	return s.write(func() error {
		g, ok := s.goals[id]
		if !ok || g.UserID != userID {
			return core.NotFound("goal", id)
		}
		delete(s.goals, id)
		return nil
	})
}

func (s *Store) InsertUser(_ context.Context, u core.User) error {
	return s.write(func() error {
		for _, existing := range s.users {
			if existing.Email == u.Email {
				return fmt.Errorf("user %q: %w", u.Email, core.ErrConflict)
			}
		}
		s.users[u.ID] = u
		return nil
	})
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.NotFound("user", id)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, core.NotFound("user", email)
}

func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(s.users))
	for id := range s.users {
		seen[id] = struct{}{}
	}
	// Snapshots imported from the web client carry data without accounts.
	for _, t := range s.transactions {
		seen[t.UserID] = struct{}{}
	}
	for _, g := range s.goals {
		seen[g.UserID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

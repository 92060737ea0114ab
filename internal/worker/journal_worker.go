// Package worker holds the background processes: the journal consumer and
// the scheduled ledger reconciler.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"financas/internal/amqp"
	"financas/internal/cache"
	"financas/internal/log"
	"financas/internal/sheets"
)

// JournalStats counts what the journal worker did with its messages.
type JournalStats struct {
	Written    int64 `json:"written"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// JournalWorker mirrors ledger event messages into a journal. Message ids
// already written are remembered for a while so redeliveries are skipped.
type JournalWorker struct {
	journal sheets.JournalWriter
	seen    *cache.LRUCache[string]
	logger  *log.Logger

	written    int64
	duplicates int64
	failed     int64
}

func NewJournalWorker(journal sheets.JournalWriter, logger *log.Logger) *JournalWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &JournalWorker{
		journal: journal,
		seen:    cache.NewLRUCache[string](10000, 24*time.Hour),
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// Cache exposes the dedupe cache so it can be registered for cleanup.
func (w *JournalWorker) Cache() *cache.LRUCache[string] {
	return w.seen
}

// HandleMessage writes msg to the journal. A returned error makes the
// consumer requeue the delivery.
func (w *JournalWorker) HandleMessage(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if ref, ok := w.seen.Get(msg.ID); ok {
		atomic.AddInt64(&w.duplicates, 1)
		w.logger.DebugContext(ctx, "Skipping duplicate message",
			"message_id", msg.ID,
			"row_ref", ref)
		return nil
	}

	ref, err := w.journal.AppendEvent(ctx, msg.Event)
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		return fmt.Errorf("append %s to journal: %w", msg.Event.Type, err)
	}
	w.seen.Set(msg.ID, ref)
	atomic.AddInt64(&w.written, 1)

	w.logger.InfoContext(ctx, "Journaled ledger event",
		log.FieldEventType, msg.Event.Type,
		log.FieldUserID, msg.Event.UserID,
		"message_id", msg.ID,
		"row_ref", ref)
	return nil
}

func (w *JournalWorker) Stats() JournalStats {
	return JournalStats{
		Written:    atomic.LoadInt64(&w.written),
		Duplicates: atomic.LoadInt64(&w.duplicates),
		Failed:     atomic.LoadInt64(&w.failed),
	}
}

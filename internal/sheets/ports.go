// Package sheets mirrors ledger events into an append-only journal.
package sheets

import (
	"context"

	"financas/internal/core"
	"financas/internal/log"
)

// JournalWriter appends one ledger event to an external journal and returns
// a reference to the written row.
type JournalWriter interface {
	AppendEvent(ctx context.Context, ev core.LedgerEvent) (rowRef string, err error)
}

// LogJournal writes events to the structured log. It is used when no
// spreadsheet is configured.
type LogJournal struct {
	logger *log.Logger
}

var _ JournalWriter = (*LogJournal)(nil)

func NewLogJournal(logger *log.Logger) *LogJournal {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LogJournal{logger: logger.WithComponent(log.ComponentSheets)}
}

func (j *LogJournal) AppendEvent(ctx context.Context, ev core.LedgerEvent) (string, error) {
	args := []any{
		log.FieldEventType, ev.Type,
		log.FieldUserID, ev.UserID,
		log.FieldOperation, log.OpAppend,
	}
	if ev.Transaction != nil {
		args = append(args,
			log.FieldTransactionID, ev.Transaction.ID,
			log.FieldValueCents, ev.Transaction.Value.Cents)
	}
	if ev.Goal != nil {
		args = append(args,
			log.FieldGoalID, ev.Goal.ID,
			log.FieldCurrentCents, ev.Goal.Current.Cents)
	}
	j.logger.InfoContext(ctx, "Journal entry", args...)
	return "log:" + string(ev.Type), nil
}

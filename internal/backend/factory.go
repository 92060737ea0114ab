package backend

import (
	"context"
	"errors"
	"fmt"

	"financas/internal/amqp"
	"financas/internal/log"
	"financas/internal/sheets"
	gsheet "financas/internal/sheets/google"
	"financas/internal/storage"
	"financas/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend opens the store, then the optional publisher and journal.
// A broker or spreadsheet that cannot be reached is logged and skipped.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(ctx, config)
	if err != nil {
		return nil, err
	}

	res := &BackendResult{Store: store}
	closers := []func() error{store.Close}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events",
				log.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			// Publishing runs off the request path; ledger mutations only
			// enqueue.
			async := amqp.NewAsyncPublisher(client, 0, f.logger)
			res.Publisher = async
			closers = append(closers, client.Close, async.Close)
		}
	}

	res.Journal = f.createJournal(ctx, config)

	res.Cleanup = func() error {
		var errs []error
		// reverse order: queue drained before the client, publisher before store
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return res, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config) (Store, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return repo, nil

	case PostgresBackend:
		repo, err := storage.NewPostgresRepository(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
		return repo, nil

	case MemoryBackend:
		if config.MemorySnapshotPath == "" {
			f.logger.Info("Initialized memory backend without snapshot")
			return memory.New(), nil
		}
		store, err := memory.NewFromFile(config.MemorySnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load memory snapshot: %w", err)
		}
		f.logger.Info("Initialized memory backend", "snapshot", config.MemorySnapshotPath)
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createJournal(ctx context.Context, config Config) sheets.JournalWriter {
	if config.GoogleSpreadsheetID == "" {
		return sheets.NewLogJournal(f.logger)
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:      config.GoogleSpreadsheetID,
		JournalSheet:       config.GoogleJournalSheet,
		ServiceAccountJSON: config.GoogleServiceAccountJSON,
		ServiceAccountFile: config.GoogleServiceAccountFile,
		OAuthClientJSON:    config.GoogleOAuthClientJSON,
		OAuthClientFile:    config.GoogleOAuthClientFile,
		OAuthTokenJSON:     config.GoogleOAuthTokenJSON,
		OAuthTokenFile:     config.GoogleOAuthTokenFile,
	}, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize Google Sheets journal, logging events instead",
			log.FieldError, err)
		return sheets.NewLogJournal(f.logger)
	}
	f.logger.Info("Initialized Google Sheets journal", "spreadsheet_id", config.GoogleSpreadsheetID)
	return client
}

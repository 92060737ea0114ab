package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"financas/internal/core"
	"financas/internal/log"
)

const (
	defaultQueueSize = 256
	drainTimeout     = 10 * time.Second
)

var (
	ErrQueueFull       = errors.New("event queue is full")
	ErrPublisherClosed = errors.New("publisher is closed")
)

// EventPublisher is the sink an AsyncPublisher forwards to, usually a
// *Client.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error
}

// AsyncPublisher queues ledger events and hands them to the next publisher
// from one background goroutine. PublishLedgerEvent never waits on the
// broker: it enqueues or fails with ErrQueueFull.
type AsyncPublisher struct {
	next   EventPublisher
	logger *log.Logger
	queue  chan core.LedgerEvent

	mu     sync.RWMutex
	closed bool

	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	drainTimeout time.Duration

	dropped atomic.Int64
}

// NewAsyncPublisher starts the forwarding goroutine. A size of zero or
// less uses the default queue size.
func NewAsyncPublisher(next EventPublisher, size int, logger *log.Logger) *AsyncPublisher {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &AsyncPublisher{
		next:         next,
		logger:       logger.WithComponent(log.ComponentAMQP),
		queue:        make(chan core.LedgerEvent, size),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		drainTimeout: drainTimeout,
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		if err := p.next.PublishLedgerEvent(p.ctx, ev); err != nil {
			p.logger.Warn("Dropping ledger event after failed publish",
				log.FieldEventType, string(ev.Type),
				log.FieldUserID, ev.UserID,
				log.FieldError, err)
		}
	}
}

// PublishLedgerEvent enqueues ev. The caller's context is not used for the
// publish itself, which outlives the request that caused it.
func (p *AsyncPublisher) PublishLedgerEvent(_ context.Context, ev core.LedgerEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("publish %s: %w", ev.Type, ErrPublisherClosed)
	}
	select {
	case p.queue <- ev:
		return nil
	default:
		p.dropped.Add(1)
		return fmt.Errorf("publish %s: %w", ev.Type, ErrQueueFull)
	}
}

// Dropped returns how many events were refused because the queue was full.
func (p *AsyncPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting events and waits for the queued ones to be
// published. Once the drain timeout passes, the remaining ones are
// abandoned.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	defer p.cancel()
	select {
	case <-p.done:
		return nil
	case <-time.After(p.drainTimeout):
	}
	p.cancel()
	<-p.done
	return fmt.Errorf("event queue not drained within %s", p.drainTimeout)
}

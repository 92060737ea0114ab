package amqp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"financas/internal/core"
	"financas/internal/log"
)

// stalledPublisher blocks every publish until release is closed or the
// publish context ends.
type stalledPublisher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	events []core.LedgerEvent
	err    error
}

func newStalledPublisher() *stalledPublisher {
	return &stalledPublisher{started: make(chan struct{}), release: make(chan struct{})}
}

func (p *stalledPublisher) PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error {
	p.once.Do(func() { close(p.started) })
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *stalledPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestAsyncPublisherDoesNotWaitForBroker(t *testing.T) {
	next := newStalledPublisher()
	p := NewAsyncPublisher(next, 2, log.Discard())
	ctx := context.Background()
	ev := core.NewLedgerEvent(core.EventTransactionCreated, "alice")

	start := time.Now()
	if err := p.PublishLedgerEvent(ctx, ev); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	<-next.started
	for i := 0; i < 2; i++ {
		if err := p.PublishLedgerEvent(ctx, ev); err != nil {
			t.Fatalf("queued publish %d: %v", i, err)
		}
	}
	if err := p.PublishLedgerEvent(ctx, ev); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("publishing waited on the broker for %v", elapsed)
	}
	if p.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", p.Dropped())
	}

	close(next.release)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := next.count(); got != 3 {
		t.Fatalf("expected 3 forwarded events, got %d", got)
	}
	if err := p.PublishLedgerEvent(ctx, ev); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed after close, got %v", err)
	}
}

func TestAsyncPublisherSwallowsBrokerErrors(t *testing.T) {
	next := newStalledPublisher()
	next.err = errors.New("channel closed")
	close(next.release)
	p := NewAsyncPublisher(next, 0, log.Discard())

	for i := 0; i < 5; i++ {
		if err := p.PublishLedgerEvent(context.Background(), core.NewLedgerEvent(core.EventGoalAdjusted, "alice")); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := next.count(); got != 5 {
		t.Fatalf("expected 5 attempts, got %d", got)
	}
}

func TestAsyncPublisherOverDisconnectedClient(t *testing.T) {
	// No channel: every attempt fails and the client backs off between
	// retries.
	client := newTestClient()
	p := NewAsyncPublisher(client, 4, log.Discard())
	p.drainTimeout = 50 * time.Millisecond

	start := time.Now()
	if err := p.PublishLedgerEvent(context.Background(), core.NewLedgerEvent(core.EventTransactionCreated, "alice")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("publish blocked on the broker for %v", elapsed)
	}
	if err := p.Close(); err == nil {
		t.Fatal("expected drain timeout while the client is retrying")
	}
}

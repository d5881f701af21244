package audit

import (
	"context"
	"log/slog"
)

// AsyncPublisher decouples pipeline runs from a slow trail backend. Publish
// queues and returns immediately; a worker goroutine drains the queue into
// the wrapped publisher. When the queue is full the event is dropped, audit
// being fail-open.
type AsyncPublisher struct {
	inner  Publisher
	inbox  chan Event
	logger *slog.Logger
}

func NewAsyncPublisher(inner Publisher, buffer int, logger *slog.Logger) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &AsyncPublisher{
		inner:  inner,
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

func (p *AsyncPublisher) Publish(ctx context.Context, event Event) error {
	select {
	case p.inbox <- event:
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit queue full, event dropped",
				"loan_id", event.LoanID, "action", event.Action)
		}
	}
	return nil
}

// Run drains the queue until ctx is cancelled, then flushes whatever is
// still queued. Backend errors are logged and the worker keeps going.
func (p *AsyncPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return ctx.Err()
		case event := <-p.inbox:
			p.forward(ctx, event)
		}
	}
}

func (p *AsyncPublisher) flush() {
	for {
		select {
		case event := <-p.inbox:
			p.forward(context.Background(), event)
		default:
			return
		}
	}
}

func (p *AsyncPublisher) forward(ctx context.Context, event Event) {
	if err := p.inner.Publish(ctx, event); err != nil && p.logger != nil {
		p.logger.WarnContext(ctx, "audit publish failed",
			"loan_id", event.LoanID, "action", event.Action, "error", err)
	}
}

func (p *AsyncPublisher) Close() error {
	return p.inner.Close()
}

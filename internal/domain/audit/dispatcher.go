package audit

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultDispatchBuffer is the dispatcher's channel capacity.
const DefaultDispatchBuffer = 256

// Dispatcher decouples audit writes from the request path. A business
// operation commits first, then its event is enqueued; a single worker
// goroutine persists events in order. Enqueue never blocks the caller,
// and write failures stay inside RecordSafe.
type Dispatcher struct {
	svc    *Service
	events chan Event
	logger zerolog.Logger

	once sync.Once
	done chan struct{}
}

// NewDispatcher creates a Dispatcher and starts its worker. A bufferSize
// of zero or less uses DefaultDispatchBuffer.
func NewDispatcher(svc *Service, bufferSize int, logger zerolog.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultDispatchBuffer
	}
	d := &Dispatcher{
		svc:    svc,
		events: make(chan Event, bufferSize),
		logger: logger.With().Str("component", "audit-dispatcher").Logger(),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.events {
		d.svc.RecordSafe(context.Background(), ev)
	}
}

// Enqueue hands an event to the worker. It returns false, with a logged
// warning, if the buffer is full; the caller's operation proceeds
// regardless.
func (d *Dispatcher) Enqueue(ev Event) bool {
	select {
	case d.events <- ev:
		return true
	default:
		d.logger.Warn().
			Str("action", string(ev.Action)).
			Str("path", ev.Path).
			Msg("audit dispatch buffer full, event dropped")
		return false
	}
}

// Close stops accepting events and waits for the worker to drain the
// queue, or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.once.Do(func() { close(d.events) })
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

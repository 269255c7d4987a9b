package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultBufferSize = 256
	publishTimeout    = 5 * time.Second
)

// Dispatcher decouples event emission from publishing. Emit never blocks: when the buffer
// is full the event is dropped and counted.
type Dispatcher struct {
	pub     Publisher
	ch      chan Event
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewDispatcher(pub Publisher, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Dispatcher{pub: pub, ch: make(chan Event, bufferSize)}
}

func (d *Dispatcher) Emit(e Event) {
	select {
	case d.ch <- e:
	default:
		d.dropped.Add(1)
		log.Warn().
			Str("event_id", e.ID).
			Str("event_type", string(e.Type)).
			Str("match_id", e.MatchID).
			Msg("event buffer full, dropping event")
	}
}

// Run publishes buffered events until ctx is done, then flushes whatever is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case e := <-d.ch:
			d.publish(context.Background(), e)
		case <-ctx.Done():
			d.flush()
			return nil
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case e := <-d.ch:
			d.publish(context.Background(), e)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := d.pub.Publish(ctx, e); err != nil {
		d.failed.Add(1)
		log.Error().Err(err).
			Str("event_id", e.ID).
			Str("event_type", string(e.Type)).
			Msg("failed to publish event")
	}
}

func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) Failed() int64 {
	return d.failed.Load()
}

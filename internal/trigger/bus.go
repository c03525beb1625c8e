// Package trigger carries job trigger requests from their sources (cron
// timers, the HTTP API, the push webhook, the fallback poller) to the
// scheduler's runner over a bounded channel.
package trigger

import (
	"context"
	"errors"
	"time"

	"github.com/pagesched/pagesched/internal/domain"
)

var ErrBufferFull = errors.New("trigger buffer full")

const DefaultEmitTimeout = 5 * time.Second

// MetricsSink observes buffer occupancy. Implemented by the metrics package.
type MetricsSink interface {
	TriggerBufferUpdate(size, capacity int)
	TriggerEmitError()
}

// Bus is a buffered fan-in of trigger requests with a single consumer.
type Bus struct {
	ch          chan domain.TriggerRequest
	emitTimeout time.Duration
	metrics     MetricsSink
}

type Option func(*Bus)

func WithEmitTimeout(d time.Duration) Option {
	return func(b *Bus) { b.emitTimeout = d }
}

func WithMetrics(sink MetricsSink) Option {
	return func(b *Bus) { b.metrics = sink }
}

func NewBus(buffer int, opts ...Option) *Bus {
	b := &Bus{
		ch:          make(chan domain.TriggerRequest, buffer),
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.TriggerBufferUpdate(0, cap(b.ch))
	}
	return b
}

// Emit enqueues a trigger request. It returns ErrBufferFull when the buffer
// stays full past the emit timeout, so a wedged runner degrades to dropped
// triggers instead of blocked HTTP handlers.
func (b *Bus) Emit(ctx context.Context, req domain.TriggerRequest) error {
	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- req:
		if b.metrics != nil {
			b.metrics.TriggerBufferUpdate(len(b.ch), cap(b.ch))
		}
		return nil
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.TriggerEmitError()
		}
		return ErrBufferFull
	case <-ctx.Done():
		if b.metrics != nil {
			b.metrics.TriggerEmitError()
		}
		return ctx.Err()
	}
}

// Channel returns the receive side for the single runner.
func (b *Bus) Channel() <-chan domain.TriggerRequest {
	return b.ch
}

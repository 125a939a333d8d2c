// Package notify delivers breach notifications to the host UI.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spounge-ai/medvault/internal/infra/config"
	"golang.org/x/time/rate"
)

// Dispatcher hands breach events to a buffered channel the host drains.
// Notify never blocks: a throttled or overflowing event is counted and dropped.
type Dispatcher struct {
	events  chan domain.BreachEvent
	limiter Limiter
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool

	suppressed atomic.Int64
}

func NewDispatcher(cfg config.NotifyConfig, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithLimiter(cfg.BufferSize, newLimiter(cfg), logger)
}

func NewDispatcherWithLimiter(bufferSize int, limiter Limiter, logger *slog.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Dispatcher{
		events:  make(chan domain.BreachEvent, bufferSize),
		limiter: limiter,
		logger:  logger,
	}
}

func newLimiter(cfg config.NotifyConfig) Limiter {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return NewInMemoryRateLimiter(limit, burst)
}

// Notify reports whether ev was queued.
func (d *Dispatcher) Notify(ctx context.Context, ev domain.BreachEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	if d.limiter != nil && !d.limiter.Allow(string(ev.Breach.Type)) {
		d.suppressed.Add(1)
		d.logger.DebugContext(ctx, "breach notification throttled", "breach_id", ev.Breach.ID, "type", ev.Breach.Type)
		return false
	}

	select {
	case d.events <- ev:
		return true
	default:
		d.suppressed.Add(1)
		d.logger.WarnContext(ctx, "breach notification queue is full, event dropped", "breach_id", ev.Breach.ID, "type", ev.Breach.Type)
		return false
	}
}

// Events is the channel the host reads notifications from. It is closed by Close.
func (d *Dispatcher) Events() <-chan domain.BreachEvent {
	return d.events
}

// Suppressed counts events that were throttled or dropped.
func (d *Dispatcher) Suppressed() int64 {
	return d.suppressed.Load()
}

func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.events)
}

package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spounge-ai/medvault/pkg/execution"
	"github.com/spounge-ai/medvault/pkg/patterns/lifecycle"
)

// AsyncArchiverConfig holds the configuration for the asynchronous archiver.
type AsyncArchiverConfig struct {
	ChannelBufferSize int
	WorkerCount       int
	BatchSize         int
	BatchTimeout      time.Duration
	MaxRetries        int
	WriteTimeout      time.Duration
}

func (c *AsyncArchiverConfig) applyDefaults() {
	if c.ChannelBufferSize <= 0 {
		c.ChannelBufferSize = 1024
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// AsyncArchiver copies ledger entries into the long-term archive without
// blocking the caller. Entries are dropped, with a warning, when the queue is full.
type AsyncArchiver struct {
	logger  *slog.Logger
	archive domain.AuditArchive
	config  AsyncArchiverConfig

	mu           sync.RWMutex
	started      bool
	closed       bool
	eventChannel chan domain.AuditEntry
	waitGroup    sync.WaitGroup

	dropped atomic.Int64
	failed  atomic.Int64
}

var _ lifecycle.ManagedResource = (*AsyncArchiver)(nil)

func NewAsyncArchiver(logger *slog.Logger, archive domain.AuditArchive, config AsyncArchiverConfig) *AsyncArchiver {
	config.applyDefaults()
	return &AsyncArchiver{
		logger:       logger,
		archive:      archive,
		config:       config,
		eventChannel: make(chan domain.AuditEntry, config.ChannelBufferSize),
	}
}

// Start begins the worker goroutines that drain the queue.
func (a *AsyncArchiver) Start(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("archiver already stopped")
	}
	if a.started {
		return nil
	}
	a.started = true

	a.waitGroup.Add(a.config.WorkerCount)
	for i := 0; i < a.config.WorkerCount; i++ {
		go a.worker()
	}
	return nil
}

// Stop closes the queue and waits for queued entries to be written, or for ctx.
func (a *AsyncArchiver) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.eventChannel)
	started := a.started
	a.mu.Unlock()

	if !started {
		return nil
	}

	a.logger.Info("shutting down audit archiver")
	done := make(chan struct{})
	go func() {
		a.waitGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("audit archiver shut down successfully", "dropped", a.dropped.Load(), "failed", a.failed.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncArchiver) Health(_ context.Context) lifecycle.HealthStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return lifecycle.NotReady("stopped")
	}
	if !a.started {
		return lifecycle.NotReady("not started")
	}
	return lifecycle.Healthy()
}

// Enqueue queues entry for archiving. It never blocks.
func (a *AsyncArchiver) Enqueue(entry domain.AuditEntry) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}

	select {
	case a.eventChannel <- entry:
	default:
		a.dropped.Add(1)
		a.logger.Warn("audit archive queue is full, entry dropped", "action", entry.Action, "audit_id", entry.ID)
	}
}

// Dropped reports how many entries never reached the queue.
func (a *AsyncArchiver) Dropped() int64 { return a.dropped.Load() }

// Failed reports how many entries could not be written after retries.
func (a *AsyncArchiver) Failed() int64 { return a.failed.Load() }

func (a *AsyncArchiver) worker() {
	defer a.waitGroup.Done()

	ticker := time.NewTicker(a.config.BatchTimeout)
	defer ticker.Stop()

	batch := make([]domain.AuditEntry, 0, a.config.BatchSize)

	for {
		select {
		case entry, ok := <-a.eventChannel:
			if !ok {
				if len(batch) > 0 {
					a.writeBatch(batch)
				}
				return
			}
			batch = append(batch, entry)
			if len(batch) >= a.config.BatchSize {
				a.writeBatch(batch)
				batch = make([]domain.AuditEntry, 0, a.config.BatchSize)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.writeBatch(batch)
				batch = make([]domain.AuditEntry, 0, a.config.BatchSize)
			}
		}
	}
}

func (a *AsyncArchiver) writeBatch(batch []domain.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.WriteTimeout)
	defer cancel()

	_, err := execution.WithRetry(ctx, a.config.MaxRetries, 100*time.Millisecond, 2*time.Second, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.archive.CreateAuditEntriesBatch(ctx, batch)
	})
	if err != nil {
		a.failed.Add(int64(len(batch)))
		a.logger.Error("failed to archive audit entries", "error", err, "count", len(batch))
	}
}

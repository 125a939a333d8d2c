// Package wiring builds the medvault object graph from configuration. There is
// no global state: every component receives its collaborators explicitly.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spounge-ai/medvault/internal/anomaly"
	"github.com/spounge-ai/medvault/internal/compliance"
	"github.com/spounge-ai/medvault/internal/domain"
	"github.com/spounge-ai/medvault/internal/infra/audit"
	"github.com/spounge-ai/medvault/internal/infra/config"
	"github.com/spounge-ai/medvault/internal/infra/notify"
	"github.com/spounge-ai/medvault/internal/infra/persistence"
	"github.com/spounge-ai/medvault/internal/records"
	"github.com/spounge-ai/medvault/internal/service"
	"github.com/spounge-ai/medvault/internal/vault"
	"github.com/spounge-ai/medvault/pkg/execution"
	"github.com/spounge-ai/medvault/pkg/patterns/lifecycle"
)

const healthProbeInterval = 30 * time.Second

type Container struct {
	Config *config.Config
	Logger *slog.Logger

	TierA domain.Backend
	// TierB is nil when no secure tier is configured.
	TierB domain.Backend

	Vault       *vault.Vault
	Store       *records.Store
	Ledger      *compliance.Ledger
	Monitor     *anomaly.Monitor
	Notifier    *notify.Dispatcher
	Archiver    *audit.AsyncArchiver
	Credentials service.CredentialService
	Cases       service.CaseService

	pool          *pgxpool.Pool
	healthMonitor *persistence.ConnectionMonitor
	closers       []func() error

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// Option overrides a backend that would otherwise be built from config.
type Option func(*overrides)

type overrides struct {
	tierA      domain.Backend
	tierB      domain.Backend
	exportSink domain.Backend
	archive    domain.AuditArchive
}

func WithTierA(b domain.Backend) Option { return func(o *overrides) { o.tierA = b } }

func WithTierB(b domain.Backend) Option { return func(o *overrides) { o.tierB = b } }

func WithExportSink(b domain.Backend) Option { return func(o *overrides) { o.exportSink = b } }

func WithArchive(a domain.AuditArchive) Option { return func(o *overrides) { o.archive = a } }

// Build constructs every component. Nothing is loaded or initialized until Start.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("wiring needs a config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	var ov overrides
	for _, opt := range opts {
		opt(&ov)
	}

	c := &Container{Config: cfg, Logger: logger}
	if err := c.build(ctx, ov); err != nil {
		_ = c.close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, ov overrides) error {
	cfg := c.Config

	c.TierA = ov.tierA
	if c.TierA == nil {
		fs, err := persistence.NewFileStorage(cfg.Storage.Dir, c.Logger)
		if err != nil {
			return err
		}
		c.TierA = fs
	}

	tierB, err := c.provideTierB(ctx, ov)
	if err != nil {
		return err
	}
	if tierB != nil && cfg.Persistence.CircuitBreaker.Enabled {
		tierB = persistence.NewBreakerStorage(tierB, cfg.Persistence.CircuitBreaker.MaxFailures, cfg.Persistence.CircuitBreaker.ResetTimeout, c.Logger)
	}
	c.TierB = tierB

	archive, err := c.provideArchive(ctx, ov)
	if err != nil {
		return err
	}
	var archiver compliance.Archiver
	if archive != nil {
		c.Archiver = audit.NewAsyncArchiver(c.Logger, archive, audit.AsyncArchiverConfig{
			ChannelBufferSize: cfg.Archive.ChannelBufferSize,
			WorkerCount:       cfg.Archive.WorkerCount,
			BatchSize:         cfg.Archive.BatchSize,
			BatchTimeout:      cfg.Archive.BatchTimeout,
		})
		archiver = c.Archiver
	}

	exportSink, err := c.provideExportSink(ctx, ov)
	if err != nil {
		return err
	}

	c.Ledger, err = compliance.NewLedger(compliance.Options{
		Backend:      c.TierA,
		Cap:          cfg.Ledger.Cap,
		ActorID:      cfg.Ledger.ActorID,
		Privacy:      cfg.Privacy,
		Emitter:      audit.NewAuditLogger(c.Logger),
		Archiver:     archiver,
		History:      archive,
		ExportSink:   exportSink,
		ExportPrefix: cfg.Export.Prefix,
		Logger:       c.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build ledger: %w", err)
	}

	c.Notifier = notify.NewDispatcher(cfg.Notify, c.Logger)
	c.closers = append(c.closers, func() error { c.Notifier.Close(); return nil })

	c.Monitor, err = anomaly.NewMonitor(anomaly.Options{
		Ledger:   c.Ledger,
		Backend:  c.TierA,
		Notifier: c.Notifier,
		Config:   cfg.Monitor,
		Logger:   c.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build anomaly monitor: %w", err)
	}
	c.Ledger.Observe(c.Monitor)

	wrapper, err := c.provideWrapper(ctx)
	if err != nil {
		return err
	}
	keyBackends := []domain.Backend{c.TierA}
	if c.TierB != nil {
		keyBackends = []domain.Backend{c.TierB, c.TierA}
	}
	c.Vault, err = vault.New(vault.Options{
		KeyBackends: keyBackends,
		Wrapper:     wrapper,
		Validity: map[domain.Domain]time.Duration{
			domain.DomainCredentials: cfg.Vault.CredentialsValidity,
			domain.DomainMedical:     cfg.Vault.MedicalValidity,
		},
		Audit:  c.Ledger,
		Logger: c.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build vault: %w", err)
	}
	c.closers = append(c.closers, c.Vault.Close)

	c.Store, err = records.New(records.Options{
		Backend:              c.TierA,
		Vault:                c.Vault,
		Ledger:               c.Ledger,
		MigrationConcurrency: cfg.Migration.Concurrency,
		Logger:               c.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build record store: %w", err)
	}
	c.Vault.SetPurger(c.Store)
	c.Ledger.RegisterExportSource(c.Store)

	c.Credentials = service.NewCredentialService(c.Store, c.Ledger, cfg.Migration.LegacyName, c.Logger)
	c.Cases = service.NewCaseService(c.Store, c.Ledger, c.Logger)

	if hc, ok := c.TierB.(persistence.HealthChecker); ok {
		c.healthMonitor = persistence.NewConnectionMonitor(c.TierB.Name(), hc, persistence.LogAlerter{Logger: c.Logger})
	}
	return nil
}

// Start restores persisted state, initializes every domain key and starts the
// background workers. It must run once before the services are used.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return errors.New("container already stopped")
	}
	if c.started {
		return nil
	}

	if c.Archiver != nil {
		if err := c.Archiver.Start(ctx); err != nil {
			return fmt.Errorf("failed to start audit archiver: %w", err)
		}
	}
	if err := c.Ledger.Load(ctx); err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	if err := c.Monitor.Load(ctx); err != nil {
		return fmt.Errorf("failed to load breach list: %w", err)
	}

	timeout := c.Config.Vault.OperationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	for _, d := range domain.Domains {
		handle, err := execution.WithTimeout(ctx, timeout, func(ctx context.Context) (domain.KeyHandle, error) {
			return c.Vault.Initialize(ctx, d)
		})
		if err != nil {
			return fmt.Errorf("failed to initialize %s key: %w", d, err)
		}
		c.Logger.InfoContext(ctx, "domain key ready", "domain", d, "source", handle.Source, "fingerprint", handle.Fingerprint)
	}

	if _, err := c.Credentials.MigrateLegacy(ctx); err != nil {
		c.Logger.WarnContext(ctx, "legacy credential migration failed", "error", err)
	}
	if _, err := c.Ledger.PruneExpired(ctx); err != nil {
		c.Logger.WarnContext(ctx, "retention prune failed", "error", err)
	}

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	if c.healthMonitor != nil {
		go c.healthMonitor.Start(bgCtx, healthProbeInterval)
	}

	c.started = true
	return nil
}

// Stop drains the archiver and releases every resource. It is safe to call
// on a container that never started; a stopped container cannot be restarted.
func (c *Container) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	var errs []error
	if c.Archiver != nil {
		if err := c.Archiver.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("audit archiver: %w", err))
		}
	}
	c.started = false
	c.stopped = true
	if err := c.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Health reports whether the container is started. An unreachable Tier B
// leaves it ready but degraded.
func (c *Container) Health(ctx context.Context) lifecycle.HealthStatus {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return lifecycle.NotReady("not started")
	}

	components := map[string]lifecycle.HealthStatus{}
	if c.healthMonitor != nil {
		components["tierB"] = lifecycle.Healthy()
		if !c.healthMonitor.IsHealthy() {
			components["tierB"] = lifecycle.Degraded("unreachable, using local key tier")
		}
	}
	if c.Archiver != nil {
		components["archive"] = c.Archiver.Health(ctx)
	}
	return lifecycle.Aggregate(components)
}

var _ lifecycle.ManagedResource = (*Container)(nil)

func (c *Container) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
	return errors.Join(errs...)
}

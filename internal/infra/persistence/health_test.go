package persistence_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spounge-ai/medvault/internal/infra/persistence"
	"github.com/stretchr/testify/assert"
)

type toggleChecker struct{ err error }

func (c *toggleChecker) HealthCheck(context.Context) error { return c.err }

type recordingAlerter struct {
	mu     sync.Mutex
	levels []persistence.AlertLevel
}

func (r *recordingAlerter) SendAlert(level persistence.AlertLevel, _ string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, level)
}

func TestConnectionMonitorAlertsOnTransitions(t *testing.T) {
	ctx := context.Background()
	target := &toggleChecker{}
	alerter := &recordingAlerter{}
	mon := persistence.NewConnectionMonitor("postgres", target, alerter)

	assert.True(t, mon.Check(ctx))

	target.err = errors.New("down")
	assert.False(t, mon.Check(ctx))
	assert.False(t, mon.Check(ctx))
	assert.False(t, mon.IsHealthy())

	target.err = nil
	assert.True(t, mon.Check(ctx))

	assert.Equal(t, []persistence.AlertLevel{persistence.AlertLevelCritical, persistence.AlertLevelInfo}, alerter.levels)
}

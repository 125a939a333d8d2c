package persistence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type AlertLevel int

const (
	AlertLevelInfo AlertLevel = iota
	AlertLevelWarning
	AlertLevelCritical
)

func (l AlertLevel) String() string {
	switch l {
	case AlertLevelWarning:
		return "warning"
	case AlertLevelCritical:
		return "critical"
	default:
		return "info"
	}
}

// AlerterInterface defines a simple interface for sending alerts.
type AlerterInterface interface {
	SendAlert(level AlertLevel, message string, err error)
}

// LogAlerter reports alerts through slog.
type LogAlerter struct {
	Logger *slog.Logger
}

func (a LogAlerter) SendAlert(level AlertLevel, message string, err error) {
	lvl := slog.LevelInfo
	if level >= AlertLevelWarning {
		lvl = slog.LevelWarn
	}
	if level == AlertLevelCritical {
		lvl = slog.LevelError
	}
	attrs := []any{"alert_level", level.String()}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	a.Logger.Log(context.Background(), lvl, message, attrs...)
}

// ConnectionMonitor periodically probes a Tier B backend and alerts on
// healthy/unhealthy transitions.
type ConnectionMonitor struct {
	name      string
	target    HealthChecker
	alerter   AlerterInterface
	mu        sync.RWMutex
	isHealthy bool
}

func NewConnectionMonitor(name string, target HealthChecker, alerter AlerterInterface) *ConnectionMonitor {
	return &ConnectionMonitor{
		name:      name,
		target:    target,
		alerter:   alerter,
		isHealthy: true,
	}
}

func (cm *ConnectionMonitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.Check(ctx)
		}
	}
}

// Check runs one probe and returns the resulting health.
func (cm *ConnectionMonitor) Check(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := cm.target.HealthCheck(checkCtx)

	cm.mu.Lock()
	defer cm.mu.Unlock()

	switch {
	case err != nil && cm.isHealthy:
		cm.isHealthy = false
		if cm.alerter != nil {
			cm.alerter.SendAlert(AlertLevelCritical, cm.name+" backend unhealthy", err)
		}
	case err == nil && !cm.isHealthy:
		cm.isHealthy = true
		if cm.alerter != nil {
			cm.alerter.SendAlert(AlertLevelInfo, cm.name+" backend recovered", nil)
		}
	}
	return cm.isHealthy
}

func (cm *ConnectionMonitor) IsHealthy() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.isHealthy
}

package lifecycle

import (
	"context"
	"sort"
	"strings"
)

// HealthStatus is a component's self-reported state. A degraded component is
// still ready but runs on a fallback.
type HealthStatus struct {
	Ready    bool   `json:"ready"`
	Degraded bool   `json:"degraded,omitempty"`
	Message  string `json:"message,omitempty"`
}

func Healthy() HealthStatus { return HealthStatus{Ready: true} }

func NotReady(msg string) HealthStatus { return HealthStatus{Message: msg} }

func Degraded(msg string) HealthStatus {
	return HealthStatus{Ready: true, Degraded: true, Message: msg}
}

// ManagedResource is a component the container starts and stops. Start and
// Stop must tolerate repeated calls.
type ManagedResource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) HealthStatus
}

// Aggregate folds named component states into one. It is ready only when every
// component is ready, and the message lists each unhealthy component.
func Aggregate(components map[string]HealthStatus) HealthStatus {
	out := Healthy()
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	var msgs []string
	for _, name := range names {
		s := components[name]
		if !s.Ready {
			out.Ready = false
		}
		if s.Degraded {
			out.Degraded = true
		}
		if !s.Ready || s.Degraded {
			msg := name
			if s.Message != "" {
				msg += ": " + s.Message
			}
			msgs = append(msgs, msg)
		}
	}
	out.Message = strings.Join(msgs, "; ")
	return out
}

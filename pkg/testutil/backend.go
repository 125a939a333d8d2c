// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/spounge-ai/medvault/internal/domain"
)

var ErrInjected = errors.New("injected backend failure")

// FaultyBackend wraps a Backend and fails selected operations on demand.
type FaultyBackend struct {
	domain.Backend
	name string

	FailGet    atomic.Bool
	FailPut    atomic.Bool
	FailDelete atomic.Bool
	FailList   atomic.Bool

	mu    sync.Mutex
	calls map[string]int
}

func NewFaultyBackend(name string, inner domain.Backend) *FaultyBackend {
	return &FaultyBackend{Backend: inner, name: name, calls: make(map[string]int)}
}

func (f *FaultyBackend) Name() string { return f.name }

func (f *FaultyBackend) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

// Calls returns how many times op was invoked.
func (f *FaultyBackend) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// FailAll toggles every operation at once.
func (f *FaultyBackend) FailAll(fail bool) {
	f.FailGet.Store(fail)
	f.FailPut.Store(fail)
	f.FailDelete.Store(fail)
	f.FailList.Store(fail)
}

func (f *FaultyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.record("get")
	if f.FailGet.Load() {
		return nil, ErrInjected
	}
	return f.Backend.Get(ctx, key)
}

func (f *FaultyBackend) Put(ctx context.Context, key string, value []byte) error {
	f.record("put")
	if f.FailPut.Load() {
		return ErrInjected
	}
	return f.Backend.Put(ctx, key, value)
}

func (f *FaultyBackend) Delete(ctx context.Context, key string) error {
	f.record("delete")
	if f.FailDelete.Load() {
		return ErrInjected
	}
	return f.Backend.Delete(ctx, key)
}

func (f *FaultyBackend) List(ctx context.Context, prefix string) ([]string, error) {
	f.record("list")
	if f.FailList.Load() {
		return nil, ErrInjected
	}
	return f.Backend.List(ctx, prefix)
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

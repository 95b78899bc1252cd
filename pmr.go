package pmr

import (
	"context"
	"io"

	"github.com/pmr-run/pmr/internal/auth"
	cfg "github.com/pmr-run/pmr/internal/config"
	"github.com/pmr-run/pmr/internal/history"
	"github.com/pmr-run/pmr/internal/logrotate"
	"github.com/pmr-run/pmr/internal/manager"
	"github.com/pmr-run/pmr/internal/paths"
	"github.com/pmr-run/pmr/internal/store"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type ProcessRecord = store.ProcessRecord

type Status = store.Status

const (
	StatusRunning = store.StatusRunning
	StatusStopped = store.StatusStopped
	StatusFailed  = store.StatusFailed
	StatusUnknown = store.StatusUnknown
)

type StartSpec = manager.StartSpec

type Token = store.Token

type Config = cfg.Config

type HistorySink = history.Sink

// Supervisor is a thin facade over internal/manager for embedding pmr in
// another program.
type Supervisor struct {
	inner *manager.Manager
	store store.Store
}

// Open builds a supervisor from a loaded configuration.
func Open(c Config) (*Supervisor, error) {
	layout := c.Layout()
	if err := layout.Ensure(); err != nil {
		return nil, err
	}
	st, err := store.Open(c.StoreDSN)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}
	sink, err := history.NewSinkFromDSN(c.HistoryDSN)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	m := manager.New(st, layout,
		manager.WithRotator(c.Rotator()),
		manager.WithHistory(sink))
	return &Supervisor{inner: m, store: st}, nil
}

func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

func (s *Supervisor) Close() error { return s.store.Close() }

func (s *Supervisor) Start(ctx context.Context, spec StartSpec) (ProcessRecord, error) {
	return s.inner.Start(ctx, spec)
}

func (s *Supervisor) Stop(ctx context.Context, name string) (ProcessRecord, error) {
	return s.inner.Stop(ctx, name)
}

func (s *Supervisor) Restart(ctx context.Context, name string) (ProcessRecord, error) {
	return s.inner.Restart(ctx, name)
}

func (s *Supervisor) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

func (s *Supervisor) Status(ctx context.Context, name string) (ProcessRecord, error) {
	return s.inner.Status(ctx, name)
}

func (s *Supervisor) List(ctx context.Context) ([]ProcessRecord, error) {
	return s.inner.List(ctx)
}

func (s *Supervisor) SetEnv(ctx context.Context, name string, pairs map[string]string) (ProcessRecord, error) {
	return s.inner.SetEnv(ctx, name, pairs)
}

func (s *Supervisor) Clear(ctx context.Context, includeRunning bool) ([]string, error) {
	return s.inner.Clear(ctx, includeRunning)
}

func (s *Supervisor) Logs(ctx context.Context, name string, n int, rotated bool) ([]string, error) {
	return s.inner.Logs(ctx, name, n, rotated)
}

func (s *Supervisor) FollowLogs(ctx context.Context, name string, w io.Writer) error {
	return s.inner.FollowLogs(ctx, name, w)
}

func (s *Supervisor) RotateLogs(ctx context.Context, name string) error {
	return s.inner.RotateLogs(ctx, name)
}

// Auth returns a token service backed by the same catalog store.
func (s *Supervisor) Auth() *auth.Service { return auth.NewService(s.store) }

// DefaultLayout exposes the resolved on-disk layout.
func DefaultLayout() paths.Layout { return paths.Default() }

// NewRotator builds a child-log rotator with explicit limits.
func NewRotator(maxSize int64, keepCount int) logrotate.Rotator {
	return logrotate.New(maxSize, keepCount)
}

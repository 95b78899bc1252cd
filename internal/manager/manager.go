package manager

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pmr-run/pmr/internal/errdef"
	"github.com/pmr-run/pmr/internal/history"
	"github.com/pmr-run/pmr/internal/logrotate"
	"github.com/pmr-run/pmr/internal/metrics"
	"github.com/pmr-run/pmr/internal/paths"
	"github.com/pmr-run/pmr/internal/spawn"
	"github.com/pmr-run/pmr/internal/store"
)

// DaemonName is the reserved catalog name under which the control plane
// daemon supervises itself. The record's uniqueness guarantees a single
// daemon per catalog.
const DaemonName = "pmr-daemon"

// DefaultGrace is the SIGTERM-to-SIGKILL window during Stop.
const DefaultGrace = 5 * time.Second

const probeInterval = 100 * time.Millisecond

// StartSpec carries everything needed to launch a new supervised process.
type StartSpec struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	WorkDir string
	LogDir  string // empty uses the layout's default log root
}

// Manager coordinates the spawner, catalog, log pipeline and history sink.
// It holds no in-memory process state beyond unreaped child pids: the
// catalog plus a liveness probe at read time is the source of truth, so
// short-lived CLI invocations and the daemon compose safely.
type Manager struct {
	store   store.Store
	layout  paths.Layout
	rotator logrotate.Rotator
	sink    history.Sink
	reaper  *spawn.Reaper
	grace   time.Duration
	log     *slog.Logger
}

type Option func(*Manager)

func WithGrace(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.grace = d
		}
	}
}

func WithRotator(r logrotate.Rotator) Option {
	return func(m *Manager) { m.rotator = r }
}

func WithHistory(sink history.Sink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.sink = sink
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func New(s store.Store, layout paths.Layout, opts ...Option) *Manager {
	m := &Manager{
		store:   s,
		layout:  layout,
		rotator: logrotate.New(0, 0),
		sink:    history.Nop{},
		reaper:  spawn.NewReaper(),
		grace:   DefaultGrace,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start registers and launches a new process. The record is inserted
// before spawning so a concurrent start of the same name loses cleanly on
// the unique constraint instead of racing a duplicate child into exec.
func (m *Manager) Start(ctx context.Context, spec StartSpec) (store.ProcessRecord, error) {
	if err := ValidateName(spec.Name); err != nil {
		return store.ProcessRecord{}, err
	}
	if spec.Command == "" {
		return store.ProcessRecord{}, errdef.New(errdef.KindSpawn, "command required")
	}
	logDir := spec.LogDir
	if logDir == "" {
		logDir = m.layout.LogDir
	}
	if err := paths.EnsureLogDir(logDir); err != nil {
		return store.ProcessRecord{}, err
	}

	now := time.Now().UTC()
	rec := store.ProcessRecord{
		ID:        uuid.NewString(),
		Name:      spec.Name,
		Command:   spec.Command,
		Args:      append([]string(nil), spec.Args...),
		Env:       cloneEnv(spec.Env),
		WorkDir:   spec.WorkDir,
		LogDir:    logDir,
		// inserted before fork; stays unknown if the supervisor dies
		// mid-start, never a phantom running record
		Status:    store.StatusUnknown,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.InsertProcess(ctx, rec); err != nil {
		return store.ProcessRecord{}, err
	}

	updated, err := m.launch(ctx, spec.Name)
	if err != nil {
		return updated, err
	}
	metrics.IncStart(spec.Name)
	m.emit(ctx, history.EventStart, updated)
	m.log.Info("process started", "name", updated.Name, "pid", updated.PID)
	return updated, nil
}

// launch spawns the stored command and flips the record to running, or to
// failed when the spawn cannot exec. Used by Start and Restart.
func (m *Manager) launch(ctx context.Context, name string) (store.ProcessRecord, error) {
	rec, err := m.store.GetProcess(ctx, name)
	if err != nil {
		return store.ProcessRecord{}, err
	}

	logPath := paths.ProcessLogPath(rec.LogDir, rec.Name)
	// A restart is the moment the child migrates to a fresh live file, so
	// rotation is checked here rather than while the old fd is in use.
	if rotated, err := m.rotator.RotateIfNeeded(logPath); err != nil {
		m.log.Warn("log rotation failed", "name", rec.Name, "error", err)
	} else if rotated {
		metrics.IncRotation(rec.Name)
	}

	pid, spawnErr := spawn.Spawn(spawn.Options{
		Command:    rec.Command,
		Args:       rec.Args,
		Env:        rec.Env,
		WorkDir:    rec.WorkDir,
		StdoutPath: logPath,
		StderrPath: logPath,
	})
	if spawnErr != nil {
		metrics.IncFailure(rec.Name)
		failed, uerr := m.store.UpdateProcess(ctx, rec.Name, func(r *store.ProcessRecord) error {
			r.Status = store.StatusFailed
			r.PID = 0
			return nil
		})
		if uerr != nil {
			m.log.Error("record spawn failure", "name", rec.Name, "error", uerr)
		}
		return failed, spawnErr
	}
	m.reaper.Track(pid)

	return m.store.UpdateProcess(ctx, rec.Name, func(r *store.ProcessRecord) error {
		r.Status = store.StatusRunning
		r.PID = pid
		return nil
	})
}

// Stop delivers SIGTERM, waits out the grace period, escalates to SIGKILL
// and reaps before clearing the pid.
func (m *Manager) Stop(ctx context.Context, name string) (store.ProcessRecord, error) {
	rec, err := m.store.GetProcess(ctx, name)
	if err != nil {
		return store.ProcessRecord{}, err
	}
	if rec.Status != store.StatusRunning || rec.PID == 0 {
		return rec, errdef.StateConflict("process %q is not running", name)
	}

	pid := rec.PID
	if err := spawn.Terminate(pid); err != nil {
		return rec, err
	}
	if !m.awaitExit(ctx, pid, m.grace) {
		m.log.Warn("grace period elapsed, escalating", "name", name, "pid", pid)
		if err := spawn.Kill(pid); err != nil {
			return rec, err
		}
		if !m.awaitExit(ctx, pid, time.Second) {
			return rec, errdef.New(errdef.KindTimeout, "process %q (pid %d) survived SIGKILL", name, pid)
		}
	}
	m.reaper.Track(pid)
	m.reaper.Reap(pid)

	updated, err := m.store.UpdateProcess(ctx, name, func(r *store.ProcessRecord) error {
		r.Status = store.StatusStopped
		r.PID = 0
		return nil
	})
	if err != nil {
		return store.ProcessRecord{}, err
	}
	metrics.IncStop(name)
	m.emit(ctx, history.EventStop, updated)
	m.log.Info("process stopped", "name", name, "pid", pid)
	return updated, nil
}

// Restart stops the process when running, then relaunches it with its
// stored parameters and bumps the restart counter.
func (m *Manager) Restart(ctx context.Context, name string) (store.ProcessRecord, error) {
	rec, err := m.Status(ctx, name)
	if err != nil {
		return store.ProcessRecord{}, err
	}
	if rec.Status == store.StatusRunning {
		if _, err := m.Stop(ctx, name); err != nil {
			return store.ProcessRecord{}, err
		}
	}
	if _, err := m.store.UpdateProcess(ctx, name, func(r *store.ProcessRecord) error {
		r.RestartCount++
		return nil
	}); err != nil {
		return store.ProcessRecord{}, err
	}
	updated, err := m.launch(ctx, name)
	if err != nil {
		return updated, err
	}
	metrics.IncStart(name)
	m.emit(ctx, history.EventStart, updated)
	m.log.Info("process restarted", "name", name, "pid", updated.PID)
	return updated, nil
}

// Delete removes the record. Log files are retained: operators commonly
// keep scripts pointed at them.
func (m *Manager) Delete(ctx context.Context, name string) error {
	rec, err := m.Status(ctx, name)
	if err != nil {
		return err
	}
	if rec.Status == store.StatusRunning {
		return errdef.StateConflict("process %q is running; stop it first", name)
	}
	return m.store.DeleteProcess(ctx, name)
}

// Status returns the record after reconciling it with a liveness probe.
func (m *Manager) Status(ctx context.Context, name string) (store.ProcessRecord, error) {
	rec, err := m.store.GetProcess(ctx, name)
	if err != nil {
		return store.ProcessRecord{}, err
	}
	return m.reconcile(ctx, rec), nil
}

// List returns all records, each reconciled. A reconciliation failure
// degrades that record to unknown instead of failing the whole listing.
func (m *Manager) List(ctx context.Context) ([]store.ProcessRecord, error) {
	recs, err := m.store.ListProcesses(ctx)
	if err != nil {
		return nil, err
	}
	running := 0
	for i := range recs {
		recs[i] = m.reconcile(ctx, recs[i])
		if recs[i].Status == store.StatusRunning {
			running++
		}
	}
	metrics.SetRunning(running)
	return recs, nil
}

// reconcile compares the cataloged status against a fresh probe and writes
// back any drift. A record claiming to run without a live pid becomes
// failed (abnormal exit); a record claiming to run without any pid is
// degraded to unknown.
func (m *Manager) reconcile(ctx context.Context, rec store.ProcessRecord) store.ProcessRecord {
	if rec.Status != store.StatusRunning {
		return rec
	}
	if rec.PID == 0 {
		return m.degrade(ctx, rec)
	}
	if spawn.Alive(rec.PID) {
		return rec
	}
	m.reaper.Track(rec.PID)
	m.reaper.Reap(rec.PID)
	updated, err := m.store.UpdateProcess(ctx, rec.Name, func(r *store.ProcessRecord) error {
		r.Status = store.StatusFailed
		r.PID = 0
		return nil
	})
	if err != nil {
		m.log.Warn("reconcile write-back failed", "name", rec.Name, "error", err)
		rec.Status = store.StatusUnknown
		return rec
	}
	metrics.IncFailure(rec.Name)
	m.emit(ctx, history.EventFail, updated)
	return updated
}

func (m *Manager) degrade(ctx context.Context, rec store.ProcessRecord) store.ProcessRecord {
	updated, err := m.store.UpdateProcess(ctx, rec.Name, func(r *store.ProcessRecord) error {
		r.Status = store.StatusUnknown
		return nil
	})
	if err != nil {
		rec.Status = store.StatusUnknown
		return rec
	}
	return updated
}

// SetEnv merges pairs into the record's environment. Running processes
// keep their environment until restarted, so mutation requires a
// non-running record; the check runs inside the update transaction.
func (m *Manager) SetEnv(ctx context.Context, name string, pairs map[string]string) (store.ProcessRecord, error) {
	return m.store.UpdateProcess(ctx, name, func(r *store.ProcessRecord) error {
		if r.Status == store.StatusRunning {
			return errdef.StateConflict("cannot modify environment of running process %q", name)
		}
		if r.Env == nil {
			r.Env = make(map[string]string, len(pairs))
		}
		for k, v := range pairs {
			r.Env[k] = v
		}
		return nil
	})
}

// Clear removes every stopped and failed record; with includeRunning it
// stops and removes running ones too. Returns the removed names.
func (m *Manager) Clear(ctx context.Context, includeRunning bool) ([]string, error) {
	recs, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0, len(recs))
	for _, rec := range recs {
		switch rec.Status {
		case store.StatusStopped, store.StatusFailed:
			if err := m.store.DeleteProcess(ctx, rec.Name); err != nil {
				return removed, err
			}
			removed = append(removed, rec.Name)
		case store.StatusRunning:
			if !includeRunning {
				continue
			}
			if _, err := m.Stop(ctx, rec.Name); err != nil {
				return removed, err
			}
			if err := m.store.DeleteProcess(ctx, rec.Name); err != nil {
				return removed, err
			}
			removed = append(removed, rec.Name)
		}
	}
	return removed, nil
}

// Logs returns the last n lines of the live log, optionally preceded by
// the rotated generations (oldest first).
func (m *Manager) Logs(ctx context.Context, name string, n int, rotated bool) ([]string, error) {
	rec, err := m.store.GetProcess(ctx, name)
	if err != nil {
		return nil, err
	}
	logPath := paths.ProcessLogPath(rec.LogDir, rec.Name)
	if !rotated {
		return logrotate.TailLines(logPath, n)
	}
	files := m.rotator.RotatedFiles(logPath)
	lines := make([]string, 0, 256)
	// generations are newest-first on disk (.1 is newest); read oldest first
	for i := len(files) - 1; i >= 0; i-- {
		chunk, err := logrotate.TailLines(files[i], 0)
		if err != nil {
			return nil, err
		}
		lines = append(lines, chunk...)
	}
	live, err := logrotate.TailLines(logPath, 0)
	if err != nil {
		return nil, err
	}
	lines = append(lines, live...)
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// FollowLogs streams appended bytes until ctx is cancelled.
func (m *Manager) FollowLogs(ctx context.Context, name string, w io.Writer) error {
	rec, err := m.store.GetProcess(ctx, name)
	if err != nil {
		return err
	}
	return logrotate.Follow(ctx, paths.ProcessLogPath(rec.LogDir, rec.Name), w)
}

// RotateLogs rotates the process's live log once, unconditionally.
func (m *Manager) RotateLogs(ctx context.Context, name string) error {
	rec, err := m.store.GetProcess(ctx, name)
	if err != nil {
		return err
	}
	if err := m.rotator.Rotate(paths.ProcessLogPath(rec.LogDir, rec.Name)); err != nil {
		return err
	}
	metrics.IncRotation(name)
	return nil
}

// Reap collects any exited direct children tracked by this manager.
func (m *Manager) Reap() []int { return m.reaper.Sweep() }

func (m *Manager) awaitExit(ctx context.Context, pid int, within time.Duration) bool {
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		m.reaper.Reap(pid)
		if !spawn.Alive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return !spawn.Alive(pid)
		case <-time.After(probeInterval):
		}
	}
	return !spawn.Alive(pid)
}

func (m *Manager) emit(ctx context.Context, typ history.EventType, rec store.ProcessRecord) {
	e := history.Event{
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Name:       rec.Name,
		PID:        rec.PID,
		Status:     string(rec.Status),
	}
	if err := m.sink.Send(ctx, e); err != nil {
		m.log.Warn("history event dropped", "name", rec.Name, "error", err)
	}
}

func cloneEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

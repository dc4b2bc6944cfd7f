package task

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"autodl/internal/command"
	"autodl/internal/config"
	"autodl/internal/destination"
	fileutil "autodl/internal/file"
	"autodl/internal/logs"
	"autodl/internal/metrics"
	"autodl/internal/process"
)

const (
	idLayout       = "2006-01-02T15:04:05.000Z07:00"
	maxIDAttempts  = 3
	idSuffixLength = 8
)

// Options configures a Manager. Zero values get working defaults.
type Options struct {
	Config   config.Config
	Registry *Registry
	Runner   process.Runner
	Metrics  *metrics.TaskMetrics
	Now      func() time.Time
}

// Manager turns requests into tasks and runs each one on its own goroutine.
// There is no queue and no concurrency limit.
type Manager struct {
	cfg       config.Config
	registry  *Registry
	runner    process.Runner
	metrics   *metrics.TaskMetrics
	now       func() time.Time
	workersWG sync.WaitGroup
}

// NewManager creates a manager. The configuration is copied.
func NewManager(opts Options) *Manager {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Runner == nil {
		opts.Runner = process.ExecRunner{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		cfg:      opts.Config.Clone(),
		registry: opts.Registry,
		runner:   opts.Runner,
		metrics:  opts.Metrics,
		now:      opts.Now,
	}
}

// Config returns a copy of the configuration tasks are built from.
func (m *Manager) Config() config.Config { return m.cfg.Clone() }

// Registry exposes the registry the manager inserts into.
func (m *Manager) Registry() *Registry { return m.registry }

// List returns the currently running tasks.
func (m *Manager) List() []Summary { return m.registry.Snapshot() }

// SubmitDownload validates req, prepares the task's log file and output directory and
// starts the task. Validation and resource errors are returned before anything is
// registered; errors from the external tools only reach the task log.
func (m *Manager) SubmitDownload(req DownloadRequest) (*Handle, error) {
	cfg := m.Config()

	urls, err := command.SplitURLs(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	spec, err := destination.Resolve(req.OutputDirectory, req.Subdirectory, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	payload := Download{
		URLs:            urls,
		AudioOnly:       req.AudioOnly,
		OutputDirectory: spec.Source,
		Subdirectory:    spec.Subdirectory,
		Destination:     spec,
	}
	return m.dispatch(cfg, payload, func(logFile *os.File) error {
		if err := fileutil.EnsureDir(spec.WorkDir); err != nil {
			log.Warn().Err(err).Str("path", spec.WorkDir).Msg("cannot create output directory")
			return err
		}
		tracef(logFile, "Output directory %s ready\n", spec.WorkDir)
		return nil
	})
}

// SubmitSelfUpdate starts a task that updates the downloader executable.
func (m *Manager) SubmitSelfUpdate() (*Handle, error) {
	return m.dispatch(m.Config(), SelfUpdate{}, nil)
}

// WaitAll blocks until all in-flight tasks finish or the context is done.
// Returns true if all tasks finished, false if timed out.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// dispatch creates the log file, runs prepare, registers the task and starts it. A failed
// prepare removes the log file again, so a rejected submission leaves nothing behind.
func (m *Manager) dispatch(cfg config.Config, payload Payload, prepare func(*os.File) error) (*Handle, error) {
	store := logs.NewStore(cfg.LogDir)
	startedAt := m.now()

	t, logFile, err := m.register(store, startedAt, cfg, payload, prepare)
	if err != nil {
		return nil, err
	}

	h := newHandle(t.ID)
	m.metrics.TaskStarted(string(payload.Kind()))
	log.Info().Str("task_id", t.ID).Str("kind", string(payload.Kind())).Msg("task started")

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.run(t, logFile, h)
	}()
	return h, nil
}

func (m *Manager) register(store *logs.Store, startedAt time.Time, cfg config.Config, payload Payload, prepare func(*os.File) error) (Task, *os.File, error) {
	base := startedAt.UTC().Format(idLayout)
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := base
		if attempt > 0 {
			id = base + "-" + uuid.NewString()[:idSuffixLength]
		}

		logFile, err := store.Create(id)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return Task{}, nil, fmt.Errorf("%w: %w", ErrResource, err)
		}
		if prepare != nil {
			if err := prepare(logFile); err != nil {
				_ = logFile.Close()
				_ = os.Remove(store.Path(id))
				return Task{}, nil, fmt.Errorf("%w: %w", ErrResource, err)
			}
		}

		t := Task{
			ID:        id,
			LogPath:   store.Path(id),
			StartedAt: startedAt,
			Payload:   payload,
			Config:    cfg,
		}
		if err := m.registry.Insert(t); err != nil {
			_ = logFile.Close()
			_ = os.Remove(t.LogPath)
			continue
		}
		return t, logFile, nil
	}
	return Task{}, nil, fmt.Errorf("%w: could not allocate a unique task id at %s", ErrResource, base)
}

package task

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"autodl/internal/command"
	"autodl/internal/destination"
	fileutil "autodl/internal/file"
	"autodl/internal/metrics"
	"autodl/internal/process"
)

const (
	phaseDownload   = "download"
	phaseRelocate   = "relocate"
	phaseSelfUpdate = "self_update"
)

// run executes t, writes its terminal line, closes the log and removes t from the
// registry whatever the outcome.
func (m *Manager) run(t Task, logFile *os.File, h *Handle) {
	var err error
	switch p := t.Payload.(type) {
	case Download:
		err = m.runDownload(t, p, logFile)
	case SelfUpdate:
		err = m.runSelfUpdate(t, logFile)
	default:
		err = fmt.Errorf("unsupported payload %T", p)
	}

	result := Result{ID: t.ID, Status: StatusSucceeded, Err: err}
	outcome := metrics.OutcomeSucceeded
	if err != nil {
		result.Status = StatusFailed
		outcome = metrics.OutcomeFailed
		tracef(logFile, "\nTask %s failed: %v\n", t.ID, err)
	} else {
		tracef(logFile, "\nTask %s completed\n", t.ID)
	}
	if cerr := logFile.Close(); cerr != nil {
		log.Warn().Str("task_id", t.ID).Err(cerr).Msg("closing task log failed")
	}

	if !m.registry.Remove(t.ID) {
		log.Warn().Str("task_id", t.ID).Msg("task not found in registry")
	}
	elapsed := m.now().Sub(t.StartedAt)
	m.metrics.TaskFinished(string(t.Payload.Kind()), outcome, elapsed)

	evt := log.Info()
	if err != nil {
		evt = log.Error().Err(err)
	}
	evt.Str("task_id", t.ID).Str("status", string(result.Status)).Dur("elapsed", elapsed).Msg("task finished")

	h.complete(result)
}

// runDownload runs the download phase and then the relocation phase. Relocation is
// attempted even when the download failed, so partial output still moves. A download
// error fails the task only when no relocation followed it successfully.
func (m *Manager) runDownload(t Task, p Download, w io.Writer) error {
	cfg := t.Config
	spec := p.Destination
	tracef(w, "Task %s: %d url(s) into %s\n", t.ID, len(p.URLs), spec.WorkDir)

	args, dlErr := command.DownloadArgs(p.URLs, p.AudioOnly, spec.Root, spec.Subdirectory)
	if dlErr == nil {
		dlErr = m.runner.Run(cfg.DownloaderPath, args, w)
	}
	if dlErr != nil {
		tracef(w, "Download %s failure: %v\n", t.ID, dlErr)
		m.phaseFailed(t.ID, phaseDownload, dlErr)
		dlErr = fmt.Errorf("%s: %w", phaseDownload, dlErr)
	}

	relocated, mvErr := m.relocate(t, spec, w)
	if mvErr != nil {
		tracef(w, "Relocation %s failure: %v\n", t.ID, mvErr)
		m.phaseFailed(t.ID, phaseRelocate, mvErr)
		return errors.Join(dlErr, fmt.Errorf("%s: %w", phaseRelocate, mvErr))
	}
	if dlErr != nil && !relocated {
		return dlErr
	}
	return nil
}

// relocate reports whether a relocation ran. Download-only destinations return false, nil.
func (m *Manager) relocate(t Task, spec destination.Spec, w io.Writer) (bool, error) {
	cfg := t.Config
	args, ok := command.RelocateArgs(spec, spec.WorkDir, cfg.DeleteSourceAfterMove)
	if !ok {
		tracef(w, "No relocation configured for %s\n", spec.Source)
		return false, nil
	}
	if spec.Kind == destination.KindLocal {
		if err := fileutil.EnsureDir(spec.Local); err != nil {
			return true, err
		}
	}
	if cfg.MakeWorldReadable {
		if err := fileutil.MakeWorldReadable(spec.WorkDir); err != nil {
			return true, fmt.Errorf("normalize permissions: %w", err)
		}
	}
	return true, m.runner.Run(cfg.RelocatorPath, args, w)
}

func (m *Manager) runSelfUpdate(t Task, w io.Writer) error {
	tracef(w, "Task %s: updating %s\n", t.ID, t.Config.DownloaderPath)
	if err := m.runner.Run(t.Config.DownloaderPath, command.SelfUpdateArgs(), w); err != nil {
		m.phaseFailed(t.ID, phaseSelfUpdate, err)
		return err
	}
	return nil
}

func (m *Manager) phaseFailed(taskID, phase string, err error) {
	m.metrics.PhaseFailed(phase)
	log.Error().Str("task_id", taskID).Str("phase", phase).Int("exit_code", process.ExitCode(err)).Err(err).Msg("task phase failed")
}

// tracef writes a line to the task log. A log that cannot be written to is not a
// reason to stop the task.
func tracef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

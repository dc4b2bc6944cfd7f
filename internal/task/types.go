package task

import (
	"strings"
	"time"

	"autodl/internal/config"
	"autodl/internal/destination"
	"autodl/internal/logs"
)

type Kind string

const (
	KindDownload   Kind = "download"
	KindSelfUpdate Kind = "self_update"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Payload is either Download or SelfUpdate.
type Payload interface {
	Kind() Kind
}

// Download fetches URLs into Destination.WorkDir and then relocates that directory.
type Download struct {
	URLs            []string
	AudioOnly       bool
	OutputDirectory string
	Subdirectory    string
	Destination     destination.Spec
}

func (Download) Kind() Kind { return KindDownload }

// SelfUpdate asks the downloader to replace itself with the latest release.
type SelfUpdate struct{}

func (SelfUpdate) Kind() Kind { return KindSelfUpdate }

// Task is fixed at construction and owned by the goroutine running it.
type Task struct {
	ID        string
	LogPath   string
	StartedAt time.Time
	Payload   Payload
	Config    config.Config
}

// DownloadRequest is what a submitter supplies for a download. URL may hold several
// whitespace separated URLs.
type DownloadRequest struct {
	URL             string
	AudioOnly       bool
	OutputDirectory string
	Subdirectory    string
}

// Summary is the display form of a registered task.
type Summary struct {
	ID              string    `json:"id"`
	Kind            Kind      `json:"kind"`
	URL             string    `json:"url,omitempty"`
	AudioOnly       bool      `json:"audio_only"`
	OutputDirectory string    `json:"output_directory,omitempty"`
	Subdirectory    string    `json:"subdirectory,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	LogFile         string    `json:"log_file"`
}

func (t Task) Summary() Summary {
	s := Summary{
		ID:        t.ID,
		Kind:      t.Payload.Kind(),
		StartedAt: t.StartedAt,
		LogFile:   t.ID + logs.Ext,
	}
	if d, ok := t.Payload.(Download); ok {
		s.URL = strings.Join(d.URLs, " ")
		s.AudioOnly = d.AudioOnly
		s.OutputDirectory = d.OutputDirectory
		s.Subdirectory = d.Subdirectory
	}
	return s
}

// Result is the terminal outcome of a task run.
type Result struct {
	ID     string
	Status Status
	Err    error
}

package logs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	fileutil "autodl/internal/file"
)

const (
	Ext = ".log"
	// AllID addresses every log file in Delete.
	AllID = "all"
)

var (
	ErrInvalidName = errors.New("invalid log name")
	ErrNotFound    = errors.New("log not found")
)

// Entry describes one log file on disk.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store owns the per-task log files under a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	if dir == "" {
		dir = "logs"
	}
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

// Path is the log file for taskID.
func (s *Store) Path(taskID string) string {
	return filepath.Join(s.dir, taskID+Ext)
}

// Create makes a fresh log file for taskID; an existing file is an error.
func (s *Store) Create(taskID string) (*os.File, error) {
	f, err := fileutil.CreateExclusive(s.Path(taskID))
	if err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}
	return f, nil
}

// List returns log files newest first. Task ids are timestamps, so that is reverse name order.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	entries := make([]Entry, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name > entries[j].Name })
	return entries, nil
}

// Read returns the content of the named log file.
func (s *Store) Read(name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.Join(s.dir, name)) //nolint:gosec // name validated above
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("read log: %w", err)
	}
	return string(b), nil
}

// Delete removes one log file, or all of them when name is AllID.
func (s *Store) Delete(name string) error {
	if name == AllID {
		return s.deleteAll()
	}
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("remove log: %w", err)
	}
	return nil
}

func (s *Store) deleteAll() error {
	entries, err := s.List()
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if err := os.Remove(filepath.Join(s.dir, e.Name)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// validName accepts only a bare file name inside the log directory.
func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

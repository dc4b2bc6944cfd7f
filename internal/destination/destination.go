// Package destination resolves a logical output directory into a download location and
// a relocation target, and keeps caller-supplied subdirectories inside that location.
package destination

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"autodl/internal/config"
)

var (
	ErrUnknownDestination = errors.New("unknown output directory")
	ErrPathEscape         = errors.New("subdirectory escapes output directory")
)

// Kind says where relocated files go.
type Kind int

const (
	KindNone Kind = iota
	KindLocal
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return "none"
	}
}

// Spec is a resolved output directory. WorkDir is where the downloader writes and what
// the relocator later reads from. RemoteArgs is Remote.ExtraArgs already split.
type Spec struct {
	Source       string
	Root         string
	Subdirectory string
	WorkDir      string
	Kind         Kind
	Local        string
	Remote       config.RemoteDestination
	RemoteArgs   []string
}

// DownloadOnly reports whether no relocation follows the download.
func (s Spec) DownloadOnly() bool { return s.Kind == KindNone }

// Resolve looks key up among cfg's output directories and joins subdirectory onto it.
// The joined path must stay at or below the output directory.
func Resolve(key, subdirectory string, cfg config.Config) (Spec, error) {
	entry, ok := lookup(key, cfg)
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q not found in config", ErrUnknownDestination, key)
	}

	root, err := canonical(entry.Source)
	if err != nil {
		return Spec{}, fmt.Errorf("resolve %q: %w", entry.Source, err)
	}
	workDir, rel, err := Contain(root, subdirectory)
	if err != nil {
		return Spec{}, err
	}

	spec := Spec{
		Source:       entry.Source,
		Root:         root,
		Subdirectory: rel,
		WorkDir:      workDir,
	}
	switch {
	case entry.DestinationRemote != nil:
		args, err := entry.DestinationRemote.Args()
		if err != nil {
			return Spec{}, err
		}
		spec.Kind = KindRemote
		spec.Remote = *entry.DestinationRemote
		spec.RemoteArgs = args
	case entry.DestinationLocal != "":
		spec.Kind = KindLocal
		spec.Local = entry.DestinationLocal
	}
	return spec, nil
}

// Contain joins sub onto root, cleans the result and checks it did not leave root.
// It returns the joined path and its cleaned form relative to root ("." for root itself).
func Contain(root, sub string) (string, string, error) {
	root = filepath.Clean(root)
	joined := filepath.Join(root, strings.TrimSpace(sub))
	rel, err := filepath.Rel(root, joined)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrPathEscape, sub)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %q", ErrPathEscape, sub)
	}
	return joined, rel, nil
}

// canonical makes dir absolute and resolves symlinks. A root that does not exist yet
// keeps its absolute form; it is created before the download.
func canonical(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs, nil
	}
	return resolved, nil
}

func lookup(key string, cfg config.Config) (config.OutputDirectory, bool) {
	for _, dir := range cfg.OutputDirectories {
		if dir.Source == key {
			return dir.Clone(), true
		}
	}
	return config.OutputDirectory{}, false
}

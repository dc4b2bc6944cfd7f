// Package command builds argument vectors for the downloader (yt-dlp) and the
// relocator (rsync). Nothing here touches the filesystem or spawns processes.
package command

import (
	"errors"
	"path/filepath"
	"strings"

	"autodl/internal/destination"
)

var ErrNoURLs = errors.New("no urls provided")

// OutputTemplate names each download "<index> - <title> [<id>].<ext>".
const OutputTemplate = "%(autonumber+0)04d - %(title)s [%(id)s].%(ext)s"

// audio extraction policy
const (
	AudioFormat  = "mp3"
	AudioQuality = "320K"
)

const (
	flagOutput       = "-o"
	flagSelfUpdate   = "-U"
	flagVersion      = "--version"
	flagRemoveSource = "--remove-source-files"
)

// AudioArgs is the flag run appended for audio-only downloads. It is always emitted as a unit.
func AudioArgs() []string {
	return []string{
		"--format", "bestaudio",
		"--extract-audio",
		"--audio-format", AudioFormat,
		"--audio-quality", AudioQuality,
	}
}

// SplitURLs tokenizes a raw submission on whitespace so one request can carry several URLs.
func SplitURLs(raw string) ([]string, error) {
	urls := strings.Fields(raw)
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	return urls, nil
}

// DownloadArgs returns the downloader argv (without the executable) writing into
// outputDirectory/subdirectory.
func DownloadArgs(urls []string, audioOnly bool, outputDirectory, subdirectory string) ([]string, error) {
	if len(urls) == 0 {
		return nil, ErrNoURLs
	}
	args := make([]string, 0, 2+len(AudioArgs())+len(urls))
	args = append(args, flagOutput, filepath.Join(outputDirectory, subdirectory, OutputTemplate))
	if audioOnly {
		args = append(args, AudioArgs()...)
	}
	return append(args, urls...), nil
}

// RelocateArgs returns the relocator argv moving source to the spec's destination, and
// false when the spec is download only. Flags always precede the two positionals.
func RelocateArgs(spec destination.Spec, source string, deleteSourceAfterMove bool) ([]string, bool) {
	if spec.DownloadOnly() {
		return nil, false
	}
	args := []string{"-v", "--progress", "-r", "-a"}
	if deleteSourceAfterMove {
		args = append(args, flagRemoveSource)
	}
	switch spec.Kind {
	case destination.KindRemote:
		args = append(args, spec.RemoteArgs...)
		args = append(args, source, spec.Remote.Destination)
	case destination.KindLocal:
		args = append(args, source, spec.Local)
	}
	return args, true
}

// SelfUpdateArgs asks the downloader to update itself in place.
func SelfUpdateArgs() []string { return []string{flagSelfUpdate} }

// VersionArgs is a cheap invocation used to prove the downloader runs.
func VersionArgs() []string { return []string{flagVersion} }

// String renders an argv the way it is written to task logs.
func String(executable string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, executable)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

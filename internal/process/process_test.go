package process

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil { //nolint:gosec // test script must be executable
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestRunCapturesBothStreams(t *testing.T) {
	skipWithoutShell(t)
	var sink bytes.Buffer

	err := ExecRunner{}.Run("sh", []string{"-c", "echo out; echo err >&2"}, &sink)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got := sink.String()
	if !strings.HasPrefix(got, "\n$ sh -c ") {
		t.Fatalf("expected trace line first, got %q", got)
	}
	if !strings.Contains(got, "out\n") || !strings.Contains(got, "err\n") {
		t.Fatalf("expected stdout and stderr in sink, got %q", got)
	}
}

func TestRunIntoFile(t *testing.T) {
	skipWithoutShell(t)
	logPath := filepath.Join(t.TempDir(), "task.log")
	f, err := os.Create(logPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := (ExecRunner{}).Run("sh", []string{"-c", "echo hello"}, f); err != nil {
		t.Fatalf("run: %v", err)
	}
	_ = f.Close()

	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "hello") {
		t.Fatalf("expected process output in log file, got %q", b)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	skipWithoutShell(t)
	var sink bytes.Buffer
	err := ExecRunner{}.Run("sh", []string{"-c", "exit 3"}, &sink)
	if err == nil {
		t.Fatalf("expected error for non-zero exit")
	}
	if code := ExitCode(err); code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	var sink bytes.Buffer
	err := ExecRunner{}.Run(filepath.Join(t.TempDir(), "missing-tool"), nil, &sink)
	if err == nil {
		t.Fatalf("expected spawn error")
	}
	if code := ExitCode(err); code != -1 {
		t.Fatalf("expected -1 for spawn failure, got %d", code)
	}
	if !strings.Contains(sink.String(), "missing-tool") {
		t.Fatalf("trace line should still be written, got %q", sink.String())
	}
}

func TestCheckRunnable(t *testing.T) {
	skipWithoutShell(t)
	ok := writeScript(t, `[ "$1" = "--version" ] && echo 2025.10.01`)
	version, err := CheckRunnable(ok)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if version != "2025.10.01" {
		t.Fatalf("unexpected version %q", version)
	}

	if _, err := CheckRunnable(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing downloader")
	}
	broken := writeScript(t, "exit 1")
	if _, err := CheckRunnable(broken); err == nil {
		t.Fatalf("expected error for failing downloader")
	}
}

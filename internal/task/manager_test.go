package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"autodl/internal/command"
	"autodl/internal/config"
	"autodl/internal/destination"
)

type runCall struct {
	executable string
	args       []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []runCall
	fail  map[string]error
	block chan struct{}
}

func (f *fakeRunner) Run(executable string, args []string, sink io.Writer) error {
	f.mu.Lock()
	f.calls = append(f.calls, runCall{executable: executable, args: append([]string(nil), args...)})
	err := f.fail[executable]
	block := f.block
	f.mu.Unlock()

	_, _ = fmt.Fprintf(sink, "\n$ %s\n", command.String(executable, args))
	if block != nil {
		<-block
	}
	return err
}

func (f *fakeRunner) Calls() []runCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runCall(nil), f.calls...)
}

type fixture struct {
	root    string
	dlDir   string
	libDir  string
	logDir  string
	runner  *fakeRunner
	manager *Manager
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	f := &fixture{
		root:   root,
		dlDir:  filepath.Join(root, "downloads"),
		libDir: filepath.Join(root, "library"),
		logDir: filepath.Join(root, "logs"),
		runner: &fakeRunner{},
	}
	cfg := config.Default()
	cfg.LogDir = f.logDir
	cfg.DownloaderPath = "yt-dlp"
	cfg.RelocatorPath = "rsync"
	cfg.OutputDirectories = []config.OutputDirectory{
		{Source: f.dlDir, DestinationLocal: f.libDir},
		{Source: filepath.Join(root, "scratch")},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.manager = NewManager(Options{Config: cfg, Runner: f.runner})
	return f
}

func waitResult(t *testing.T, h *Handle) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("timeout waiting for task %s", h.ID())
	}
	return res
}

func readLog(t *testing.T, dir, id string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, id+".log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(b)
}

func TestDownloadThenLocalRelocation(t *testing.T) {
	f := newFixture(t, nil)

	h, err := f.manager.SubmitDownload(DownloadRequest{
		URL:             "http://example/a http://example/b",
		OutputDirectory: f.dlDir,
		Subdirectory:    "batch1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := waitResult(t, h)
	if res.Status != StatusSucceeded || res.Err != nil {
		t.Fatalf("expected success, got %+v", res)
	}

	calls := f.runner.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected download and relocation calls, got %+v", calls)
	}
	dl := calls[0]
	if dl.executable != "yt-dlp" {
		t.Fatalf("expected downloader first, got %s", dl.executable)
	}
	if got := dl.args[len(dl.args)-2:]; got[0] != "http://example/a" || got[1] != "http://example/b" {
		t.Fatalf("expected both urls passed to downloader, got %v", dl.args)
	}
	if dl.args[1] != filepath.Join(f.dlDir, "batch1", command.OutputTemplate) {
		t.Fatalf("unexpected output template %q", dl.args[1])
	}

	mv := calls[1]
	if mv.executable != "rsync" {
		t.Fatalf("expected relocator second, got %s", mv.executable)
	}
	if src := mv.args[len(mv.args)-2]; src != filepath.Join(f.dlDir, "batch1") {
		t.Fatalf("expected relocation source %s, got %s", filepath.Join(f.dlDir, "batch1"), src)
	}
	if dst := mv.args[len(mv.args)-1]; dst != f.libDir {
		t.Fatalf("expected relocation destination %s, got %s", f.libDir, dst)
	}

	for _, dir := range []string{filepath.Join(f.dlDir, "batch1"), f.libDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist: %v", dir, err)
		}
	}
	logText := readLog(t, f.logDir, h.ID())
	if !strings.Contains(logText, "yt-dlp -o") || !strings.Contains(logText, "completed") {
		t.Fatalf("log missing trace or terminal line: %q", logText)
	}
	if f.manager.Registry().Len() != 0 {
		t.Fatalf("expected empty registry after completion")
	}
}

func TestUnknownDestinationNeverTouchesRegistry(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.manager.SubmitDownload(DownloadRequest{URL: "http://example/a", OutputDirectory: "nope"})
	if !errors.Is(err, ErrValidation) || !errors.Is(err, destination.ErrUnknownDestination) {
		t.Fatalf("expected unknown destination validation error, got %v", err)
	}
	if f.manager.Registry().Len() != 0 {
		t.Fatalf("registry changed on rejected submission")
	}
	if _, err := os.Stat(f.logDir); !os.IsNotExist(err) {
		t.Fatalf("log dir should not be created for rejected submission: %v", err)
	}
}

func TestPathEscapeCreatesNothing(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.manager.SubmitDownload(DownloadRequest{
		URL:             "http://example/a",
		OutputDirectory: f.dlDir,
		Subdirectory:    "../../escape",
	})
	if !errors.Is(err, destination.ErrPathEscape) {
		t.Fatalf("expected ErrPathEscape, got %v", err)
	}
	for _, dir := range []string{f.dlDir, f.logDir, filepath.Join(filepath.Dir(f.root), "escape")} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Fatalf("%s should not exist after rejected submission", dir)
		}
	}
	if len(f.runner.Calls()) != 0 {
		t.Fatalf("no process should be spawned")
	}
}

func TestEmptyURLRejected(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.manager.SubmitDownload(DownloadRequest{URL: "   ", OutputDirectory: f.dlDir})
	if !errors.Is(err, ErrValidation) || !errors.Is(err, command.ErrNoURLs) {
		t.Fatalf("expected ErrNoURLs, got %v", err)
	}
}

func TestUnwritableLogDirIsResourceError(t *testing.T) {
	f := newFixture(t, nil)
	blocker := filepath.Join(f.root, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := f.manager.Config()
	cfg.LogDir = blocker
	m := NewManager(Options{Config: cfg, Runner: f.runner})

	_, err := m.SubmitDownload(DownloadRequest{URL: "http://example/a", OutputDirectory: f.dlDir})
	if !errors.Is(err, ErrResource) {
		t.Fatalf("expected ErrResource, got %v", err)
	}
	if m.Registry().Len() != 0 || len(f.runner.Calls()) != 0 {
		t.Fatalf("nothing should run when the log cannot be created")
	}
}

func TestDownloadFailureStillRelocates(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.fail = map[string]error{"yt-dlp": errors.New("exit status 1")}

	h, err := f.manager.SubmitDownload(DownloadRequest{URL: "http://example/a", OutputDirectory: f.dlDir})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := waitResult(t, h)
	if res.Status != StatusSucceeded || res.Err != nil {
		t.Fatalf("relocated partial download should succeed, got %+v", res)
	}
	calls := f.runner.Calls()
	if len(calls) != 2 || calls[1].executable != "rsync" {
		t.Fatalf("expected relocation after failed download, got %+v", calls)
	}
	logText := readLog(t, f.logDir, h.ID())
	if !strings.Contains(logText, "Download "+h.ID()+" failure: exit status 1") {
		t.Fatalf("log should record the download failure: %q", logText)
	}
	if !strings.HasSuffix(logText, "Task "+h.ID()+" completed\n") {
		t.Fatalf("log should end with the completed line: %q", logText)
	}
	if f.manager.Registry().Len() != 0 {
		t.Fatalf("task should be removed")
	}
}

func TestDownloadFailureWithoutRelocationFails(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.fail = map[string]error{"yt-dlp": errors.New("exit status 1")}

	h, err := f.manager.SubmitDownload(DownloadRequest{URL: "http://example/a", OutputDirectory: filepath.Join(f.root, "scratch")})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := waitResult(t, h)
	if res.Status != StatusFailed {
		t.Fatalf("expected failed status, got %+v", res)
	}
	if len(f.runner.Calls()) != 1 {
		t.Fatalf("download-only destination must not relocate, got %+v", f.runner.Calls())
	}
	if !strings.Contains(readLog(t, f.logDir, h.ID()), "Task "+h.ID()+" failed: download: exit status 1") {
		t.Fatalf("log should end with the failure")
	}
}

func TestDownloadAndRelocationFailureFails(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.fail = map[string]error{"yt-dlp": errors.New("exit status 1"), "rsync": errors.New("exit status 23")}

	h, err := f.manager.SubmitDownload(DownloadRequest{URL: "http://example/a", OutputDirectory: f.dlDir})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res := waitResult(t, h)
	if res.Status != StatusFailed {
		t.Fatalf("expected failed status, got %+v", res)
	}
	msg := res.Err.Error()
	if !strings.Contains(msg, "download: exit status 1") || !strings.Contains(msg, "relocate: exit status 23") {
		t.Fatalf("both phase errors should be reported, got %q", msg)
	}
}

func TestOutputDirectoryFailureLeavesNoLog(t *testing.T) {
	var blocked string
	f := newFixture(t, func(cfg *config.Config) {
		blocked = filepath.Join(filepath.Dir(cfg.LogDir), "blocker", "dl")
		cfg.OutputDirectories = append(cfg.OutputDirectories, config.OutputDirectory{Source: blocked})
	})
	if err := os.WriteFile(filepath.Dir(blocked), []byte("file"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	_, err := f.manager.SubmitDownload(DownloadRequest{URL: "http://example/a", OutputDirectory: blocked})
	if !errors.Is(err, ErrResource) {
		t.Fatalf("expected ErrResource, got %v", err)
	}
	entries, err := os.ReadDir(f.logDir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("read log dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("no log file should remain, found %d", len(entries))
	}
	if f.manager.Registry().Len() != 0 || len(f.runner.Calls()) != 0 {
		t.Fatalf("nothing should be registered or run")
	}
}

func TestDownloadOnlySkipsRelocation(t *testing.T) {
	f := newFixture(t, nil)
	h, err := f.manager.SubmitDownload(DownloadRequest{
		URL:             "http://example/a",
		AudioOnly:       true,
		OutputDirectory: filepath.Join(f.root, "scratch"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res := waitResult(t, h); res.Status != StatusSucceeded {
		t.Fatalf("expected success, got %+v", res)
	}
	calls := f.runner.Calls()
	if len(calls) != 1 || calls[0].executable != "yt-dlp" {
		t.Fatalf("expected only the downloader to run, got %+v", calls)
	}
	joined := strings.Join(calls[0].args, " ")
	if !strings.Contains(joined, "--extract-audio --audio-format mp3") {
		t.Fatalf("expected audio flags, got %v", calls[0].args)
	}
}

func TestRemoteRelocationPassesExtraArgs(t *testing.T) {
	var remoteSource string
	f := newFixture(t, func(cfg *config.Config) {
		remoteSource = filepath.Join(filepath.Dir(cfg.LogDir), "remote")
		cfg.DeleteSourceAfterMove = false
		cfg.OutputDirectories = append(cfg.OutputDirectories, config.OutputDirectory{
			Source:            remoteSource,
			DestinationRemote: &config.RemoteDestination{Destination: "nas:/media", ExtraArgs: `-e "ssh -p 2222"`},
		})
	})

	h, err := f.manager.SubmitDownload(DownloadRequest{URL: "http://example/a", OutputDirectory: remoteSource, Subdirectory: "x"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitResult(t, h)

	mv := f.runner.Calls()[1]
	want := []string{"-v", "--progress", "-r", "-a", "-e", "ssh -p 2222", filepath.Join(remoteSource, "x"), "nas:/media"}
	if strings.Join(mv.args, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected relocate args %v", mv.args)
	}
}

func TestRegistryHoldsTaskUntilCompletion(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.block = make(chan struct{})

	h, err := f.manager.SubmitDownload(DownloadRequest{URL: "http://example/a", OutputDirectory: f.dlDir})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	found := false
	for _, s := range f.manager.List() {
		if s.ID == h.ID() {
			found = true
		}
	}
	if !found {
		t.Fatalf("running task %s missing from snapshot", h.ID())
	}
	if h.Status() != StatusRunning {
		t.Fatalf("expected running, got %s", h.Status())
	}

	close(f.runner.block)
	waitResult(t, h)

	for _, s := range f.manager.List() {
		if s.ID == h.ID() {
			t.Fatalf("completed task %s still in snapshot", h.ID())
		}
	}
}

func TestSelfUpdate(t *testing.T) {
	f := newFixture(t, nil)
	h, err := f.manager.SubmitSelfUpdate()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res := waitResult(t, h); res.Status != StatusSucceeded {
		t.Fatalf("expected success, got %+v", res)
	}
	calls := f.runner.Calls()
	if len(calls) != 1 || calls[0].executable != "yt-dlp" || strings.Join(calls[0].args, " ") != "-U" {
		t.Fatalf("unexpected self update calls %+v", calls)
	}
	if _, err := os.Stat(filepath.Join(f.logDir, h.ID()+".log")); err != nil {
		t.Fatalf("self update log missing: %v", err)
	}
}

func TestConcurrentSubmissionsGetDistinctLogs(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	f := newFixture(t, nil)
	f.manager.now = func() time.Time { return fixed }

	const n = 16
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := f.manager.SubmitDownload(DownloadRequest{
				URL:             fmt.Sprintf("http://example/%d", i),
				OutputDirectory: f.dlDir,
				Subdirectory:    fmt.Sprintf("batch%d", i),
			})
			if err != nil {
				t.Errorf("submit %d: %v", i, err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !f.manager.WaitAll(ctx) {
		t.Fatalf("tasks did not finish")
	}

	seen := make(map[string]struct{}, n)
	for _, h := range handles {
		if h == nil {
			t.Fatalf("missing handle")
		}
		if _, dup := seen[h.ID()]; dup {
			t.Fatalf("duplicate task id %s", h.ID())
		}
		seen[h.ID()] = struct{}{}
		if !strings.HasPrefix(h.ID(), "2025-01-02T03:04:05.006Z") {
			t.Fatalf("unexpected id format %s", h.ID())
		}
	}
	entries, err := os.ReadDir(f.logDir)
	if err != nil {
		t.Fatalf("read log dir: %v", err)
	}
	if len(entries) != n {
		t.Fatalf("expected %d log files, got %d", n, len(entries))
	}
	if f.manager.Registry().Len() != 0 {
		t.Fatalf("expected empty registry, got %d", f.manager.Registry().Len())
	}
}

func TestConfigChangesDoNotReachInFlightTasks(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.block = make(chan struct{})

	h, err := f.manager.SubmitDownload(DownloadRequest{URL: "http://example/a", OutputDirectory: f.dlDir})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	live := f.manager.Config()
	live.RelocatorPath = "changed"
	live.OutputDirectories[0].DestinationLocal = "/changed"

	close(f.runner.block)
	waitResult(t, h)
	mv := f.runner.Calls()[1]
	if mv.executable != "rsync" || mv.args[len(mv.args)-1] != f.libDir {
		t.Fatalf("task observed a config change: %+v", mv)
	}
}

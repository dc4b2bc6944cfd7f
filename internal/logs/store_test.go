package logs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCreateIsFresh(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "logs"))
	f, err := s.Create("2025-01-01T00:00:00.000Z")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = f.WriteString("hello\n")
	_ = f.Close()

	if got := s.Path("2025-01-01T00:00:00.000Z"); filepath.Dir(got) != s.Dir() || filepath.Ext(got) != Ext {
		t.Fatalf("unexpected log path %q", got)
	}
	if _, err := s.Create("2025-01-01T00:00:00.000Z"); err == nil {
		t.Fatalf("expected reuse of an existing log to fail")
	}
}

func TestListNewestFirstAndRead(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, id := range []string{"2025-01-01T00:00:00.000Z", "2025-03-01T00:00:00.000Z", "2025-02-01T00:00:00.000Z"} {
		f, err := s.Create(id)
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
		_, _ = f.WriteString(id)
		_ = f.Close()
	}
	if err := os.Mkdir(filepath.Join(s.Dir(), "subdir"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", entries)
	}
	if entries[0].Name != "2025-03-01T00:00:00.000Z.log" || entries[2].Name != "2025-01-01T00:00:00.000Z.log" {
		t.Fatalf("unexpected order: %+v", entries)
	}

	text, err := s.Read(entries[0].Name)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if text != "2025-03-01T00:00:00.000Z" {
		t.Fatalf("unexpected content %q", text)
	}
}

func TestListMissingDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent"))
	entries, err := s.List()
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty list, got %v, %v", entries, err)
	}
}

func TestDelete(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, id := range []string{"a", "b", "c"} {
		f, err := s.Create(id)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		_ = f.Close()
	}

	if err := s.Delete("a.log"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete("a.log"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(AllID); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	entries, _ := s.List()
	if len(entries) != 0 {
		t.Fatalf("expected no logs left, got %+v", entries)
	}
}

func TestRejectsTraversal(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, name := range []string{"", ".", "..", "../x.log", "a/b.log", `..\x.log`} {
		if _, err := s.Read(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("read %q: expected ErrInvalidName, got %v", name, err)
		}
		if err := s.Delete(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("delete %q: expected ErrInvalidName, got %v", name, err)
		}
	}
}

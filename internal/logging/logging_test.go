package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func logFiles(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return entries
}

func TestSyncModeWritesLines(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, 1000, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.Infof("hello %s", "world")
	l.Flush()

	entries := logFiles(t, dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log file, got %d", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello world") {
		t.Fatalf("log file missing message: %q", data)
	}
	if !strings.Contains(string(data), "[INFO]") {
		t.Fatalf("log file missing level: %q", data)
	}
}

func TestAsyncModeDrainsOnClose(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, 1000, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 50; i++ {
		l.Debugf("line %d", i)
	}
	l.Close()

	entries := logFiles(t, dir)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Count(string(data), "\n") != 50 {
		t.Fatalf("expected 50 lines, got %d", strings.Count(string(data), "\n"))
	}
}

func TestRotatesOnLineCount(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, 5, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	for i := 0; i < 12; i++ {
		l.Infof("line %d", i)
		time.Sleep(time.Millisecond) // keep rotated filenames distinct
	}

	entries := logFiles(t, dir)
	if len(entries) < 2 {
		t.Fatalf("expected rotation to produce multiple files, got %d", len(entries))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir, 1000, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Close()
	l.Close()
}

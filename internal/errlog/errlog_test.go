package errlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDumpErrorsWritesOrderedEntries(t *testing.T) {
	dir := t.TempDir()
	l := New(filepath.Join(dir, "logs"))
	l.now = func() time.Time { return time.Date(2016, 7, 13, 10, 28, 0, 5, time.UTC) }

	l.LogError("Could not resolve host: lillywood")
	l.LogError("The requested URL returned HTTP code 404")

	name, err := l.DumpErrors()
	if err != nil {
		t.Fatalf("DumpErrors: %v", err)
	}
	if filepath.Base(name) != "updatererrors_20160713T102800.000000005.log" {
		t.Fatalf("unexpected file name %s", name)
	}

	raw, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 || lines[0] != "Could not resolve host: lillywood" || lines[1] != "The requested URL returned HTTP code 404" {
		t.Fatalf("unexpected dump contents %q", raw)
	}
	if l.Len() != 2 {
		t.Fatalf("dump should keep buffered errors, Len = %d", l.Len())
	}
}

func TestDumpErrorsEmpty(t *testing.T) {
	l := New(t.TempDir())
	name, err := l.DumpErrors()
	if err != nil {
		t.Fatalf("DumpErrors: %v", err)
	}
	info, err := os.Stat(name)
	if err != nil {
		t.Fatalf("stat dump: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected empty file, got %d bytes", info.Size())
	}
}

func TestErrorsReturnsCopy(t *testing.T) {
	l := New("")
	l.LogError("a")
	got := l.Errors()
	got[0] = "b"
	if l.Errors()[0] != "a" {
		t.Fatalf("Errors exposed internal slice")
	}
}

// Package errlog buffers failure texts in memory and dumps them to a
// timestamp-named file on request.
package errlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	filePrefix      = "updatererrors_"
	fileExt         = ".log"
	timestampLayout = "20060102T150405.000000000"
)

// ErrorLogger accumulates error texts in the order they were logged.
type ErrorLogger struct {
	mu     sync.Mutex
	dir    string
	errors []string
	now    func() time.Time
}

// New returns an ErrorLogger that dumps into dir. An empty dir means the
// working directory.
func New(dir string) *ErrorLogger {
	return &ErrorLogger{dir: dir, now: time.Now}
}

// LogError appends text to the buffered errors.
func (l *ErrorLogger) LogError(text string) {
	l.mu.Lock()
	l.errors = append(l.errors, text)
	l.mu.Unlock()
}

// Len returns the number of buffered errors.
func (l *ErrorLogger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

// Errors returns a copy of the buffered errors.
func (l *ErrorLogger) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.errors))
	copy(out, l.errors)
	return out
}

// DumpErrors writes every buffered error, one per line, to
// updatererrors_<timestamp>.log and returns the path of that file.
func (l *ErrorLogger) DumpErrors() (string, error) {
	entries := l.Errors()

	if l.dir != "" {
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			return "", fmt.Errorf("create error log directory: %w", err)
		}
	}
	name := filepath.Join(l.dir, filePrefix+l.now().UTC().Format(timestampLayout)+fileExt)

	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("open error log: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e); err != nil {
			f.Close()
			return "", fmt.Errorf("write error log: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("flush error log: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close error log: %w", err)
	}
	return name, nil
}

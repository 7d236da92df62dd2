// Package transcript appends completed exchanges to a JSON-lines file.
package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Exchange is one query and the text produced for it.
type Exchange struct {
	SessionID string
	Model     string
	Query     string
	Response  string
	// Terminated is set when the answer was interrupted.
	Terminated bool
	FromCache  bool
}

// Log appends exchanges to a file. The file is opened for each write and
// closed afterwards, so several processes can share it.
type Log struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// New returns a Log writing to path.
func New(path string) *Log {
	return &Log{path: path, now: time.Now}
}

// Path returns the file written to.
func (l *Log) Path() string {
	return l.path
}

// Append writes e as one JSON line.
func (l *Log) Append(ctx context.Context, e Exchange) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("transcript: create directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("transcript: open %s: %w", l.path, err)
	}

	h := slog.NewJSONHandler(f, nil)
	rec := slog.NewRecord(l.now(), slog.LevelInfo, "exchange", 0)
	rec.AddAttrs(
		slog.String("session", e.SessionID),
		slog.String("model", e.Model),
		slog.String("query", e.Query),
		slog.String("response", e.Response),
	)
	if e.Terminated {
		rec.AddAttrs(slog.Bool("terminated", true))
	}
	if e.FromCache {
		rec.AddAttrs(slog.Bool("from_cache", true))
	}

	werr := h.Handle(ctx, rec)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("transcript: write: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("transcript: close: %w", cerr)
	}
	return nil
}

package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("invalid line %q: %v", sc.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func TestAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "openai.log")
	l := New(path)
	l.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if err := l.Append(ctx, Exchange{SessionID: "s1", Model: "gpt-4", Query: "hi", Response: "hello"}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := l.Append(ctx, Exchange{SessionID: "s1", Model: "gpt-4", Query: "long\nquery", Response: "par", Terminated: true}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	first := lines[0]
	if first["msg"] != "exchange" || first["query"] != "hi" || first["response"] != "hello" {
		t.Errorf("first = %v", first)
	}
	if first["time"] != "2024-03-01T12:00:00Z" {
		t.Errorf("time = %v", first["time"])
	}
	if _, ok := first["terminated"]; ok {
		t.Error("terminated must be omitted for complete answers")
	}

	second := lines[1]
	if second["query"] != "long\nquery" || second["terminated"] != true {
		t.Errorf("second = %v", second)
	}
}

func TestAppend_UnwritablePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	l := New(filepath.Join(blocker, "openai.log"))
	if err := l.Append(context.Background(), Exchange{Query: "q"}); err == nil {
		t.Error("expected error when parent is a file")
	}
}

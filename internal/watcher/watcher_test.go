package watcher

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/DeusData/importgraph/internal/discover"
)

func TestChangedPaths(t *testing.T) {
	now := time.Now()

	a := map[string]fileSnapshot{
		"main.ts": {modTime: now, size: 100},
		"util.ts": {modTime: now, size: 200},
	}
	b := map[string]fileSnapshot{
		"main.ts": {modTime: now, size: 100},
		"util.ts": {modTime: now, size: 200},
	}
	if got := changedPaths(a, b); len(got) != 0 {
		t.Errorf("identical snapshots should not differ, got %v", got)
	}

	tests := []struct {
		name string
		b    map[string]fileSnapshot
		want []string
	}{
		{"size", map[string]fileSnapshot{
			"main.ts": {modTime: now, size: 101},
			"util.ts": {modTime: now, size: 200},
		}, []string{"main.ts"}},
		{"mtime", map[string]fileSnapshot{
			"main.ts": {modTime: now, size: 100},
			"util.ts": {modTime: now.Add(time.Second), size: 200},
		}, []string{"util.ts"}},
		{"removed", map[string]fileSnapshot{
			"main.ts": {modTime: now, size: 100},
		}, []string{"util.ts"}},
		{"added", map[string]fileSnapshot{
			"main.ts": {modTime: now, size: 100},
			"util.ts": {modTime: now, size: 200},
			"new.ts":  {modTime: now, size: 50},
		}, []string{"new.ts"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := changedPaths(a, tt.b); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPollInterval(t *testing.T) {
	tests := []struct {
		files    int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{499, 1 * time.Second},
		{500, 2 * time.Second},
		{2000, 5 * time.Second},
		{10000, 21 * time.Second},
		{100000, 60 * time.Second},
	}
	for _, tt := range tests {
		got := pollInterval(tt.files)
		if got != tt.expected {
			t.Errorf("pollInterval(%d) = %v, want %v", tt.files, got, tt.expected)
		}
	}
}

func memTarget(t *testing.T) (afero.Fs, Target) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/proj/main.ts", []byte("import './util';\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/proj/README.md", []byte("docs\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return fs, Target{Name: "proj", Root: "/proj", Filter: &discover.Options{FS: fs, NoGitignore: true}}
}

func resetPolls(w *Watcher) {
	for _, state := range w.projects {
		state.nextPoll = time.Time{}
	}
}

func TestCaptureSnapshot(t *testing.T) {
	_, target := memTarget(t)
	snap, err := captureSnapshot(context.Background(), target.Root, target.Filter)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 1 {
		t.Fatalf("expected only main.ts, got %v", snap)
	}
	if s, ok := snap["main.ts"]; !ok || s.size == 0 {
		t.Errorf("expected main.ts with a size, got %+v", snap)
	}
}

func TestWatcherTriggersOnChange(t *testing.T) {
	fs, target := memTarget(t)

	var calls atomic.Int32
	var lastChanged []string
	w := New(func(_ context.Context, name string, changed []string) error {
		if name != "proj" {
			t.Errorf("expected proj, got %s", name)
		}
		calls.Add(1)
		lastChanged = changed
		return nil
	}, target)

	w.pollAll()
	if calls.Load() != 0 {
		t.Errorf("first poll should not trigger, got %d", calls.Load())
	}

	resetPolls(w)
	w.pollAll()
	if calls.Load() != 0 {
		t.Errorf("no-change poll should not trigger, got %d", calls.Load())
	}

	later := time.Now().Add(time.Hour)
	if err := fs.Chtimes("/proj/main.ts", later, later); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/proj/util.ts", []byte("export {};\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Non-source files are not watched.
	if err := afero.WriteFile(fs, "/proj/notes.txt", []byte("x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	resetPolls(w)
	w.pollAll()
	if calls.Load() != 1 {
		t.Fatalf("changed files should trigger once, got %d", calls.Load())
	}
	if !reflect.DeepEqual(lastChanged, []string{"main.ts", "util.ts"}) {
		t.Errorf("expected [main.ts util.ts], got %v", lastChanged)
	}
}

func TestWatcherRetriesFailedCallback(t *testing.T) {
	fs, target := memTarget(t)

	var calls atomic.Int32
	w := New(func(context.Context, string, []string) error {
		if calls.Add(1) == 1 {
			return errors.New("analysis failed")
		}
		return nil
	}, target)

	w.pollAll()
	if err := afero.WriteFile(fs, "/proj/extra.ts", []byte("export {};\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	resetPolls(w)
	w.pollAll()
	resetPolls(w)
	w.pollAll()
	if calls.Load() != 2 {
		t.Errorf("expected the failed change to be retried, got %d calls", calls.Load())
	}
	resetPolls(w)
	w.pollAll()
	if calls.Load() != 2 {
		t.Errorf("expected no call after a successful retry, got %d", calls.Load())
	}
}

func TestWatcherSkipsMissingRoot(t *testing.T) {
	var calls atomic.Int32
	w := New(func(context.Context, string, []string) error {
		calls.Add(1)
		return nil
	}, Target{Name: "ghost", Root: "/nonexistent/path", Filter: &discover.Options{FS: afero.NewMemMapFs()}})

	w.pollAll()
	resetPolls(w)
	w.pollAll()
	if calls.Load() != 0 {
		t.Errorf("should not analyze a missing root, got %d", calls.Load())
	}
	if w.projects[0].snapshot != nil {
		t.Error("expected no baseline for a missing root")
	}
}

func TestWatcherCancellation(t *testing.T) {
	_, target := memTarget(t)
	w := New(func(context.Context, string, []string) error { return nil }, target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop after context cancellation")
	}
}

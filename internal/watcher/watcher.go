// Package watcher polls project trees and re-runs an analysis when source
// files change.
package watcher

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/afero"

	"github.com/DeusData/importgraph/internal/discover"
)

const (
	baseInterval = 1 * time.Second
	maxInterval  = 60 * time.Second
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

// Target is one watched project.
type Target struct {
	Name string
	Root string
	// Filter selects the watched files. Its FS is used for walking and stat.
	Filter *discover.Options
}

type projectState struct {
	target   Target
	snapshot map[string]fileSnapshot
	interval time.Duration
	nextPoll time.Time
}

// ChangeFunc is called with the sorted relative paths that were added,
// removed or modified since the last successful call.
type ChangeFunc func(ctx context.Context, name string, changed []string) error

// Watcher polls targets for file changes and triggers the change callback.
type Watcher struct {
	onChange ChangeFunc
	projects []*projectState
	ctx      context.Context
}

// New creates a Watcher over targets.
func New(onChange ChangeFunc, targets ...Target) *Watcher {
	w := &Watcher{onChange: onChange}
	for _, t := range targets {
		w.projects = append(w.projects, &projectState{target: t})
	}
	return w
}

// Run blocks until ctx is cancelled. Ticks at baseInterval, polling each
// target only when its adaptive interval has elapsed.
func (w *Watcher) Run(ctx context.Context) {
	w.ctx = ctx
	ticker := time.NewTicker(baseInterval)
	defer ticker.Stop()

	w.pollAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollAll()
		}
	}
}

func (w *Watcher) pollAll() {
	if w.ctx == nil {
		w.ctx = context.Background()
	}
	now := time.Now()
	for _, state := range w.projects {
		if now.Before(state.nextPoll) {
			continue
		}
		w.pollProject(state)
	}
}

// pollProject compares a fresh snapshot with the previous one. The first poll
// only records a baseline.
func (w *Watcher) pollProject(state *projectState) {
	t := state.target
	fs := filterFS(t.Filter)
	if ok, err := afero.DirExists(fs, t.Root); err != nil || !ok {
		slog.Warn("watcher.root_gone", "project", t.Name, "path", t.Root)
		state.nextPoll = time.Now().Add(maxInterval)
		return
	}

	snap, err := captureSnapshot(w.ctx, t.Root, t.Filter)
	if err != nil {
		slog.Warn("watcher.snapshot", "project", t.Name, "err", err)
		state.nextPoll = time.Now().Add(state.interval)
		return
	}

	interval := pollInterval(len(snap))

	if state.snapshot == nil {
		slog.Debug("watcher.baseline", "project", t.Name, "files", len(snap))
		state.snapshot = snap
		state.interval = interval
		state.nextPoll = time.Now().Add(interval)
		return
	}

	changed := changedPaths(state.snapshot, snap)
	if len(changed) == 0 {
		state.interval = interval
		state.nextPoll = time.Now().Add(interval)
		return
	}

	slog.Info("watcher.changed", "project", t.Name, "files", len(snap), "changed", len(changed))
	if err := w.onChange(w.ctx, t.Name, changed); err != nil {
		slog.Warn("watcher.analyze", "project", t.Name, "err", err)
		// Keep old snapshot so we retry next cycle
		state.nextPoll = time.Now().Add(interval)
		return
	}

	state.snapshot = snap
	state.interval = interval
	state.nextPoll = time.Now().Add(interval)
}

func filterFS(opts *discover.Options) afero.Fs {
	if opts == nil || opts.FS == nil {
		return afero.NewOsFs()
	}
	return opts.FS
}

// captureSnapshot walks root with discover.Discover and records mtime+size
// for each file.
func captureSnapshot(ctx context.Context, root string, opts *discover.Options) (map[string]fileSnapshot, error) {
	files, err := discover.Discover(ctx, root, opts)
	if err != nil {
		return nil, err
	}

	fs := filterFS(opts)
	snap := make(map[string]fileSnapshot, len(files))
	for _, f := range files {
		info, statErr := fs.Stat(f.Path)
		if statErr != nil {
			continue
		}
		snap[f.RelPath] = fileSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
		}
	}
	return snap, nil
}

// changedPaths returns the sorted paths that differ between two snapshots.
func changedPaths(a, b map[string]fileSnapshot) []string {
	var changed []string
	for path, aSnap := range a {
		bSnap, ok := b[path]
		if !ok || !aSnap.modTime.Equal(bSnap.modTime) || aSnap.size != bSnap.size {
			changed = append(changed, path)
		}
	}
	for path := range b {
		if _, ok := a[path]; !ok {
			changed = append(changed, path)
		}
	}
	slices.Sort(changed)
	return changed
}

// pollInterval computes the adaptive interval from file count.
// 1s base + 1s per 500 files, capped at 60s.
func pollInterval(fileCount int) time.Duration {
	ms := 1000 + (fileCount/500)*1000
	if ms > 60000 {
		ms = 60000
	}
	return time.Duration(ms) * time.Millisecond
}

// Package pipeline builds the module dependency graph of a project: it
// walks import edges out from the entry files, then counts export usage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/spf13/afero"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DeusData/importgraph/internal/aliasconfig"
	"github.com/DeusData/importgraph/internal/discover"
	"github.com/DeusData/importgraph/internal/fsys"
	"github.com/DeusData/importgraph/internal/graph"
	"github.com/DeusData/importgraph/internal/lang"
	"github.com/DeusData/importgraph/internal/resolve"
)

var (
	// ErrNoEntries is returned when no entry file is given.
	ErrNoEntries = errors.New("no entry files")
	// ErrEntryOutsideScan is returned when an entry file lies outside every
	// scan directory.
	ErrEntryOutsideScan = errors.New("entry file outside scan directories")
)

var tracer = otel.Tracer("github.com/DeusData/importgraph/internal/pipeline")

// Options configures one build.
type Options struct {
	Root     string   // workspace root; defaults to the working directory
	Entries  []string // traversal roots, required
	Exits    []string // optional sinks for pruning
	ScanDirs []string // restrict analysis to these directories; defaults to Root

	Include *regexp.Regexp
	Exclude *regexp.Regexp

	IgnoreDirs  []string // extra directory globs for discovery
	NoGitignore bool

	Workers int      // worker pool size per wave; defaults to NumCPU
	FS      afero.Fs // nil selects the OS file system

	// ScanAll seeds every scanned file, not only the entries, so files no
	// one imports are part of the graph.
	ScanAll bool
}

// Builder orchestrates one graph build.
type Builder struct {
	ctx  context.Context
	opts Options

	fs       *fsys.FS
	resolver *resolve.Resolver

	root     string
	scanDirs []string
	entries  []string
	exits    []string
	exitSet  map[string]bool
	filter   *discover.Options

	graph *graph.Graph
	// asts maps file id -> parsed tree kept from the import wave for the
	// export and usage waves.
	asts map[string]*cachedAST
	// specifiers maps file id -> raw specifier -> resolution from the
	// import wave; re-exports are resolved through it.
	specifiers map[string]map[string]resolve.Result
}

type cachedAST struct {
	Tree     *tree_sitter.Tree
	Source   []byte
	Language lang.Language
}

// New creates a Builder. Nothing is read until Build.
func New(ctx context.Context, opts Options) *Builder {
	return &Builder{ctx: ctx, opts: opts}
}

// ProjectNameFromPath derives a unique project name from an absolute path
// by replacing path separators with dashes and trimming the leading dash.
func ProjectNameFromPath(absPath string) string {
	cleaned := filepath.ToSlash(filepath.Clean(absPath))
	name := strings.ReplaceAll(cleaned, "/", "-")
	name = strings.TrimLeft(name, "-")
	if name == "" {
		return "root"
	}
	return name
}

// checkCancel returns ctx.Err() if the build's context has been cancelled.
func (b *Builder) checkCancel() error {
	return b.ctx.Err()
}

func (b *Builder) workers() int {
	if b.opts.Workers > 0 {
		return b.opts.Workers
	}
	return runtime.NumCPU()
}

// Build runs validation, the import wave and the export/usage waves, then
// prunes to exits when exits were given.
func (b *Builder) Build() (*graph.Graph, error) {
	if err := b.init(); err != nil {
		return nil, err
	}
	defer b.closeASTs()

	ctx, span := tracer.Start(b.ctx, "pipeline.build", trace.WithAttributes(
		attribute.String("root", b.root),
		attribute.Int("entries", len(b.entries)),
	))
	defer span.End()

	slog.Info("pipeline.start", "root", b.root, "entries", len(b.entries), "scan_dirs", len(b.scanDirs))

	t := time.Now()
	seeds, err := b.seed()
	if err != nil {
		return nil, err
	}
	slog.Info("pass.timing", "pass", "seed", "files", len(seeds), "elapsed", time.Since(t))
	if err := b.checkCancel(); err != nil {
		return nil, err
	}

	t = time.Now()
	b.passImports(ctx, seeds)
	slog.Info("pass.timing", "pass", "imports", "files", len(b.asts), "elapsed", time.Since(t))
	if err := b.checkCancel(); err != nil {
		return nil, err
	}

	files := b.parsedFiles()

	t = time.Now()
	b.passExports(ctx, files)
	slog.Info("pass.timing", "pass", "exports", "elapsed", time.Since(t))
	if err := b.checkCancel(); err != nil {
		return nil, err
	}

	t = time.Now()
	b.passUsages(ctx, files)
	slog.Info("pass.timing", "pass", "usages", "elapsed", time.Since(t))
	if err := b.checkCancel(); err != nil {
		return nil, err
	}

	if len(b.exits) > 0 {
		removed := b.graph.PruneToExits(b.exits)
		slog.Info("pipeline.prune", "exits", len(b.exits), "removed", len(removed))
	}

	span.SetAttributes(
		attribute.Int("files", b.graph.Len()),
		attribute.Int("unparsable", b.graph.Unparsable),
		attribute.Int("unresolved", b.graph.Unresolved),
	)
	slog.Info("pipeline.done",
		"files", b.graph.Len(),
		"unparsable", b.graph.Unparsable,
		"unresolved", b.graph.Unresolved)
	return b.graph, nil
}

// init validates the options and resets per-build state.
func (b *Builder) init() error {
	if len(b.opts.Entries) == 0 {
		return ErrNoEntries
	}

	root := b.opts.Root
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("root: %w", err)
	}
	b.root = root

	b.scanDirs = absPaths(root, b.opts.ScanDirs)
	if len(b.scanDirs) == 0 {
		b.scanDirs = []string{root}
	}
	b.entries = absPaths(root, b.opts.Entries)
	for _, e := range b.entries {
		if !b.inScan(e) {
			return fmt.Errorf("%w: %s", ErrEntryOutsideScan, e)
		}
	}
	b.exits = absPaths(root, b.opts.Exits)
	b.exitSet = make(map[string]bool, len(b.exits))
	for _, e := range b.exits {
		b.exitSet[e] = true
	}

	b.fs = fsys.New(b.opts.FS)
	b.resolver = resolve.New(b.fs, root, aliasconfig.NewResolver(b.fs, root))
	b.filter = &discover.Options{
		FS:          b.fs.Afero(),
		IgnoreDirs:  b.opts.IgnoreDirs,
		Include:     b.opts.Include,
		Exclude:     b.opts.Exclude,
		NoGitignore: b.opts.NoGitignore,
	}

	b.graph = graph.New(root)
	b.graph.Entries = slices.Clone(b.entries)
	b.graph.Exits = slices.Clone(b.exits)
	b.graph.Exclude = func(id string) bool {
		return !b.inScan(id) || !b.filter.Matches(id)
	}
	b.asts = make(map[string]*cachedAST)
	b.specifiers = make(map[string]map[string]resolve.Result)
	return nil
}

func (b *Builder) inScan(path string) bool {
	for _, dir := range b.scanDirs {
		if fsys.Within(dir, path) {
			return true
		}
	}
	return false
}

// ensure creates or returns a record, flagging exits on creation.
func (b *Builder) ensure(id string, kind graph.Kind) (*graph.FileRecord, bool) {
	rec, created := b.graph.Ensure(id, kind)
	if created && b.exitSet[id] {
		rec.IsExit = true
	}
	return rec, created
}

// seed creates the entry records and, with ScanAll, a record for every
// scanned source file. It returns the first import frontier.
func (b *Builder) seed() ([]string, error) {
	var frontier []string
	for _, e := range b.entries {
		rec, created := b.ensure(e, graph.Internal)
		rec.IsEntry = true
		if created {
			frontier = append(frontier, e)
		}
	}

	if b.opts.ScanAll {
		for _, dir := range b.scanDirs {
			files, err := discover.Discover(b.ctx, dir, b.filter)
			if err != nil {
				return nil, fmt.Errorf("discover %s: %w", dir, err)
			}
			for _, f := range files {
				if _, created := b.ensure(f.Path, graph.Internal); created {
					frontier = append(frontier, f.Path)
				}
			}
		}
	}
	slices.Sort(frontier)
	return frontier, nil
}

// parsedFiles lists the files that made it through the import wave.
func (b *Builder) parsedFiles() []string {
	ids := make([]string, 0, len(b.asts))
	for id := range b.asts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (b *Builder) closeASTs() {
	for id, c := range b.asts {
		c.Tree.Close()
		delete(b.asts, id)
	}
}

func absPaths(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		out = append(out, filepath.Clean(p))
	}
	return out
}

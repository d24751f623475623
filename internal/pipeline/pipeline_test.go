package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"

	"github.com/spf13/afero"

	"github.com/DeusData/importgraph/internal/config"
	"github.com/DeusData/importgraph/internal/graph"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		writeFile(t, filepath.Join(dir, rel), content)
	}
	return dir
}

func build(t *testing.T, opts Options) *graph.Graph {
	t.Helper()
	g, err := New(context.Background(), opts).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func exportRefs(t *testing.T, g *graph.Graph, id, name string) int {
	t.Helper()
	rec := g.Get(id)
	if rec == nil {
		t.Fatalf("missing record %s", id)
	}
	info, ok := rec.ExportedSymbols[name]
	if !ok {
		t.Fatalf("%s does not export %s (exports: %v)", id, name, rec.ExportedSymbols)
	}
	return info.References
}

func TestBuildBasic(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/main.ts": `
import { add } from './math';
import React from 'react';
export const total = add(1, 2);
`,
		"src/math.ts": "export function add(a: number, b: number) { return a + b; }\n",
	})
	main := filepath.Join(dir, "src/main.ts")
	math := filepath.Join(dir, "src/math.ts")
	react := filepath.Join(dir, "node_modules/react")

	g := build(t, Options{Root: dir, Entries: []string{"src/main.ts"}})

	rec := g.Get(main)
	if rec == nil || !rec.IsEntry {
		t.Fatalf("expected entry record for %s", main)
	}
	if want := []string{react, math}; !reflect.DeepEqual(rec.Dependencies, want) {
		t.Errorf("expected dependencies %v, got %v", want, rec.Dependencies)
	}
	if ext := g.Get(react); ext == nil || ext.Kind != graph.External {
		t.Errorf("expected external record for react, got %+v", ext)
	}
	if got := exportRefs(t, g, math, "add"); got != 1 {
		t.Errorf("expected add referenced once, got %d", got)
	}
	if rec.Language != "typescript" {
		t.Errorf("expected language typescript, got %q", rec.Language)
	}
	if st := g.Get(math).State(); st != graph.UsageResolved {
		t.Errorf("expected math to be usage-resolved, got %s", st)
	}
}

func TestBuildIdempotent(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.js": "import { b } from './b';\nimport c from './c';\nb(c);\n",
		"b.js": "import './a';\nexport function b() {}\n",
		"c.js": "export default 1;\nexport const unused = 2;\n",
		"d.js": "require('./c');\n",
	})
	opts := Options{Root: dir, Entries: []string{"a.js"}, ScanAll: true, Workers: 4}

	first := build(t, opts).Snapshot()
	second := build(t, opts).Snapshot()
	if !reflect.DeepEqual(first, second) {
		t.Error("expected identical snapshots for identical inputs")
	}
}

func TestBuildCycle(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.ts": "import { b } from './b';\nexport const a = b;\n",
		"b.ts": "import { c } from './c';\nexport const b = c;\n",
		"c.ts": "import { a } from './a';\nexport const c = 1;\nconsole.log(a);\n",
	})

	g := build(t, Options{Root: dir, Entries: []string{"a.ts"}})

	if g.Len() != 3 {
		t.Fatalf("expected 3 files, got %d", g.Len())
	}
	if len(g.VisitedFiles) != 3 {
		t.Errorf("expected each file visited once, got %d", len(g.VisitedFiles))
	}
	edges := g.Edges()
	if len(edges) != 3 {
		t.Fatalf("expected 3 edges, got %v", edges)
	}
	for _, e := range edges {
		if !e.Cyclic {
			t.Errorf("expected edge %s -> %s to be cyclic", e.Source, e.Target)
		}
	}
	for _, name := range []string{"a", "b", "c"} {
		if got := exportRefs(t, g, filepath.Join(dir, name+".ts"), name); got != 1 {
			t.Errorf("expected %s referenced once, got %d", name, got)
		}
	}
}

func TestBuildScanAllFindsUnimportedFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"e.ts": "import './f';\n",
		"f.ts": "export {};\n",
		"g.ts": "export const orphan = 1;\n",
	})

	withScan := build(t, Options{Root: dir, Entries: []string{"e.ts"}, ScanAll: true})
	if withScan.Get(filepath.Join(dir, "g.ts")) == nil {
		t.Error("expected g.ts to be part of the graph with ScanAll")
	}

	without := build(t, Options{Root: dir, Entries: []string{"e.ts"}})
	if without.Get(filepath.Join(dir, "g.ts")) != nil {
		t.Error("expected g.ts to be undiscovered without ScanAll")
	}
}

func TestBuildUnusedExport(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ts": "import { used } from './lib';\nused();\nused();\n",
		"lib.ts":  "export function used() {}\nexport function unused() {}\n",
	})
	lib := filepath.Join(dir, "lib.ts")

	g := build(t, Options{Root: dir, Entries: []string{"main.ts"}})
	if got := exportRefs(t, g, lib, "used"); got != 2 {
		t.Errorf("expected used referenced twice, got %d", got)
	}
	if got := exportRefs(t, g, lib, "unused"); got != 0 {
		t.Errorf("expected unused unreferenced, got %d", got)
	}
}

func TestBuildReExports(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ts":    "import { helper, direct } from './index';\nhelper();\n",
		"index.ts":   "export * from './helpers';\nexport { direct } from './direct';\n",
		"helpers.ts": "export function helper() {}\nexport function spare() {}\n",
		"direct.ts":  "export const direct = 1;\n",
	})

	g := build(t, Options{Root: dir, Entries: []string{"main.ts"}})

	// One reference from main.ts through the barrel, one from the barrel itself.
	if got := exportRefs(t, g, filepath.Join(dir, "helpers.ts"), "helper"); got != 2 {
		t.Errorf("expected helper referenced twice, got %d", got)
	}
	if got := exportRefs(t, g, filepath.Join(dir, "helpers.ts"), "spare"); got != 1 {
		t.Errorf("expected star re-export to count once for spare, got %d", got)
	}
	if got := exportRefs(t, g, filepath.Join(dir, "direct.ts"), "direct"); got != 1 {
		t.Errorf("expected named re-export to count once, got %d", got)
	}
	index := g.Get(filepath.Join(dir, "index.ts"))
	info := index.ExportedSymbols["direct"]
	if info == nil || !info.ReExport || info.From != filepath.Join(dir, "direct.ts") {
		t.Errorf("unexpected re-export info %+v", info)
	}
}

func TestBuildStarReExportPassthrough(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ts":    "import { helper } from './index';\nhelper();\n",
		"index.ts":   "export * from './helpers';\n",
		"helpers.ts": "export * from './deep';\nexport function helper() {}\nexport function spare() {}\n",
		"deep.ts":    "export const deep = 1;\n",
	})

	g := build(t, Options{Root: dir, Entries: []string{"main.ts"}})
	helpers := filepath.Join(dir, "helpers.ts")
	if got := exportRefs(t, g, helpers, "spare"); got != 1 {
		t.Errorf("expected spare kept alive by the barrel, got %d", got)
	}
	// deep.ts is re-exported by helpers.ts and again through index.ts.
	if got := exportRefs(t, g, filepath.Join(dir, "deep.ts"), "deep"); got != 2 {
		t.Errorf("expected deep passed through twice, got %d", got)
	}
}

func TestBuildCommonJSModuleValue(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.js":   "const greet = require('./greet');\ngreet('x');\n",
		"greet.js":  "module.exports = function greet(n) { return n; };\n",
		"app.ts":    "import legacy = require('./legacy');\nlegacy();\n",
		"legacy.ts": "function legacy() {}\nexport = legacy;\n",
	})

	g := build(t, Options{Root: dir, Entries: []string{"main.js", "app.ts"}})
	if got := exportRefs(t, g, filepath.Join(dir, "greet.js"), "default"); got != 1 {
		t.Errorf("expected module.exports value referenced once, got %d", got)
	}
	if got := exportRefs(t, g, filepath.Join(dir, "legacy.ts"), "default"); got != 1 {
		t.Errorf("expected export = value referenced once, got %d", got)
	}
}

func TestBuildExitPruning(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.ts": "import './b';\nimport './d';\n",
		"b.ts": "import './c';\n",
		"c.ts": "export {};\n",
		"d.ts": "export {};\n",
	})

	g := build(t, Options{Root: dir, Entries: []string{"a.ts"}, Exits: []string{"c.ts"}})

	for _, name := range []string{"a.ts", "b.ts", "c.ts"} {
		if g.Get(filepath.Join(dir, name)) == nil {
			t.Errorf("expected %s to remain", name)
		}
	}
	if g.Get(filepath.Join(dir, "d.ts")) != nil {
		t.Error("expected d.ts to be pruned")
	}
	if !g.Get(filepath.Join(dir, "c.ts")).IsExit {
		t.Error("expected c.ts flagged as exit")
	}
}

func TestBuildParseFailure(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ts":   "import { x } from './broken';\nimport { y } from './ok';\nx(y);\n",
		"broken.ts": "export const x = (;\nimport './never';\n",
		"ok.ts":     "export const y = 1;\n",
	})
	broken := filepath.Join(dir, "broken.ts")

	g := build(t, Options{Root: dir, Entries: []string{"main.ts"}})

	rec := g.Get(broken)
	if rec == nil || !rec.ParseFailed {
		t.Fatalf("expected broken.ts flagged, got %+v", rec)
	}
	if g.Unparsable != 1 {
		t.Errorf("expected unparsable 1, got %d", g.Unparsable)
	}
	if len(rec.Dependencies) != 0 || len(rec.ExportedSymbols) != 0 {
		t.Errorf("expected no contributions from a broken file, got %+v", rec)
	}
	if got := exportRefs(t, g, filepath.Join(dir, "ok.ts"), "y"); got != 1 {
		t.Errorf("expected the rest of the build to proceed, got %d references", got)
	}
}

func TestBuildDynamicImports(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.js":    "const name = 'x';\nimport(`./pages/${name}`);\nimport('./lazy').then(({ load }) => load());\n",
		"lazy.js":    "export function load() {}\n",
		"pages/x.js": "export default 1;\n",
	})
	main := filepath.Join(dir, "main.js")

	g := build(t, Options{Root: dir, Entries: []string{"main.js"}})

	deps := g.Get(main).Dependencies
	if want := []string{filepath.Join(dir, "lazy.js")}; !reflect.DeepEqual(deps, want) {
		t.Errorf("expected only the static dynamic import, got %v", deps)
	}
	if got := exportRefs(t, g, filepath.Join(dir, "lazy.js"), "load"); got != 1 {
		t.Errorf("expected load referenced through .then, got %d", got)
	}
}

func TestBuildUnresolvedCounter(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ts": "import './missing';\nimport './missing';\n",
	})
	g := build(t, Options{Root: dir, Entries: []string{"main.ts"}})
	if g.Unresolved != 2 {
		t.Errorf("expected 2 unresolved specifiers, got %d", g.Unresolved)
	}
	placeholder := g.Get(filepath.Join(dir, "missing"))
	if placeholder == nil || placeholder.Kind != graph.Unresolved {
		t.Errorf("expected unresolved placeholder, got %+v", placeholder)
	}
}

func TestBuildAliases(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"tsconfig.json":     `{"compilerOptions": {"baseUrl": "src", "paths": {"@utils/*": ["utils/*"]}}}`,
		"src/main.ts":       "import { sum } from '@utils/math';\nsum();\n",
		"src/utils/math.ts": "export const sum = () => 0;\n",
	})

	g := build(t, Options{Root: dir, Entries: []string{"src/main.ts"}})
	math := filepath.Join(dir, "src/utils/math.ts")
	if deps := g.Get(filepath.Join(dir, "src/main.ts")).Dependencies; !reflect.DeepEqual(deps, []string{math}) {
		t.Errorf("expected alias to resolve to %s, got %v", math, deps)
	}
	if got := exportRefs(t, g, math, "sum"); got != 1 {
		t.Errorf("expected sum referenced once, got %d", got)
	}
}

func TestBuildExclude(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ts":         "import './keep';\nimport './gen/skip';\n",
		"keep.ts":         "export {};\n",
		"gen/skip.ts":     "export {};\n",
		"outside/else.ts": "export {};\n",
	})

	g := build(t, Options{
		Root:    dir,
		Entries: []string{"main.ts"},
		Exclude: regexp.MustCompile(`/gen/`),
		ScanAll: true,
	})
	if g.Get(filepath.Join(dir, "gen/skip.ts")) != nil {
		t.Error("expected excluded file to be left out")
	}
	if g.Get(filepath.Join(dir, "keep.ts")) == nil {
		t.Error("expected keep.ts in graph")
	}
	if deps := g.Get(filepath.Join(dir, "main.ts")).Dependencies; len(deps) != 1 {
		t.Errorf("expected excluded dependency dropped, got %v", deps)
	}
}

func TestBuildScanDirs(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"app/main.ts": "import '../lib/util';\n",
		"lib/util.ts": "export {};\n",
		"other/x.ts":  "export {};\n",
	})

	g := build(t, Options{Root: dir, Entries: []string{"app/main.ts"}, ScanDirs: []string{"app"}, ScanAll: true})
	if g.Get(filepath.Join(dir, "lib/util.ts")) != nil {
		t.Error("expected file outside scan dirs to be excluded")
	}
	if g.Get(filepath.Join(dir, "other/x.ts")) != nil {
		t.Error("expected unscanned directory to be ignored")
	}
}

func TestBuildValidation(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.ts": "export {};\n"})

	_, err := New(context.Background(), Options{Root: dir}).Build()
	if !errors.Is(err, ErrNoEntries) {
		t.Errorf("expected ErrNoEntries, got %v", err)
	}

	_, err = New(context.Background(), Options{
		Root:     dir,
		Entries:  []string{"/elsewhere/main.ts"},
		ScanDirs: []string{"."},
	}).Build()
	if !errors.Is(err, ErrEntryOutsideScan) {
		t.Errorf("expected ErrEntryOutsideScan, got %v", err)
	}
}

func TestBuildCancelled(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.ts": "export {};\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(ctx, Options{Root: dir, Entries: []string{"a.ts"}}).Build()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBuildMemoryFS(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/proj/index.tsx":        "\ufeffimport Button from './Button';\nexport const App = () => <Button />;\n",
		"/proj/Button/index.tsx": "export default function Button() { return null; }\n",
	}
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	g := build(t, Options{Root: "/proj", Entries: []string{"index.tsx"}, FS: fs})
	if got := exportRefs(t, g, "/proj/Button/index.tsx", "default"); got != 1 {
		t.Errorf("expected default export referenced once, got %d", got)
	}
}

func TestProjectNameFromPath(t *testing.T) {
	tests := map[string]string{
		"/home/user/app": "home-user-app",
		"/":              "root",
	}
	for in, want := range tests {
		if got := ProjectNameFromPath(in); got != want {
			t.Errorf("ProjectNameFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOptionsFromConfig(t *testing.T) {
	workers := 3
	scanAll := false
	cfg := &config.Config{
		Entries:  []string{"src/main.ts"},
		ScanDirs: []string{"src"},
		Exclude:  `\.test\.ts$`,
		Workers:  &workers,
		ScanAll:  &scanAll,
	}
	opts, err := OptionsFromConfig("/proj", cfg)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Workers != 3 || opts.ScanAll || opts.NoGitignore {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.Exclude == nil || !opts.Exclude.MatchString("/proj/src/a.test.ts") {
		t.Error("expected exclude pattern to be compiled")
	}
	if opts.Include != nil {
		t.Error("expected no include pattern")
	}

	if _, err := OptionsFromConfig("/proj", &config.Config{Include: "("}); err == nil {
		t.Error("expected an error for an invalid pattern")
	}

	opts, err = OptionsFromConfig("/proj", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !opts.ScanAll {
		t.Error("expected scan_all to default to true")
	}
}

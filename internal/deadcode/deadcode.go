// Package deadcode classifies dead files and unused exports over a
// completed dependency graph.
package deadcode

import (
	"slices"

	"github.com/DeusData/importgraph/internal/graph"
	"github.com/DeusData/importgraph/internal/traverse"
)

// Report is the analyzer output. All lists are sorted.
type Report struct {
	// DeadFiles are internal files nothing imports, excluding entries and
	// exits.
	DeadFiles []string `json:"dead_files"`
	// UnreachableFiles are internal non-entry files no entry reaches. It is
	// a superset of DeadFiles that also catches isolated import cycles.
	UnreachableFiles []string `json:"unreachable_files"`
	// UnusedExportsByFile maps a file to its exports with zero references.
	UnusedExportsByFile map[string][]string `json:"unused_exports_by_file"`
	Stats               Stats               `json:"stats"`
}

// Stats summarises a report.
type Stats struct {
	Files         int `json:"files"`
	InternalFiles int `json:"internal_files"`
	ExternalFiles int `json:"external_files"`
	Unresolved    int `json:"unresolved"`
	Unparsable    int `json:"unparsable"`
	DeadFiles     int `json:"dead_files"`
	Unreachable   int `json:"unreachable_files"`
	Exports       int `json:"exports"`
	UnusedExports int `json:"unused_exports"`
}

// Analyze classifies g. It only reads the graph.
func Analyze(g *graph.Graph) *Report {
	in := g.InDegrees()
	reachable := g.ReachableFrom(g.Entries)

	r := &Report{
		DeadFiles:           []string{},
		UnreachableFiles:    []string{},
		UnusedExportsByFile: map[string][]string{},
	}
	r.Stats.Unresolved = g.Unresolved
	r.Stats.Unparsable = g.Unparsable

	for _, id := range g.IDs() {
		rec := g.Get(id)
		r.Stats.Files++
		if rec.Kind != graph.Internal {
			if rec.Kind == graph.External {
				r.Stats.ExternalFiles++
			}
			continue
		}
		r.Stats.InternalFiles++

		if !rec.IsEntry && !rec.IsExit && in[id] == 0 {
			r.DeadFiles = append(r.DeadFiles, id)
		}
		if !rec.IsEntry && !reachable[id] {
			r.UnreachableFiles = append(r.UnreachableFiles, id)
		}

		if rec.ParseFailed {
			continue
		}
		var unused []string
		for name, info := range rec.ExportedSymbols {
			if name == traverse.Namespace {
				continue
			}
			r.Stats.Exports++
			if info.References == 0 {
				unused = append(unused, name)
			}
		}
		if len(unused) > 0 {
			slices.Sort(unused)
			r.UnusedExportsByFile[id] = unused
			r.Stats.UnusedExports += len(unused)
		}
	}

	r.Stats.DeadFiles = len(r.DeadFiles)
	r.Stats.Unreachable = len(r.UnreachableFiles)
	return r
}

// IsDead reports whether id is listed as a dead file.
func (r *Report) IsDead(id string) bool {
	_, found := slices.BinarySearch(r.DeadFiles, id)
	return found
}

// Unused returns the unused exports of id.
func (r *Report) Unused(id string) []string {
	return r.UnusedExportsByFile[id]
}

package graph

import (
	"errors"
	"log/slog"
	"slices"

	dgraph "github.com/dominikbraun/graph"
)

// Edge is a derived dependency edge. Cyclic is true when the target has a
// path back to the source.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Cyclic bool   `json:"cyclic"`
}

// Edges returns every dependency edge sorted by source then target.
func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.edges()
}

func (g *Graph) edges() []Edge {
	component := g.components()
	var edges []Edge
	for _, id := range g.sortedIDs() {
		for _, dep := range g.Files[id].Dependencies {
			if _, ok := g.Files[dep]; !ok {
				continue
			}
			cyclic := id == dep
			if !cyclic {
				c1, ok1 := component[id]
				c2, ok2 := component[dep]
				cyclic = ok1 && ok2 && c1 == c2
			}
			edges = append(edges, Edge{Source: id, Target: dep, Cyclic: cyclic})
		}
	}
	return edges
}

// components maps every file that sits on a cycle of length two or more to
// the index of its strongly connected component.
func (g *Graph) components() map[string]int {
	dg := dgraph.New(dgraph.StringHash, dgraph.Directed())
	for _, id := range g.sortedIDs() {
		if err := dg.AddVertex(id); err != nil && !errors.Is(err, dgraph.ErrVertexAlreadyExists) {
			slog.Warn("graph.vertex.err", "id", id, "err", err)
		}
	}
	for _, id := range g.sortedIDs() {
		for _, dep := range g.Files[id].Dependencies {
			if dep == id {
				continue
			}
			if _, ok := g.Files[dep]; !ok {
				continue
			}
			if err := dg.AddEdge(id, dep); err != nil && !errors.Is(err, dgraph.ErrEdgeAlreadyExists) {
				slog.Warn("graph.edge.err", "source", id, "target", dep, "err", err)
			}
		}
	}

	sccs, err := dgraph.StronglyConnectedComponents(dg)
	if err != nil {
		slog.Warn("graph.scc.err", "err", err)
		return nil
	}
	component := make(map[string]int)
	for i, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		for _, id := range scc {
			component[id] = i
		}
	}
	return component
}

// InDegrees counts, for every file, the distinct other files depending on it.
func (g *Graph) InDegrees() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	in := make(map[string]int, len(g.Files))
	for id := range g.Files {
		in[id] += 0
	}
	for id, rec := range g.Files {
		for _, dep := range rec.Dependencies {
			if dep == id {
				continue
			}
			if _, ok := g.Files[dep]; ok {
				in[dep]++
			}
		}
	}
	return in
}

// ReachableFrom returns every file reachable from ids, ids included.
func (g *Graph) ReachableFrom(ids []string) map[string]bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := make(map[string]bool, len(g.Files))
	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := g.Files[id]; ok && !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.Files[id].Dependencies {
			if _, ok := g.Files[dep]; ok && !seen[dep] {
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return seen
}

// FindPath returns a shortest dependency path from -> to (both included),
// or nil when to is not reachable.
func (g *Graph) FindPath(from, to string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.Files[from]; !ok {
		return nil
	}
	if _, ok := g.Files[to]; !ok {
		return nil
	}
	if from == to {
		return []string{from}
	}

	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.Files[id].Dependencies {
			if _, ok := g.Files[dep]; !ok {
				continue
			}
			if _, seen := prev[dep]; seen {
				continue
			}
			prev[dep] = id
			if dep == to {
				return walkBack(prev, from, to)
			}
			queue = append(queue, dep)
		}
	}
	return nil
}

func walkBack(prev map[string]string, from, to string) []string {
	path := []string{to}
	for id := to; id != from; {
		id = prev[id]
		path = append(path, id)
	}
	slices.Reverse(path)
	return path
}

// PruneToExits removes every file that is not an entry, not an exit and has
// no path to an exit. It returns the removed identities, sorted.
func (g *Graph) PruneToExits(exits []string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	reverse := make(map[string][]string, len(g.Files))
	for id, rec := range g.Files {
		for _, dep := range rec.Dependencies {
			reverse[dep] = append(reverse[dep], id)
		}
	}

	keep := make(map[string]bool, len(g.Files))
	queue := make([]string, 0, len(exits))
	for _, id := range exits {
		if _, ok := g.Files[id]; ok && !keep[id] {
			keep[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, src := range reverse[id] {
			if !keep[src] {
				keep[src] = true
				queue = append(queue, src)
			}
		}
	}

	var removed []string
	for id, rec := range g.Files {
		if keep[id] || rec.IsEntry || rec.IsExit {
			continue
		}
		removed = append(removed, id)
	}
	slices.Sort(removed)
	for _, id := range removed {
		delete(g.Files, id)
		delete(g.VisitedFiles, id)
	}
	for _, rec := range g.Files {
		rec.Dependencies = slices.DeleteFunc(rec.Dependencies, func(dep string) bool {
			_, ok := g.Files[dep]
			return !ok
		})
		for dep := range rec.ImportedSymbols {
			if _, ok := g.Files[dep]; !ok {
				delete(rec.ImportedSymbols, dep)
			}
		}
		rec.StarReExports = slices.DeleteFunc(rec.StarReExports, func(dep string) bool {
			_, ok := g.Files[dep]
			return !ok
		})
	}
	return removed
}

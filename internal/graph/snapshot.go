package graph

import "slices"

// Snapshot is a sorted, self-contained copy of a graph suitable for JSON
// encoding and storage.
type Snapshot struct {
	Root         string        `json:"root"`
	Entries      []string      `json:"entries"`
	Exits        []string      `json:"exits,omitempty"`
	Files        []*FileRecord `json:"files"`
	Edges        []Edge        `json:"edges"`
	VisitedFiles int           `json:"visited_files"`
	Unparsable   int           `json:"unparsable"`
	Unresolved   int           `json:"unresolved"`
}

// Snapshot copies the graph. Later mutations of g do not affect it.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := &Snapshot{
		Root:         g.Root,
		Entries:      sortedCopy(g.Entries),
		Exits:        sortedCopy(g.Exits),
		VisitedFiles: len(g.VisitedFiles),
		Unparsable:   g.Unparsable,
		Unresolved:   g.Unresolved,
		Edges:        g.edges(),
	}
	if s.Edges == nil {
		s.Edges = []Edge{}
	}
	s.Files = make([]*FileRecord, 0, len(g.Files))
	for _, id := range g.sortedIDs() {
		s.Files = append(s.Files, g.Files[id].Clone())
	}
	return s
}

// Restore rebuilds a graph from a snapshot. Visited flags are not part of a
// snapshot, so every record of the result is unclaimed.
func Restore(s *Snapshot) *Graph {
	g := New(s.Root)
	g.Entries = slices.Clone(s.Entries)
	g.Exits = slices.Clone(s.Exits)
	g.Unparsable = s.Unparsable
	g.Unresolved = s.Unresolved
	for _, rec := range s.Files {
		c := rec.Clone()
		c.Visited = 0
		g.Files[c.ID] = c
		if c.Kind == Internal {
			g.VisitedFiles[c.ID] = struct{}{}
		}
	}
	return g
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}

package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/importgraph/internal/graph"
)

type dependencyEntry struct {
	File    string                 `json:"file"`
	Kind    graph.Kind             `json:"kind,omitempty"`
	Symbols []graph.ImportedSymbol `json:"symbols,omitempty"`
}

func (s *Server) handleGetFileDependencies(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	file := getStringArg(args, "file")
	if file == "" {
		return errResult("file is required"), nil
	}
	direction := getStringArg(args, "direction")
	if direction == "" {
		direction = "outbound"
	}
	if direction != "outbound" && direction != "inbound" && direction != "both" {
		return errResult(fmt.Sprintf("invalid direction: %s", direction)), nil
	}

	a, err := s.loadAnalysis(getStringArg(args, "project"))
	if err != nil {
		return errResult(err.Error()), nil
	}
	g := graph.Restore(a.Snapshot)
	id := fileID(a.Snapshot.Root, file)
	rec := g.Get(id)
	if rec == nil {
		return errResult(fmt.Sprintf("file not in graph: %s", id)), nil
	}

	result := map[string]any{
		"project": a.Project,
		"file":    id,
		"kind":    rec.Kind,
	}
	if direction != "inbound" {
		deps, err := s.store.Dependencies(a.Project, id)
		if err != nil {
			return errResult(err.Error()), nil
		}
		out := make([]dependencyEntry, 0, len(deps))
		for _, dep := range deps {
			entry := dependencyEntry{File: dep, Symbols: rec.ImportedSymbols[dep]}
			if target := g.Get(dep); target != nil {
				entry.Kind = target.Kind
			}
			out = append(out, entry)
		}
		result["dependencies"] = out
	}
	if direction != "outbound" {
		dependents, err := s.store.Dependents(a.Project, id)
		if err != nil {
			return errResult(err.Error()), nil
		}
		in := make([]dependencyEntry, 0, len(dependents))
		for _, src := range dependents {
			entry := dependencyEntry{File: src}
			if source := g.Get(src); source != nil {
				entry.Kind = source.Kind
				entry.Symbols = source.ImportedSymbols[id]
			}
			in = append(in, entry)
		}
		result["dependents"] = in
	}
	if exports := rec.ExportedSymbols; len(exports) > 0 {
		result["exports"] = exports
	}
	return jsonResult(result), nil
}

func (s *Server) handleFindDependencyPath(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	from, to := getStringArg(args, "from"), getStringArg(args, "to")
	if from == "" || to == "" {
		return errResult("from and to are required"), nil
	}

	a, err := s.loadAnalysis(getStringArg(args, "project"))
	if err != nil {
		return errResult(err.Error()), nil
	}
	g := graph.Restore(a.Snapshot)
	fromID, toID := fileID(a.Snapshot.Root, from), fileID(a.Snapshot.Root, to)
	for _, id := range []string{fromID, toID} {
		if g.Get(id) == nil {
			return errResult(fmt.Sprintf("file not in graph: %s", id)), nil
		}
	}

	path := g.FindPath(fromID, toID)
	return jsonResult(map[string]any{
		"project": a.Project,
		"from":    fromID,
		"to":      toID,
		"found":   path != nil,
		"path":    path,
		"hops":    max(len(path)-1, 0),
	}), nil
}

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/importgraph/internal/config"
	"github.com/DeusData/importgraph/internal/deadcode"
	"github.com/DeusData/importgraph/internal/fsys"
	"github.com/DeusData/importgraph/internal/graph"
	"github.com/DeusData/importgraph/internal/pipeline"
	"github.com/DeusData/importgraph/internal/store"
)

// Analysis is the outcome of one build plus its dead code report.
type Analysis struct {
	Project  string
	Graph    *graph.Graph
	Snapshot *graph.Snapshot
	Report   *deadcode.Report
	fs       *fsys.FS
}

// Summary condenses an analysis for display.
type Summary struct {
	Project       string `json:"project"`
	Root          string `json:"root"`
	Files         int    `json:"files"`
	InternalFiles int    `json:"internal_files"`
	ExternalFiles int    `json:"external_files"`
	Edges         int    `json:"edges"`
	CyclicEdges   int    `json:"cyclic_edges"`
	DeadFiles     int    `json:"dead_files"`
	Unreachable   int    `json:"unreachable_files"`
	UnusedExports int    `json:"unused_exports"`
	Unresolved    int    `json:"unresolved"`
	Unparsable    int    `json:"unparsable"`
	AnalysisID    int64  `json:"analysis_id,omitempty"`
}

// Analyze builds the graph described by opts and classifies dead code.
func Analyze(ctx context.Context, opts pipeline.Options) (*Analysis, error) {
	g, err := pipeline.New(ctx, opts).Build()
	if err != nil {
		return nil, err
	}
	return &Analysis{
		Project:  pipeline.ProjectNameFromPath(g.Root),
		Graph:    g,
		Snapshot: g.Snapshot(),
		Report:   deadcode.Analyze(g),
		fs:       fsys.New(opts.FS),
	}, nil
}

// Save stores the analysis and the content hashes of its internal files.
func (a *Analysis) Save(st *store.Store) (int64, error) {
	id, err := st.SaveAnalysis(a.Project, a.Snapshot, a.Report)
	if err != nil {
		return 0, fmt.Errorf("save analysis: %w", err)
	}
	var internal []string
	for _, rec := range a.Snapshot.Files {
		if rec.Kind == graph.Internal {
			internal = append(internal, rec.ID)
		}
	}
	if err := st.ReplaceFileHashes(a.Project, store.HashFiles(a.fs, internal)); err != nil {
		return id, fmt.Errorf("save file hashes: %w", err)
	}
	return id, nil
}

// Summary returns the headline numbers of the analysis.
func (a *Analysis) Summary() Summary {
	sum := Summary{
		Project:       a.Project,
		Root:          a.Snapshot.Root,
		Files:         a.Report.Stats.Files,
		InternalFiles: a.Report.Stats.InternalFiles,
		ExternalFiles: a.Report.Stats.ExternalFiles,
		Edges:         len(a.Snapshot.Edges),
		DeadFiles:     a.Report.Stats.DeadFiles,
		Unreachable:   a.Report.Stats.Unreachable,
		UnusedExports: a.Report.Stats.UnusedExports,
		Unresolved:    a.Snapshot.Unresolved,
		Unparsable:    a.Snapshot.Unparsable,
	}
	for _, e := range a.Snapshot.Edges {
		if e.Cyclic {
			sum.CyclicEdges++
		}
	}
	return sum
}

func (s *Server) handleAnalyzeDependencies(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	root := getStringArg(args, "root")
	if root == "" {
		return errResult("root is required"), nil
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return errResult(fmt.Sprintf("invalid path: %v", err)), nil
	}

	opts, err := pipeline.OptionsFromConfig(absRoot, config.LoadConfig(absRoot))
	if err != nil {
		return errResult(fmt.Sprintf("config: %v", err)), nil
	}
	if err := applyArgs(&opts, args); err != nil {
		return errResult(err.Error()), nil
	}
	opts.FS = s.fs

	s.analyzeMu.Lock()
	defer s.analyzeMu.Unlock()

	a, err := Analyze(ctx, opts)
	if err != nil {
		return errResult(fmt.Sprintf("analysis failed: %v", err)), nil
	}
	sum := a.Summary()
	if s.store != nil {
		id, err := a.Save(s.store)
		if err != nil {
			slog.Warn("tools.analyze.save", "project", a.Project, "err", err)
			return errResult(err.Error()), nil
		}
		sum.AnalysisID = id
	}
	return jsonResult(sum), nil
}

// applyArgs overlays tool arguments on config-derived options.
func applyArgs(opts *pipeline.Options, args map[string]any) error {
	if v := getStringsArg(args, "entries"); len(v) > 0 {
		opts.Entries = v
	}
	if v := getStringsArg(args, "exits"); len(v) > 0 {
		opts.Exits = v
	}
	if v := getStringsArg(args, "scan_dirs"); len(v) > 0 {
		opts.ScanDirs = v
	}
	if v := getStringArg(args, "include"); v != "" {
		re, err := regexp.Compile(v)
		if err != nil {
			return fmt.Errorf("include: %w", err)
		}
		opts.Include = re
	}
	if v := getStringArg(args, "exclude"); v != "" {
		re, err := regexp.Compile(v)
		if err != nil {
			return fmt.Errorf("exclude: %w", err)
		}
		opts.Exclude = re
	}
	return nil
}

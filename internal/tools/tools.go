// Package tools exposes dependency analysis as MCP tools.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/afero"

	"github.com/DeusData/importgraph/internal/pipeline"
	"github.com/DeusData/importgraph/internal/store"
)

// Version is reported to MCP clients.
var Version = "dev"

// Server wraps the MCP server with tool handlers.
type Server struct {
	mcp   *mcp.Server
	store *store.Store
	fs    afero.Fs

	// analyzeMu serializes analyses so the watcher and a client do not
	// write the same project concurrently.
	analyzeMu sync.Mutex
}

// NewServer creates a new MCP server with all tools registered. A nil fs
// selects the OS file system.
func NewServer(s *store.Store, fs afero.Fs) *Server {
	srv := &Server{
		store: s,
		fs:    fs,
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    "importgraph",
				Version: Version,
			},
			nil,
		),
	}
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "analyze_dependencies",
		Description: "Analyze the JavaScript/TypeScript module graph of a project. Parses every file reachable from the entry files, resolves relative, alias (tsconfig/jsconfig paths) and package imports, counts export usage and stores the result for the other tools. Settings default to the project's .importgraph.yaml.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"root": {
					"type": "string",
					"description": "Absolute path to the project root"
				},
				"entries": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Entry files, relative to root or absolute. Overrides the config file."
				},
				"exits": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Exit files; the graph is pruned to files that lead to one of them"
				},
				"scan_dirs": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Restrict analysis to these directories (default: root)"
				},
				"include": {
					"type": "string",
					"description": "Only analyze files whose absolute path matches this regex"
				},
				"exclude": {
					"type": "string",
					"description": "Skip files whose absolute path matches this regex"
				}
			},
			"required": ["root"]
		}`),
	}, s.handleAnalyzeDependencies)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "find_dead_code",
		Description: "Return dead files (internal files nothing imports), unreachable files (not reachable from any entry, including isolated import cycles) and exports nothing references, from the latest stored analysis.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project": {
					"type": "string",
					"description": "Project name from list_analyses. Optional when only one project is stored."
				},
				"include_exports": {
					"type": "boolean",
					"description": "Include unused exports per file (default true)"
				}
			}
		}`),
	}, s.handleFindDeadCode)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_file_dependencies",
		Description: "List the files a file imports (outbound), the files importing it (inbound), or both, with the symbols it takes from each dependency.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project": {
					"type": "string",
					"description": "Project name from list_analyses. Optional when only one project is stored."
				},
				"file": {
					"type": "string",
					"description": "File path, absolute or relative to the project root"
				},
				"direction": {
					"type": "string",
					"description": "'outbound' (what it imports), 'inbound' (who imports it) or 'both'",
					"enum": ["outbound", "inbound", "both"]
				}
			},
			"required": ["file"]
		}`),
	}, s.handleGetFileDependencies)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "find_dependency_path",
		Description: "Find a shortest import chain from one file to another. Use to explain why a file ends up in a bundle.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project": {
					"type": "string",
					"description": "Project name from list_analyses. Optional when only one project is stored."
				},
				"from": {
					"type": "string",
					"description": "Start file, absolute or relative to the project root"
				},
				"to": {
					"type": "string",
					"description": "Target file, absolute or relative to the project root"
				}
			},
			"required": ["from", "to"]
		}`),
	}, s.handleFindDependencyPath)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_analyses",
		Description: "List all projects with a stored analysis, with their root path, last analysis time, file/edge counts and dead file count.",
		InputSchema: json.RawMessage(`{"type": "object"}`),
	}, s.handleListAnalyses)
}

// jsonResult marshals data to JSON and returns as tool result.
func jsonResult(data any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return errResult("json marshal err=" + err.Error())
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

// errResult returns a tool result indicating an error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
		IsError: true,
	}
}

// parseArgs unmarshals the raw JSON arguments into a map.
func parseArgs(req *mcp.CallToolRequest) (map[string]any, error) {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(req.Params.Arguments, &m); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return m, nil
}

// getStringArg extracts a string argument from parsed args.
func getStringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// getStringsArg extracts a string array argument. Non-string items are
// dropped.
func getStringsArg(args map[string]any, key string) []string {
	v, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, item := range v {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getBoolArg extracts a boolean argument with a default value.
func getBoolArg(args map[string]any, key string, defaultVal bool) bool {
	v, ok := args[key]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}

// loadAnalysis returns the latest analysis of the requested project. An
// empty name selects the only stored project.
func (s *Server) loadAnalysis(project string) (*store.Analysis, error) {
	if s.store == nil {
		return nil, errors.New("no analysis store configured")
	}
	if project == "" {
		projects, err := s.store.ListProjects()
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		switch len(projects) {
		case 0:
			return nil, errors.New("no stored analysis, run analyze_dependencies first")
		case 1:
			project = projects[0].Name
		default:
			return nil, fmt.Errorf("%d projects stored, pass project", len(projects))
		}
	}
	if filepath.IsAbs(project) {
		project = pipeline.ProjectNameFromPath(project)
	}
	return s.store.LoadAnalysis(project)
}

// fileID maps a user-supplied path to the identity used in the graph.
func fileID(root, path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return filepath.Clean(path)
}

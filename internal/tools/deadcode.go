package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleFindDeadCode(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseArgs(req)
	if err != nil {
		return errResult(err.Error()), nil
	}

	a, err := s.loadAnalysis(getStringArg(args, "project"))
	if err != nil {
		return errResult(err.Error()), nil
	}

	result := map[string]any{
		"project":           a.Project,
		"analyzed_at":       a.CreatedAt,
		"dead_files":        a.Report.DeadFiles,
		"unreachable_files": a.Report.UnreachableFiles,
		"stats":             a.Report.Stats,
	}
	if getBoolArg(args, "include_exports", true) {
		result["unused_exports_by_file"] = a.Report.UnusedExportsByFile
	}
	return jsonResult(result), nil
}

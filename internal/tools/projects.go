package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DeusData/importgraph/internal/store"
)

func (s *Server) handleListAnalyses(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return errResult("no analysis store configured"), nil
	}
	projects, err := s.store.ListProjects()
	if err != nil {
		return errResult(fmt.Sprintf("list projects: %v", err)), nil
	}
	if projects == nil {
		projects = []*store.Project{}
	}
	return jsonResult(projects), nil
}

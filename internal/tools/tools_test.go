package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/afero"

	"github.com/DeusData/importgraph/internal/store"
)

type handler func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error)

func call(t *testing.T, h handler, args string) (string, bool) {
	t.Helper()
	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(args)}}
	res, err := h(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text, res.IsError
}

func decode(t *testing.T, text string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("decode %q: %v", text, err)
	}
}

// newTestServer serves an in-memory project:
//
//	src/main.ts -> src/lib.ts -> src/util.ts
//	src/orphan.ts is imported by nobody.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/proj/src/main.ts":   "import { greet } from './lib';\nimport React from 'react';\ngreet();\n",
		"/proj/src/lib.ts":    "import { pad } from './util';\nexport function greet() { return pad('hi'); }\nexport const spare = 1;\n",
		"/proj/src/util.ts":   "export const pad = (s: string) => s;\n",
		"/proj/src/orphan.ts": "export const lost = 2;\n",
	}
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return NewServer(st, fs)
}

func analyze(t *testing.T, srv *Server) Summary {
	t.Helper()
	text, isErr := call(t, srv.handleAnalyzeDependencies, `{"root": "/proj", "entries": ["src/main.ts"]}`)
	if isErr {
		t.Fatalf("analyze failed: %s", text)
	}
	var sum Summary
	decode(t, text, &sum)
	return sum
}

func TestAnalyzeDependencies(t *testing.T) {
	srv := newTestServer(t)
	sum := analyze(t, srv)

	if sum.Project != "proj" {
		t.Errorf("expected project proj, got %s", sum.Project)
	}
	if sum.InternalFiles != 4 || sum.ExternalFiles != 1 {
		t.Errorf("expected 4 internal and 1 external file, got %+v", sum)
	}
	if sum.Edges != 3 || sum.DeadFiles != 1 || sum.AnalysisID == 0 {
		t.Errorf("unexpected summary %+v", sum)
	}

	hashes, err := srv.store.FileHashes("proj")
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 4 {
		t.Errorf("expected 4 file hashes, got %d", len(hashes))
	}
}

func TestAnalyzeDependenciesErrors(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		args string
		want string
	}{
		{`{}`, "root is required"},
		{`{"root": "/proj"}`, "no entry files"},
		{`{"root": "/proj", "entries": ["src/main.ts"], "exclude": "("}`, "exclude"},
		{`{"root": "/proj", "entries": ["src/main.ts"], "scan_dirs": ["other"]}`, "outside scan"},
	}
	for _, tt := range tests {
		text, isErr := call(t, srv.handleAnalyzeDependencies, tt.args)
		if !isErr || !strings.Contains(text, tt.want) {
			t.Errorf("args %s: expected error containing %q, got %q", tt.args, tt.want, text)
		}
	}
}

func TestFindDeadCode(t *testing.T) {
	srv := newTestServer(t)

	if text, isErr := call(t, srv.handleFindDeadCode, `{}`); !isErr {
		t.Errorf("expected an error before any analysis, got %s", text)
	}

	analyze(t, srv)
	text, isErr := call(t, srv.handleFindDeadCode, `{}`)
	if isErr {
		t.Fatalf("find_dead_code failed: %s", text)
	}
	var out struct {
		DeadFiles           []string            `json:"dead_files"`
		UnusedExportsByFile map[string][]string `json:"unused_exports_by_file"`
	}
	decode(t, text, &out)
	if !reflect.DeepEqual(out.DeadFiles, []string{"/proj/src/orphan.ts"}) {
		t.Errorf("expected orphan.ts dead, got %v", out.DeadFiles)
	}
	want := map[string][]string{
		"/proj/src/lib.ts":    {"spare"},
		"/proj/src/orphan.ts": {"lost"},
	}
	if !reflect.DeepEqual(out.UnusedExportsByFile, want) {
		t.Errorf("expected %v, got %v", want, out.UnusedExportsByFile)
	}

	text, _ = call(t, srv.handleFindDeadCode, `{"project": "proj", "include_exports": false}`)
	if strings.Contains(text, "unused_exports_by_file") {
		t.Error("expected unused exports to be omitted")
	}
}

func TestGetFileDependencies(t *testing.T) {
	srv := newTestServer(t)
	analyze(t, srv)

	text, isErr := call(t, srv.handleGetFileDependencies, `{"file": "src/lib.ts", "direction": "both"}`)
	if isErr {
		t.Fatalf("get_file_dependencies failed: %s", text)
	}
	var out struct {
		Dependencies []dependencyEntry `json:"dependencies"`
		Dependents   []dependencyEntry `json:"dependents"`
	}
	decode(t, text, &out)
	if len(out.Dependencies) != 1 || out.Dependencies[0].File != "/proj/src/util.ts" {
		t.Fatalf("expected util.ts dependency, got %+v", out.Dependencies)
	}
	if syms := out.Dependencies[0].Symbols; len(syms) != 1 || syms[0].Imported != "pad" {
		t.Errorf("expected pad imported from util.ts, got %+v", syms)
	}
	if len(out.Dependents) != 1 || out.Dependents[0].File != "/proj/src/main.ts" {
		t.Fatalf("expected main.ts dependent, got %+v", out.Dependents)
	}
	if syms := out.Dependents[0].Symbols; len(syms) != 1 || syms[0].Imported != "greet" {
		t.Errorf("expected greet imported by main.ts, got %+v", syms)
	}

	text, _ = call(t, srv.handleGetFileDependencies, `{"file": "src/lib.ts"}`)
	if strings.Contains(text, "dependents") {
		t.Error("outbound lookup should not list dependents")
	}

	if _, isErr := call(t, srv.handleGetFileDependencies, `{"file": "src/nope.ts"}`); !isErr {
		t.Error("expected an error for an unknown file")
	}
	if _, isErr := call(t, srv.handleGetFileDependencies, `{"file": "src/lib.ts", "direction": "up"}`); !isErr {
		t.Error("expected an error for an invalid direction")
	}
}

func TestFindDependencyPath(t *testing.T) {
	srv := newTestServer(t)
	analyze(t, srv)

	text, isErr := call(t, srv.handleFindDependencyPath, `{"from": "src/main.ts", "to": "/proj/src/util.ts"}`)
	if isErr {
		t.Fatalf("find_dependency_path failed: %s", text)
	}
	var out struct {
		Found bool     `json:"found"`
		Path  []string `json:"path"`
		Hops  int      `json:"hops"`
	}
	decode(t, text, &out)
	want := []string{"/proj/src/main.ts", "/proj/src/lib.ts", "/proj/src/util.ts"}
	if !out.Found || out.Hops != 2 || !reflect.DeepEqual(out.Path, want) {
		t.Errorf("expected path %v, got %+v", want, out)
	}

	text, _ = call(t, srv.handleFindDependencyPath, `{"from": "src/util.ts", "to": "src/main.ts"}`)
	decode(t, text, &out)
	if out.Found || out.Hops != 0 {
		t.Errorf("expected no reverse path, got %+v", out)
	}
}

func TestListAnalyses(t *testing.T) {
	srv := newTestServer(t)

	text, isErr := call(t, srv.handleListAnalyses, `{}`)
	if isErr || strings.TrimSpace(text) != "[]" {
		t.Errorf("expected empty list, got %s", text)
	}

	analyze(t, srv)
	text, _ = call(t, srv.handleListAnalyses, `{}`)
	var projects []store.Project
	decode(t, text, &projects)
	if len(projects) != 1 || projects[0].Name != "proj" || projects[0].RootPath != "/proj" {
		t.Errorf("unexpected projects %+v", projects)
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	srv := NewServer(nil, nil)
	if srv.MCPServer() == nil {
		t.Fatal("expected an MCP server")
	}
	text, isErr := call(t, srv.handleListAnalyses, `{}`)
	if !isErr || !strings.Contains(text, "no analysis store") {
		t.Errorf("expected store error, got %s", text)
	}
}

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/DeusData/importgraph/internal/graph"
	"github.com/DeusData/importgraph/internal/lang"
	"github.com/DeusData/importgraph/internal/parser"
	"github.com/DeusData/importgraph/internal/resolve"
	"github.com/DeusData/importgraph/internal/traverse"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// importResult is the pure output of one file's import discovery.
type importResult struct {
	ID      string
	Err     error
	AST     *cachedAST
	Imports []resolvedImport
	Skipped int
}

type resolvedImport struct {
	traverse.Import
	Target resolve.Result
}

// passImports runs import discovery frontier by frontier until no new
// internal file turns up. Each frontier is processed in parallel; results
// are merged sequentially.
func (b *Builder) passImports(ctx context.Context, frontier []string) {
	_, span := tracer.Start(ctx, "pipeline.imports")
	defer span.End()

	rounds := 0
	for len(frontier) > 0 {
		rounds++
		results := make([]*importResult, len(frontier))

		g := new(errgroup.Group)
		g.SetLimit(b.workers())
		for i, id := range frontier {
			g.Go(func() error {
				if !b.graph.Claim(id, traverse.ImportDiscovery) {
					return nil
				}
				results[i] = b.discoverImports(id)
				return nil
			})
		}
		_ = g.Wait()

		var next []string
		for _, r := range results {
			if r == nil {
				continue
			}
			next = append(next, b.mergeImports(r)...)
		}
		frontier = next
	}

	span.SetAttributes(attribute.Int("files", len(b.asts)), attribute.Int("rounds", rounds))
}

// discoverImports reads, parses and walks one file. It touches no shared
// state besides the resolver caches.
func (b *Builder) discoverImports(id string) *importResult {
	r := &importResult{ID: id}

	spec := lang.ForPath(id)
	if spec == nil {
		r.Err = fmt.Errorf("unsupported file type")
		return r
	}
	source, err := b.fs.ReadFile(id)
	if err != nil {
		r.Err = fmt.Errorf("read: %w", err)
		return r
	}
	source = bytes.TrimPrefix(source, utf8BOM)

	tree, _, err := parser.ParseLanguage(spec.Language, source)
	if err != nil {
		r.Err = fmt.Errorf("parse: %w", err)
		return r
	}
	r.AST = &cachedAST{Tree: tree, Source: source, Language: spec.Language}

	res := traverse.Traverse(tree.RootNode(), source, traverse.ImportDiscovery, traverse.Options{AddReferences: true})
	r.Skipped = res.Skipped
	r.Imports = make([]resolvedImport, 0, len(res.Imports))
	for _, imp := range res.Imports {
		r.Imports = append(r.Imports, resolvedImport{
			Import: imp,
			Target: b.resolver.Resolve(id, imp.Specifier),
		})
	}
	return r
}

// mergeImports records one file's edges and returns the internal source
// files it discovered for the first time.
func (b *Builder) mergeImports(r *importResult) []string {
	rec := b.graph.Get(r.ID)
	if r.Err != nil {
		slog.Warn("parse.file.err", "path", r.ID, "err", r.Err)
		b.graph.MarkParseFailed(r.ID)
		return nil
	}

	rec.Language = string(r.AST.Language)
	b.asts[r.ID] = r.AST
	if r.Skipped > 0 {
		slog.Debug("imports.dynamic.skipped", "path", r.ID, "count", r.Skipped)
	}

	specs := make(map[string]resolve.Result, len(r.Imports))
	var next []string
	for _, imp := range r.Imports {
		target := imp.Target
		specs[imp.Specifier] = target

		if target.Kind == resolve.Unresolved {
			b.graph.AddUnresolved(1)
		}
		if target.Kind == resolve.Internal && b.graph.Excluded(target.ID) {
			continue
		}

		_, created := b.ensure(target.ID, graph.Kind(target.Kind))
		b.graph.AddDependency(r.ID, target.ID)
		b.graph.AddImportedSymbols(r.ID, target.ID, importedSymbols(imp.Symbols))

		if created && target.Kind == resolve.Internal && lang.IsSource(target.ID) {
			next = append(next, target.ID)
		}
	}
	b.specifiers[r.ID] = specs
	return next
}

func importedSymbols(syms []traverse.Symbol) []graph.ImportedSymbol {
	out := make([]graph.ImportedSymbol, 0, len(syms))
	for _, s := range syms {
		out = append(out, graph.ImportedSymbol{Imported: s.Imported, Local: s.Local, Value: s.Value})
	}
	return out
}

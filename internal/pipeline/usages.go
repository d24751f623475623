package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/DeusData/importgraph/internal/graph"
	"github.com/DeusData/importgraph/internal/traverse"
)

// passUsages counts references to imported exports. It must run after
// passExports so every export a reference can land on is declared.
func (b *Builder) passUsages(ctx context.Context, files []string) {
	_, span := tracer.Start(ctx, "pipeline.usages")
	defer span.End()

	results := b.traverseAll(files, traverse.UsageCheck, func(id string) traverse.Options {
		return traverse.Options{AddReferences: true, Bindings: b.bindings(id)}
	})

	refs, missed := 0, 0
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, ref := range res.References {
			if b.graph.AddReference(ref.Dependency, ref.Symbol, 1) {
				refs++
			} else {
				missed++
			}
		}
	}
	span.SetAttributes(
		attribute.Int("files", len(files)),
		attribute.Int("references", refs),
		attribute.Int("unmatched", missed),
	)
}

// bindings maps each local name of id to the internal export it imports.
func (b *Builder) bindings(id string) map[string][]traverse.Binding {
	rec := b.graph.Get(id)
	if rec == nil {
		return nil
	}
	out := make(map[string][]traverse.Binding)
	for dep, syms := range rec.ImportedSymbols {
		target := b.graph.Get(dep)
		if target == nil || target.Kind != graph.Internal {
			continue
		}
		for _, s := range syms {
			if s.Local == "" {
				continue
			}
			out[s.Local] = append(out[s.Local], traverse.Binding{Dependency: dep, Imported: s.Imported, Value: s.Value})
		}
	}
	return out
}

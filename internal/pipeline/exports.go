package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/DeusData/importgraph/internal/resolve"
	"github.com/DeusData/importgraph/internal/traverse"
)

// reExportRef is a reference owed to a re-export's source, applied once
// every file's exports are known.
type reExportRef struct {
	Target string
	Name   string
}

// passExports discovers the exports of every parsed file.
func (b *Builder) passExports(ctx context.Context, files []string) {
	_, span := tracer.Start(ctx, "pipeline.exports")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(files)))

	results := b.traverseAll(files, traverse.ExportDiscovery, func(string) traverse.Options {
		return traverse.Options{}
	})

	var pending []reExportRef
	for i, res := range results {
		if res == nil {
			continue
		}
		pending = append(pending, b.mergeExports(files[i], res)...)
	}

	// A re-export keeps its source's export alive. Star and namespace
	// re-exports pass every name of the source through.
	for _, p := range pending {
		if p.Name == traverse.Namespace {
			b.graph.ReferenceAll(p.Target, 1)
			continue
		}
		b.graph.AddReference(p.Target, p.Name, 1)
	}
}

func (b *Builder) mergeExports(id string, res *traverse.Result) []reExportRef {
	var pending []reExportRef
	for _, e := range res.Exports {
		if e.ReExportFrom == "" {
			b.graph.AddExport(id, e.Name, false, "")
			continue
		}

		target, ok := b.specifiers[id][e.ReExportFrom]
		internal := ok && target.Kind == resolve.Internal && b.graph.Get(target.ID) != nil
		if e.Star {
			if internal {
				b.graph.AddStarReExport(id, target.ID)
				pending = append(pending, reExportRef{Target: target.ID, Name: traverse.Namespace})
			}
			continue
		}

		from := ""
		if ok {
			from = target.ID
		}
		b.graph.AddExport(id, e.Name, true, from)
		if internal {
			pending = append(pending, reExportRef{Target: target.ID, Name: e.Imported})
		}
	}
	return pending
}

// traverseAll runs one mode over files in parallel. Result i belongs to
// files[i]; it is nil when the file was already claimed for the mode.
func (b *Builder) traverseAll(files []string, mode traverse.Mode, options func(id string) traverse.Options) []*traverse.Result {
	opts := make([]traverse.Options, len(files))
	for i, id := range files {
		opts[i] = options(id)
	}

	results := make([]*traverse.Result, len(files))
	g := new(errgroup.Group)
	g.SetLimit(b.workers())
	for i, id := range files {
		g.Go(func() error {
			if !b.graph.Claim(id, mode) {
				return nil
			}
			ast := b.asts[id]
			results[i] = traverse.Traverse(ast.Tree.RootNode(), ast.Source, mode, opts[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

package workflow

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zhisuan/graphchat/graph"
)

// parallelMultiFileKBQuery is the fan-out variant of multiFileKBQuery: the
// per-item retrieve-and-summarize steps run concurrently with a bounded
// worker count. Event interleaving across items is expected; clients
// demultiplex by the item fields carried on each event.
func (e *Engine) parallelMultiFileKBQuery(ctx context.Context, st graph.State, em *graph.Emitter) error {
	return e.runMultiKBQuery(ctx, st, em, true)
}

func (e *Engine) queryItemsParallel(ctx context.Context, st graph.State, em *graph.Emitter, items []string, itemType, itemLabel string) ([]itemOutcome, error) {
	workers := e.cfg().ParallelWorkers
	if workers <= 0 {
		workers = 4
	}

	outcomes := make([]itemOutcome, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			oc, err := e.processOneItem(gctx, st, em, item, i, len(items), itemType, itemLabel)
			if err != nil {
				return err
			}
			outcomes[i] = oc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

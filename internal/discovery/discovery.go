// Package discovery computes the column universe of a set of audit files:
// every flattened key observed in any event, sorted.
package discovery

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cdtdelta/oci-audit-csv/internal/model"
)

// Result is the outcome of a discovery pass.
type Result struct {
	Columns []string
	Files   int
	Events  int
}

// Discover scans files on at most workers goroutines and returns the sorted
// union of their column names. Each file is read to completion and its keys
// collected locally before being merged, so completion order has no effect
// on the result. A worker count below 1 is treated as 1.
func Discover(ctx context.Context, files []string, workers int, events model.Source) (*Result, error) {
	if workers < 1 {
		workers = 1
	}

	var (
		mu      sync.Mutex
		columns = make(map[string]struct{})
		total   int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			local := make(map[string]struct{})
			n := 0
			for rec := range events(path) {
				for k := range rec {
					local[k] = struct{}{}
				}
				n++
			}

			mu.Lock()
			defer mu.Unlock()
			for k := range local {
				columns[k] = struct{}{}
			}
			total += n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sorted := make([]string, 0, len(columns))
	for k := range columns {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	return &Result{Columns: sorted, Files: len(files), Events: total}, nil
}

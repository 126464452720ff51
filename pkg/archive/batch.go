package archive

import (
	"context"
	"fmt"
	"sync"

	"github.com/hansbonini/galtools/pkg/common"
	"github.com/sourcegraph/conc/pool"
)

// BatchItem is one unit of work in a batch
type BatchItem struct {
	Name string
	Run  func(ctx context.Context) error
}

// BatchResult collects the outcome of a batch run
type BatchResult struct {
	Succeeded []string
	Failed    map[string]error
}

// Err summarises the failures, or returns nil when every item succeeded
func (r *BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d items failed", len(r.Failed), len(r.Failed)+len(r.Succeeded))
}

// BatchOptions control Batch
type BatchOptions struct {
	// Workers bounds the number of items run at once; zero means one per item
	Workers int
	// Strict stops at the first failure and returns it
	Strict bool
}

// Batch runs items on a bounded pool. Outside strict mode failures are
// collected per item and the remaining items still run.
func Batch(ctx context.Context, items []BatchItem, opts BatchOptions) (*BatchResult, error) {
	result := &BatchResult{Failed: make(map[string]error)}
	var mu sync.Mutex

	pl := pool.New().WithContext(ctx).WithCancelOnError()
	if opts.Strict {
		pl = pl.WithFirstError()
	}
	if opts.Workers > 0 {
		pl = pl.WithMaxGoroutines(opts.Workers)
	}

	for _, item := range items {
		pl.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			err := item.Run(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				result.Succeeded = append(result.Succeeded, item.Name)
				return nil
			}
			if opts.Strict {
				return fmt.Errorf("%s: %w", item.Name, err)
			}
			result.Failed[item.Name] = err
			common.LogWarn(common.WarnBatchItemFailed, item.Name, err)
			return nil
		})
	}

	if err := pl.Wait(); err != nil {
		return result, err
	}

	common.LogInfo(common.InfoBatchSummary, len(items), len(result.Succeeded), len(result.Failed))
	return result, nil
}

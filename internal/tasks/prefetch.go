package tasks

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/desertthunder/scorebook/internal/models"
	"github.com/desertthunder/scorebook/internal/shared"
)

// PrefetchOpts configures [CatalogueEngine.PrefetchStatuses].
type PrefetchOpts struct {
	NumWorkers int     // Concurrent workers (default: 4, max: 10)
	RateLimit  float64 // Requests per second (default: 10)
}

// StatusResult is the outcome of refreshing one subject for one kind.
type StatusResult struct {
	SubjectID string
	Kind      models.Kind
	Status    models.Status
	Error     error
}

// PrefetchResult contains every refreshed status.
type PrefetchResult struct {
	Requested int
	Succeeded int
	Failed    int
	Results   []StatusResult
}

type prefetchJob struct {
	subjectID string
	reader    StatusReader
}

// PrefetchStatuses refreshes the status of every id for every reader using a bounded worker pool.
//
// Per-subject failures are collected in the result and never abort the run. Cancelling ctx stops
// scheduling new requests and returns the partial result with the context error.
func (e *CatalogueEngine) PrefetchStatuses(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	readers []StatusReader,
	ids []string,
	opts PrefetchOpts,
) (*PrefetchResult, error) {
	if len(readers) == 0 {
		return nil, fmt.Errorf("%w: no status readers", shared.ErrServiceUnavailable)
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10.0
	}

	total := len(ids) * len(readers)
	result := &PrefetchResult{Requested: total, Results: make([]StatusResult, 0, total)}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan prefetchJob)
	results := make(chan StatusResult, total)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go e.prefetchWorker(ctx, &wg, limiter, jobs, results)
	}

	go func() {
		defer close(jobs)
		for _, id := range ids {
			for _, reader := range readers {
				select {
				case <-ctx.Done():
					return
				case jobs <- prefetchJob{subjectID: id, reader: reader}:
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		result.Results = append(result.Results, res)
		if res.Error != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
		e.sendProgress(prog, prefetchedUpdate(len(result.Results), total, res))
	}

	e.sendProgress(prog, prefetchCompleteUpdate(result))
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// prefetchWorker refreshes statuses from the jobs channel, waiting on the shared limiter before each request.
func (e *CatalogueEngine) prefetchWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	limiter *rate.Limiter,
	jobs <-chan prefetchJob,
	results chan<- StatusResult,
) {
	defer wg.Done()

	for job := range jobs {
		res := StatusResult{SubjectID: job.subjectID, Kind: job.reader.Kind()}
		if err := limiter.Wait(ctx); err != nil {
			res.Error = err
			results <- res
			continue
		}

		res.Status, res.Error = job.reader.Refresh(ctx, job.subjectID)
		if res.Error != nil {
			e.logger.Debug("prefetch failed", "kind", res.Kind, "subject", res.SubjectID, "err", res.Error)
		}
		results <- res
	}
}

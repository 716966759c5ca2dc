package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/model"
	"golang.org/x/sync/errgroup"
)

// PipelineFactory creates a fresh pipeline and session for one
// container. The batch processor closes the session after Execute
// returns, so the factory must not share sessions between containers.
type PipelineFactory func(containerPath string) (*Pipeline, *Session)

// BatchProcessor handles concurrent processing of multiple containers.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding
// batch functionality to Pipeline because:
// 1. It keeps the Pipeline focused on single-container execution
// 2. It allows different batch strategies (e.g., rate limiting, retries)
// 3. It provides cleaner separation of concerns
type BatchProcessor struct {
	// factory creates a new pipeline and session for each container.
	// We use a factory to ensure each container gets fresh instances.
	factory PipelineFactory

	// concurrency is the maximum number of concurrent harvests.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger

	// results stores completed harvests.
	// Access is synchronized via mutex.
	results []*model.Harvest
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent harvests.
// Default is config.DefaultBatchSize if not specified.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The factory function is called for each container to create a fresh
// pipeline and session. This ensures that state doesn't leak between
// harvests and allows for per-container customization if needed.
func NewBatchProcessor(factory PipelineFactory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: config.DefaultBatchSize,
		results:     make([]*model.Harvest, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch harvests multiple containers concurrently.
// It respects the configured concurrency limit and context cancellation.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
// Each container gets its own goroutine, but only 'concurrency'
// goroutines run simultaneously.
//
// Returns all harvests collected, even for containers that failed.
// The error return indicates if the batch was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, containers []string) ([]*model.Harvest, error) {
	bp.logger.Info("starting batch processing",
		"total_containers", len(containers),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Pre-allocate results slice to maintain order
	bp.results = make([]*model.Harvest, len(containers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, container := range containers {
		g.Go(func() error {
			// Check for cancellation before starting
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("harvesting container",
				"container", container,
				"index", i+1,
				"total", len(containers),
			)

			h := bp.run(ctx, container)

			// Store result regardless of error
			// The harvest contains error information if the run failed
			bp.mu.Lock()
			bp.results[i] = h
			bp.mu.Unlock()

			if h.Error != nil {
				bp.logger.Warn("harvest failed",
					"container", container,
					"error", h.Error,
				)
				// Don't return error to errgroup - we want to continue
				// other containers. The error is recorded in the harvest.
				return nil
			}

			bp.logger.Info("harvest completed",
				"container", container,
			)

			return nil
		})
	}

	// Wait for all harvests to complete
	err := g.Wait()

	elapsed := time.Since(startTime)
	bp.logger.Info("batch processing complete",
		"total_containers", len(containers),
		"elapsed", elapsed,
	)

	return bp.results, err
}

// ProcessBatchWithCallback harvests multiple containers and calls a
// callback for each completed harvest. This is useful for streaming
// results.
//
// The callback receives the harvest and the index of the container in
// the original slice. The callback is called from the goroutine that
// completed the harvest, so it should be thread-safe if it accesses
// shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	containers []string,
	callback func(h *model.Harvest, index int),
) error {
	bp.logger.Info("starting batch processing with callback",
		"total_containers", len(containers),
		"concurrency", bp.concurrency,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, container := range containers {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			h := bp.run(ctx, container)

			// Call the callback with the result
			callback(h, i)

			return nil
		})
	}

	return g.Wait()
}

// run executes one container harvest with a fresh pipeline and session.
// The fatal error, if any, is recorded on the returned Harvest.
func (bp *BatchProcessor) run(ctx context.Context, container string) *model.Harvest {
	h := model.NewHarvest(container)

	p, session := bp.factory(container)
	err := p.Execute(ctx, h)
	_ = session.Close() //nolint:errcheck // Close error is secondary to the run error

	if err != nil && h.Error == nil {
		h.SetError(err)
	}
	h.Finish()

	return h
}

package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/harvester/internal/config"
	"github.com/nao1215/harvester/internal/model"
)

// noopFactory returns a pipeline with no steps and a fresh session.
func noopFactory(_ string) (*Pipeline, *Session) {
	return New(), NewSession()
}

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	t.Run("creates processor with defaults", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(noopFactory)

		if bp == nil {
			t.Fatal("expected non-nil processor")
		}
		if bp.concurrency != config.DefaultBatchSize {
			t.Errorf("expected default concurrency %d, got %d", config.DefaultBatchSize, bp.concurrency)
		}
	})

	t.Run("applies WithConcurrency option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(noopFactory, WithConcurrency(5))

		if bp.concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", bp.concurrency)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(noopFactory, WithConcurrency(0))

		if bp.concurrency != config.DefaultBatchSize { // Should keep default
			t.Errorf("expected concurrency %d, got %d", config.DefaultBatchSize, bp.concurrency)
		}
	})

	t.Run("applies WithBatchLogger option", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(noopFactory, WithBatchLogger(nil))

		// When WithBatchLogger(nil) is passed, the logger should be set to default
		if bp == nil {
			t.Fatal("expected non-nil processor")
		}
		if bp.logger == nil {
			t.Error("expected non-nil logger")
		}
	})
}

// TestBatchProcessorProcessBatch tests batch processing.
func TestBatchProcessorProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("processes all containers", func(t *testing.T) {
		t.Parallel()

		var processedCount atomic.Int32

		bp := NewBatchProcessor(func(_ string) (*Pipeline, *Session) {
			p := New()
			p.AddStep(&mockStep{
				name: "counter",
				doFunc: func(_ context.Context, _ *model.Harvest) error {
					processedCount.Add(1)
					return nil
				},
			})
			return p, NewSession()
		})

		containers := []string{
			"site1.wacz",
			"site2.wacz",
			"site3.wacz",
		}

		results, err := bp.ProcessBatch(context.Background(), containers)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 3 {
			t.Errorf("expected 3 results, got %d", len(results))
		}
		if processedCount.Load() != 3 {
			t.Errorf("expected 3 processed, got %d", processedCount.Load())
		}
	})

	t.Run("respects concurrency limit", func(t *testing.T) {
		t.Parallel()

		var maxConcurrent atomic.Int32
		var currentConcurrent atomic.Int32
		var mu sync.Mutex

		bp := NewBatchProcessor(
			func(_ string) (*Pipeline, *Session) {
				p := New()
				p.AddStep(&mockStep{
					name: "concurrent-counter",
					doFunc: func(_ context.Context, _ *model.Harvest) error {
						current := currentConcurrent.Add(1)

						// Update max if needed (with mutex for safety)
						mu.Lock()
						if current > maxConcurrent.Load() {
							maxConcurrent.Store(current)
						}
						mu.Unlock()

						// Simulate some work
						time.Sleep(50 * time.Millisecond)

						currentConcurrent.Add(-1)
						return nil
					},
				})
				return p, NewSession()
			},
			WithConcurrency(2),
		)

		containers := make([]string, 10)
		for i := range containers {
			containers[i] = "site.wacz"
		}

		_, err := bp.ProcessBatch(context.Background(), containers)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if maxConcurrent.Load() > 2 {
			t.Errorf("max concurrent was %d, expected <= 2", maxConcurrent.Load())
		}
	})

	t.Run("maintains result order", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(_ string) (*Pipeline, *Session) {
			p := New()
			p.AddStep(&mockStep{name: "noop"})
			return p, NewSession()
		})

		containers := []string{
			"first.wacz",
			"second.wacz",
			"third.wacz",
		}

		results, err := bp.ProcessBatch(context.Background(), containers)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, result := range results {
			if result.ContainerPath != containers[i] {
				t.Errorf("result[%d]: got %q, expected %q",
					i, result.ContainerPath, containers[i])
			}
		}
	})

	t.Run("continues after individual harvest failure", func(t *testing.T) {
		t.Parallel()

		var processedCount atomic.Int32

		bp := NewBatchProcessor(func(_ string) (*Pipeline, *Session) {
			p := New()
			p.AddStep(&mockStep{
				name: "sometimes-fails",
				doFunc: func(_ context.Context, h *model.Harvest) error {
					processedCount.Add(1)
					// Fail for the second container only
					if h.ContainerPath == "fail.wacz" {
						return errors.New("simulated harvest failure")
					}
					return nil
				},
			})
			return p, NewSession()
		})

		containers := []string{
			"first.wacz",
			"fail.wacz",
			"third.wacz",
		}

		results, err := bp.ProcessBatch(context.Background(), containers)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if processedCount.Load() != 3 {
			t.Errorf("expected 3 processed, got %d", processedCount.Load())
		}
		// Check that the failed harvest has an error recorded
		if results[1].Error == nil {
			t.Error("expected error in second result")
		}
	})

	t.Run("stamps completion time on every harvest", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(_ string) (*Pipeline, *Session) {
			p := New()
			p.AddStep(&mockStep{
				name: "fails",
				doFunc: func(_ context.Context, _ *model.Harvest) error {
					return errors.New("boom")
				},
			})
			return p, NewSession()
		})

		results, err := bp.ProcessBatch(context.Background(), []string{"a.wacz", "b.wacz"})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, result := range results {
			if result.FinishedAt.IsZero() {
				t.Errorf("result[%d]: expected FinishedAt to be stamped", i)
			}
		}
	})

	t.Run("handles context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())

		var startedCount atomic.Int32

		bp := NewBatchProcessor(
			func(_ string) (*Pipeline, *Session) {
				p := New()
				p.AddStep(&mockStep{
					name: "slow-step",
					doFunc: func(ctx context.Context, _ *model.Harvest) error {
						startedCount.Add(1)
						select {
						case <-ctx.Done():
							return ctx.Err()
						case <-time.After(time.Second):
							return nil
						}
					},
				})
				return p, NewSession()
			},
			WithConcurrency(2),
		)

		containers := make([]string, 10)
		for i := range containers {
			containers[i] = "site.wacz"
		}

		// Cancel after a short delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		_, err := bp.ProcessBatch(ctx, containers)

		// Should return context.Canceled
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		// Not all containers should have started
		//nolint:gosec // len(containers) is small, no overflow risk
		if startedCount.Load() >= int32(len(containers)) {
			t.Error("expected some containers to not start due to cancellation")
		}
	})
}

// TestBatchProcessorProcessBatchWithCallback tests callback-based processing.
func TestBatchProcessorProcessBatchWithCallback(t *testing.T) {
	t.Parallel()

	t.Run("calls callback for each result", func(t *testing.T) {
		t.Parallel()

		var callbackCount atomic.Int32
		var mu sync.Mutex
		receivedContainers := make(map[string]bool)

		bp := NewBatchProcessor(func(_ string) (*Pipeline, *Session) {
			p := New()
			p.AddStep(&mockStep{name: "noop"})
			return p, NewSession()
		})

		containers := []string{
			"first.wacz",
			"second.wacz",
			"third.wacz",
		}

		err := bp.ProcessBatchWithCallback(
			context.Background(),
			containers,
			func(h *model.Harvest, _ int) {
				callbackCount.Add(1)
				mu.Lock()
				receivedContainers[h.ContainerPath] = true
				mu.Unlock()
			},
		)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if callbackCount.Load() != 3 {
			t.Errorf("expected 3 callbacks, got %d", callbackCount.Load())
		}
		for _, container := range containers {
			if !receivedContainers[container] {
				t.Errorf("missing callback for %q", container)
			}
		}
	})

	t.Run("callback receives recorded failure", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(func(_ string) (*Pipeline, *Session) {
			p := New()
			p.AddStep(&mockStep{
				name: "fails",
				doFunc: func(_ context.Context, _ *model.Harvest) error {
					return errors.New("broken archive")
				},
			})
			return p, NewSession()
		})

		var gotErr error
		err := bp.ProcessBatchWithCallback(
			context.Background(),
			[]string{"broken.wacz"},
			func(h *model.Harvest, _ int) {
				gotErr = h.Error
			},
		)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotErr == nil {
			t.Error("expected callback to receive harvest error")
		}
	})
}

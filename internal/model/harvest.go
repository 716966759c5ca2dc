package model

import (
	"time"

	"github.com/nao1215/harvester/internal/cdx"
)

// Harvest is the per-run state object threaded through pipeline steps.
// Every piece of data a step produces for later steps lives here; steps
// never share state through anything else.
//
// Design decision: One explicit context object per run rather than
// package-level state because:
// 1. Batch processing runs many harvests concurrently
// 2. Steps stay testable with a plain struct as input
// 3. The finished Harvest doubles as the run summary
type Harvest struct {
	// ContainerPath is the path of the container artifact being harvested.
	ContainerPath string `json:"container_path"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run completed, successfully or not.
	FinishedAt time.Time `json:"finished_at,omitempty"`

	// Pages is the primary page manifest inventory.
	Pages []Page `json:"pages,omitempty"`

	// ExtraPages is the secondary page manifest inventory. It fills
	// gaps only; URLs already present in Pages are not overridden.
	ExtraPages []Page `json:"extra_pages,omitempty"`

	// Index is the loaded content index.
	Index *cdx.Index `json:"-"`

	// PriorInventory is the URL inventory of the previous run, used for
	// deletion reconciliation. Nil when no prior inventory is available.
	PriorInventory []string `json:"prior_inventory,omitempty"`

	// RecordSet is the finalized record set. Nil until assembly completes.
	RecordSet *RecordSet `json:"-"`

	// RunID identifies this run in the run-history store. Empty when
	// history recording is disabled.
	RunID string `json:"run_id,omitempty"`

	// OutputPaths lists the record files written by the run.
	OutputPaths []string `json:"output_paths,omitempty"`

	// PerformedSteps lists the pipeline steps that actually ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error is the first fatal error of the run.
	Error error `json:"-"` // Excluded from JSON

	// ErrorMessage is the string form of Error for serialization.
	ErrorMessage string `json:"error,omitempty"` //nolint:tagliatelle // error is conventional
}

// NewHarvest creates the per-run state for the given container artifact.
func NewHarvest(containerPath string) *Harvest {
	return &Harvest{
		ContainerPath: containerPath,
		StartedAt:     time.Now(),
	}
}

// AddStep records that a pipeline step ran.
func (h *Harvest) AddStep(name string) {
	h.PerformedSteps = append(h.PerformedSteps, name)
}

// SetError records the run's fatal error and mirrors it into
// ErrorMessage for serialization.
func (h *Harvest) SetError(err error) {
	h.Error = err
	if err != nil {
		h.ErrorMessage = err.Error()
	}
}

// Finish stamps the completion time.
func (h *Harvest) Finish() {
	h.FinishedAt = time.Now()
}

// Elapsed returns the run duration so far, or the final duration once
// Finish was called.
func (h *Harvest) Elapsed() time.Duration {
	if h.FinishedAt.IsZero() {
		return time.Since(h.StartedAt)
	}
	return h.FinishedAt.Sub(h.StartedAt)
}

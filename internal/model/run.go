package model

import "time"

// RunInfo describes one recorded harvest run in the run-history store.
type RunInfo struct {
	// ID is the run's UUID.
	ID string `json:"id"`

	// Container is the path of the container artifact that was harvested.
	Container string `json:"container"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run completed.
	FinishedAt time.Time `json:"finished_at"`

	// Total is the number of records in the run's record set.
	Total int `json:"total"`

	// Active is the number of active records.
	Active int `json:"active"`

	// Deleted is the number of deleted records.
	Deleted int `json:"deleted"`
}

package domain

import "time"

// BatchState is a step of the orchestration state machine.
type BatchState string

const (
	StateIdle            BatchState = "idle"
	StateValidating      BatchState = "validating"
	StateCircuitStarting BatchState = "circuit_starting"
	StateRotating        BatchState = "rotating"
	StateFetching        BatchState = "fetching"
	StatePackaging       BatchState = "packaging"
	StateDone            BatchState = "done"
	StateAborted         BatchState = "aborted"
)

// Finished reports whether the state is terminal.
func (s BatchState) Finished() bool {
	return s == StateDone || s == StateAborted
}

type ItemStatus string

const (
	ItemPending     ItemStatus = "pending"
	ItemDownloading ItemStatus = "downloading"
	ItemCompleted   ItemStatus = "completed"
	ItemError       ItemStatus = "error"
)

type ItemProgress struct {
	Link   string     `json:"link"`
	Status ItemStatus `json:"status"`
}

// Progress is a snapshot of the current (or last) batch.
type Progress struct {
	BatchID          string         `json:"batch_id,omitempty"`
	State            BatchState     `json:"state"`
	Message          string         `json:"message,omitempty"`
	Current          int            `json:"current"`
	Total            int            `json:"total"`
	Succeeded        int            `json:"succeeded"`
	RotationFailures int            `json:"rotation_failures"`
	Items            []ItemProgress `json:"items,omitempty"`
	StartedAt        time.Time      `json:"started_at,omitempty"`
	FinishedAt       time.Time      `json:"finished_at,omitempty"`
}

// Percentage is the share of processed links, 0 when nothing was submitted.
func (p Progress) Percentage() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// Clone returns a deep copy safe to hand out across goroutines.
func (p Progress) Clone() Progress {
	out := p
	if p.Items != nil {
		out.Items = make([]ItemProgress, len(p.Items))
		copy(out.Items, p.Items)
	}
	return out
}

package model

import (
	"encoding/json"
	"time"
)

// RunStatus represents the current state of an enrichment run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Terminal reports whether no further work is expected for the run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// Run is one execution of the enrichment workflow for a single feedback item.
type Run struct {
	ID          string          `json:"id"`
	FeedbackID  string          `json:"feedback_id"`
	Payload     FeedbackPayload `json:"payload"`
	Status      RunStatus       `json:"status"`
	CurrentStep string          `json:"current_step"`
	Attempts    int             `json:"attempts"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StepRecord is the checkpointed output of one completed workflow step.
type StepRecord struct {
	RunID       string          `json:"run_id"`
	Step        string          `json:"step"`
	Output      json.RawMessage `json:"output"`
	CompletedAt time.Time       `json:"completed_at"`
}

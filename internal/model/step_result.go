package model

import (
	"time"
)

// Status classifies the terminal outcome of a step.
type Status string

const (
	// StatusSatisfied indicates the step's effect already existed and no
	// action was taken.
	StatusSatisfied Status = "satisfied"
	// StatusSucceeded marks a successful step execution.
	StatusSucceeded Status = "succeeded"
	// StatusSkipped indicates the orchestrator did not attempt the step.
	StatusSkipped Status = "skipped"
	// StatusFailed marks a failure during step execution.
	StatusFailed Status = "failed"
	// StatusWouldRun indicates dry-run determined the step requires action.
	StatusWouldRun Status = "would_run"
)

// IsValid reports whether the status is one of the defined values.
func (s Status) IsValid() bool {
	switch s {
	case StatusSatisfied, StatusSucceeded, StatusSkipped, StatusFailed, StatusWouldRun:
		return true
	}
	return false
}

// Terminal reports whether the status counts as a completed dependency for
// downstream steps.
func (s Status) Terminal() bool {
	return s == StatusSatisfied || s == StatusSucceeded
}

// StepResult captures the outcome of executing a single step.
type StepResult struct {
	StepID    string
	Status    Status
	Reason    string
	Error     error
	Duration  time.Duration
	Timestamp time.Time
}

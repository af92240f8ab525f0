package model

import "time"

// ProbeResult records one verification probe outcome. Version holds the
// detected version line or NotFound when the tool is absent.
type ProbeResult struct {
	Name    string
	Version string
}

// NotFound is recorded for probes whose target tool could not be located.
const NotFound = "not found"

// RunReport summarises a full pipeline execution. StepResults preserves
// execution order; Verification holds the post-run probe findings.
type RunReport struct {
	StepResults  []StepResult
	Aborted      bool
	Verification []ProbeResult
	Duration     time.Duration
}

// Result returns the recorded result for a step id, if any.
func (r *RunReport) Result(stepID string) (StepResult, bool) {
	for _, res := range r.StepResults {
		if res.StepID == stepID {
			return res, true
		}
	}
	return StepResult{}, false
}

// Counts tallies outcomes by status.
func (r *RunReport) Counts() map[Status]int {
	counts := make(map[Status]int, 5)
	for _, res := range r.StepResults {
		counts[res.Status]++
	}
	return counts
}

// Clean reports whether every non-skipped step ended Satisfied or Succeeded.
// Recoverable failures leave Clean false without implying an abort.
func (r *RunReport) Clean() bool {
	for _, res := range r.StepResults {
		if res.Status == StatusFailed {
			return false
		}
	}
	return !r.Aborted
}

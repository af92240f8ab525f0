package runner

import (
	"context"

	"github.com/jrmorin/forgeup/internal/config"
	"github.com/jrmorin/forgeup/internal/model"
)

// Evaluation is the outcome of a read-only satisfaction check.
type Evaluation struct {
	// Satisfied reports that the step's effect already exists and the
	// step can be recorded without running.
	Satisfied bool
	// Reason is a human-readable description of what was found.
	Reason string
}

// Runner executes one kind of provisioning step.
//
// Evaluate must be strictly read-only: it probes live system state (files,
// installed packages, checkouts) and never mutates anything. It is invoked
// fresh every run; no satisfaction state is cached between runs beyond what
// the filesystem itself encodes.
//
// Apply performs the step's side effects. The orchestrator calls it at most
// once per run, and only when Evaluate reported the step unsatisfied.
type Runner interface {
	Evaluate(ctx context.Context, step *config.Step) (*Evaluation, error)
	Apply(ctx context.Context, step *config.Step) (*model.StepResult, error)
}

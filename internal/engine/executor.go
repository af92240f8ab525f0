package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jrmorin/forgeup/internal/config"
	"github.com/jrmorin/forgeup/internal/model"
	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

// Execute runs the graph strictly sequentially in topological order and
// returns the per-step outcomes. Later steps depend on filesystem side
// effects of earlier ones, so step N+1 never starts before step N's terminal
// outcome is recorded.
//
// A step runs at most once per invocation. A Fatal failure aborts the run:
// the failing step is recorded Failed, every remaining step is recorded
// Skipped, and the report's Aborted flag is set. Recoverable failures let
// independent steps proceed; unsatisfied dependents are Skipped, while
// dependents whose effect already exists stay Satisfied.
func Execute(execCtx *ExecutionContext, graph *Graph) (*model.RunReport, error) {
	if execCtx == nil {
		return nil, forgeerrors.NewExecutionError("", fmt.Errorf("execution context is nil"))
	}
	if execCtx.Manifest == nil {
		return nil, forgeerrors.NewExecutionError("", fmt.Errorf("execution context manifest is nil"))
	}
	if graph == nil {
		return nil, forgeerrors.NewExecutionError("", fmt.Errorf("graph is nil"))
	}

	baseCtx := execCtx.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	stepTimeout := time.Duration(execCtx.Manifest.Settings.Timeout) * time.Second

	start := time.Now()
	report := &model.RunReport{}
	statuses := make(map[string]model.Status, len(graph.Order))

	record := func(res model.StepResult) {
		if res.Timestamp.IsZero() {
			res.Timestamp = time.Now()
		}
		statuses[res.StepID] = res.Status
		report.StepResults = append(report.StepResults, res)
	}

	for pos, stepID := range graph.Order {
		step := graph.Nodes[stepID].Step
		log := execCtx.Logger.WithStep(stepID)

		if err := baseCtx.Err(); err != nil {
			report.Aborted = true
			markRemaining(graph, report, statuses, pos, stepID, record)
			report.Duration = time.Since(start)
			return report, forgeerrors.NewExecutionError(stepID, err)
		}

		if execCtx.SkipSteps[stepID] {
			log.Info("skipped by request")
			record(model.StepResult{StepID: stepID, Status: model.StatusSkipped, Reason: "skipped by request"})
			continue
		}

		res := executeStep(baseCtx, execCtx, step, statuses, stepTimeout)
		record(res)

		switch res.Status {
		case model.StatusSatisfied:
			log.Debugf("already satisfied: %s", res.Reason)
		case model.StatusSkipped:
			log.Warnf("skipping: %s", res.Reason)
		case model.StatusWouldRun:
			log.Infof("would run: %s", res.Reason)
		case model.StatusSucceeded:
			log.Infof("succeeded in %s", res.Duration.Round(time.Millisecond))
		case model.StatusFailed:
			log.Error(res.Error, "step failed")
			if step.FailureMode == config.FailureFatal {
				report.Aborted = true
				markRemaining(graph, report, statuses, pos+1, stepID, record)
				report.Duration = time.Since(start)
				return report, nil
			}
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

func executeStep(ctx context.Context, execCtx *ExecutionContext, step *config.Step, statuses map[string]model.Status, timeout time.Duration) model.StepResult {
	stepCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	// Satisfaction is checked before the dependency gate: both probes are
	// read-only, and a step whose effect already exists stays Satisfied even
	// when an upstream recoverable step failed this run.
	//
	// The creates path is the generic filesystem idempotency oracle; kind
	// specific checks only run when it is absent.
	if step.Creates != "" && execCtx.fileExists(step.Creates) {
		return model.StepResult{
			StepID:   step.ID,
			Status:   model.StatusSatisfied,
			Reason:   fmt.Sprintf("%s exists", step.Creates),
			Duration: time.Since(start),
		}
	}

	impl, err := execCtx.Registry.Get(step.Type)
	if err != nil {
		return model.StepResult{
			StepID:   step.ID,
			Status:   model.StatusFailed,
			Reason:   err.Error(),
			Error:    err,
			Duration: time.Since(start),
		}
	}

	eval, err := impl.Evaluate(stepCtx, step)
	if err != nil {
		// An unsatisfied step behind a failed dependency would be skipped
		// anyway; do not escalate a broken evaluation into a failure.
		if reason := blockedBy(step, statuses, execCtx.DryRun); reason != "" {
			return model.StepResult{
				StepID:   step.ID,
				Status:   model.StatusSkipped,
				Reason:   reason,
				Duration: time.Since(start),
			}
		}
		return model.StepResult{
			StepID:   step.ID,
			Status:   model.StatusFailed,
			Reason:   fmt.Sprintf("evaluation failed: %v", err),
			Error:    err,
			Duration: time.Since(start),
		}
	}

	if eval.Satisfied {
		return model.StepResult{
			StepID:   step.ID,
			Status:   model.StatusSatisfied,
			Reason:   eval.Reason,
			Duration: time.Since(start),
		}
	}

	if reason := blockedBy(step, statuses, execCtx.DryRun); reason != "" {
		return model.StepResult{
			StepID:   step.ID,
			Status:   model.StatusSkipped,
			Reason:   reason,
			Duration: time.Since(start),
		}
	}

	if execCtx.DryRun {
		return model.StepResult{
			StepID:   step.ID,
			Status:   model.StatusWouldRun,
			Reason:   eval.Reason,
			Duration: time.Since(start),
		}
	}

	res, err := impl.Apply(stepCtx, step)
	if res == nil {
		res = &model.StepResult{StepID: step.ID}
	}
	if res.StepID == "" {
		res.StepID = step.ID
	}
	res.Duration = time.Since(start)

	if err != nil {
		res.Status = model.StatusFailed
		if res.Error == nil {
			res.Error = err
		}
		if res.Reason == "" {
			res.Reason = err.Error()
		}
		return *res
	}

	if res.Status == "" {
		res.Status = model.StatusSucceeded
		if res.Reason == "" {
			res.Reason = "completed"
		}
	}

	return *res
}

// blockedBy returns a skip reason when any dependency has not reached a
// terminal state. Dependencies absent from statuses were disabled and count
// as satisfied. In dry-run, would_run counts as satisfied so the preview
// covers the whole chain.
func blockedBy(step *config.Step, statuses map[string]model.Status, dryRun bool) string {
	for _, dep := range step.DependsOn {
		status, seen := statuses[dep]
		if !seen {
			continue
		}
		if status.Terminal() {
			continue
		}
		if dryRun && status == model.StatusWouldRun {
			continue
		}
		return fmt.Sprintf("dependency %s %s", dep, status)
	}
	return ""
}

// markRemaining records every unexecuted step as Skipped after an abort.
// Transitive dependents of the failed step are attributed to it; the rest
// carry a generic abort reason.
func markRemaining(graph *Graph, report *model.RunReport, statuses map[string]model.Status, from int, failedID string, record func(model.StepResult)) {
	dependents := transitiveDependents(graph, failedID)

	for _, id := range graph.Order[from:] {
		if _, done := statuses[id]; done {
			continue
		}
		reason := "run aborted"
		if dependents[id] {
			reason = fmt.Sprintf("dependency %s failed", failedID)
		}
		record(model.StepResult{StepID: id, Status: model.StatusSkipped, Reason: reason})
	}
}

func transitiveDependents(graph *Graph, rootID string) map[string]bool {
	out := make(map[string]bool)
	root, ok := graph.Nodes[rootID]
	if !ok {
		return out
	}

	queue := append([]*Node(nil), root.Dependents...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if out[node.ID] {
			continue
		}
		out[node.ID] = true
		queue = append(queue, node.Dependents...)
	}
	return out
}

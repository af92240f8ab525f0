package engine

import (
	"fmt"
	"strings"
)

// ExecutionPlan is the ordered step sequence derived from the DAG.
type ExecutionPlan struct {
	Steps []PlannedStep
}

// PlannedStep summarises one step for plan display.
type PlannedStep struct {
	ID        string
	Name      string
	Type      string
	DependsOn []string
}

// GeneratePlan converts a DAG into a sequential execution plan.
func GeneratePlan(graph *Graph) (*ExecutionPlan, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	steps := make([]PlannedStep, 0, len(graph.Order))
	for _, id := range graph.Order {
		node := graph.Nodes[id]
		steps = append(steps, PlannedStep{
			ID:        node.ID,
			Name:      node.Step.Name,
			Type:      node.Step.Type,
			DependsOn: append([]string(nil), node.Step.DependsOn...),
		})
	}

	return &ExecutionPlan{Steps: steps}, nil
}

// String renders a human readable summary of the plan.
func (p *ExecutionPlan) String() string {
	if p == nil {
		return ""
	}

	var b strings.Builder
	for i, step := range p.Steps {
		if len(step.DependsOn) > 0 {
			fmt.Fprintf(&b, "%d. %s (%s) after %s\n", i+1, step.ID, step.Type, strings.Join(step.DependsOn, ", "))
		} else {
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, step.ID, step.Type)
		}
	}
	return b.String()
}

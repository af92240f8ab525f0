package engine

import (
	"fmt"
	"sort"

	"github.com/jrmorin/forgeup/internal/config"
	forgeerrors "github.com/jrmorin/forgeup/pkg/errors"
)

// Node represents a vertex in the execution DAG.
type Node struct {
	ID         string
	Step       *config.Step
	DependsOn  []*Node
	Dependents []*Node
}

// Graph encapsulates the DAG structure and the computed execution order.
// Order is a full topological ordering with ties broken by declaration
// order, so a manifest always executes deterministically.
type Graph struct {
	Nodes map[string]*Node
	Order []string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// AddNode inserts a step as a vertex in the graph.
func (g *Graph) AddNode(step *config.Step) (*Node, error) {
	if step == nil {
		return nil, forgeerrors.NewExecutionError("", fmt.Errorf("step cannot be nil"))
	}

	if g.Nodes == nil {
		g.Nodes = make(map[string]*Node)
	}

	if _, exists := g.Nodes[step.ID]; exists {
		return nil, forgeerrors.NewValidationError("steps", fmt.Sprintf("duplicate step id %q", step.ID), nil)
	}

	node := &Node{ID: step.ID, Step: step}
	g.Nodes[step.ID] = node
	return node, nil
}

// AddEdge connects dependency relationship between nodes.
func (g *Graph) AddEdge(from, to string) error {
	source, ok := g.Nodes[from]
	if !ok {
		return forgeerrors.NewValidationError("steps", fmt.Sprintf("unknown dependency %q", from), nil)
	}

	target, ok := g.Nodes[to]
	if !ok {
		return forgeerrors.NewValidationError("steps", fmt.Sprintf("unknown dependency target %q", to), nil)
	}

	source.Dependents = append(source.Dependents, target)
	target.DependsOn = append(target.DependsOn, source)
	return nil
}

// topologicalSort computes Order using Kahn's algorithm. declIndex maps step
// id to position in the manifest; ready nodes are drained in that order.
func (g *Graph) topologicalSort(declIndex map[string]int) error {
	indegree := make(map[string]int, len(g.Nodes))
	for id := range g.Nodes {
		indegree[id] = 0
	}

	for _, node := range g.Nodes {
		for _, dep := range node.Dependents {
			indegree[dep.ID]++
		}
	}

	var ready []string
	for id, degree := range indegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	sortByDeclaration(ready, declIndex)

	order := make([]string, 0, len(g.Nodes))

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		node := g.Nodes[id]
		var unlocked []string
		for _, dependent := range node.Dependents {
			indegree[dependent.ID]--
			if indegree[dependent.ID] == 0 {
				unlocked = append(unlocked, dependent.ID)
			}
		}

		ready = append(ready, unlocked...)
		sortByDeclaration(ready, declIndex)
	}

	if len(order) != len(g.Nodes) {
		var remaining []string
		for id := range g.Nodes {
			if indegree[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return forgeerrors.NewCycleError(remaining)
	}

	g.Order = order
	return nil
}

func sortByDeclaration(ids []string, declIndex map[string]int) {
	sort.SliceStable(ids, func(i, j int) bool {
		return declIndex[ids[i]] < declIndex[ids[j]]
	})
}

// BuildDAG constructs the execution graph from the provided steps. Disabled
// steps contribute neither nodes nor edges.
func BuildDAG(steps []config.Step) (*Graph, error) {
	graph := NewGraph()
	declIndex := make(map[string]int, len(steps))

	for i := range steps {
		step := &steps[i]
		if !step.Enabled {
			continue
		}
		if _, err := graph.AddNode(step); err != nil {
			return nil, err
		}
		declIndex[step.ID] = i
	}

	for _, step := range steps {
		if !step.Enabled {
			continue
		}
		for _, dependency := range step.DependsOn {
			if _, ok := graph.Nodes[dependency]; !ok {
				// Dependency on a disabled step is treated as already
				// satisfied rather than an error.
				continue
			}
			if err := graph.AddEdge(dependency, step.ID); err != nil {
				return nil, err
			}
		}
	}

	if err := graph.topologicalSort(declIndex); err != nil {
		return nil, err
	}

	return graph, nil
}

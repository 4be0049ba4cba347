package agent

import (
	"fmt"

	"github.com/rahul/archcopilot/internal/design"
)

// StepSpec declares a step and the steps whose payloads it reads.
type StepSpec struct {
	ID        design.StepID
	DependsOn []design.StepID
}

// Graph is a validated, acyclic step graph. Steps keep their declaration
// order, which is also the launch order among ready steps.
type Graph struct {
	specs []StepSpec
	index map[design.StepID]int
}

// DefaultSpecs is the step graph of a design run.
func DefaultSpecs() []StepSpec {
	return []StepSpec{
		{ID: design.StepArchitecture},
		{ID: design.StepSizing},
		{ID: design.StepTechStack, DependsOn: []design.StepID{design.StepArchitecture, design.StepSizing}},
		{ID: design.StepAPIDesign, DependsOn: []design.StepID{design.StepArchitecture}},
		{ID: design.StepPerformance, DependsOn: []design.StepID{design.StepArchitecture, design.StepSizing}},
		{ID: design.StepSecurity, DependsOn: []design.StepID{design.StepArchitecture, design.StepAPIDesign}},
		{ID: design.StepSummary, DependsOn: []design.StepID{
			design.StepArchitecture, design.StepSizing, design.StepTechStack,
			design.StepAPIDesign, design.StepPerformance, design.StepSecurity,
		}},
	}
}

// DefaultGraph returns the graph built from DefaultSpecs.
func DefaultGraph() *Graph {
	g, err := NewGraph(DefaultSpecs()...)
	if err != nil {
		panic(err)
	}
	return g
}

// NewGraph validates specs: ids are unique, dependencies exist and there is
// no cycle.
func NewGraph(specs ...StepSpec) (*Graph, error) {
	g := &Graph{index: make(map[design.StepID]int, len(specs))}
	for _, s := range specs {
		if _, dup := g.index[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step %q", s.ID)
		}
		g.index[s.ID] = len(g.specs)
		g.specs = append(g.specs, StepSpec{ID: s.ID, DependsOn: append([]design.StepID(nil), s.DependsOn...)})
	}
	for _, s := range g.specs {
		for _, d := range s.DependsOn {
			if _, ok := g.index[d]; !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", s.ID, d)
			}
			if d == s.ID {
				return nil, fmt.Errorf("step %q depends on itself", s.ID)
			}
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) checkAcyclic() error {
	indegree := make([]int, len(g.specs))
	for i, s := range g.specs {
		indegree[i] = len(s.DependsOn)
	}
	var queue []int
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		for i, s := range g.specs {
			for _, d := range s.DependsOn {
				if d == g.specs[cur].ID {
					indegree[i]--
					if indegree[i] == 0 {
						queue = append(queue, i)
					}
				}
			}
		}
	}
	if visited != len(g.specs) {
		return fmt.Errorf("step graph has a cycle")
	}
	return nil
}

// Steps returns the step ids in declaration order.
func (g *Graph) Steps() []design.StepID {
	out := make([]design.StepID, len(g.specs))
	for i, s := range g.specs {
		out[i] = s.ID
	}
	return out
}

func (g *Graph) Has(id design.StepID) bool {
	_, ok := g.index[id]
	return ok
}

// Deps returns the direct dependencies of id.
func (g *Graph) Deps(id design.StepID) []design.StepID {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return append([]design.StepID(nil), g.specs[i].DependsOn...)
}

// Dependents returns every step that transitively depends on id, in
// declaration order.
func (g *Graph) Dependents(id design.StepID) []design.StepID {
	affected := map[design.StepID]bool{id: true}
	// declaration order is not necessarily topological, so iterate to a fixpoint
	for changed := true; changed; {
		changed = false
		for _, s := range g.specs {
			if affected[s.ID] {
				continue
			}
			for _, d := range s.DependsOn {
				if affected[d] {
					affected[s.ID] = true
					changed = true
					break
				}
			}
		}
	}
	var out []design.StepID
	for _, s := range g.specs {
		if s.ID != id && affected[s.ID] {
			out = append(out, s.ID)
		}
	}
	return out
}

package depgraph

import (
	"fmt"
	"strings"

	"portforge/port"
)

// CycleError reports a dependency cycle discovered while materializing a
// port's dependencies at Depend time. Without the explicit check a cycle
// would instead manifest as an outstanding count that never reaches
// zero, i.e. a silent deadlock; a hard failure with the cycle spelled
// out beats diagnosing a hang.
type CycleError struct {
	Cycle []string // origins forming the cycle, in traversal order
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
}

// DetectCycle walks the dependency edges reachable from root using
// dependenciesOf (typically the attribute-derived, not-yet-materialized
// dependency list, so this can run before AddDependency commits anything)
// and reports the first cycle found via depth-first search with a
// recursion-stack set.
func DetectCycle(root *port.Port, dependenciesOf func(*port.Port) []*port.Port) *CycleError {
	visited := map[*port.Port]bool{}
	onStack := map[*port.Port]bool{}
	var path []*port.Port

	var visit func(p *port.Port) *CycleError
	visit = func(p *port.Port) *CycleError {
		visited[p] = true
		onStack[p] = true
		path = append(path, p)

		for _, dep := range dependenciesOf(p) {
			if onStack[dep] {
				cyc := cyclePath(path, dep)
				return &CycleError{Cycle: cyc}
			}
			if !visited[dep] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		onStack[p] = false
		path = path[:len(path)-1]
		return nil
	}

	return visit(root)
}

func cyclePath(path []*port.Port, closesAt *port.Port) []string {
	start := 0
	for i, p := range path {
		if p == closesAt {
			start = i
			break
		}
	}
	out := make([]string, 0, len(path)-start+1)
	for _, p := range path[start:] {
		out = append(out, p.Origin)
	}
	out = append(out, closesAt.Origin)
	return out
}

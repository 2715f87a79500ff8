package planner

import (
	"fmt"
	"strings"

	"github.com/tomaasz/update-ultra/pkg/domain"
)

// Wave is one concurrency-safe batch of steps: every dependency of every step
// in the wave lives in a strictly earlier wave.
type Wave struct {
	Index int
	Steps []domain.Step
}

// BuildWaves partitions steps into an ordered sequence of waves, or fails
// with a configuration error before any execution starts.
//
// Wave assignment is the longest dependency chain ending at the step:
// wave(step) = 1 + max(wave(dep)), or 0 with no dependencies. Steps with the
// same wave index keep their caller-supplied input order, so repeated calls
// with the same input produce the same partition.
func BuildWaves(steps []domain.Step) ([]Wave, error) {
	if len(steps) == 0 {
		return []Wave{}, nil
	}

	index := make(map[string]int, len(steps))
	for i, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("step at position %d has no identifier", i)
		}
		if _, dup := index[s.ID]; dup {
			return nil, fmt.Errorf("duplicate step identifier: %q", s.ID)
		}
		index[s.ID] = i
	}

	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, fmt.Errorf("%w: step %q depends on %q", domain.ErrUnknownDependency, s.ID, dep)
			}
		}
	}

	// Adjacency over input positions: dep -> dependents.
	n := len(steps)
	dependents := make([][]int, n)
	indeg := make([]int, n)
	for i, s := range steps {
		for _, dep := range s.DependsOn {
			d := index[dep]
			dependents[d] = append(dependents[d], i)
			indeg[i]++
		}
	}

	// Kahn's algorithm with a FIFO queue seeded in input order, computing the
	// longest-path wave index as nodes retire.
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}

	waveOf := make([]int, n)
	processed := 0
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		processed++
		for _, v := range dependents[u] {
			if waveOf[u]+1 > waveOf[v] {
				waveOf[v] = waveOf[u] + 1
			}
			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	if processed != n {
		path := findCycle(steps, index)
		return nil, fmt.Errorf("%w: %s", domain.ErrCyclicDependency, strings.Join(path, " -> "))
	}

	maxWave := 0
	for _, w := range waveOf {
		if w > maxWave {
			maxWave = w
		}
	}
	waves := make([]Wave, maxWave+1)
	for i := range waves {
		waves[i].Index = i
	}
	// Iterating positions ascending keeps input order within each wave.
	for i, s := range steps {
		w := waveOf[i]
		waves[w].Steps = append(waves[w].Steps, s)
	}

	return waves, nil
}

// findCycle extracts one cycle path for error reporting using depth-first
// traversal with a recursion-stack marker. Only called when a cycle is known
// to exist.
func findCycle(steps []domain.Step, index map[string]int) []string {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(steps))
	parent := make([]int, len(steps))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []string

	var visit func(u int) bool
	visit = func(u int) bool {
		color[u] = gray
		for _, depID := range steps[u].DependsOn {
			v := index[depID]
			if color[v] == gray {
				// Back edge u -> v closes the cycle; walk parents back to v.
				path := []string{steps[v].ID}
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					path = append(path, steps[cur].ID)
				}
				path = append(path, steps[v].ID)
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				cycle = path
				return true
			}
			if color[v] == white {
				parent[v] = u
				if visit(v) {
					return true
				}
			}
		}
		color[u] = black
		return false
	}

	for i := range steps {
		if color[i] == white && visit(i) {
			break
		}
	}
	return cycle
}

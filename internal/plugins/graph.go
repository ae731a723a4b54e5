package plugins

import (
	"fmt"
	"sort"
	"strings"
)

// Order sorts candidates so every dependency loads before its dependents.
// Ready candidates are taken by ascending manifest priority, ties broken
// by id. A dependency cycle is fatal and names the ids involved.
func Order(candidates []Candidate) ([]Candidate, error) {
	byID := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.Manifest.ID] = c
	}

	// Edges only between known candidates; a dependency on an unknown id
	// is the loader's problem, not an ordering one.
	indegree := make(map[string]int, len(candidates))
	dependents := make(map[string][]string)
	for _, c := range candidates {
		indegree[c.Manifest.ID] += 0
		for _, dep := range c.Manifest.Dependencies {
			if _, known := byID[dep]; !known {
				continue
			}
			indegree[c.Manifest.ID]++
			dependents[dep] = append(dependents[dep], c.Manifest.ID)
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	less := func(a, b string) bool {
		pa, pb := byID[a].Manifest.effectivePriority(), byID[b].Manifest.effectivePriority()
		if pa != pb {
			return pa < pb
		}
		return a < b
	}

	ordered := make([]Candidate, 0, len(candidates))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		id := ready[0]
		ready = ready[1:]

		ordered = append(ordered, byID[id])
		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(ordered) != len(candidates) {
		cycle := cycleMembers(byID)
		return nil, fmt.Errorf("plugin dependency cycle: %s", strings.Join(cycle, ", "))
	}
	return ordered, nil
}

// cycleMembers returns the ids that sit on a dependency cycle, sorted.
// Plugins that merely depend on a cycle member are not on the cycle and
// are left out. Tarjan's strongly-connected-components over the known
// dependency edges: every component larger than one node is a cycle, as
// is a single node depending on itself.
func cycleMembers(byID map[string]Candidate) []string {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	index := make(map[string]int, len(byID))
	lowlink := make(map[string]int, len(byID))
	onStack := make(map[string]bool, len(byID))
	var stack []string
	next := 0

	var members []string
	var connect func(id string)
	connect = func(id string) {
		index[id] = next
		lowlink[id] = next
		next++
		stack = append(stack, id)
		onStack[id] = true

		selfLoop := false
		for _, dep := range byID[id].Manifest.Dependencies {
			if _, known := byID[dep]; !known {
				continue
			}
			if dep == id {
				selfLoop = true
				continue
			}
			if _, seen := index[dep]; !seen {
				connect(dep)
				if lowlink[dep] < lowlink[id] {
					lowlink[id] = lowlink[dep]
				}
			} else if onStack[dep] && index[dep] < lowlink[id] {
				lowlink[id] = index[dep]
			}
		}

		if lowlink[id] != index[id] {
			return
		}
		var component []string
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			component = append(component, top)
			if top == id {
				break
			}
		}
		if len(component) > 1 || selfLoop {
			members = append(members, component...)
		}
	}

	for _, id := range ids {
		if _, seen := index[id]; !seen {
			connect(id)
		}
	}
	sort.Strings(members)
	return members
}

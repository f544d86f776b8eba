package store

import (
	"strings"

	"github.com/mschirtzinger/workq/internal/types"
)

// checkFields validates the scalar fields of a proposed item.
func checkFields(item *types.WorkItem) error {
	if strings.TrimSpace(item.Title) == "" {
		return &types.ValidationError{Rule: types.RuleMissingTitle, ItemID: item.ID}
	}
	if !item.Priority.IsValid() {
		return &types.ValidationError{Rule: types.RuleInvalidPriority, ItemID: item.ID}
	}
	return nil
}

// validateRelations checks item's parent and dependency edges against graph,
// which must already contain the proposed version of item.
func validateRelations(graph map[string]*types.WorkItem, item *types.WorkItem) error {
	if item.Parent == item.ID {
		return &types.ValidationError{Rule: types.RuleSelfParent, ItemID: item.ID, Ref: item.Parent}
	}
	for _, dep := range item.DependsOn {
		if dep == item.ID {
			return &types.ValidationError{Rule: types.RuleSelfDependency, ItemID: item.ID, Ref: dep}
		}
	}

	if item.Parent != "" {
		if _, ok := graph[item.Parent]; !ok {
			return &types.ValidationError{Rule: types.RuleDanglingParent, ItemID: item.ID, Ref: item.Parent}
		}
	}
	for _, dep := range item.DependsOn {
		if _, ok := graph[dep]; !ok {
			return &types.ValidationError{Rule: types.RuleDanglingDependency, ItemID: item.ID, Ref: dep}
		}
	}

	if parentChainReaches(graph, item.Parent, item.ID) {
		return &types.ValidationError{Rule: types.RuleParentCycle, ItemID: item.ID, Ref: item.Parent}
	}
	for _, dep := range item.DependsOn {
		if dependencyPathReaches(graph, dep, item.ID) {
			return &types.ValidationError{Rule: types.RuleDependencyCycle, ItemID: item.ID, Ref: dep}
		}
	}
	return nil
}

// parentChainReaches follows parent pointers from start and reports whether
// target is encountered. The walk is bounded by the number of items.
func parentChainReaches(graph map[string]*types.WorkItem, start, target string) bool {
	visited := make(map[string]bool, len(graph))
	for cur := start; cur != ""; {
		if cur == target {
			return true
		}
		if visited[cur] || len(visited) > len(graph) {
			return false
		}
		visited[cur] = true

		next, ok := graph[cur]
		if !ok {
			return false
		}
		cur = next.Parent
	}
	return false
}

// dependencyPathReaches walks dependsOn edges transitively from start and
// reports whether target is reachable.
func dependencyPathReaches(graph map[string]*types.WorkItem, start, target string) bool {
	visited := make(map[string]bool, len(graph))
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur == target {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true

		if node, ok := graph[cur]; ok {
			stack = append(stack, node.DependsOn...)
		}
	}
	return false
}

package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation targets an id that does not exist.
// Callers should test with errors.Is; most sites wrap it with the id.
var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with the missing id.
func NotFound(id string) error {
	return fmt.Errorf("item %s: %w", id, ErrNotFound)
}

// ErrNotQueued marks a write that was saved locally but could not be
// recorded for sync. The write itself took effect.
var ErrNotQueued = errors.New("saved locally but not queued")

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Rule names a relationship invariant.
type Rule string

const (
	RuleSelfParent         Rule = "self-parent"
	RuleSelfDependency     Rule = "self-dependency"
	RuleParentCycle        Rule = "parent-cycle"
	RuleDependencyCycle    Rule = "dependency-cycle"
	RuleDanglingParent     Rule = "dangling-parent"
	RuleDanglingDependency Rule = "dangling-dependency"
	RuleMissingTitle       Rule = "missing-title"
	RuleInvalidPriority    Rule = "invalid-priority"
)

// ValidationError reports which rule a proposed mutation would break.
// Nothing is written when it is returned.
type ValidationError struct {
	Rule   Rule
	ItemID string
	// Ref is the other end of the offending relationship, if any.
	Ref string
}

func (e *ValidationError) Error() string {
	switch e.Rule {
	case RuleSelfParent:
		return fmt.Sprintf("validation failed (%s): %s cannot be its own parent", e.Rule, e.ItemID)
	case RuleSelfDependency:
		return fmt.Sprintf("validation failed (%s): %s cannot depend on itself", e.Rule, e.ItemID)
	case RuleParentCycle:
		return fmt.Sprintf("validation failed (%s): making %s the parent of %s would create a cycle", e.Rule, e.Ref, e.ItemID)
	case RuleDependencyCycle:
		return fmt.Sprintf("validation failed (%s): %s depending on %s would create a cycle", e.Rule, e.ItemID, e.Ref)
	case RuleDanglingParent:
		return fmt.Sprintf("validation failed (%s): parent %s of %s does not exist", e.Rule, e.Ref, e.ItemID)
	case RuleDanglingDependency:
		return fmt.Sprintf("validation failed (%s): dependency %s of %s does not exist", e.Rule, e.Ref, e.ItemID)
	default:
		return fmt.Sprintf("validation failed (%s) for %s", e.Rule, e.ItemID)
	}
}

// AsValidation extracts a *ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

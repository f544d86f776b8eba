// Package types defines the work item data model shared by the store,
// the mutation queue, the cache and the sync engine.
package types

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Priority is an ordinal urgency level.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

var priorityNames = []string{"low", "medium", "high", "critical"}

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	if p < PriorityLow || p > PriorityCritical {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// IsValid reports whether p is one of the four defined levels.
func (p Priority) IsValid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority converts a name like "high" into a Priority.
func ParsePriority(s string) (Priority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range priorityNames {
		if n == name {
			return Priority(i), nil
		}
	}
	return PriorityMedium, fmt.Errorf("unknown priority %q (want low, medium, high or critical)", s)
}

// MarshalText encodes the priority by name so item files stay readable.
func (p Priority) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText decodes a priority name.
func (p *Priority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Comment is one entry of an item's append-only discussion history.
type Comment struct {
	Author string    `json:"author" yaml:"author"`
	Date   time.Time `json:"date" yaml:"date"`
	Body   string    `json:"body" yaml:"body"`
}

// CommentInput is the payload of an add-comment call.
type CommentInput struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// WorkItem is a tracked unit of work.
//
// Relationships are plain identifier fields: Parent names at most one other
// item ("" when the item is a root) and DependsOn lists the items this one
// waits on. Labels and DependsOn have set semantics.
type WorkItem struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Type        string    `json:"type" yaml:"type"`
	Status      string    `json:"status" yaml:"status"`
	Priority    Priority  `json:"priority" yaml:"priority"`
	Assignee    string    `json:"assignee" yaml:"assignee"`
	Labels      []string  `json:"labels" yaml:"labels"`
	Iteration   string    `json:"iteration" yaml:"iteration"`
	Description string    `json:"description" yaml:"-"`
	Comments    []Comment `json:"comments" yaml:"comments"`
	Parent      string    `json:"parent" yaml:"parent"`
	DependsOn   []string  `json:"dependsOn" yaml:"depends_on"`
	Created     time.Time `json:"created" yaml:"created"`
	Updated     time.Time `json:"updated" yaml:"updated"`
}

// Normalize replaces nil collections with empty ones so an item read back
// from storage compares equal to the item that was written.
func (w *WorkItem) Normalize() {
	if w.Labels == nil {
		w.Labels = []string{}
	}
	if w.DependsOn == nil {
		w.DependsOn = []string{}
	}
	if w.Comments == nil {
		w.Comments = []Comment{}
	}
}

// Clone returns a deep copy of the item.
func (w *WorkItem) Clone() *WorkItem {
	c := *w
	c.Labels = slices.Clone(w.Labels)
	c.DependsOn = slices.Clone(w.DependsOn)
	c.Comments = slices.Clone(w.Comments)
	c.Normalize()
	return &c
}

// Fields returns the user-visible fields of the item, the shape a remote
// source receives on create.
func (w *WorkItem) Fields() ItemFields {
	return ItemFields{
		Title:       w.Title,
		Type:        w.Type,
		Status:      w.Status,
		Priority:    w.Priority,
		Assignee:    w.Assignee,
		Labels:      slices.Clone(w.Labels),
		Iteration:   w.Iteration,
		Description: w.Description,
		Parent:      w.Parent,
		DependsOn:   slices.Clone(w.DependsOn),
	}
}

// HasDependency reports whether the item depends on id.
func (w *WorkItem) HasDependency(id string) bool {
	return slices.Contains(w.DependsOn, id)
}

// HasLabel reports whether the item carries label.
func (w *WorkItem) HasLabel(label string) bool {
	return slices.Contains(w.Labels, label)
}

// ItemFields holds everything a caller may set when creating an item.
// Identifier, timestamps and comments are owned by the store.
type ItemFields struct {
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	Priority    Priority `json:"priority"`
	Assignee    string   `json:"assignee"`
	Labels      []string `json:"labels"`
	Iteration   string   `json:"iteration"`
	Description string   `json:"description"`
	Parent      string   `json:"parent"`
	DependsOn   []string `json:"dependsOn"`
}

// Patch converts the fields into a patch that sets every field.
func (f ItemFields) Patch() ItemPatch {
	return ItemPatch{
		Title:       &f.Title,
		Type:        &f.Type,
		Status:      &f.Status,
		Priority:    &f.Priority,
		Assignee:    &f.Assignee,
		Labels:      &f.Labels,
		Iteration:   &f.Iteration,
		Description: &f.Description,
		Parent:      &f.Parent,
		DependsOn:   &f.DependsOn,
	}
}

// ItemPatch is a partial update. Nil pointers leave the field unchanged;
// a non-nil Parent pointing at "" clears the parent.
type ItemPatch struct {
	Title       *string   `json:"title,omitempty"`
	Type        *string   `json:"type,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Assignee    *string   `json:"assignee,omitempty"`
	Labels      *[]string `json:"labels,omitempty"`
	Iteration   *string   `json:"iteration,omitempty"`
	Description *string   `json:"description,omitempty"`
	Parent      *string   `json:"parent,omitempty"`
	DependsOn   *[]string `json:"dependsOn,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ItemPatch) IsEmpty() bool {
	return p.Title == nil && p.Type == nil && p.Status == nil && p.Priority == nil &&
		p.Assignee == nil && p.Labels == nil && p.Iteration == nil &&
		p.Description == nil && p.Parent == nil && p.DependsOn == nil
}

// Apply writes the patch onto item. It does not touch timestamps.
func (p ItemPatch) Apply(item *WorkItem) {
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.Type != nil {
		item.Type = *p.Type
	}
	if p.Status != nil {
		item.Status = *p.Status
	}
	if p.Priority != nil {
		item.Priority = *p.Priority
	}
	if p.Assignee != nil {
		item.Assignee = *p.Assignee
	}
	if p.Labels != nil {
		item.Labels = slices.Clone(*p.Labels)
	}
	if p.Iteration != nil {
		item.Iteration = *p.Iteration
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Parent != nil {
		item.Parent = *p.Parent
	}
	if p.DependsOn != nil {
		item.DependsOn = slices.Clone(*p.DependsOn)
	}
	item.Normalize()
}

// ItemFilter narrows a listing. Zero-valued fields match everything.
type ItemFilter struct {
	Iteration string
	Status    string
	Assignee  string
	Label     string
	Type      string
}

// Matches reports whether item passes every set criterion.
func (f ItemFilter) Matches(item *WorkItem) bool {
	if f.Iteration != "" && item.Iteration != f.Iteration {
		return false
	}
	if f.Status != "" && item.Status != f.Status {
		return false
	}
	if f.Assignee != "" && item.Assignee != f.Assignee {
		return false
	}
	if f.Label != "" && !item.HasLabel(f.Label) {
		return false
	}
	if f.Type != "" && item.Type != f.Type {
		return false
	}
	return true
}

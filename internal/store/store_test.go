package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/mschirtzinger/workq/internal/types"
)

// newTestStore returns a store in a temp dir with a fixed clock.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "items"))
	s.SetClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	return s
}

// mustCreate creates an item or fails the test.
func mustCreate(t *testing.T, s *Store, fields types.ItemFields) *types.WorkItem {
	t.Helper()
	if fields.Title == "" {
		fields.Title = "item"
	}
	item, err := s.Create(context.Background(), fields)
	if err != nil {
		t.Fatalf("Create(%q) failed: %v", fields.Title, err)
	}
	return item
}

func ptr[T any](v T) *T { return &v }

// wantRule asserts err is a ValidationError for rule.
func wantRule(t *testing.T, err error, rule types.Rule) {
	t.Helper()
	ve, ok := types.AsValidation(err)
	if !ok {
		t.Fatalf("expected ValidationError(%s), got %v", rule, err)
	}
	if ve.Rule != rule {
		t.Errorf("rule = %s, want %s", ve.Rule, rule)
	}
}

func TestCreate_AssignsLocalIDAndTimestamps(t *testing.T) {
	s := newTestStore(t)
	item := mustCreate(t, s, types.ItemFields{Title: "First", Priority: types.PriorityHigh})

	if !IsLocalID(item.ID) {
		t.Errorf("ID = %q, want %s prefix", item.ID, LocalIDPrefix)
	}
	if item.Created.IsZero() || !item.Created.Equal(item.Updated) {
		t.Errorf("timestamps not set: created=%v updated=%v", item.Created, item.Updated)
	}

	got, err := s.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Title != "First" || got.Priority != types.PriorityHigh {
		t.Errorf("Get() = %+v", got)
	}
}

func TestCreate_RejectsDanglingReferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, types.ItemFields{Title: "orphan", Parent: "missing"})
	wantRule(t, err, types.RuleDanglingParent)

	_, err = s.Create(ctx, types.ItemFields{Title: "orphan", DependsOn: []string{"missing"}})
	wantRule(t, err, types.RuleDanglingDependency)

	items, err := s.List(ctx, types.ItemFilter{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("rejected creates wrote %d items", len(items))
	}
}

func TestCreate_RejectsMissingTitle(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), types.ItemFields{Title: "  "})
	wantRule(t, err, types.RuleMissingTitle)
}

func TestUpdate_SelfReference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCreate(t, s, types.ItemFields{Title: "A"})

	_, err := s.Update(ctx, a.ID, types.ItemPatch{Parent: ptr(a.ID)})
	wantRule(t, err, types.RuleSelfParent)

	_, err = s.Update(ctx, a.ID, types.ItemPatch{DependsOn: ptr([]string{a.ID})})
	wantRule(t, err, types.RuleSelfDependency)
}

func TestUpdate_ParentCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A -> B -> C (A is parent of B, B is parent of C)
	a := mustCreate(t, s, types.ItemFields{Title: "A"})
	b := mustCreate(t, s, types.ItemFields{Title: "B", Parent: a.ID})
	c := mustCreate(t, s, types.ItemFields{Title: "C", Parent: b.ID})

	_, err := s.Update(ctx, a.ID, types.ItemPatch{Parent: ptr(c.ID)})
	wantRule(t, err, types.RuleParentCycle)

	got, err := s.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Parent != "" {
		t.Errorf("rejected update was written: parent = %q", got.Parent)
	}
}

func TestUpdate_DependencyCycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A depends on B depends on C
	c := mustCreate(t, s, types.ItemFields{Title: "C"})
	b := mustCreate(t, s, types.ItemFields{Title: "B", DependsOn: []string{c.ID}})
	a := mustCreate(t, s, types.ItemFields{Title: "A", DependsOn: []string{b.ID}})

	_, err := s.Update(ctx, c.ID, types.ItemPatch{DependsOn: ptr([]string{a.ID})})
	wantRule(t, err, types.RuleDependencyCycle)

	// A diamond is fine: D depends on both A and C.
	mustCreate(t, s, types.ItemFields{Title: "D", DependsOn: []string{a.ID, c.ID}})
}

func TestUpdate_EvaluatesProposedState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, s, types.ItemFields{Title: "A"})
	b := mustCreate(t, s, types.ItemFields{Title: "B", Parent: a.ID})

	// Moving B out from under A and then making B A's parent is legal once
	// B's own parent edge is replaced.
	if _, err := s.Update(ctx, b.ID, types.ItemPatch{Parent: ptr("")}); err != nil {
		t.Fatalf("Update(clear parent) failed: %v", err)
	}
	if _, err := s.Update(ctx, a.ID, types.ItemPatch{Parent: ptr(b.ID)}); err != nil {
		t.Fatalf("Update(reparent) failed: %v", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Update(context.Background(), "nope", types.ItemPatch{Title: ptr("x")})
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestUpdate_RefreshesUpdated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCreate(t, s, types.ItemFields{Title: "A"})

	later := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return later })

	got, err := s.Update(ctx, a.ID, types.ItemPatch{Status: ptr("done")})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if !got.Updated.Equal(later) {
		t.Errorf("Updated = %v, want %v", got.Updated, later)
	}
	if !got.Created.Equal(a.Created) {
		t.Errorf("Created changed: %v -> %v", a.Created, got.Created)
	}
}

func TestDelete_CascadeRepair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := mustCreate(t, s, types.ItemFields{Title: "P"})
	other := mustCreate(t, s, types.ItemFields{Title: "other"})
	child := mustCreate(t, s, types.ItemFields{Title: "child", Parent: p.ID})
	dependent := mustCreate(t, s, types.ItemFields{Title: "dependent", DependsOn: []string{p.ID, other.ID}})

	if err := s.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	if _, err := s.Get(ctx, p.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}

	gotChild, err := s.Get(ctx, child.ID)
	if err != nil {
		t.Fatalf("Get(child) failed: %v", err)
	}
	if gotChild.Parent != "" {
		t.Errorf("child.Parent = %q, want cleared", gotChild.Parent)
	}

	gotDep, err := s.Get(ctx, dependent.ID)
	if err != nil {
		t.Fatalf("Get(dependent) failed: %v", err)
	}
	if !reflect.DeepEqual(gotDep.DependsOn, []string{other.ID}) {
		t.Errorf("dependent.DependsOn = %v, want [%s]", gotDep.DependsOn, other.ID)
	}
}

func TestDelete_MissingIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete(context.Background(), "never-existed"); err != nil {
		t.Errorf("Delete(missing) = %v, want nil", err)
	}
}

func TestList_Filter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, types.ItemFields{Title: "a", Iteration: "sprint-1", Assignee: "ana"})
	mustCreate(t, s, types.ItemFields{Title: "b", Iteration: "sprint-2", Labels: []string{"ui"}})
	mustCreate(t, s, types.ItemFields{Title: "c", Iteration: "sprint-1", Labels: []string{"ui", "api"}})

	tests := []struct {
		name   string
		filter types.ItemFilter
		want   int
	}{
		{"no filter", types.ItemFilter{}, 3},
		{"iteration", types.ItemFilter{Iteration: "sprint-1"}, 2},
		{"label", types.ItemFilter{Label: "ui"}, 2},
		{"iteration and label", types.ItemFilter{Iteration: "sprint-1", Label: "ui"}, 1},
		{"assignee", types.ItemFilter{Assignee: "ana"}, 1},
		{"no match", types.ItemFilter{Iteration: "sprint-9"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() failed: %v", err)
			}
			if len(items) != tt.want {
				t.Errorf("List() returned %d items, want %d", len(items), tt.want)
			}
		})
	}
}

func TestChildrenAndDependents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	epic := mustCreate(t, s, types.ItemFields{Title: "epic"})
	mustCreate(t, s, types.ItemFields{Title: "one", Parent: epic.ID})
	mustCreate(t, s, types.ItemFields{Title: "two", Parent: epic.ID, DependsOn: []string{epic.ID}})

	children, err := s.Children(ctx, epic.ID)
	if err != nil {
		t.Fatalf("Children() failed: %v", err)
	}
	if len(children) != 2 {
		t.Errorf("Children() = %d, want 2", len(children))
	}

	dependents, err := s.Dependents(ctx, epic.ID)
	if err != nil {
		t.Fatalf("Dependents() failed: %v", err)
	}
	if len(dependents) != 1 || dependents[0].Title != "two" {
		t.Errorf("Dependents() = %+v", dependents)
	}
}

func TestAddComment_Appends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCreate(t, s, types.ItemFields{Title: "A"})

	for _, body := range []string{"first", "second"} {
		if _, err := s.AddComment(ctx, a.ID, types.CommentInput{Author: "ana", Body: body}); err != nil {
			t.Fatalf("AddComment(%q) failed: %v", body, err)
		}
	}

	got, err := s.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(got.Comments) != 2 || got.Comments[0].Body != "first" || got.Comments[1].Body != "second" {
		t.Errorf("Comments = %+v", got.Comments)
	}

	if _, err := s.AddComment(ctx, "missing", types.CommentInput{Body: "x"}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("AddComment(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRename_RewritesReferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, s, types.ItemFields{Title: "A"})
	child := mustCreate(t, s, types.ItemFields{Title: "child", Parent: a.ID})
	dep := mustCreate(t, s, types.ItemFields{Title: "dep", DependsOn: []string{a.ID}})

	if err := s.Rename(ctx, a.ID, "WQ-7"); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}

	if _, err := s.Get(ctx, a.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("old id still present: %v", err)
	}
	renamed, err := s.Get(ctx, "WQ-7")
	if err != nil {
		t.Fatalf("Get(new id) failed: %v", err)
	}
	if renamed.Title != "A" {
		t.Errorf("renamed.Title = %q", renamed.Title)
	}

	gotChild, _ := s.Get(ctx, child.ID)
	if gotChild.Parent != "WQ-7" {
		t.Errorf("child.Parent = %q, want WQ-7", gotChild.Parent)
	}
	gotDep, _ := s.Get(ctx, dep.ID)
	if !reflect.DeepEqual(gotDep.DependsOn, []string{"WQ-7"}) {
		t.Errorf("dep.DependsOn = %v, want [WQ-7]", gotDep.DependsOn)
	}
}

func TestRename_TargetTaken(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, types.ItemFields{Title: "A"})
	b := mustCreate(t, s, types.ItemFields{Title: "B"})

	err := s.Rename(context.Background(), a.ID, b.ID)
	if !errors.Is(err, ErrExists) {
		t.Errorf("Rename() error = %v, want ErrExists", err)
	}
}

func TestPut_OverwritesWithoutValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	remote := &types.WorkItem{
		ID:      "WQ-1",
		Title:   "from remote",
		Status:  "doing",
		Parent:  "WQ-0", // not present locally yet
		Created: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Updated: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	if err := s.Put(ctx, remote); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := s.Get(ctx, "WQ-1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Parent != "WQ-0" || got.Status != "doing" {
		t.Errorf("Get() = %+v", got)
	}
}

func TestGet_IgnoresPathLikeIDs(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), "../etc/passwd"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get(path) error = %v, want ErrNotFound", err)
	}
}

func TestList_SkipsInvalidFiles(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, types.ItemFields{Title: "ok"})

	if err := os.WriteFile(filepath.Join(s.Dir(), "junk.md"), []byte("not front matter"), 0644); err != nil {
		t.Fatal(err)
	}

	items, err := s.List(context.Background(), types.ItemFilter{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("List() = %d items, want 1", len(items))
	}
}

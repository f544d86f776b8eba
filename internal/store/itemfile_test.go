package store

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mschirtzinger/workq/internal/types"
)

func TestItemFile_RoundTrip(t *testing.T) {
	created := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	item := &types.WorkItem{
		ID:          "WQ-12",
		Title:       "Fix login: handle expired tokens",
		Type:        "bug",
		Status:      "in-progress",
		Priority:    types.PriorityCritical,
		Assignee:    "ana",
		Labels:      []string{"auth", "backend"},
		Iteration:   "sprint-4",
		Description: "Steps:\n\n1. log in\n---\n2. wait\n",
		Comments: []types.Comment{
			{Author: "bo", Date: created.Add(time.Hour), Body: "repro'd"},
		},
		Parent:    "WQ-3",
		DependsOn: []string{"WQ-4", "WQ-5"},
		Created:   created,
		Updated:   created.Add(2 * time.Hour),
	}

	data, err := EncodeItem(item)
	if err != nil {
		t.Fatalf("EncodeItem() failed: %v", err)
	}
	got, err := DecodeItem(data)
	if err != nil {
		t.Fatalf("DecodeItem() failed: %v\n%s", err, data)
	}

	if !reflect.DeepEqual(got, item) {
		t.Errorf("round trip mismatch\n got: %+v\nwant: %+v", got, item)
	}
}

func TestItemFile_EmptyOptionalFields(t *testing.T) {
	item := &types.WorkItem{ID: "local-1", Title: "bare"}

	data, err := EncodeItem(item)
	if err != nil {
		t.Fatalf("EncodeItem() failed: %v", err)
	}
	got, err := DecodeItem(data)
	if err != nil {
		t.Fatalf("DecodeItem() failed: %v", err)
	}

	if got.Parent != "" {
		t.Errorf("Parent = %q, want empty", got.Parent)
	}
	if got.Labels == nil || len(got.Labels) != 0 {
		t.Errorf("Labels = %#v, want empty slice", got.Labels)
	}
	if got.DependsOn == nil || got.Comments == nil {
		t.Errorf("collections not normalized: %+v", got)
	}
	if got.Description != "" {
		t.Errorf("Description = %q, want empty", got.Description)
	}
}

func TestDecodeItem_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"no front matter", "title: x\n", "missing front matter"},
		{"unterminated", "---\nid: a\n", "unterminated front matter"},
		{"missing id", "---\ntitle: x\n---\n", "id is required"},
		{"bad priority", "---\nid: a\npriority: urgent\n---\n", "unknown priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeItem([]byte(tt.content))
			if err == nil {
				t.Fatal("DecodeItem() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %q, want containing %q", err, tt.errMsg)
			}
		})
	}
}

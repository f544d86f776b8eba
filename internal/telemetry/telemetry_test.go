package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/mschirtzinger/workq/internal/remote/remotetest"
	"github.com/mschirtzinger/workq/internal/types"
)

func TestInit_DisabledReturnsSourceUnchanged(t *testing.T) {
	if err := Init(context.Background(), Options{}); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if Enabled() {
		t.Fatal("Enabled() = true after disabled Init")
	}

	src := remotetest.New()
	if got := WrapRemote(src); got != src {
		t.Errorf("WrapRemote() = %T, want the original source", got)
	}
}

func TestWrapRemote_Enabled(t *testing.T) {
	ctx := context.Background()
	if err := Init(ctx, Options{Enabled: true, ServiceName: "wq-test"}); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	defer Shutdown(ctx)

	src := remotetest.New()
	wrapped := WrapRemote(src)
	if _, ok := wrapped.(*InstrumentedRemote); !ok {
		t.Fatalf("WrapRemote() = %T, want *InstrumentedRemote", wrapped)
	}

	item, err := wrapped.CreateItem(ctx, types.ItemFields{Title: "traced"})
	if err != nil {
		t.Fatalf("CreateItem() failed: %v", err)
	}
	if src.Item(item.ID) == nil {
		t.Error("call did not reach the wrapped source")
	}

	src.FailOn("delete", "X", errors.New("boom"))
	if err := wrapped.DeleteItem(ctx, "X"); err == nil {
		t.Error("DeleteItem() error was swallowed")
	}

	wrapped.(*InstrumentedRemote).InvalidateCaches()
	if src.Invalidations() != 1 {
		t.Errorf("InvalidateCaches not forwarded")
	}
}

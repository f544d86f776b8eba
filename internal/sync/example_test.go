package sync_test

import (
	"context"
	"fmt"
	"log"

	"github.com/mschirtzinger/workq/internal/db"
	"github.com/mschirtzinger/workq/internal/queue"
	"github.com/mschirtzinger/workq/internal/remote"
	_ "github.com/mschirtzinger/workq/internal/remote/dirremote"
	"github.com/mschirtzinger/workq/internal/store"
	"github.com/mschirtzinger/workq/internal/sync"
	"github.com/mschirtzinger/workq/internal/types"
)

// This example demonstrates a full sync against a shared-directory remote.
// Note: This is for documentation only and won't run as a test.
func ExampleNew() {
	ctx := context.Background()

	database, err := db.OpenAndInit(ctx, ".workq/workq.db")
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	src, err := remote.Open(remote.KindDir, remote.Config{Dir: "/srv/board"})
	if err != nil {
		log.Fatal(err)
	}

	engine := sync.New(store.New(".workq/items"), queue.New(database), database, src, sync.DefaultConfig())

	result, err := engine.Sync(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("pushed %d, pulled %d\n", result.Push.Pushed, result.PullCount)
}

// This example demonstrates watching status transitions.
func ExampleEngine_Subscribe() {
	var engine *sync.Engine // from sync.New

	unsubscribe := engine.Subscribe(func(s types.SyncStatus) {
		fmt.Printf("%s (%d pending)\n", s.State, s.PendingCount)
	})
	defer unsubscribe()
}

package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mschirtzinger/workq/internal/remote/remotetest"
	wqsync "github.com/mschirtzinger/workq/internal/sync"
	"github.com/mschirtzinger/workq/internal/types"
)

type stubSyncer struct {
	status types.SyncStatus
	subs   []func(types.SyncStatus)
}

func (s *stubSyncer) PushPending(context.Context) (*wqsync.PushResult, error) { return nil, nil }
func (s *stubSyncer) Pull(context.Context) (int, error) { return 0, nil }
func (s *stubSyncer) Sync(context.Context) (*wqsync.SyncResult, error) { return nil, nil }
func (s *stubSyncer) Status() types.SyncStatus { return s.status }

func (s *stubSyncer) Subscribe(fn func(types.SyncStatus)) func() {
	s.subs = append(s.subs, fn)
	return func() { s.subs = nil }
}

func startServer(t *testing.T, syncer wqsync.Syncer) *Server {
	t.Helper()
	items := remotetest.New()
	items.Seed(
		&types.WorkItem{ID: "WQ-1", Title: "one", Status: "todo", Assignee: "ana"},
		&types.WorkItem{ID: "WQ-2", Title: "two", Status: "done"},
	)

	server := NewServer(&Config{
		Addr:   "127.0.0.1",
		Port:   0,
		Items:  items,
		Syncer: syncer,
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func getJSON(t *testing.T, url string, wantStatus int, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, wantStatus)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("failed to decode %s: %v", url, err)
		}
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServer_StartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Items: remotetest.New(), Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestServer_RequiresItems(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err == nil {
		server.Stop()
		t.Fatal("Start() without an item source should fail")
	}
}

func TestAPI_HealthAndStatus(t *testing.T) {
	syncer := &stubSyncer{status: types.SyncStatus{State: types.SyncFailed, PendingCount: 2}}
	server := startServer(t, syncer)
	base := "http://" + server.GetAddr()

	var health map[string]any
	getJSON(t, base+"/health", http.StatusOK, &health)
	if health["status"] != "ok" || health["remote"] != true {
		t.Errorf("health = %v", health)
	}

	var status types.SyncStatus
	getJSON(t, base+"/api/status", http.StatusOK, &status)
	if status.State != types.SyncFailed || status.PendingCount != 2 {
		t.Errorf("status = %+v", status)
	}
}

func TestAPI_Items(t *testing.T) {
	server := startServer(t, nil)
	base := "http://" + server.GetAddr()

	var all []types.WorkItem
	getJSON(t, base+"/api/items", http.StatusOK, &all)
	if len(all) != 2 {
		t.Fatalf("got %d items, want 2", len(all))
	}

	var todo []types.WorkItem
	getJSON(t, base+"/api/items?status=todo", http.StatusOK, &todo)
	if len(todo) != 1 || todo[0].ID != "WQ-1" {
		t.Errorf("filtered items = %+v", todo)
	}

	var one types.WorkItem
	getJSON(t, base+"/api/items/WQ-2", http.StatusOK, &one)
	if one.Title != "two" {
		t.Errorf("item = %+v", one)
	}

	var errBody map[string]apiErrorBody
	getJSON(t, base+"/api/items/WQ-404", http.StatusNotFound, &errBody)
	if errBody["error"].Code != "not_found" {
		t.Errorf("error body = %+v", errBody)
	}

	var status types.SyncStatus
	getJSON(t, base+"/api/status", http.StatusOK, &status)
	if status.State != types.SyncIdle {
		t.Errorf("local-only status = %+v", status)
	}
}

func TestWebSocket_WelcomeAndBroadcast(t *testing.T) {
	syncer := &stubSyncer{status: types.SyncStatus{State: types.SyncIdle, PendingCount: 1}}
	server := startServer(t, syncer)
	handler := NewHandler(server, log.New(io.Discard, "", 0))
	detach := handler.Attach(syncer)
	defer detach()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	welcome := readMessage(t, ctx, conn)
	if welcome.Type != MessageTypeSyncStatus {
		t.Fatalf("welcome type = %s", welcome.Type)
	}
	var st types.SyncStatus
	if err := json.Unmarshal(welcome.Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.PendingCount != 1 {
		t.Errorf("welcome status = %+v", st)
	}

	for server.ClientCount() != 1 {
		select {
		case <-ctx.Done():
			t.Fatal("client was never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Status transitions reach clients through the subscription.
	for _, fn := range syncer.subs {
		fn(types.SyncStatus{State: types.SyncSyncing})
	}
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncStatus {
		t.Errorf("message type = %s, want %s", msg.Type, MessageTypeSyncStatus)
	}

	handler.OnItemsChanged([]string{"WQ-1", "WQ-2"})
	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeItemsChanged {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeItemsChanged)
	}
	var changed ItemsChangedData
	if err := json.Unmarshal(msg.Data, &changed); err != nil {
		t.Fatal(err)
	}
	if len(changed.IDs) != 2 || changed.IDs[0] != "WQ-1" {
		t.Errorf("changed = %+v", changed)
	}
}

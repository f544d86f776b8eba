package dashboard

import (
	"encoding/json"
	"log"
	"time"

	wqsync "github.com/mschirtzinger/workq/internal/sync"
	"github.com/mschirtzinger/workq/internal/types"
)

// Handler turns engine status changes and daemon item events into
// dashboard broadcasts.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

// Attach subscribes to syncer status changes. Call the returned function
// to stop forwarding.
func (h *Handler) Attach(syncer wqsync.Syncer) (detach func()) {
	return syncer.Subscribe(h.OnStatus)
}

// OnStatus broadcasts a sync status transition.
func (h *Handler) OnStatus(status types.SyncStatus) {
	msg, err := statusMessage(status)
	if err != nil {
		h.logger.Printf("Failed to marshal status: %v", err)
		return
	}
	h.server.Broadcast(msg)
}

// OnItemsChanged broadcasts ids of items whose files changed. It matches
// daemon.Config.OnItemsChanged.
func (h *Handler) OnItemsChanged(ids []string) {
	data, err := json.Marshal(ItemsChangedData{IDs: ids})
	if err != nil {
		h.logger.Printf("Failed to marshal item ids: %v", err)
		return
	}
	h.server.Broadcast(Message{
		Type:      MessageTypeItemsChanged,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func statusMessage(status types.SyncStatus) (Message, error) {
	data, err := json.Marshal(status)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:      MessageTypeSyncStatus,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

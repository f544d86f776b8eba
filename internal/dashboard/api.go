package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mschirtzinger/workq/internal/types"
)

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]apiErrorBody{
		"error": {Code: code, Message: message},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
		"remote":  s.syncer != nil,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentStatus())
}

// handleListItems serves GET /api/items. Query parameters iteration,
// status, assignee, label and type filter the listing.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.ItemFilter{
		Iteration: q.Get("iteration"),
		Status:    q.Get("status"),
		Assignee:  q.Get("assignee"),
		Label:     q.Get("label"),
		Type:      q.Get("type"),
	}
	items, err := s.items.ListItems(r.Context(), filter)
	if err != nil {
		s.logger.Printf("List items failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if items == nil {
		items = []*types.WorkItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := s.items.GetItem(r.Context(), id)
	if types.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("item %s not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>workq dashboard</title>
</head>
<body>
    <h1>workq dashboard</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Sync status: <a href="/api/status">/api/status</a></p>
    <p>Items: <a href="/api/items">/api/items</a></p>
    <p>Health check: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

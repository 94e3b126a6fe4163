package server

import (
	"encoding/json"
	"net/http"
	"time"
)

type taskResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Object    string    `json:"object"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	FileID    string    `json:"file_id,omitempty"`
}

// HandleTask returns the last known state of one task. It never polls the remote service.
func (h *Handlers) HandleTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.tasks == nil || id == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	t, ok := h.tasks.Get(id)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(taskResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Action:    t.Action,
		Object:    t.Object,
		Status:    t.Status.String(),
		CreatedAt: t.CreatedAt.UTC(),
		FileID:    t.FileID,
	})
}

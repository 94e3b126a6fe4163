package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockMinimaxServer creates a test server that mocks MiniMax video generation API responses
type MockMinimaxServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	calls map[string]int
}

// NewMockMinimaxServer creates a new mock MiniMax API server
func NewMockMinimaxServer(t *testing.T) *MockMinimaxServer {
	t.Helper()
	m := &MockMinimaxServer{
		Handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.mu.Lock()
		m.calls[key]++
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers a handler for path under the server's lock.
func (m *MockMinimaxServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// Calls returns how many requests hit path.
func (m *MockMinimaxServer) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

// MockSubmitResponse adds a handler for /video_generation
func (m *MockMinimaxServer) MockSubmitResponse(taskID string) {
	m.Handle("/video_generation", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"task_id":   taskID,
			"base_resp": map[string]interface{}{"status_code": 0, "status_msg": "success"},
		})
	})
}

// MockStatusSequence adds a handler for /query/video_generation that answers with statuses in
// order and repeats the last one once the sequence is exhausted. fileID is attached to Success.
func (m *MockMinimaxServer) MockStatusSequence(fileID string, statuses ...string) {
	var mu sync.Mutex
	i := 0
	m.Handle("/query/video_generation", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		st := statuses[min(i, len(statuses)-1)]
		i++
		mu.Unlock()
		resp := map[string]interface{}{
			"task_id": r.URL.Query().Get("task_id"),
			"status":  st,
		}
		if st == "Success" {
			resp["file_id"] = fileID
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// MockRetrieveResponse adds a handler for /files/retrieve
func (m *MockMinimaxServer) MockRetrieveResponse(downloadURL string) {
	m.Handle("/files/retrieve", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"file": map[string]interface{}{
				"file_id":      r.URL.Query().Get("file_id"),
				"download_url": downloadURL,
			},
			"base_resp": map[string]interface{}{"status_code": 0, "status_msg": "success"},
		})
	})
}

// MockVideo serves body as the downloadable video at path.
func (m *MockMinimaxServer) MockVideo(path string, body []byte) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(body) //nolint:errcheck // test mock response
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

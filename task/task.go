// Package task tracks submitted video generation tasks and watches each one until its video is
// delivered or it fails.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/cat-video-bot/minimax"
	"github.com/onnwee/cat-video-bot/prompt"
	"github.com/onnwee/cat-video-bot/telemetry"
)

// ErrNotFound is returned for unknown task ids and for tasks that have no generated file yet.
var ErrNotFound = errors.New("task not found")

const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxRetries   = 3
)

// Generator abstracts the remote video generation service (for tests/mocks).
type Generator interface {
	Submit(ctx context.Context, prompt string) (string, error)
	Poll(ctx context.Context, taskID string) (minimax.Status, string, error)
	ResolveDownloadURL(ctx context.Context, fileID string) (string, error)
	Download(ctx context.Context, url, dest string) bool
}

// Task is one submitted generation request.
type Task struct {
	ID        string
	UserID    string
	Action    string
	Object    string
	Status    minimax.Status
	CreatedAt time.Time
	Prompt    string
	FileID    string
}

// Registry owns every task created by this process. Entries are never removed.
type Registry struct {
	gen Generator

	mu    sync.RWMutex
	tasks map[string]*Task

	pollInterval time.Duration
	maxRetries   int
	tempDir      string
	now          func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithPollInterval sets the delay between monitor polls.
func WithPollInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithMaxRetries sets how many consecutive anomalies a monitor tolerates.
func WithMaxRetries(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

// WithTempDir sets where downloaded videos are staged. Empty means os.TempDir.
func WithTempDir(dir string) Option {
	return func(r *Registry) { r.tempDir = dir }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New builds an empty registry around gen.
func New(gen Generator, opts ...Option) *Registry {
	r := &Registry{
		gen:          gen,
		tasks:        make(map[string]*Task),
		pollInterval: DefaultPollInterval,
		maxRetries:   DefaultMaxRetries,
		now:          time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// LocalID formats t as a 22-digit zero-padded count of Unix microseconds.
func LocalID(t time.Time) string {
	return fmt.Sprintf("%022d", t.UnixMicro())
}

// Create renders the prompt, submits it and records the new task with status Processing.
// Generator errors are returned unchanged.
func (r *Registry) Create(ctx context.Context, userID, action, object string) (string, error) {
	p := prompt.Build(action, object)
	id, err := r.gen.Submit(ctx, p)
	if err != nil {
		telemetry.Inc(telemetry.TasksSubmitFailed)
		return "", err
	}
	now := r.now()
	if id == "" {
		id = LocalID(now)
	}
	r.mu.Lock()
	r.tasks[id] = &Task{
		ID:        id,
		UserID:    userID,
		Action:    action,
		Object:    object,
		Status:    minimax.StatusProcessing,
		CreatedAt: now,
		Prompt:    p,
	}
	r.mu.Unlock()
	telemetry.Inc(telemetry.TasksSubmitted)
	telemetry.LoggerWithCorr(ctx).Info("task created", slog.String("task_id", id), slog.String("user_id", userID), slog.String("component", "task"))
	return id, nil
}

// GetStatus polls the remote service for a known task and records the result.
func (r *Registry) GetStatus(ctx context.Context, id string) (minimax.Status, error) {
	if !r.exists(id) {
		return "", ErrNotFound
	}
	st, fileID, err := r.gen.Poll(ctx, id)
	if err != nil {
		telemetry.Inc(telemetry.PollErrors)
		return "", err
	}
	telemetry.ObservePoll(st.String())
	r.mu.Lock()
	if t, ok := r.tasks[id]; ok {
		t.Status = st
		if st == minimax.StatusSuccess && fileID != "" {
			t.FileID = fileID
		}
	}
	r.mu.Unlock()
	return st, nil
}

// GetVideoURL resolves the download URL of a task's generated file.
func (r *Registry) GetVideoURL(ctx context.Context, id string) (string, error) {
	r.mu.RLock()
	t, ok := r.tasks[id]
	var fileID string
	if ok {
		fileID = t.FileID
	}
	r.mu.RUnlock()
	if fileID == "" {
		return "", ErrNotFound
	}
	return r.gen.ResolveDownloadURL(ctx, fileID)
}

// Get returns a copy of the task.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Len reports how many tasks have been created.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func (r *Registry) exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tasks[id]
	return ok
}

package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/cat-video-bot/minimax"
)

type pollResult struct {
	status minimax.Status
	fileID string
	err    error
}

// fakeGenerator answers polls from a per-task script, repeating the last entry.
type fakeGenerator struct {
	mu         sync.Mutex
	nextID     string
	submitErr  error
	prompts    []string
	scripts    map[string][]pollResult
	polls      map[string]int
	resolves   int
	resolveErr error
	downloads  []string
	downloadOK bool

	// gates holds Download for a url open until the channel is closed.
	gates map[string]chan struct{}
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		scripts:    make(map[string][]pollResult),
		polls:      make(map[string]int),
		downloadOK: true,
		gates:      make(map[string]chan struct{}),
	}
}

func (g *fakeGenerator) script(id string, results ...pollResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[id] = results
}

func (g *fakeGenerator) Submit(_ context.Context, p string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return "", g.submitErr
	}
	g.prompts = append(g.prompts, p)
	return g.nextID, nil
}

func (g *fakeGenerator) Poll(_ context.Context, id string) (minimax.Status, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.scripts[id]
	if len(s) == 0 {
		return minimax.StatusProcessing, "", nil
	}
	r := s[min(g.polls[id], len(s)-1)]
	g.polls[id]++
	return r.status, r.fileID, r.err
}

func (g *fakeGenerator) ResolveDownloadURL(_ context.Context, fileID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolves++
	if g.resolveErr != nil {
		return "", g.resolveErr
	}
	return "https://cdn.example/" + fileID + ".mp4", nil
}

func (g *fakeGenerator) Download(_ context.Context, url, dest string) bool {
	g.mu.Lock()
	g.downloads = append(g.downloads, url)
	ok, gate := g.downloadOK, g.gates[url]
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if !ok {
		return false
	}
	return os.WriteFile(dest, []byte("mp4"), 0o600) == nil
}

func (g *fakeGenerator) downloadStarted(url string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range g.downloads {
		if u == url {
			return true
		}
	}
	return false
}

func (g *fakeGenerator) pollCount(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.polls[id]
}

type fakeConversation struct {
	mu     sync.Mutex
	texts  []string
	videos []Video

	// existed records whether each video file was present when sent.
	existed []bool
}

func (c *fakeConversation) ReplyText(_ context.Context, text string, _ Format) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeConversation) ReplyVideo(_ context.Context, v Video) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := os.Stat(v.Path)
	c.videos = append(c.videos, v)
	c.existed = append(c.existed, err == nil)
	return nil
}

func newTestRegistry(t *testing.T, g *fakeGenerator) *Registry {
	t.Helper()
	return New(g, WithPollInterval(time.Millisecond), WithTempDir(t.TempDir()))
}

func createTask(t *testing.T, r *Registry, g *fakeGenerator, id string) {
	t.Helper()
	g.mu.Lock()
	g.nextID = id
	g.mu.Unlock()
	got, err := r.Create(context.Background(), "user-1", "chase", "butterfly")
	if err != nil || got != id {
		t.Fatalf("Create() = %q, %v", got, err)
	}
}

func waitMonitor(t *testing.T, m *Monitor) Outcome {
	t.Helper()
	select {
	case <-m.Done():
		return m.Wait()
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not terminate")
		return OutcomePending
	}
}

func TestCreate(t *testing.T) {
	g := newFakeGenerator()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	r := New(g, WithClock(func() time.Time { return fixed }))
	g.nextID = "task-1"

	id, err := r.Create(context.Background(), "42", "chase", "butterfly")
	if err != nil {
		t.Fatal(err)
	}
	task, ok := r.Get(id)
	if !ok {
		t.Fatal("task not recorded")
	}
	if task.Status != minimax.StatusProcessing || task.UserID != "42" || task.Action != "chase" || task.Object != "butterfly" {
		t.Errorf("unexpected task %+v", task)
	}
	if !task.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v", task.CreatedAt)
	}
	if len(g.prompts) != 1 || g.prompts[0] != task.Prompt || !strings.Contains(task.Prompt, "chase butterfly") {
		t.Errorf("prompt not submitted as recorded: %v", g.prompts)
	}
}

func TestCreateLocalIDFallback(t *testing.T) {
	g := newFakeGenerator()
	fixed := time.UnixMicro(1700000000123456)
	r := New(g, WithClock(func() time.Time { return fixed }))
	id, err := r.Create(context.Background(), "1", "eat", "noodles")
	if err != nil {
		t.Fatal(err)
	}
	if id != "0000001700000000123456" {
		t.Errorf("id = %s", id)
	}
	if _, ok := r.Get(id); !ok {
		t.Error("task not stored under local id")
	}
}

func TestCreateError(t *testing.T) {
	g := newFakeGenerator()
	sentinel := &minimax.RemoteProtocolError{Op: "submit", Msg: "no task_id"}
	g.submitErr = sentinel
	r := New(g)
	_, err := r.Create(context.Background(), "1", "eat", "noodles")
	if !errors.Is(err, sentinel) {
		t.Fatalf("Create() error = %v, want generator error unchanged", err)
	}
	if r.Len() != 0 {
		t.Errorf("failed submission recorded a task")
	}
}

func TestLocalID(t *testing.T) {
	id := LocalID(time.Now())
	if len(id) != 22 {
		t.Errorf("LocalID length = %d, want 22", len(id))
	}
	if strings.Trim(id, "0123456789") != "" {
		t.Errorf("LocalID %q is not decimal", id)
	}
}

func TestGetStatusUnknownID(t *testing.T) {
	g := newFakeGenerator()
	r := New(g)
	if _, err := r.GetStatus(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetStatus() error = %v, want ErrNotFound", err)
	}
	if g.pollCount("nope") != 0 {
		t.Error("unknown id reached the remote service")
	}
}

func TestGetStatusRecordsFileID(t *testing.T) {
	g := newFakeGenerator()
	r := New(g)
	createTask(t, r, g, "t1")
	g.script("t1", pollResult{status: minimax.StatusSuccess, fileID: "f1"})

	st, err := r.GetStatus(context.Background(), "t1")
	if err != nil || st != minimax.StatusSuccess {
		t.Fatalf("GetStatus() = %s, %v", st, err)
	}
	task, _ := r.Get("t1")
	if task.Status != minimax.StatusSuccess || task.FileID != "f1" {
		t.Errorf("task not updated: %+v", task)
	}
}

func TestGetVideoURLWithoutFileID(t *testing.T) {
	g := newFakeGenerator()
	r := New(g)
	createTask(t, r, g, "t1")

	for _, id := range []string{"t1", "missing"} {
		if _, err := r.GetVideoURL(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetVideoURL(%s) error = %v, want ErrNotFound", id, err)
		}
	}
	if g.resolves != 0 {
		t.Errorf("resolve called %d times, want 0", g.resolves)
	}
}

func TestMonitorDeliversOnce(t *testing.T) {
	g := newFakeGenerator()
	r := newTestRegistry(t, g)
	createTask(t, r, g, "t1")
	g.script("t1",
		pollResult{status: minimax.StatusProcessing},
		pollResult{status: minimax.StatusProcessing},
		pollResult{status: minimax.StatusSuccess, fileID: "f1"},
	)
	conv := &fakeConversation{}

	if got := waitMonitor(t, r.Watch(context.Background(), "t1", conv)); got != OutcomeDelivered {
		t.Fatalf("outcome = %s, want delivered", got)
	}
	if g.pollCount("t1") != 3 {
		t.Errorf("polls = %d, want 3", g.pollCount("t1"))
	}
	if len(conv.videos) != 1 || !conv.existed[0] {
		t.Fatalf("videos = %+v existed = %v", conv.videos, conv.existed)
	}
	if len(conv.texts) != 1 || conv.texts[0] != MsgVideoReady {
		t.Errorf("texts = %v", conv.texts)
	}
	if conv.videos[0].URL != "https://cdn.example/f1.mp4" {
		t.Errorf("video URL = %s", conv.videos[0].URL)
	}
	if _, err := os.Stat(conv.videos[0].Path); !os.IsNotExist(err) {
		t.Errorf("temp video %s not removed", conv.videos[0].Path)
	}
}

func TestMonitorFailSendsOneMessage(t *testing.T) {
	g := newFakeGenerator()
	r := newTestRegistry(t, g)
	createTask(t, r, g, "t1")
	g.script("t1", pollResult{status: minimax.StatusFail})
	conv := &fakeConversation{}

	if got := waitMonitor(t, r.Watch(context.Background(), "t1", conv)); got != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", got)
	}
	if len(conv.texts) != 1 || conv.texts[0] != MsgGenerationFail {
		t.Errorf("texts = %v", conv.texts)
	}
	if len(g.downloads) != 0 || len(conv.videos) != 0 {
		t.Error("download attempted for failed task")
	}
}

func TestMonitorExhaustsOnUnknownStatus(t *testing.T) {
	g := newFakeGenerator()
	r := newTestRegistry(t, g)
	createTask(t, r, g, "t1")
	g.script("t1", pollResult{status: minimax.StatusUnknown})
	conv := &fakeConversation{}

	if got := waitMonitor(t, r.Watch(context.Background(), "t1", conv)); got != OutcomeExhausted {
		t.Fatalf("outcome = %s, want exhausted", got)
	}
	if g.pollCount("t1") != DefaultMaxRetries {
		t.Errorf("polls = %d, want %d", g.pollCount("t1"), DefaultMaxRetries)
	}
	if len(conv.texts) != 1 || conv.texts[0] != fmt.Sprintf(MsgUnexpected, minimax.StatusUnknown) {
		t.Errorf("texts = %v", conv.texts)
	}
}

func TestMonitorExhaustsOnPollErrors(t *testing.T) {
	g := newFakeGenerator()
	r := newTestRegistry(t, g)
	createTask(t, r, g, "t1")
	g.script("t1", pollResult{err: &minimax.TransportError{Op: "poll", StatusCode: 502}})
	conv := &fakeConversation{}

	if got := waitMonitor(t, r.Watch(context.Background(), "t1", conv)); got != OutcomeExhausted {
		t.Fatalf("outcome = %s, want exhausted", got)
	}
	if len(conv.texts) != 1 || conv.texts[0] != MsgMonitorError {
		t.Errorf("texts = %v", conv.texts)
	}
}

func TestMonitorRetryCounterResets(t *testing.T) {
	g := newFakeGenerator()
	r := newTestRegistry(t, g)
	createTask(t, r, g, "t1")
	g.script("t1",
		pollResult{status: minimax.StatusUnknown},
		pollResult{status: minimax.StatusUnknown},
		pollResult{status: minimax.StatusQueueing},
		pollResult{status: minimax.StatusUnknown},
		pollResult{err: errors.New("connection reset")},
		pollResult{status: minimax.StatusSuccess, fileID: "f1"},
	)
	conv := &fakeConversation{}

	if got := waitMonitor(t, r.Watch(context.Background(), "t1", conv)); got != OutcomeDelivered {
		t.Fatalf("outcome = %s, want delivered", got)
	}
	if len(conv.texts) != 1 || conv.texts[0] != MsgVideoReady {
		t.Errorf("texts = %v", conv.texts)
	}
}

func TestMonitorDownloadFailure(t *testing.T) {
	g := newFakeGenerator()
	g.downloadOK = false
	r := newTestRegistry(t, g)
	createTask(t, r, g, "t1")
	g.script("t1", pollResult{status: minimax.StatusSuccess, fileID: "f1"})
	conv := &fakeConversation{}

	if got := waitMonitor(t, r.Watch(context.Background(), "t1", conv)); got != OutcomeUndelivered {
		t.Fatalf("outcome = %s, want undelivered", got)
	}
	if len(conv.texts) != 1 || conv.texts[0] != fmt.Sprintf(MsgNotDelivered, "t1") {
		t.Errorf("texts = %v", conv.texts)
	}
	if len(conv.videos) != 0 {
		t.Error("video sent after failed download")
	}
	if task, _ := r.Get("t1"); task.Status != minimax.StatusSuccess {
		t.Errorf("status = %s, want Success", task.Status)
	}
}

func TestMonitorSuccessWithoutFileID(t *testing.T) {
	g := newFakeGenerator()
	r := newTestRegistry(t, g)
	createTask(t, r, g, "t1")
	g.script("t1", pollResult{status: minimax.StatusSuccess})
	conv := &fakeConversation{}

	if got := waitMonitor(t, r.Watch(context.Background(), "t1", conv)); got != OutcomeUndelivered {
		t.Fatalf("outcome = %s, want undelivered", got)
	}
	if g.resolves != 0 || len(g.downloads) != 0 {
		t.Error("resolve or download attempted without a file id")
	}
}

func TestMonitorResolveErrorsExhaust(t *testing.T) {
	g := newFakeGenerator()
	g.resolveErr = &minimax.RemoteProtocolError{Op: "resolve", Msg: "failed to get video URL (http 500): Unknown error"}
	r := newTestRegistry(t, g)
	createTask(t, r, g, "t1")
	g.script("t1", pollResult{status: minimax.StatusSuccess, fileID: "f1"})
	conv := &fakeConversation{}

	if got := waitMonitor(t, r.Watch(context.Background(), "t1", conv)); got != OutcomeExhausted {
		t.Fatalf("outcome = %s, want exhausted", got)
	}
	if len(conv.texts) != 1 || conv.texts[0] != MsgMonitorError {
		t.Errorf("texts = %v", conv.texts)
	}
}

func TestMonitorCanceled(t *testing.T) {
	g := newFakeGenerator()
	r := New(g, WithPollInterval(time.Hour), WithTempDir(t.TempDir()))
	createTask(t, r, g, "t1")
	conv := &fakeConversation{}
	ctx, cancel := context.WithCancel(context.Background())

	m := r.Watch(ctx, "t1", conv)
	if m.Outcome() != OutcomePending {
		t.Errorf("Outcome() before termination = %s", m.Outcome())
	}
	cancel()
	if got := waitMonitor(t, m); got != OutcomeCanceled {
		t.Fatalf("outcome = %s, want canceled", got)
	}
	if len(conv.texts) != 0 {
		t.Errorf("canceled monitor replied: %v", conv.texts)
	}
}

func TestConcurrentMonitorsAreIndependent(t *testing.T) {
	g := newFakeGenerator()
	r := newTestRegistry(t, g)
	createTask(t, r, g, "a")
	createTask(t, r, g, "b")
	g.script("a", pollResult{status: minimax.StatusProcessing}, pollResult{status: minimax.StatusSuccess, fileID: "fa"})
	g.script("b", pollResult{status: minimax.StatusPreparing}, pollResult{status: minimax.StatusFail})
	convA, convB := &fakeConversation{}, &fakeConversation{}

	ma := r.Watch(context.Background(), "a", convA)
	mb := r.Watch(context.Background(), "b", convB)
	if got := waitMonitor(t, ma); got != OutcomeDelivered {
		t.Errorf("monitor a = %s, want delivered", got)
	}
	if got := waitMonitor(t, mb); got != OutcomeFailed {
		t.Errorf("monitor b = %s, want failed", got)
	}
	if len(convA.videos) != 1 || len(convB.videos) != 0 {
		t.Errorf("videos crossed between conversations: a=%d b=%d", len(convA.videos), len(convB.videos))
	}
	if len(convB.texts) != 1 || convB.texts[0] != MsgGenerationFail {
		t.Errorf("b texts = %v", convB.texts)
	}
}

func TestDeliverWithCaption(t *testing.T) {
	g := newFakeGenerator()
	r := newTestRegistry(t, g)
	createTask(t, r, g, "t1")
	g.script("t1", pollResult{status: minimax.StatusSuccess, fileID: "f1"})
	if _, err := r.GetStatus(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	conv := &fakeConversation{}

	ok, err := r.Deliver(context.Background(), "t1", conv, MsgHereIsVideo)
	if err != nil || !ok {
		t.Fatalf("Deliver() = %v, %v", ok, err)
	}
	if len(conv.texts) != 1 || conv.texts[0] != MsgHereIsVideo || len(conv.videos) != 1 {
		t.Errorf("texts = %v videos = %d", conv.texts, len(conv.videos))
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{
		OutcomePending:     "pending",
		OutcomeDelivered:   "delivered",
		OutcomeUndelivered: "undelivered",
		OutcomeFailed:      "failed",
		OutcomeExhausted:   "exhausted",
		OutcomeCanceled:    "canceled",
	} {
		if o.String() != want {
			t.Errorf("%d.String() = %s, want %s", o, o.String(), want)
		}
	}
}

func TestSlowDownloadDoesNotDelayOtherMonitors(t *testing.T) {
	g := newFakeGenerator()
	r := newTestRegistry(t, g)
	createTask(t, r, g, "a")
	createTask(t, r, g, "b")
	g.script("a", pollResult{status: minimax.StatusSuccess, fileID: "fa"})
	g.script("b", pollResult{status: minimax.StatusProcessing}, pollResult{status: minimax.StatusSuccess, fileID: "fb"})
	gate := make(chan struct{})
	g.gates["https://cdn.example/fa.mp4"] = gate

	ma := r.Watch(context.Background(), "a", &fakeConversation{})
	deadline := time.Now().Add(5 * time.Second)
	for !g.downloadStarted("https://cdn.example/fa.mp4") {
		if time.Now().After(deadline) {
			t.Fatal("monitor a never started its download")
		}
		time.Sleep(time.Millisecond)
	}

	convB := &fakeConversation{}
	if got := waitMonitor(t, r.Watch(context.Background(), "b", convB)); got != OutcomeDelivered {
		t.Fatalf("monitor b = %s, want delivered", got)
	}
	if ma.Outcome() != OutcomePending {
		t.Errorf("monitor a = %s while its download is still open", ma.Outcome())
	}
	if len(convB.videos) != 1 {
		t.Errorf("b videos = %d, want 1", len(convB.videos))
	}

	close(gate)
	if got := waitMonitor(t, ma); got != OutcomeDelivered {
		t.Errorf("monitor a = %s, want delivered", got)
	}
}

type linkConversation struct {
	fakeConversation
}

func (*linkConversation) LinksOnly() bool { return true }

func TestDeliverLinkOnlySkipsDownload(t *testing.T) {
	g := newFakeGenerator()
	r := newTestRegistry(t, g)
	createTask(t, r, g, "t1")
	g.script("t1", pollResult{status: minimax.StatusSuccess, fileID: "f1"})
	conv := &linkConversation{}

	if got := waitMonitor(t, r.Watch(context.Background(), "t1", conv)); got != OutcomeDelivered {
		t.Fatalf("outcome = %s, want delivered", got)
	}
	if len(g.downloads) != 0 {
		t.Errorf("downloads = %v, want none for a link-only conversation", g.downloads)
	}
	if len(conv.videos) != 1 || conv.videos[0].Path != "" || conv.videos[0].URL != "https://cdn.example/f1.mp4" {
		t.Errorf("videos = %+v", conv.videos)
	}
	if len(conv.texts) != 1 || conv.texts[0] != MsgVideoReady {
		t.Errorf("texts = %v", conv.texts)
	}
}

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/onnwee/cat-video-bot/minimax"
	"github.com/onnwee/cat-video-bot/telemetry"
)

// Outcome is how a monitor finished.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeDelivered
	OutcomeUndelivered
	OutcomeFailed
	OutcomeExhausted
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeUndelivered:
		return "undelivered"
	case OutcomeFailed:
		return "failed"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "pending"
	}
}

// Monitor is the handle of one running watch.
type Monitor struct {
	TaskID string

	done    chan struct{}
	outcome Outcome
}

// Done is closed once the monitor has terminated.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Wait blocks until the monitor terminates and returns its outcome.
func (m *Monitor) Wait() Outcome {
	<-m.done
	return m.outcome
}

// Outcome returns the final outcome, or OutcomePending while still running.
func (m *Monitor) Outcome() Outcome {
	select {
	case <-m.done:
		return m.outcome
	default:
		return OutcomePending
	}
}

// Watch polls task id in its own goroutine until it reaches a terminal state and reports the
// result through conv. ctx should be the process root context: cancel only on shutdown.
func (r *Registry) Watch(ctx context.Context, id string, conv Conversation) *Monitor {
	m := &Monitor{TaskID: id, done: make(chan struct{})}
	telemetry.AddActiveMonitors(1)
	go func() {
		defer close(m.done)
		defer telemetry.AddActiveMonitors(-1)
		m.outcome = r.monitor(ctx, id, conv)
		telemetry.ObserveMonitorOutcome(m.outcome.String())
		telemetry.LoggerWithCorr(ctx).Info("monitor finished", slog.String("task_id", id), slog.String("outcome", m.outcome.String()), slog.String("component", "task"))
	}()
	return m
}

func (r *Registry) monitor(ctx context.Context, id string, conv Conversation) Outcome {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "task"), slog.String("task_id", id))
	retries := 0
	for {
		var anomaly string
		st, err := r.GetStatus(ctx, id)
		if ctx.Err() != nil {
			return OutcomeCanceled
		}
		switch {
		case err != nil:
			logger.Warn("error monitoring task", slog.Any("err", err), slog.Int("retry", retries+1))
			anomaly = MsgMonitorError
		case st.InProgress():
			retries = 0
		case st == minimax.StatusSuccess:
			delivered, err := r.Deliver(ctx, id, conv, MsgVideoReady)
			if ctx.Err() != nil {
				return OutcomeCanceled
			}
			if delivered {
				return OutcomeDelivered
			}
			if err == nil || errors.Is(err, ErrNotFound) {
				r.reply(ctx, conv, fmt.Sprintf(MsgNotDelivered, id), FormatPlain)
				return OutcomeUndelivered
			}
			logger.Warn("error resolving video url", slog.Any("err", err), slog.Int("retry", retries+1))
			anomaly = MsgMonitorError
		case st == minimax.StatusFail:
			r.reply(ctx, conv, MsgGenerationFail, FormatPlain)
			return OutcomeFailed
		default:
			logger.Warn("unexpected status received", slog.String("status", st.String()), slog.Int("retry", retries+1))
			anomaly = fmt.Sprintf(MsgUnexpected, st)
		}

		if anomaly != "" {
			retries++
			if retries >= r.maxRetries {
				r.reply(ctx, conv, anomaly, FormatPlain)
				return OutcomeExhausted
			}
		}
		select {
		case <-ctx.Done():
			return OutcomeCanceled
		case <-time.After(r.pollInterval):
		}
	}
}

// Deliver resolves, downloads and sends the task's video preceded by caption. It reports
// false with a nil error when the download or the send failed; resolve errors are returned.
// The staged file is removed before Deliver returns. A LinkConversation that only takes links
// gets the URL without a download.
func (r *Registry) Deliver(ctx context.Context, id string, conv Conversation, caption string) (bool, error) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "task"), slog.String("task_id", id))
	url, err := r.GetVideoURL(ctx, id)
	if err != nil {
		return false, err
	}
	if lc, ok := conv.(LinkConversation); ok && lc.LinksOnly() {
		return r.send(ctx, conv, caption, Video{URL: url}), nil
	}
	f, err := os.CreateTemp(r.tempDir, "catvideo-*.mp4")
	if err != nil {
		logger.Error("create temp file", slog.Any("err", err))
		return false, nil
	}
	path := f.Name()
	_ = f.Close()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("remove temp video", slog.String("path", path), slog.Any("err", err))
		}
	}()

	if !r.gen.Download(ctx, url, path) {
		return false, nil
	}
	return r.send(ctx, conv, caption, Video{Path: path, URL: url}), nil
}

func (r *Registry) send(ctx context.Context, conv Conversation, caption string, v Video) bool {
	r.reply(ctx, conv, caption, FormatPlain)
	if err := conv.ReplyVideo(ctx, v); err != nil {
		telemetry.LoggerWithCorr(ctx).Error("send video", slog.Any("err", err), slog.String("component", "task"))
		return false
	}
	return true
}

func (r *Registry) reply(ctx context.Context, conv Conversation, text string, format Format) {
	if err := conv.ReplyText(ctx, text, format); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("reply failed", slog.Any("err", err), slog.String("component", "task"))
	}
}

// Package bot implements the chat commands independently of any chat network.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/onnwee/cat-video-bot/minimax"
	"github.com/onnwee/cat-video-bot/ratelimit"
	"github.com/onnwee/cat-video-bot/task"
	"github.com/onnwee/cat-video-bot/telemetry"
)

// Session is one incoming command's conversation plus who sent it.
type Session interface {
	task.Conversation
	UserID() string
	IsPrivileged(ctx context.Context) bool
}

// RateLimiter decides whether an identity may submit now.
type RateLimiter interface {
	Check(ctx context.Context, identity string, privileged bool) ratelimit.Decision
}

// Tasks is the subset of *task.Registry the commands use.
type Tasks interface {
	Create(ctx context.Context, userID, action, object string) (string, error)
	GetStatus(ctx context.Context, id string) (minimax.Status, error)
	Deliver(ctx context.Context, id string, conv task.Conversation, caption string) (bool, error)
	Watch(ctx context.Context, id string, conv task.Conversation) *task.Monitor
}

// Bot dispatches commands. Monitors it starts live on root, not on the command's context.
type Bot struct {
	root    context.Context
	limiter RateLimiter
	tasks   Tasks
}

// New returns a Bot whose monitors stop when root is canceled.
func New(root context.Context, limiter RateLimiter, tasks Tasks) *Bot {
	return &Bot{root: root, limiter: limiter, tasks: tasks}
}

// Dispatch runs the named command ("start", "help", "cat", "status") with args.
// Unknown commands are ignored.
func (b *Bot) Dispatch(ctx context.Context, s Session, command string, args []string) error {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	telemetry.LoggerWithCorr(ctx).Debug("command received", slog.String("command", command), slog.String("user_id", s.UserID()), slog.String("component", "bot"))
	switch strings.ToLower(command) {
	case "start":
		return b.Start(ctx, s)
	case "help":
		return b.Help(ctx, s)
	case "cat":
		return b.Cat(ctx, s, args)
	case "status":
		return b.Status(ctx, s, args)
	}
	return nil
}

// Start greets the user.
func (b *Bot) Start(ctx context.Context, s Session) error {
	return s.ReplyText(ctx, greetingMessage, task.FormatPlain)
}

// Help lists the commands.
func (b *Bot) Help(ctx context.Context, s Session) error {
	return s.ReplyText(ctx, helpMessage, task.FormatMarkdown)
}

// Cat submits a generation for "<action> <object...>" and starts watching it.
func (b *Bot) Cat(ctx context.Context, s Session, args []string) error {
	if len(args) < 2 {
		return s.ReplyText(ctx, catUsageMessage, task.FormatPlain)
	}
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "bot"), slog.String("user_id", s.UserID()))

	d := b.limiter.Check(ctx, s.UserID(), s.IsPrivileged(ctx))
	if !d.Allowed {
		logger.Info("rate limited", slog.Int("seconds_remaining", d.SecondsRemaining))
		return s.ReplyText(ctx, fmt.Sprintf(rateLimitMessage, minutesCeil(d.SecondsRemaining)), task.FormatPlain)
	}

	action, object := args[0], strings.Join(args[1:], " ")
	id, err := b.tasks.Create(ctx, s.UserID(), action, object)
	if err != nil {
		logger.Error("error in cat command", slog.Any("err", err))
		return s.ReplyText(ctx, fmt.Sprintf(catErrorMessage, err), task.FormatPlain)
	}

	reply := strings.Join([]string{
		processingMessage,
		fmt.Sprintf(statusMessage, minimax.StatusProcessing),
		waitMessage,
		fmt.Sprintf(taskIDMessage, id),
	}, "\n")
	if err := s.ReplyText(ctx, reply, task.FormatMarkdown); err != nil {
		logger.Warn("reply failed", slog.Any("err", err))
	}
	b.tasks.Watch(telemetry.WithCorrelation(b.root, telemetry.GetCorrelation(ctx)), id, s)
	return nil
}

// Status reports a task's current status and sends the video if it is ready.
func (b *Bot) Status(ctx context.Context, s Session, args []string) error {
	if len(args) == 0 {
		return s.ReplyText(ctx, statusUsageMessage, task.FormatMarkdown)
	}
	id := args[0]
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "bot"), slog.String("task_id", id))

	st, err := b.tasks.GetStatus(ctx, id)
	if errors.Is(err, task.ErrNotFound) {
		return s.ReplyText(ctx, notFoundMessage, task.FormatPlain)
	}
	if err != nil {
		logger.Error("error in status command", slog.Any("err", err))
		return s.ReplyText(ctx, fmt.Sprintf(statusErrorMessage, err), task.FormatPlain)
	}
	if err := s.ReplyText(ctx, fmt.Sprintf(taskStatusMessage, id, st), task.FormatMarkdown); err != nil {
		return err
	}
	if st != minimax.StatusSuccess {
		return nil
	}
	if _, err := b.tasks.Deliver(ctx, id, s, task.MsgHereIsVideo); err != nil && !errors.Is(err, task.ErrNotFound) {
		logger.Warn("status delivery failed", slog.Any("err", err))
	}
	return nil
}

func minutesCeil(seconds int) int {
	return (seconds + 59) / 60
}

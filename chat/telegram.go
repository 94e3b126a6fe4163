package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/onnwee/cat-video-bot/task"
)

// telegramAPI is the part of *tele.Bot a session uses.
type telegramAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

// Telegram serves the bot commands over the Telegram Bot API with long polling.
type Telegram struct {
	bot      *tele.Bot
	commands Commander
	admins   AdminFunc
}

// NewTelegram authenticates token against the Bot API.
func NewTelegram(token string, commands Commander, admins AdminFunc) (*Telegram, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			slog.Error("telegram handler error", slog.Any("err", err), slog.String("component", "telegram"))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: b, commands: commands, admins: admins}, nil
}

// Run polls for updates until ctx is canceled.
func (t *Telegram) Run(ctx context.Context) error {
	for _, name := range []string{"start", "help", "cat", "status"} {
		t.bot.Handle("/"+name, func(c tele.Context) error {
			s := &telegramSession{api: t.bot, chat: c.Chat(), sender: c.Sender(), admins: t.admins}
			return t.commands.Dispatch(ctx, s, name, c.Args())
		})
	}

	slog.Info("telegram bot started", slog.String("username", t.bot.Me.Username), slog.String("component", "telegram"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.bot.Start()
	}()
	<-ctx.Done()
	t.bot.Stop()
	<-done
	slog.Info("telegram bot stopped", slog.String("component", "telegram"))
	return nil
}

type telegramSession struct {
	api    telegramAPI
	chat   *tele.Chat
	sender *tele.User
	admins AdminFunc
}

func (s *telegramSession) UserID() string {
	if s.sender == nil {
		return ""
	}
	return strconv.FormatInt(s.sender.ID, 10)
}

// IsPrivileged is true for configured admins and for creators/administrators of group chats.
func (s *telegramSession) IsPrivileged(_ context.Context) bool {
	if s.sender == nil {
		return false
	}
	if s.admins.is(s.UserID()) {
		return true
	}
	if s.chat == nil || s.chat.Type == tele.ChatPrivate {
		return false
	}
	m, err := s.api.ChatMemberOf(s.chat, s.sender)
	if err != nil {
		slog.Warn("chat member lookup failed", slog.Any("err", err), slog.String("component", "telegram"))
		return false
	}
	return m.Role == tele.Creator || m.Role == tele.Administrator
}

func (s *telegramSession) ReplyText(_ context.Context, text string, format task.Format) error {
	var opts []interface{}
	if format == task.FormatMarkdown {
		opts = append(opts, tele.ModeMarkdown)
	}
	_, err := s.api.Send(s.chat, text, opts...)
	return err
}

func (s *telegramSession) ReplyVideo(_ context.Context, v task.Video) error {
	_, err := s.api.Send(s.chat, &tele.Video{File: tele.FromDisk(v.Path), FileName: "cat.mp4", MIME: "video/mp4"})
	return err
}

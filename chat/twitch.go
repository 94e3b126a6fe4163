package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/cat-video-bot/task"
)

// maxIRCMessage is Twitch's per-message length limit.
const maxIRCMessage = 500

// TwitchConfig holds the IRC credentials and channel.
type TwitchConfig struct {
	Channel    string
	Username   string
	OAuthToken string
	Admins     AdminFunc
}

// ircSender is the part of *twitch.Client a session writes through.
type ircSender interface {
	Say(channel, text string)
	Reply(channel, parentMsgID, text string)
}

// Twitch answers commands in one channel's IRC chat.
type Twitch struct {
	cfg      TwitchConfig
	commands Commander
}

// NewTwitch builds the transport. It does not connect until Run.
func NewTwitch(cfg TwitchConfig, commands Commander) *Twitch {
	cfg.Channel = strings.TrimPrefix(strings.ToLower(cfg.Channel), "#")
	return &Twitch{cfg: cfg, commands: commands}
}

// Run connects, joins the channel and serves commands until ctx is canceled.
func (t *Twitch) Run(ctx context.Context) error {
	token := t.cfg.OAuthToken
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	client := twitch.NewClient(t.cfg.Username, token)
	logger := slog.Default().With(slog.String("component", "twitch"), slog.String("channel", t.cfg.Channel))

	client.OnConnect(func() { logger.Info("twitch chat connected") })
	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		t.handle(ctx, client, msg, logger)
	})

	// Handle context cancellation by closing the client
	go func() {
		<-ctx.Done()
		_ = client.Disconnect()
	}()

	client.Join(t.cfg.Channel)
	err := client.Connect()
	if errors.Is(err, twitch.ErrClientDisconnected) || ctx.Err() != nil {
		logger.Info("twitch chat stopped")
		return nil
	}
	return err
}

// handle runs a chat command on its own goroutine and returns at once. The IRC client calls it
// from the read loop that also answers server PINGs.
func (t *Twitch) handle(ctx context.Context, irc ircSender, msg twitch.PrivateMessage, logger *slog.Logger) {
	name, args, ok := ParseCommand(msg.Message, "!")
	if !ok {
		return
	}
	s := &twitchSession{irc: irc, msg: msg, admins: t.cfg.Admins}
	go func() {
		if err := t.commands.Dispatch(ctx, s, name, args); err != nil {
			logger.Warn("command failed", slog.String("command", name), slog.String("user", msg.User.Name), slog.Any("err", err))
		}
	}()
}

type twitchSession struct {
	irc    ircSender
	msg    twitch.PrivateMessage
	admins AdminFunc
}

func (s *twitchSession) UserID() string { return "twitch:" + s.msg.User.ID }

// IsPrivileged is true for the broadcaster, moderators and configured admins.
func (s *twitchSession) IsPrivileged(_ context.Context) bool {
	if s.msg.User.Badges["broadcaster"] > 0 || s.msg.User.Badges["moderator"] > 0 {
		return true
	}
	return s.admins.is(s.UserID(), s.msg.User.ID, strings.ToLower(s.msg.User.Name))
}

func (s *twitchSession) ReplyText(_ context.Context, text string, _ task.Format) error {
	s.irc.Reply(s.msg.Channel, s.msg.ID, clip(PlainText(text)))
	return nil
}

// LinksOnly is always true: IRC cannot carry files.
func (s *twitchSession) LinksOnly() bool { return true }

func (s *twitchSession) ReplyVideo(_ context.Context, v task.Video) error {
	if v.URL == "" {
		return errors.New("twitch: video has no download url")
	}
	s.irc.Say(s.msg.Channel, clip("@"+s.msg.User.Name+" 🎬 "+v.URL))
	return nil
}

func clip(s string) string {
	r := []rune(s)
	if len(r) <= maxIRCMessage {
		return s
	}
	return string(r[:maxIRCMessage-1]) + "…"
}

package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	tele "gopkg.in/telebot.v4"

	"github.com/onnwee/cat-video-bot/bot"
	"github.com/onnwee/cat-video-bot/task"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		prefix   string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"!cat chase butterfly", "!", "cat", []string{"chase", "butterfly"}, true},
		{"  !STATUS 123  ", "!", "status", []string{"123"}, true},
		{"/cat@qlcatbot eat noodles", "/", "cat", []string{"eat", "noodles"}, true},
		{"!help", "!", "help", []string{}, true},
		{"hello !cat", "!", "", nil, false},
		{"!", "!", "", nil, false},
		{"", "!", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, args, ok := ParseCommand(tt.text, tt.prefix)
			if ok != tt.wantOK || name != tt.wantName {
				t.Fatalf("ParseCommand(%q) = %q, %v, %v", tt.text, name, args, ok)
			}
			if strings.Join(args, ",") != strings.Join(tt.wantArgs, ",") {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	in := "🎬 *Status for Task 1*\n\n🔄 Status: *Success*\n🔑 Task ID: `abc`"
	want := "🎬 Status for Task 1 🔄 Status: Success 🔑 Task ID: abc"
	if got := PlainText(in); got != want {
		t.Errorf("PlainText() = %q, want %q", got, want)
	}
}

func TestClip(t *testing.T) {
	if got := clip("short"); got != "short" {
		t.Errorf("clip(short) = %q", got)
	}
	long := strings.Repeat("é", 600)
	got := []rune(clip(long))
	if len(got) != maxIRCMessage || got[len(got)-1] != '…' {
		t.Errorf("clip(long) length = %d", len(got))
	}
}

type fakeIRC struct {
	says    []string
	replies []string
	parents []string
}

func (f *fakeIRC) Say(_, text string) { f.says = append(f.says, text) }
func (f *fakeIRC) Reply(_, parent, text string) {
	f.parents = append(f.parents, parent)
	f.replies = append(f.replies, text)
}

func twitchMsg(id, name string, badges map[string]int) twitch.PrivateMessage {
	return twitch.PrivateMessage{
		User:    twitch.User{ID: id, Name: name, Badges: badges},
		Channel: "catchannel",
		ID:      "msg-1",
		Message: "!cat eat noodles",
	}
}

func TestTwitchSessionPrivilege(t *testing.T) {
	admins := AdminFunc(func(id string) bool { return id == "twitch:99" })
	tests := []struct {
		name   string
		msg    twitch.PrivateMessage
		admins AdminFunc
		want   bool
	}{
		{"broadcaster", twitchMsg("1", "owner", map[string]int{"broadcaster": 1}), nil, true},
		{"moderator", twitchMsg("2", "mod", map[string]int{"moderator": 1}), nil, true},
		{"subscriber only", twitchMsg("3", "sub", map[string]int{"subscriber": 12}), nil, false},
		{"configured admin", twitchMsg("99", "friend", nil), admins, true},
		{"regular viewer", twitchMsg("4", "viewer", nil), admins, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &twitchSession{irc: &fakeIRC{}, msg: tt.msg, admins: tt.admins}
			if got := s.IsPrivileged(context.Background()); got != tt.want {
				t.Errorf("IsPrivileged() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTwitchSessionReplies(t *testing.T) {
	irc := &fakeIRC{}
	s := &twitchSession{irc: irc, msg: twitchMsg("5", "viewer", nil)}
	ctx := context.Background()

	if s.UserID() != "twitch:5" {
		t.Errorf("UserID() = %s", s.UserID())
	}
	if err := s.ReplyText(ctx, "🔄 Current status: *Processing*\n⏳ wait", task.FormatMarkdown); err != nil {
		t.Fatal(err)
	}
	if len(irc.replies) != 1 || irc.replies[0] != "🔄 Current status: Processing ⏳ wait" || irc.parents[0] != "msg-1" {
		t.Errorf("replies = %v parents = %v", irc.replies, irc.parents)
	}
	if err := s.ReplyVideo(ctx, task.Video{Path: "/tmp/x.mp4", URL: "https://cdn.example/v.mp4"}); err != nil {
		t.Fatal(err)
	}
	if len(irc.says) != 1 || irc.says[0] != "@viewer 🎬 https://cdn.example/v.mp4" {
		t.Errorf("says = %v", irc.says)
	}
	if err := s.ReplyVideo(ctx, task.Video{Path: "/tmp/x.mp4"}); err == nil {
		t.Error("ReplyVideo without url should fail")
	}
}

type fakeTelegram struct {
	sent    []interface{}
	opts    [][]interface{}
	role    tele.MemberStatus
	err     error
	lookups int
}

func (f *fakeTelegram) Send(_ tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.sent = append(f.sent, what)
	f.opts = append(f.opts, opts)
	return &tele.Message{}, nil
}

func (f *fakeTelegram) ChatMemberOf(_, _ tele.Recipient) (*tele.ChatMember, error) {
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	return &tele.ChatMember{Role: f.role}, nil
}

func TestTelegramSessionPrivilege(t *testing.T) {
	group := &tele.Chat{ID: -100, Type: tele.ChatSuperGroup}
	private := &tele.Chat{ID: 10, Type: tele.ChatPrivate}
	user := &tele.User{ID: 10}
	tests := []struct {
		name        string
		chat        *tele.Chat
		api         *fakeTelegram
		admins      AdminFunc
		want        bool
		wantLookups int
	}{
		{"group creator", group, &fakeTelegram{role: tele.Creator}, nil, true, 1},
		{"group administrator", group, &fakeTelegram{role: tele.Administrator}, nil, true, 1},
		{"group member", group, &fakeTelegram{role: tele.Member}, nil, false, 1},
		{"lookup error", group, &fakeTelegram{err: errors.New("boom")}, nil, false, 1},
		{"private chat", private, &fakeTelegram{role: tele.Creator}, nil, false, 0},
		{"configured admin", private, &fakeTelegram{}, func(id string) bool { return id == "10" }, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &telegramSession{api: tt.api, chat: tt.chat, sender: user, admins: tt.admins}
			if got := s.IsPrivileged(context.Background()); got != tt.want {
				t.Errorf("IsPrivileged() = %v, want %v", got, tt.want)
			}
			if tt.api.lookups != tt.wantLookups {
				t.Errorf("member lookups = %d, want %d", tt.api.lookups, tt.wantLookups)
			}
		})
	}
}

func TestTelegramSessionReplies(t *testing.T) {
	api := &fakeTelegram{}
	s := &telegramSession{api: api, chat: &tele.Chat{ID: 1}, sender: &tele.User{ID: 42}}
	ctx := context.Background()

	if s.UserID() != "42" {
		t.Errorf("UserID() = %s", s.UserID())
	}
	if err := s.ReplyText(ctx, "plain", task.FormatPlain); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplyText(ctx, "*bold*", task.FormatMarkdown); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplyVideo(ctx, task.Video{Path: "/tmp/v.mp4"}); err != nil {
		t.Fatal(err)
	}
	if len(api.sent) != 3 {
		t.Fatalf("sent = %d messages", len(api.sent))
	}
	if len(api.opts[0]) != 0 {
		t.Errorf("plain reply carried options %v", api.opts[0])
	}
	if len(api.opts[1]) != 1 || api.opts[1][0] != tele.ModeMarkdown {
		t.Errorf("markdown reply options = %v", api.opts[1])
	}
	v, ok := api.sent[2].(*tele.Video)
	if !ok || v.File.FileLocal != "/tmp/v.mp4" {
		t.Errorf("video = %#v", api.sent[2])
	}
}

// blockingCommander holds every Dispatch until release is closed.
type blockingCommander struct {
	release chan struct{}

	mu       sync.Mutex
	commands []string
}

func (c *blockingCommander) Dispatch(_ context.Context, _ bot.Session, command string, args []string) error {
	c.mu.Lock()
	c.commands = append(c.commands, command+" "+strings.Join(args, " "))
	c.mu.Unlock()
	<-c.release
	return nil
}

func (c *blockingCommander) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

func TestTwitchHandleDoesNotBlockOnSlowCommands(t *testing.T) {
	cmd := &blockingCommander{release: make(chan struct{})}
	defer close(cmd.release)
	tw := NewTwitch(TwitchConfig{Channel: "#CatChannel"}, cmd)

	returned := make(chan struct{})
	go func() {
		tw.handle(context.Background(), &fakeIRC{}, twitchMsg("5", "viewer", nil), slog.Default())
		tw.handle(context.Background(), &fakeIRC{}, twitchMsg("6", "other", nil), slog.Default())
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("message callback blocked while commands were still running")
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(cmd.seen()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("dispatched commands = %v, want 2", cmd.seen())
		}
		time.Sleep(time.Millisecond)
	}
	for _, c := range cmd.seen() {
		if c != "cat eat noodles" {
			t.Errorf("dispatched %q, want \"cat eat noodles\"", c)
		}
	}
}

func TestTwitchHandleIgnoresNonCommands(t *testing.T) {
	cmd := &blockingCommander{release: make(chan struct{})}
	close(cmd.release)
	tw := NewTwitch(TwitchConfig{}, cmd)
	msg := twitchMsg("5", "viewer", nil)
	msg.Message = "nice stream"

	tw.handle(context.Background(), &fakeIRC{}, msg, slog.Default())
	time.Sleep(20 * time.Millisecond)
	if got := cmd.seen(); len(got) != 0 {
		t.Errorf("dispatched %v for a plain chat line", got)
	}
}

func TestTwitchSessionIsLinkOnly(t *testing.T) {
	var conv task.Conversation = &twitchSession{irc: &fakeIRC{}, msg: twitchMsg("5", "viewer", nil)}
	lc, ok := conv.(task.LinkConversation)
	if !ok || !lc.LinksOnly() {
		t.Error("twitch sessions must receive links instead of downloaded files")
	}
}

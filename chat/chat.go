package chat

import (
	"context"
	"strings"

	"github.com/onnwee/cat-video-bot/bot"
)

// Commander runs a parsed command for a session. *bot.Bot implements it.
type Commander interface {
	Dispatch(ctx context.Context, s bot.Session, command string, args []string) error
}

// AdminFunc reports whether an identity is configured as an administrator.
type AdminFunc func(id string) bool

func (f AdminFunc) is(ids ...string) bool {
	if f == nil {
		return false
	}
	for _, id := range ids {
		if f(id) {
			return true
		}
	}
	return false
}

// ParseCommand splits "<prefix>name arg..." into its name and args. A "@botname" suffix on the
// name is dropped. ok is false when text is not a command.
func ParseCommand(text, prefix string) (name string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], prefix) {
		return "", nil, false
	}
	name = strings.TrimPrefix(fields[0], prefix)
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

var markdownReplacer = strings.NewReplacer("*", "", "`", "", "_", "")

// PlainText removes Markdown emphasis and folds lines into one, for transports that only take a
// single plain line.
func PlainText(s string) string {
	s = markdownReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

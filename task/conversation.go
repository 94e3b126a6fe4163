package task

import "context"

// Format selects how a chat transport should render a text reply.
type Format int

const (
	FormatPlain Format = iota
	FormatMarkdown
)

// Video is a generated clip ready to hand to a chat transport. Path is a local file that is
// removed once ReplyVideo returns, empty for link-only transports; URL is the remote download
// link it came from.
type Video struct {
	Path string
	URL  string
}

// LinkConversation is a Conversation whose transport cannot carry files. When LinksOnly is
// true, ReplyVideo receives a Video with only URL set.
type LinkConversation interface {
	Conversation
	LinksOnly() bool
}

// Conversation abstracts the chat a request came from so monitors can reply later.
type Conversation interface {
	ReplyText(ctx context.Context, text string, format Format) error
	ReplyVideo(ctx context.Context, v Video) error
}

package transport

import "context"

// MessageRef addresses one physical message on the platform.
type MessageRef struct {
	GuildID   string
	ChannelID string
	MessageID string
}

// Embed is a platform-neutral rich block. The adapter maps it onto whatever
// the platform renders (Discord: an embed).
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Timestamp   bool
}

type EmbedField struct {
	Name  string
	Value string
}

// Button is one interactive element attached to an outgoing message.
// Custom IDs are routed back through interaction updates.
type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
	URL      string // link buttons only; CustomID must be empty
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
	ButtonLink
)

// Outgoing is the content of one send or edit.
type Outgoing struct {
	Text    string
	Embed   *Embed
	Buttons []Button
}

// Access describes the bot's standing in one destination channel.
type Access struct {
	Reachable bool
	CanView   bool
	CanSend   bool
	Detail    string // short status, e.g. "ok", "missing send"
}

// Messenger is the outbound platform collaborator. Every operation is
// independently failable; callers own retry and isolation policy.
type Messenger interface {
	Send(ctx context.Context, channelID string, out Outgoing) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, out Outgoing) error
	Delete(ctx context.Context, ref MessageRef) error

	// Recent returns up to limit most-recent messages in the channel,
	// newest first.
	Recent(ctx context.Context, channelID string, limit int) ([]RecentMessage, error)

	// SendDirect delivers a private message to a user.
	SendDirect(ctx context.Context, userID string, out Outgoing) error

	// DisplayName resolves a user's display identity (directory collaborator).
	DisplayName(ctx context.Context, userID string) (string, error)

	// ChannelAccess reports reachability and send permission for a channel.
	ChannelAccess(ctx context.Context, channelID string) Access
}

// RecentMessage is the slim view Recent returns; enough to recognize the
// bot's own prompt messages.
type RecentMessage struct {
	Ref        MessageRef
	AuthorID   string
	EmbedTitle string
}

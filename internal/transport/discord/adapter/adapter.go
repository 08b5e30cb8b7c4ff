// Package adapter implements the platform-neutral messenger on top of
// a discordgo session. Everything above this package speaks in
// transport types; nothing above it imports discordgo.
package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"gigboard/internal/transport"
	"gigboard/pkg/logx"
)

type Adapter struct {
	session *discordgo.Session
	log     logx.Logger
}

// New creates a session in bot mode. Open is deferred to Start so
// handlers can be attached first.
func New(token string, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages
	return &Adapter{session: s, log: log}, nil
}

// Session exposes the underlying session for the interaction router.
func (a *Adapter) Session() *discordgo.Session { return a.session }

func (a *Adapter) Start() error {
	if err := a.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	return nil
}

func (a *Adapter) Stop() error { return a.session.Close() }

// SelfID is only valid once the gateway is open.
func (a *Adapter) SelfID() string {
	if a.session.State != nil && a.session.State.User != nil {
		return a.session.State.User.ID
	}
	return ""
}

func toMessageSend(out transport.Outgoing) *discordgo.MessageSend {
	msg := &discordgo.MessageSend{
		Content:         out.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}
	if out.Embed != nil {
		msg.Embeds = []*discordgo.MessageEmbed{toEmbed(out.Embed)}
	}
	if row := toComponents(out.Buttons); row != nil {
		msg.Components = row
	}
	return msg
}

func toEmbed(e *transport.Embed) *discordgo.MessageEmbed {
	em := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	for _, f := range e.Fields {
		em.Fields = append(em.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value})
	}
	if e.Timestamp {
		em.Timestamp = time.Now().Format(time.RFC3339)
	}
	return em
}

func toComponents(buttons []transport.Button) []discordgo.MessageComponent {
	if len(buttons) == 0 {
		return nil
	}
	row := discordgo.ActionsRow{}
	for _, b := range buttons {
		btn := discordgo.Button{
			Label:    b.Label,
			CustomID: b.CustomID,
			Style:    toStyle(b.Style),
		}
		if b.Style == transport.ButtonLink {
			btn.CustomID = ""
			btn.URL = b.URL
		}
		row.Components = append(row.Components, btn)
	}
	return []discordgo.MessageComponent{row}
}

func toStyle(s transport.ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case transport.ButtonSecondary:
		return discordgo.SecondaryButton
	case transport.ButtonSuccess:
		return discordgo.SuccessButton
	case transport.ButtonDanger:
		return discordgo.DangerButton
	case transport.ButtonLink:
		return discordgo.LinkButton
	default:
		return discordgo.PrimaryButton
	}
}

func (a *Adapter) Send(ctx context.Context, channelID string, out transport.Outgoing) (transport.MessageRef, error) {
	m, err := a.session.ChannelMessageSendComplex(channelID, toMessageSend(out), discordgo.WithContext(ctx))
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{GuildID: m.GuildID, ChannelID: m.ChannelID, MessageID: m.ID}, nil
}

func (a *Adapter) Edit(ctx context.Context, ref transport.MessageRef, out transport.Outgoing) error {
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID)
	if out.Text != "" {
		edit.SetContent(out.Text)
	}
	if out.Embed != nil {
		edit.SetEmbeds([]*discordgo.MessageEmbed{toEmbed(out.Embed)})
	}
	comps := toComponents(out.Buttons)
	edit.Components = &comps
	_, err := a.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) Delete(ctx context.Context, ref transport.MessageRef) error {
	return a.session.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx))
}

func (a *Adapter) Recent(ctx context.Context, channelID string, limit int) ([]transport.RecentMessage, error) {
	msgs, err := a.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	out := make([]transport.RecentMessage, 0, len(msgs))
	for _, m := range msgs {
		rm := transport.RecentMessage{
			Ref: transport.MessageRef{GuildID: m.GuildID, ChannelID: m.ChannelID, MessageID: m.ID},
		}
		if m.Author != nil {
			rm.AuthorID = m.Author.ID
		}
		if len(m.Embeds) > 0 {
			rm.EmbedTitle = m.Embeds[0].Title
		}
		out = append(out, rm)
	}
	return out, nil
}

func (a *Adapter) SendDirect(ctx context.Context, userID string, out transport.Outgoing) error {
	dm, err := a.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm: %w", err)
	}
	_, err = a.session.ChannelMessageSendComplex(dm.ID, toMessageSend(out), discordgo.WithContext(ctx))
	return err
}

func (a *Adapter) DisplayName(ctx context.Context, userID string) (string, error) {
	u, err := a.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	if u.Discriminator != "" && u.Discriminator != "0" {
		return u.Username + "#" + u.Discriminator, nil
	}
	return u.Username, nil
}

// ChannelAccess probes a channel without posting. A fetch failure means
// unreachable; permission bits decide view and send.
func (a *Adapter) ChannelAccess(ctx context.Context, channelID string) transport.Access {
	ch, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return transport.Access{Detail: err.Error()}
	}
	if ch.Type != discordgo.ChannelTypeGuildText && ch.Type != discordgo.ChannelTypeGuildNews {
		return transport.Access{Reachable: true, Detail: "not a text channel"}
	}
	perms, err := a.session.UserChannelPermissions(a.SelfID(), channelID)
	if err != nil {
		return transport.Access{Reachable: true, Detail: "permission check failed: " + err.Error()}
	}
	acc := transport.Access{
		Reachable: true,
		CanView:   perms&discordgo.PermissionViewChannel != 0,
		CanSend:   perms&discordgo.PermissionSendMessages != 0,
	}
	if !acc.CanView {
		acc.Detail = "missing view permission"
	} else if !acc.CanSend {
		acc.Detail = "missing send permission"
	}
	return acc
}

// SendText implements the log forwarding sink.
func (a *Adapter) SendText(ctx context.Context, channelID, text string) error {
	_, err := a.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}, discordgo.WithContext(ctx))
	return err
}

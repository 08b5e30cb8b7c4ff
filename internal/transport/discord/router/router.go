// Package router translates Discord interactions (slash commands,
// buttons, select menus, modals) into service calls, and service
// results back into ephemeral replies. It contains no business rules;
// every decision is delegated.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"gigboard/internal/access"
	"gigboard/internal/admin"
	"gigboard/internal/cleanup"
	"gigboard/internal/diag"
	"gigboard/internal/gig"
	"gigboard/pkg/logx"
)

type Router struct {
	session *discordgo.Session
	gigs    *gig.Service
	admin   *admin.Service
	diag    *diag.Service
	cleanup *cleanup.Scheduler
	log     logx.Logger
}

func New(session *discordgo.Session, gigs *gig.Service, adm *admin.Service, dg *diag.Service, cl *cleanup.Scheduler, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{session: session, gigs: gigs, admin: adm, diag: dg, cleanup: cl, log: log}
}

// Attach registers the gateway handler. Must run before the session
// opens.
func (r *Router) Attach() {
	r.session.AddHandler(r.onInteraction)
}

func (r *Router) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("interaction handler panicked", logx.Any("panic", rec))
		}
	}()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		r.handleCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		r.handleComponent(ctx, i)
	case discordgo.InteractionModalSubmit:
		r.handleModal(ctx, i)
	}
}

func actorOf(i *discordgo.InteractionCreate) access.Actor {
	a := access.Actor{GuildID: i.GuildID}
	if i.Member != nil && i.Member.User != nil {
		a.UserID = i.Member.User.ID
		a.Roles = i.Member.Roles
	} else if i.User != nil {
		a.UserID = i.User.ID
	}
	return a
}

// reply sends an ephemeral response; interactions never post publicly.
func (r *Router) reply(i *discordgo.InteractionCreate, content string) {
	err := r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: clipText(content, 1900),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		r.log.Warn("interaction reply failed", logx.Err(err))
	}
}

func (r *Router) replyComponents(i *discordgo.InteractionCreate, content string, comps []discordgo.MessageComponent) {
	err := r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: comps,
			Flags:      discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		r.log.Warn("interaction reply failed", logx.Err(err))
	}
}

// replyErr maps service errors onto user-facing text. Unknown errors
// are logged and masked.
func (r *Router) replyErr(i *discordgo.InteractionCreate, err error) {
	r.reply(i, errText(err, r.log))
}

func errText(err error, log logx.Logger) string {
	var verr *gig.ValidationError
	if errors.As(err, &verr) {
		var b strings.Builder
		fmt.Fprintf(&b, "**Error:** %s", verr.Reason)
		if len(verr.Echo) > 0 {
			b.WriteString("\n\n**Your submitted data:**\n")
			for _, f := range verr.Echo {
				fmt.Fprintf(&b, "**%s:** %s\n", f.Name, f.Value)
			}
		}
		return b.String()
	}
	var perr *gig.PermissionError
	if errors.As(err, &perr) {
		return fmt.Sprintf("You do not have permission to %s.", perr.Op)
	}
	var cerr *gig.ConflictError
	if errors.As(err, &cerr) {
		return cerr.Msg
	}
	var nerr *gig.NotFoundError
	if errors.As(err, &nerr) {
		return nerr.Msg
	}
	var coolErr *gig.CooldownError
	if errors.As(err, &coolErr) {
		return fmt.Sprintf("You are posting too often. Try again in %s.", coolErr.Remaining)
	}
	log.Error("interaction failed", logx.Err(err))
	return "An error occurred. Please try again."
}

func clipText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func customIDSuffix(customID, prefix string) string {
	return strings.TrimPrefix(customID, prefix)
}

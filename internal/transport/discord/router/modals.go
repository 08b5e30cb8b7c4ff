package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"gigboard/internal/gig"
)

func (r *Router) handleModal(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	switch {
	case strings.HasPrefix(data.CustomID, "submit_gig_"):
		r.submitGig(ctx, i, customIDSuffix(data.CustomID, "submit_gig_"), data)
	case strings.HasPrefix(data.CustomID, "apply_form_"):
		r.submitApplication(ctx, i, customIDSuffix(data.CustomID, "apply_form_"), data)
	case strings.HasPrefix(data.CustomID, "report_modal_"):
		r.submitReport(ctx, i, customIDSuffix(data.CustomID, "report_modal_"), data)
	case strings.HasPrefix(data.CustomID, "delete_reason_"):
		r.moderatedDelete(ctx, i, customIDSuffix(data.CustomID, "delete_reason_"), data)
	}
}

// modalValue digs a text input's value out of the submitted component
// tree.
func modalValue(data discordgo.ModalSubmitInteractionData, id string) string {
	for _, row := range data.Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			if in, ok := c.(*discordgo.TextInput); ok && in.CustomID == id {
				return in.Value
			}
		}
	}
	return ""
}

func (r *Router) submitGig(ctx context.Context, i *discordgo.InteractionCreate, categoryID string, data discordgo.ModalSubmitInteractionData) {
	in := gig.SubmitInput{
		Title:       modalValue(data, "title"),
		Description: modalValue(data, "description"),
		Pay:         modalValue(data, "pay"),
		Timeline:    modalValue(data, "timeline"),
	}
	res, err := r.gigs.Submit(ctx, actorOf(i), i.ChannelID, categoryID, in)
	if err != nil {
		r.replyErr(i, err)
		return
	}
	if res.Pending {
		r.reply(i, "Your gig is pending approval.")
		return
	}
	r.gigs.RefreshPrompts(ctx)

	failed := 0
	for _, dest := range res.Results {
		if dest.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		r.reply(i, fmt.Sprintf("Your gig was posted, but %d of %d channels failed.", failed, len(res.Results)))
		return
	}
	r.reply(i, "Your gig has been posted successfully to all configured channels!")
}

func (r *Router) submitApplication(ctx context.Context, i *discordgo.InteractionCreate, messageID string, data discordgo.ModalSubmitInteractionData) {
	in := gig.ApplyInput{
		Name:    modalValue(data, "apply_name"),
		Message: modalValue(data, "apply_message"),
		Resume:  modalValue(data, "apply_resume"),
	}
	res, err := r.gigs.Apply(ctx, actorOf(i), messageID, in)
	if err != nil {
		var cerr *gig.ConflictError
		if errors.As(err, &cerr) {
			r.reply(i, "You have already applied for this gig. Please wait for the poster to reach out.")
			return
		}
		r.replyErr(i, err)
		return
	}
	r.reply(i, fmt.Sprintf("Your application was sent to %s. The poster will reach out if interested.", res.PosterName))
}

func (r *Router) submitReport(ctx context.Context, i *discordgo.InteractionCreate, messageID string, data discordgo.ModalSubmitInteractionData) {
	reason := modalValue(data, "report_reason")
	if err := r.gigs.Report(ctx, actorOf(i), messageID, reason); err != nil {
		r.replyErr(i, err)
		return
	}
	r.reply(i, "Thank you for your report. The moderators have been notified.")
}

func (r *Router) moderatedDelete(ctx context.Context, i *discordgo.InteractionCreate, gigID string, data discordgo.ModalSubmitInteractionData) {
	reason := modalValue(data, "reason")
	dmFailed, err := r.gigs.Delete(ctx, actorOf(i), gigID, reason)
	if err != nil {
		r.replyErr(i, err)
		return
	}
	r.gigs.RefreshPrompts(ctx)
	if dmFailed {
		r.reply(i, "Gig deleted, but I could not DM the poster.")
		return
	}
	r.reply(i, "Gig deleted and poster notified.")
}

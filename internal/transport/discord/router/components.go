package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"gigboard/internal/gig"
	"gigboard/pkg/logx"
)

func (r *Router) handleComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	switch {
	case customID == "post_gig":
		r.showTerms(i)
	case customID == "accept_and_create_gig":
		r.startSubmission(ctx, i)
	case customID == "select_category":
		values := i.MessageComponentData().Values
		if len(values) == 1 {
			r.showSubmitModal(i, values[0])
		}
	case customID == "delete_all_my_gigs":
		r.deleteAllOwn(ctx, i)
	case strings.HasPrefix(customID, "apply_"):
		r.showApplyModal(i, customIDSuffix(customID, "apply_"))
	case strings.HasPrefix(customID, "report_delete_"):
		r.moderateReported(ctx, i, customIDSuffix(customID, "report_delete_"), false)
	case strings.HasPrefix(customID, "report_banish_"):
		r.moderateReported(ctx, i, customIDSuffix(customID, "report_banish_"), true)
	case strings.HasPrefix(customID, "report_applicant_"):
		r.applicantAction(ctx, i, customIDSuffix(customID, "report_applicant_"), true)
	case strings.HasPrefix(customID, "contact_applicant_"):
		r.applicantAction(ctx, i, customIDSuffix(customID, "contact_applicant_"), false)
	case strings.HasPrefix(customID, "report_"):
		r.showReportModal(i, customIDSuffix(customID, "report_"))
	case strings.HasPrefix(customID, "delete_gig_"):
		r.deleteFromButton(ctx, i, customIDSuffix(customID, "delete_gig_"))
	case strings.HasPrefix(customID, "banish_gig_"):
		r.banishFromButton(ctx, i, customIDSuffix(customID, "banish_gig_"))
	case strings.HasPrefix(customID, "approve_"):
		r.approvalAction(ctx, i, customIDSuffix(customID, "approve_"))
	}
}

// termsGate is the confirmation step between the prompt button and the
// submission flow. Creation only proceeds through its accept button.
func termsGate() (string, []discordgo.MessageComponent) {
	text := "**Terms of Use**\n" +
		"By posting a gig you agree that all contact happens through this bot, " +
		"that listings with external contact details are removed, and that " +
		"moderators may delete or banish postings at their discretion."
	row := discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{
			CustomID: "accept_and_create_gig",
			Label:    "Accept and Create Gig",
			Style:    discordgo.PrimaryButton,
		},
	}}
	return text, []discordgo.MessageComponent{row}
}

func (r *Router) showTerms(i *discordgo.InteractionCreate) {
	text, comps := termsGate()
	r.replyComponents(i, text, comps)
}

// startSubmission offers the category choice for the channel the prompt
// lives in, or jumps straight to the form when only one applies.
func (r *Router) startSubmission(ctx context.Context, i *discordgo.InteractionCreate) {
	actor := actorOf(i)
	v, err := r.gigs.View(ctx)
	if err != nil {
		r.replyErr(i, err)
		return
	}
	var available []discordgo.SelectMenuOption
	for _, cat := range v.CategoriesForChannel(i.ChannelID) {
		banned, err := r.gigs.IsBannedFrom(ctx, actor, cat.ID)
		if err != nil {
			r.replyErr(i, err)
			return
		}
		if banned {
			continue
		}
		available = append(available, discordgo.SelectMenuOption{Label: cat.Name, Value: cat.ID})
	}
	if len(available) == 0 {
		r.reply(i, "No available categories are configured for this channel.")
		return
	}
	if len(available) == 1 {
		r.showSubmitModal(i, available[0].Value)
		return
	}
	menu := discordgo.SelectMenu{
		CustomID:    "select_category",
		Placeholder: "Select a category",
		Options:     available,
	}
	r.replyComponents(i, "Select a category for this gig:", []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{menu}},
	})
}

func (r *Router) showSubmitModal(i *discordgo.InteractionCreate, categoryID string) {
	err := r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: "submit_gig_" + categoryID,
			Title:    "Post a Gig",
			Components: []discordgo.MessageComponent{
				textInputRow("title", "Title", discordgo.TextInputShort, true, 256),
				textInputRow("description", "Description (DO NOT ADD CONTACT DETAILS)", discordgo.TextInputParagraph, true, 1024),
				textInputRow("pay", "Pay", discordgo.TextInputShort, true, 128),
				textInputRow("timeline", "Timeline (optional)", discordgo.TextInputShort, false, 256),
			},
		},
	})
	if err != nil {
		r.log.Warn("submit modal failed", logx.Err(err))
	}
}

func (r *Router) showApplyModal(i *discordgo.InteractionCreate, messageID string) {
	err := r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: "apply_form_" + messageID,
			Title:    "Apply for Gig",
			Components: []discordgo.MessageComponent{
				textInputRow("apply_name", "Name", discordgo.TextInputShort, true, 256),
				textInputRow("apply_message", "Application", discordgo.TextInputParagraph, true, 1024),
				textInputRow("apply_resume", "Resume / Portfolio / CV", discordgo.TextInputParagraph, true, 1024),
			},
		},
	})
	if err != nil {
		r.log.Warn("apply modal failed", logx.Err(err))
	}
}

func (r *Router) showReportModal(i *discordgo.InteractionCreate, messageID string) {
	err := r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: "report_modal_" + messageID,
			Title:    "Report Gig",
			Components: []discordgo.MessageComponent{
				textInputRow("report_reason", "Why are you reporting this gig?", discordgo.TextInputParagraph, true, 1024),
			},
		},
	})
	if err != nil {
		r.log.Warn("report modal failed", logx.Err(err))
	}
}

// deleteFromButton deletes immediately for the author, or collects a
// reason from a moderator first.
func (r *Router) deleteFromButton(ctx context.Context, i *discordgo.InteractionCreate, messageID string) {
	actor := actorOf(i)
	g, err := r.gigs.GigByMessage(ctx, messageID)
	if err != nil {
		r.replyErr(i, err)
		return
	}
	if actor.UserID == g.AuthorID {
		if _, err := r.gigs.Delete(ctx, actor, g.ID, ""); err != nil {
			r.replyErr(i, err)
			return
		}
		r.gigs.RefreshPrompts(ctx)
		r.reply(i, "Gig deleted successfully from all servers.")
		return
	}

	mod, err := r.gigs.IsModerator(ctx, actor)
	if err != nil {
		r.replyErr(i, err)
		return
	}
	if !mod {
		r.replyErr(i, &gig.PermissionError{Op: "delete this gig"})
		return
	}
	err = r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: "delete_reason_" + g.ID,
			Title:    "Delete Reason",
			Components: []discordgo.MessageComponent{
				textInputRow("reason", "Reason for deletion", discordgo.TextInputParagraph, true, 1024),
			},
		},
	})
	if err != nil {
		r.log.Warn("delete reason modal failed", logx.Err(err))
	}
}

func (r *Router) banishFromButton(ctx context.Context, i *discordgo.InteractionCreate, messageID string) {
	actor := actorOf(i)
	g, err := r.gigs.GigByMessage(ctx, messageID)
	if err != nil {
		r.replyErr(i, err)
		return
	}
	if err := r.gigs.Banish(ctx, actor, g.ID, "gig banish"); err != nil {
		r.replyErr(i, err)
		return
	}
	r.gigs.RefreshPrompts(ctx)
	r.reply(i, "Gig deleted and user banished.")
}

func (r *Router) deleteAllOwn(ctx context.Context, i *discordgo.InteractionCreate) {
	actor := actorOf(i)
	n, err := r.gigs.DeleteAllForUser(ctx, actor, actor.UserID)
	if err != nil {
		r.replyErr(i, err)
		return
	}
	if n == 0 {
		r.reply(i, "You have no active gigs to delete.")
		return
	}
	r.gigs.RefreshPrompts(ctx)
	r.reply(i, fmt.Sprintf("Successfully deleted %d gigs from all locations.", n))
}

// approvalAction handles the accept/reject/banish buttons on a pending
// approval prompt. The prompt's buttons are cleared afterwards so the
// decision cannot be repeated from a stale message.
func (r *Router) approvalAction(ctx context.Context, i *discordgo.InteractionCreate, suffix string) {
	action, gigID, ok := strings.Cut(suffix, "_")
	if !ok {
		return
	}
	actor := actorOf(i)
	var (
		err  error
		text string
	)
	switch action {
	case "accept":
		_, err = r.gigs.Accept(ctx, actor, gigID)
		text = "Gig approved and posted."
	case "reject":
		err = r.gigs.Reject(ctx, actor, gigID)
		text = "Gig rejected and deleted."
	case "banish":
		err = r.gigs.Banish(ctx, actor, gigID, "approval banish")
		text = "Gig deleted and user banished."
	default:
		return
	}
	if err != nil {
		r.replyErr(i, err)
		return
	}
	r.gigs.RefreshPrompts(ctx)
	r.clearComponents(i)
	r.reply(i, text)
}

// moderateReported handles the delete/banish buttons on a report embed.
func (r *Router) moderateReported(ctx context.Context, i *discordgo.InteractionCreate, gigID string, banish bool) {
	actor := actorOf(i)
	var err error
	if banish {
		err = r.gigs.Banish(ctx, actor, gigID, "report banish")
	} else {
		err = r.gigs.Reject(ctx, actor, gigID)
	}
	if err != nil {
		r.replyErr(i, err)
		return
	}
	r.gigs.RefreshPrompts(ctx)
	r.clearComponents(i)
	if banish {
		r.reply(i, "Gig deleted and user banished.")
		return
	}
	r.reply(i, "Gig deleted.")
}

// applicantAction handles the buttons on an application DM: notify the
// applicant of interest, or report the application to the moderators.
func (r *Router) applicantAction(ctx context.Context, i *discordgo.InteractionCreate, suffix string, report bool) {
	gigID, applicantID, ok := strings.Cut(suffix, "_")
	if !ok {
		return
	}
	actor := actorOf(i)
	if report {
		if err := r.gigs.ReportApplicant(ctx, actor, gigID, applicantID); err != nil {
			r.replyErr(i, err)
			return
		}
		r.reply(i, "Report sent to moderators.")
		return
	}
	if err := r.gigs.ContactApplicant(ctx, actor, gigID, applicantID); err != nil {
		r.replyErr(i, err)
		return
	}
	r.reply(i, "Applicant notified.")
}

// clearComponents strips the buttons from the message the interaction
// came from. Best effort.
func (r *Router) clearComponents(i *discordgo.InteractionCreate) {
	if i.Message == nil {
		return
	}
	empty := []discordgo.MessageComponent{}
	_, err := r.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    i.Message.ChannelID,
		ID:         i.Message.ID,
		Components: &empty,
	})
	if err != nil {
		r.log.Warn("component clear failed", logx.Err(err))
	}
}

func textInputRow(id, label string, style discordgo.TextInputStyle, required bool, maxLen int) discordgo.MessageComponent {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.TextInput{
			CustomID:  id,
			Label:     label,
			Style:     style,
			Required:  required,
			MaxLength: maxLen,
		},
	}}
}

package gig

import (
	"fmt"
	"regexp"
	"strings"

	"gigboard/internal/transport"
)

// Embed accent colors, matching the community's established palette.
const (
	colorGig         = 0xb296ff
	colorApplication = 0x2bb673
	colorAlert       = 0xff0000
)

var (
	mentionEveryone = regexp.MustCompile(`(?i)@everyone`)
	mentionHere     = regexp.MustCompile(`(?i)@here`)
	markdownChars   = regexp.MustCompile("[\\\\`*_~|>]")
	digitsOnly      = regexp.MustCompile(`^\d+$`)
)

// Sanitize neutralizes mass mentions with a zero-width space and
// escapes markdown control characters, so user text renders literally.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	out := mentionEveryone.ReplaceAllString(text, "@​everyone")
	out = mentionHere.ReplaceAllString(out, "@​here")
	return markdownChars.ReplaceAllString(out, `\$0`)
}

// payDisplay appends a currency unit when the pay text is purely
// numeric; free-form pay text is shown as written.
func payDisplay(pay string) string {
	stripped := strings.NewReplacer(",", "", ".", "").Replace(pay)
	if digitsOnly.MatchString(stripped) {
		return pay + " USD"
	}
	return pay
}

// messageLink builds a jump link to a posted copy.
func messageLink(ref transport.MessageRef) string {
	if ref.MessageID == "" {
		return "Unavailable"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", ref.GuildID, ref.ChannelID, ref.MessageID)
}

func postingEmbed(p SubmitInput) *transport.Embed {
	var b strings.Builder
	if p.Timeline != "" {
		fmt.Fprintf(&b, "**Timeline:** %s\n", p.Timeline)
	}
	fmt.Fprintf(&b, "\n**Description:**\n%s\n\n**Pay:** %s", p.Description, payDisplay(p.Pay))
	return &transport.Embed{
		Title:       "Gig: " + p.Title,
		Description: b.String(),
		Color:       colorGig,
	}
}

// postingButtons carries the message id of the posted copy so every
// button resolves back to its own instance.
func postingButtons(messageID string) []transport.Button {
	return []transport.Button{
		{CustomID: "apply_" + messageID, Label: "Apply", Style: transport.ButtonPrimary},
		{CustomID: "report_" + messageID, Label: "Report", Style: transport.ButtonSecondary},
		{CustomID: "delete_gig_" + messageID, Label: "Delete", Style: transport.ButtonSecondary},
		{CustomID: "banish_gig_" + messageID, Label: "Banish", Style: transport.ButtonDanger},
	}
}

func approvalPrompt(gigID, authorID string, p SubmitInput) transport.Outgoing {
	em := postingEmbed(p)
	em.Fields = append(em.Fields, transport.EmbedField{
		Name:  "Poster",
		Value: fmt.Sprintf("<@%s> (%s)", authorID, authorID),
	})
	return transport.Outgoing{
		Text:  "Pending gig approval",
		Embed: em,
		Buttons: []transport.Button{
			{CustomID: "approve_accept_" + gigID, Label: "Accept", Style: transport.ButtonSuccess},
			{CustomID: "approve_reject_" + gigID, Label: "Reject", Style: transport.ButtonSecondary},
			{CustomID: "approve_banish_" + gigID, Label: "Banish", Style: transport.ButtonDanger},
		},
	}
}

func applicationDM(categoryName string, link string, applicantID, applicantTag string, a ApplyInput, gigID string) transport.Outgoing {
	return transport.Outgoing{
		Embed: &transport.Embed{
			Title:       "New Gig Application",
			Description: fmt.Sprintf("**Category:** %s\n**Gig:** %s", Sanitize(categoryName), link),
			Color:       colorApplication,
			Fields: []transport.EmbedField{
				{Name: "Applicant", Value: fmt.Sprintf("<@%s> (%s, %s)", applicantID, applicantTag, applicantID)},
				{Name: "Name", Value: a.Name},
				{Name: "Application", Value: clip(a.Message, 1024)},
				{Name: "Resume / Portfolio / CV", Value: clip(a.Resume, 1024)},
			},
			Timestamp: true,
		},
		Buttons: []transport.Button{
			{CustomID: fmt.Sprintf("contact_applicant_%s_%s", gigID, applicantID), Label: "Contact Me", Style: transport.ButtonPrimary},
			{CustomID: fmt.Sprintf("report_applicant_%s_%s", gigID, applicantID), Label: "Report", Style: transport.ButtonDanger},
		},
	}
}

func reportEmbed(reporterTag, reporterID, authorID, categoryName, link, reason, gigID string) transport.Outgoing {
	return transport.Outgoing{
		Embed: &transport.Embed{
			Title: "Gig Reported",
			Description: fmt.Sprintf(
				"**Reported by:** %s (%s)\n**Poster:** <@%s> (%s)\n**Category:** %s\n**Gig:** %s\n**Reason:** %s",
				reporterTag, reporterID, authorID, authorID, Sanitize(categoryName), link, Sanitize(reason)),
			Color:     colorAlert,
			Fields:    []transport.EmbedField{{Name: "Report ID", Value: gigID}},
			Timestamp: true,
		},
		Buttons: []transport.Button{
			{CustomID: "report_delete_" + gigID, Label: "Delete", Style: transport.ButtonSecondary},
			{CustomID: "report_banish_" + gigID, Label: "Banish", Style: transport.ButtonDanger},
		},
	}
}

func removalDM(reason, link string) transport.Outgoing {
	return transport.Outgoing{
		Embed: &transport.Embed{
			Title:       "Your Gig Was Removed",
			Description: fmt.Sprintf("**Reason:** %s\n**Gig:** %s", Sanitize(reason), link),
			Color:       colorAlert,
			Timestamp:   true,
		},
	}
}

// PromptMessage is the standing call-to-action kept at the bottom of
// each posting channel.
func PromptMessage() transport.Outgoing {
	return transport.Outgoing{
		Embed: &transport.Embed{
			Title:       "Post a Gig",
			Description: "Click the button below to post a gig, or to delete all of your gigs at once.",
			Color:       colorGig,
		},
		Buttons: []transport.Button{
			{CustomID: "post_gig", Label: "Post a Gig", Style: transport.ButtonPrimary},
			{CustomID: "delete_all_my_gigs", Label: "Delete All My Gigs", Style: transport.ButtonSecondary},
		},
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

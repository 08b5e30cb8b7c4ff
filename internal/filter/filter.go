// Package filter detects contact-solicitation content in gig
// submissions. Contact exchange is brokered by the bot; posts that try
// to move it off-platform are rejected before anything is stored.
package filter

import (
	"regexp"
	"strings"
)

// Contact phrases are matched case-insensitively as substrings.
var phrases = []string{
	"dm me",
	"dm me at",
	"dm me on",
	"dm me via",
	"dm me through",
	"message me",
	"message me at",
	"message me on",
	"message me via",
	"contact me",
	"contact me at",
	"contact me on",
	"contact me via",
	"reach me",
	"reach me at",
	"reach me on",
	"reach me via",
	"hit me up",
	"hit me up at",
	"hit me up on",
	"add me",
	"add me at",
	"add me on",
	"ping me",
	"ping me at",
	"ping me on",
	"find me on",
	"message on discord",
	"dm on discord",
	"discord dm",
	"discord me",
	"discord tag",
	"discord:",
	"discord -",
	"discord tag:",
	"discord handle",
	"discord username",
	"my discord is",
	"my discord:",
	"my discord -",
	"my tag is",
	"my tag:",
	"my handle is",
	"my handle:",
	"my username is",
	"my username:",
	"reach out on",
	"reach out via",
	"reach out at",
	"send me a dm",
	"send me a message",
	"shoot me a dm",
	"shoot me a message",
	"drop me a dm",
	"drop me a message",
	"contact via",
}

var (
	atHandle   = regexp.MustCompile(`(^|\s)@\w{2,32}`)
	tagHandle  = regexp.MustCompile(`(?i)\b[a-z0-9._-]{2,32}#[0-9]{4}\b`)
	messengers = regexp.MustCompile(`(?i)\b(whatsapp|wa\.me|telegram|t\.me|signal|wechat|line|kik|skype|viber)\b`)
)

// FindProhibited returns a short human-readable reason when the text
// solicits direct contact, or "" when it is clean.
func FindProhibited(text string) string {
	if text == "" {
		return ""
	}
	lowered := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lowered, p) {
			return "external contact request"
		}
	}
	if atHandle.MatchString(text) || tagHandle.MatchString(text) {
		return "username mention"
	}
	if messengers.MatchString(text) {
		return "external contact request"
	}
	return ""
}

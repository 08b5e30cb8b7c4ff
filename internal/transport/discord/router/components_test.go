package router

import (
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestTermsGate(t *testing.T) {
	text, comps := termsGate()
	if !strings.Contains(text, "Terms of Use") {
		t.Fatalf("terms text missing heading: %q", text)
	}
	if len(comps) != 1 {
		t.Fatalf("components: got %d rows, want 1", len(comps))
	}
	row, ok := comps[0].(discordgo.ActionsRow)
	if !ok {
		t.Fatalf("component is %T, want ActionsRow", comps[0])
	}
	if len(row.Components) != 1 {
		t.Fatalf("buttons: got %d, want 1", len(row.Components))
	}
	btn, ok := row.Components[0].(discordgo.Button)
	if !ok {
		t.Fatalf("row holds %T, want Button", row.Components[0])
	}
	if btn.CustomID != "accept_and_create_gig" {
		t.Fatalf("accept button custom id: %q", btn.CustomID)
	}
	if btn.Label != "Accept and Create Gig" {
		t.Fatalf("accept button label: %q", btn.Label)
	}
}

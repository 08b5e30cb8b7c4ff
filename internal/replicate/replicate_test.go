package replicate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gigboard/internal/storage"
	"gigboard/internal/transport"
	"gigboard/pkg/logx"
)

type fakeMessenger struct {
	nextID   int
	sends    []string
	edits    []string
	deletes  []string
	failSend map[string]error
	failDel  map[string]error
	recent   map[string][]transport.RecentMessage
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		failSend: map[string]error{},
		failDel:  map[string]error{},
		recent:   map[string][]transport.RecentMessage{},
	}
}

func (f *fakeMessenger) Send(_ context.Context, channelID string, _ transport.Outgoing) (transport.MessageRef, error) {
	if err := f.failSend[channelID]; err != nil {
		return transport.MessageRef{}, err
	}
	f.nextID++
	f.sends = append(f.sends, channelID)
	return transport.MessageRef{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", f.nextID)}, nil
}

func (f *fakeMessenger) Edit(_ context.Context, ref transport.MessageRef, _ transport.Outgoing) error {
	f.edits = append(f.edits, ref.MessageID)
	return nil
}

func (f *fakeMessenger) Delete(_ context.Context, ref transport.MessageRef) error {
	if err := f.failDel[ref.MessageID]; err != nil {
		return err
	}
	f.deletes = append(f.deletes, ref.MessageID)
	return nil
}

func (f *fakeMessenger) Recent(_ context.Context, channelID string, _ int) ([]transport.RecentMessage, error) {
	return f.recent[channelID], nil
}

func (f *fakeMessenger) SendDirect(context.Context, string, transport.Outgoing) error { return nil }

func (f *fakeMessenger) DisplayName(context.Context, string) (string, error) { return "user", nil }

func (f *fakeMessenger) ChannelAccess(context.Context, string) transport.Access {
	return transport.Access{Reachable: true, CanView: true, CanSend: true}
}

func newTestEngine(t *testing.T) (*Engine, *fakeMessenger, *storage.Store) {
	t.Helper()
	s, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "gigs.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	msgr := newFakeMessenger()
	e := New(Config{RatePerSec: 1000, SelfID: "bot"}, msgr, s, logx.Nop())
	return e, msgr, s
}

func insertGig(t *testing.T, s *storage.Store, id string) {
	t.Helper()
	now := time.Now()
	err := s.InsertGig(context.Background(), storage.Gig{
		ID: id, AuthorID: "a", OriginID: "o",
		CreatedAt: now, ExpiresAt: now.Add(time.Hour), Status: storage.GigApproved,
	})
	if err != nil {
		t.Fatalf("InsertGig: %v", err)
	}
}

func TestFanOutPartialFailure(t *testing.T) {
	e, msgr, s := newTestEngine(t)
	ctx := context.Background()
	insertGig(t, s, "g1")

	msgr.failSend["ch-2"] = errors.New("missing permissions")

	results := e.FanOut(ctx, "g1", "guild", []string{"ch-1", "ch-2", "ch-3"}, transport.Outgoing{Text: "gig"}, nil)
	if len(results) != 3 {
		t.Fatalf("results: got %d, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Fatalf("healthy destinations failed: %+v", results)
	}
	if results[1].Err == nil {
		t.Fatalf("failing destination reported success")
	}

	instances, err := s.InstancesForGig(ctx, "g1")
	if err != nil {
		t.Fatalf("InstancesForGig: %v", err)
	}
	if len(instances) != 2 {
		t.Fatalf("instances: got %d, want 2", len(instances))
	}
}

func TestFanOutFinalizeEditsWithRef(t *testing.T) {
	e, msgr, s := newTestEngine(t)
	ctx := context.Background()
	insertGig(t, s, "g1")

	var seen []string
	results := e.FanOut(ctx, "g1", "guild", []string{"ch-1", "ch-2"}, transport.Outgoing{Text: "gig"},
		func(ref transport.MessageRef) transport.Outgoing {
			seen = append(seen, ref.MessageID)
			return transport.Outgoing{Text: "gig " + ref.MessageID}
		})
	if results[0].Err != nil || results[1].Err != nil {
		t.Fatalf("fan-out failed: %+v", results)
	}
	if len(msgr.edits) != 2 {
		t.Fatalf("edits: got %d, want 2", len(msgr.edits))
	}
	for i, id := range seen {
		if msgr.edits[i] != id {
			t.Fatalf("finalize ref mismatch: %v vs %v", seen, msgr.edits)
		}
	}
}

func TestRetractIsolatesFailuresAndDeletesGig(t *testing.T) {
	e, msgr, s := newTestEngine(t)
	ctx := context.Background()
	insertGig(t, s, "g1")

	results := e.FanOut(ctx, "g1", "guild", []string{"ch-1", "ch-2"}, transport.Outgoing{Text: "gig"}, nil)
	if results[0].Err != nil || results[1].Err != nil {
		t.Fatalf("fan-out failed: %+v", results)
	}
	msgr.failDel[results[0].Ref.MessageID] = errors.New("message was deleted by hand")

	failures := e.Retract(ctx, "g1")
	if len(failures) != 1 {
		t.Fatalf("failures: got %v, want exactly one", failures)
	}
	if len(msgr.deletes) != 1 {
		t.Fatalf("surviving copy not deleted despite sibling failure")
	}
	// The record goes away no matter what happened at the platform.
	if _, err := s.GetGig(ctx, "g1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("gig record survived retraction: %v", err)
	}
}

func TestEnsurePromptDebounceAndScan(t *testing.T) {
	e, msgr, _ := newTestEngine(t)
	ctx := context.Background()
	out := transport.Outgoing{Embed: &transport.Embed{Title: "Post a Gig"}}

	t0 := time.Now()
	e.now = func() time.Time { return t0 }

	if err := e.EnsurePrompt(ctx, "ch", out); err != nil {
		t.Fatalf("EnsurePrompt: %v", err)
	}
	if len(msgr.sends) != 1 {
		t.Fatalf("prompt not posted")
	}

	// Within the debounce window nothing happens at all.
	if err := e.EnsurePrompt(ctx, "ch", out); err != nil {
		t.Fatalf("EnsurePrompt: %v", err)
	}
	if len(msgr.sends) != 1 {
		t.Fatalf("debounced call still posted")
	}

	// Past the window the history is scanned; an existing prompt
	// suppresses the send.
	e.now = func() time.Time { return t0.Add(10 * time.Second) }
	msgr.recent["ch"] = []transport.RecentMessage{
		{AuthorID: "bot", EmbedTitle: "Post a Gig"},
	}
	if err := e.EnsurePrompt(ctx, "ch", out); err != nil {
		t.Fatalf("EnsurePrompt: %v", err)
	}
	if len(msgr.sends) != 1 {
		t.Fatalf("duplicate prompt posted over existing one")
	}

	// A foreign embed with the same title does not count.
	e.now = func() time.Time { return t0.Add(20 * time.Second) }
	msgr.recent["ch"] = []transport.RecentMessage{
		{AuthorID: "someone", EmbedTitle: "Post a Gig"},
	}
	if err := e.EnsurePrompt(ctx, "ch", out); err != nil {
		t.Fatalf("EnsurePrompt: %v", err)
	}
	if len(msgr.sends) != 2 {
		t.Fatalf("prompt missing after foreign lookalike")
	}
}

func TestEnsurePromptReplacesBuriedPrompt(t *testing.T) {
	e, msgr, _ := newTestEngine(t)
	ctx := context.Background()
	out := transport.Outgoing{Embed: &transport.Embed{Title: "Post a Gig"}}

	// Newest first: a user message sits above the standing prompt.
	buried := transport.MessageRef{ChannelID: "ch", MessageID: "p1"}
	msgr.recent["ch"] = []transport.RecentMessage{
		{Ref: transport.MessageRef{ChannelID: "ch", MessageID: "u1"}, AuthorID: "someone"},
		{Ref: buried, AuthorID: "bot", EmbedTitle: "Post a Gig"},
	}
	if err := e.EnsurePrompt(ctx, "ch", out); err != nil {
		t.Fatalf("EnsurePrompt: %v", err)
	}
	if len(msgr.deletes) != 1 || msgr.deletes[0] != "p1" {
		t.Fatalf("buried prompt not torn down: %v", msgr.deletes)
	}
	if len(msgr.sends) != 1 {
		t.Fatalf("buried prompt not reposted")
	}
}

func TestEnsurePromptCollapsesDuplicates(t *testing.T) {
	e, msgr, _ := newTestEngine(t)
	ctx := context.Background()
	out := transport.Outgoing{Embed: &transport.Embed{Title: "Post a Gig"}}

	msgr.recent["ch"] = []transport.RecentMessage{
		{Ref: transport.MessageRef{ChannelID: "ch", MessageID: "p2"}, AuthorID: "bot", EmbedTitle: "Post a Gig"},
		{Ref: transport.MessageRef{ChannelID: "ch", MessageID: "p1"}, AuthorID: "bot", EmbedTitle: "Post a Gig"},
	}
	if err := e.EnsurePrompt(ctx, "ch", out); err != nil {
		t.Fatalf("EnsurePrompt: %v", err)
	}
	if len(msgr.deletes) != 2 {
		t.Fatalf("duplicate prompts not collapsed: %v", msgr.deletes)
	}
	if len(msgr.sends) != 1 {
		t.Fatalf("collapsed prompts not replaced with a single one")
	}
}

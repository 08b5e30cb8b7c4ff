package diag

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"gigboard/internal/snapshot"
	"gigboard/internal/storage"
	"gigboard/internal/transport"
	"gigboard/pkg/logx"
)

type probeMessenger struct {
	access map[string]transport.Access
}

func (p *probeMessenger) Send(context.Context, string, transport.Outgoing) (transport.MessageRef, error) {
	return transport.MessageRef{}, nil
}

func (p *probeMessenger) Edit(context.Context, transport.MessageRef, transport.Outgoing) error {
	return nil
}

func (p *probeMessenger) Delete(context.Context, transport.MessageRef) error { return nil }

func (p *probeMessenger) Recent(context.Context, string, int) ([]transport.RecentMessage, error) {
	return nil, nil
}

func (p *probeMessenger) SendDirect(context.Context, string, transport.Outgoing) error { return nil }

func (p *probeMessenger) DisplayName(_ context.Context, id string) (string, error) { return id, nil }

func (p *probeMessenger) ChannelAccess(_ context.Context, channelID string) transport.Access {
	if a, ok := p.access[channelID]; ok {
		return a
	}
	return transport.Access{Reachable: true, CanView: true, CanSend: true}
}

func TestSweep(t *testing.T) {
	s, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "gigs.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	if err := s.CreateCategory(ctx, storage.Category{ID: "c1", Name: "design"}); err != nil {
		t.Fatalf("category: %v", err)
	}
	if err := s.AddTarget(ctx, "c1", "shared"); err != nil {
		t.Fatalf("target: %v", err)
	}
	if err := s.AddReport(ctx, "c1", "shared"); err != nil {
		t.Fatalf("report: %v", err)
	}
	if err := s.AddDiagChannel(ctx, "ops"); err != nil {
		t.Fatalf("diag: %v", err)
	}

	msgr := &probeMessenger{access: map[string]transport.Access{
		"ops": {Reachable: false, Detail: "unknown channel"},
	}}
	svc := New(snapshot.NewCache(s, logx.Nop()), msgr, logx.Nop())

	reports, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports: %+v", reports)
	}

	// Sorted by channel id: ops, shared.
	if reports[0].ChannelID != "ops" || reports[0].Healthy() {
		t.Fatalf("ops report: %+v", reports[0])
	}
	if reports[1].ChannelID != "shared" || !reports[1].Healthy() {
		t.Fatalf("shared report: %+v", reports[1])
	}
	if len(reports[1].Usage) != 2 {
		t.Fatalf("shared channel usage not merged: %+v", reports[1].Usage)
	}

	text := Format(reports)
	if !strings.Contains(text, "1/2 destinations healthy") {
		t.Fatalf("format summary: %q", text)
	}
	if !strings.Contains(text, "unknown channel") {
		t.Fatalf("failure detail missing: %q", text)
	}
}

func TestFormatEmpty(t *testing.T) {
	if got := Format(nil); !strings.Contains(got, "No destinations") {
		t.Fatalf("empty format: %q", got)
	}
}

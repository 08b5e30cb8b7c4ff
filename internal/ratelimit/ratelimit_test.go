package ratelimit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gigboard/internal/snapshot"
	"gigboard/internal/storage"
	"gigboard/pkg/logx"
)

func newTestLimiter(t *testing.T) (*Limiter, *storage.Store, *snapshot.Cache) {
	t.Helper()
	s, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "gigs.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	cache := snapshot.NewCache(s, logx.Nop())
	return New(s, cache, 3*24*time.Hour, logx.Nop()), s, cache
}

func TestCooldownWindow(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	// The store keeps millisecond precision; align the clock so the
	// remaining-time assertions are exact.
	t0 := time.UnixMilli(time.Now().UnixMilli())
	l.now = func() time.Time { return t0 }

	remaining, err := l.Check(ctx, "u", "ch")
	if err != nil || remaining != 0 {
		t.Fatalf("fresh user should pass: remaining=%v err=%v", remaining, err)
	}
	if err := l.Record(ctx, "u", "ch"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	l.now = func() time.Time { return t0.Add(24 * time.Hour) }
	remaining, _ = l.Check(ctx, "u", "ch")
	if remaining != 2*24*time.Hour {
		t.Fatalf("one day in: remaining=%v, want 48h", remaining)
	}

	l.now = func() time.Time { return t0.Add(4 * 24 * time.Hour) }
	remaining, _ = l.Check(ctx, "u", "ch")
	if remaining != 0 {
		t.Fatalf("after cooldown: remaining=%v, want 0", remaining)
	}
}

func TestRecordOverwrites(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	t0 := time.UnixMilli(time.Now().UnixMilli())
	l.now = func() time.Time { return t0 }
	if err := l.Record(ctx, "u", "ch"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Posting again restarts the window from the new timestamp.
	l.now = func() time.Time { return t0.Add(3 * 24 * time.Hour) }
	if err := l.Record(ctx, "u", "ch"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	l.now = func() time.Time { return t0.Add(4 * 24 * time.Hour) }
	remaining, err := l.Check(ctx, "u", "ch")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if remaining != 2*24*time.Hour {
		t.Fatalf("window did not restart: remaining=%v, want 48h", remaining)
	}
}

func TestChannelCooldownOverride(t *testing.T) {
	l, store, _ := newTestLimiter(t)
	ctx := context.Background()

	one := int64(1)
	if err := store.SetChannelCooldown(ctx, "fast", &one); err != nil {
		t.Fatalf("policy: %v", err)
	}

	t0 := time.Now()
	l.now = func() time.Time { return t0 }
	if err := l.Record(ctx, "u", "fast"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	l.now = func() time.Time { return t0.Add(25 * time.Hour) }
	remaining, err := l.Check(ctx, "u", "fast")
	if err != nil || remaining != 0 {
		t.Fatalf("override not applied: remaining=%v err=%v", remaining, err)
	}
}

func TestCooldownIsPerChannel(t *testing.T) {
	l, _, _ := newTestLimiter(t)
	ctx := context.Background()

	t0 := time.Now()
	l.now = func() time.Time { return t0 }
	if err := l.Record(ctx, "u", "ch-a"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	remaining, err := l.Check(ctx, "u", "ch-b")
	if err != nil || remaining != 0 {
		t.Fatalf("cooldown leaked across channels: remaining=%v err=%v", remaining, err)
	}
}

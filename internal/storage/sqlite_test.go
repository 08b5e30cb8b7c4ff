package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gigboard/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "gigs.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCategoryUniqueness(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateCategory(ctx, Category{ID: "c1", Name: "design", ApproveMode: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.CreateCategory(ctx, Category{ID: "c2", Name: "design"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate name: got %v, want ErrConflict", err)
	}

	cats, err := s.ListCategories(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cats) != 1 || !cats[0].ApproveMode {
		t.Fatalf("unexpected categories: %+v", cats)
	}
}

func TestCategoryCascade(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateCategory(ctx, Category{ID: "c1", Name: "audio"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.AddTarget(ctx, "c1", "ch-1"); err != nil {
		t.Fatalf("target: %v", err)
	}
	if err := s.AddCategoryBan(ctx, Ban{ScopeID: "c1", UserID: "u1", BannedAt: time.Now(), BannedBy: "mod"}); err != nil {
		t.Fatalf("ban: %v", err)
	}

	if err := s.DeleteCategory(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	banned, err := s.IsCategoryBanned(ctx, "c1", "u1")
	if err != nil {
		t.Fatalf("IsCategoryBanned: %v", err)
	}
	if banned {
		t.Fatalf("category ban survived category deletion")
	}
}

func TestGigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	g := Gig{
		ID:        "g1",
		AuthorID:  "author",
		OriginID:  "origin",
		CreatedAt: now,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
		Status:    GigPending,
	}
	if err := s.InsertGig(ctx, g); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.PutPayload(ctx, Payload{GigID: "g1", Title: "Logo work", Description: "desc", Pay: "200 USD"}); err != nil {
		t.Fatalf("payload: %v", err)
	}

	got, err := s.GetGig(ctx, "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != GigPending || !got.CreatedAt.Equal(now) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	expires := now.Add(3 * 24 * time.Hour)
	if err := s.ApproveGig(ctx, "g1", expires); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got, _ = s.GetGig(ctx, "g1")
	if got.Status != GigApproved || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("approve not applied: %+v", got)
	}

	if err := s.ApproveGig(ctx, "missing", expires); !errors.Is(err, ErrNotFound) {
		t.Fatalf("approve missing: got %v, want ErrNotFound", err)
	}
}

func TestGigDeleteCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.InsertGig(ctx, Gig{ID: "g1", AuthorID: "a", OriginID: "o", CreatedAt: now, ExpiresAt: now, Status: GigApproved}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.InsertInstance(ctx, Instance{MessageID: "m1", GigID: "g1", GuildID: "gd", ChannelID: "ch", CreatedAt: now}); err != nil {
		t.Fatalf("instance: %v", err)
	}
	if err := s.InsertApplication(ctx, "g1", "u1"); err != nil {
		t.Fatalf("application: %v", err)
	}
	if err := s.InsertApplication(ctx, "g1", "u1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate application: got %v, want ErrConflict", err)
	}

	if err := s.DeleteGig(ctx, "g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetInstanceByMessage(ctx, "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("instance survived gig deletion: %v", err)
	}
	ok, err := s.HasApplication(ctx, "g1", "u1")
	if err != nil || ok {
		t.Fatalf("application survived gig deletion: ok=%v err=%v", ok, err)
	}
}

func TestExpiredAndOrphanedGigs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	old := now.Add(-40 * 24 * time.Hour)
	gigs := []Gig{
		{ID: "expired", AuthorID: "a", OriginID: "o", CreatedAt: old, ExpiresAt: now.Add(-time.Hour), Status: GigApproved},
		{ID: "live", AuthorID: "a", OriginID: "o", CreatedAt: now, ExpiresAt: now.Add(time.Hour), Status: GigApproved},
		{ID: "orphan", AuthorID: "a", OriginID: "o", CreatedAt: old, ExpiresAt: now.Add(time.Hour), Status: GigApproved},
		{ID: "young-orphan", AuthorID: "a", OriginID: "o", CreatedAt: now, ExpiresAt: now.Add(time.Hour), Status: GigApproved},
	}
	for _, g := range gigs {
		if err := s.InsertGig(ctx, g); err != nil {
			t.Fatalf("insert %s: %v", g.ID, err)
		}
	}
	if err := s.InsertInstance(ctx, Instance{MessageID: "m1", GigID: "live", GuildID: "g", ChannelID: "c", CreatedAt: now}); err != nil {
		t.Fatalf("instance: %v", err)
	}
	if err := s.InsertInstance(ctx, Instance{MessageID: "m2", GigID: "expired", GuildID: "g", ChannelID: "c", CreatedAt: old}); err != nil {
		t.Fatalf("instance: %v", err)
	}

	ids, err := s.ExpiredGigIDs(ctx, now)
	if err != nil {
		t.Fatalf("ExpiredGigIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "expired" {
		t.Fatalf("expired ids: %v", ids)
	}

	stale, err := s.StaleInstances(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("StaleInstances: %v", err)
	}
	if len(stale) != 1 || stale[0].MessageID != "m2" {
		t.Fatalf("stale instances: %+v", stale)
	}

	n, err := s.DeleteOrphanedGigsBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOrphanedGigsBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("orphan deletions: got %d, want 1", n)
	}
	if _, err := s.GetGig(ctx, "orphan"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("orphan survived: %v", err)
	}
	if _, err := s.GetGig(ctx, "young-orphan"); err != nil {
		t.Fatalf("young orphan deleted early: %v", err)
	}
}

func TestRateLimitOverwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.LastPost(ctx, "u", "ch"); err != nil || ok {
		t.Fatalf("empty LastPost: ok=%v err=%v", ok, err)
	}

	t0 := time.Now().Truncate(time.Millisecond)
	if err := s.TouchRateLimit(ctx, "u", "ch", t0); err != nil {
		t.Fatalf("touch: %v", err)
	}
	t1 := t0.Add(24 * time.Hour)
	if err := s.TouchRateLimit(ctx, "u", "ch", t1); err != nil {
		t.Fatalf("touch again: %v", err)
	}
	got, ok, err := s.LastPost(ctx, "u", "ch")
	if err != nil || !ok {
		t.Fatalf("LastPost: ok=%v err=%v", ok, err)
	}
	if !got.Equal(t1) {
		t.Fatalf("last write did not win: got %v, want %v", got, t1)
	}
}

func TestChannelPolicyUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	three, five := int64(3), int64(5)
	if err := s.SetChannelExpiry(ctx, "ch", &three); err != nil {
		t.Fatalf("expiry: %v", err)
	}
	if err := s.SetChannelCooldown(ctx, "ch", &five); err != nil {
		t.Fatalf("cooldown: %v", err)
	}
	pols, err := s.ListChannelPolicies(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pols) != 1 || pols[0].ExpiryDays == nil || *pols[0].ExpiryDays != 3 || pols[0].CooldownDays == nil || *pols[0].CooldownDays != 5 {
		t.Fatalf("policy mismatch: %+v", pols)
	}

	if err := s.SetChannelExpiry(ctx, "ch", nil); err != nil {
		t.Fatalf("clear expiry: %v", err)
	}
	pols, _ = s.ListChannelPolicies(ctx)
	if pols[0].ExpiryDays != nil || pols[0].CooldownDays == nil {
		t.Fatalf("clearing expiry clobbered cooldown: %+v", pols)
	}
}

func TestCleanupLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	entries := []CleanupLogEntry{
		{RunAt: now.Add(-10 * 24 * time.Hour), DeletedGigs: 1},
		{RunAt: now.Add(-time.Hour), DeletedGigs: 2, DeletedInstances: 5},
	}
	for _, e := range entries {
		if err := s.AppendCleanupLog(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	n, err := s.PruneCleanupLog(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned: got %d, want 1", n)
	}
	got, err := s.CleanupLogEntries(ctx, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(got) != 1 || got[0].DeletedGigs != 2 || got[0].DeletedInstances != 5 {
		t.Fatalf("entries mismatch: %+v", got)
	}
}

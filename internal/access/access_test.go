package access

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gigboard/internal/snapshot"
	"gigboard/internal/storage"
	"gigboard/pkg/logx"
)

func newTestControl(t *testing.T, adminUsers, adminRoles []string) (*Control, *storage.Store, *snapshot.Cache) {
	t.Helper()
	s, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "gigs.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	cache := snapshot.NewCache(s, logx.Nop())
	return New(adminUsers, adminRoles, cache, s, logx.Nop()), s, cache
}

func TestIsAdmin(t *testing.T) {
	c, _, _ := newTestControl(t, []string{"boss"}, []string{"admin-role"})

	cases := []struct {
		name  string
		actor Actor
		want  bool
	}{
		{"by user id", Actor{UserID: "boss"}, true},
		{"by role", Actor{UserID: "u", Roles: []string{"x", "admin-role"}}, true},
		{"neither", Actor{UserID: "u", Roles: []string{"x"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.IsAdmin(tc.actor); got != tc.want {
				t.Fatalf("IsAdmin = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCreateGateOpensByDefault(t *testing.T) {
	c, store, cache := newTestControl(t, nil, nil)
	ctx := context.Background()
	plain := Actor{UserID: "u", GuildID: "g"}

	ok, err := c.CanCreateGig(ctx, plain)
	if err != nil || !ok {
		t.Fatalf("unconfigured creator gate should be open: ok=%v err=%v", ok, err)
	}

	if err := store.AddRole(ctx, storage.RoleCreator, "creator-role"); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	cache.Invalidate()

	ok, _ = c.CanCreateGig(ctx, plain)
	if ok {
		t.Fatalf("configured creator gate should reject a roleless member")
	}
	ok, _ = c.CanCreateGig(ctx, Actor{UserID: "u", Roles: []string{"creator-role"}})
	if !ok {
		t.Fatalf("creator role holder rejected")
	}
}

func TestModeratorsBypassCreateGate(t *testing.T) {
	c, store, cache := newTestControl(t, nil, nil)
	ctx := context.Background()

	if err := store.AddRole(ctx, storage.RoleCreator, "creator-role"); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	if err := store.AddRole(ctx, storage.RoleModerator, "mod-role"); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	cache.Invalidate()

	ok, err := c.CanCreateGig(ctx, Actor{UserID: "m", Roles: []string{"mod-role"}})
	if err != nil || !ok {
		t.Fatalf("moderator should bypass creator gate: ok=%v err=%v", ok, err)
	}
}

func TestCanApply(t *testing.T) {
	c, store, cache := newTestControl(t, []string{"boss"}, nil)
	ctx := context.Background()

	ok, err := c.CanApply(ctx, Actor{UserID: "u"})
	if err != nil || !ok {
		t.Fatalf("unconfigured applicant gate should be open: ok=%v err=%v", ok, err)
	}

	if err := store.AddRole(ctx, storage.RoleDirectApplicant, "direct"); err != nil {
		t.Fatalf("AddRole: %v", err)
	}
	cache.Invalidate()

	if ok, _ := c.CanApply(ctx, Actor{UserID: "u"}); ok {
		t.Fatalf("roleless member passed configured applicant gate")
	}
	if ok, _ := c.CanApply(ctx, Actor{UserID: "u", Roles: []string{"direct"}}); !ok {
		t.Fatalf("direct applicant rejected")
	}
	if ok, _ := c.CanApply(ctx, Actor{UserID: "boss"}); !ok {
		t.Fatalf("admin must always pass the applicant gate")
	}
}

func TestIsBannedScopes(t *testing.T) {
	c, store, _ := newTestControl(t, []string{"boss"}, nil)
	ctx := context.Background()
	now := time.Now()

	if err := store.CreateCategory(ctx, storage.Category{ID: "cat", Name: "misc"}); err != nil {
		t.Fatalf("category: %v", err)
	}
	if err := store.AddGuildBan(ctx, storage.Ban{ScopeID: "g", UserID: "guildwide", BannedAt: now, BannedBy: "mod"}); err != nil {
		t.Fatalf("guild ban: %v", err)
	}
	if err := store.AddCategoryBan(ctx, storage.Ban{ScopeID: "cat", UserID: "scoped", BannedAt: now, BannedBy: "mod"}); err != nil {
		t.Fatalf("category ban: %v", err)
	}

	if banned, _ := c.IsBanned(ctx, Actor{UserID: "guildwide", GuildID: "g"}, ""); !banned {
		t.Fatalf("guild ban not seen")
	}
	if banned, _ := c.IsBanned(ctx, Actor{UserID: "scoped", GuildID: "g"}, "cat"); !banned {
		t.Fatalf("category ban not seen")
	}
	if banned, _ := c.IsBanned(ctx, Actor{UserID: "scoped", GuildID: "g"}, ""); banned {
		t.Fatalf("category ban leaked into guild scope")
	}
	if banned, _ := c.IsBanned(ctx, Actor{UserID: "boss", GuildID: "g"}, "cat"); banned {
		t.Fatalf("admins are exempt from bans")
	}
}

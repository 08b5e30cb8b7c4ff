// Package access answers permission questions for gig operations.
// Administrators come from static deploy configuration; moderator,
// creator and applicant roles come from the configuration snapshot.
package access

import (
	"context"

	"gigboard/internal/snapshot"
	"gigboard/internal/storage"
	"gigboard/pkg/logx"
)

// Actor identifies the member performing an operation.
type Actor struct {
	UserID  string
	GuildID string
	Roles   []string
}

// Control evaluates permissions. Admin identities are fixed at startup;
// everything else is read through the snapshot cache.
type Control struct {
	adminUsers map[string]struct{}
	adminRoles map[string]struct{}

	cache *snapshot.Cache
	store *storage.Store
	log   logx.Logger
}

func New(adminUsers, adminRoles []string, cache *snapshot.Cache, store *storage.Store, log logx.Logger) *Control {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Control{
		adminUsers: make(map[string]struct{}, len(adminUsers)),
		adminRoles: make(map[string]struct{}, len(adminRoles)),
		cache:      cache,
		store:      store,
		log:        log,
	}
	for _, id := range adminUsers {
		c.adminUsers[id] = struct{}{}
	}
	for _, id := range adminRoles {
		c.adminRoles[id] = struct{}{}
	}
	return c
}

// IsAdmin needs no snapshot; admin identity is static.
func (c *Control) IsAdmin(a Actor) bool {
	if _, ok := c.adminUsers[a.UserID]; ok {
		return true
	}
	for _, r := range a.Roles {
		if _, ok := c.adminRoles[r]; ok {
			return true
		}
	}
	return false
}

// IsModerator reports whether the actor is an admin or carries a bound
// moderator role.
func (c *Control) IsModerator(ctx context.Context, a Actor) (bool, error) {
	if c.IsAdmin(a) {
		return true, nil
	}
	v, err := c.cache.View(ctx)
	if err != nil {
		return false, err
	}
	return v.HasRole(storage.RoleModerator, a.Roles), nil
}

// CanCreateGig is open by default: when no creator role is bound,
// anyone may post. Once a creator role exists, posting requires it
// (moderators and admins always pass).
func (c *Control) CanCreateGig(ctx context.Context, a Actor) (bool, error) {
	mod, err := c.IsModerator(ctx, a)
	if err != nil {
		return false, err
	}
	if mod {
		return true, nil
	}
	v, err := c.cache.View(ctx)
	if err != nil {
		return false, err
	}
	if !v.RoleConfigured(storage.RoleCreator) {
		return true, nil
	}
	return v.HasRole(storage.RoleCreator, a.Roles), nil
}

// CanApply gates the apply button. Admins always may; otherwise the
// gate is open unless applicant roles are bound, in which case either
// applicant kind passes.
func (c *Control) CanApply(ctx context.Context, a Actor) (bool, error) {
	if c.IsAdmin(a) {
		return true, nil
	}
	v, err := c.cache.View(ctx)
	if err != nil {
		return false, err
	}
	if !v.RoleConfigured(storage.RoleApplicant) && !v.RoleConfigured(storage.RoleDirectApplicant) {
		return true, nil
	}
	return v.HasRole(storage.RoleApplicant, a.Roles) ||
		v.HasRole(storage.RoleDirectApplicant, a.Roles), nil
}

// IsBanned checks both the guild scope and, when categoryID is
// non-empty, the category scope. Admins are exempt from bans.
func (c *Control) IsBanned(ctx context.Context, a Actor, categoryID string) (bool, error) {
	if c.IsAdmin(a) {
		return false, nil
	}
	banned, err := c.store.IsGuildBanned(ctx, a.GuildID, a.UserID)
	if err != nil {
		return false, err
	}
	if banned {
		return true, nil
	}
	if categoryID == "" {
		return false, nil
	}
	return c.store.IsCategoryBanned(ctx, categoryID, a.UserID)
}

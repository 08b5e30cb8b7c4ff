// Package admin implements the configuration surface: categories and
// their channel wiring, role bindings, channel policies, diagnostics
// channels and unbanishment. Every mutation refreshes the snapshot so
// the change is live immediately instead of after the cache TTL.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"gigboard/internal/access"
	"gigboard/internal/gig"
	"gigboard/internal/snapshot"
	"gigboard/internal/storage"
	"gigboard/pkg/logx"
)

// UnbanScope selects which ban tables an unbanishment clears.
type UnbanScope string

const (
	ScopeServer   UnbanScope = "server"
	ScopeCategory UnbanScope = "category"
	ScopeBoth     UnbanScope = "both"
)

type Service struct {
	store *storage.Store
	cache *snapshot.Cache
	acl   *access.Control
	log   logx.Logger

	newID func() string
}

func New(store *storage.Store, cache *snapshot.Cache, acl *access.Control, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, cache: cache, acl: acl, log: log, newID: uuid.NewString}
}

func (s *Service) require(actor access.Actor, op string) error {
	if !s.acl.IsAdmin(actor) {
		return &gig.PermissionError{Op: op}
	}
	return nil
}

// refresh makes the mutation visible immediately. A failed reload only
// delays visibility until the TTL; it does not undo the mutation.
func (s *Service) refresh(ctx context.Context) {
	if err := s.cache.Refresh(ctx); err != nil {
		s.log.Warn("snapshot refresh after mutation failed", logx.Err(err))
		s.cache.Invalidate()
	}
}

func (s *Service) CreateCategory(ctx context.Context, actor access.Actor, name string, approveMode bool) (storage.Category, error) {
	if err := s.require(actor, "manage categories"); err != nil {
		return storage.Category{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Category{}, &gig.ValidationError{Reason: "Category name is required."}
	}
	cat := storage.Category{ID: s.newID(), Name: name, ApproveMode: approveMode}
	if err := s.store.CreateCategory(ctx, cat); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return storage.Category{}, &gig.ConflictError{Msg: fmt.Sprintf("A category named %q already exists.", name)}
		}
		return storage.Category{}, err
	}
	s.refresh(ctx)
	return cat, nil
}

func (s *Service) DeleteCategory(ctx context.Context, actor access.Actor, categoryID string) error {
	if err := s.require(actor, "manage categories"); err != nil {
		return err
	}
	if err := s.store.DeleteCategory(ctx, categoryID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &gig.NotFoundError{Msg: "Category not found."}
		}
		return err
	}
	s.refresh(ctx)
	return nil
}

func (s *Service) SetApproveMode(ctx context.Context, actor access.Actor, categoryID string, enabled bool) error {
	if err := s.require(actor, "manage categories"); err != nil {
		return err
	}
	if err := s.store.SetApproveMode(ctx, categoryID, enabled); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &gig.NotFoundError{Msg: "Category not found."}
		}
		return err
	}
	s.refresh(ctx)
	return nil
}

// ResolveCategory accepts either a category id or a name.
func (s *Service) ResolveCategory(ctx context.Context, ref string) (storage.Category, error) {
	v, err := s.cache.View(ctx)
	if err != nil {
		return storage.Category{}, err
	}
	if cat, ok := v.Categories[ref]; ok {
		return cat, nil
	}
	if cat, ok := v.CategoryByName(ref); ok {
		return cat, nil
	}
	return storage.Category{}, &gig.NotFoundError{Msg: "Category not found."}
}

func (s *Service) AddTarget(ctx context.Context, actor access.Actor, categoryID, channelID string) error {
	return s.mutateBinding(ctx, actor, func() error { return s.store.AddTarget(ctx, categoryID, channelID) })
}

func (s *Service) RemoveTarget(ctx context.Context, actor access.Actor, categoryID, channelID string) error {
	return s.mutateBinding(ctx, actor, func() error { return s.store.RemoveTarget(ctx, categoryID, channelID) })
}

func (s *Service) AddReport(ctx context.Context, actor access.Actor, categoryID, channelID string) error {
	return s.mutateBinding(ctx, actor, func() error { return s.store.AddReport(ctx, categoryID, channelID) })
}

func (s *Service) RemoveReport(ctx context.Context, actor access.Actor, categoryID, channelID string) error {
	return s.mutateBinding(ctx, actor, func() error { return s.store.RemoveReport(ctx, categoryID, channelID) })
}

func (s *Service) mutateBinding(ctx context.Context, actor access.Actor, mutate func() error) error {
	if err := s.require(actor, "manage channel wiring"); err != nil {
		return err
	}
	if err := mutate(); err != nil {
		return err
	}
	s.refresh(ctx)
	return nil
}

func (s *Service) AddRole(ctx context.Context, actor access.Actor, kind storage.RoleKind, roleID string) error {
	return s.mutateBinding(ctx, actor, func() error { return s.store.AddRole(ctx, kind, roleID) })
}

func (s *Service) RemoveRole(ctx context.Context, actor access.Actor, kind storage.RoleKind, roleID string) error {
	return s.mutateBinding(ctx, actor, func() error { return s.store.RemoveRole(ctx, kind, roleID) })
}

// SetChannelExpiry sets the posting lifetime for gigs created in the
// channel; nil clears the override.
func (s *Service) SetChannelExpiry(ctx context.Context, actor access.Actor, channelID string, days *int64) error {
	if days != nil && *days <= 0 {
		return &gig.ValidationError{Reason: "Expiry must be a positive number of days."}
	}
	return s.mutateBinding(ctx, actor, func() error { return s.store.SetChannelExpiry(ctx, channelID, days) })
}

func (s *Service) SetChannelCooldown(ctx context.Context, actor access.Actor, channelID string, days *int64) error {
	if days != nil && *days <= 0 {
		return &gig.ValidationError{Reason: "Cooldown must be a positive number of days."}
	}
	return s.mutateBinding(ctx, actor, func() error { return s.store.SetChannelCooldown(ctx, channelID, days) })
}

func (s *Service) AddDiagChannel(ctx context.Context, actor access.Actor, channelID string) error {
	return s.mutateBinding(ctx, actor, func() error { return s.store.AddDiagChannel(ctx, channelID) })
}

func (s *Service) RemoveDiagChannel(ctx context.Context, actor access.Actor, channelID string) error {
	return s.mutateBinding(ctx, actor, func() error { return s.store.RemoveDiagChannel(ctx, channelID) })
}

// Unbanish lifts bans for the user. The scope picks the server tables,
// one category, or both; the returned count is how many entries were
// actually removed.
func (s *Service) Unbanish(ctx context.Context, actor access.Actor, scope UnbanScope, guildID, categoryID, userID string) (int64, error) {
	if err := s.require(actor, "manage bans"); err != nil {
		return 0, err
	}
	var removed int64
	if scope == ScopeServer || scope == ScopeBoth {
		n, err := s.store.RemoveGuildBan(ctx, guildID, userID)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if scope == ScopeCategory || scope == ScopeBoth {
		if categoryID == "" {
			return removed, &gig.ValidationError{Reason: "A category is required for category-scope unbanish."}
		}
		n, err := s.store.RemoveCategoryBan(ctx, categoryID, userID)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	s.refresh(ctx)
	return removed, nil
}

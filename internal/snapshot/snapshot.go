// Package snapshot maintains an in-memory read model of moderation
// configuration. Hot paths read the snapshot instead of the database;
// the snapshot is refreshed when older than its TTL, or immediately
// after an admin mutation.
package snapshot

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gigboard/internal/storage"
	"gigboard/pkg/logx"
)

const ttl = 15 * time.Second

// View is one immutable generation of the read model. Callers must not
// mutate the maps and slices it exposes.
type View struct {
	Roles      map[storage.RoleKind][]string
	Categories map[string]storage.Category // by id
	byName     map[string]string           // lower(name) -> id

	Targets map[string][]string // category id -> target channel ids
	Reports map[string][]string // category id -> report channel ids

	categoriesByChannel map[string][]storage.Category

	Policies map[string]storage.ChannelPolicy
	Diag     []string

	LoadedAt time.Time
}

// Cache serves Views, reloading from the store when the current one is
// stale. All methods are safe for concurrent use.
type Cache struct {
	store *storage.Store
	log   logx.Logger
	now   func() time.Time

	mu   sync.Mutex
	view *View
}

func NewCache(store *storage.Store, log logx.Logger) *Cache {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Cache{store: store, log: log, now: time.Now}
}

// View returns the current generation, reloading first if it is older
// than the TTL. On reload failure the previous generation is served and
// the error is logged; a cold cache propagates the error.
func (c *Cache) View(ctx context.Context) (*View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.view != nil && c.now().Sub(c.view.LoadedAt) < ttl {
		return c.view, nil
	}
	v, err := c.load(ctx)
	if err != nil {
		if c.view != nil {
			c.log.Warn("snapshot reload failed, serving stale view", logx.Err(err))
			return c.view, nil
		}
		return nil, err
	}
	c.view = v
	return v, nil
}

// Invalidate forces the next View call to reload. Admin mutations call
// this so their effect is visible immediately.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.view = nil
	c.mu.Unlock()
}

// Refresh reloads immediately and swaps the generation in.
func (c *Cache) Refresh(ctx context.Context) error {
	v, err := c.load(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.view = v
	c.mu.Unlock()
	return nil
}

func (c *Cache) load(ctx context.Context) (*View, error) {
	roles, err := c.store.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	cats, err := c.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	policies, err := c.store.ListChannelPolicies(ctx)
	if err != nil {
		return nil, err
	}
	diag, err := c.store.ListDiagChannels(ctx)
	if err != nil {
		return nil, err
	}
	targets, err := c.store.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := c.store.ListReports(ctx)
	if err != nil {
		return nil, err
	}

	v := &View{
		Roles:               roles,
		Categories:          make(map[string]storage.Category, len(cats)),
		byName:              make(map[string]string, len(cats)),
		Targets:             make(map[string][]string, len(cats)),
		Reports:             make(map[string][]string, len(cats)),
		categoriesByChannel: map[string][]storage.Category{},
		Policies:            make(map[string]storage.ChannelPolicy, len(policies)),
		Diag:                diag,
		LoadedAt:            c.now(),
	}
	for _, cat := range cats {
		v.Categories[cat.ID] = cat
		v.byName[strings.ToLower(cat.Name)] = cat.ID
	}
	for _, b := range targets {
		v.Targets[b.CategoryID] = append(v.Targets[b.CategoryID], b.ChannelID)
		if cat, ok := v.Categories[b.CategoryID]; ok {
			v.categoriesByChannel[b.ChannelID] = append(v.categoriesByChannel[b.ChannelID], cat)
		}
	}
	for _, b := range reports {
		v.Reports[b.CategoryID] = append(v.Reports[b.CategoryID], b.ChannelID)
	}
	for _, ch := range v.categoriesByChannel {
		sort.Slice(ch, func(i, j int) bool { return ch[i].Name < ch[j].Name })
	}
	for _, p := range policies {
		v.Policies[p.ChannelID] = p
	}
	return v, nil
}

// CategoryByName resolves a category by case-insensitive name.
func (v *View) CategoryByName(name string) (storage.Category, bool) {
	id, ok := v.byName[strings.ToLower(name)]
	if !ok {
		return storage.Category{}, false
	}
	return v.Categories[id], true
}

// CategoriesForChannel lists categories that fan out to the channel,
// sorted by name.
func (v *View) CategoriesForChannel(channelID string) []storage.Category {
	return v.categoriesByChannel[channelID]
}

// HasRole reports whether any of the member's role ids carries the kind.
func (v *View) HasRole(kind storage.RoleKind, memberRoles []string) bool {
	bound := v.Roles[kind]
	if len(bound) == 0 {
		return false
	}
	for _, have := range memberRoles {
		for _, want := range bound {
			if have == want {
				return true
			}
		}
	}
	return false
}

// RoleConfigured reports whether any role is bound to the kind at all.
// An unconfigured kind leaves the corresponding gate open.
func (v *View) RoleConfigured(kind storage.RoleKind) bool {
	return len(v.Roles[kind]) > 0
}

// ExpiryFor returns the posting lifetime for gigs originating in the
// channel, falling back to the default when no policy overrides it.
func (v *View) ExpiryFor(channelID string, def time.Duration) time.Duration {
	if p, ok := v.Policies[channelID]; ok && p.ExpiryDays != nil {
		return time.Duration(*p.ExpiryDays) * 24 * time.Hour
	}
	return def
}

// CooldownFor returns the per-user posting cooldown for the channel.
func (v *View) CooldownFor(channelID string, def time.Duration) time.Duration {
	if p, ok := v.Policies[channelID]; ok && p.CooldownDays != nil {
		return time.Duration(*p.CooldownDays) * 24 * time.Hour
	}
	return def
}

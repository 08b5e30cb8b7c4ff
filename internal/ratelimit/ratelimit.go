// Package ratelimit enforces the per-user posting cooldown. The unit of
// limiting is (user, origin channel); a successful post overwrites the
// previous timestamp, so the window always measures from the latest post.
package ratelimit

import (
	"context"
	"time"

	"gigboard/internal/snapshot"
	"gigboard/internal/storage"
	"gigboard/pkg/logx"
)

// Limiter checks and records posting cooldowns.
type Limiter struct {
	store *storage.Store
	cache *snapshot.Cache
	log   logx.Logger

	defaultCooldown time.Duration
	now             func() time.Time
}

func New(store *storage.Store, cache *snapshot.Cache, defaultCooldown time.Duration, log logx.Logger) *Limiter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Limiter{
		store:           store,
		cache:           cache,
		log:             log,
		defaultCooldown: defaultCooldown,
		now:             time.Now,
	}
}

// Check returns the remaining wait for (user, channel). A zero remaining
// means the user may post now. Privileged bypass is the caller's concern;
// the limiter only measures time.
func (l *Limiter) Check(ctx context.Context, userID, channelID string) (time.Duration, error) {
	last, ok, err := l.store.LastPost(ctx, userID, channelID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	v, err := l.cache.View(ctx)
	if err != nil {
		return 0, err
	}
	cooldown := v.CooldownFor(channelID, l.defaultCooldown)
	elapsed := l.now().Sub(last)
	if elapsed >= cooldown {
		return 0, nil
	}
	return cooldown - elapsed, nil
}

// Record marks a successful post. The previous timestamp, if any, is
// overwritten.
func (l *Limiter) Record(ctx context.Context, userID, channelID string) error {
	return l.store.TouchRateLimit(ctx, userID, channelID, l.now())
}

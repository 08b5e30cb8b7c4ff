// Package replicate mirrors a gig posting into every channel its
// category targets, and tears those copies down again. Destinations are
// independent: a failure at one channel never aborts the others.
package replicate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gigboard/internal/storage"
	"gigboard/internal/transport"
	"gigboard/pkg/logx"
)

// Result is the outcome for a single destination channel.
type Result struct {
	ChannelID string
	Ref       transport.MessageRef
	Err       error
}

// DestErrorf wraps a per-destination failure with its channel for log
// and diagnostics output.
func DestErrorf(channelID string, err error) error {
	return fmt.Errorf("channel %s: %w", channelID, err)
}

type Config struct {
	RatePerSec int
	// SelfID is the bot's own user id, used to recognize its prompts.
	SelfID string
	// PromptTitle marks the standing "start here" prompt embed.
	PromptTitle string
}

// Engine performs fan-out and retraction against the messenger and
// keeps the instance records in the store consistent with what was
// actually posted.
type Engine struct {
	cfg   Config
	msgr  transport.Messenger
	store *storage.Store
	log   logx.Logger

	limiter *rate.Limiter
	now     func() time.Time

	mu     sync.Mutex
	prompt map[string]time.Time // channel id -> last ensure
}

const (
	promptDebounce  = 5 * time.Second
	promptMapLimit  = 512
	promptScanLimit = 50
)

func New(cfg Config, msgr transport.Messenger, store *storage.Store, log logx.Logger) *Engine {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.PromptTitle == "" {
		cfg.PromptTitle = "Post a Gig"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:     cfg,
		msgr:    msgr,
		store:   store,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		now:     time.Now,
		prompt:  map[string]time.Time{},
	}
}

// SetSelfID records the bot's own user id once the gateway session is
// open and it becomes known.
func (e *Engine) SetSelfID(id string) {
	e.mu.Lock()
	e.cfg.SelfID = id
	e.mu.Unlock()
}

func (e *Engine) selfID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.SelfID
}

// FanOut posts the rendered gig to every destination channel, recording
// an instance per successful send. It always returns one Result per
// destination, in input order. When finalize is non-nil the message is
// edited once its own reference is known, so interactive components can
// carry the message id they are attached to.
func (e *Engine) FanOut(ctx context.Context, gigID, guildID string, channels []string, out transport.Outgoing, finalize func(transport.MessageRef) transport.Outgoing) []Result {
	results := make([]Result, 0, len(channels))
	for _, ch := range channels {
		res := Result{ChannelID: ch}
		if err := e.limiter.Wait(ctx); err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		ref, err := e.msgr.Send(ctx, ch, out)
		if err != nil {
			res.Err = DestErrorf(ch, err)
			e.log.Warn("fan-out send failed", logx.String("gig", gigID), logx.String("channel", ch), logx.Err(err))
			results = append(results, res)
			continue
		}
		res.Ref = ref
		if finalize != nil {
			if err := e.msgr.Edit(ctx, ref, finalize(ref)); err != nil {
				e.log.Warn("fan-out finalize failed", logx.String("gig", gigID), logx.String("message", ref.MessageID), logx.Err(err))
			}
		}
		inst := storage.Instance{
			MessageID: ref.MessageID,
			GigID:     gigID,
			GuildID:   guildID,
			ChannelID: ch,
			CreatedAt: e.now(),
		}
		if err := e.store.InsertInstance(ctx, inst); err != nil {
			// The posting stands even if bookkeeping fails; the stale
			// sweep reconciles untracked messages eventually.
			res.Err = DestErrorf(ch, err)
			e.log.Error("instance record failed", logx.String("gig", gigID), logx.String("message", ref.MessageID), logx.Err(err))
		}
		results = append(results, res)
	}
	return results
}

// Retract deletes every posted copy of the gig, then removes the gig
// record itself. Per-destination deletion failures are collected and
// returned, but the gig record is removed regardless so the gig cannot
// be resurrected.
func (e *Engine) Retract(ctx context.Context, gigID string) []error {
	var failures []error

	instances, err := e.store.InstancesForGig(ctx, gigID)
	if err != nil {
		failures = append(failures, err)
	}
	for _, in := range instances {
		ref := transport.MessageRef{GuildID: in.GuildID, ChannelID: in.ChannelID, MessageID: in.MessageID}
		if err := e.msgr.Delete(ctx, ref); err != nil {
			failures = append(failures, DestErrorf(in.ChannelID, err))
			e.log.Warn("retract delete failed", logx.String("gig", gigID), logx.String("message", in.MessageID), logx.Err(err))
		}
		if err := e.store.DeleteInstance(ctx, in.MessageID); err != nil {
			failures = append(failures, err)
		}
	}

	if err := e.store.DeleteGig(ctx, gigID); err != nil {
		failures = append(failures, err)
	}
	return failures
}

// DeleteInstanceMessage removes a single posted copy and its record.
// The record is removed even when the platform delete fails, so a
// hand-deleted message does not pin its row forever.
func (e *Engine) DeleteInstanceMessage(ctx context.Context, in storage.Instance) error {
	var first error
	ref := transport.MessageRef{GuildID: in.GuildID, ChannelID: in.ChannelID, MessageID: in.MessageID}
	if err := e.msgr.Delete(ctx, ref); err != nil {
		first = DestErrorf(in.ChannelID, err)
	}
	if err := e.store.DeleteInstance(ctx, in.MessageID); err != nil && first == nil {
		first = err
	}
	return first
}

// EnsurePrompt keeps exactly one standing "start here" prompt in the
// channel, and keeps it in the most-recent position. Calls within the
// debounce window are dropped; otherwise the recent history is scanned
// and the prompt is posted when absent, or torn down and reposted when
// duplicated or buried under newer messages.
func (e *Engine) EnsurePrompt(ctx context.Context, channelID string, out transport.Outgoing) error {
	now := e.now()

	e.mu.Lock()
	if last, ok := e.prompt[channelID]; ok && now.Sub(last) < promptDebounce {
		e.mu.Unlock()
		return nil
	}
	e.prompt[channelID] = now
	if len(e.prompt) > promptMapLimit {
		e.evictPromptLocked(now)
	}
	e.mu.Unlock()

	recent, err := e.msgr.Recent(ctx, channelID, promptScanLimit)
	if err != nil {
		return DestErrorf(channelID, err)
	}
	self := e.selfID()
	var prompts []transport.MessageRef
	for _, m := range recent {
		if m.AuthorID == self && m.EmbedTitle == e.cfg.PromptTitle {
			prompts = append(prompts, m.Ref)
		}
	}
	// Recent is newest first: a single prompt at index zero is already
	// the latest message and needs no work.
	if len(prompts) == 1 && len(recent) > 0 && recent[0].Ref == prompts[0] {
		return nil
	}
	for _, ref := range prompts {
		if derr := e.msgr.Delete(ctx, ref); derr != nil {
			e.log.Warn("stale prompt removal failed",
				logx.String("channel", channelID),
				logx.String("message", ref.MessageID),
				logx.Err(derr))
		}
	}
	if _, err := e.msgr.Send(ctx, channelID, out); err != nil {
		return DestErrorf(channelID, err)
	}
	return nil
}

// evictPromptLocked drops entries past the debounce window, then
// arbitrary ones if the map is still over the limit.
func (e *Engine) evictPromptLocked(now time.Time) {
	for ch, at := range e.prompt {
		if now.Sub(at) >= promptDebounce {
			delete(e.prompt, ch)
		}
	}
	for ch := range e.prompt {
		if len(e.prompt) <= promptMapLimit {
			break
		}
		delete(e.prompt, ch)
	}
}

// Package cleanup runs the daily maintenance sweep: expiring approved
// gigs, pruning stale posted copies, reconciling orphaned records, and
// rotating database backups. A sweep also runs once at startup so a
// bot that was down over the deadline catches up immediately.
package cleanup

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gigboard/internal/replicate"
	"gigboard/internal/storage"
	"gigboard/pkg/logx"
)

const (
	staleAfter   = 30 * 24 * time.Hour
	logRetention = 7 * 24 * time.Hour
)

type Config struct {
	// Spec is the cron schedule for the sweep.
	Spec string
}

// Scheduler owns the sweep cadence.
type Scheduler struct {
	cfg    Config
	store  *storage.Store
	engine *replicate.Engine
	log    logx.Logger

	now func() time.Time

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, store *storage.Store, engine *replicate.Engine, log logx.Logger) *Scheduler {
	if cfg.Spec == "" {
		cfg.Spec = "@daily"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:    cfg,
		store:  store,
		engine: engine,
		log:    log,
		now:    time.Now,
	}
}

// Start runs one sweep immediately, then on the cron schedule until the
// context is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.Run(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.c = cron.New()
	_, err := s.c.AddFunc(s.cfg.Spec, func() { s.Run(ctx) })
	if err != nil {
		return err
	}
	s.c.Start()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Run executes one full sweep. Every pass is independent; a failure in
// one is logged and the rest still run.
func (s *Scheduler) Run(ctx context.Context) storage.CleanupLogEntry {
	now := s.now()
	entry := storage.CleanupLogEntry{RunAt: now}

	// Pass 1: retract approved gigs past their expiry.
	expired, err := s.store.ExpiredGigIDs(ctx, now)
	if err != nil {
		s.log.Error("expiry scan failed", logx.Err(err))
	}
	for _, id := range expired {
		for _, rerr := range s.engine.Retract(ctx, id) {
			s.log.Warn("expired gig retraction incomplete", logx.String("gig", id), logx.Err(rerr))
		}
		entry.DeletedGigs++
	}

	// Pass 2: drop posted copies past the stale threshold, whatever
	// their gig's state.
	stale, err := s.store.StaleInstances(ctx, now.Add(-staleAfter))
	if err != nil {
		s.log.Error("stale scan failed", logx.Err(err))
	}
	for _, in := range stale {
		if derr := s.engine.DeleteInstanceMessage(ctx, in); derr != nil {
			s.log.Warn("stale copy removal incomplete", logx.String("message", in.MessageID), logx.Err(derr))
		}
		entry.DeletedInstances++
	}

	// Pass 3: reconcile old gigs left with no copies at all.
	orphaned, err := s.store.DeleteOrphanedGigsBefore(ctx, now.Add(-staleAfter))
	if err != nil {
		s.log.Error("orphan reconciliation failed", logx.Err(err))
	}
	entry.DeletedGigs += orphaned

	// Pass 4: audit trail, self-pruning.
	if err := s.store.AppendCleanupLog(ctx, entry); err != nil {
		s.log.Error("cleanup log append failed", logx.Err(err))
	}
	if _, err := s.store.PruneCleanupLog(ctx, now.Add(-logRetention)); err != nil {
		s.log.Error("cleanup log prune failed", logx.Err(err))
	}

	// Pass 5: backup rotation, time-boxed inside the store.
	s.store.Backup(ctx, now)

	s.log.Info("cleanup sweep finished",
		logx.Int64("deleted_gigs", entry.DeletedGigs),
		logx.Int64("deleted_instances", entry.DeletedInstances))
	return entry
}

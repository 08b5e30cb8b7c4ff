// Package app wires the services together and owns their lifecycle.
package app

import (
	"context"
	"sync"
	"time"

	"gigboard/internal/access"
	"gigboard/internal/admin"
	"gigboard/internal/cleanup"
	"gigboard/internal/config"
	"gigboard/internal/diag"
	"gigboard/internal/gig"
	"gigboard/internal/ratelimit"
	"gigboard/internal/replicate"
	"gigboard/internal/snapshot"
	"gigboard/internal/storage"
	discord "gigboard/internal/transport/discord/adapter"
	"gigboard/internal/transport/discord/router"
	"gigboard/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	store   *storage.Store
	cache   *snapshot.Cache
	adapter *discord.Adapter

	engine *replicate.Engine
	gigs   *gig.Service
	sweep  *cleanup.Scheduler
	checks *diag.Service
	router *router.Router

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewApp(cfgPath, token string) (*App, error) {
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "config"))
	cfgm := config.NewManager(cfgPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging)
	log = log.With(logx.String("comp", "app"))

	ad, err := discord.New(token, logSvc.Logger().With(logx.String("comp", "discord")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	busy, err := cfg.BusyTimeout()
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	cache := snapshot.NewCache(store, logSvc.Logger().With(logx.String("comp", "snapshot")))
	acl := access.New(cfg.Bot.AdminUsers, cfg.Bot.AdminRoles, cache, store,
		logSvc.Logger().With(logx.String("comp", "access")))
	limiter := ratelimit.New(store, cache, cfg.DefaultCooldown(),
		logSvc.Logger().With(logx.String("comp", "ratelimit")))
	engine := replicate.New(replicate.Config{
		RatePerSec: cfg.Replication.RatePerSec,
	}, ad, store, logSvc.Logger().With(logx.String("comp", "replicate")))

	gigs := gig.NewService(gig.Config{
		DefaultExpiry:  cfg.DefaultExpiry(),
		MinDescription: cfg.Gigs.MinDescription,
		MinPay:         cfg.Gigs.MinPay,
	}, store, cache, acl, limiter, engine, ad,
		logSvc.Logger().With(logx.String("comp", "gig")))

	adm := admin.New(store, cache, acl, logSvc.Logger().With(logx.String("comp", "admin")))
	checks := diag.New(cache, ad, logSvc.Logger().With(logx.String("comp", "diag")))
	sweep := cleanup.New(cleanup.Config{Spec: cfg.Cleanup.Spec}, store, engine,
		logSvc.Logger().With(logx.String("comp", "cleanup")))

	rt := router.New(ad.Session(), gigs, adm, checks, sweep,
		logSvc.Logger().With(logx.String("comp", "router")))

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		cache:   cache,
		adapter: ad,
		engine:  engine,
		gigs:    gigs,
		sweep:   sweep,
		checks:  checks,
		router:  rt,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.router.Attach()
	if err := a.adapter.Start(); err != nil {
		cancel()
		return err
	}
	selfID := a.adapter.SelfID()
	a.engine.SetSelfID(selfID)

	// Forward warnings and errors into the configured diagnostics channels.
	a.logs.SetForward(a.adapter, func() []string {
		vctx, vcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer vcancel()
		v, err := a.cache.View(vctx)
		if err != nil {
			return nil
		}
		return v.Diag
	})

	if err := a.router.RegisterCommands(selfID, ""); err != nil {
		a.log.Warn("command registration failed", logx.Err(err))
	}

	a.gigs.RefreshPrompts(runCtx)

	if err := a.sweep.Start(runCtx); err != nil {
		cancel()
		return err
	}

	// Hot reload: re-apply logging on config changes. Everything else in
	// the file is wiring that needs a restart to change safely.
	sub := a.cfgm.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(cfg.Logging)
				a.log.Info("config reloaded")
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("bot started", logx.String("self_id", selfID))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.sweep.Stop()
	if err := a.adapter.Stop(); err != nil {
		a.log.Warn("gateway close", logx.Err(err))
	}
	a.wg.Wait()
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

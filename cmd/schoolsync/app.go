package main

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"schoolsync/internal/config"
	"schoolsync/internal/ics"
	appLog "schoolsync/internal/log"
	"schoolsync/internal/ratelimit"
	"schoolsync/internal/reconcile"
	"schoolsync/internal/schoology"
	"schoolsync/internal/store"
	"schoolsync/internal/syncer"
)

// app holds the long-lived components shared by the subcommands.
type app struct {
	cfg   *config.Config
	store *store.Store

	// Set only when the portal credentials are present.
	client       *schoology.Client
	orchestrator *syncer.Orchestrator

	courses atomic.Pointer[[]int64]
}

// openStore opens the database only. Enough for commands that read stored
// data.
func openStore(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, store: st}
	a.setCourses(cfg.Schoology.CourseIDs)
	return a, nil
}

// openSyncApp opens the database and builds the sync pipeline. Missing
// credentials are fatal here.
func openSyncApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sc := cfg.Schoology
	client, err := schoology.NewClient(schoology.Options{
		BaseURL:      sc.BaseURL,
		Cookie:       sc.Cookie,
		UserID:       sc.UserID,
		CalendarView: sc.CalendarView,
		Timeout:      time.Duration(sc.TimeoutSeconds) * time.Second,
		Limiter:      ratelimit.New(sc.RateLimit, time.Duration(sc.RateWindowSeconds)*time.Second),
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.client = client
	if len(sc.CourseIDs) == 0 {
		appLog.Warn("no course ids configured; only the calendar will be synced")
	}

	rec := reconcile.New(a.store, client.BaseURL())
	a.orchestrator = syncer.New(client, rec, a.store, syncer.Options{
		Lookback:  cfg.Lookback(),
		Lookahead: cfg.Lookahead(),
		CourseIDs: a.courseIDs,
		Recorder:  a.store,
	})
	return a, nil
}

func (a *app) exporter() *ics.Exporter {
	return ics.NewExporter(a.store, ics.Options{
		Lookback:  a.cfg.Lookback(),
		Lookahead: a.cfg.Lookahead(),
		Name:      a.cfg.ICS.Name,
	})
}

func (a *app) courseIDs() []int64 {
	if p := a.courses.Load(); p != nil {
		return slices.Clone(*p)
	}
	return nil
}

func (a *app) setCourses(ids []int64) {
	ids = slices.Clone(ids)
	a.courses.Store(&ids)
}

// applyReload takes the parts of a reloaded config that can change without a
// restart: the course list and the log level.
func (a *app) applyReload(cfg *config.Config) {
	before := a.courseIDs()
	a.setCourses(cfg.Schoology.CourseIDs)
	appLog.SetLevel(appLog.ParseLevel(cfg.Log.Level))
	if !slices.Equal(before, cfg.Schoology.CourseIDs) {
		appLog.Info("course list updated", "before", len(before), "after", len(cfg.Schoology.CourseIDs))
	}
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

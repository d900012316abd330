// Package syncer drives one complete fetch-then-reconcile cycle.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	appLog "schoolsync/internal/log"
	"schoolsync/internal/model"
	"schoolsync/internal/reconcile"
	"schoolsync/internal/store"
)

const (
	DefaultLookback  = 7 * 24 * time.Hour
	DefaultLookahead = 60 * 24 * time.Hour
)

// Fetcher is the upstream side. Fetch failures surface as empty slices.
type Fetcher interface {
	FetchCalendarItems(ctx context.Context, start, end int64) []model.CalendarItem
	FetchCourseMaterials(ctx context.Context, courseID int64) []model.Resource
}

type Reconciler interface {
	UpsertCalendarItems(ctx context.Context, items []model.CalendarItem) (reconcile.Stats, error)
	UpsertResources(ctx context.Context, courseID int64, courseName string, resources []model.Resource) (reconcile.Stats, error)
}

// Catalog resolves display names for configured course ids.
type Catalog interface {
	CourseNameFor(ctx context.Context, courseID int64) (string, error)
}

type RunRecorder interface {
	RecordSyncRun(ctx context.Context, run model.SyncRun) error
}

type Options struct {
	Lookback  time.Duration
	Lookahead time.Duration
	// CourseIDs is read at the start of every cycle.
	CourseIDs func() []int64
	// Recorder is optional.
	Recorder RunRecorder
}

// Result is the outcome of one cycle.
type Result struct {
	RunID          string    `json:"run_id"`
	OK             bool      `json:"ok"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	CalendarItems  int       `json:"calendar_items"`
	Resources      int       `json:"resources"`
	CoursesSynced  int       `json:"courses_synced"`
	CoursesSkipped int       `json:"courses_skipped"`
}

type Orchestrator struct {
	fetcher    Fetcher
	reconciler Reconciler
	catalog    Catalog
	opts       Options

	now func() time.Time
}

func New(f Fetcher, r Reconciler, c Catalog, opts Options) *Orchestrator {
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.CourseIDs == nil {
		opts.CourseIDs = func() []int64 { return nil }
	}
	return &Orchestrator{
		fetcher:    f,
		reconciler: r,
		catalog:    c,
		opts:       opts,
		now:        time.Now,
	}
}

// RunCycle performs one sync. It never panics and never returns an error:
// the outcome is reported in Result.
//
// Fetch failures degrade to "nothing fetched" and leave OK set. Reconcile
// failures roll back their own source, let the remaining sources proceed,
// and clear OK.
func (o *Orchestrator) RunCycle(ctx context.Context) (res Result) {
	res = Result{RunID: uuid.NewString(), StartedAt: o.now().UTC()}
	appLog.Info("sync cycle start", "run_id", res.RunID)

	defer func() {
		if p := recover(); p != nil {
			appLog.Error("sync cycle panic", fmt.Errorf("%v", p), "run_id", res.RunID, "stack", string(debug.Stack()))
			res.OK = false
			res.Error = fmt.Sprintf("panic: %v", p)
		}
		res.FinishedAt = o.now().UTC()
		o.record(ctx, res)
		appLog.Info("sync cycle finished", "run_id", res.RunID, "ok", res.OK,
			"calendar_items", res.CalendarItems, "resources", res.Resources,
			"courses_synced", res.CoursesSynced, "courses_skipped", res.CoursesSkipped,
			"duration", res.FinishedAt.Sub(res.StartedAt).String())
	}()

	var errs []error
	if err := o.syncCalendar(ctx, &res); err != nil {
		errs = append(errs, fmt.Errorf("calendar: %w", err))
	}
	for _, courseID := range o.opts.CourseIDs() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := o.syncCourse(ctx, courseID, &res); err != nil {
			errs = append(errs, fmt.Errorf("course %d: %w", courseID, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	return res
}

func (o *Orchestrator) syncCalendar(ctx context.Context, res *Result) error {
	now := o.now().UTC()
	start := now.Add(-o.opts.Lookback).Unix()
	end := now.Add(o.opts.Lookahead).Unix()

	items := o.fetcher.FetchCalendarItems(ctx, start, end)
	if len(items) == 0 {
		appLog.Info("calendar returned no items", "start", start, "end", end)
		return nil
	}

	if _, err := o.reconciler.UpsertCalendarItems(ctx, items); err != nil {
		appLog.Error("calendar reconcile failed", err, "item_count", len(items))
		return err
	}
	res.CalendarItems = len(items)
	return nil
}

// syncCourse isolates one course: errors and panics stay inside it.
func (o *Orchestrator) syncCourse(ctx context.Context, courseID int64, res *Result) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			appLog.Error("course sync panic", err, "course_id", courseID, "stack", string(debug.Stack()))
		}
	}()

	name, err := o.catalog.CourseNameFor(ctx, courseID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && name == "") {
		appLog.Warn("course skipped, no known course name yet", "course_id", courseID)
		res.CoursesSkipped++
		return nil
	}
	if err != nil {
		appLog.Error("course name lookup failed", err, "course_id", courseID)
		return err
	}

	resources := o.fetcher.FetchCourseMaterials(ctx, courseID)
	if len(resources) == 0 {
		appLog.Info("course returned no materials", "course_id", courseID, "course_name", name)
		res.CoursesSynced++
		return nil
	}

	if _, err := o.reconciler.UpsertResources(ctx, courseID, name, resources); err != nil {
		appLog.Error("materials reconcile failed", err, "course_id", courseID, "resource_count", len(resources))
		return err
	}
	res.Resources += len(resources)
	res.CoursesSynced++
	return nil
}

// record writes the SyncRun row. A recording failure is logged only.
func (o *Orchestrator) record(ctx context.Context, res Result) {
	if o.opts.Recorder == nil {
		return
	}
	run := model.SyncRun{
		ID:            res.RunID,
		StartedAt:     res.StartedAt,
		FinishedAt:    res.FinishedAt,
		OK:            res.OK,
		Error:         res.Error,
		CalendarItems: res.CalendarItems,
		Resources:     res.Resources,
	}
	// The cycle context may already be canceled on shutdown.
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.opts.Recorder.RecordSyncRun(recCtx, run); err != nil {
		appLog.Error("record sync run failed", err, "run_id", res.RunID)
	}
}

package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolsync/internal/model"
	"schoolsync/internal/reconcile"
	"schoolsync/internal/store"
)

var fixedNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	calendar    []model.CalendarItem
	materials   map[int64][]model.Resource
	panicCourse int64

	calStart, calEnd int64
	courseCalls      []int64
}

func (f *fakeFetcher) FetchCalendarItems(_ context.Context, start, end int64) []model.CalendarItem {
	f.calStart, f.calEnd = start, end
	return f.calendar
}

func (f *fakeFetcher) FetchCourseMaterials(_ context.Context, courseID int64) []model.Resource {
	f.courseCalls = append(f.courseCalls, courseID)
	if courseID == f.panicCourse {
		panic("parser exploded")
	}
	return f.materials[courseID]
}

type fakeReconciler struct {
	calendarErr error
	resourceErr map[int64]error

	calendarBatches int
	resources       map[int64][]model.Resource
	names           map[int64]string
}

func (r *fakeReconciler) UpsertCalendarItems(_ context.Context, items []model.CalendarItem) (reconcile.Stats, error) {
	r.calendarBatches++
	if r.calendarErr != nil {
		return reconcile.Stats{}, r.calendarErr
	}
	return reconcile.Stats{Assignments: len(items)}, nil
}

func (r *fakeReconciler) UpsertResources(_ context.Context, courseID int64, name string, res []model.Resource) (reconcile.Stats, error) {
	if err := r.resourceErr[courseID]; err != nil {
		return reconcile.Stats{}, err
	}
	if r.resources == nil {
		r.resources = map[int64][]model.Resource{}
		r.names = map[int64]string{}
	}
	r.resources[courseID] = res
	r.names[courseID] = name
	return reconcile.Stats{Resources: len(res)}, nil
}

type fakeCatalog map[int64]string

func (c fakeCatalog) CourseNameFor(_ context.Context, id int64) (string, error) {
	name, ok := c[id]
	if !ok {
		return "", store.ErrNotFound
	}
	return name, nil
}

type fakeRecorder struct {
	runs []model.SyncRun
	err  error
}

func (r *fakeRecorder) RecordSyncRun(_ context.Context, run model.SyncRun) error {
	r.runs = append(r.runs, run)
	return r.err
}

func newOrchestrator(f *fakeFetcher, r *fakeReconciler, c fakeCatalog, courses []int64, rec *fakeRecorder) *Orchestrator {
	opts := Options{CourseIDs: func() []int64 { return courses }}
	if rec != nil {
		opts.Recorder = rec
	}
	o := New(f, r, c, opts)
	o.now = func() time.Time { return fixedNow }
	return o
}

func TestRunCycleHappyPath(t *testing.T) {
	f := &fakeFetcher{
		calendar: []model.CalendarItem{{ID: 1, Kind: model.KindAssignment}, {ID: 2}},
		materials: map[int64][]model.Resource{
			10: {{SchoologyID: 100}, {SchoologyID: 101}},
			20: {{SchoologyID: 200}},
		},
	}
	r := &fakeReconciler{}
	rec := &fakeRecorder{}
	o := newOrchestrator(f, r, fakeCatalog{10: "Chemistry", 20: "Biology"}, []int64{10, 20}, rec)

	res := o.RunCycle(context.Background())
	assert.True(t, res.OK)
	assert.Empty(t, res.Error)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.CalendarItems)
	assert.Equal(t, 3, res.Resources)
	assert.Equal(t, 2, res.CoursesSynced)

	assert.Equal(t, fixedNow.Add(-7*24*time.Hour).Unix(), f.calStart)
	assert.Equal(t, fixedNow.Add(60*24*time.Hour).Unix(), f.calEnd)
	assert.Equal(t, "Chemistry", r.names[10])
	assert.Equal(t, "Biology", r.names[20])

	require.Len(t, rec.runs, 1)
	assert.Equal(t, res.RunID, rec.runs[0].ID)
	assert.True(t, rec.runs[0].OK)
}

func TestRunCycleEmptyCalendarIsNotAnError(t *testing.T) {
	f := &fakeFetcher{}
	r := &fakeReconciler{}
	o := newOrchestrator(f, r, fakeCatalog{}, nil, nil)

	res := o.RunCycle(context.Background())
	assert.True(t, res.OK)
	assert.Zero(t, r.calendarBatches)
}

func TestRunCycleSkipsCourseWithoutName(t *testing.T) {
	f := &fakeFetcher{materials: map[int64][]model.Resource{10: {{SchoologyID: 1}}, 20: {{SchoologyID: 2}}}}
	r := &fakeReconciler{}
	o := newOrchestrator(f, r, fakeCatalog{20: "Biology"}, []int64{10, 20}, nil)

	res := o.RunCycle(context.Background())
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.CoursesSkipped)
	assert.Equal(t, 1, res.CoursesSynced)
	assert.Equal(t, []int64{20}, f.courseCalls, "materials are not fetched for unnamed courses")
}

func TestRunCycleIsolatesCourseFailures(t *testing.T) {
	f := &fakeFetcher{
		materials: map[int64][]model.Resource{
			10: {{SchoologyID: 1}},
			20: {{SchoologyID: 2}},
			30: {{SchoologyID: 3}},
		},
		panicCourse: 20,
	}
	r := &fakeReconciler{resourceErr: map[int64]error{10: errors.New("disk full")}}
	o := newOrchestrator(f, r, fakeCatalog{10: "A", 20: "B", 30: "C"}, []int64{10, 20, 30}, nil)

	res := o.RunCycle(context.Background())
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "course 10: disk full")
	assert.Contains(t, res.Error, "course 20: panic: parser exploded")

	assert.Equal(t, []int64{10, 20, 30}, f.courseCalls)
	require.Contains(t, r.resources, int64(30))
	assert.Equal(t, 1, res.Resources)
	assert.Equal(t, 1, res.CoursesSynced)
}

func TestRunCycleCalendarFailureStillSyncsCourses(t *testing.T) {
	f := &fakeFetcher{
		calendar:  []model.CalendarItem{{ID: 1}},
		materials: map[int64][]model.Resource{10: {{SchoologyID: 1}}},
	}
	r := &fakeReconciler{calendarErr: errors.New("constraint failed")}
	rec := &fakeRecorder{}
	o := newOrchestrator(f, r, fakeCatalog{10: "A"}, []int64{10}, rec)

	res := o.RunCycle(context.Background())
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "calendar: constraint failed")
	assert.Zero(t, res.CalendarItems)
	assert.Equal(t, 1, res.Resources)

	require.Len(t, rec.runs, 1)
	assert.False(t, rec.runs[0].OK)
}

type panickyCatalog struct{}

func (panickyCatalog) CourseNameFor(context.Context, int64) (string, error) {
	panic("catalog gone")
}

func TestRunCycleRecoversEscapingPanic(t *testing.T) {
	f := &fakeFetcher{calendar: []model.CalendarItem{{ID: 1}}}
	r := &fakeReconciler{}
	o := New(f, r, panickyCatalog{}, Options{CourseIDs: func() []int64 { panic("config gone") }})

	var res Result
	assert.NotPanics(t, func() { res = o.RunCycle(context.Background()) })
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "config gone")
	assert.False(t, res.FinishedAt.IsZero())
}

func TestRunCycleRecorderFailureIsIgnored(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("read-only database")}
	o := newOrchestrator(&fakeFetcher{}, &fakeReconciler{}, fakeCatalog{}, nil, rec)

	res := o.RunCycle(context.Background())
	assert.True(t, res.OK)
	assert.Len(t, rec.runs, 1)
}

func TestRunCycleReadsCourseIDsEachCycle(t *testing.T) {
	f := &fakeFetcher{materials: map[int64][]model.Resource{}}
	courses := []int64{10}
	o := New(f, &fakeReconciler{}, fakeCatalog{10: "A", 20: "B"}, Options{CourseIDs: func() []int64 { return courses }})

	o.RunCycle(context.Background())
	courses = []int64{20}
	o.RunCycle(context.Background())

	assert.Equal(t, []int64{10, 20}, f.courseCalls)
}

func TestRunCycleWithRealStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	defer s.Close()

	rec := reconcile.New(s, "https://classes.example.org")
	f := &fakeFetcher{
		calendar: []model.CalendarItem{{
			ID: 101, Type: "assignment", Kind: model.KindAssignment, TitleHTML: "Lab",
			StartRaw: "2025-03-20 23:59:00", CourseRealmID: 10, CourseName: "Chemistry",
		}},
		materials: map[int64][]model.Resource{10: {{SchoologyID: 7001, Title: "Worksheet", URL: "u", Type: model.ResourceFile}}},
	}
	o := New(f, rec, s, Options{CourseIDs: func() []int64 { return []int64{10} }, Recorder: s})

	res := o.RunCycle(ctx)
	require.True(t, res.OK, res.Error)

	list, err := s.ResourcesByCourseName(ctx, "chemistry")
	require.NoError(t, err)
	require.Len(t, list, 1)

	last, err := s.LatestSyncRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, last.ID)
	assert.True(t, last.OK)
}

// Package ics renders the stored assignments and events as an iCalendar
// feed that calendar apps can subscribe to.
package ics

import (
	"context"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "schoolsync/internal/log"
	"schoolsync/internal/model"
	"schoolsync/internal/syncer"
)

const (
	// exportLimit bounds the assignment query; the store defaults to 50
	// otherwise, which is too few for a two month feed.
	exportLimit = 2000

	uidDomain = "schoolsync"
)

// Source is the read side the export needs.
type Source interface {
	UpcomingAssignments(ctx context.Context, from, to time.Time, limit int, openOnly bool) ([]model.Assignment, error)
	EventsBetween(ctx context.Context, from, to time.Time) ([]model.Event, error)
}

type Options struct {
	Lookback  time.Duration
	Lookahead time.Duration
	// Name is shown by clients as the calendar title.
	Name string
	Now  func() time.Time
}

// Exporter builds PUBLISH calendars from the store.
type Exporter struct {
	src  Source
	opts Options
}

func NewExporter(src Source, opts Options) *Exporter {
	if opts.Lookback <= 0 {
		opts.Lookback = syncer.DefaultLookback
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = syncer.DefaultLookahead
	}
	if opts.Name == "" {
		opts.Name = "Schoology"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Exporter{src: src, opts: opts}
}

// Export queries the fetch window around now and returns the calendar.
// Only open assignments with a due date are included.
func (e *Exporter) Export(ctx context.Context) (*ical.Calendar, error) {
	now := e.opts.Now().UTC()
	from, to := now.Add(-e.opts.Lookback), now.Add(e.opts.Lookahead)

	assignments, err := e.src.UpcomingAssignments(ctx, from, to, exportLimit, true)
	if err != nil {
		return nil, fmt.Errorf("export assignments: %w", err)
	}
	events, err := e.src.EventsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("export events: %w", err)
	}

	appLog.Debug("ics export",
		"assignments", len(assignments),
		"events", len(events),
		"range_start", from.Format(time.RFC3339),
		"range_end", to.Format(time.RFC3339),
	)
	return Build(e.opts.Name, now, assignments, events), nil
}

// Render is Export serialized to text/calendar bytes.
func (e *Exporter) Render(ctx context.Context) ([]byte, error) {
	cal, err := e.Export(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(cal.Serialize()), nil
}

// Build converts rows into VEVENTs. stamp becomes every DTSTAMP so the same
// rows always serialize identically for a given stamp.
func Build(name string, stamp time.Time, assignments []model.Assignment, events []model.Event) *ical.Calendar {
	cal := ical.NewCalendarFor(uidDomain)
	cal.SetMethod(ical.MethodPublish)
	cal.SetName(name)
	cal.SetXWRCalName(name)
	cal.SetXWRTimezone("UTC")

	for _, a := range assignments {
		if a.DueAt == nil {
			continue
		}
		ev := cal.AddEvent(AssignmentUID(a.ID))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(*a.DueAt)
		ev.SetSummary(assignmentSummary(a))
		if a.URL != "" {
			ev.SetURL(a.URL)
		}
		if a.CourseName != "" {
			ev.SetDescription(a.CourseName)
		}
		ev.AddCategory("assignment")
		ev.SetTimeTransparency(ical.TransparencyTransparent)
	}

	for _, e := range events {
		ev := cal.AddEvent(EventUID(e.ID))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(e.Start)
		if e.End != nil && e.End.After(e.Start) {
			ev.SetEndAt(*e.End)
		}
		ev.SetSummary(e.Title)
		if e.Source != "" {
			ev.SetDescription(e.Source)
		}
		ev.AddCategory("event")
	}
	return cal
}

func AssignmentUID(id int64) string {
	return fmt.Sprintf("assignment-%d@%s", id, uidDomain)
}

func EventUID(id int64) string {
	return fmt.Sprintf("event-%d@%s", id, uidDomain)
}

func assignmentSummary(a model.Assignment) string {
	course := strings.TrimSpace(a.CourseName)
	if course == "" {
		return a.Title
	}
	return "[" + course + "] " + a.Title
}

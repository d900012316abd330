// Package reconcile folds scraped calendar items and course materials into
// the store, preserving identity: an upstream id maps to exactly one row.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "schoolsync/internal/log"
	"schoolsync/internal/model"
	"schoolsync/internal/schoology"
	"schoolsync/internal/store"
)

const unknownSource = "Unknown Source"

// TxRunner opens store transactions. *store.Store satisfies it.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *store.Tx) error) error
}

// Stats summarizes one upsert batch.
type Stats struct {
	Assignments int
	Events      int
	Resources   int
	Inserted    int
	Updated     int
	Skipped     int
}

type Reconciler struct {
	db      TxRunner
	baseURL string

	// Now stamps last-seen times. Defaults to time.Now.
	Now func() time.Time
}

func New(db TxRunner, baseURL string) *Reconciler {
	return &Reconciler{db: db, baseURL: baseURL, Now: time.Now}
}

func (r *Reconciler) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC().Truncate(time.Second)
	}
	return r.Now().UTC().Truncate(time.Second)
}

// UpsertCalendarItems writes the whole batch in one transaction. Any error
// rolls back every item of the batch.
//
// Rows that disappear upstream are left alone; only last-seen is bumped for
// rows that are observed.
func (r *Reconciler) UpsertCalendarItems(ctx context.Context, items []model.CalendarItem) (Stats, error) {
	var st Stats
	seenAt := r.now()

	err := r.db.WithTx(ctx, func(tx *store.Tx) error {
		for _, item := range items {
			if item.ID <= 0 {
				return fmt.Errorf("calendar item has invalid id %d", item.ID)
			}

			var (
				inserted bool
				err      error
			)
			switch item.Kind {
			case model.KindAssignment:
				inserted, err = r.upsertAssignment(ctx, tx, item, seenAt)
				st.Assignments++
			case model.KindEvent:
				var ok bool
				ok, inserted, err = r.upsertEvent(ctx, tx, item)
				if err == nil && !ok {
					st.Skipped++
					continue
				}
				st.Events++
			default:
				err = fmt.Errorf("calendar item %d has unknown kind %d", item.ID, item.Kind)
			}
			if err != nil {
				return err
			}
			if inserted {
				st.Inserted++
			} else {
				st.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	appLog.Info("calendar items reconciled",
		"assignments", st.Assignments, "events", st.Events,
		"inserted", st.Inserted, "updated", st.Updated, "skipped", st.Skipped)
	return st, nil
}

func (r *Reconciler) upsertAssignment(ctx context.Context, tx *store.Tx, item model.CalendarItem, seenAt time.Time) (bool, error) {
	title := schoology.CleanTitle(item.TitleHTML)
	url := schoology.AssignmentURL(r.baseURL, item)

	var due *time.Time
	if item.StartRaw != "" {
		t, err := schoology.ParseUpstreamTime(item.StartRaw)
		if err != nil {
			appLog.Warn("assignment due date unparseable", "id", item.ID, "reason", err.Error())
		} else {
			due = &t
		}
	}

	existing, err := tx.GetAssignment(ctx, item.ID)
	if errors.Is(err, store.ErrNotFound) {
		return true, tx.InsertAssignment(ctx, model.Assignment{
			ID:         item.ID,
			CourseID:   item.CourseRealmID,
			CourseName: item.CourseName,
			Title:      title,
			DueAt:      due,
			URL:        url,
			Status:     model.StatusOpen,
			LastSeenAt: seenAt,
		})
	}
	if err != nil {
		return false, err
	}

	// Status belongs to the user once the row exists.
	existing.Title = title
	existing.DueAt = due
	existing.URL = url
	existing.LastSeenAt = seenAt
	if item.CourseName != "" {
		existing.CourseName = item.CourseName
	}
	if item.CourseRealmID != 0 {
		existing.CourseID = item.CourseRealmID
	}
	return false, tx.UpdateAssignment(ctx, existing)
}

// upsertEvent reports ok=false for events without a usable start time; those
// are skipped rather than failing the batch.
func (r *Reconciler) upsertEvent(ctx context.Context, tx *store.Tx, item model.CalendarItem) (ok, inserted bool, err error) {
	start, err := schoology.ParseUpstreamTime(item.StartRaw)
	if err != nil {
		appLog.Warn("event skipped", "id", item.ID, "reason", err.Error())
		return false, false, nil
	}

	ev := model.Event{
		ID:     item.ID,
		Title:  schoology.CleanTitle(item.TitleHTML),
		Start:  start,
		Source: item.CourseName,
	}
	if ev.Source == "" {
		ev.Source = unknownSource
	}
	if item.HasEnd {
		if end, err := schoology.ParseUpstreamTime(item.EndRaw); err == nil {
			ev.End = &end
		} else {
			appLog.Warn("event end unparseable", "id", item.ID, "reason", err.Error())
		}
	}

	_, err = tx.GetEvent(ctx, item.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return true, true, tx.InsertEvent(ctx, ev)
	case err != nil:
		return false, false, err
	default:
		return true, false, tx.UpdateEvent(ctx, ev)
	}
}

// UpsertResources writes one course's materials in one transaction, keyed by
// SchoologyID. courseID and courseName are stamped onto every row.
func (r *Reconciler) UpsertResources(ctx context.Context, courseID int64, courseName string, resources []model.Resource) (Stats, error) {
	var st Stats

	err := r.db.WithTx(ctx, func(tx *store.Tx) error {
		for _, res := range resources {
			if res.SchoologyID <= 0 {
				return fmt.Errorf("resource has invalid id %d", res.SchoologyID)
			}
			_, err := tx.GetResource(ctx, res.SchoologyID)
			switch {
			case errors.Is(err, store.ErrNotFound):
				st.Inserted++
			case err != nil:
				return err
			default:
				st.Updated++
			}

			res.CourseID = courseID
			res.CourseName = courseName
			if err := tx.UpsertResource(ctx, res); err != nil {
				return err
			}
			st.Resources++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	appLog.Info("resources reconciled", "course_id", courseID,
		"resources", st.Resources, "inserted", st.Inserted, "updated", st.Updated)
	return st, nil
}

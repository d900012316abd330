package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"schoolsync/internal/model"
)

func (q *Queries) RecordSyncRun(ctx context.Context, run model.SyncRun) error {
	ok := 0
	if run.OK {
		ok = 1
	}
	_, err := q.exec(ctx,
		`INSERT INTO sync_runs (id, started_at, finished_at, ok, error, calendar_items, resources)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), ok, run.Error, run.CalendarItems, run.Resources)
	if err != nil {
		return fmt.Errorf("record sync run %s: %w", run.ID, err)
	}
	return nil
}

// LatestSyncRun returns the most recently started run, or ErrNotFound.
func (q *Queries) LatestSyncRun(ctx context.Context) (model.SyncRun, error) {
	var (
		run             model.SyncRun
		started, finish string
		ok              int
	)
	err := q.queryRow(ctx,
		`SELECT id, started_at, finished_at, ok, error, calendar_items, resources
		FROM sync_runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&run.ID, &started, &finish, &ok, &run.Error, &run.CalendarItems, &run.Resources)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncRun{}, ErrNotFound
	}
	if err != nil {
		return model.SyncRun{}, fmt.Errorf("latest sync run: %w", err)
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return model.SyncRun{}, err
	}
	if run.FinishedAt, err = parseTime(finish); err != nil {
		return model.SyncRun{}, err
	}
	run.OK = ok != 0
	return run, nil
}

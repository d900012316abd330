package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"schoolsync/internal/model"
)

const eventColumns = `id, title, start_at, end_at, source`

func scanEvent(row rowScanner) (model.Event, error) {
	var (
		e     model.Event
		start string
		end   sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Title, &start, &end, &e.Source); err != nil {
		return model.Event{}, err
	}
	var err error
	if e.Start, err = parseTime(start); err != nil {
		return model.Event{}, err
	}
	if e.End, err = parseNullTime(end); err != nil {
		return model.Event{}, err
	}
	return e, nil
}

func (q *Queries) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	e, err := scanEvent(q.queryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("get event %d: %w", id, err)
	}
	return e, nil
}

func (q *Queries) InsertEvent(ctx context.Context, e model.Event) error {
	_, err := q.exec(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Title, formatTime(e.Start), formatTimePtr(e.End), e.Source)
	if err != nil {
		return fmt.Errorf("insert event %d: %w", e.ID, err)
	}
	return nil
}

func (q *Queries) UpdateEvent(ctx context.Context, e model.Event) error {
	res, err := q.exec(ctx,
		`UPDATE events SET title = ?, start_at = ?, end_at = ?, source = ? WHERE id = ?`,
		e.Title, formatTime(e.Start), formatTimePtr(e.End), e.Source, e.ID)
	if err != nil {
		return fmt.Errorf("update event %d: %w", e.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// EventsBetween lists events starting in [from, to], earliest first.
func (q *Queries) EventsBetween(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	rows, err := q.query(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE start_at >= ? AND start_at <= ?
		ORDER BY start_at ASC, id ASC`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("events between: %w", err)
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("events between: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

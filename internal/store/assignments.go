package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"schoolsync/internal/model"
)

const assignmentColumns = `id, course_id, course_name, title, due_at, url, status, last_seen_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (model.Assignment, error) {
	var (
		a        model.Assignment
		due      sql.NullString
		lastSeen string
	)
	if err := row.Scan(&a.ID, &a.CourseID, &a.CourseName, &a.Title, &due, &a.URL, &a.Status, &lastSeen); err != nil {
		return model.Assignment{}, err
	}
	var err error
	if a.DueAt, err = parseNullTime(due); err != nil {
		return model.Assignment{}, err
	}
	if a.LastSeenAt, err = parseTime(lastSeen); err != nil {
		return model.Assignment{}, err
	}
	return a, nil
}

// GetAssignment returns ErrNotFound when no row has this id.
func (q *Queries) GetAssignment(ctx context.Context, id int64) (model.Assignment, error) {
	row := q.queryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, ErrNotFound
	}
	if err != nil {
		return model.Assignment{}, fmt.Errorf("get assignment %d: %w", id, err)
	}
	return a, nil
}

func (q *Queries) InsertAssignment(ctx context.Context, a model.Assignment) error {
	status := a.Status
	if status == "" {
		status = model.StatusOpen
	}
	_, err := q.exec(ctx,
		`INSERT INTO assignments (`+assignmentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CourseID, a.CourseName, a.Title, formatTimePtr(a.DueAt), a.URL, status, formatTime(a.LastSeenAt))
	if err != nil {
		return fmt.Errorf("insert assignment %d: %w", a.ID, err)
	}
	return nil
}

// UpdateAssignment overwrites every column except the id.
func (q *Queries) UpdateAssignment(ctx context.Context, a model.Assignment) error {
	res, err := q.exec(ctx,
		`UPDATE assignments
		SET course_id = ?, course_name = ?, title = ?, due_at = ?, url = ?, status = ?, last_seen_at = ?
		WHERE id = ?`,
		a.CourseID, a.CourseName, a.Title, formatTimePtr(a.DueAt), a.URL, a.Status, formatTime(a.LastSeenAt), a.ID)
	if err != nil {
		return fmt.Errorf("update assignment %d: %w", a.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpcomingAssignments lists assignments due in [from, to], earliest first.
func (q *Queries) UpcomingAssignments(ctx context.Context, from, to time.Time, limit int, openOnly bool) ([]model.Assignment, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + assignmentColumns + ` FROM assignments
		WHERE due_at IS NOT NULL AND due_at >= ? AND due_at <= ?`
	args := []any{formatTime(from), formatTime(to)}
	if openOnly {
		query += ` AND status = ?`
		args = append(args, model.StatusOpen)
	}
	query += ` ORDER BY due_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("upcoming assignments: %w", err)
	}
	defer rows.Close()

	out := make([]model.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("upcoming assignments: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CourseNameFor resolves a course id to the most recently seen course name
// among stored assignments.
func (q *Queries) CourseNameFor(ctx context.Context, courseID int64) (string, error) {
	var name string
	err := q.queryRow(ctx,
		`SELECT course_name FROM assignments
		WHERE course_id = ? AND course_name <> ''
		ORDER BY last_seen_at DESC LIMIT 1`, courseID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("course name for %d: %w", courseID, err)
	}
	return name, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"schoolsync/internal/model"
)

const resourceColumns = `schoology_id, course_id, course_name, title, url, type, parent_folder`

func scanResource(row rowScanner) (model.Resource, error) {
	var (
		r      model.Resource
		typ    string
		folder sql.NullString
	)
	if err := row.Scan(&r.SchoologyID, &r.CourseID, &r.CourseName, &r.Title, &r.URL, &typ, &folder); err != nil {
		return model.Resource{}, err
	}
	r.Type = model.ResourceType(typ)
	if folder.Valid {
		f := folder.String
		r.ParentFolder = &f
	}
	return r, nil
}

func (q *Queries) GetResource(ctx context.Context, schoologyID int64) (model.Resource, error) {
	r, err := scanResource(q.queryRow(ctx,
		`SELECT `+resourceColumns+` FROM resources WHERE schoology_id = ?`, schoologyID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Resource{}, ErrNotFound
	}
	if err != nil {
		return model.Resource{}, fmt.Errorf("get resource %d: %w", schoologyID, err)
	}
	return r, nil
}

// UpsertResource inserts the row or overwrites the existing one with the
// same SchoologyID.
func (q *Queries) UpsertResource(ctx context.Context, r model.Resource) error {
	_, err := q.exec(ctx,
		`INSERT INTO resources (`+resourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (schoology_id) DO UPDATE SET
			course_id = excluded.course_id,
			course_name = excluded.course_name,
			title = excluded.title,
			url = excluded.url,
			type = excluded.type,
			parent_folder = excluded.parent_folder`,
		r.SchoologyID, r.CourseID, r.CourseName, r.Title, r.URL, string(r.Type), nullString(r.ParentFolder))
	if err != nil {
		return fmt.Errorf("upsert resource %d: %w", r.SchoologyID, err)
	}
	return nil
}

// ResourcesByCourseName matches the course name case-insensitively. Rows are
// ordered by folder (unfiled first), then title.
func (q *Queries) ResourcesByCourseName(ctx context.Context, courseName string) ([]model.Resource, error) {
	rows, err := q.query(ctx,
		`SELECT `+resourceColumns+` FROM resources
		WHERE LOWER(course_name) = LOWER(?)
		ORDER BY COALESCE(parent_folder, ''), title, schoology_id`, courseName)
	if err != nil {
		return nil, fmt.Errorf("resources for %q: %w", courseName, err)
	}
	defer rows.Close()

	out := make([]model.Resource, 0)
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("resources for %q: %w", courseName, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

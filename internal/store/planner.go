package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"schoolsync/internal/model"
)

const plannerColumns = `id, title, due_at, origin, schoology_assignment_id, column_name, priority`

func scanPlannerTask(row rowScanner) (model.PlannerTask, error) {
	var (
		t      model.PlannerTask
		due    sql.NullString
		linked sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Title, &due, &t.Origin, &linked, &t.Column, &t.Priority); err != nil {
		return model.PlannerTask{}, err
	}
	var err error
	if t.DueAt, err = parseNullTime(due); err != nil {
		return model.PlannerTask{}, err
	}
	if linked.Valid {
		id := linked.Int64
		t.SchoologyAssignmentID = &id
	}
	return t, nil
}

// AddPlannerTask stores t and returns it with the assigned id and defaults
// filled in.
func (q *Queries) AddPlannerTask(ctx context.Context, t model.PlannerTask) (model.PlannerTask, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" {
		return model.PlannerTask{}, errors.New("planner task title is required")
	}
	if t.Column == "" {
		t.Column = model.ColumnTodo
	}
	if !model.ValidColumn(t.Column) {
		return model.PlannerTask{}, fmt.Errorf("unknown planner column %q", t.Column)
	}
	if t.Origin == "" {
		t.Origin = model.OriginPersonal
		if t.SchoologyAssignmentID != nil {
			t.Origin = model.OriginSchoology
		}
	}

	var linked any
	if t.SchoologyAssignmentID != nil {
		linked = *t.SchoologyAssignmentID
	}

	err := q.queryRow(ctx,
		`INSERT INTO planner_tasks (title, due_at, origin, schoology_assignment_id, column_name, priority)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		t.Title, formatTimePtr(t.DueAt), t.Origin, linked, t.Column, t.Priority).Scan(&t.ID)
	if err != nil {
		return model.PlannerTask{}, fmt.Errorf("add planner task: %w", err)
	}
	return t, nil
}

func (q *Queries) GetPlannerTask(ctx context.Context, id int64) (model.PlannerTask, error) {
	t, err := scanPlannerTask(q.queryRow(ctx,
		`SELECT `+plannerColumns+` FROM planner_tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlannerTask{}, ErrNotFound
	}
	if err != nil {
		return model.PlannerTask{}, fmt.Errorf("get planner task %d: %w", id, err)
	}
	return t, nil
}

// ListPlannerTasks returns the tasks of one column, or all when column is
// empty. Higher priority first, then earliest due; undated tasks last.
func (q *Queries) ListPlannerTasks(ctx context.Context, column string) ([]model.PlannerTask, error) {
	query := `SELECT ` + plannerColumns + ` FROM planner_tasks`
	var args []any
	if column != "" {
		if !model.ValidColumn(column) {
			return nil, fmt.Errorf("unknown planner column %q", column)
		}
		query += ` WHERE column_name = ?`
		args = append(args, column)
	}
	query += ` ORDER BY priority DESC, due_at IS NULL, due_at ASC, id ASC`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list planner tasks: %w", err)
	}
	defer rows.Close()

	out := make([]model.PlannerTask, 0)
	for rows.Next() {
		t, err := scanPlannerTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list planner tasks: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MovePlannerTask changes the board column of a task.
func (q *Queries) MovePlannerTask(ctx context.Context, id int64, column string) error {
	if !model.ValidColumn(column) {
		return fmt.Errorf("unknown planner column %q", column)
	}
	res, err := q.exec(ctx, `UPDATE planner_tasks SET column_name = ? WHERE id = ?`, column, id)
	if err != nil {
		return fmt.Errorf("move planner task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("move planner task %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

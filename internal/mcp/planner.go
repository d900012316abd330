package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"schoolsync/internal/model"
	"schoolsync/internal/store"
)

var dueParser = newDueParser()

func newDueParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseDue accepts RFC 3339, a bare date, or English phrases relative to now.
// An empty string means no due date.
func parseDue(raw string, now time.Time) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
		return &t, nil
	}

	r, err := dueParser.Parse(raw, now)
	if err != nil {
		return nil, fmt.Errorf("parse due %q: %w", raw, err)
	}
	if r == nil {
		return nil, fmt.Errorf("could not understand due date %q", raw)
	}
	t := r.Time.UTC()
	return &t, nil
}

type plannerTaskView struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	DueAt        *string `json:"dueAt"`
	Origin       string  `json:"origin"`
	AssignmentID *int64  `json:"assignmentId,omitempty"`
	Column       string  `json:"column"`
	Priority     int     `json:"priority"`
}

func viewTask(t model.PlannerTask) plannerTaskView {
	v := plannerTaskView{
		ID:           t.ID,
		Title:        t.Title,
		Origin:       t.Origin,
		AssignmentID: t.SchoologyAssignmentID,
		Column:       t.Column,
		Priority:     t.Priority,
	}
	if t.DueAt != nil {
		s := t.DueAt.UTC().Format(time.RFC3339)
		v.DueAt = &s
	}
	return v
}

func describeTask(t model.PlannerTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d [%s] %s", t.ID, t.Column, t.Title)
	if t.DueAt != nil {
		fmt.Fprintf(&b, " (due %s)", t.DueAt.UTC().Format(dueDisplayLayout))
	}
	if t.Priority != 0 {
		fmt.Fprintf(&b, " priority %d", t.Priority)
	}
	return b.String()
}

type plannerAddArgs struct {
	Title        string `json:"title"`
	Due          string `json:"due"`
	Priority     int    `json:"priority"`
	AssignmentID *int64 `json:"assignment_id"`
}

func (s *Server) plannerAddTool(ctx context.Context, raw json.RawMessage) (*ToolResult, error) {
	var args plannerAddArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Title) == "" {
		return nil, invalidParams("title is required")
	}

	due, err := parseDue(args.Due, s.now().UTC())
	if err != nil {
		return nil, invalidParams("%v", err)
	}

	task, err := s.store.AddPlannerTask(ctx, model.PlannerTask{
		Title:                 args.Title,
		DueAt:                 due,
		SchoologyAssignmentID: args.AssignmentID,
		Priority:              args.Priority,
	})
	if err != nil {
		return nil, err
	}

	res := textResult("Added " + describeTask(task))
	res.StructuredContent = map[string]any{"task": viewTask(task)}
	return res, nil
}

type plannerListArgs struct {
	Column string `json:"column"`
}

func (s *Server) plannerListTool(ctx context.Context, raw json.RawMessage) (*ToolResult, error) {
	var args plannerListArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Column != "" && !model.ValidColumn(args.Column) {
		return nil, invalidParams("unknown column %q", args.Column)
	}

	tasks, err := s.store.ListPlannerTasks(ctx, args.Column)
	if err != nil {
		return nil, err
	}

	views := make([]plannerTaskView, 0, len(tasks))
	lines := make([]string, 0, len(tasks)+1)
	lines = append(lines, fmt.Sprintf("%d planner task(s)", len(tasks)))
	for _, t := range tasks {
		views = append(views, viewTask(t))
		lines = append(lines, describeTask(t))
	}

	res := textResult(strings.Join(lines, "\n"))
	res.StructuredContent = map[string]any{"tasks": views}
	return res, nil
}

type plannerMoveArgs struct {
	ID     int64  `json:"id"`
	Column string `json:"column"`
}

func (s *Server) plannerMoveTool(ctx context.Context, raw json.RawMessage) (*ToolResult, error) {
	var args plannerMoveArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.ID <= 0 {
		return nil, invalidParams("id is required")
	}
	if !model.ValidColumn(args.Column) {
		return nil, invalidParams("unknown column %q", args.Column)
	}

	err := s.store.MovePlannerTask(ctx, args.ID, args.Column)
	if errors.Is(err, store.ErrNotFound) {
		return errorResult(fmt.Sprintf("Planner task #%d does not exist.", args.ID)), nil
	}
	if err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Moved task #%d to %s.", args.ID, args.Column)), nil
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"schoolsync/internal/scheduler"
	"schoolsync/internal/store"
)

func (s *Server) syncRunTool(ctx context.Context, _ json.RawMessage) (*ToolResult, error) {
	if s.sync == nil {
		return errorResult("Sync is not available in this process."), nil
	}

	res, err := s.sync.TriggerNow(ctx)
	if errors.Is(err, scheduler.ErrBusy) {
		return textResult("A sync cycle is already running; try again shortly."), nil
	}
	if err != nil {
		return nil, err
	}

	text := fmt.Sprintf("Sync %s: %d calendar item(s), %d resource(s), %d course(s) synced, %d skipped.",
		okWord(res.OK), res.CalendarItems, res.Resources, res.CoursesSynced, res.CoursesSkipped)
	if res.Error != "" {
		text += " Errors: " + res.Error
	}
	out := textResult(text)
	out.StructuredContent = res
	return out, nil
}

func (s *Server) syncStatusTool(ctx context.Context, _ json.RawMessage) (*ToolResult, error) {
	run, err := s.store.LatestSyncRun(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return textResult("No sync has run yet."), nil
	}
	if err != nil {
		return nil, err
	}

	ago := s.now().Sub(run.FinishedAt).Round(time.Second)
	text := fmt.Sprintf("Last sync %s %s ago (%d calendar item(s), %d resource(s)).",
		okWord(run.OK), ago, run.CalendarItems, run.Resources)
	if run.Error != "" {
		text += " Errors: " + run.Error
	}

	out := textResult(text)
	out.StructuredContent = map[string]any{
		"id":             run.ID,
		"ok":             run.OK,
		"error":          run.Error,
		"started_at":     run.StartedAt.UTC().Format(time.RFC3339),
		"finished_at":    run.FinishedAt.UTC().Format(time.RFC3339),
		"calendar_items": run.CalendarItems,
		"resources":      run.Resources,
	}
	return out, nil
}

func okWord(ok bool) string {
	if ok {
		return "succeeded"
	}
	return "failed"
}

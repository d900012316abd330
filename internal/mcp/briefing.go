package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	briefingLimit    = 50
	briefingTopItems = 5
	dueDisplayLayout = "Mon, Jan 02 @ 3:04 pm"
)

type briefingRange struct {
	key   string
	hours int
	label string
}

var briefingRanges = map[string]briefingRange{
	"today": {key: "today", hours: 24, label: "today"},
	"48h":   {key: "48h", hours: 48, label: "the next 48h"},
	"week":  {key: "week", hours: 168, label: "the next 7 days"},
}

// resolveRange falls back to "today" for empty or unknown keys.
func resolveRange(key string) briefingRange {
	if r, ok := briefingRanges[strings.ToLower(strings.TrimSpace(key))]; ok {
		return r
	}
	return briefingRanges["today"]
}

// BriefingItem is the widget's view of one assignment.
type BriefingItem struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Course       string  `json:"course"`
	URL          string  `json:"url"`
	DueAt        *string `json:"dueAt"`
	DueAtDisplay string  `json:"dueAtDisplay"`
}

// Briefing is the full UI payload, also injected into the standalone widget page.
type Briefing struct {
	Assignments []BriefingItem `json:"assignments"`
	Count       int            `json:"count"`
	Range       string         `json:"range"`
	RangeLabel  string         `json:"rangeLabel"`
	GeneratedAt string         `json:"generatedAt"`
}

type briefingSummaryItem struct {
	Title  string `json:"title"`
	Course string `json:"course"`
	Due    string `json:"due"`
}

type briefingSummary struct {
	Count       int                   `json:"count"`
	RangeLabel  string                `json:"rangeLabel"`
	Assignments []briefingSummaryItem `json:"assignments"`
}

type briefingArgs struct {
	Range      string `json:"range"`
	IncludeAll bool   `json:"include_all"`
}

// Briefing lists assignments due within the range window from now, open ones
// only unless includeAll.
func (s *Server) Briefing(ctx context.Context, rangeKey string, includeAll bool) (Briefing, error) {
	rng := resolveRange(rangeKey)
	now := s.now().UTC()

	rows, err := s.store.UpcomingAssignments(ctx, now, now.Add(time.Duration(rng.hours)*time.Hour), briefingLimit, !includeAll)
	if err != nil {
		return Briefing{}, err
	}

	items := make([]BriefingItem, 0, len(rows))
	for _, a := range rows {
		item := BriefingItem{ID: a.ID, Title: a.Title, Course: a.CourseName, URL: a.URL}
		if a.DueAt != nil {
			iso := a.DueAt.UTC().Format(time.RFC3339)
			item.DueAt = &iso
			item.DueAtDisplay = a.DueAt.UTC().Format(dueDisplayLayout)
		}
		items = append(items, item)
	}

	return Briefing{
		Assignments: items,
		Count:       len(items),
		Range:       rng.key,
		RangeLabel:  rng.label,
		GeneratedAt: now.Format(time.RFC3339),
	}, nil
}

func (s *Server) briefingTool(ctx context.Context, raw json.RawMessage) (*ToolResult, error) {
	var args briefingArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}

	b, err := s.Briefing(ctx, args.Range, args.IncludeAll)
	if err != nil {
		return nil, err
	}

	top := make([]briefingSummaryItem, 0, briefingTopItems)
	for i, item := range b.Assignments {
		if i == briefingTopItems {
			break
		}
		top = append(top, briefingSummaryItem{Title: item.Title, Course: item.Course, Due: item.DueAtDisplay})
	}

	widget := widgetResource()
	meta := widgetToolMeta()
	meta["openai.com/widget"] = Content{Type: "resource", Resource: &widget}
	meta["ui"] = b

	return &ToolResult{
		Content: []Content{{
			Type: "text",
			Text: fmt.Sprintf("Found %d assignment(s) due %s.", b.Count, b.RangeLabel),
		}},
		StructuredContent: map[string]any{
			"summary": briefingSummary{Count: b.Count, RangeLabel: b.RangeLabel, Assignments: top},
		},
		Meta: meta,
	}, nil
}

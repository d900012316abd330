package mcp

import (
	"bytes"
	"context"
	"encoding/json"
)

type toolHandler func(ctx context.Context, args json.RawMessage) (*ToolResult, error)

type tool struct {
	desc    ToolDescriptor
	handler toolHandler
}

func (s *Server) register(desc ToolDescriptor, h toolHandler) {
	s.tools[desc.Name] = tool{desc: desc, handler: h}
	s.order = append(s.order, desc.Name)
}

func (s *Server) toolDescriptors() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].desc)
	}
	return out
}

func (s *Server) registerTools() {
	s.register(ToolDescriptor{
		Name:        "briefing.get",
		Title:       "Get Daily Briefing",
		Description: "Returns an interactive list of upcoming assignments",
		InputSchema: objectSchema(map[string]any{
			"range": map[string]any{
				"type":        "string",
				"enum":        []string{"today", "48h", "week"},
				"default":     "today",
				"description": "Time window: 'today' (24h), '48h' (2 days), or 'week' (7 days). Unknown values fall back to 'today'.",
			},
			"include_all": map[string]any{
				"type":        "boolean",
				"default":     false,
				"description": "Include assignments that are no longer open",
			},
		}),
		Meta: widgetToolMeta(),
	}, s.briefingTool)

	s.register(ToolDescriptor{
		Name:        "resources.get_all",
		Title:       "Get Course Materials",
		Description: "Returns every stored material of a course, grouped by folder",
		InputSchema: objectSchema(map[string]any{
			"course_name": map[string]any{
				"type":        "string",
				"description": "Course name as shown in the portal (case-insensitive)",
			},
		}, "course_name"),
		Meta: readOnlyMeta(),
	}, s.resourcesTool)

	s.register(ToolDescriptor{
		Name:        "planner.add",
		Title:       "Add Planner Task",
		Description: "Adds a task to the personal planner board",
		InputSchema: objectSchema(map[string]any{
			"title":         map[string]any{"type": "string"},
			"due":           map[string]any{"type": "string", "description": "RFC 3339 time, a date, or natural language such as 'next friday at 5pm'"},
			"priority":      map[string]any{"type": "integer", "default": 0},
			"assignment_id": map[string]any{"type": "integer", "description": "Link the task to a synced assignment"},
		}, "title"),
	}, s.plannerAddTool)

	s.register(ToolDescriptor{
		Name:        "planner.list",
		Title:       "List Planner Tasks",
		Description: "Lists planner tasks, optionally for one column",
		InputSchema: objectSchema(map[string]any{
			"column": map[string]any{"type": "string", "enum": []string{"todo", "in_progress", "done"}},
		}),
		Meta: readOnlyMeta(),
	}, s.plannerListTool)

	s.register(ToolDescriptor{
		Name:        "planner.move",
		Title:       "Move Planner Task",
		Description: "Moves a planner task to another column",
		InputSchema: objectSchema(map[string]any{
			"id":     map[string]any{"type": "integer"},
			"column": map[string]any{"type": "string", "enum": []string{"todo", "in_progress", "done"}},
		}, "id", "column"),
	}, s.plannerMoveTool)

	s.register(ToolDescriptor{
		Name:        "sync.run",
		Title:       "Sync Now",
		Description: "Runs one sync cycle against the portal right away",
		InputSchema: objectSchema(map[string]any{}),
	}, s.syncRunTool)

	s.register(ToolDescriptor{
		Name:        "sync.status",
		Title:       "Sync Status",
		Description: "Reports the outcome of the most recent sync cycle",
		InputSchema: objectSchema(map[string]any{}),
		Meta:        readOnlyMeta(),
	}, s.syncStatusTool)
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func readOnlyMeta() map[string]any {
	return map[string]any{
		"annotations": map[string]any{
			"destructiveHint": false,
			"openWorldHint":   false,
			"readOnlyHint":    true,
		},
	}
}

// widgetToolMeta tells the host that the tool renders the briefing widget.
func widgetToolMeta() map[string]any {
	m := readOnlyMeta()
	m["openai/outputTemplate"] = WidgetURI
	m["openai/toolInvocation/invoking"] = "Gathering your assignments..."
	m["openai/toolInvocation/invoked"] = "Here's your briefing"
	m["openai/widgetAccessible"] = true
	m["openai/resultCanProduceWidget"] = true
	return m
}

// decodeArgs maps malformed arguments to an invalid-params error. Unknown
// fields are ignored; hosts add their own.
func decodeArgs(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return invalidParams("invalid arguments: %v", err)
	}
	return nil
}

package mcp

import (
	"embed"
	"encoding/json"
	"sync"
)

const (
	WidgetURI      = "ui://widget/briefing.html"
	WidgetMimeType = "text/html+skybridge"
)

//go:embed widget/briefing.html
var widgetFS embed.FS

var (
	widgetOnce sync.Once
	widgetHTML string
)

// WidgetHTML returns the briefing widget fragment.
func WidgetHTML() string {
	widgetOnce.Do(func() {
		b, err := widgetFS.ReadFile("widget/briefing.html")
		if err != nil {
			// Only reachable if the embed directive and path disagree.
			panic(err)
		}
		widgetHTML = string(b)
	})
	return widgetHTML
}

func widgetResource() ResourceContents {
	return ResourceContents{
		URI:      WidgetURI,
		MimeType: WidgetMimeType,
		Text:     WidgetHTML(),
		Title:    "Daily Briefing",
		Meta: map[string]any{
			"openai/widgetDescription": "Renders a briefing of upcoming assignments. " +
				"Avoid re-listing the items; offer brief next steps only when asked.",
			"openai/widgetPrefersBorder": true,
			"openai/widgetCSP": map[string]any{
				"connect_domains":  []string{},
				"resource_domains": []string{},
			},
		},
	}
}

func listResources() []ResourceDescriptor {
	return []ResourceDescriptor{{
		Name:        "briefing-widget",
		URI:         WidgetURI,
		MimeType:    WidgetMimeType,
		Description: "Daily Briefing component",
	}}
}

func readResource(raw json.RawMessage) (any, *RPCError) {
	var p readParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, invalidParams("params must be an object")
		}
	}
	if p.URI == "" {
		return nil, invalidParams("uri is required")
	}
	if p.URI != WidgetURI {
		return nil, invalidParams("resource not found: %s", p.URI)
	}
	return map[string]any{"contents": []ResourceContents{widgetResource()}}, nil
}

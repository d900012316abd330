package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"schoolsync/internal/model"
)

const unfiledLabel = "Unfiled"

type resourceView struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Type  string `json:"type"`
}

type folderView struct {
	Folder    *string        `json:"folder"`
	Resources []resourceView `json:"resources"`
}

type courseDump struct {
	CourseName string       `json:"course_name"`
	Count      int          `json:"count"`
	Folders    []folderView `json:"folders"`
}

type resourcesArgs struct {
	CourseName string `json:"course_name"`
}

func (s *Server) resourcesTool(ctx context.Context, raw json.RawMessage) (*ToolResult, error) {
	var args resourcesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(args.CourseName)
	if name == "" {
		return nil, invalidParams("course_name is required")
	}

	rows, err := s.store.ResourcesByCourseName(ctx, name)
	if err != nil {
		return nil, err
	}

	dump := groupByFolder(name, rows)
	res := textResult(renderCourseDump(dump))
	res.StructuredContent = dump
	return res, nil
}

// groupByFolder keeps the incoming order: folders in order of first
// appearance, resources in order within each folder.
func groupByFolder(requested string, rows []model.Resource) courseDump {
	dump := courseDump{CourseName: requested, Count: len(rows), Folders: []folderView{}}
	if len(rows) > 0 && rows[0].CourseName != "" {
		dump.CourseName = rows[0].CourseName
	}

	index := make(map[string]int)
	for _, r := range rows {
		key := ""
		if r.ParentFolder != nil {
			key = "f:" + *r.ParentFolder
		}
		i, ok := index[key]
		if !ok {
			i = len(dump.Folders)
			index[key] = i
			dump.Folders = append(dump.Folders, folderView{Folder: r.ParentFolder, Resources: []resourceView{}})
		}
		dump.Folders[i].Resources = append(dump.Folders[i].Resources, resourceView{
			ID:    r.SchoologyID,
			Title: r.Title,
			URL:   r.URL,
			Type:  string(r.Type),
		})
	}
	return dump
}

func renderCourseDump(d courseDump) string {
	if d.Count == 0 {
		return fmt.Sprintf("No materials stored for course %q.\n", d.CourseName)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course materials for %s (%d item(s))\n", d.CourseName, d.Count)
	for _, f := range d.Folders {
		label := unfiledLabel
		if f.Folder != nil {
			label = *f.Folder
		}
		fmt.Fprintf(&b, "\n## %s\n", label)
		for _, r := range f.Resources {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", r.Type, r.Title, r.URL)
		}
	}
	return b.String()
}

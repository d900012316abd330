package schoology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	appLog "schoolsync/internal/log"
	"schoolsync/internal/model"
)

var trailingIDPattern = regexp.MustCompile(`(\d+)/*$`)

// FetchCourseMaterials scrapes the six material categories of one course.
// A failing category is logged and contributes nothing; the others still run.
func (c *Client) FetchCourseMaterials(ctx context.Context, courseID int64) []model.Resource {
	out := make([]model.Resource, 0)

	for _, category := range model.ResourceTypes {
		if ctx.Err() != nil {
			appLog.Warn("materials fetch interrupted", "course_id", courseID, "reason", ctx.Err().Error())
			break
		}

		rows, err := c.fetchMaterialCategory(ctx, courseID, category)
		if err != nil {
			appLog.Error("materials category failed", err, "course_id", courseID, "category", string(category))
			continue
		}
		out = append(out, rows...)
	}

	appLog.Info("materials fetch completed", "course_id", courseID, "resource_count", len(out))
	return out
}

func (c *Client) fetchMaterialCategory(ctx context.Context, courseID int64, category model.ResourceType) ([]model.Resource, error) {
	q := url.Values{}
	q.Set("ajax", "1")
	q.Set("list_filter", strings.ToLower(string(category)))
	u := c.endpoint("/course/"+strconv.FormatInt(courseID, 10)+"/materials", q)

	body, status, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("get %s (status %d, body %q): %w", redactURL(u), status, truncateBody(body), err)
	}

	fragment, err := extractFragment(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s (body %q): %w", redactURL(u), truncateBody(body), err)
	}

	rows, skipped, err := ParseMaterials(fragment, c.base, category)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		appLog.Warn("material rows skipped", "course_id", courseID, "category", string(category), "skipped", skipped)
	}
	for i := range rows {
		rows[i].CourseID = courseID
	}
	return rows, nil
}

// extractFragment unwraps the {"<key>": "<html>"} envelope the materials
// endpoint answers with.
func extractFragment(body []byte) (string, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", err
	}
	if len(envelope) != 1 {
		return "", fmt.Errorf("expected a single-value object, got %d keys", len(envelope))
	}
	for _, v := range envelope {
		var fragment string
		if err := json.Unmarshal(v, &fragment); err != nil {
			return "", fmt.Errorf("value is not an html string: %w", err)
		}
		return fragment, nil
	}
	return "", errors.New("unreachable")
}

// ParseMaterials extracts resources from a materials HTML fragment. Rows that
// cannot be parsed are counted in skipped and otherwise ignored.
func ParseMaterials(fragment string, base *url.URL, category model.ResourceType) ([]model.Resource, int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, 0, fmt.Errorf("parse materials html: %w", err)
	}

	var (
		out     []model.Resource
		skipped int
	)
	doc.Find(".material-row").Each(func(i int, row *goquery.Selection) {
		res, err := parseMaterialRow(row, base, category)
		if err != nil {
			skipped++
			appLog.Warn("material row skipped", "category", string(category), "index", i, "reason", err.Error())
			return
		}
		out = append(out, res)
	})
	return out, skipped, nil
}

func parseMaterialRow(row *goquery.Selection, base *url.URL, category model.ResourceType) (model.Resource, error) {
	anchor := row.Find(".item-title a[href]").First()
	if anchor.Length() == 0 {
		anchor = row.Find("a[href]").First()
	}
	if anchor.Length() == 0 {
		return model.Resource{}, errors.New("no link")
	}

	href := strings.TrimSpace(anchor.AttrOr("href", ""))
	ref, err := url.Parse(href)
	if err != nil || href == "" {
		return model.Resource{}, fmt.Errorf("bad href %q", href)
	}
	abs := base.ResolveReference(ref)

	m := trailingIDPattern.FindStringSubmatch(abs.Path)
	if m == nil {
		return model.Resource{}, fmt.Errorf("no trailing id in %q", abs.Path)
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return model.Resource{}, fmt.Errorf("bad id %q: %w", m[1], err)
	}

	title := normalizeText(anchor.Text())
	if title == "" {
		return model.Resource{}, errors.New("empty title")
	}

	return model.Resource{
		SchoologyID:  id,
		Title:        title,
		URL:          abs.String(),
		Type:         category,
		ParentFolder: folderLabel(row),
	}, nil
}

func folderLabel(row *goquery.Selection) *string {
	candidates := []string{
		row.AttrOr("data-tooltip", ""),
		row.Find("[data-tooltip]").First().AttrOr("data-tooltip", ""),
		row.Find(".folder-tooltip[title]").First().AttrOr("title", ""),
	}
	for _, c := range candidates {
		if label := normalizeText(c); label != "" {
			return &label
		}
	}
	return nil
}

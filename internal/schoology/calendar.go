package schoology

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	appLog "schoolsync/internal/log"
	"schoolsync/internal/model"
)

// flexValue accepts the portal's loosely typed JSON scalars (the same field
// shows up as a string, a number or a bool depending on the item) and keeps
// them as text.
type flexValue string

func (f *flexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexValue(s)
	case bytes.Equal(b, []byte("true")):
		*f = "1"
	case bytes.Equal(b, []byte("false")):
		*f = "0"
	case b[0] == '{' || b[0] == '[':
		*f = ""
	default:
		*f = flexValue(b)
	}
	return nil
}

func (f flexValue) String() string {
	return strings.TrimSpace(string(f))
}

func (f flexValue) Int64() (int64, bool) {
	n, err := strconv.ParseInt(f.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (f flexValue) Bool() bool {
	switch strings.ToLower(f.String()) {
	case "1", "true", "yes":
		return true
	}
	return false
}

type rawCalendarItem struct {
	ID           flexValue `json:"id"`
	EType        flexValue `json:"e_type"`
	Title        flexValue `json:"title"`
	TitleText    flexValue `json:"titleText"`
	Start        flexValue `json:"start"`
	End          flexValue `json:"end"`
	HasEnd       flexValue `json:"has_end"`
	RealmID      flexValue `json:"realm_id"`
	ContentTitle flexValue `json:"content_title"`
	ContentID    flexValue `json:"content_id"`
}

// FetchCalendarItems pulls the calendar feed for [start, end] (epoch seconds).
//
// Failures are logged with full context and reported as an empty slice: at
// this layer "fetch failed" and "no items" are indistinguishable on purpose,
// so one bad fetch never aborts a sync cycle.
func (c *Client) FetchCalendarItems(ctx context.Context, start, end int64) []model.CalendarItem {
	u := c.calendarURL(start, end)
	appLog.Info("calendar fetch start", "url", redactURL(u), "start", start, "end", end)

	body, status, err := c.get(ctx, u)
	if err != nil {
		appLog.Error("calendar fetch failed", err, "url", redactURL(u), "status", status, "body", truncateBody(body))
		logFullBody("calendar fetch failed", u, body)
		return []model.CalendarItem{}
	}

	items, err := ParseCalendar(body)
	if err != nil {
		appLog.Error("calendar parse failed", err, "url", redactURL(u), "status", status, "body", truncateBody(body))
		logFullBody("calendar parse failed", u, body)
		return []model.CalendarItem{}
	}

	appLog.Info("calendar fetch success", "url", redactURL(u), "item_count", len(items))
	return items
}

func (c *Client) calendarURL(start, end int64) string {
	path := "/calendar/" + url.PathEscape(c.userID)
	if c.view != "" {
		path += "/" + url.PathEscape(c.view)
	}
	q := url.Values{}
	q.Set("ajax", "1")
	q.Set("start", strconv.FormatInt(start, 10))
	q.Set("end", strconv.FormatInt(end, 10))
	// Cache buster, milliseconds like the browser sends.
	q.Set("_", strconv.FormatInt(c.now().UnixMilli(), 10))
	return c.endpoint(path, q)
}

// ParseCalendar decodes a calendar JSON array into CalendarItems. Items
// without a numeric id are skipped with a warning.
func ParseCalendar(body []byte) ([]model.CalendarItem, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty calendar body")
	}

	var raw []rawCalendarItem
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	items := make([]model.CalendarItem, 0, len(raw))
	for i, r := range raw {
		item, err := r.toItem()
		if err != nil {
			appLog.Warn("calendar item skipped", "index", i, "reason", err.Error())
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (r rawCalendarItem) toItem() (model.CalendarItem, error) {
	id, ok := r.ID.Int64()
	if !ok || id <= 0 {
		return model.CalendarItem{}, fmt.Errorf("invalid id %q", r.ID.String())
	}

	title := r.Title.String()
	if title == "" {
		title = r.TitleText.String()
	}

	item := model.CalendarItem{
		ID:         id,
		Type:       strings.ToLower(r.EType.String()),
		TitleHTML:  title,
		StartRaw:   r.Start.String(),
		EndRaw:     r.End.String(),
		HasEnd:     r.HasEnd.Bool(),
		CourseName: r.ContentTitle.String(),
	}
	item.Kind = model.Classify(item.Type)
	if realm, ok := r.RealmID.Int64(); ok {
		item.CourseRealmID = realm
	}
	if cid, ok := r.ContentID.Int64(); ok && cid > 0 {
		item.ContentID = cid
	}
	return item, nil
}

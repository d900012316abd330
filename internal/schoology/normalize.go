package schoology

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"

	"schoolsync/internal/model"
)

const (
	untitled = "Untitled"

	upstreamTimeLayout = "2006-01-02 15:04:05"
)

// CleanTitle turns an upstream HTML title into plain text.
func CleanTitle(raw string) string {
	text := raw
	if strings.ContainsAny(raw, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			text = doc.Text()
		}
	}
	if s := normalizeText(text); s != "" {
		return s
	}
	return untitled
}

// normalizeText collapses whitespace and applies NFC so the same title
// scraped twice compares equal.
func normalizeText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}

// ParseUpstreamTime parses the portal's "YYYY-MM-DD HH:MM:SS" timestamps.
//
// The values carry no offset. They are taken to already be UTC and are
// stamped as such without any conversion; converting from a school-local
// zone was tried before and shifted every due date. This is an empirical
// assumption the vendor does not document, and this function is the only
// place that makes it.
func ParseUpstreamTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.ParseInLocation(upstreamTimeLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse upstream time %q: %w", raw, err)
	}
	return t, nil
}

// AssignmentURL builds the portal link for an assignment-like item. The
// content id is stable; the calendar id changes per occurrence and yields
// dead links, so it is only a fallback.
func AssignmentURL(baseURL string, item model.CalendarItem) string {
	id := item.ContentID
	if id <= 0 {
		id = item.ID
	}
	segment := "assignment"
	if item.Type == "discussion" {
		segment = "discussion"
	}
	return strings.TrimRight(baseURL, "/") + "/" + segment + "/" + strconv.FormatInt(id, 10)
}

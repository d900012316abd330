package schoology

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolsync/internal/model"
)

const materialsFixture = `
<div class="material-row" id="n-1">
  <div class="item-title"><a href="/assignment/7001">  Unit 1
     Worksheet </a></div>
  <span class="folder-tooltip" title="Unit 1"></span>
</div>
<div class="material-row" data-tooltip="Labs">
  <a href="https://classes.example.org/link/view/7002/">Lab Safety</a>
</div>
<div class="material-row"><a href="page/7003">Syllabus</a></div>
<div class="material-row"><span>no link here</span></div>
<div class="material-row"><a href="/page/about">Broken</a></div>
<div class="material-row"><a href="/page/7004">   </a></div>
`

func TestParseMaterials(t *testing.T) {
	base, err := url.Parse("https://classes.example.org")
	require.NoError(t, err)

	res, skipped, err := ParseMaterials(materialsFixture, base, model.ResourceFile)
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	require.Len(t, res, 3)

	assert.Equal(t, int64(7001), res[0].SchoologyID)
	assert.Equal(t, "Unit 1 Worksheet", res[0].Title)
	assert.Equal(t, "https://classes.example.org/assignment/7001", res[0].URL)
	assert.Equal(t, model.ResourceFile, res[0].Type)
	require.NotNil(t, res[0].ParentFolder)
	assert.Equal(t, "Unit 1", *res[0].ParentFolder)

	assert.Equal(t, int64(7002), res[1].SchoologyID)
	assert.Equal(t, "https://classes.example.org/link/view/7002/", res[1].URL)
	require.NotNil(t, res[1].ParentFolder)
	assert.Equal(t, "Labs", *res[1].ParentFolder)

	assert.Equal(t, int64(7003), res[2].SchoologyID)
	assert.Equal(t, "https://classes.example.org/page/7003", res[2].URL)
	assert.Nil(t, res[2].ParentFolder)
}

func TestParseMaterialsEmptyFragment(t *testing.T) {
	base, _ := url.Parse("https://classes.example.org")
	res, skipped, err := ParseMaterials("", base, model.ResourcePage)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Empty(t, res)
}

func TestExtractFragment(t *testing.T) {
	frag, err := extractFragment([]byte(`{"html":"<div>x</div>"}`))
	require.NoError(t, err)
	assert.Equal(t, "<div>x</div>", frag)

	_, err = extractFragment([]byte(`{"a":"x","b":"y"}`))
	assert.Error(t, err)

	_, err = extractFragment([]byte(`{"html":12}`))
	assert.Error(t, err)

	_, err = extractFragment([]byte(`[]`))
	assert.Error(t, err)
}

func TestParseCalendarRejectsNonArray(t *testing.T) {
	_, err := ParseCalendar([]byte(`{"error":"login required"}`))
	assert.Error(t, err)

	_, err = ParseCalendar([]byte("  "))
	assert.Error(t, err)
}

func TestCleanTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`<a href="/assignment/1">Lab &amp; Report</a>`, "Lab & Report"},
		{"  Essay\n\tDraft  ", "Essay Draft"},
		{"<span></span>", "Untitled"},
		{"", "Untitled"},
		{"Café Quiz", "Café Quiz"},
		{"AP Calc <b>Unit 3</b> Test", "AP Calc Unit 3 Test"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanTitle(tc.in), "input %q", tc.in)
	}
}

func TestParseUpstreamTime(t *testing.T) {
	got, err := ParseUpstreamTime("2025-03-14 23:59:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())

	_, err = ParseUpstreamTime("")
	assert.Error(t, err)

	_, err = ParseUpstreamTime("2025-03-14T23:59:00Z")
	assert.Error(t, err)
}

func TestAssignmentURL(t *testing.T) {
	base := "https://classes.example.org/"

	withContent := model.CalendarItem{ID: 101, Type: "assignment", ContentID: 9001}
	assert.Equal(t, "https://classes.example.org/assignment/9001", AssignmentURL(base, withContent))

	noContent := model.CalendarItem{ID: 101, Type: "assessment"}
	assert.Equal(t, "https://classes.example.org/assignment/101", AssignmentURL(base, noContent))

	discussion := model.CalendarItem{ID: 5, Type: "discussion", ContentID: 77}
	assert.Equal(t, "https://classes.example.org/discussion/77", AssignmentURL(base, discussion))
}

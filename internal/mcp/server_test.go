package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolsync/internal/model"
	"schoolsync/internal/scheduler"
	"schoolsync/internal/store"
	"schoolsync/internal/syncer"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) (*Server, *store.Store) {
	t.Helper()
	s, err := store.Open(context.Background(), store.DriverSQLite, filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	if opts.Store == nil {
		opts.Store = s
	}
	opts.Now = func() time.Time { return testNow }
	return NewServer(opts), s
}

func call(t *testing.T, srv *Server, body string) *Response {
	t.Helper()
	resp := srv.Handle(context.Background(), []byte(body))
	require.NotNil(t, resp)
	return resp
}

func toolCall(t *testing.T, srv *Server, name string, args any) *ToolResult {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	resp := call(t, srv, string(raw))
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	res, ok := resp.Result.(*ToolResult)
	require.True(t, ok, "result is %T", resp.Result)
	return res
}

func seedAssignment(t *testing.T, s *store.Store, id int64, due time.Duration, status string) {
	t.Helper()
	d := testNow.Add(due)
	require.NoError(t, s.InsertAssignment(context.Background(), model.Assignment{
		ID: id, CourseID: 10, CourseName: "Chemistry", Title: fmt.Sprintf("Task %d", id),
		DueAt: &d, URL: fmt.Sprintf("https://classes.example.org/assignment/%d", id),
		Status: status, LastSeenAt: testNow,
	}))
}

func TestInitialize(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	resp := call(t, srv, `{"jsonrpc":"2.0","id":"init-1","method":"initialize","params":{}}`)

	require.Nil(t, resp.Error)
	assert.JSONEq(t, `"init-1"`, string(resp.ID))
	result := resp.Result.(map[string]any)
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	assert.Equal(t, "schoolsync", result["serverInfo"].(map[string]any)["name"])
}

func TestProtocolErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	cases := []struct {
		name string
		body string
		code int
	}{
		{"parse error", `{"jsonrpc":`, CodeParseError},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, CodeInvalidRequest},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, CodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, CodeInvalidRequest},
		{"missing id", `{"jsonrpc":"2.0","method":"tools/list"}`, CodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`, CodeMethodNotFound},
		{"tool without name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`, CodeInvalidParams},
		{"unknown tool", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`, CodeInvalidParams},
		{"bad params", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":"x"}`, CodeInvalidParams},
		{"bad arguments", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"briefing.get","arguments":{"range":5}}}`, CodeInvalidParams},
		{"read without uri", `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{}}`, CodeInvalidParams},
		{"read unknown uri", `{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"ui://nope"}}`, CodeInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(t, srv, tc.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.Nil(t, resp.Result)
		})
	}
}

func TestParseErrorHasNullID(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	resp := call(t, srv, `not json`)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`, string(raw))
}

func TestNotificationsGetNoResponse(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	assert.Nil(t, srv.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
}

func TestToolsListAndAlias(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	for _, method := range []string{"tools/list", "list_tools"} {
		resp := call(t, srv, `{"jsonrpc":"2.0","id":2,"method":"`+method+`"}`)
		require.Nil(t, resp.Error)
		tools := resp.Result.(map[string]any)["tools"].([]ToolDescriptor)
		require.Len(t, tools, 7)
		assert.Equal(t, "briefing.get", tools[0].Name)
		assert.Equal(t, WidgetURI, tools[0].Meta["openai/outputTemplate"])
		rangeProp := tools[0].InputSchema["properties"].(map[string]any)["range"].(map[string]any)
		assert.Contains(t, rangeProp["description"], "fall back to 'today'")
		assert.Equal(t, "resources.get_all", tools[1].Name)
		assert.Equal(t, []string{"course_name"}, tools[1].InputSchema["required"])
	}
}

func TestBriefingWindows(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	seedAssignment(t, s, 1, time.Hour, model.StatusOpen)
	seedAssignment(t, s, 2, 30*time.Hour, model.StatusOpen)
	seedAssignment(t, s, 3, -time.Hour, model.StatusOpen)
	seedAssignment(t, s, 4, 2*time.Hour, model.StatusClosed)
	seedAssignment(t, s, 5, 200*time.Hour, model.StatusOpen)

	ids := func(b Briefing) []int64 {
		out := []int64{}
		for _, a := range b.Assignments {
			out = append(out, a.ID)
		}
		return out
	}
	ctx := context.Background()

	today, err := srv.Briefing(ctx, "today", false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(today))

	twoDays, err := srv.Briefing(ctx, "48h", false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(twoDays))

	week, err := srv.Briefing(ctx, "week", false)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(week))
	assert.Equal(t, "the next 7 days", week.RangeLabel)

	all, err := srv.Briefing(ctx, "week", true)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 2}, ids(all))

	// +200h is past the 168h week window even with include_all.
	for _, b := range []Briefing{week, all} {
		assert.NotContains(t, ids(b), int64(5))
	}

	fallback, err := srv.Briefing(ctx, "fortnight", false)
	require.NoError(t, err)
	assert.Equal(t, "today", fallback.Range)
	assert.Equal(t, []int64{1}, ids(fallback))
}

func TestBriefingToolPayload(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	seedAssignment(t, s, 1, time.Hour, model.StatusOpen)

	res := toolCall(t, srv, "briefing.get", map[string]any{})
	require.Len(t, res.Content, 1)
	assert.Equal(t, "Found 1 assignment(s) due today.", res.Content[0].Text)
	assert.False(t, res.IsError)

	summary := res.StructuredContent.(map[string]any)["summary"].(briefingSummary)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, "today", summary.RangeLabel)
	require.Len(t, summary.Assignments, 1)
	assert.Equal(t, "Fri, Mar 14 @ 1:00 pm", summary.Assignments[0].Due)

	ui := res.Meta["ui"].(Briefing)
	require.Len(t, ui.Assignments, 1)
	require.NotNil(t, ui.Assignments[0].DueAt)
	assert.Equal(t, "2025-03-14T13:00:00Z", *ui.Assignments[0].DueAt)
	assert.Equal(t, "2025-03-14T12:00:00Z", ui.GeneratedAt)

	widget := res.Meta["openai.com/widget"].(Content)
	require.NotNil(t, widget.Resource)
	assert.Equal(t, WidgetMimeType, widget.Resource.MimeType)
	assert.Contains(t, widget.Resource.Text, "briefing-root")
}

func TestBriefingSummaryCapsAtFive(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	for i := int64(1); i <= 7; i++ {
		seedAssignment(t, s, i, time.Duration(i)*time.Hour, model.StatusOpen)
	}

	res := toolCall(t, srv, "briefing.get", map[string]any{"range": "week"})
	assert.Equal(t, "Found 7 assignment(s) due the next 7 days.", res.Content[0].Text)
	summary := res.StructuredContent.(map[string]any)["summary"].(briefingSummary)
	assert.Equal(t, 7, summary.Count)
	assert.Len(t, summary.Assignments, 5)
	assert.Len(t, res.Meta["ui"].(Briefing).Assignments, 7)
}

func TestLegacyCallToolArgs(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	seedAssignment(t, s, 2, 30*time.Hour, model.StatusOpen)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":9,"method":"call_tool","params":{"name":"briefing.get","args":{"range":"48h"}}}`)
	require.Nil(t, resp.Error)
	res := resp.Result.(*ToolResult)
	assert.Equal(t, "Found 1 assignment(s) due the next 48h.", res.Content[0].Text)
}

func TestResourcesGetAll(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	ctx := context.Background()
	unit1, exams := "Unit 1", "Exams"
	for _, r := range []model.Resource{
		{SchoologyID: 7001, Title: "Worksheet", Type: model.ResourceAssignment, URL: "https://classes.example.org/assignment/7001", ParentFolder: &unit1},
		{SchoologyID: 7002, Title: "Syllabus", Type: model.ResourcePage, URL: "https://classes.example.org/page/7002"},
		{SchoologyID: 7003, Title: "Lab Safety", Type: model.ResourceLink, URL: "https://classes.example.org/link/7003", ParentFolder: &unit1},
		{SchoologyID: 7004, Title: "Midterm Review", Type: model.ResourceFile, URL: "https://classes.example.org/file/7004", ParentFolder: &exams},
	} {
		r.CourseID = 10
		r.CourseName = "Chemistry"
		require.NoError(t, s.UpsertResource(ctx, r))
	}

	res := toolCall(t, srv, "resources.get_all", map[string]any{"course_name": "chemistry"})
	require.Len(t, res.Content, 1)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "course_dump", []byte(res.Content[0].Text))

	dump := res.StructuredContent.(courseDump)
	assert.Equal(t, "Chemistry", dump.CourseName)
	assert.Equal(t, 4, dump.Count)
	require.Len(t, dump.Folders, 3)
	assert.Nil(t, dump.Folders[0].Folder)
	assert.Len(t, dump.Folders[2].Resources, 2)
}

func TestResourcesGetAllUnknownCourse(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	res := toolCall(t, srv, "resources.get_all", map[string]any{"course_name": "Physics"})
	assert.Equal(t, "No materials stored for course \"Physics\".\n", res.Content[0].Text)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"resources.get_all","arguments":{"course_name":"  "}}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestResourcesListAndRead(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"list_resources"}`)
	require.Nil(t, resp.Error)
	list := resp.Result.(map[string]any)["resources"].([]ResourceDescriptor)
	require.Len(t, list, 1)
	assert.Equal(t, WidgetURI, list[0].URI)

	resp = call(t, srv, `{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"ui://widget/briefing.html"}}`)
	require.Nil(t, resp.Error)
	contents := resp.Result.(map[string]any)["contents"].([]ResourceContents)
	require.Len(t, contents, 1)
	assert.Equal(t, WidgetMimeType, contents[0].MimeType)
	assert.True(t, strings.Contains(contents[0].Text, `data-ready`))
}

func TestPlannerTools(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	added := toolCall(t, srv, "planner.add", map[string]any{"title": "Study for quiz", "due": "2025-03-20T17:00:00Z", "priority": 1})
	assert.Equal(t, "Added #1 [todo] Study for quiz (due Thu, Mar 20 @ 5:00 pm) priority 1", added.Content[0].Text)

	toolCall(t, srv, "planner.add", map[string]any{"title": "Buy poster board"})

	moved := toolCall(t, srv, "planner.move", map[string]any{"id": 1, "column": "in_progress"})
	assert.False(t, moved.IsError)

	list := toolCall(t, srv, "planner.list", map[string]any{"column": "in_progress"})
	tasks := list.StructuredContent.(map[string]any)["tasks"].([]plannerTaskView)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Study for quiz", tasks[0].Title)

	missing := toolCall(t, srv, "planner.move", map[string]any{"id": 42, "column": "done"})
	assert.True(t, missing.IsError)

	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"planner.move","arguments":{"id":1,"column":"someday"}}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"planner.add","arguments":{"title":"x","due":"qwerty zxcv"}}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestParseDue(t *testing.T) {
	got, err := parseDue("", testNow)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseDue("2025-03-20T10:00:00-05:00", testNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 20, 15, 0, 0, 0, time.UTC), *got)

	got, err = parseDue("2025-03-20", testNow)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), *got)

	got, err = parseDue("tomorrow", testNow)
	require.NoError(t, err)
	require.NotNil(t, got)
	y, m, d := got.Date()
	assert.Equal(t, 2025, y)
	assert.Equal(t, time.March, m)
	assert.Equal(t, 15, d)
}

type fakeTrigger struct {
	res syncer.Result
	err error
}

func (f fakeTrigger) TriggerNow(context.Context) (syncer.Result, error) { return f.res, f.err }

func TestSyncTools(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	res := toolCall(t, srv, "sync.run", map[string]any{})
	assert.True(t, res.IsError)

	status := toolCall(t, srv, "sync.status", nil)
	assert.Equal(t, "No sync has run yet.", status.Content[0].Text)

	require.NoError(t, s.RecordSyncRun(context.Background(), model.SyncRun{
		ID: "r1", StartedAt: testNow.Add(-2 * time.Minute), FinishedAt: testNow.Add(-time.Minute), OK: true, CalendarItems: 3,
	}))
	status = toolCall(t, srv, "sync.status", nil)
	assert.Equal(t, "Last sync succeeded 1m0s ago (3 calendar item(s), 0 resource(s)).", status.Content[0].Text)

	busy, _ := newTestServer(t, Options{Sync: fakeTrigger{err: scheduler.ErrBusy}})
	res = toolCall(t, busy, "sync.run", nil)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "already running")

	ok, _ := newTestServer(t, Options{Sync: fakeTrigger{res: syncer.Result{OK: true, CalendarItems: 4, Resources: 2, CoursesSynced: 1}}})
	res = toolCall(t, ok, "sync.run", nil)
	assert.Equal(t, "Sync succeeded: 4 calendar item(s), 2 resource(s), 1 course(s) synced, 0 skipped.", res.Content[0].Text)
}

type panicStore struct{ Store }

func TestHandlerPanicBecomesInternalError(t *testing.T) {
	srv := NewServer(Options{Store: panicStore{}, Now: func() time.Time { return testNow }})

	resp := call(t, srv, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"briefing.get"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInternalError, resp.Error.Code)
}

func TestServeHTTP(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"ping"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":{}}`, rec.Body.String())
}

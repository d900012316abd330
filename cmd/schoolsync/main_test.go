package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolatedConfig(t *testing.T) string {
	t.Helper()
	for _, k := range []string{
		"SCHOOLOGY_COOKIE", "SCHOOLOGY_USER_ID", "SCHOOLOGY_COURSE_IDS", "SCHOOLOGY_BASE_URL",
		"APP_HOST", "APP_PORT", "DATABASE_DRIVER", "DATABASE_URL", "MCP_TOKEN", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "schoolsync.yaml")
	yaml := "database:\n  driver: sqlite\n  path: " + filepath.Join(dir, "test.db") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExportICSOnEmptyStore(t *testing.T) {
	path := isolatedConfig(t)

	out, err := run(t, "--config", path, "--env-file", "", "export-ics")
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "METHOD:PUBLISH")
}

func TestExportICSToFile(t *testing.T) {
	path := isolatedConfig(t)
	target := filepath.Join(t.TempDir(), "feeds", "school.ics")

	_, err := run(t, "--config", path, "--env-file", "", "export-ics", "--out", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "END:VCALENDAR")
}

func TestSyncRequiresCredentials(t *testing.T) {
	path := isolatedConfig(t)

	_, err := run(t, "--config", path, "--env-file", "", "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHOOLOGY_COOKIE")
}

func TestWidgetURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8080/widget/briefing?range=week", widgetURL("0.0.0.0:8080", "week", false))
	assert.Equal(t, "http://[::1]:9000/widget/briefing?include_all=true&range=today", widgetURL("[::1]:9000", "today", true))
	assert.Equal(t, "http://127.0.0.1:8080/widget/briefing", widgetURL("garbage", "", false))
}

func TestCourseReload(t *testing.T) {
	a := &app{}
	assert.Nil(t, a.courseIDs())

	a.setCourses([]int64{1, 2})
	ids := a.courseIDs()
	ids[0] = 99
	assert.Equal(t, []int64{1, 2}, a.courseIDs(), "callers get a copy")
}

package store

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS assignments (
	id INTEGER PRIMARY KEY,
	course_id INTEGER NOT NULL DEFAULT 0,
	course_name TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	due_at TEXT,
	url TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	last_seen_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_due_at ON assignments (due_at)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_course ON assignments (course_id)`,
	`CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY,
	title TEXT NOT NULL,
	start_at TEXT NOT NULL,
	end_at TEXT,
	source TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS idx_events_start_at ON events (start_at)`,
	`CREATE TABLE IF NOT EXISTS resources (
	schoology_id INTEGER PRIMARY KEY,
	course_id INTEGER NOT NULL,
	course_name TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	type TEXT NOT NULL,
	parent_folder TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_resources_course_name ON resources (course_name)`,
	`CREATE TABLE IF NOT EXISTS planner_tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	due_at TEXT,
	origin TEXT NOT NULL DEFAULT 'personal',
	schoology_assignment_id INTEGER REFERENCES assignments (id) ON DELETE SET NULL,
	column_name TEXT NOT NULL DEFAULT 'todo',
	priority INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	ok INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	calendar_items INTEGER NOT NULL DEFAULT 0,
	resources INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs (started_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS assignments (
	id BIGINT PRIMARY KEY,
	course_id BIGINT NOT NULL DEFAULT 0,
	course_name TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	due_at TEXT,
	url TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'open',
	last_seen_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_due_at ON assignments (due_at)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_course ON assignments (course_id)`,
	`CREATE TABLE IF NOT EXISTS events (
	id BIGINT PRIMARY KEY,
	title TEXT NOT NULL,
	start_at TEXT NOT NULL,
	end_at TEXT,
	source TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS idx_events_start_at ON events (start_at)`,
	`CREATE TABLE IF NOT EXISTS resources (
	schoology_id BIGINT PRIMARY KEY,
	course_id BIGINT NOT NULL,
	course_name TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	type TEXT NOT NULL,
	parent_folder TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_resources_course_name ON resources (course_name)`,
	`CREATE TABLE IF NOT EXISTS planner_tasks (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	due_at TEXT,
	origin TEXT NOT NULL DEFAULT 'personal',
	schoology_assignment_id BIGINT REFERENCES assignments (id) ON DELETE SET NULL,
	column_name TEXT NOT NULL DEFAULT 'todo',
	priority INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	ok INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	calendar_items INTEGER NOT NULL DEFAULT 0,
	resources INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs (started_at)`,
}

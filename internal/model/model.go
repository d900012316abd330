package model

import (
	"strings"
	"time"
)

// ItemKind is the closed classification of a scraped calendar item. Every
// consumer switches on it instead of inspecting the raw upstream type.
type ItemKind int

const (
	KindEvent ItemKind = iota
	KindAssignment
)

func (k ItemKind) String() string {
	switch k {
	case KindAssignment:
		return "assignment"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Classify maps an upstream e_type onto an ItemKind. Anything that is not
// assignment-like is treated as an event.
func Classify(upstreamType string) ItemKind {
	switch strings.ToLower(strings.TrimSpace(upstreamType)) {
	case "assignment", "assessment", "common-assessment", "discussion":
		return KindAssignment
	default:
		return KindEvent
	}
}

// CalendarItem is one entry of the upstream calendar feed, produced by the
// scraping client and consumed once by the reconciler. It is never stored
// as-is.
type CalendarItem struct {
	ID   int64
	Type string // raw upstream e_type, e.g. "assignment", "event"
	Kind ItemKind

	TitleHTML string
	StartRaw  string // "YYYY-MM-DD HH:MM:SS"
	EndRaw    string
	HasEnd    bool

	CourseRealmID int64
	CourseName    string

	// ContentID is the stable id of the underlying assignment/discussion.
	// The calendar id is per-occurrence and must not be used for links when
	// a content id is present.
	ContentID int64
}

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Assignment is a persisted assignment-like calendar item.
type Assignment struct {
	ID         int64
	CourseID   int64
	CourseName string
	Title      string
	DueAt      *time.Time // UTC
	URL        string
	Status     string
	LastSeenAt time.Time // UTC, bumped on every observation
}

// Event is a persisted non-assignment calendar item.
type Event struct {
	ID     int64
	Title  string
	Start  time.Time
	End    *time.Time
	Source string
}

// ResourceType is one of the six course-material filters.
type ResourceType string

const (
	ResourceAssignment ResourceType = "Assignment"
	ResourceAssessment ResourceType = "Assessment"
	ResourceFile       ResourceType = "File"
	ResourceLink       ResourceType = "Link"
	ResourceDiscussion ResourceType = "Discussion"
	ResourcePage       ResourceType = "Page"
)

// ResourceTypes lists the material categories in fetch order.
var ResourceTypes = []ResourceType{
	ResourceAssignment,
	ResourceAssessment,
	ResourceFile,
	ResourceLink,
	ResourceDiscussion,
	ResourcePage,
}

// Resource is a course material row. Identity is SchoologyID.
type Resource struct {
	SchoologyID  int64
	CourseID     int64
	CourseName   string
	Title        string
	URL          string
	Type         ResourceType
	ParentFolder *string
}

const (
	OriginSchoology = "schoology"
	OriginPersonal  = "personal"
)

// Planner board columns.
const (
	ColumnTodo       = "todo"
	ColumnInProgress = "in_progress"
	ColumnDone       = "done"
)

// ValidColumn reports whether c is a known planner column.
func ValidColumn(c string) bool {
	switch c {
	case ColumnTodo, ColumnInProgress, ColumnDone:
		return true
	}
	return false
}

// PlannerTask is a user-managed task. It is not touched by sync.
type PlannerTask struct {
	ID                    int64
	Title                 string
	DueAt                 *time.Time
	Origin                string
	SchoologyAssignmentID *int64
	Column                string
	Priority              int
}

// SyncRun records the outcome of one sync cycle.
type SyncRun struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	OK            bool
	Error         string
	CalendarItems int
	Resources     int
}

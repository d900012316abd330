package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want ItemKind
	}{
		{"assignment", KindAssignment},
		{"assessment", KindAssignment},
		{"common-assessment", KindAssignment},
		{"discussion", KindAssignment},
		{" Discussion ", KindAssignment},
		{"event", KindEvent},
		{"course-event", KindEvent},
		{"", KindEvent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.in), "type %q", tt.in)
	}
}

func TestValidColumn(t *testing.T) {
	assert.True(t, ValidColumn(ColumnTodo))
	assert.True(t, ValidColumn(ColumnInProgress))
	assert.True(t, ValidColumn(ColumnDone))
	assert.False(t, ValidColumn("backlog"))
}

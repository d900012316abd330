package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDefaults(t *testing.T) {
	o := SnapshotOptions{URL: "http://127.0.0.1:8080/widget/briefing", OutputPath: "out/briefing.png"}
	require.NoError(t, o.normalize())

	assert.Equal(t, DefaultWidth, o.Width)
	assert.Equal(t, DefaultHeight, o.Height)
	assert.Equal(t, DefaultTimeout, o.Timeout)
}

func TestSnapshotRequiresURLAndPath(t *testing.T) {
	err := SnapshotPNG(context.Background(), SnapshotOptions{OutputPath: "x.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL is required")

	err = SnapshotPNG(context.Background(), SnapshotOptions{URL: "http://localhost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OutputPath is required")
}

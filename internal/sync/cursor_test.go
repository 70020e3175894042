package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorShouldLoadMore(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		scrollTop int
		hasNext   bool
		loading   bool
		want      bool
	}{
		{"at top with more pages", 3, 0, true, false, true},
		{"within threshold", 3, 3, true, false, true},
		{"below threshold", 3, 4, true, false, false},
		{"no more pages", 3, 0, false, false, false},
		{"load already in flight", 3, 0, true, true, false},
		{"zero threshold exact top", 0, 0, true, false, true},
		{"zero threshold one off", 0, 1, true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPaginationCursor(tt.threshold)
			got := c.ShouldLoadMore(tt.scrollTop, tt.hasNext, tt.loading)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCursorAdvanceIsMonotonic(t *testing.T) {
	c := NewPaginationCursor(3)
	c.Reset("conv_1")

	require.Equal(t, 0, c.Page())
	require.Equal(t, 1, c.Advance())
	require.Equal(t, 2, c.Advance())
	require.Equal(t, 2, c.Page())
}

func TestCursorResetOnConversationSwitch(t *testing.T) {
	c := NewPaginationCursor(3)
	c.Reset("conv_1")
	c.Advance()
	c.Advance()
	c.CaptureAnchor(120)

	c.Reset("conv_2")

	assert.Equal(t, "conv_2", c.ConversationID())
	assert.Equal(t, 0, c.Page())
	assert.False(t, c.Anchored())
	assert.Equal(t, 0, c.RestoreAnchor(200))
}

func TestCursorRetreatAfterFailedFetch(t *testing.T) {
	c := NewPaginationCursor(3)
	c.Reset("conv_1")
	c.Advance()
	c.CaptureAnchor(80)

	c.Retreat()

	assert.Equal(t, 0, c.Page())
	assert.False(t, c.Anchored())

	// Retreat at page zero stays at zero.
	c.Retreat()
	assert.Equal(t, 0, c.Page())
}

// Prepending K units of content must shift the viewport by exactly the height
// the new content contributed, so the previously visible message stays put.
func TestCursorAnchorDeltaEqualsPrependedHeight(t *testing.T) {
	c := NewPaginationCursor(3)
	c.Reset("conv_1")

	c.CaptureAnchor(100)
	require.True(t, c.Anchored())

	delta := c.RestoreAnchor(160)
	assert.Equal(t, 60, delta)
	assert.False(t, c.Anchored())
}

func TestCursorRestoreAnchorIsConsumed(t *testing.T) {
	c := NewPaginationCursor(3)
	c.CaptureAnchor(100)

	require.Equal(t, 50, c.RestoreAnchor(150))
	assert.Equal(t, 0, c.RestoreAnchor(150))
}

func TestCursorRestoreAnchorClampsShrunkContent(t *testing.T) {
	c := NewPaginationCursor(3)
	c.CaptureAnchor(100)

	assert.Equal(t, 0, c.RestoreAnchor(90))
}

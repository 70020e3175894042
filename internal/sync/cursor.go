package sync

// PaginationCursor tracks the backward-paging position for one conversation's
// history and the scroll anchor needed to keep the viewport stable when older
// messages are prepended above it.
//
// Heights and offsets are in rendered units (lines for the TUI, pixels for a
// web surface); the cursor only does arithmetic on them.
type PaginationCursor struct {
	conversationID string
	page           int
	threshold      int

	anchored     bool
	anchorHeight int
}

// NewPaginationCursor creates a cursor with the given near-top threshold.
func NewPaginationCursor(threshold int) *PaginationCursor {
	if threshold < 0 {
		threshold = 0
	}
	return &PaginationCursor{threshold: threshold}
}

// Reset points the cursor at a conversation and discards all paging state.
// Switching conversations always resets the page index to zero.
func (c *PaginationCursor) Reset(conversationID string) {
	c.conversationID = conversationID
	c.page = 0
	c.anchored = false
	c.anchorHeight = 0
}

// ConversationID returns the conversation the cursor is tracking.
func (c *PaginationCursor) ConversationID() string {
	return c.conversationID
}

// Page returns the last fetched page index.
func (c *PaginationCursor) Page() int {
	return c.page
}

// Advance increments the page index for the next "load older" fetch and
// returns it. Monotonic per conversation.
func (c *PaginationCursor) Advance() int {
	c.page++
	return c.page
}

// Retreat undoes the last Advance after a failed fetch so a retry requests
// the same page again.
func (c *PaginationCursor) Retreat() {
	if c.page > 0 {
		c.page--
	}
	c.anchored = false
	c.anchorHeight = 0
}

// ShouldLoadMore reports whether a backward page fetch should be triggered:
// the scroll offset is near the top, more pages exist, and no load is already
// in flight (single-flight per conversation).
func (c *PaginationCursor) ShouldLoadMore(scrollTop int, hasNextPage, isLoadingMore bool) bool {
	if isLoadingMore || !hasNextPage {
		return false
	}
	return scrollTop <= c.threshold
}

// CaptureAnchor records the scrollable content height just before a page
// request is issued.
func (c *PaginationCursor) CaptureAnchor(contentHeight int) {
	c.anchored = true
	c.anchorHeight = contentHeight
}

// RestoreAnchor consumes the captured anchor and returns the scroll delta the
// view must apply after the new page rendered: the height contributed by the
// prepended content. Prepending must not move the viewport's visible content.
// Returns 0 when no anchor was captured.
func (c *PaginationCursor) RestoreAnchor(newContentHeight int) int {
	if !c.anchored {
		return 0
	}
	c.anchored = false
	delta := newContentHeight - c.anchorHeight
	c.anchorHeight = 0
	if delta < 0 {
		return 0
	}
	return delta
}

// Anchored reports whether an anchor capture is pending restore.
func (c *PaginationCursor) Anchored() bool {
	return c.anchored
}

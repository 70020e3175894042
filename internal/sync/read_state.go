package sync

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/storefront-io/chatsync/internal/logging"
	"github.com/storefront-io/chatsync/internal/models"
)

// ReadStateTracker derives unread state and pushes idempotent mark-as-read
// acknowledgements to the backend. Mark-as-read is fire-and-forget: the UI
// never blocks on it and failures are silently tolerated, because the pure
// derivation re-corrects as soon as a fresh last message arrives.
type ReadStateTracker struct {
	selfID  string
	backend Backend
	logger  zerolog.Logger

	// onAcknowledged runs after a successful mark-as-read, typically to
	// refresh the global unread badge. May be invoked from another goroutine.
	onAcknowledged func(conversationID string)
}

// NewReadStateTracker creates a tracker for the given user.
func NewReadStateTracker(selfID string, backend Backend, onAcknowledged func(conversationID string)) *ReadStateTracker {
	return &ReadStateTracker{
		selfID:         selfID,
		backend:        backend,
		logger:         logging.Component("read-state"),
		onAcknowledged: onAcknowledged,
	}
}

// IsUnread is the single derivation of unread state: the current user is not
// in the last message's read-by set. Recomputed on every call; never cached.
func (t *ReadStateTracker) IsUnread(conv *models.Conversation) bool {
	if conv == nil {
		return false
	}
	return conv.UnreadFor(t.selfID)
}

// MarkAsRead acknowledges a conversation in the background. Safe to call
// redundantly; the backend treats it as idempotent.
func (t *ReadStateTracker) MarkAsRead(ctx context.Context, conversationID string) {
	if conversationID == "" {
		return
	}

	go func() {
		if err := t.backend.MarkRead(ctx, conversationID); err != nil {
			// Best-effort: unread state stays stale until the next attempt or
			// the next last-message update.
			t.logger.Debug().Err(err).Str("conversation_id", conversationID).Msg("mark-as-read failed")
			return
		}
		if t.onAcknowledged != nil {
			t.onAcknowledged(conversationID)
		}
	}()
}

package sync

import "github.com/storefront-io/chatsync/internal/models"

// ConversationList holds the set of conversations visible to the current
// user, ordered by most-recent-activity descending. A push event is the only
// thing that reorders it outside of a fresh page load.
type ConversationList struct {
	selfID  string
	entries []models.Conversation
}

// NewConversationList creates an empty list owned by the given user.
func NewConversationList(selfID string) *ConversationList {
	return &ConversationList{selfID: selfID}
}

// ApplyPage merges one fetched list page. The first page replaces the list;
// later pages append only conversations not already present (infinite
// scroll). Conversations without a server ID are never admitted.
func (l *ConversationList) ApplyPage(page []models.Conversation, firstPage bool) {
	if firstPage {
		l.entries = l.entries[:0]
	}

	for i := range page {
		if !page[i].Created() {
			continue
		}
		if l.indexOf(page[i].ID) >= 0 {
			continue
		}
		l.entries = append(l.entries, page[i].Clone())
	}
}

// ApplyPushedActivity merges a push-delivered message into the list. If the
// conversation is known, its last message is updated in place and the entry
// moves to the front; when the conversation is currently open,
// openConversationID marks the copy as read-by-self before reordering, since
// the user is actively viewing it.
//
// Returns false when the conversation is unknown: the caller must resolve it
// with a single-conversation fetch and Prepend the result.
func (l *ConversationList) ApplyPushedActivity(msg models.Message, openConversationID string) bool {
	idx := l.indexOf(msg.ConversationID)
	if idx < 0 {
		return false
	}

	last := msg.Clone()
	if msg.ConversationID == openConversationID {
		last.MarkReadBy(l.selfID)
	}
	l.entries[idx].LastMessage = &last

	l.moveToFront(idx)
	return true
}

// Prepend inserts a freshly fetched conversation at the front. Used when a
// push event referenced a conversation the list did not know. Idempotent: a
// known ID updates in place and moves to the front instead.
func (l *ConversationList) Prepend(conv models.Conversation) {
	if !conv.Created() {
		return
	}
	if idx := l.indexOf(conv.ID); idx >= 0 {
		l.entries[idx] = conv.Clone()
		l.moveToFront(idx)
		return
	}
	l.entries = append([]models.Conversation{conv.Clone()}, l.entries...)
}

// MarkReadLocal records the current user in the last message's read-by set
// for one conversation. Pure local mutation; the backend call is the
// ReadStateTracker's job.
func (l *ConversationList) MarkReadLocal(conversationID string) {
	idx := l.indexOf(conversationID)
	if idx < 0 || l.entries[idx].LastMessage == nil {
		return
	}
	l.entries[idx].LastMessage.MarkReadBy(l.selfID)
}

// Get returns a copy of a conversation by ID.
func (l *ConversationList) Get(conversationID string) (models.Conversation, bool) {
	idx := l.indexOf(conversationID)
	if idx < 0 {
		return models.Conversation{}, false
	}
	return l.entries[idx].Clone(), true
}

// Conversations returns a copy of the list in display order.
func (l *ConversationList) Conversations() []models.Conversation {
	out := make([]models.Conversation, len(l.entries))
	for i := range l.entries {
		out[i] = l.entries[i].Clone()
	}
	return out
}

// Len returns the number of listed conversations.
func (l *ConversationList) Len() int {
	return len(l.entries)
}

// UnreadCount derives the number of unread conversations. Always recomputed
// from the last messages' read-by sets, never cached.
func (l *ConversationList) UnreadCount() int {
	count := 0
	for i := range l.entries {
		if l.entries[i].UnreadFor(l.selfID) {
			count++
		}
	}
	return count
}

func (l *ConversationList) indexOf(conversationID string) int {
	if conversationID == "" {
		return -1
	}
	for i := range l.entries {
		if l.entries[i].ID == conversationID {
			return i
		}
	}
	return -1
}

func (l *ConversationList) moveToFront(idx int) {
	if idx <= 0 {
		return
	}
	entry := l.entries[idx]
	copy(l.entries[1:idx+1], l.entries[:idx])
	l.entries[0] = entry
}

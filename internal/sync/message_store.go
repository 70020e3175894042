// Package sync implements the client-side conversation synchronization engine:
// ordered deduplicated message history, backward pagination with scroll-anchor
// stability, a recency-ordered conversation list, read-state tracking, and
// optimistic sends. It is transport-agnostic; REST and push transports plug in
// through the Backend and publisher interfaces.
package sync

import (
	"sort"

	"github.com/storefront-io/chatsync/internal/models"
)

// MessageStore holds the ordered message history for one open conversation.
// The buffer is kept oldest-first for display; the backend serves pages
// newest-first. Every merge point deduplicates by message ID because page
// fetches and push deliveries are not mutually exclusive in time.
//
// All merge operations are pure with respect to input ordering: applying the
// same batch or push twice never changes the result.
type MessageStore struct {
	conversationID string
	messages       []models.Message
	present        map[string]struct{}
}

// NewMessageStore creates an empty store for one conversation.
func NewMessageStore(conversationID string) *MessageStore {
	return &MessageStore{
		conversationID: conversationID,
		present:        make(map[string]struct{}),
	}
}

// ConversationID returns the conversation this store owns.
func (s *MessageStore) ConversationID() string {
	return s.conversationID
}

// Merge applies one fetched history page. The batch arrives newest-first.
//
// A first page replaces the buffer entirely. A later ("load older") page is
// reversed and prepended, then deduplicated by ID with the first occurrence
// winning, because a concurrent push may have delivered a message that also
// appears in the page.
func (s *MessageStore) Merge(batch []models.Message, firstPage bool) {
	reversed := make([]models.Message, 0, len(batch))
	for i := len(batch) - 1; i >= 0; i-- {
		reversed = append(reversed, batch[i].Clone())
	}

	if firstPage {
		s.messages = reversed
	} else {
		s.messages = append(reversed, s.messages...)
	}

	s.dedupe()
	s.sortByTimestamp()
}

// AppendPushed inserts a push-delivered message if its ID is not already
// present, making push delivery idempotent against replays or races with an
// in-flight page fetch. Returns true if the message was added.
func (s *MessageStore) AppendPushed(msg models.Message) bool {
	if msg.ID == "" {
		return false
	}
	if _, ok := s.present[msg.ID]; ok {
		return false
	}

	s.present[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg.Clone())

	// The usual case is a strictly newer message; only re-sort when the push
	// actually landed out of order.
	if n := len(s.messages); n > 1 && s.messages[n-1].Before(&s.messages[n-2]) {
		s.sortByTimestamp()
	}
	return true
}

// Seed installs the single message returned by a creation send. Used when the
// conversation was just created and no history fetch can return it yet.
func (s *MessageStore) Seed(msg models.Message) {
	if msg.ID == "" {
		return
	}
	if _, ok := s.present[msg.ID]; ok {
		return
	}
	s.present[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg.Clone())
	s.sortByTimestamp()
}

// Messages returns a copy of the buffer, oldest-first.
func (s *MessageStore) Messages() []models.Message {
	out := make([]models.Message, len(s.messages))
	for i := range s.messages {
		out[i] = s.messages[i].Clone()
	}
	return out
}

// Len returns the number of buffered messages.
func (s *MessageStore) Len() int {
	return len(s.messages)
}

// Contains reports whether a message ID is buffered.
func (s *MessageStore) Contains(id string) bool {
	_, ok := s.present[id]
	return ok
}

// IndexOf returns the buffer position of a message, or -1.
func (s *MessageStore) IndexOf(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Last returns a copy of the newest buffered message.
func (s *MessageStore) Last() (models.Message, bool) {
	if len(s.messages) == 0 {
		return models.Message{}, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

// MarkAllReadBy records userID in every buffered message's read-by set.
func (s *MessageStore) MarkAllReadBy(userID string) {
	for i := range s.messages {
		s.messages[i].MarkReadBy(userID)
	}
}

// dedupe removes later occurrences of an already-seen ID, preserving the
// position of the first occurrence, and rebuilds the presence index.
func (s *MessageStore) dedupe() {
	seen := make(map[string]struct{}, len(s.messages))
	out := s.messages[:0]
	for i := range s.messages {
		id := s.messages[i].ID
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, s.messages[i])
	}
	s.messages = out
	s.present = seen
}

// sortByTimestamp restores the total order: server timestamp ascending, ID as
// tiebreaker. Stable so equal keys keep their merge position.
func (s *MessageStore) sortByTimestamp() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		return s.messages[i].Before(&s.messages[j])
	})
}

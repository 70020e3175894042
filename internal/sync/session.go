package sync

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"

	"github.com/rs/zerolog"

	"github.com/storefront-io/chatsync/internal/events"
	"github.com/storefront-io/chatsync/internal/logging"
	"github.com/storefront-io/chatsync/internal/models"
)

const (
	// DefaultPageSize is the backend's history page size.
	DefaultPageSize = 25

	// DefaultListPageSize is the conversation-list page size.
	DefaultListPageSize = 20
)

// Notifier surfaces user-visible, non-fatal failures (fetch errors). State
// prior to a failed call is always preserved; retry is manual.
type Notifier func(text string, err error)

// Options configures a Session.
type Options struct {
	// SelfID is the current user's participant ID. Required.
	SelfID string

	// PageSize is the history page size. Default: 25.
	PageSize int

	// ListPageSize is the conversation-list page size. Default: 20.
	ListPageSize int

	// LoadMoreThreshold is the near-top scroll distance that triggers a
	// backward page fetch.
	LoadMoreThreshold int

	// Notify receives user-visible failure notifications. Optional.
	Notify Notifier
}

// Session is the single owner of one user's synchronization state: the
// conversation list, the open conversation's message store and pagination
// cursor, and the read tracker. Multiple independently-timed sources (page
// fetches, push deliveries, user mutations) converge here; a mutex plus an
// epoch counter enforce the single-logical-owner model and discard results
// that arrive for a conversation that is no longer active.
type Session struct {
	opts        Options
	backend     Backend
	coordinator *SendCoordinator
	tracker     *ReadStateTracker
	bus         events.Bus
	cache       Cache
	logger      zerolog.Logger

	mu          gosync.Mutex
	list        *ConversationList
	store       *MessageStore
	cursor      *PaginationCursor
	active      string
	epoch       uint64
	loadingMore bool
	hasNext     bool
	listPage    int
	listHasNext bool
	keyword     string
	unreadTotal int
}

// NewSession wires the engine. publisher, drafts, cache and bus may be nil
// where the corresponding concern is not needed (tests, headless use).
func NewSession(opts Options, backend Backend, publisher PushPublisher, drafts DraftStore, cache Cache, bus events.Bus) (*Session, error) {
	if strings.TrimSpace(opts.SelfID) == "" {
		return nil, fmt.Errorf("self ID required")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.ListPageSize <= 0 {
		opts.ListPageSize = DefaultListPageSize
	}

	s := &Session{
		opts:        opts,
		backend:     backend,
		coordinator: NewSendCoordinator(backend, publisher, drafts),
		bus:         bus,
		cache:       cache,
		logger:      logging.Component("session"),
		list:        NewConversationList(opts.SelfID),
		store:       NewMessageStore(""),
		cursor:      NewPaginationCursor(opts.LoadMoreThreshold),
	}
	s.tracker = NewReadStateTracker(opts.SelfID, backend, s.onReadAcknowledged)
	return s, nil
}

// Tracker exposes the read-state tracker for views that observe unread state.
func (s *Session) Tracker() *ReadStateTracker {
	return s.tracker
}

// SelfID returns the current user's participant ID.
func (s *Session) SelfID() string {
	return s.opts.SelfID
}

// ActiveConversationID returns the currently open conversation, or "".
func (s *Session) ActiveConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Messages returns the open conversation's buffered history, oldest-first.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Messages()
}

// Conversations returns the list in display order.
func (s *Session) Conversations() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Conversations()
}

// UnreadCount derives the number of unread listed conversations.
func (s *Session) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.UnreadCount()
}

// UnreadTotal returns the backend's global unread badge count as of the last
// refresh.
func (s *Session) UnreadTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadTotal
}

// HasMoreHistory reports whether older pages exist for the open conversation.
func (s *Session) HasMoreHistory() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasNext
}

// HasMoreConversations reports whether further list pages exist.
func (s *Session) HasMoreConversations() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listHasNext
}

// OpenConversation makes a conversation active: pagination state is
// discarded, cached history is seeded best-effort, the first page is fetched
// and the conversation is acknowledged as read. A fetch failure keeps the
// seeded state and surfaces a notification.
func (s *Session) OpenConversation(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("conversation id required")
	}

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.active = conversationID
	s.store = NewMessageStore(conversationID)
	s.cursor.Reset(conversationID)
	s.loadingMore = false
	s.hasNext = false
	s.mu.Unlock()

	s.seedFromCache(ctx, conversationID, epoch)

	batch, hasNext, err := s.backend.FetchMessages(ctx, conversationID, 0, s.opts.PageSize)
	if err != nil {
		s.notify("could not load conversation history", err)
		return err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		// Conversation switched while the fetch was in flight; the result is
		// no longer relevant.
		s.mu.Unlock()
		return nil
	}
	s.store.Merge(batch, true)
	s.hasNext = hasNext
	s.list.MarkReadLocal(conversationID)
	s.mu.Unlock()

	s.tracker.MarkAsRead(ctx, conversationID)
	s.persistMessages(ctx, batch)
	return nil
}

// SeedConversation adopts a just-created conversation: the server-assigned ID
// becomes active and the store is seeded with the returned first message
// instead of waiting for a fetch that could not return it yet.
func (s *Session) SeedConversation(conversationID string, seed models.Message, counterparty models.Participant, shop models.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	s.active = conversationID
	s.store = NewMessageStore(conversationID)
	s.cursor.Reset(conversationID)
	s.loadingMore = false
	s.hasNext = false

	seed.ConversationID = conversationID
	s.store.Seed(seed)

	last := seed.Clone()
	last.MarkReadBy(s.opts.SelfID)
	s.list.Prepend(models.Conversation{
		ID:           conversationID,
		Counterparty: counterparty,
		Shop:         shop,
		LastMessage:  &last,
	})
}

// LoadOlder triggers a backward history fetch when the scroll position is
// near the top. Single-flight per conversation: a load already in flight
// suppresses the trigger. Returns true when a fetch was performed and merged.
func (s *Session) LoadOlder(ctx context.Context, scrollTop, contentHeight int) (bool, error) {
	s.mu.Lock()
	if s.active == "" || !s.cursor.ShouldLoadMore(scrollTop, s.hasNext, s.loadingMore) {
		s.mu.Unlock()
		return false, nil
	}
	s.loadingMore = true
	page := s.cursor.Advance()
	s.cursor.CaptureAnchor(contentHeight)
	epoch := s.epoch
	conversationID := s.active
	s.mu.Unlock()

	batch, hasNext, err := s.backend.FetchMessages(ctx, conversationID, page, s.opts.PageSize)

	s.mu.Lock()
	if s.epoch != epoch {
		// Stale result for a conversation that is no longer active. The reset
		// on switch already cleared loadingMore and the cursor.
		s.mu.Unlock()
		return false, nil
	}
	s.loadingMore = false
	if err != nil {
		s.cursor.Retreat()
		s.mu.Unlock()
		s.notify("could not load older messages", err)
		return false, err
	}
	s.store.Merge(batch, false)
	s.hasNext = hasNext
	s.mu.Unlock()

	s.persistMessages(ctx, batch)
	return true, nil
}

// RestoreScrollAnchor returns the scroll delta to apply after a prepending
// merge rendered, so the viewport's visible content does not move.
func (s *Session) RestoreScrollAnchor(newContentHeight int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.RestoreAnchor(newContentHeight)
}

// RefreshList fetches one conversation-list page. firstPage resets paging and
// replaces the list; otherwise the next page is appended (infinite scroll).
func (s *Session) RefreshList(ctx context.Context, keyword string, firstPage bool) error {
	s.mu.Lock()
	if firstPage {
		s.listPage = 0
		s.keyword = keyword
	} else {
		s.listPage++
	}
	page := s.listPage
	keyword = s.keyword
	s.mu.Unlock()

	batch, hasNext, err := s.backend.FetchConversations(ctx, keyword, page, s.opts.ListPageSize)
	if err != nil {
		s.mu.Lock()
		if !firstPage && s.listPage == page {
			s.listPage--
		}
		s.mu.Unlock()
		s.notify("could not load conversations", err)
		return err
	}

	s.mu.Lock()
	s.list.ApplyPage(batch, firstPage)
	s.listHasNext = hasNext
	s.mu.Unlock()

	s.persistConversations(ctx, batch)
	return nil
}

// SeedListFromCache loads cached conversations before the first list fetch
// completes. Best-effort.
func (s *Session) SeedListFromCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	cached, err := s.cache.Conversations(ctx, s.opts.ListPageSize)
	if err != nil || len(cached) == 0 {
		return
	}
	s.mu.Lock()
	if s.list.Len() == 0 {
		s.list.ApplyPage(cached, true)
	}
	s.mu.Unlock()
}

// HandlePushed routes one push-delivered message to the owning stores. All
// merge points deduplicate, so replays and races with in-flight fetches are
// harmless. An unknown conversation is resolved with a single fetch; if that
// also fails the event is dropped (list visibility only, the message itself
// reappears on the next full refresh).
func (s *Session) HandlePushed(ctx context.Context, msg models.Message) {
	if strings.TrimSpace(msg.ConversationID) == "" || strings.TrimSpace(msg.ID) == "" {
		return
	}

	s.mu.Lock()
	active := s.active
	appended := false
	if msg.ConversationID == active {
		appended = s.store.AppendPushed(msg)
	}
	known := s.list.ApplyPushedActivity(msg, active)
	s.mu.Unlock()

	if appended && msg.SenderID != s.opts.SelfID {
		// The user is looking at the conversation; acknowledge immediately.
		s.tracker.MarkAsRead(ctx, msg.ConversationID)
	}

	if !known {
		conv, err := s.backend.FetchConversation(ctx, msg.ConversationID)
		if err != nil {
			s.logger.Debug().Err(err).Str("conversation_id", msg.ConversationID).Msg("dropping push for unknown conversation")
		} else {
			s.mu.Lock()
			if conv.LastMessage == nil {
				last := msg.Clone()
				conv.LastMessage = &last
			}
			s.list.Prepend(conv)
			s.mu.Unlock()
		}
	}

	if s.bus != nil {
		m := msg.Clone()
		s.bus.Publish(ctx, events.Event{
			Type:           events.TypeMessageCreated,
			ConversationID: msg.ConversationID,
			Message:        &m,
		})
	}

	s.persistMessages(ctx, []models.Message{msg})
}

// Send runs the optimistic send machine. On a creation send the returned
// conversation ID is adopted and the store seeded with the created message;
// on the existing path the message arrives back via push.
func (s *Session) Send(ctx context.Context, input SendInput) (SendResult, error) {
	result, err := s.coordinator.Send(ctx, input)
	if err != nil {
		return result, err
	}

	if result.Created != nil {
		s.SeedConversation(result.ConversationID, *result.Created,
			models.Participant{ID: input.CounterpartyID},
			models.Shop{ID: input.ShopID})
		s.persistMessages(ctx, []models.Message{*result.Created})
	}
	return result, nil
}

// MarkConversationRead acknowledges a conversation (list-item click) and
// updates the local derivation immediately.
func (s *Session) MarkConversationRead(ctx context.Context, conversationID string) {
	s.mu.Lock()
	s.list.MarkReadLocal(conversationID)
	s.mu.Unlock()
	s.tracker.MarkAsRead(ctx, conversationID)
}

// onReadAcknowledged refreshes the global unread badge after a successful
// mark-as-read. Runs on the tracker's goroutine.
func (s *Session) onReadAcknowledged(conversationID string) {
	count, err := s.backend.UnreadCount(context.Background())
	if err != nil {
		s.logger.Debug().Err(err).Msg("unread-count refresh failed")
		return
	}

	s.mu.Lock()
	s.unreadTotal = count
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(context.Background(), events.Event{
			Type:           events.TypeConversationRead,
			ConversationID: conversationID,
		})
	}
}

func (s *Session) seedFromCache(ctx context.Context, conversationID string, epoch uint64) {
	if s.cache == nil {
		return
	}
	cached, err := s.cache.RecentMessages(ctx, conversationID, s.opts.PageSize)
	if err != nil || len(cached) == 0 {
		return
	}
	s.mu.Lock()
	if s.epoch == epoch {
		s.store.Merge(cached, true)
	}
	s.mu.Unlock()
}

func (s *Session) persistMessages(ctx context.Context, batch []models.Message) {
	if s.cache == nil || len(batch) == 0 {
		return
	}
	if err := s.cache.SaveMessages(ctx, batch); err != nil {
		s.logger.Debug().Err(err).Msg("message cache write failed")
	}
}

func (s *Session) persistConversations(ctx context.Context, batch []models.Conversation) {
	if s.cache == nil || len(batch) == 0 {
		return
	}
	if err := s.cache.SaveConversations(ctx, batch); err != nil {
		s.logger.Debug().Err(err).Msg("conversation cache write failed")
	}
}

func (s *Session) notify(text string, err error) {
	if s.opts.Notify != nil {
		s.opts.Notify(text, err)
	}
}

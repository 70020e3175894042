package sync

import (
	"context"
	"fmt"
	gosync "sync"

	"github.com/storefront-io/chatsync/internal/models"
)

// fakeBackend is an in-memory Backend with programmable responses and call
// recording. Safe for concurrent use because mark-as-read runs off-goroutine.
type fakeBackend struct {
	mu gosync.Mutex

	messagePages map[string][][]models.Message
	listPages    [][]models.Conversation
	convs        map[string]models.Conversation
	unreadTotal  int

	createdID  string
	createdMsg models.Message

	fetchErr  error
	listErr   error
	convErr   error
	createErr error
	markErr   error

	fetchCalls  []fetchCall
	markedRead  []string
	createCalls []CreateRequest

	// fetchGate, when set, blocks FetchMessages until released. Used to
	// interleave a conversation switch with an in-flight fetch.
	fetchGate chan struct{}
}

type fetchCall struct {
	conversationID string
	page           int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		messagePages: make(map[string][][]models.Message),
		convs:        make(map[string]models.Conversation),
	}
}

func (f *fakeBackend) FetchMessages(ctx context.Context, conversationID string, page, pageSize int) ([]models.Message, bool, error) {
	f.mu.Lock()
	gate := f.fetchGate
	f.fetchGate = nil // only the first fetch blocks
	f.fetchCalls = append(f.fetchCalls, fetchCall{conversationID, page})
	err := f.fetchErr
	pages := f.messagePages[conversationID]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, false, err
	}
	if page >= len(pages) {
		return nil, false, nil
	}
	return pages[page], page+1 < len(pages), nil
}

func (f *fakeBackend) FetchConversations(ctx context.Context, keyword string, page, pageSize int) ([]models.Conversation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, false, f.listErr
	}
	if page >= len(f.listPages) {
		return nil, false, nil
	}
	return f.listPages[page], page+1 < len(f.listPages), nil
}

func (f *fakeBackend) FetchConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.convErr != nil {
		return models.Conversation{}, f.convErr
	}
	conv, ok := f.convs[conversationID]
	if !ok {
		return models.Conversation{}, fmt.Errorf("conversation %s not found", conversationID)
	}
	return conv, nil
}

func (f *fakeBackend) CreateConversation(ctx context.Context, req CreateRequest) (string, models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, req)
	if f.createErr != nil {
		return "", models.Message{}, f.createErr
	}
	return f.createdID, f.createdMsg, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.markedRead = append(f.markedRead, conversationID)
	return nil
}

func (f *fakeBackend) UnreadCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unreadTotal, nil
}

func (f *fakeBackend) markedReadIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.markedRead...)
}

func (f *fakeBackend) fetchedPages() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.fetchCalls...)
}

// fakePublisher records push publishes and optionally fails them.
type fakePublisher struct {
	mu        gosync.Mutex
	err       error
	published []publishedMessage
}

type publishedMessage struct {
	conversationID string
	receiverID     string
	kind           models.MessageKind
	content        string
}

func (f *fakePublisher) PublishMessage(ctx context.Context, conversationID, receiverID string, kind models.MessageKind, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, publishedMessage{conversationID, receiverID, kind, content})
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

// fakeDrafts is a map-backed DraftStore.
type fakeDrafts struct {
	mu     gosync.Mutex
	drafts map[string]string
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{drafts: make(map[string]string)}
}

func (f *fakeDrafts) Draft(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.drafts[key]
	return v, ok
}

func (f *fakeDrafts) SaveDraft(key, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts[key] = content
}

func (f *fakeDrafts) DeleteDraft(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, key)
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-io/chatsync/internal/events"
	"github.com/storefront-io/chatsync/internal/models"
)

func newTestSession(t *testing.T, backend Backend, publisher PushPublisher) *Session {
	t.Helper()
	s, err := NewSession(Options{
		SelfID:            "me",
		PageSize:          25,
		LoadMoreThreshold: 3,
	}, backend, publisher, newFakeDrafts(), nil, events.NewInMemoryBus())
	require.NoError(t, err)
	return s
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionRequiresSelfID(t *testing.T) {
	_, err := NewSession(Options{}, newFakeBackend(), nil, nil, nil, nil)
	require.Error(t, err)
}

func TestSessionOpenConversationLoadsFirstPage(t *testing.T) {
	backend := newFakeBackend()
	backend.messagePages["conv_1"] = [][]models.Message{
		{msgAt("m3", 3), msgAt("m2", 2), msgAt("m1", 1)},
		{msgAt("m0", 0)},
	}
	s := newTestSession(t, backend, &fakePublisher{})

	require.NoError(t, s.OpenConversation(context.Background(), "conv_1"))

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m3", msgs[2].ID)
	assert.True(t, s.HasMoreHistory())
	assert.Equal(t, "conv_1", s.ActiveConversationID())

	waitFor(t, func() bool {
		return len(backend.markedReadIDs()) == 1
	}, "mark-as-read acknowledgement")
}

func TestSessionOpenConversationFetchFailureKeepsEmptyState(t *testing.T) {
	backend := newFakeBackend()
	backend.fetchErr = errors.New("gateway timeout")
	var notified error
	s, err := NewSession(Options{
		SelfID: "me",
		Notify: func(text string, err error) { notified = err },
	}, backend, nil, nil, nil, nil)
	require.NoError(t, err)

	require.Error(t, s.OpenConversation(context.Background(), "conv_1"))
	assert.Equal(t, 0, len(s.Messages()))
	assert.Error(t, notified)
}

// Switching conversations while a fetch is in flight must discard the stale
// result: the store never shows conversation A's messages under B.
func TestSessionDiscardsStaleFetchAfterSwitch(t *testing.T) {
	backend := newFakeBackend()
	backend.messagePages["conv_a"] = [][]models.Message{{msgAt("a1", 1)}}
	backend.messagePages["conv_b"] = [][]models.Message{
		{{ID: "b1", ConversationID: "conv_b", SenderID: "u", Kind: models.MessageKindText, Content: "b", CreatedAt: storeBase}},
	}
	gate := make(chan struct{})
	backend.fetchGate = gate
	s := newTestSession(t, backend, &fakePublisher{})

	done := make(chan error, 1)
	go func() {
		done <- s.OpenConversation(context.Background(), "conv_a")
	}()

	waitFor(t, func() bool {
		return len(backend.fetchedPages()) == 1
	}, "first fetch to start")

	require.NoError(t, s.OpenConversation(context.Background(), "conv_b"))
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, "conv_b", s.ActiveConversationID())
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "b1", msgs[0].ID)
}

func TestSessionLoadOlderMergesAndAnchors(t *testing.T) {
	backend := newFakeBackend()
	backend.messagePages["conv_1"] = [][]models.Message{
		{msgAt("m4", 4), msgAt("m3", 3)},
		{msgAt("m2", 2), msgAt("m1", 1)},
	}
	s := newTestSession(t, backend, &fakePublisher{})
	require.NoError(t, s.OpenConversation(context.Background(), "conv_1"))

	loaded, err := s.LoadOlder(context.Background(), 0, 40)
	require.NoError(t, err)
	require.True(t, loaded)

	msgs := s.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.False(t, s.HasMoreHistory())

	// 40 units of prepended content shift the viewport by exactly 40.
	assert.Equal(t, 40, s.RestoreScrollAnchor(80))
}

func TestSessionLoadOlderNotTriggeredAwayFromTop(t *testing.T) {
	backend := newFakeBackend()
	backend.messagePages["conv_1"] = [][]models.Message{
		{msgAt("m2", 2)},
		{msgAt("m1", 1)},
	}
	s := newTestSession(t, backend, &fakePublisher{})
	require.NoError(t, s.OpenConversation(context.Background(), "conv_1"))

	loaded, err := s.LoadOlder(context.Background(), 50, 100)
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Len(t, s.Messages(), 1)
}

func TestSessionLoadOlderFailureRetreatsForRetry(t *testing.T) {
	backend := newFakeBackend()
	backend.messagePages["conv_1"] = [][]models.Message{
		{msgAt("m2", 2)},
		{msgAt("m1", 1)},
	}
	s := newTestSession(t, backend, &fakePublisher{})
	require.NoError(t, s.OpenConversation(context.Background(), "conv_1"))

	backend.mu.Lock()
	backend.fetchErr = errors.New("flaky network")
	backend.mu.Unlock()
	_, err := s.LoadOlder(context.Background(), 0, 20)
	require.Error(t, err)
	assert.Len(t, s.Messages(), 1)

	backend.mu.Lock()
	backend.fetchErr = nil
	backend.mu.Unlock()
	loaded, err := s.LoadOlder(context.Background(), 0, 20)
	require.NoError(t, err)
	require.True(t, loaded)
	assert.Len(t, s.Messages(), 2)

	// Both attempts requested the same page.
	calls := backend.fetchedPages()
	require.Len(t, calls, 3)
	assert.Equal(t, 1, calls[1].page)
	assert.Equal(t, 1, calls[2].page)
}

func TestSessionHandlePushedIntoOpenConversation(t *testing.T) {
	backend := newFakeBackend()
	backend.messagePages["conv_1"] = [][]models.Message{{msgAt("m1", 1)}}
	backend.listPages = [][]models.Conversation{{conv("conv_1", nil)}}
	s := newTestSession(t, backend, &fakePublisher{})
	require.NoError(t, s.RefreshList(context.Background(), "", true))
	require.NoError(t, s.OpenConversation(context.Background(), "conv_1"))
	before := len(backend.markedReadIDs())

	pushed := msgAt("m2", 2)
	s.HandlePushed(context.Background(), pushed)
	s.HandlePushed(context.Background(), pushed)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m2", msgs[1].ID)

	// The open conversation stays read.
	assert.Equal(t, 0, s.UnreadCount())
	waitFor(t, func() bool {
		return len(backend.markedReadIDs()) >= before+1
	}, "pushed message acknowledgement")
}

func TestSessionHandlePushedReordersList(t *testing.T) {
	backend := newFakeBackend()
	backend.listPages = [][]models.Conversation{
		{conv("c1", nil), conv("c2", nil), conv("c3", nil)},
	}
	s := newTestSession(t, backend, &fakePublisher{})
	require.NoError(t, s.RefreshList(context.Background(), "", true))

	msg := msgAt("m1", 1)
	msg.ConversationID = "c3"
	s.HandlePushed(context.Background(), msg)

	convs := s.Conversations()
	require.Len(t, convs, 3)
	assert.Equal(t, "c3", convs[0].ID)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestSessionHandlePushedUnknownConversationPrepends(t *testing.T) {
	backend := newFakeBackend()
	backend.listPages = [][]models.Conversation{{conv("c1", nil)}}
	backend.convs["conv_5"] = conv("conv_5", nil)
	s := newTestSession(t, backend, &fakePublisher{})
	require.NoError(t, s.RefreshList(context.Background(), "", true))

	msg := msgAt("m9", 9)
	msg.ConversationID = "conv_5"
	s.HandlePushed(context.Background(), msg)

	convs := s.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "conv_5", convs[0].ID)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "m9", convs[0].LastMessage.ID)
	assert.True(t, convs[0].UnreadFor("me"))
}

func TestSessionHandlePushedUnknownConversationFetchFailureDrops(t *testing.T) {
	backend := newFakeBackend()
	backend.listPages = [][]models.Conversation{{conv("c1", nil)}}
	s := newTestSession(t, backend, &fakePublisher{})
	require.NoError(t, s.RefreshList(context.Background(), "", true))

	msg := msgAt("m9", 9)
	msg.ConversationID = "conv_ghost"
	s.HandlePushed(context.Background(), msg)

	assert.Equal(t, 1, len(s.Conversations()))
}

func TestSessionHandlePushedPublishesEvent(t *testing.T) {
	backend := newFakeBackend()
	backend.listPages = [][]models.Conversation{{conv("c1", nil)}}
	bus := events.NewInMemoryBus()
	s, err := NewSession(Options{SelfID: "me"}, backend, nil, nil, nil, bus)
	require.NoError(t, err)
	require.NoError(t, s.RefreshList(context.Background(), "", true))

	received := make(chan events.Event, 1)
	require.NoError(t, bus.Subscribe("push-events", events.Filter{
		Types: []events.Type{events.TypeMessageCreated},
	}, func(e events.Event) {
		received <- e
	}))

	msg := msgAt("m1", 1)
	msg.ConversationID = "c1"
	s.HandlePushed(context.Background(), msg)

	select {
	case e := <-received:
		assert.Equal(t, "c1", e.ConversationID)
		require.NotNil(t, e.Message)
		assert.Equal(t, "m1", e.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("bus event never arrived")
	}
}

func TestSessionSendCreationSeedsStoreAndList(t *testing.T) {
	backend := newFakeBackend()
	backend.createdID = "conv_9"
	backend.createdMsg = models.Message{
		ID:        "m1",
		SenderID:  "me",
		Kind:      models.MessageKindText,
		Content:   "Xin chào",
		CreatedAt: storeBase,
	}
	s := newTestSession(t, backend, &fakePublisher{})

	result, err := s.Send(context.Background(), SendInput{
		CounterpartyID: "user_7",
		ShopID:         "shop_1",
		Kind:           models.MessageKindText,
		Content:        "Xin chào",
	})

	require.NoError(t, err)
	assert.Equal(t, "conv_9", result.ConversationID)
	assert.Equal(t, "conv_9", s.ActiveConversationID())

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "conv_9", msgs[0].ConversationID)

	convs := s.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, "conv_9", convs[0].ID)
	assert.False(t, convs[0].UnreadFor("me"))
}

func TestSessionSendExistingDoesNotTouchStore(t *testing.T) {
	backend := newFakeBackend()
	backend.messagePages["conv_1"] = [][]models.Message{{msgAt("m1", 1)}}
	publisher := &fakePublisher{}
	s := newTestSession(t, backend, publisher)
	require.NoError(t, s.OpenConversation(context.Background(), "conv_1"))

	result, err := s.Send(context.Background(), SendInput{
		ConversationID: "conv_1",
		ReceiverID:     "user_7",
		Kind:           models.MessageKindText,
		Content:        "no echo",
	})

	require.NoError(t, err)
	assert.Nil(t, result.Created)
	assert.Equal(t, 1, publisher.count())
	assert.Len(t, s.Messages(), 1, "pushed confirmation, not a local echo, appends the message")
}

func TestSessionRefreshListPaging(t *testing.T) {
	backend := newFakeBackend()
	backend.listPages = [][]models.Conversation{
		{conv("c1", nil), conv("c2", nil)},
		{conv("c3", nil)},
	}
	s := newTestSession(t, backend, nil)

	require.NoError(t, s.RefreshList(context.Background(), "", true))
	assert.Equal(t, 2, len(s.Conversations()))
	assert.True(t, s.HasMoreConversations())

	require.NoError(t, s.RefreshList(context.Background(), "", false))
	convs := s.Conversations()
	require.Len(t, convs, 3)
	assert.Equal(t, "c3", convs[2].ID)
	assert.False(t, s.HasMoreConversations())
}

func TestSessionMarkConversationRead(t *testing.T) {
	last := msgAt("m1", 1)
	last.ConversationID = "c1"
	backend := newFakeBackend()
	backend.listPages = [][]models.Conversation{{conv("c1", &last)}}
	s := newTestSession(t, backend, nil)
	require.NoError(t, s.RefreshList(context.Background(), "", true))
	require.Equal(t, 1, s.UnreadCount())

	s.MarkConversationRead(context.Background(), "c1")

	assert.Equal(t, 0, s.UnreadCount())
	waitFor(t, func() bool {
		return len(backend.markedReadIDs()) == 1
	}, "backend acknowledgement")
}

func TestSessionUnreadTotalRefreshAfterAck(t *testing.T) {
	backend := newFakeBackend()
	backend.unreadTotal = 4
	backend.messagePages["conv_1"] = [][]models.Message{{msgAt("m1", 1)}}
	s := newTestSession(t, backend, nil)

	require.NoError(t, s.OpenConversation(context.Background(), "conv_1"))

	waitFor(t, func() bool {
		return s.UnreadTotal() == 4
	}, "unread total refresh")
}

func TestSessionConcurrentPushAndFetchNoDuplicates(t *testing.T) {
	backend := newFakeBackend()
	page := make([]models.Message, 0, 25)
	for i := 25; i >= 1; i-- {
		page = append(page, msgAt(fmt.Sprintf("m%d", i), i))
	}
	backend.messagePages["conv_1"] = [][]models.Message{page}
	s := newTestSession(t, backend, nil)
	require.NoError(t, s.OpenConversation(context.Background(), "conv_1"))

	// Replay a message the fetch already delivered.
	s.HandlePushed(context.Background(), msgAt("m25", 25))

	assert.Len(t, s.Messages(), 25)
}

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-io/chatsync/internal/models"
)

func TestSendCreationPathAdoptsServerID(t *testing.T) {
	backend := newFakeBackend()
	backend.createdID = "conv_9"
	backend.createdMsg = models.Message{
		ID:        "m1",
		SenderID:  "me",
		Kind:      models.MessageKindText,
		Content:   "Xin chào",
		CreatedAt: time.Now(),
	}
	drafts := newFakeDrafts()
	drafts.SaveDraft("new:user_7", "Xin chào")
	coord := NewSendCoordinator(backend, &fakePublisher{}, drafts)

	result, err := coord.Send(context.Background(), SendInput{
		CounterpartyID: "user_7",
		ShopID:         "shop_1",
		Kind:           models.MessageKindText,
		Content:        "Xin chào",
	})

	require.NoError(t, err)
	assert.Equal(t, SendStateConfirmed, result.State)
	assert.Equal(t, "conv_9", result.ConversationID)
	require.NotNil(t, result.Created)
	assert.Equal(t, "m1", result.Created.ID)
	assert.Equal(t, "conv_9", result.Created.ConversationID)

	_, ok := drafts.Draft("new:user_7")
	assert.False(t, ok, "draft must be cleared on confirmation")
}

func TestSendCreationFailureRestoresDraft(t *testing.T) {
	backend := newFakeBackend()
	backend.createErr = errors.New("server unavailable")
	drafts := newFakeDrafts()
	coord := NewSendCoordinator(backend, &fakePublisher{}, drafts)

	result, err := coord.Send(context.Background(), SendInput{
		CounterpartyID: "user_7",
		Kind:           models.MessageKindText,
		Content:        "hello there",
	})

	require.Error(t, err)
	assert.Equal(t, SendStateFailed, result.State)
	assert.Nil(t, result.Created)

	saved, ok := drafts.Draft("new:user_7")
	require.True(t, ok)
	assert.Equal(t, "hello there", saved, "draft must restore input verbatim")
}

func TestSendCreationRequiresCounterparty(t *testing.T) {
	coord := NewSendCoordinator(newFakeBackend(), &fakePublisher{}, nil)

	result, err := coord.Send(context.Background(), SendInput{
		Kind:    models.MessageKindText,
		Content: "hi",
	})

	require.ErrorIs(t, err, models.ErrMissingCounterpart)
	assert.Equal(t, SendStateDrafting, result.State)
}

func TestSendExistingPathPublishesWithoutLocalEcho(t *testing.T) {
	publisher := &fakePublisher{}
	coord := NewSendCoordinator(newFakeBackend(), publisher, newFakeDrafts())

	result, err := coord.Send(context.Background(), SendInput{
		ConversationID: "conv_1",
		ReceiverID:     "user_7",
		Kind:           models.MessageKindText,
		Content:        "on my way",
	})

	require.NoError(t, err)
	assert.Equal(t, SendStateConfirmed, result.State)
	assert.Equal(t, "conv_1", result.ConversationID)
	assert.Nil(t, result.Created, "existing-conversation sends must not echo locally")

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	require.Len(t, publisher.published, 1)
	assert.Equal(t, "conv_1", publisher.published[0].conversationID)
	assert.Equal(t, "user_7", publisher.published[0].receiverID)
}

func TestSendExistingFailureRestoresDraft(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("socket closed")}
	drafts := newFakeDrafts()
	coord := NewSendCoordinator(newFakeBackend(), publisher, drafts)

	result, err := coord.Send(context.Background(), SendInput{
		ConversationID: "conv_1",
		Kind:           models.MessageKindText,
		Content:        "important message",
	})

	require.Error(t, err)
	assert.Equal(t, SendStateFailed, result.State)

	saved, ok := drafts.Draft("conv_1")
	require.True(t, ok)
	assert.Equal(t, "important message", saved)
}

func TestSendValidation(t *testing.T) {
	coord := NewSendCoordinator(newFakeBackend(), &fakePublisher{}, nil)

	tests := []struct {
		name    string
		input   SendInput
		wantErr error
	}{
		{"invalid kind", SendInput{ConversationID: "c1", Kind: "video", Content: "x"}, models.ErrInvalidKind},
		{"empty content", SendInput{ConversationID: "c1", Kind: models.MessageKindText, Content: "  "}, models.ErrEmptyContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := coord.Send(context.Background(), tt.input)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, SendStateDrafting, result.State)
		})
	}
}

func TestSendInputDraftKey(t *testing.T) {
	assert.Equal(t, "conv_1", SendInput{ConversationID: "conv_1", CounterpartyID: "u"}.DraftKey())
	assert.Equal(t, "new:u", SendInput{CounterpartyID: "u"}.DraftKey())
}

package sync

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/storefront-io/chatsync/internal/logging"
	"github.com/storefront-io/chatsync/internal/models"
)

// SendState is the per-outgoing-message state machine.
type SendState string

const (
	SendStateDrafting  SendState = "drafting"
	SendStateSending   SendState = "sending"
	SendStateConfirmed SendState = "confirmed"
	SendStateFailed    SendState = "failed"
)

// DraftStore holds compose drafts so failed sends can restore user input
// unredacted. Implemented by internal/state.
type DraftStore interface {
	Draft(key string) (string, bool)
	SaveDraft(key, content string)
	DeleteDraft(key string)
}

// SendInput describes one outgoing message. An empty ConversationID selects
// the creation path: the send doubles as conversation creation.
type SendInput struct {
	ConversationID string
	CounterpartyID string
	ShopID         string
	ReceiverID     string
	Kind           models.MessageKind
	Content        string
}

// DraftKey identifies the compose buffer this input belongs to.
func (i SendInput) DraftKey() string {
	if strings.TrimSpace(i.ConversationID) != "" {
		return i.ConversationID
	}
	return "new:" + i.CounterpartyID
}

// SendResult reports the outcome of a send.
type SendResult struct {
	State SendState

	// ConversationID is the adopted server ID after a creation send, or the
	// existing ID otherwise.
	ConversationID string

	// Created is the server-returned message on the creation path. Nil on the
	// existing-conversation path: that message arrives via push, and the
	// coordinator never synthesizes a local echo to avoid dual insertion.
	Created *models.Message
}

// SendCoordinator reconciles optimistic local sends with eventual server
// confirmation. On failure the draft is restored and no partial state is
// committed anywhere.
type SendCoordinator struct {
	backend   Backend
	publisher PushPublisher
	drafts    DraftStore
	logger    zerolog.Logger
}

// NewSendCoordinator creates a coordinator. drafts may be nil, in which case
// restore-on-failure is the caller's concern.
func NewSendCoordinator(backend Backend, publisher PushPublisher, drafts DraftStore) *SendCoordinator {
	return &SendCoordinator{
		backend:   backend,
		publisher: publisher,
		drafts:    drafts,
		logger:    logging.Component("send"),
	}
}

// Send runs the Drafting -> Sending -> {Confirmed | Failed} machine for one
// message. Image sends use the same machine with Kind set accordingly.
func (c *SendCoordinator) Send(ctx context.Context, input SendInput) (SendResult, error) {
	if err := models.ValidateKind(input.Kind); err != nil {
		return SendResult{State: SendStateDrafting}, err
	}
	if strings.TrimSpace(input.Content) == "" {
		return SendResult{State: SendStateDrafting}, models.ErrEmptyContent
	}

	if strings.TrimSpace(input.ConversationID) == "" {
		return c.sendCreate(ctx, input)
	}
	return c.sendExisting(ctx, input)
}

// sendCreate performs the one-round-trip creation send: the request carries
// the message plus counterparty and shop context, and the backend answers
// with the permanent conversation ID and the created message.
func (c *SendCoordinator) sendCreate(ctx context.Context, input SendInput) (SendResult, error) {
	if strings.TrimSpace(input.CounterpartyID) == "" {
		return SendResult{State: SendStateDrafting}, models.ErrMissingCounterpart
	}

	conversationID, created, err := c.backend.CreateConversation(ctx, CreateRequest{
		CounterpartyID: input.CounterpartyID,
		ShopID:         input.ShopID,
		Kind:           input.Kind,
		Content:        input.Content,
	})
	if err != nil {
		c.restoreDraft(input)
		c.logger.Warn().Err(err).Str("counterparty_id", input.CounterpartyID).Msg("creation send failed")
		return SendResult{State: SendStateFailed}, err
	}

	c.clearDraft(input)
	c.logger.Info().Str("conversation_id", conversationID).Str("message_id", created.ID).Msg("conversation created")

	msg := created.Clone()
	msg.ConversationID = conversationID
	return SendResult{
		State:          SendStateConfirmed,
		ConversationID: conversationID,
		Created:        &msg,
	}, nil
}

// sendExisting publishes over the push transport. No local echo: the message
// comes back through the push stream.
func (c *SendCoordinator) sendExisting(ctx context.Context, input SendInput) (SendResult, error) {
	err := c.publisher.PublishMessage(ctx, input.ConversationID, input.ReceiverID, input.Kind, input.Content)
	if err != nil {
		c.restoreDraft(input)
		c.logger.Warn().Err(err).Str("conversation_id", input.ConversationID).Msg("push send failed")
		return SendResult{State: SendStateFailed, ConversationID: input.ConversationID}, err
	}

	c.clearDraft(input)
	return SendResult{State: SendStateConfirmed, ConversationID: input.ConversationID}, nil
}

func (c *SendCoordinator) restoreDraft(input SendInput) {
	if c.drafts == nil {
		return
	}
	c.drafts.SaveDraft(input.DraftKey(), input.Content)
}

func (c *SendCoordinator) clearDraft(input SendInput) {
	if c.drafts == nil {
		return
	}
	c.drafts.DeleteDraft(input.DraftKey())
}

package api

import (
	"context"

	"github.com/storefront-io/chatsync/internal/models"
	"github.com/storefront-io/chatsync/internal/sync"
)

// Backend adapts Client to the sync engine's backend contract.
type Backend struct {
	client *Client
}

// NewBackend wraps a Client.
func NewBackend(client *Client) *Backend {
	return &Backend{client: client}
}

var _ sync.Backend = (*Backend)(nil)

func (b *Backend) FetchMessages(ctx context.Context, conversationID string, page, pageSize int) ([]models.Message, bool, error) {
	result, err := b.client.FetchMessages(ctx, conversationID, page, pageSize)
	if err != nil {
		return nil, false, err
	}
	return result.Messages, result.HasNext, nil
}

func (b *Backend) FetchConversations(ctx context.Context, keyword string, page, pageSize int) ([]models.Conversation, bool, error) {
	result, err := b.client.FetchConversations(ctx, keyword, page, pageSize)
	if err != nil {
		return nil, false, err
	}
	return result.Conversations, result.HasNext, nil
}

func (b *Backend) FetchConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	conv, err := b.client.FetchConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	return *conv, nil
}

func (b *Backend) CreateConversation(ctx context.Context, req sync.CreateRequest) (string, models.Message, error) {
	result, err := b.client.CreateConversation(ctx, CreateSendRequest{
		CounterpartyID: req.CounterpartyID,
		ShopID:         req.ShopID,
		Kind:           req.Kind,
		Content:        req.Content,
	})
	if err != nil {
		return "", models.Message{}, err
	}
	return result.ConversationID, result.Message, nil
}

func (b *Backend) MarkRead(ctx context.Context, conversationID string) error {
	return b.client.MarkRead(ctx, conversationID)
}

func (b *Backend) UnreadCount(ctx context.Context) (int, error) {
	return b.client.UnreadCount(ctx)
}

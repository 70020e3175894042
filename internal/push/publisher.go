package push

import (
	"context"

	"github.com/storefront-io/chatsync/internal/models"
	"github.com/storefront-io/chatsync/internal/sync"
)

// Publisher adapts Channel to the sync engine's publisher contract.
type Publisher struct {
	channel *Channel
}

// NewPublisher wraps a Channel.
func NewPublisher(channel *Channel) *Publisher {
	return &Publisher{channel: channel}
}

var _ sync.PushPublisher = (*Publisher)(nil)

func (p *Publisher) PublishMessage(ctx context.Context, conversationID, receiverID string, kind models.MessageKind, content string) error {
	return p.channel.Publish(ctx, SendEnvelope{
		ConversationID: conversationID,
		ReceiverID:     receiverID,
		Kind:           kind,
		Content:        content,
	})
}

package sync

import (
	"context"

	"github.com/storefront-io/chatsync/internal/models"
)

// CreateRequest carries the first message of a not-yet-created conversation
// plus the context the backend needs to create it in one round trip.
type CreateRequest struct {
	CounterpartyID string
	ShopID         string
	Kind           models.MessageKind
	Content        string
}

// Backend is the engine's view of the REST collaborators. Implementations
// live outside this package (see internal/api); the engine only depends on
// the contract.
type Backend interface {
	// FetchMessages returns one history page, newest-first, and whether more
	// pages exist.
	FetchMessages(ctx context.Context, conversationID string, page, pageSize int) ([]models.Message, bool, error)

	// FetchConversations returns one list page ordered by recent activity.
	FetchConversations(ctx context.Context, keyword string, page, pageSize int) ([]models.Conversation, bool, error)

	// FetchConversation resolves a single conversation by ID.
	FetchConversation(ctx context.Context, conversationID string) (models.Conversation, error)

	// CreateConversation sends the first message; the backend creates the
	// conversation and returns its ID plus the created message.
	CreateConversation(ctx context.Context, req CreateRequest) (string, models.Message, error)

	// MarkRead acknowledges a conversation for the current user. Idempotent.
	MarkRead(ctx context.Context, conversationID string) error

	// UnreadCount returns the global unread-conversation count.
	UnreadCount(ctx context.Context) (int, error)
}

// PushPublisher sends a message into an existing conversation over the push
// transport. Fire-and-forget: the created message arrives back via the push
// stream, never as a response.
type PushPublisher interface {
	PublishMessage(ctx context.Context, conversationID, receiverID string, kind models.MessageKind, content string) error
}

// Cache is an optional best-effort local persistence layer. Failures are
// logged and ignored; the cache is never authoritative over the backend.
type Cache interface {
	SaveMessages(ctx context.Context, messages []models.Message) error
	SaveConversations(ctx context.Context, conversations []models.Conversation) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	Conversations(ctx context.Context, limit int) ([]models.Conversation, error)
}

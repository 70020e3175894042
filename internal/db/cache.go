package db

import (
	"context"

	"github.com/storefront-io/chatsync/internal/models"
)

// Cache bundles the repositories behind the engine's cache contract. It is
// best-effort: callers log and ignore errors, the backend stays authoritative.
type Cache struct {
	db            *DB
	messages      *MessageRepository
	conversations *ConversationRepository
}

// NewCache opens the cache database, applies the schema and wires the
// repositories.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	database, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := database.MigrateUp(ctx); err != nil {
		database.Close()
		return nil, err
	}

	messages := NewMessageRepository(database)
	return &Cache{
		db:            database,
		messages:      messages,
		conversations: NewConversationRepository(database, messages),
	}, nil
}

// SaveMessages upserts a batch of messages.
func (c *Cache) SaveMessages(ctx context.Context, messages []models.Message) error {
	return c.messages.Save(ctx, messages)
}

// SaveConversations upserts a batch of conversations.
func (c *Cache) SaveConversations(ctx context.Context, conversations []models.Conversation) error {
	return c.conversations.Save(ctx, conversations)
}

// RecentMessages returns the newest cached messages, oldest-first.
func (c *Cache) RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	return c.messages.Recent(ctx, conversationID, limit)
}

// Conversations returns cached conversations by recent activity.
func (c *Cache) Conversations(ctx context.Context, limit int) ([]models.Conversation, error) {
	return c.conversations.List(ctx, limit)
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

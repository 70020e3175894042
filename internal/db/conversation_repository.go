package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/storefront-io/chatsync/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository caches the conversation list. The denormalized last
// message lives in the messages table; rows here only hold the pointer plus
// the activity timestamp used for ordering.
type ConversationRepository struct {
	db       *DB
	messages *MessageRepository
}

// NewConversationRepository creates a ConversationRepository.
func NewConversationRepository(db *DB, messages *MessageRepository) *ConversationRepository {
	return &ConversationRepository{db: db, messages: messages}
}

// Save upserts a batch of conversations and their last messages.
func (r *ConversationRepository) Save(ctx context.Context, conversations []models.Conversation) error {
	if len(conversations) == 0 {
		return nil
	}

	return r.db.WriteTransaction(ctx, func(tx *sql.Tx) error {
		for i := range conversations {
			conv := &conversations[i]
			if !conv.Created() {
				continue
			}

			counterpartyJSON, err := json.Marshal(conv.Counterparty)
			if err != nil {
				return fmt.Errorf("failed to marshal counterparty: %w", err)
			}
			shopJSON, err := json.Marshal(conv.Shop)
			if err != nil {
				return fmt.Errorf("failed to marshal shop: %w", err)
			}

			var lastMessageID *string
			var lastActivity *string
			if conv.LastMessage != nil {
				if err := r.messages.upsert(ctx, tx, conv.LastMessage); err != nil {
					return err
				}
				lastMessageID = &conv.LastMessage.ID
				ts := conv.LastMessage.CreatedAt.UTC().Format(time.RFC3339Nano)
				lastActivity = &ts
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO conversations (
					id, counterparty_json, shop_json, last_message_id, last_activity_at
				) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					counterparty_json = excluded.counterparty_json,
					shop_json = excluded.shop_json,
					last_message_id = COALESCE(excluded.last_message_id, conversations.last_message_id),
					last_activity_at = COALESCE(excluded.last_activity_at, conversations.last_activity_at)
			`,
				conv.ID,
				string(counterpartyJSON),
				string(shopJSON),
				lastMessageID,
				lastActivity,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert conversation: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves one cached conversation by ID.
func (r *ConversationRepository) Get(ctx context.Context, id string) (models.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, counterparty_json, shop_json, last_message_id
		FROM conversations WHERE id = ?
	`, id)

	conv, err := r.scanConversation(ctx, row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, err
	}
	return conv, nil
}

// List returns cached conversations by most recent activity.
func (r *ConversationRepository) List(ctx context.Context, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, counterparty_json, shop_json, last_message_id
		FROM conversations
		ORDER BY last_activity_at DESC NULLS LAST, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		conv, err := r.scanConversation(ctx, rows.Scan)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cached conversations: %w", err)
	}
	return conversations, nil
}

func (r *ConversationRepository) scanConversation(ctx context.Context, scan func(...any) error) (models.Conversation, error) {
	var conv models.Conversation
	var counterpartyJSON, shopJSON string
	var lastMessageID sql.NullString

	if err := scan(&conv.ID, &counterpartyJSON, &shopJSON, &lastMessageID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Conversation{}, sql.ErrNoRows
		}
		return models.Conversation{}, fmt.Errorf("failed to scan conversation: %w", err)
	}

	if err := json.Unmarshal([]byte(counterpartyJSON), &conv.Counterparty); err != nil {
		r.db.logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to parse cached counterparty")
	}
	if err := json.Unmarshal([]byte(shopJSON), &conv.Shop); err != nil {
		r.db.logger.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to parse cached shop")
	}

	if lastMessageID.Valid {
		msg, err := r.messages.Get(ctx, lastMessageID.String)
		if err == nil {
			conv.LastMessage = &msg
		} else if !errors.Is(err, ErrMessageNotFound) {
			return models.Conversation{}, err
		}
	}
	return conv, nil
}

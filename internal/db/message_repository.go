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

// Repository errors.
var (
	ErrMessageNotFound = errors.New("message not found")
)

// MessageRepository caches message history per conversation. Rows are
// upserted by ID so repeated page fetches and push replays converge on one
// row per message.
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a MessageRepository.
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Save upserts a batch of messages in one transaction.
func (r *MessageRepository) Save(ctx context.Context, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	return r.db.WriteTransaction(ctx, func(tx *sql.Tx) error {
		for i := range messages {
			if err := r.upsert(ctx, tx, &messages[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *MessageRepository) upsert(ctx context.Context, tx *sql.Tx, msg *models.Message) error {
	if msg.ID == "" || msg.ConversationID == "" {
		return nil // push frames can carry partial messages; never cache those
	}

	var readByJSON *string
	if len(msg.ReadBy) > 0 {
		data, err := json.Marshal(msg.ReadBy)
		if err != nil {
			return fmt.Errorf("failed to marshal read-by set: %w", err)
		}
		s := string(data)
		readByJSON = &s
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (
			id, conversation_id, sender_id, kind, content, created_at, read_by_json, edited
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			read_by_json = excluded.read_by_json,
			edited = excluded.edited
	`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		string(msg.Kind),
		msg.Content,
		msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		readByJSON,
		boolToInt(msg.Edited),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}
	return nil
}

// Get retrieves one cached message by ID.
func (r *MessageRepository) Get(ctx context.Context, id string) (models.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, kind, content, created_at, read_by_json, edited
		FROM messages WHERE id = ?
	`, id)

	msg, err := r.scanMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, ErrMessageNotFound
		}
		return models.Message{}, err
	}
	return msg, nil
}

// Recent returns the newest cached messages for a conversation, oldest-first,
// matching the order the in-memory store displays.
func (r *MessageRepository) Recent(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 25
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, kind, content, created_at, read_by_json, edited
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at, id
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := r.scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cached messages: %w", err)
	}
	return messages, nil
}

// DeleteOlderThan trims cache rows older than the given time. Returns the
// number of rows removed.
func (r *MessageRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE created_at < ?`,
		before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to trim message cache: %w", err)
	}
	return result.RowsAffected()
}

func (r *MessageRepository) scanMessage(scan func(...any) error) (models.Message, error) {
	var msg models.Message
	var kind, createdAt string
	var readByJSON sql.NullString
	var edited int

	if err := scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&kind,
		&msg.Content,
		&createdAt,
		&readByJSON,
		&edited,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, sql.ErrNoRows
		}
		return models.Message{}, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.Kind = models.MessageKind(kind)
	msg.Edited = edited != 0

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		msg.CreatedAt = t
	}
	if readByJSON.Valid {
		if err := json.Unmarshal([]byte(readByJSON.String), &msg.ReadBy); err != nil {
			r.db.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to parse cached read-by set")
		}
	}
	return msg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

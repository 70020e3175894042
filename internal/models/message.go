// Package models defines the chat domain types shared across the sync engine.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageKind is the closed set of message content interpretations.
type MessageKind string

const (
	MessageKindText    MessageKind = "text"
	MessageKindImage   MessageKind = "image"
	MessageKindProduct MessageKind = "product"
	MessageKindOrder   MessageKind = "order"
)

// Validation errors.
var (
	ErrInvalidKind        = errors.New("invalid message kind")
	ErrEmptyContent       = errors.New("message content is empty")
	ErrMissingSender      = errors.New("message sender is required")
	ErrMissingMessageID   = errors.New("message id is required")
	ErrMissingTimestamp   = errors.New("message timestamp is required")
	ErrMessageTooLarge    = errors.New("message content too large")
	ErrMissingCounterpart = errors.New("counterparty is required")
)

// MaxContentSize bounds a single message payload (image refs and product refs
// are references, not blobs, so this is generous).
const MaxContentSize = 16 * 1024

// Message is one unit of conversation content. The ID is server-assigned and
// unique within a conversation; CreatedAt carries the server clock and is the
// sole ordering key.
type Message struct {
	// ID is the server-assigned identifier, unique within the conversation.
	ID string `json:"id"`

	// ConversationID links the message to its conversation.
	ConversationID string `json:"conversation_id"`

	// SenderID identifies the participant who sent the message.
	SenderID string `json:"sender_id"`

	// Kind selects how Content is interpreted.
	Kind MessageKind `json:"kind"`

	// Content is the payload: text, an image URL, or a product/order reference.
	Content string `json:"content"`

	// CreatedAt is the server-side creation time.
	CreatedAt time.Time `json:"created_at"`

	// ReadBy lists participant IDs that have acknowledged the message.
	ReadBy []string `json:"read_by,omitempty"`

	// Edited marks messages changed after delivery.
	Edited bool `json:"edited,omitempty"`
}

// ValidateKind reports whether a kind is part of the closed set.
func ValidateKind(kind MessageKind) error {
	switch kind {
	case MessageKindText, MessageKindImage, MessageKindProduct, MessageKindOrder:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

// Validate checks a fully-formed (server-confirmed) message.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrMissingMessageID
	}
	if strings.TrimSpace(m.SenderID) == "" {
		return ErrMissingSender
	}
	if err := ValidateKind(m.Kind); err != nil {
		return err
	}
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}
	if len(m.Content) > MaxContentSize {
		return ErrMessageTooLarge
	}
	if m.CreatedAt.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// ReadByUser reports whether userID has acknowledged the message.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkReadBy records userID in the read-by set. Idempotent.
func (m *Message) MarkReadBy(userID string) {
	if userID == "" || m.ReadByUser(userID) {
		return
	}
	m.ReadBy = append(m.ReadBy, userID)
}

// Clone returns a deep copy so callers can mutate read state without
// aliasing a shared slice.
func (m Message) Clone() Message {
	out := m
	if m.ReadBy != nil {
		out.ReadBy = append([]string(nil), m.ReadBy...)
	}
	return out
}

// Before orders messages by server timestamp, breaking ties by ID so the
// ordering is total and stable across merge sources.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

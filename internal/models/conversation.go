package models

import "strings"

// ShopStatus tracks the lifecycle of the shop party in a conversation.
type ShopStatus string

const (
	ShopStatusActive    ShopStatus = "active"
	ShopStatusSuspended ShopStatus = "suspended"
	ShopStatusClosed    ShopStatus = "closed"
)

// Participant is the cached display identity of the counterparty.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Shop is the cached identity of the shop side of a conversation.
type Shop struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	LogoURL string     `json:"logo_url,omitempty"`
	Status  ShopStatus `json:"status,omitempty"`
}

// Conversation is a two-party buyer–shop thread. The ID is server-assigned on
// first message; a Conversation with an empty ID exists only as "not yet
// created" client state and must never enter the persisted list.
type Conversation struct {
	// ID is empty until the first send succeeds, permanent afterwards.
	ID string `json:"id"`

	// Counterparty is the other participant's display identity.
	Counterparty Participant `json:"counterparty"`

	// Shop is the shop identity attached to the thread.
	Shop Shop `json:"shop"`

	// LastMessage is a denormalized copy of the most recent message, used for
	// list rendering without fetching full history.
	LastMessage *Message `json:"last_message,omitempty"`
}

// Created reports whether the conversation has been assigned a server ID.
func (c *Conversation) Created() bool {
	return strings.TrimSpace(c.ID) != ""
}

// UnreadFor derives unread state from the last message's read-by set. This is
// the single source of truth for unread; no cached boolean may diverge from it.
func (c *Conversation) UnreadFor(userID string) bool {
	if c.LastMessage == nil {
		return false
	}
	return !c.LastMessage.ReadByUser(userID)
}

// Clone deep-copies the conversation, including the denormalized last message.
func (c Conversation) Clone() Conversation {
	out := c
	if c.LastMessage != nil {
		msg := c.LastMessage.Clone()
		out.LastMessage = &msg
	}
	return out
}

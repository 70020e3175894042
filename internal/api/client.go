// Package api implements the REST client for the storefront chat backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/storefront-io/chatsync/internal/logging"
	"github.com/storefront-io/chatsync/internal/models"
)

// Client errors.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrBadStatus            = errors.New("unexpected response status")
)

const defaultTimeout = 10 * time.Second

// Config holds client settings.
type Config struct {
	// BaseURL is the backend root, e.g. https://api.example.com/v1.
	BaseURL string

	// Timeout bounds a single request. Default: 10s.
	Timeout time.Duration

	// HTTPClient overrides the underlying client (tests).
	HTTPClient *http.Client
}

// Client talks to the chat backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base URL required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		logger:  logging.Component("api-client"),
	}, nil
}

// MessagePage is one page of conversation history, newest-first as returned by
// the backend.
type MessagePage struct {
	Messages []models.Message `json:"messages"`
	HasNext  bool             `json:"has_next"`
}

// ConversationPage is one page of the conversation list.
type ConversationPage struct {
	Conversations []models.Conversation `json:"conversations"`
	HasNext       bool                  `json:"has_next"`
}

// CreateSendRequest carries the first message of a not-yet-created
// conversation together with enough context for the backend to create it.
type CreateSendRequest struct {
	CounterpartyID string             `json:"counterparty_id"`
	ShopID         string             `json:"shop_id"`
	Kind           models.MessageKind `json:"kind"`
	Content        string             `json:"content"`
}

// CreateSendResult is the backend's one-round-trip answer to a creation send.
type CreateSendResult struct {
	ConversationID string         `json:"conversation_id"`
	Message        models.Message `json:"message"`
}

// FetchMessages requests one history page for a conversation, newest-first.
func (c *Client) FetchMessages(ctx context.Context, conversationID string, page, pageSize int) (*MessagePage, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, fmt.Errorf("conversation id required")
	}

	endpoint := fmt.Sprintf("%s/conversations/%s/messages?page=%d&page_size=%d",
		c.baseURL, url.PathEscape(conversationID), page, pageSize)

	var out MessagePage
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return &out, nil
}

// FetchConversations requests one page of the conversation list, most recent
// activity first. keyword may be empty.
func (c *Client) FetchConversations(ctx context.Context, keyword string, page, pageSize int) (*ConversationPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))
	if strings.TrimSpace(keyword) != "" {
		query.Set("keyword", keyword)
	}

	endpoint := fmt.Sprintf("%s/conversations?%s", c.baseURL, query.Encode())

	var out ConversationPage
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	return &out, nil
}

// FetchConversation requests a single conversation by ID. Used when a push
// event references a conversation the list does not know yet.
func (c *Client) FetchConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, fmt.Errorf("conversation id required")
	}

	endpoint := fmt.Sprintf("%s/conversations/%s", c.baseURL, url.PathEscape(conversationID))

	var out models.Conversation
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return nil, fmt.Errorf("fetch conversation: %w", err)
	}
	return &out, nil
}

// CreateConversation sends the first message of a new conversation. The backend
// creates the conversation and returns its ID plus the created message.
func (c *Client) CreateConversation(ctx context.Context, req CreateSendRequest) (*CreateSendResult, error) {
	if strings.TrimSpace(req.CounterpartyID) == "" {
		return nil, models.ErrMissingCounterpart
	}
	if err := models.ValidateKind(req.Kind); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, models.ErrEmptyContent
	}

	endpoint := c.baseURL + "/conversations"

	var out CreateSendResult
	if err := c.postJSON(ctx, endpoint, req, &out); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if strings.TrimSpace(out.ConversationID) == "" {
		return nil, fmt.Errorf("create conversation: backend returned no conversation id")
	}
	return &out, nil
}

// MarkRead acknowledges all messages in a conversation for the current user.
// Idempotent on the backend; callers treat it as fire-and-forget.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("conversation id required")
	}

	endpoint := fmt.Sprintf("%s/conversations/%s/read", c.baseURL, url.PathEscape(conversationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mark read: %w: %d", ErrBadStatus, resp.StatusCode)
	}
	return nil
}

// UnreadCount returns the total number of unread conversations for the global
// badge.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	endpoint := c.baseURL + "/conversations/unread-count"

	var out struct {
		Count int `json:"count"`
	}
	if err := c.getJSON(ctx, endpoint, &out); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return out.Count, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return ErrConversationNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	reqID := uuid.New().String()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("req_id", reqID).Str("url", req.URL.Path).Msg("request failed")
		return nil, err
	}

	c.logger.Debug().
		Str("req_id", reqID).
		Str("method", req.Method).
		Str("url", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request done")

	return resp, nil
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

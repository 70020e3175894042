// Package push consumes the backend's websocket push channel and publishes
// fire-and-forget sends for existing conversations.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/storefront-io/chatsync/internal/logging"
	"github.com/storefront-io/chatsync/internal/models"
)

// Channel errors.
var (
	ErrNotConnected = errors.New("push channel not connected")
	ErrClosed       = errors.New("push channel closed")
)

const (
	defaultDialTimeout       = 3 * time.Second
	defaultReconnectInterval = 2 * time.Second
	defaultSubscribeBuffer   = 256
	writeTimeout             = 5 * time.Second
)

// Frame types on the wire.
const (
	frameMessageCreated = "message.created"
	frameMessageSend    = "message.send"
	frameSubscribe      = "subscribe"
)

// frame is the newline-free JSON envelope exchanged over the websocket.
type frame struct {
	Type           string             `json:"type"`
	ConversationID string             `json:"conversation_id,omitempty"`
	ReceiverID     string             `json:"receiver_id,omitempty"`
	Kind           models.MessageKind `json:"kind,omitempty"`
	Content        string             `json:"content,omitempty"`
	ReqID          string             `json:"req_id,omitempty"`
	SinceID        string             `json:"since_id,omitempty"`
	Message        *models.Message    `json:"message,omitempty"`
	Error          *frameError        `json:"error,omitempty"`
}

type frameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Delivery is one message-creation event from the push stream.
type Delivery struct {
	ConversationID string
	Message        models.Message
}

// SendEnvelope is a fire-and-forget send for an existing conversation. The
// created message comes back via the push stream, never as a response.
type SendEnvelope struct {
	ConversationID string
	ReceiverID     string
	Kind           models.MessageKind
	Content        string
}

// Config holds push channel settings.
type Config struct {
	// URL is the websocket endpoint.
	URL string

	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration

	// ReconnectInterval is the pause between reconnect attempts.
	ReconnectInterval time.Duration

	// SubscribeBuffer is the delivery channel capacity.
	SubscribeBuffer int

	// Dialer overrides the websocket dialer (tests).
	Dialer *websocket.Dialer
}

// Channel maintains a reconnecting websocket subscription to the push stream.
// Delivery is best-effort: the client never requests redelivery.
type Channel struct {
	url               string
	dialTimeout       time.Duration
	reconnectInterval time.Duration
	subscribeBuffer   int
	dialer            *websocket.Dialer
	logger            zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool
}

// NewChannel creates a push channel consumer.
func NewChannel(cfg Config) (*Channel, error) {
	rawURL := strings.TrimSpace(cfg.URL)
	if rawURL == "" {
		return nil, fmt.Errorf("push URL required")
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	reconnectInterval := cfg.ReconnectInterval
	if reconnectInterval <= 0 {
		reconnectInterval = defaultReconnectInterval
	}
	subscribeBuffer := cfg.SubscribeBuffer
	if subscribeBuffer <= 0 {
		subscribeBuffer = defaultSubscribeBuffer
	}

	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: dialTimeout}
	}

	return &Channel{
		url:               rawURL,
		dialTimeout:       dialTimeout,
		reconnectInterval: reconnectInterval,
		subscribeBuffer:   subscribeBuffer,
		dialer:            dialer,
		logger:            logging.Component("push-channel"),
	}, nil
}

// Connected reports whether an active websocket connection exists.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

// WaitConnected blocks until a connection is established or the context
// expires. Used by one-shot senders that publish right after Subscribe.
func (c *Channel) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.Connected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Subscribe starts the read loop and returns the delivery channel plus a
// cancel function. The channel is closed when the subscription ends.
func (c *Channel) Subscribe(ctx context.Context) (<-chan Delivery, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Delivery, c.subscribeBuffer)
	go c.subscribeLoop(ctx, out)
	return out, cancel
}

func (c *Channel) subscribeLoop(ctx context.Context, out chan<- Delivery) {
	defer close(out)
	defer c.dropConn()

	lastSeenID := ""

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.streamOnce(ctx, &lastSeenID, out)
		if err == nil || ctx.Err() != nil {
			return
		}

		c.logger.Warn().Err(err).Msg("push stream interrupted, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectInterval):
		}
	}
}

func (c *Channel) streamOnce(ctx context.Context, lastSeenID *string, out chan<- Delivery) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	conn, _, err := c.dialer.DialContext(dialCtx, c.url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial push: %w", err)
	}

	c.setConn(conn)
	defer c.dropConn()

	// Close the conn when the context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := c.writeFrame(frame{Type: frameSubscribe, SinceID: *lastSeenID}); err != nil {
		return fmt.Errorf("subscribe frame: %w", err)
	}

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read push frame: %w", err)
		}

		if f.Error != nil {
			return fmt.Errorf("push stream error: %s", f.Error.Message)
		}
		if f.Type != frameMessageCreated || f.Message == nil {
			continue
		}

		msg := f.Message.Clone()
		conversationID := strings.TrimSpace(f.ConversationID)
		if conversationID == "" {
			conversationID = strings.TrimSpace(msg.ConversationID)
		}
		if conversationID == "" || strings.TrimSpace(msg.ID) == "" {
			continue
		}
		msg.ConversationID = conversationID

		if msg.ID > *lastSeenID {
			*lastSeenID = msg.ID
		}

		select {
		case <-ctx.Done():
			return nil
		case out <- Delivery{ConversationID: conversationID, Message: msg}:
		}
	}
}

// Publish sends a message for an existing conversation over the open stream.
// There is no synchronous response; the created message arrives via Subscribe.
func (c *Channel) Publish(ctx context.Context, envelope SendEnvelope) error {
	if strings.TrimSpace(envelope.ConversationID) == "" {
		return fmt.Errorf("conversation id required")
	}
	if err := models.ValidateKind(envelope.Kind); err != nil {
		return err
	}
	if strings.TrimSpace(envelope.Content) == "" {
		return models.ErrEmptyContent
	}

	return c.writeFrame(frame{
		Type:           frameMessageSend,
		ConversationID: envelope.ConversationID,
		ReceiverID:     envelope.ReceiverID,
		Kind:           envelope.Kind,
		Content:        envelope.Content,
		ReqID:          uuid.New().String(),
	})
}

// Close tears down the active connection, if any.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Channel) writeFrame(f frame) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Channel) dropConn() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

package push

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/internal/retry"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// TokenProvider supplies the bearer credential for the authenticate frame.
type TokenProvider func() (string, error)

// Envelope is the wire frame of the push channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type newMessageData struct {
	ConversationID string             `json:"conversation_id"`
	Message        models.WireMessage `json:"message"`
}

type typingData struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type messageReadData struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	ReaderID       string `json:"reader_id,omitempty"`
}

type markReadData struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type authData struct {
	Token string `json:"token"`
}

// Config tunes the push client.
type Config struct {
	URL              string
	Reconnect        retry.BackoffConfig
	HandshakeTimeout time.Duration
}

// Client maintains a single long-lived subscription to the push channel.
// Run owns the connection: it dials, authenticates, decodes frames into
// typed events and reconnects with backoff on any failure. Missed events are
// never replayed; consumers reconcile through a REST fetch after reconnect.
type Client struct {
	cfg    Config
	token  TokenProvider
	logger *logrus.Logger

	events chan models.PushEvent
	states chan models.ConnectionState

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewClient(cfg Config, token TokenProvider, logger *logrus.Logger) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		cfg:    cfg,
		token:  token,
		logger: logger,
		events: make(chan models.PushEvent, 64),
		states: make(chan models.ConnectionState, 8),
	}
}

// Events returns the decoded inbound event stream.
func (c *Client) Events() <-chan models.PushEvent {
	return c.events
}

// States reports connection health transitions.
func (c *Client) States() <-chan models.ConnectionState {
	return c.states
}

// Run connects and keeps the subscription alive until ctx is canceled.
// Disconnection degrades gracefully: the engine keeps working over REST
// while Run reconnects in the background.
func (c *Client) Run(ctx context.Context) error {
	backoff := retry.NewBackoff(c.cfg.Reconnect)
	attempt := 0
	for {
		if err := c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				c.setState(models.ConnectionClosed)
				return ctx.Err()
			}
			attempt++
			c.setState(models.ConnectionReconnecting)
			apperrors.LogError(c.logger,
				apperrors.WrapRetryable(err, apperrors.ErrCodePushChannel, "push connection failed"),
				"Push channel connect failed, backing off")
			if err := backoff.Wait(ctx, attempt); err != nil {
				c.setState(models.ConnectionClosed)
				return err
			}
			continue
		}

		attempt = 0
		c.setState(models.ConnectionConnected)

		err := c.readLoop(ctx)
		c.closeConn(websocket.StatusNormalClosure)
		if ctx.Err() != nil {
			c.setState(models.ConnectionClosed)
			return ctx.Err()
		}
		attempt++
		c.setState(models.ConnectionReconnecting)
		c.logger.WithError(err).Warn("Push channel dropped, reconnecting")
		if err := backoff.Wait(ctx, attempt); err != nil {
			c.setState(models.ConnectionClosed)
			return err
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	token, err := c.token()
	if err != nil {
		conn.Close(websocket.StatusInternalError, "no credential")
		return err
	}
	if err := c.writeTo(dialCtx, conn, models.PushEventAuthenticate, authData{Token: token}); err != nil {
		conn.Close(websocket.StatusInternalError, "authenticate failed")
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		var env Envelope
		if err := wsjson.Read(ctx, c.current(), &env); err != nil {
			return err
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	switch env.Event {
	case models.PushEventNewMessage:
		var data newMessageData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed new_message event")
			return
		}
		msg, err := data.Message.ToMessage()
		if err != nil {
			c.logger.WithError(err).Warn("Dropping undecodable pushed message")
			return
		}
		if msg.ConversationID == "" {
			msg.ConversationID = data.ConversationID
		}
		c.emit(models.NewMessageEvent{ConversationID: msg.ConversationID, Message: msg})

	case models.PushEventUserTyping, models.PushEventUserStopped:
		var data typingData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed typing event")
			return
		}
		c.emit(models.TypingEvent{
			ConversationID: data.ConversationID,
			UserID:         data.UserID,
			IsTyping:       env.Event == models.PushEventUserTyping,
		})

	case models.PushEventMessageRead:
		var data messageReadData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed message_read event")
			return
		}
		c.emit(models.MessageReadEvent{
			ConversationID: data.ConversationID,
			MessageID:      data.MessageID,
			ReaderID:       data.ReaderID,
		})

	case models.PushEventProfileUpdated:
		var profile models.Profile
		if err := json.Unmarshal(env.Data, &profile); err != nil {
			c.logger.WithError(err).Warn("Dropping malformed profile_updated event")
			return
		}
		c.emit(models.ProfileUpdatedEvent{Profile: profile})

	default:
		c.logger.WithField("event", env.Event).Debug("Ignoring unknown push event")
	}
}

func (c *Client) emit(ev models.PushEvent) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("Push event buffer full, dropping event")
	}
}

func (c *Client) setState(state models.ConnectionState) {
	select {
	case c.states <- state:
	default:
	}
}

// SendTyping publishes a typing start/stop signal for the conversation.
func (c *Client) SendTyping(ctx context.Context, conversationID string, isTyping bool) error {
	event := models.PushEventTypingStop
	if isTyping {
		event = models.PushEventTypingStart
	}
	return c.write(ctx, event, typingData{ConversationID: conversationID})
}

// SendReadAck tells the counterpart that a message has been read, so their
// outbound copy advances to read.
func (c *Client) SendReadAck(ctx context.Context, conversationID, messageID string) error {
	return c.write(ctx, models.PushEventMarkRead, markReadData{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
}

func (c *Client) write(ctx context.Context, event string, data interface{}) error {
	conn := c.current()
	if conn == nil {
		return apperrors.New(apperrors.ErrCodePushChannel, "push channel not connected")
	}
	return c.writeTo(ctx, conn, event, data)
}

func (c *Client) writeTo(ctx context.Context, conn *websocket.Conn, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to marshal push frame")
	}
	return wsjson.Write(ctx, conn, Envelope{Event: event, Data: raw})
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) closeConn(code websocket.StatusCode) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close(code, "")
	}
}

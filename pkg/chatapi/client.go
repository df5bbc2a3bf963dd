package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "chatsync/internal/errors"
	"chatsync/internal/models"
	"chatsync/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// TokenProvider supplies the bearer credential for each request. Session
// management is an external collaborator; the engine only consumes tokens.
type TokenProvider func() (string, error)

// Client is the REST surface the synchronization engine consumes.
type Client interface {
	SendMessage(ctx context.Context, req SendMessageRequest) (*models.Message, error)
	FetchMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	MarkMessageRead(ctx context.Context, messageID string) error
	FetchConversations(ctx context.Context) ([]*models.Conversation, error)
}

// SendMessageRequest is the POST /messages body.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	ReceiverID     string `json:"receiver_id,omitempty"`
	Content        string `json:"content"`
	MessageType    string `json:"message_type"`
	MediaURL       string `json:"media_url,omitempty"`
	ThumbnailURL   string `json:"thumbnail_url,omitempty"`
	MimeType       string `json:"mime_type,omitempty"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

type client struct {
	baseURL    string
	token      TokenProvider
	httpClient *http.Client
}

// NewClient creates a REST client against the given base URL.
func NewClient(baseURL string, token TokenProvider, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *client) SendMessage(ctx context.Context, req SendMessageRequest) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "chatapi.SendMessage",
		attribute.String("conversation_id", req.ConversationID),
		attribute.String("message_type", req.MessageType))
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to marshal send request")
	}

	data, err := c.do(ctx, http.MethodPost, "/messages", bytes.NewReader(body), "send message")
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	var wire models.WireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, apperrors.NewDecodeError("send message", err)
	}
	msg, err := wire.ToMessage()
	if err != nil {
		return nil, apperrors.NewDecodeError("send message", err)
	}
	return msg, nil
}

func (c *client) FetchMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "chatapi.FetchMessages",
		attribute.String("conversation_id", conversationID))
	defer span.End()

	path := "/messages?conversation_id=" + url.QueryEscape(conversationID)
	data, err := c.do(ctx, http.MethodGet, path, nil, "fetch messages")
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	var wires []models.WireMessage
	if err := json.Unmarshal(data, &wires); err != nil {
		return nil, apperrors.NewDecodeError("fetch messages", err)
	}
	msgs := make([]*models.Message, 0, len(wires))
	for i := range wires {
		msg, err := wires[i].ToMessage()
		if err != nil {
			return nil, apperrors.NewDecodeError("fetch messages", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (c *client) MarkMessageRead(ctx context.Context, messageID string) error {
	ctx, span := tracing.StartSpan(ctx, "chatapi.MarkMessageRead",
		attribute.String("message_id", messageID))
	defer span.End()

	path := "/messages/" + url.PathEscape(messageID) + "/read"
	_, err := c.do(ctx, http.MethodPut, path, nil, "mark message read")
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

func (c *client) FetchConversations(ctx context.Context) ([]*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "chatapi.FetchConversations")
	defer span.End()

	data, err := c.do(ctx, http.MethodGet, "/conversations", nil, "fetch conversations")
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	var wires []models.WireConversation
	if err := json.Unmarshal(data, &wires); err != nil {
		return nil, apperrors.NewDecodeError("fetch conversations", err)
	}
	convs := make([]*models.Conversation, 0, len(wires))
	for i := range wires {
		conv, err := wires[i].ToConversation()
		if err != nil {
			return nil, apperrors.NewDecodeError("fetch conversations", err)
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

// do issues one request and unwraps the {success, message, data} envelope,
// mapping failures onto the error taxonomy.
func (c *client) do(ctx context.Context, method, path string, body io.Reader, operation string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token()
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to obtain auth token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransportError(operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransportError(operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serverMsg := ""
		var envelope apiResponse
		if json.Unmarshal(raw, &envelope) == nil {
			serverMsg = envelope.Message
		}
		return nil, apperrors.NewServerRejectionError(operation, resp.StatusCode, serverMsg)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperrors.NewDecodeError(operation, err)
	}
	if !envelope.Success {
		msg := envelope.Message
		if msg == "" {
			msg = fmt.Sprintf("%s reported failure", operation)
		}
		return nil, apperrors.NewServerRejectionError(operation, resp.StatusCode, msg)
	}
	return envelope.Data, nil
}

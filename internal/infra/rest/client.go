package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"roomsync/internal/app/dto"
	"roomsync/internal/domain/chat"
)

// Sentinel errors callers branch on.
var (
	ErrNotFound     = errors.New("rest: not found")
	ErrUnauthorized = errors.New("rest: unauthorized")
)

// APIError is a non-2xx response carrying the server's error payload.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rest: api error (status %d): %s", e.Status, e.Message)
}

// Config defines REST client settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client is the typed chat API client. Every response uses the
// {"success": bool, "data": ..., "error": ...} envelope.
type Client struct {
	base    *url.URL
	httpc   *http.Client
	token   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient validates the configuration and returns a ready client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("rest: base URL required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("rest: invalid base URL: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:    base,
		httpc:   &http.Client{Timeout: timeout},
		token:   cfg.Token,
		timeout: timeout,
		logger:  logger,
	}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ListConversations returns one page of the caller's conversation directory.
func (c *Client) ListConversations(ctx context.Context, page, limit int) ([]chat.Conversation, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var payload dto.ConversationPage
	if err := c.do(ctx, http.MethodGet, "/api/v1/chat/conversations?"+q.Encode(), nil, &payload); err != nil {
		return nil, err
	}
	items := make([]chat.Conversation, 0, len(payload.Items))
	for _, conv := range payload.Items {
		items = append(items, conv.ToDomain())
	}
	return items, nil
}

// ListMessages returns one page of a conversation's history, oldest first
// within the page. Page 1 holds the most recent messages; higher pages reach
// further back.
func (c *Client) ListMessages(ctx context.Context, conversationID string, page, limit int) ([]chat.Message, error) {
	if conversationID == "" {
		return nil, errors.New("rest: conversation id required")
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	path := "/api/v1/chat/conversations/" + url.PathEscape(conversationID) + "/messages?" + q.Encode()
	var payload dto.MessagePage
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	items := make([]chat.Message, 0, len(payload.Items))
	for _, msg := range payload.Items {
		items = append(items, msg.ToDomain())
	}
	return items, nil
}

// SendMessage posts a message and returns the server-assigned record.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string, msgType chat.MessageType, attachments []chat.Attachment) (chat.Message, error) {
	if conversationID == "" {
		return chat.Message{}, errors.New("rest: conversation id required")
	}
	req := dto.SendMessageRequest{
		Content: content,
		Type:    string(msgType),
	}
	for _, a := range attachments {
		req.Attachments = append(req.Attachments, dto.Attachment(a))
	}
	path := "/api/v1/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	var payload dto.Message
	if err := c.do(ctx, http.MethodPost, path, req, &payload); err != nil {
		return chat.Message{}, err
	}
	return payload.ToDomain(), nil
}

// MarkRead marks a conversation read for the current user.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errors.New("rest: conversation id required")
	}
	path := "/api/v1/chat/conversations/" + url.PathEscape(conversationID) + "/read"
	var payload dto.MarkReadResponse
	return c.do(ctx, http.MethodPost, path, nil, &payload)
}

// UnreadCount returns the global unread total for the current user.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var payload dto.UnreadCount
	if err := c.do(ctx, http.MethodGet, "/api/v1/chat/unread-count", nil, &payload); err != nil {
		return 0, err
	}
	return payload.Count, nil
}

// CreateOrGetConversation opens a thread with another user, optionally tied
// to a listing, returning the existing thread when one is already present.
func (c *Client) CreateOrGetConversation(ctx context.Context, otherUserID, listingID string) (chat.Conversation, error) {
	if otherUserID == "" {
		return chat.Conversation{}, errors.New("rest: other user id required")
	}
	req := dto.CreateConversationRequest{OtherUserID: otherUserID, ListingID: listingID}
	var payload dto.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat/conversations", req, &payload); err != nil {
		return chat.Conversation{}, err
	}
	return payload.ToDomain(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("rest: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(callCtx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("rest: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("rest: read response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("rest: decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success {
		if c.logger != nil {
			c.logger.Debug("api call failed", "method", method, "path", path, "status", resp.StatusCode, "error", env.Error)
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return ErrUnauthorized
		}
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("rest: decode payload: %w", err)
		}
	}
	return nil
}

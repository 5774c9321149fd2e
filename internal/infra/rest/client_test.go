package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roomsync/internal/domain/chat"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Auth   string
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, Token: "token-1", Timeout: time.Second}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, srv
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}

func TestListConversationsSendsAuthAndPaging(t *testing.T) {
	var got recordedRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  map[string]string{"page": r.URL.Query().Get("page"), "limit": r.URL.Query().Get("limit")},
			Auth:   r.Header.Get("Authorization"),
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{
				"id": "c1",
				"participants": []map[string]any{
					{"id": "u1", "name": "Anna"},
					{"id": "u2", "name": "Boris"},
				},
				"unread_count": 2,
			}},
			"page":  2,
			"limit": 10,
		})
	})

	items, err := client.ListConversations(context.Background(), 2, 10)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if got.Method != http.MethodGet || got.Path != "/api/v1/chat/conversations" {
		t.Errorf("request = %s %s", got.Method, got.Path)
	}
	if got.Query["page"] != "2" || got.Query["limit"] != "10" {
		t.Errorf("query = %v", got.Query)
	}
	if got.Auth != "Bearer token-1" {
		t.Errorf("authorization = %q", got.Auth)
	}
	if len(items) != 1 || items[0].ID != "c1" || items[0].UnreadCount != 2 {
		t.Fatalf("items = %v", items)
	}
	if counterpart := items[0].Counterpart("u1"); counterpart.Name != "Boris" {
		t.Errorf("counterpart = %v", counterpart)
	}
}

func TestListMessagesDecodesPage(t *testing.T) {
	at := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/conversations/c1/messages" {
			writeFailure(w, http.StatusNotFound, "not found")
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]any{
			"items": []map[string]any{
				{"id": "m1", "conversation_id": "c1", "sender": map[string]any{"id": "u2", "name": "Boris"}, "content": "hi", "type": "text", "created_at": at},
			},
			"page":  1,
			"limit": 50,
		})
	})

	msgs, err := client.ListMessages(context.Background(), "c1", 1, 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" || msgs[0].Sender.ID != "u2" {
		t.Fatalf("messages = %v", msgs)
	}
	if !msgs[0].CreatedAt.Equal(at) {
		t.Errorf("created at = %v, want %v", msgs[0].CreatedAt, at)
	}
}

func TestSendMessagePostsBody(t *testing.T) {
	var got recordedRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
			Type    string `json:"type"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		got = recordedRequest{Method: r.Method, Path: r.URL.Path}
		if body.Content != "hello" || body.Type != "text" {
			writeFailure(w, http.StatusBadRequest, "bad body")
			return
		}
		writeEnvelope(w, http.StatusCreated, map[string]any{
			"id": "m9", "conversation_id": "c1",
			"sender":  map[string]any{"id": "u1", "name": "Anna"},
			"content": "hello", "type": "text",
			"created_at": time.Now().UTC(),
		})
	})

	msg, err := client.SendMessage(context.Background(), "c1", "hello", chat.MessageText, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.Method != http.MethodPost || got.Path != "/api/v1/chat/conversations/c1/messages" {
		t.Errorf("request = %s %s", got.Method, got.Path)
	}
	if msg.ID != "m9" {
		t.Errorf("message id = %q, want server-assigned m9", msg.ID)
	}
}

func TestUnreadCount(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/unread-count" {
			writeFailure(w, http.StatusNotFound, "not found")
			return
		}
		writeEnvelope(w, http.StatusOK, map[string]int{"count": 7})
	})
	count, err := client.UnreadCount(context.Background())
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 7 {
		t.Errorf("count = %d, want 7", count)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeFailure(w, tc.status, "nope")
			})
			err := client.MarkRead(context.Background(), "c1")
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAPIErrorCarriesStatusAndMessage(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusConflict, "already read")
	})
	err := client.MarkRead(context.Background(), "c1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Message != "already read" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestNewClientRejectsEmptyBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}, nil); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestValidationBeforeNetwork(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://127.0.0.1:0"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.ListMessages(context.Background(), "", 1, 50); err == nil {
		t.Error("empty conversation id accepted")
	}
	if err := client.MarkRead(context.Background(), ""); err == nil {
		t.Error("empty conversation id accepted")
	}
	if _, err := client.CreateOrGetConversation(context.Background(), "", ""); err == nil {
		t.Error("empty user id accepted")
	}
}

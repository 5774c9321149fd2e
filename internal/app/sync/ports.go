package sync

import (
	"context"
	"encoding/json"

	"roomsync/internal/domain/chat"
)

// API is the REST chat surface the sync core depends on. Implemented by
// infra/rest.Client; tests substitute fakes.
type API interface {
	ListConversations(ctx context.Context, page, limit int) ([]chat.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, page, limit int) ([]chat.Message, error)
	SendMessage(ctx context.Context, conversationID, content string, msgType chat.MessageType, attachments []chat.Attachment) (chat.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
	UnreadCount(ctx context.Context) (int, error)
	CreateOrGetConversation(ctx context.Context, otherUserID, listingID string) (chat.Conversation, error)
}

// Transport is the socket surface the sync core depends on. Implemented by
// infra/transport.Manager.
type Transport interface {
	Connect(ctx context.Context, credential string) error
	Close() error
	IsConnected() bool
	Publish(event string, payload any)
	Subscribe(event string, handler func(json.RawMessage)) int
	Unsubscribe(event string, id int)
	OnConnect(fn func())
	OnDisconnect(fn func())
}

// Notifier surfaces a system-level notification for a message that arrived
// on a conversation that is not currently active. The core never renders
// notifications itself.
type Notifier interface {
	Notify(senderName, content, conversationID string)
}

package dto

import (
	"time"

	"roomsync/internal/domain/chat"
)

// UserRef describes a chat participant on the wire.
type UserRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ListingRef ties a conversation to a marketplace listing.
type ListingRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Attachment references an uploaded file.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Conversation describes chat metadata for one thread.
type Conversation struct {
	ID                 string      `json:"id"`
	Participants       []UserRef   `json:"participants"`
	Listing            *ListingRef `json:"listing,omitempty"`
	LastMessageAt      time.Time   `json:"last_message_at,omitempty"`
	LastMessagePreview string      `json:"last_message_preview,omitempty"`
	LastMessageSender  string      `json:"last_message_sender_id,omitempty"`
	UnreadCount        int         `json:"unread_count"`
}

// ConversationPage is a page of the conversation directory.
type ConversationPage struct {
	Items []Conversation `json:"items"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// Message contains a single message payload.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	Sender         UserRef      `json:"sender"`
	Content        string       `json:"content"`
	Type           string       `json:"type"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// MessagePage is a page of one conversation's history, oldest first.
type MessagePage struct {
	Items []Message `json:"items"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// SendMessageRequest is the POST body for sending a message.
type SendMessageRequest struct {
	Content     string       `json:"content"`
	Type        string       `json:"type"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// CreateConversationRequest opens (or returns) a thread with another user.
type CreateConversationRequest struct {
	OtherUserID string `json:"other_user_id"`
	ListingID   string `json:"listing_id,omitempty"`
}

// UnreadCount carries the global unread total for the current user.
type UnreadCount struct {
	Count int `json:"count"`
}

// MarkReadResponse acknowledges a mark-read transition.
type MarkReadResponse struct {
	ReadAt time.Time `json:"read_at"`
}

// ToDomain converts a wire conversation into the domain type.
func (c Conversation) ToDomain() chat.Conversation {
	out := chat.Conversation{
		ID:                 c.ID,
		Participants:       make([]chat.UserRef, 0, len(c.Participants)),
		LastMessageAt:      c.LastMessageAt,
		LastMessagePreview: c.LastMessagePreview,
		LastSenderID:       c.LastMessageSender,
		UnreadCount:        c.UnreadCount,
	}
	for _, p := range c.Participants {
		out.Participants = append(out.Participants, chat.UserRef(p))
	}
	if c.Listing != nil {
		listing := chat.ListingRef(*c.Listing)
		out.Listing = &listing
	}
	return out
}

// ToDomain converts a wire message into the domain type.
func (m Message) ToDomain() chat.Message {
	out := chat.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         chat.UserRef(m.Sender),
		Content:        m.Content,
		Type:           chat.MessageType(m.Type),
		CreatedAt:      m.CreatedAt,
	}
	if out.Type == "" {
		out.Type = chat.MessageText
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, chat.Attachment(a))
	}
	return out
}

// FromDomainMessage converts a domain message into its wire form.
func FromDomainMessage(m chat.Message) Message {
	out := Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         UserRef(m.Sender),
		Content:        m.Content,
		Type:           string(m.Type),
		CreatedAt:      m.CreatedAt,
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, Attachment(a))
	}
	return out
}

// FromDomainConversation converts a domain conversation into its wire form.
func FromDomainConversation(c chat.Conversation) Conversation {
	out := Conversation{
		ID:                 c.ID,
		Participants:       make([]UserRef, 0, len(c.Participants)),
		LastMessageAt:      c.LastMessageAt,
		LastMessagePreview: c.LastMessagePreview,
		LastMessageSender:  c.LastSenderID,
		UnreadCount:        c.UnreadCount,
	}
	for _, p := range c.Participants {
		out.Participants = append(out.Participants, UserRef(p))
	}
	if c.Listing != nil {
		listing := ListingRef(*c.Listing)
		out.Listing = &listing
	}
	return out
}

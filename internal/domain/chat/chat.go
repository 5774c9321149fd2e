package chat

import "time"

// UserRef identifies a chat participant.
type UserRef struct {
	ID        string
	Name      string
	AvatarURL string
}

// ListingRef points at the marketplace listing a conversation was opened for.
type ListingRef struct {
	ID    string
	Title string
}

// MessageType distinguishes plain text from attachment messages.
type MessageType string

const (
	MessageText       MessageType = "text"
	MessageAttachment MessageType = "attachment"
)

// Attachment references an uploaded file carried by a message.
type Attachment struct {
	URL      string
	Name     string
	MimeType string
}

// Message is a single immutable chat message. Identity is the ID; duplicate
// deliveries of the same ID collapse to one entry regardless of arrival path.
type Message struct {
	ID             string
	ConversationID string
	Sender         UserRef
	Content        string
	Type           MessageType
	Attachments    []Attachment
	CreatedAt      time.Time
}

// Conversation is a two-party thread, optionally tied to a listing.
// UnreadCount is the count for the signed-in user and is only reset by an
// explicit mark-read transition or a fresh server value.
type Conversation struct {
	ID                 string
	Participants       []UserRef
	Listing            *ListingRef
	LastMessageAt      time.Time
	LastMessagePreview string
	LastSenderID       string
	UnreadCount        int
}

// Counterpart returns the participant that is not selfID. Falls back to the
// zero value when the conversation has no other participant recorded.
func (c Conversation) Counterpart(selfID string) UserRef {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p
		}
	}
	return UserRef{}
}

// HasParticipant reports whether userID takes part in the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

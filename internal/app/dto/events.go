package dto

// Socket event vocabulary. Outbound events are published by the client,
// inbound events are pushed by the server.
const (
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"

	EventNewMessage        = "new-message"
	EventUserTyping        = "user-typing"
	EventUserStoppedTyping = "user-stopped-typing"
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
)

// RoomEvent is the payload for join/leave events.
type RoomEvent struct {
	ConversationID string `json:"conversation_id"`
}

// TypingEvent is the payload for typing start/stop events, both directions.
type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id,omitempty"`
}

// PresenceEvent is the payload for user-online / user-offline pushes.
type PresenceEvent struct {
	UserID string `json:"user_id"`
}

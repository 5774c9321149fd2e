package sync

import (
	stdsync "sync"

	"roomsync/internal/app/dto"
)

// RoomCoordinator tracks which conversation room the client has joined on
// the transport. Join and Leave bracket exactly the period a conversation is
// the active, visible one. Join/leave traffic while disconnected is silently
// dropped by the transport; Rejoin re-issues the join after a reconnect.
type RoomCoordinator struct {
	transport Transport

	mu     stdsync.Mutex
	active string
}

func NewRoomCoordinator(transport Transport) *RoomCoordinator {
	return &RoomCoordinator{transport: transport}
}

// Join makes a conversation the active room, leaving the previous one first.
// Joining the already-active room is a no-op.
func (r *RoomCoordinator) Join(conversationID string) {
	if conversationID == "" {
		return
	}
	r.mu.Lock()
	previous := r.active
	if previous == conversationID {
		r.mu.Unlock()
		return
	}
	r.active = conversationID
	r.mu.Unlock()

	if previous != "" {
		r.transport.Publish(dto.EventLeaveConversation, dto.RoomEvent{ConversationID: previous})
	}
	r.transport.Publish(dto.EventJoinConversation, dto.RoomEvent{ConversationID: conversationID})
}

// Leave exits a room. Leaving an inactive conversation is safe and idempotent.
func (r *RoomCoordinator) Leave(conversationID string) {
	if conversationID == "" {
		return
	}
	r.mu.Lock()
	wasActive := r.active == conversationID
	if wasActive {
		r.active = ""
	}
	r.mu.Unlock()
	if wasActive {
		r.transport.Publish(dto.EventLeaveConversation, dto.RoomEvent{ConversationID: conversationID})
	}
}

// Rejoin re-issues the join for the active conversation, if any. Called from
// the transport's reconnect hook because join calls made while disconnected
// were dropped.
func (r *RoomCoordinator) Rejoin() {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active != "" {
		r.transport.Publish(dto.EventJoinConversation, dto.RoomEvent{ConversationID: active})
	}
}

// Active returns the currently joined conversation ID, or "".
func (r *RoomCoordinator) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

package devserver

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roomsync/internal/app/dto"
	"roomsync/internal/domain/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 75 * time.Second
	pingPeriod = 30 * time.Second
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	rooms  map[string]struct{}
}

// Hub fans socket events out to connected clients: message pushes to
// conversation participants, typing events to joined room members, presence
// transitions to everyone. One user may hold several connections.
type Hub struct {
	store  *Store
	logger *slog.Logger

	mu            sync.Mutex
	clientsByUser map[string]map[*client]struct{}
}

func NewHub(store *Store, logger *slog.Logger) *Hub {
	return &Hub{
		store:         store,
		logger:        logger,
		clientsByUser: make(map[string]map[*client]struct{}),
	}
}

// HandleConnection runs the read loop for one upgraded connection and blocks
// until the connection drops.
func (h *Hub) HandleConnection(conn *websocket.Conn, userID string) {
	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, 64),
		rooms:  make(map[string]struct{}),
	}
	h.register(c)
	go h.writePump(c)
	h.readPump(c)
}

// PushMessage delivers a stored message to every connection of each
// participant.
func (h *Hub) PushMessage(msg chat.Message) {
	participants, err := h.store.Participants(msg.ConversationID)
	if err != nil {
		return
	}
	frame := marshalEvent(dto.EventNewMessage, dto.FromDomainMessage(msg))
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, userID := range participants {
		for c := range h.clientsByUser[userID] {
			c.enqueue(frame)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	first := len(h.clientsByUser[c.userID]) == 0
	if h.clientsByUser[c.userID] == nil {
		h.clientsByUser[c.userID] = make(map[*client]struct{})
	}
	h.clientsByUser[c.userID][c] = struct{}{}
	h.mu.Unlock()
	if first {
		h.broadcastPresence(dto.EventUserOnline, c.userID)
	}
	if h.logger != nil {
		h.logger.Info("socket client connected", "user_id", c.userID)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clientsByUser[c.userID]; ok {
		if _, present := set[c]; present {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clientsByUser, c.userID)
		}
	}
	last := len(h.clientsByUser[c.userID]) == 0
	h.mu.Unlock()
	if last {
		h.broadcastPresence(dto.EventUserOffline, c.userID)
	}
	if h.logger != nil {
		h.logger.Info("socket client disconnected", "user_id", c.userID)
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && h.logger != nil {
				h.logger.Debug("socket read failed", "user_id", c.userID, "error", err)
			}
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		h.handleEvent(c, env)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleEvent(c *client, env envelope) {
	switch env.Event {
	case dto.EventJoinConversation:
		var ev dto.RoomEvent
		if json.Unmarshal(env.Data, &ev) != nil || !h.store.IsParticipant(ev.ConversationID, c.userID) {
			return
		}
		h.mu.Lock()
		c.rooms[ev.ConversationID] = struct{}{}
		h.mu.Unlock()
	case dto.EventLeaveConversation:
		var ev dto.RoomEvent
		if json.Unmarshal(env.Data, &ev) != nil {
			return
		}
		h.mu.Lock()
		delete(c.rooms, ev.ConversationID)
		h.mu.Unlock()
	case dto.EventTypingStart:
		h.fanoutTyping(c, env.Data, dto.EventUserTyping)
	case dto.EventTypingStop:
		h.fanoutTyping(c, env.Data, dto.EventUserStoppedTyping)
	}
}

// fanoutTyping relays a typing transition to the other members joined to the
// same room.
func (h *Hub) fanoutTyping(from *client, data json.RawMessage, outEvent string) {
	var ev dto.TypingEvent
	if json.Unmarshal(data, &ev) != nil || ev.ConversationID == "" {
		return
	}
	frame := marshalEvent(outEvent, dto.TypingEvent{ConversationID: ev.ConversationID, UserID: from.userID})
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clientsByUser {
		for c := range set {
			if c.userID == from.userID {
				continue
			}
			if _, joined := c.rooms[ev.ConversationID]; joined {
				c.enqueue(frame)
			}
		}
	}
}

func (h *Hub) broadcastPresence(event, userID string) {
	frame := marshalEvent(event, dto.PresenceEvent{UserID: userID})
	h.mu.Lock()
	defer h.mu.Unlock()
	for owner, set := range h.clientsByUser {
		if owner == userID {
			continue
		}
		for c := range set {
			c.enqueue(frame)
		}
	}
}

func (c *client) enqueue(frame []byte) {
	select {
	case c.send <- frame:
	default:
		// Slow consumer; drop the frame rather than block the hub.
	}
}

func marshalEvent(event string, payload any) []byte {
	data, _ := json.Marshal(payload)
	frame, _ := json.Marshal(envelope{Event: event, Data: data})
	return frame
}

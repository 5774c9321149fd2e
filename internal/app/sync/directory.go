package sync

import (
	"sort"
	stdsync "sync"

	"roomsync/internal/domain/chat"
)

// Directory is the authoritative client-side list of conversations for the
// signed-in user. It is reconciled between REST fetches (wholesale Replace)
// and socket pushes (ApplyMessage upserts). Only the session mutates it; UI
// surfaces read snapshots.
type Directory struct {
	mu   stdsync.RWMutex
	byID map[string]chat.Conversation
}

func NewDirectory() *Directory {
	return &Directory{byID: make(map[string]chat.Conversation)}
}

// Replace swaps the directory for a fresh fetch result. Pre-existing local
// state is discarded, not merged, so post-reconnect reconciliation never
// resurrects stale data.
func (d *Directory) Replace(conversations []chat.Conversation) {
	next := make(map[string]chat.Conversation, len(conversations))
	for _, c := range conversations {
		next[c.ID] = c
	}
	d.mu.Lock()
	d.byID = next
	d.mu.Unlock()
}

// Get returns one conversation by ID.
func (d *Directory) Get(id string) (chat.Conversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.byID[id]
	return c, ok
}

// List returns conversations ordered by most recent activity first.
func (d *Directory) List() []chat.Conversation {
	d.mu.RLock()
	out := make([]chat.Conversation, 0, len(d.byID))
	for _, c := range d.byID {
		out = append(out, c)
	}
	d.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// ApplyMessage folds a delivered message into the owning conversation's
// preview, activity timestamp and unread count. The unread count grows only
// for counterpart messages on an inactive conversation; it is never
// decremented here. Returns false when the conversation is unknown locally,
// in which case the caller refetches the directory instead of constructing a
// partial entry.
func (d *Directory) ApplyMessage(msg chat.Message, selfID string, active bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	conv, ok := d.byID[msg.ConversationID]
	if !ok {
		return false
	}
	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = msg.CreatedAt
		conv.LastMessagePreview = msg.Content
		conv.LastSenderID = msg.Sender.ID
	}
	if msg.Sender.ID != selfID && !active {
		conv.UnreadCount++
	}
	d.byID[msg.ConversationID] = conv
	return true
}

// Upsert inserts or overwrites a single conversation fetched from the server.
func (d *Directory) Upsert(conv chat.Conversation) {
	d.mu.Lock()
	d.byID[conv.ID] = conv
	d.mu.Unlock()
}

// ZeroUnread resets a conversation's unread count after a successful
// mark-read transition.
func (d *Directory) ZeroUnread(id string) {
	d.mu.Lock()
	if conv, ok := d.byID[id]; ok {
		conv.UnreadCount = 0
		d.byID[id] = conv
	}
	d.mu.Unlock()
}

// Reset drops all conversations. Called on session teardown.
func (d *Directory) Reset() {
	d.mu.Lock()
	d.byID = make(map[string]chat.Conversation)
	d.mu.Unlock()
}

package sync

import (
	stdsync "sync"

	"roomsync/internal/domain/chat"
)

// MessageLog holds the per-conversation timelines plus pagination progress.
// It is the only mutator of message ordering; deduplication by message ID
// makes the REST send echo and the socket push path commute.
type MessageLog struct {
	mu        stdsync.Mutex
	timelines map[string]*chat.Timeline
	pages     map[string]int
	more      map[string]bool
}

func NewMessageLog() *MessageLog {
	return &MessageLog{
		timelines: make(map[string]*chat.Timeline),
		pages:     make(map[string]int),
		more:      make(map[string]bool),
	}
}

// Append inserts a single message, reporting whether it was new.
func (l *MessageLog) Append(msg chat.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timeline(msg.ConversationID).Insert(msg)
}

// RecordPage merges a fetched history page and updates pagination state.
// A page shorter than pageSize signals that no more history exists.
func (l *MessageLog) RecordPage(conversationID string, page int, msgs []chat.Message, pageSize int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timeline(conversationID).Merge(msgs)
	if page > l.pages[conversationID] {
		l.pages[conversationID] = page
	}
	l.more[conversationID] = len(msgs) == pageSize
}

// Messages returns a snapshot of one conversation's log, oldest first.
func (l *MessageLog) Messages(conversationID string) []chat.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.timelines[conversationID]
	if !ok {
		return nil
	}
	return t.Messages()
}

// Has reports whether the message ID is already present in its conversation.
func (l *MessageLog) Has(conversationID, messageID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.timelines[conversationID]
	return ok && t.Has(messageID)
}

// LoadedPages returns how many history pages have been fetched so far.
func (l *MessageLog) LoadedPages(conversationID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pages[conversationID]
}

// HasMore reports whether older history may still exist on the server.
func (l *MessageLog) HasMore(conversationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.more[conversationID]
}

// Drop discards one conversation's log so a reconnect reconciliation starts
// from a clean fetch instead of merging with pre-outage state.
func (l *MessageLog) Drop(conversationID string) {
	l.mu.Lock()
	delete(l.timelines, conversationID)
	delete(l.pages, conversationID)
	delete(l.more, conversationID)
	l.mu.Unlock()
}

// Reset discards every timeline. Called on session teardown.
func (l *MessageLog) Reset() {
	l.mu.Lock()
	l.timelines = make(map[string]*chat.Timeline)
	l.pages = make(map[string]int)
	l.more = make(map[string]bool)
	l.mu.Unlock()
}

func (l *MessageLog) timeline(conversationID string) *chat.Timeline {
	t, ok := l.timelines[conversationID]
	if !ok {
		t = chat.NewTimeline()
		l.timelines[conversationID] = t
	}
	return t
}

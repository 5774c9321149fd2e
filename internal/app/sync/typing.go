package sync

import (
	"sort"
	stdsync "sync"
)

// typingTracker records which counterpart users are typing per conversation,
// driven by user-typing / user-stopped-typing events.
type typingTracker struct {
	mu     stdsync.Mutex
	byConv map[string]map[string]struct{}
}

func newTypingTracker() *typingTracker {
	return &typingTracker{byConv: make(map[string]map[string]struct{})}
}

func (t *typingTracker) start(conversationID, userID string) {
	if conversationID == "" || userID == "" {
		return
	}
	t.mu.Lock()
	set, ok := t.byConv[conversationID]
	if !ok {
		set = make(map[string]struct{})
		t.byConv[conversationID] = set
	}
	set[userID] = struct{}{}
	t.mu.Unlock()
}

func (t *typingTracker) stop(conversationID, userID string) {
	t.mu.Lock()
	if set, ok := t.byConv[conversationID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(t.byConv, conversationID)
		}
	}
	t.mu.Unlock()
}

func (t *typingTracker) users(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.byConv[conversationID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (t *typingTracker) reset() {
	t.mu.Lock()
	t.byConv = make(map[string]map[string]struct{})
	t.mu.Unlock()
}

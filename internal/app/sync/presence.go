package sync

import stdsync "sync"

// PresenceTracker holds the set of counterpart users currently known to be
// online. The set is mutated only by user-online / user-offline events.
//
// Policy: entries are retained across a transport disconnect until the next
// explicit event arrives. A disconnect means the set is stale, not that
// everyone went offline; UIs should pair IsOnline with the connection state.
type PresenceTracker struct {
	mu     stdsync.RWMutex
	online map[string]struct{}
}

func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{online: make(map[string]struct{})}
}

// SetOnline records a user-online event.
func (t *PresenceTracker) SetOnline(userID string) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	t.online[userID] = struct{}{}
	t.mu.Unlock()
}

// SetOffline records a user-offline event.
func (t *PresenceTracker) SetOffline(userID string) {
	t.mu.Lock()
	delete(t.online, userID)
	t.mu.Unlock()
}

// IsOnline reports whether an online event for the user is outstanding.
func (t *PresenceTracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// Reset drops every entry. Called on session teardown, not on disconnect.
func (t *PresenceTracker) Reset() {
	t.mu.Lock()
	t.online = make(map[string]struct{})
	t.mu.Unlock()
}

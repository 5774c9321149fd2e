package chat

import "sort"

// Timeline is the ordered, deduplicated message log of one conversation.
// Messages are kept in creation-timestamp order; two messages with an equal
// timestamp retain insertion order. Inserting an ID that is already present
// is a no-op.
//
// Timeline is not safe for concurrent use; callers guard it.
type Timeline struct {
	messages []Message
	ids      map[string]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{ids: make(map[string]struct{})}
}

// Insert places msg at its timestamp position and reports whether the
// timeline changed. A duplicate ID leaves the timeline untouched.
func (t *Timeline) Insert(msg Message) bool {
	if msg.ID == "" {
		return false
	}
	if _, dup := t.ids[msg.ID]; dup {
		return false
	}
	// Upper bound: equal timestamps keep insertion order.
	pos := sort.Search(len(t.messages), func(i int) bool {
		return t.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	t.messages = append(t.messages, Message{})
	copy(t.messages[pos+1:], t.messages[pos:])
	t.messages[pos] = msg
	t.ids[msg.ID] = struct{}{}
	return true
}

// Merge inserts a batch and returns how many entries were actually new.
func (t *Timeline) Merge(msgs []Message) int {
	inserted := 0
	for _, m := range msgs {
		if t.Insert(m) {
			inserted++
		}
	}
	return inserted
}

// Has reports whether a message ID is already present.
func (t *Timeline) Has(id string) bool {
	_, ok := t.ids[id]
	return ok
}

// Len returns the number of messages held.
func (t *Timeline) Len() int {
	return len(t.messages)
}

// Newest returns the most recent message, if any.
func (t *Timeline) Newest() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// Messages returns a copy of the log, oldest first.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

package sync

import (
	"testing"
	"time"

	"roomsync/internal/domain/chat"
)

func conv(id string, lastAt time.Time, unread int) chat.Conversation {
	return chat.Conversation{
		ID: id,
		Participants: []chat.UserRef{
			{ID: "self", Name: "Self"},
			{ID: "other-" + id, Name: "Other " + id},
		},
		LastMessageAt: lastAt,
		UnreadCount:   unread,
	}
}

func TestListOrdersByActivity(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	d := NewDirectory()
	d.Replace([]chat.Conversation{
		conv("old", base, 0),
		conv("new", base.Add(2*time.Hour), 0),
		conv("mid", base.Add(time.Hour), 0),
	})
	got := d.List()
	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestReplaceDiscardsLocalState(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	d := NewDirectory()
	d.Replace([]chat.Conversation{conv("gone", base, 3)})
	d.Replace([]chat.Conversation{conv("kept", base, 0)})

	if _, ok := d.Get("gone"); ok {
		t.Error("conversation absent from the fresh fetch must not survive Replace")
	}
	if _, ok := d.Get("kept"); !ok {
		t.Error("conversation from the fresh fetch missing")
	}
}

func TestApplyMessageUpdatesPreviewAndUnread(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	d := NewDirectory()
	d.Replace([]chat.Conversation{conv("c1", base, 0)})

	incoming := chat.Message{
		ID:             "m1",
		ConversationID: "c1",
		Sender:         chat.UserRef{ID: "other-c1", Name: "Other c1"},
		Content:        "is the room still available?",
		CreatedAt:      base.Add(time.Minute),
	}
	if !d.ApplyMessage(incoming, "self", false) {
		t.Fatal("known conversation reported as unknown")
	}
	got, _ := d.Get("c1")
	if got.LastMessagePreview != incoming.Content {
		t.Errorf("preview = %q, want %q", got.LastMessagePreview, incoming.Content)
	}
	if !got.LastMessageAt.Equal(incoming.CreatedAt) {
		t.Errorf("last activity = %v, want %v", got.LastMessageAt, incoming.CreatedAt)
	}
	if got.UnreadCount != 1 {
		t.Errorf("unread = %d, want 1 for counterpart message on inactive conversation", got.UnreadCount)
	}
}

func TestApplyMessageUnreadRules(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		sender string
		active bool
		want   int
	}{
		{"own message", "self", false, 0},
		{"counterpart while active", "other-c1", true, 0},
		{"counterpart while inactive", "other-c1", false, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDirectory()
			d.Replace([]chat.Conversation{conv("c1", base, 0)})
			d.ApplyMessage(chat.Message{
				ID:             "m1",
				ConversationID: "c1",
				Sender:         chat.UserRef{ID: tc.sender},
				Content:        "hi",
				CreatedAt:      base.Add(time.Minute),
			}, "self", tc.active)
			got, _ := d.Get("c1")
			if got.UnreadCount != tc.want {
				t.Errorf("unread = %d, want %d", got.UnreadCount, tc.want)
			}
		})
	}
}

func TestApplyMessageUnknownConversation(t *testing.T) {
	d := NewDirectory()
	if d.ApplyMessage(chat.Message{ID: "m1", ConversationID: "nope"}, "self", false) {
		t.Error("unknown conversation must report false so the caller refetches")
	}
	if _, ok := d.Get("nope"); ok {
		t.Error("no partial entry may be constructed for an unknown conversation")
	}
}

func TestZeroUnread(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	d := NewDirectory()
	d.Replace([]chat.Conversation{conv("c1", base, 4)})
	d.ZeroUnread("c1")
	got, _ := d.Get("c1")
	if got.UnreadCount != 0 {
		t.Errorf("unread = %d after ZeroUnread", got.UnreadCount)
	}
}

package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"roomsync/internal/domain/chat"
)

// fakeAPI is an in-memory stand-in for the REST chat API.
type fakeAPI struct {
	mu            stdsync.Mutex
	conversations []chat.Conversation
	pages         map[string]map[int][]chat.Message
	unread        int
	sendSeq       int

	listConvCalls int
	unreadCalls   int
	markReadCalls []string

	listConvErr error
	sendErr     error
	markReadErr error
	unreadErr   error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{pages: make(map[string]map[int][]chat.Message)}
}

func (f *fakeAPI) ListConversations(ctx context.Context, page, limit int) ([]chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listConvCalls++
	if f.listConvErr != nil {
		return nil, f.listConvErr
	}
	if page > 1 {
		return nil, nil
	}
	return append([]chat.Conversation(nil), f.conversations...), nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID string, page, limit int) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chat.Message(nil), f.pages[conversationID][page]...), nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, conversationID, content string, msgType chat.MessageType, attachments []chat.Attachment) (chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return chat.Message{}, f.sendErr
	}
	f.sendSeq++
	return chat.Message{
		ID:             fmt.Sprintf("srv-%d", f.sendSeq),
		ConversationID: conversationID,
		Sender:         chat.UserRef{ID: "self", Name: "Self"},
		Content:        content,
		Type:           msgType,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeAPI) MarkRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls = append(f.markReadCalls, conversationID)
	return f.markReadErr
}

func (f *fakeAPI) UnreadCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreadCalls++
	if f.unreadErr != nil {
		return 0, f.unreadErr
	}
	return f.unread, nil
}

func (f *fakeAPI) CreateOrGetConversation(ctx context.Context, otherUserID, listingID string) (chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.HasParticipant(otherUserID) {
			return c, nil
		}
	}
	return chat.Conversation{}, errors.New("no such user")
}

func (f *fakeAPI) setConversations(convs ...chat.Conversation) {
	f.mu.Lock()
	f.conversations = convs
	f.mu.Unlock()
}

func (f *fakeAPI) setPage(conversationID string, page int, msgs ...chat.Message) {
	f.mu.Lock()
	if f.pages[conversationID] == nil {
		f.pages[conversationID] = make(map[int][]chat.Message)
	}
	f.pages[conversationID][page] = msgs
	f.mu.Unlock()
}

func (f *fakeAPI) setUnread(n int) {
	f.mu.Lock()
	f.unread = n
	f.mu.Unlock()
}

func (f *fakeAPI) callCounts() (listConv, unread int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listConvCalls, f.unreadCalls
}

type published struct {
	Event   string
	Payload any
}

// fakeTransport is an in-memory stand-in for the socket manager. Publish
// calls while disconnected are dropped, mirroring the real transport.
type fakeTransport struct {
	mu           stdsync.Mutex
	connected    bool
	failConnect  bool
	published    []published
	handlers     map[string]map[int]func(json.RawMessage)
	nextID       int
	onConnect    []func()
	onDisconnect []func()
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: make(map[string]map[int]func(json.RawMessage))}
}

func (f *fakeTransport) Connect(ctx context.Context, credential string) error {
	f.mu.Lock()
	if f.failConnect {
		f.mu.Unlock()
		return errors.New("dial refused")
	}
	f.connected = true
	hooks := append([]func(){}, f.onConnect...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Publish(event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return
	}
	f.published = append(f.published, published{Event: event, Payload: payload})
}

func (f *fakeTransport) Subscribe(event string, handler func(json.RawMessage)) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]func(json.RawMessage))
	}
	f.handlers[event][f.nextID] = handler
	return f.nextID
}

func (f *fakeTransport) Unsubscribe(event string, id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers[event], id)
}

func (f *fakeTransport) OnConnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = append(f.onConnect, fn)
}

func (f *fakeTransport) OnDisconnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = append(f.onDisconnect, fn)
}

// emit simulates a server push.
func (f *fakeTransport) emit(t *testing.T, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	f.mu.Lock()
	handlers := make([]func(json.RawMessage), 0, len(f.handlers[event]))
	for _, h := range f.handlers[event] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

// drop simulates a lost connection.
func (f *fakeTransport) drop() {
	f.mu.Lock()
	f.connected = false
	hooks := append([]func(){}, f.onDisconnect...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// reconnect simulates the retry loop re-establishing the connection.
func (f *fakeTransport) reconnect() {
	f.mu.Lock()
	f.connected = true
	hooks := append([]func(){}, f.onConnect...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (f *fakeTransport) publishedEvents() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

// waitFor polls until the condition holds or the deadline expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

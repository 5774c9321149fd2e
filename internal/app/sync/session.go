package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"roomsync/internal/app/dto"
	"roomsync/internal/domain/chat"
)

// Config carries the identity and tuning of one authenticated chat session.
type Config struct {
	SelfID         string
	Credential     string
	PageSize       int
	UnreadTTL      time.Duration
	UnreadInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.UnreadTTL <= 0 {
		c.UnreadTTL = 10 * time.Second
	}
	if c.UnreadInterval <= 0 {
		c.UnreadInterval = 30 * time.Second
	}
	return c
}

// Session is the process-wide chat synchronization core for one signed-in
// user. It owns the conversation directory, per-conversation message logs,
// presence, room membership and the shared unread counter; every mounted UI
// surface reads from the same session instead of opening its own connection
// or polling loop.
type Session struct {
	cfg       Config
	api       API
	transport Transport
	notifier  Notifier
	logger    *slog.Logger

	directory *Directory
	log       *MessageLog
	presence  *PresenceTracker
	rooms     *RoomCoordinator
	unread    *UnreadCounter
	typing    *typingTracker

	mu          stdsync.Mutex
	started     bool
	reconciling bool
	ctx         context.Context
	cancel      context.CancelFunc
	subIDs      map[string]int
	onMessage   []func(chat.Message)
}

// NewSession wires the sync core. The notifier may be nil.
func NewSession(cfg Config, api API, transport Transport, notifier Notifier, logger *slog.Logger) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		cfg:       cfg,
		api:       api,
		transport: transport,
		notifier:  notifier,
		logger:    logger,
		directory: NewDirectory(),
		log:       NewMessageLog(),
		presence:  NewPresenceTracker(),
		rooms:     NewRoomCoordinator(transport),
		unread:    NewUnreadCounter(api, cfg.UnreadTTL),
		typing:    newTypingTracker(),
		subIDs:    make(map[string]int),
	}
}

// Start connects the transport and primes the directory and unread counter.
// A failed socket connect is not fatal: the REST path keeps working and the
// transport keeps retrying, so Start only reports configuration errors.
func (s *Session) Start(ctx context.Context) error {
	if s.cfg.SelfID == "" || s.cfg.Credential == "" {
		return errors.New("sync: session requires a user id and credential")
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("sync: session already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.subscribeEvents()
	s.transport.OnConnect(s.handleConnect)
	s.transport.OnDisconnect(s.handleDisconnect)
	go s.unread.Run(s.ctx, s.cfg.UnreadInterval)

	if err := s.transport.Connect(ctx, s.cfg.Credential); err != nil {
		if s.logger != nil {
			s.logger.Warn("socket unavailable, continuing with REST only", "error", err)
		}
		// The connect hook did not fire, so fetch the initial state here.
		if err := s.RefreshConversations(ctx); err != nil && s.logger != nil {
			s.logger.Warn("initial conversation fetch failed", "error", err)
		}
		if _, err := s.unread.Refresh(ctx); err != nil && s.logger != nil {
			s.logger.Warn("initial unread fetch failed", "error", err)
		}
	}
	return nil
}

// Close tears the session down: transport released, subscriptions removed,
// all local chat state cleared. Called on logout.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	subIDs := s.subIDs
	s.subIDs = make(map[string]int)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for event, id := range subIDs {
		s.transport.Unsubscribe(event, id)
	}
	err := s.transport.Close()
	s.directory.Reset()
	s.log.Reset()
	s.presence.Reset()
	s.typing.reset()
	return err
}

// Connected reports whether the socket is currently up.
func (s *Session) Connected() bool {
	return s.transport.IsConnected()
}

// Reconciling reports whether a post-reconnect reconciliation is still in
// flight; UIs show a reconnecting state instead of presenting possibly-stale
// data as current.
func (s *Session) Reconciling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconciling
}

// Conversations returns the directory snapshot, most recent activity first.
func (s *Session) Conversations() []chat.Conversation {
	return s.directory.List()
}

// Conversation returns a single directory entry.
func (s *Session) Conversation(id string) (chat.Conversation, bool) {
	return s.directory.Get(id)
}

// RefreshConversations refetches the full directory and replaces the local
// copy wholesale.
func (s *Session) RefreshConversations(ctx context.Context) error {
	var all []chat.Conversation
	for page := 1; ; page++ {
		items, err := s.api.ListConversations(ctx, page, s.cfg.PageSize)
		if err != nil {
			return fmt.Errorf("sync: refresh conversations: %w", err)
		}
		all = append(all, items...)
		if len(items) < s.cfg.PageSize {
			break
		}
	}
	s.directory.Replace(all)
	return nil
}

// OpenConversation makes a conversation the active one, joining its room and
// loading the first history page if it has not been loaded yet.
func (s *Session) OpenConversation(ctx context.Context, id string) ([]chat.Message, error) {
	s.rooms.Join(id)
	if s.log.LoadedPages(id) == 0 {
		if err := s.fetchPage(ctx, id, 1); err != nil {
			return s.log.Messages(id), err
		}
	}
	return s.log.Messages(id), nil
}

// CloseConversation leaves the room when the view unmounts.
func (s *Session) CloseConversation(id string) {
	s.rooms.Leave(id)
}

// ActiveConversation returns the currently open conversation ID, or "".
func (s *Session) ActiveConversation() string {
	return s.rooms.Active()
}

// Messages returns the loaded timeline of a conversation, oldest first.
func (s *Session) Messages(id string) []chat.Message {
	return s.log.Messages(id)
}

// HasOlder reports whether more history may exist for a conversation.
func (s *Session) HasOlder(id string) bool {
	return s.log.HasMore(id)
}

// LoadOlder fetches the next (older) history page for the active
// conversation and returns the merged timeline.
func (s *Session) LoadOlder(ctx context.Context, id string) ([]chat.Message, error) {
	pages := s.log.LoadedPages(id)
	if pages > 0 && !s.log.HasMore(id) {
		return s.log.Messages(id), nil
	}
	if err := s.fetchPage(ctx, id, pages+1); err != nil {
		return s.log.Messages(id), err
	}
	return s.log.Messages(id), nil
}

// Send issues the REST send call. The server-assigned message is merged into
// the timeline through the same dedup rule as the push path, so it appears
// exactly once regardless of whether the socket echo arrives first, and it
// appears even when the socket is down entirely.
func (s *Session) Send(ctx context.Context, conversationID, content string, msgType chat.MessageType, attachments []chat.Attachment) (chat.Message, error) {
	if msgType == "" {
		msgType = chat.MessageText
	}
	msg, err := s.api.SendMessage(ctx, conversationID, content, msgType, attachments)
	if err != nil {
		return chat.Message{}, fmt.Errorf("sync: send failed: %w", err)
	}
	s.log.Append(msg)
	s.directory.ApplyMessage(msg, s.cfg.SelfID, s.rooms.Active() == conversationID)
	return msg, nil
}

// MarkRead records the read transition on the server, zeroes the local
// unread count and refreshes the shared counter so every badge subscriber
// observes the new value.
func (s *Session) MarkRead(ctx context.Context, conversationID string) error {
	if err := s.api.MarkRead(ctx, conversationID); err != nil {
		return fmt.Errorf("sync: mark read: %w", err)
	}
	s.directory.ZeroUnread(conversationID)
	if _, err := s.unread.Refresh(ctx); err != nil && s.logger != nil {
		s.logger.Debug("unread refresh after mark-read failed", "error", err)
	}
	return nil
}

// UnreadCount returns the shared cached unread total.
func (s *Session) UnreadCount(ctx context.Context) (int, error) {
	return s.unread.Get(ctx)
}

// SubscribeUnread registers a badge callback on the shared counter.
func (s *Session) SubscribeUnread(fn func(count int)) int {
	return s.unread.Subscribe(fn)
}

// UnsubscribeUnread removes a badge callback.
func (s *Session) UnsubscribeUnread(id int) {
	s.unread.Unsubscribe(id)
}

// IsOnline reports the presence of a counterpart user.
func (s *Session) IsOnline(userID string) bool {
	return s.presence.IsOnline(userID)
}

// TypingUsers returns the counterpart users currently typing in a
// conversation.
func (s *Session) TypingUsers(conversationID string) []string {
	return s.typing.users(conversationID)
}

// TypingStart announces that the current user started typing. Best-effort.
func (s *Session) TypingStart(conversationID string) {
	s.transport.Publish(dto.EventTypingStart, dto.TypingEvent{ConversationID: conversationID, UserID: s.cfg.SelfID})
}

// TypingStop announces that the current user stopped typing. Best-effort.
func (s *Session) TypingStop(conversationID string) {
	s.transport.Publish(dto.EventTypingStop, dto.TypingEvent{ConversationID: conversationID, UserID: s.cfg.SelfID})
}

// StartConversation opens (or returns) a thread with another user, e.g. when
// a tenant contacts a landlord from a listing page.
func (s *Session) StartConversation(ctx context.Context, otherUserID, listingID string) (chat.Conversation, error) {
	conv, err := s.api.CreateOrGetConversation(ctx, otherUserID, listingID)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("sync: start conversation: %w", err)
	}
	s.directory.Upsert(conv)
	return conv, nil
}

// HandleFocus refetches the directory and unread counter when the window
// regains focus.
func (s *Session) HandleFocus(ctx context.Context) {
	if err := s.RefreshConversations(ctx); err != nil && s.logger != nil {
		s.logger.Debug("focus refresh failed", "error", err)
	}
	if _, err := s.unread.Refresh(ctx); err != nil && s.logger != nil {
		s.logger.Debug("focus unread refresh failed", "error", err)
	}
}

// OnMessage registers a callback invoked for every newly appended incoming
// message. Callbacks run on the transport read loop; keep them short.
func (s *Session) OnMessage(fn func(chat.Message)) {
	s.mu.Lock()
	s.onMessage = append(s.onMessage, fn)
	s.mu.Unlock()
}

// fetchPage loads one history page. The result is discarded when the
// conversation stopped being the active one while the fetch was in flight,
// so a stale resolution never mutates state for a view that is gone.
func (s *Session) fetchPage(ctx context.Context, conversationID string, page int) error {
	msgs, err := s.api.ListMessages(ctx, conversationID, page, s.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("sync: load messages page %d: %w", page, err)
	}
	if s.rooms.Active() != conversationID {
		return nil
	}
	s.log.RecordPage(conversationID, page, msgs, s.cfg.PageSize)
	return nil
}

func (s *Session) subscribeEvents() {
	register := func(event string, handler func(json.RawMessage)) {
		id := s.transport.Subscribe(event, handler)
		s.mu.Lock()
		s.subIDs[event] = id
		s.mu.Unlock()
	}
	register(dto.EventNewMessage, s.handleNewMessage)
	register(dto.EventUserOnline, func(raw json.RawMessage) {
		var ev dto.PresenceEvent
		if json.Unmarshal(raw, &ev) == nil {
			s.presence.SetOnline(ev.UserID)
		}
	})
	register(dto.EventUserOffline, func(raw json.RawMessage) {
		var ev dto.PresenceEvent
		if json.Unmarshal(raw, &ev) == nil {
			s.presence.SetOffline(ev.UserID)
		}
	})
	register(dto.EventUserTyping, func(raw json.RawMessage) {
		var ev dto.TypingEvent
		if json.Unmarshal(raw, &ev) == nil && ev.UserID != s.cfg.SelfID {
			s.typing.start(ev.ConversationID, ev.UserID)
		}
	})
	register(dto.EventUserStoppedTyping, func(raw json.RawMessage) {
		var ev dto.TypingEvent
		if json.Unmarshal(raw, &ev) == nil {
			s.typing.stop(ev.ConversationID, ev.UserID)
		}
	})
}

func (s *Session) handleNewMessage(raw json.RawMessage) {
	var wire dto.Message
	if err := json.Unmarshal(raw, &wire); err != nil {
		if s.logger != nil {
			s.logger.Debug("discarding malformed message event", "error", err)
		}
		return
	}
	msg := wire.ToDomain()
	if !s.log.Append(msg) {
		// Duplicate delivery (e.g. REST echo landed first). Not an error.
		return
	}
	s.typing.stop(msg.ConversationID, msg.Sender.ID)

	active := s.rooms.Active() == msg.ConversationID
	if !s.directory.ApplyMessage(msg, s.cfg.SelfID, active) {
		// New conversation: refetch the directory rather than building a
		// partial local entry.
		go s.backgroundRefresh()
	}
	if msg.Sender.ID != s.cfg.SelfID {
		if !active && s.notifier != nil {
			s.notifier.Notify(msg.Sender.Name, msg.Content, msg.ConversationID)
		}
		go func() {
			ctx, cancel := s.backgroundContext()
			defer cancel()
			s.unread.Refresh(ctx)
		}()
	}
	s.mu.Lock()
	callbacks := append([]func(chat.Message){}, s.onMessage...)
	s.mu.Unlock()
	for _, fn := range callbacks {
		fn(msg)
	}
}

// handleConnect runs after every successful connect. Events missed while
// disconnected cannot be replayed, so local state is rebuilt from fresh
// fetches and the active room is re-joined.
func (s *Session) handleConnect() {
	s.mu.Lock()
	s.reconciling = true
	s.mu.Unlock()
	go func() {
		defer func() {
			s.mu.Lock()
			s.reconciling = false
			s.mu.Unlock()
		}()
		ctx, cancel := s.backgroundContext()
		defer cancel()

		if err := s.RefreshConversations(ctx); err != nil && s.logger != nil {
			s.logger.Warn("reconcile: conversation fetch failed", "error", err)
		}
		if active := s.rooms.Active(); active != "" {
			s.log.Drop(active)
			if err := s.fetchPage(ctx, active, 1); err != nil && s.logger != nil {
				s.logger.Warn("reconcile: message fetch failed", "conversation_id", active, "error", err)
			}
		}
		s.rooms.Rejoin()
		s.unread.Refresh(ctx)
	}()
}

func (s *Session) handleDisconnect() {
	if s.logger != nil {
		s.logger.Warn("socket disconnected, state may be stale until reconnect")
	}
}

func (s *Session) backgroundRefresh() {
	ctx, cancel := s.backgroundContext()
	defer cancel()
	if err := s.RefreshConversations(ctx); err != nil && s.logger != nil {
		s.logger.Warn("directory refresh failed", "error", err)
	}
}

func (s *Session) backgroundContext() (context.Context, context.CancelFunc) {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, 30*time.Second)
}

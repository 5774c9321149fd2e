package devserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"roomsync/internal/domain/chat"
)

// Store errors callers branch on.
var (
	ErrNotFound           = errors.New("devserver: not found")
	ErrInvalidCredentials = errors.New("devserver: invalid credentials")
	ErrNotParticipant     = errors.New("devserver: not a participant")
)

// User is a fixture account of the development server.
type User struct {
	ID           string
	Email        string
	Name         string
	AvatarURL    string
	PasswordHash string
}

func (u User) Ref() chat.UserRef {
	return chat.UserRef{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

type conversationRecord struct {
	ID           string
	Participants []chat.UserRef
	Listing      *chat.ListingRef
	CreatedAt    time.Time
}

// Store keeps users, conversations and messages in memory. Not suitable for
// production; it backs the development chat server only.
type Store struct {
	mu            sync.RWMutex
	usersByID     map[string]User
	usersByEmail  map[string]string
	conversations map[string]conversationRecord
	messages      map[string][]chat.Message
	lastRead      map[string]map[string]time.Time
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		usersByID:     make(map[string]User),
		usersByEmail:  make(map[string]string),
		conversations: make(map[string]conversationRecord),
		messages:      make(map[string][]chat.Message),
		lastRead:      make(map[string]map[string]time.Time),
		now:           time.Now,
	}
}

// AddUser registers a fixture account with a bcrypt-hashed password.
func (s *Store) AddUser(email, name, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         name,
		PasswordHash: string(hash),
	}
	s.mu.Lock()
	s.usersByID[user.ID] = user
	s.usersByEmail[user.Email] = user.ID
	s.mu.Unlock()
	return user, nil
}

// Authenticate checks email/password and returns the account.
func (s *Store) Authenticate(email, password string) (User, error) {
	s.mu.RLock()
	id, ok := s.usersByEmail[strings.ToLower(strings.TrimSpace(email))]
	user := s.usersByID[id]
	s.mu.RUnlock()
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UserByID returns an account by ID.
func (s *Store) UserByID(id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.usersByID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

// GetOrCreateConversation returns the existing thread between two users for
// a listing, creating it when absent.
func (s *Store) GetOrCreateConversation(userID, otherUserID, listingID string) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	self, ok := s.usersByID[userID]
	if !ok {
		return chat.Conversation{}, ErrNotFound
	}
	other, ok := s.usersByID[otherUserID]
	if !ok {
		return chat.Conversation{}, ErrNotFound
	}
	for _, rec := range s.conversations {
		if rec.hasParticipant(userID) && rec.hasParticipant(otherUserID) && rec.listingID() == listingID {
			return s.viewLocked(rec, userID), nil
		}
	}
	rec := conversationRecord{
		ID:           uuid.NewString(),
		Participants: []chat.UserRef{self.Ref(), other.Ref()},
		CreatedAt:    s.now(),
	}
	if listingID != "" {
		rec.Listing = &chat.ListingRef{ID: listingID}
	}
	s.conversations[rec.ID] = rec
	return s.viewLocked(rec, userID), nil
}

// ConversationsFor returns one page of a user's conversations, most recent
// activity first.
func (s *Store) ConversationsFor(userID string, page, limit int) []chat.Conversation {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var views []chat.Conversation
	for _, rec := range s.conversations {
		if rec.hasParticipant(userID) {
			views = append(views, s.viewLocked(rec, userID))
		}
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].LastMessageAt.After(views[j].LastMessageAt)
	})
	start := (page - 1) * limit
	if start >= len(views) {
		return nil
	}
	end := start + limit
	if end > len(views) {
		end = len(views)
	}
	return views[start:end]
}

// Participants returns the participant IDs of a conversation.
func (s *Store) Participants(conversationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]string, 0, len(rec.Participants))
	for _, p := range rec.Participants {
		out = append(out, p.ID)
	}
	return out, nil
}

// IsParticipant reports whether the user takes part in the conversation.
func (s *Store) IsParticipant(conversationID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.conversations[conversationID]
	return ok && rec.hasParticipant(userID)
}

// MessagesPage returns one history page, oldest first within the page.
// Page 1 holds the most recent messages; higher pages reach further back.
func (s *Store) MessagesPage(conversationID string, page, limit int) ([]chat.Message, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	msgs := s.messages[conversationID]
	end := len(msgs) - (page-1)*limit
	if end <= 0 {
		return []chat.Message{}, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]chat.Message, end-start)
	copy(out, msgs[start:end])
	return out, nil
}

// AppendMessage stores a new message from a participant.
func (s *Store) AppendMessage(conversationID, senderID, content string, msgType chat.MessageType, attachments []chat.Attachment) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.conversations[conversationID]
	if !ok {
		return chat.Message{}, ErrNotFound
	}
	if !rec.hasParticipant(senderID) {
		return chat.Message{}, ErrNotParticipant
	}
	sender := s.usersByID[senderID]
	if msgType == "" {
		msgType = chat.MessageText
	}
	msg := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Sender:         sender.Ref(),
		Content:        content,
		Type:           msgType,
		Attachments:    append([]chat.Attachment(nil), attachments...),
		CreatedAt:      s.now(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return msg, nil
}

// MarkRead records that the user has read the conversation up to now.
func (s *Store) MarkRead(conversationID, userID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.conversations[conversationID]
	if !ok {
		return time.Time{}, ErrNotFound
	}
	if !rec.hasParticipant(userID) {
		return time.Time{}, ErrNotParticipant
	}
	if s.lastRead[conversationID] == nil {
		s.lastRead[conversationID] = make(map[string]time.Time)
	}
	readAt := s.now()
	s.lastRead[conversationID][userID] = readAt
	return readAt, nil
}

// UnreadTotal sums unread messages across all of a user's conversations.
func (s *Store) UnreadTotal(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for id, rec := range s.conversations {
		if rec.hasParticipant(userID) {
			total += s.unreadLocked(id, userID)
		}
	}
	return total
}

func (s *Store) viewLocked(rec conversationRecord, userID string) chat.Conversation {
	view := chat.Conversation{
		ID:            rec.ID,
		Participants:  append([]chat.UserRef(nil), rec.Participants...),
		Listing:       rec.Listing,
		LastMessageAt: rec.CreatedAt,
		UnreadCount:   s.unreadLocked(rec.ID, userID),
	}
	if msgs := s.messages[rec.ID]; len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		view.LastMessageAt = last.CreatedAt
		view.LastMessagePreview = last.Content
		view.LastSenderID = last.Sender.ID
	}
	return view
}

func (s *Store) unreadLocked(conversationID, userID string) int {
	var readAt time.Time
	if perUser, ok := s.lastRead[conversationID]; ok {
		readAt = perUser[userID]
	}
	count := 0
	for _, msg := range s.messages[conversationID] {
		if msg.Sender.ID != userID && msg.CreatedAt.After(readAt) {
			count++
		}
	}
	return count
}

func (r conversationRecord) hasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

func (r conversationRecord) listingID() string {
	if r.Listing == nil {
		return ""
	}
	return r.Listing.ID
}

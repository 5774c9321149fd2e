package devserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"roomsync/internal/app/dto"
	"roomsync/internal/domain/chat"
	"roomsync/internal/infra/config"
)

// Server bundles the development chat API: REST endpoints, the websocket
// entry point and JWT auth over the in-memory store.
type Server struct {
	store  *Store
	hub    *Hub
	tokens *TokenService
	logger *slog.Logger
}

func NewServer(store *Store, hub *Hub, tokens *TokenService, logger *slog.Logger) *Server {
	return &Server{store: store, hub: hub, tokens: tokens, logger: logger}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router(cfg config.Config) *gin.Engine {
	if cfg.Env != "dev" && cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/livez", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.POST("/api/v1/auth/login", s.login)
	router.GET("/ws", s.serveWS)

	api := router.Group("/api/v1/chat")
	api.Use(RequireUser(s.tokens))
	api.GET("/conversations", s.listConversations)
	api.POST("/conversations", s.createConversation)
	api.GET("/conversations/:id/messages", s.listMessages)
	api.POST("/conversations/:id/messages", s.sendMessage)
	api.POST("/conversations/:id/read", s.markRead)
	api.GET("/unread-count", s.unreadCount)
	return router
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid payload")
		return
	}
	user, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		fail(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := s.tokens.Mint(user.ID)
	if err != nil {
		s.logError("token mint failed", err)
		fail(c, http.StatusInternalServerError, "cannot issue token")
		return
	}
	respond(c, http.StatusOK, gin.H{
		"token": token,
		"user":  dto.UserRef{ID: user.ID, Name: user.Name, AvatarURL: user.AvatarURL},
	})
}

func (s *Server) serveWS(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}
	userID, err := s.tokens.Verify(token)
	if err != nil {
		fail(c, http.StatusUnauthorized, "invalid token")
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logError("websocket upgrade failed", err)
		return
	}
	s.hub.HandleConnection(conn, userID)
}

func (s *Server) listConversations(c *gin.Context) {
	userID := currentUserID(c)
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), 20)
	conversations := s.store.ConversationsFor(userID, page, limit)
	payload := dto.ConversationPage{
		Items: make([]dto.Conversation, 0, len(conversations)),
		Page:  page,
		Limit: limit,
	}
	for _, conv := range conversations {
		payload.Items = append(payload.Items, dto.FromDomainConversation(conv))
	}
	respond(c, http.StatusOK, payload)
}

func (s *Server) createConversation(c *gin.Context) {
	userID := currentUserID(c)
	var req dto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.OtherUserID) == "" {
		fail(c, http.StatusBadRequest, "other_user_id is required")
		return
	}
	if req.OtherUserID == userID {
		fail(c, http.StatusBadRequest, "cannot start chat with yourself")
		return
	}
	conv, err := s.store.GetOrCreateConversation(userID, req.OtherUserID, req.ListingID)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	respond(c, http.StatusOK, dto.FromDomainConversation(conv))
}

func (s *Server) listMessages(c *gin.Context) {
	userID := currentUserID(c)
	conversationID := c.Param("id")
	if !s.store.IsParticipant(conversationID, userID) {
		fail(c, http.StatusNotFound, "not found")
		return
	}
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), 50)
	msgs, err := s.store.MessagesPage(conversationID, page, limit)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	payload := dto.MessagePage{
		Items: make([]dto.Message, 0, len(msgs)),
		Page:  page,
		Limit: limit,
	}
	for _, msg := range msgs {
		payload.Items = append(payload.Items, dto.FromDomainMessage(msg))
	}
	respond(c, http.StatusOK, payload)
}

func (s *Server) sendMessage(c *gin.Context) {
	userID := currentUserID(c)
	conversationID := c.Param("id")
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid payload")
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" && len(req.Attachments) == 0 {
		fail(c, http.StatusBadRequest, "content is required")
		return
	}
	attachments := make([]chat.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, chat.Attachment(a))
	}
	msg, err := s.store.AppendMessage(conversationID, userID, req.Content, chat.MessageType(req.Type), attachments)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	s.hub.PushMessage(msg)
	respond(c, http.StatusCreated, dto.FromDomainMessage(msg))
}

func (s *Server) markRead(c *gin.Context) {
	userID := currentUserID(c)
	readAt, err := s.store.MarkRead(c.Param("id"), userID)
	if err != nil {
		s.respondStoreError(c, err)
		return
	}
	respond(c, http.StatusOK, dto.MarkReadResponse{ReadAt: readAt})
}

func (s *Server) unreadCount(c *gin.Context) {
	respond(c, http.StatusOK, dto.UnreadCount{Count: s.store.UnreadTotal(currentUserID(c))})
}

func (s *Server) respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		fail(c, http.StatusNotFound, "not found")
	case errors.Is(err, ErrNotParticipant):
		fail(c, http.StatusForbidden, "not a chat participant")
	default:
		s.logError("store call failed", err)
		fail(c, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, "error", err)
	}
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

func parsePositiveInt(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

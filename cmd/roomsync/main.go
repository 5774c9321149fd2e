package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"roomsync/internal/app/dto"
	appsync "roomsync/internal/app/sync"
	"roomsync/internal/domain/chat"
	"roomsync/internal/infra/config"
	"roomsync/internal/infra/obs"
	"roomsync/internal/infra/rest"
	"roomsync/internal/infra/transport"
)

// roomsync is a line-oriented demo client for the chat sync core. It signs
// in against the dev server, starts a session and exposes the session
// operations as slash commands.
func main() {
	email := flag.String("email", "anna@example.com", "account email")
	password := flag.String("password", "password", "account password")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	token, self, err := login(ctx, cfg.APIBaseURL, *email, *password)
	if err != nil {
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}
	logger.Info("signed in", "user", self.Name, "user_id", self.ID)

	api, err := rest.NewClient(rest.Config{BaseURL: cfg.APIBaseURL, Token: token, Timeout: cfg.HTTPTimeout}, logger)
	if err != nil {
		logger.Error("rest client init failed", "error", err)
		os.Exit(1)
	}
	socket := transport.NewManager(transport.Config{
		URL:          cfg.SocketURL,
		Attempts:     cfg.ConnectAttempts,
		Backoff:      cfg.ConnectBackoff,
		PingInterval: cfg.PingInterval,
		PongTimeout:  cfg.PongTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, logger)

	session := appsync.NewSession(appsync.Config{
		SelfID:         self.ID,
		Credential:     token,
		PageSize:       cfg.PageSize,
		UnreadTTL:      cfg.UnreadTTL,
		UnreadInterval: cfg.UnreadInterval,
	}, api, socket, consoleNotifier{}, logger)

	session.OnMessage(func(msg chat.Message) {
		if session.ActiveConversation() == msg.ConversationID {
			printMessage(msg, self.ID)
		}
	})
	session.SubscribeUnread(func(count int) {
		fmt.Printf("  [unread: %d]\n", count)
	})

	if err := session.Start(ctx); err != nil {
		logger.Error("session start failed", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	fmt.Println("commands: /ls /open <n> /older /read /unread /who /start <user-id> [listing-id] /quit")
	repl(ctx, session, self.ID)
}

func repl(ctx context.Context, session *appsync.Session, selfID string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			active := session.ActiveConversation()
			if active == "" {
				fmt.Println("no conversation open, use /open")
				continue
			}
			if _, err := session.Send(ctx, active, line, chat.MessageText, nil); err != nil {
				fmt.Println("send failed:", err)
			}
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit":
			return
		case "/ls":
			for i, conv := range session.Conversations() {
				other := conv.Counterpart(selfID)
				online := " "
				if session.IsOnline(other.ID) {
					online = "*"
				}
				fmt.Printf("%2d. %s%s  unread=%d  %s\n", i+1, online, other.Name, conv.UnreadCount, conv.LastMessagePreview)
			}
		case "/open":
			if len(fields) < 2 {
				fmt.Println("usage: /open <n>")
				continue
			}
			conversations := session.Conversations()
			index, err := strconv.Atoi(fields[1])
			if err != nil || index < 1 || index > len(conversations) {
				fmt.Println("no such conversation")
				continue
			}
			conv := conversations[index-1]
			msgs, err := session.OpenConversation(ctx, conv.ID)
			if err != nil {
				fmt.Println("open failed:", err)
			}
			for _, msg := range msgs {
				printMessage(msg, selfID)
			}
			if err := session.MarkRead(ctx, conv.ID); err != nil {
				fmt.Println("mark read failed:", err)
			}
		case "/older":
			active := session.ActiveConversation()
			if active == "" {
				continue
			}
			if _, err := session.LoadOlder(ctx, active); err != nil {
				fmt.Println("load failed:", err)
				continue
			}
			for _, msg := range session.Messages(active) {
				printMessage(msg, selfID)
			}
		case "/read":
			if active := session.ActiveConversation(); active != "" {
				if err := session.MarkRead(ctx, active); err != nil {
					fmt.Println("mark read failed:", err)
				}
			}
		case "/unread":
			count, err := session.UnreadCount(ctx)
			if err != nil {
				fmt.Println("unread fetch failed:", err)
				continue
			}
			fmt.Println("unread:", count)
		case "/who":
			active := session.ActiveConversation()
			if active == "" {
				continue
			}
			if conv, ok := session.Conversation(active); ok {
				other := conv.Counterpart(selfID)
				fmt.Printf("%s online=%v typing=%v\n", other.Name, session.IsOnline(other.ID), session.TypingUsers(active))
			}
		case "/start":
			if len(fields) < 2 {
				fmt.Println("usage: /start <user-id> [listing-id]")
				continue
			}
			listingID := ""
			if len(fields) > 2 {
				listingID = fields[2]
			}
			conv, err := session.StartConversation(ctx, fields[1], listingID)
			if err != nil {
				fmt.Println("start failed:", err)
				continue
			}
			fmt.Println("conversation:", conv.ID)
		default:
			fmt.Println("unknown command")
		}
	}
}

type consoleNotifier struct{}

func (consoleNotifier) Notify(senderName, content, conversationID string) {
	fmt.Printf("  [%s: %s]\n", senderName, content)
}

func printMessage(msg chat.Message, selfID string) {
	who := msg.Sender.Name
	if msg.Sender.ID == selfID {
		who = "me"
	}
	fmt.Printf("%s %s: %s\n", msg.CreatedAt.Format("15:04"), who, msg.Content)
}

func login(ctx context.Context, baseURL, email, password string) (string, dto.UserRef, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(baseURL, "/")+"/api/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", dto.UserRef{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", dto.UserRef{}, err
	}
	defer resp.Body.Close()
	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Token string      `json:"token"`
			User  dto.UserRef `json:"user"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", dto.UserRef{}, err
	}
	if !payload.Success {
		return "", dto.UserRef{}, fmt.Errorf("login rejected: %s", payload.Error)
	}
	return payload.Data.Token, payload.Data.User, nil
}

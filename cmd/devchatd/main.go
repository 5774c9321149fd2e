package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomsync/internal/infra/config"
	"roomsync/internal/infra/devserver"
	"roomsync/internal/infra/obs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		cfg.Env = "dev"
		cfg.HTTPAddr = ":8080"
		cfg.JWTSecret = "dev-only-secret"
	}
	logger := obs.NewLogger(cfg.Env)
	if err != nil {
		logger.Warn("using fallback configuration", "error", err)
	}

	store := devserver.NewStore()
	seedFixtures(store, logger)
	hub := devserver.NewHub(store, logger)
	tokens := devserver.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: devserver.NewServer(store, hub, tokens, logger).Router(cfg),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("dev chat server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("dev chat server stopped")
}

// seedFixtures creates two accounts and a thread so a freshly started server
// is immediately usable: anna@example.com / boris@example.com, password
// "password" for both.
func seedFixtures(store *devserver.Store, logger *slog.Logger) {
	tenant, err := store.AddUser("anna@example.com", "Anna", "password")
	if err != nil {
		return
	}
	landlord, err := store.AddUser("boris@example.com", "Boris", "password")
	if err != nil {
		return
	}
	if _, err := store.GetOrCreateConversation(tenant.ID, landlord.ID, "listing-loft-12"); err != nil {
		return
	}
	logger.Info("seeded fixture accounts",
		"tenant", tenant.Email, "tenant_id", tenant.ID,
		"landlord", landlord.Email, "landlord_id", landlord.ID,
	)
}

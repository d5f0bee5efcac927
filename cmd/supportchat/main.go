package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vadim/tutor-support/internal/config"
	"github.com/vadim/tutor-support/internal/controller/tui"
	"github.com/vadim/tutor-support/internal/domain/chatclient/policy"
	"github.com/vadim/tutor-support/internal/domain/chatclient/scheduler"
	"github.com/vadim/tutor-support/internal/domain/chatclient/service"
	"github.com/vadim/tutor-support/internal/domain/support/entity"
	"github.com/vadim/tutor-support/internal/httpx/middleware"
	"github.com/vadim/tutor-support/internal/httpx/upstream/supportapi"
)

func main() {
	cfg := config.MustLoad()
	cc := cfg.Client

	// The terminal belongs to the TUI, so logs go to a file
	logFile, err := os.OpenFile(cc.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}
	defer logFile.Close()

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	self, token, err := resolveIdentity(cfg)
	if err != nil {
		log.Fatal(err)
	}

	client := supportapi.New(
		supportapi.WithBaseURL(cc.BaseURL),
		supportapi.WithToken(token),
		supportapi.WithTimeout(cc.RequestTimeout),
	)

	toasts := &tui.Toasts{}
	chat := service.New(client, self, logger,
		service.WithNotifier(toasts),
	)
	poller := scheduler.New(chat, scheduler.Config{
		ConversationInterval: cc.ConversationInterval,
		MessageInterval:      cc.MessageInterval,
	}, logger)
	widget := policy.New(chat, poller, logger)
	defer widget.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := widget.Open(ctx); err != nil {
		logger.Warn("initial conversation load failed", "error", err)
	}

	program := tea.NewProgram(tui.New(ctx, widget, toasts, self.ID), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		logger.Error("tui stopped", "error", err)
		os.Exit(1)
	}
}

// resolveIdentity returns who the client acts as and the bearer token to send.
// A configured token is authoritative; without one a development token is signed for CLIENT_USER_ID.
func resolveIdentity(cfg config.Config) (service.Self, string, error) {
	cc := cfg.Client

	if cc.Token != "" {
		id, err := middleware.TokenIdentity(cc.Token)
		if err != nil {
			return service.Self{}, "", fmt.Errorf("CLIENT_TOKEN: %w", err)
		}
		if cc.UserID != "" && cc.UserID != id.UserID {
			return service.Self{}, "", fmt.Errorf("CLIENT_USER_ID %q does not match token subject %q", cc.UserID, id.UserID)
		}
		name := id.Name
		if name == "" {
			name = cc.UserName
		}
		return service.Self{ID: id.UserID, Name: name, Role: id.Role}, cc.Token, nil
	}

	role := entity.Role(cc.UserRole)
	if !role.Valid() {
		return service.Self{}, "", fmt.Errorf("invalid CLIENT_USER_ROLE %q", cc.UserRole)
	}
	if cc.UserID == "" {
		return service.Self{}, "", errors.New("CLIENT_TOKEN or CLIENT_USER_ID must be set")
	}

	// Development mode: sign a token with the backend secret
	token, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), cc.UserID, role, cc.UserName, cfg.Auth.TokenTTL)
	if err != nil {
		return service.Self{}, "", fmt.Errorf("failed to issue token: %w", err)
	}
	return service.Self{ID: cc.UserID, Name: cc.UserName, Role: role}, token, nil
}

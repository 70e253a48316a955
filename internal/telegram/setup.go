// Package telegram creates the Telegram bot client and registers handlers and
// the command menu.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/postqueue/internal/bot/handlers"
)

// NewTelegramBot creates a new Telegram bot instance using the go-telegram/bot library.
func NewTelegramBot(token string, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	b, err := bot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created successfully", "token_prefix", tokenPrefix(token))
	return b, nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "..."
	}
	return token[:8] + "..."
}

// applyMiddleware wraps a handler function with a slice of middleware.
// Middleware are applied in reverse order so the first one in the slice is the outermost.
func applyMiddleware(handler bot.HandlerFunc, mw []bot.Middleware) bot.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// RegisterHandlers registers command handlers with the Telegram bot instance,
// wrapping each one in its own middleware.
func RegisterHandlers(b *bot.Bot, logger *slog.Logger, registeredHandlers map[string]handlers.RegisteredHandler) error {
	if b == nil {
		return fmt.Errorf("bot instance cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "handler_registry")

	if len(registeredHandlers) == 0 {
		log.Warn("No handlers provided for registration.")
		return nil
	}

	for _, regHandler := range registeredHandlers {
		if regHandler.Handler == nil {
			log.Warn("Skipping registration for nil handler", "pattern", regHandler.Pattern)
			continue
		}

		finalHandler := applyMiddleware(regHandler.Handler, regHandler.Middleware)
		b.RegisterHandler(regHandler.HandlerType, regHandler.Pattern, regHandler.MatchType, finalHandler)
		log.Debug("Registered handler", "pattern", regHandler.Pattern, "match_type", regHandler.MatchType, "middleware_count", len(regHandler.Middleware))
	}

	log.Info("Registered Telegram handlers successfully", "count", len(registeredHandlers))
	return nil
}

// CommandMenu builds the sorted bot command list shown by Telegram clients.
func CommandMenu(registeredHandlers map[string]handlers.RegisteredHandler) []models.BotCommand {
	commands := make([]models.BotCommand, 0, len(registeredHandlers))
	for _, h := range registeredHandlers {
		if h.Description == "" || h.Pattern == "" {
			continue
		}
		commands = append(commands, models.BotCommand{Command: strings.TrimPrefix(h.Pattern, "/"), Description: h.Description})
	}
	sort.Slice(commands, func(i, j int) bool { return commands[i].Command < commands[j].Command })
	return commands
}

// SetCommands publishes the command menu. Failure only affects client hints.
func SetCommands(ctx context.Context, b *bot.Bot, logger *slog.Logger, registeredHandlers map[string]handlers.RegisteredHandler) error {
	commands := CommandMenu(registeredHandlers)
	if _, err := b.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: commands}); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	logger.With("component", "handler_registry").Info("Bot command menu updated", "count", len(commands))
	return nil
}

// ConflictWatcher receives polling errors from the bot client and reports the
// first 409 Conflict, which means another instance polls with the same token.
type ConflictWatcher struct {
	logger    *slog.Logger
	conflicts chan error
	once      sync.Once
}

// NewConflictWatcher creates a ConflictWatcher.
func NewConflictWatcher(logger *slog.Logger) *ConflictWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConflictWatcher{
		logger:    logger.With("component", "telegram_errors"),
		conflicts: make(chan error, 1),
	}
}

// HandleError is passed to bot.WithErrorsHandler.
func (w *ConflictWatcher) HandleError(err error) {
	if errors.Is(err, bot.ErrorConflict) {
		w.once.Do(func() {
			w.logger.Error("Telegram reported a polling conflict, another instance is running", "error", err)
			w.conflicts <- err
		})
		return
	}
	w.logger.Warn("Telegram client error", "error", err)
}

// Conflicts delivers at most one conflict error.
func (w *ConflictWatcher) Conflicts() <-chan error {
	return w.conflicts
}

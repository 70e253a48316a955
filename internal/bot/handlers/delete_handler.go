package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewDeleteHandler returns a handler for "/delete <id>".
func NewDeleteHandler(deps HandlerDeps) bot.HandlerFunc {
	return deleteHandler{deps}.Handle
}

type deleteHandler struct {
	deps HandlerDeps
}

func (h deleteHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "delete")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	id, err := parseEntryID(update.Message.Text)
	if err != nil {
		log.DebugContext(ctx, "Bad /delete argument", "error", err, "text", update.Message.Text)
		reply(ctx, b, log, chatID, "Usage: /delete <id>")
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	n, err := h.deps.Store.DeleteByID(dbCtx, id)
	if err != nil {
		log.ErrorContext(ctx, "Failed to delete entry", "error", err, "entry_id", id)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	log.InfoContext(ctx, "Deleted entry by id", "entry_id", id, "deleted", n)
	reply(ctx, b, log, chatID, fmt.Sprintf("Deleted: %d", n))
}

// NewDeleteLastHandler returns a handler for /delete_last.
func NewDeleteLastHandler(deps HandlerDeps) bot.HandlerFunc {
	return deleteLastHandler{deps}.Handle
}

type deleteLastHandler struct {
	deps HandlerDeps
}

func (h deleteLastHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "delete_last")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	dbCtx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	n, err := h.deps.Store.DeleteLast(dbCtx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to delete newest entry", "error", err)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	log.InfoContext(ctx, "Deleted newest entry", "deleted", n)
	reply(ctx, b, log, chatID, fmt.Sprintf("Deleted: %d", n))
}

// NewClearHandler returns a handler for /clear.
func NewClearHandler(deps HandlerDeps) bot.HandlerFunc {
	return clearHandler{deps}.Handle
}

type clearHandler struct {
	deps HandlerDeps
}

func (h clearHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "clear")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	dbCtx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	n, err := h.deps.Store.Clear(dbCtx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to clear queue", "error", err)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	log.InfoContext(ctx, "Queue cleared", "deleted", n)
	reply(ctx, b, log, chatID, fmt.Sprintf("Deleted: %d", n))
}

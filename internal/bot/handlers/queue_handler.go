package handlers

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const dbOperationTimeout = 10 * time.Second

// NewQueueHandler returns a handler for the /queue command.
func NewQueueHandler(deps HandlerDeps) bot.HandlerFunc {
	return queueHandler{deps}.Handle
}

type queueHandler struct {
	deps HandlerDeps
}

func (h queueHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "queue")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	dbCtx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	entries, err := h.deps.Store.PeekAll(dbCtx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list queue", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}
	if len(entries) == 0 {
		reply(ctx, b, log, chatID, h.deps.Config.Messages.QueueEmpty)
		return
	}

	log.InfoContext(ctx, "Listing queue", "chat_id", chatID, "entries", len(entries))
	reply(ctx, b, log, chatID, formatQueue(entries))
}

// NewStatsHandler returns a handler for the /stats command.
func NewStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return statsHandler{deps}.Handle
}

type statsHandler struct {
	deps HandlerDeps
}

func (h statsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "stats")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	dbCtx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	stats, err := h.deps.Store.Stats(dbCtx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to read queue stats", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	now := time.Now()
	var next time.Time
	if h.deps.Schedule != nil {
		next = h.deps.Schedule.Next(now)
	}
	reply(ctx, b, log, chatID, formatStats(stats, next, now))
}

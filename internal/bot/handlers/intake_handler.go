package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/postqueue/internal/album"
	"github.com/edgard/postqueue/internal/database"
)

// NewIntakeHandler returns the default handler: every admin direct message that
// is not a known command becomes a queue entry.
func NewIntakeHandler(deps HandlerDeps) bot.HandlerFunc {
	return intakeHandler{deps}.Handle
}

type intakeHandler struct {
	deps HandlerDeps
}

func (h intakeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.Chat.Type != models.ChatTypePrivate {
		return
	}

	if text := h.process(ctx, msg); text != "" {
		reply(ctx, b, h.deps.Logger.With("handler", "intake"), msg.Chat.ID, text)
	}
}

// process queues msg and returns the reply for the admin. Album parts get no
// reply here; the album is acknowledged once it is flushed.
func (h intakeHandler) process(ctx context.Context, msg *models.Message) string {
	log := h.deps.Logger.With("handler", "intake", "chat_id", msg.Chat.ID, "message_id", msg.ID)

	if strings.HasPrefix(msg.Text, "/") {
		log.DebugContext(ctx, "Unknown command", "text", msg.Text)
		return h.deps.Config.Messages.Help
	}

	items, err := MediaFromMessage(msg)
	if errors.Is(err, ErrUnsupportedContent) {
		log.InfoContext(ctx, "Ignoring unsupported message content")
		return h.deps.Config.Messages.Unsupported
	}

	if msg.MediaGroupID != "" {
		if !h.deps.Albums.Add(album.Message{
			GroupID:   msg.MediaGroupID,
			ChatID:    msg.Chat.ID,
			MessageID: msg.ID,
			Caption:   msg.Caption,
			Items:     items,
		}) {
			return h.deps.Config.Messages.GeneralError
		}
		return ""
	}

	raw := msg.Caption
	if len(items) == 0 {
		raw = msg.Text
	}
	text := h.deps.Normalizer.Normalize(raw)
	if len(items) == 0 && text == "" {
		return h.deps.Config.Messages.Unsupported
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbOperationTimeout)
	defer cancel()

	id, err := h.deps.Store.Enqueue(dbCtx, items, text, &database.Source{ChatID: msg.Chat.ID, MessageID: msg.ID})
	if err != nil {
		log.ErrorContext(ctx, "Failed to enqueue message", "error", err)
		return h.deps.Config.Messages.GeneralError
	}

	log.InfoContext(ctx, "Message queued", "entry_id", id, "items", len(items))
	return fmt.Sprintf("✅ Queued #%d", id)
}

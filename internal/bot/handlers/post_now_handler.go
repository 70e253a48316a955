package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/postqueue/internal/publisher"
)

const publishTimeout = 2 * time.Minute

// NewPostNowHandler returns a handler for /post_now.
func NewPostNowHandler(deps HandlerDeps) bot.HandlerFunc {
	return postNowHandler{deps}.Handle
}

type postNowHandler struct {
	deps HandlerDeps
}

func (h postNowHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "post_now")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	log.InfoContext(ctx, "Admin requested immediate publish", "chat_id", chatID)
	outcome, err := h.deps.Publisher.PublishNext(pubCtx)
	reply(ctx, b, log, chatID, publishReport(outcome, err, h.deps.Config.Messages.QueueEmpty))
}

// publishReport turns a publish result into the admin reply.
func publishReport(outcome publisher.Outcome, err error, emptyText string) string {
	var (
		sendErr   *publisher.SendError
		markerErr *publisher.MarkerError
	)
	switch {
	case errors.As(err, &sendErr):
		return fmt.Sprintf("❌ Failed to publish #%d, the entry was dropped: %v", sendErr.EntryID, sendErr.Err)
	case errors.As(err, &markerErr):
		return fmt.Sprintf("⚠️ Published #%d but could not record message %d: %v", outcome.EntryID, markerErr.MessageID, markerErr.Err)
	case err != nil:
		return fmt.Sprintf("❌ Publish failed: %v", err)
	case outcome.Status == publisher.StatusEmpty:
		return emptyText
	default:
		return fmt.Sprintf("✅ Published #%d", outcome.EntryID)
	}
}

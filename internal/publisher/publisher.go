// Package publisher sends queued entries to the channel, replacing the
// previously published bot message.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/postqueue/internal/database"
)

// Sender is the subset of the Telegram Bot API used for publishing.
// *bot.Bot satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *tgbot.SendPhotoParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *tgbot.SendVideoParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *tgbot.SendDocumentParams) (*models.Message, error)
	SendMediaGroup(ctx context.Context, params *tgbot.SendMediaGroupParams) ([]*models.Message, error)
	DeleteMessage(ctx context.Context, params *tgbot.DeleteMessageParams) (bool, error)
}

// Store is the queue state used by the publisher.
type Store interface {
	DequeueOldest(ctx context.Context) (*database.QueueEntry, error)
	GetLastPublishedMessageID(ctx context.Context) (int, bool, error)
	SetLastPublishedMessageID(ctx context.Context, messageID int) error
}

// Status is the result of a publish attempt.
type Status int

const (
	// StatusEmpty means there was nothing to publish.
	StatusEmpty Status = iota
	// StatusPublished means the entry reached the channel.
	StatusPublished
	// StatusFailed means the send failed; the entry is not re-queued.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusPublished:
		return "published"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome describes a publish attempt.
type Outcome struct {
	Status    Status
	EntryID   int64
	MessageID int
	// DeletedPrevious is the message id removed before sending, if any.
	DeletedPrevious int
	// DeleteErr is set when removing the previous message failed. It never fails the publish.
	DeleteErr error
}

// SendError means the channel post could not be sent.
type SendError struct {
	EntryID int64
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send entry %d: %v", e.EntryID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// MarkerError means the post was sent but its message id could not be stored.
type MarkerError struct {
	MessageID int
	Err       error
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("post %d sent but last published marker not updated: %v", e.MessageID, e.Err)
}

func (e *MarkerError) Unwrap() error { return e.Err }

// Publisher posts entries to one channel. Publishes are serialized so the
// delete-previous step always sees the marker of the preceding publish.
type Publisher struct {
	sender    Sender
	store     Store
	channelID int64
	logger    *slog.Logger

	mu sync.Mutex
}

// New creates a Publisher for channelID.
func New(sender Sender, store Store, channelID int64, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Publisher{
		sender:    sender,
		store:     store,
		channelID: channelID,
		logger:    logger.With("component", "publisher", "channel_id", channelID),
	}
}

// PublishNext dequeues the oldest entry and publishes it. The entry is removed
// before sending; a failed send drops it.
func (p *Publisher) PublishNext(ctx context.Context) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, err := p.store.DequeueOldest(ctx)
	if err != nil {
		return Outcome{Status: StatusFailed}, fmt.Errorf("failed to dequeue next entry: %w", err)
	}
	if entry == nil {
		p.logger.InfoContext(ctx, "Queue is empty, nothing to publish")
		return Outcome{Status: StatusEmpty}, nil
	}

	outcome, err := p.publish(ctx, entry)
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		p.logger.ErrorContext(ctx, "Entry dropped after failed send",
			"entry_id", entry.ID, "items", len(entry.Items), "caption_len", len(entry.Caption), "error", err)
	}
	return outcome, err
}

func (p *Publisher) publish(ctx context.Context, entry *database.QueueEntry) (Outcome, error) {
	log := p.logger.With("entry_id", entry.ID)
	outcome := Outcome{Status: StatusFailed, EntryID: entry.ID}

	prevID, hasPrev, err := p.store.GetLastPublishedMessageID(ctx)
	if err != nil {
		// The marker is unreadable; posting anyway keeps the schedule going.
		log.WarnContext(ctx, "Failed to read last published message id", "error", err)
		outcome.DeleteErr = err
	} else if hasPrev {
		if _, err := p.sender.DeleteMessage(ctx, &tgbot.DeleteMessageParams{ChatID: p.channelID, MessageID: prevID}); err != nil {
			log.WarnContext(ctx, "Failed to delete previous channel message, posting anyway",
				"previous_message_id", prevID, "error", err)
			outcome.DeleteErr = err
		} else {
			outcome.DeletedPrevious = prevID
			log.DebugContext(ctx, "Deleted previous channel message", "previous_message_id", prevID)
		}
	}

	messageID, err := p.send(ctx, entry)
	if err != nil {
		return outcome, &SendError{EntryID: entry.ID, Err: err}
	}
	outcome.Status = StatusPublished
	outcome.MessageID = messageID

	if err := p.store.SetLastPublishedMessageID(ctx, messageID); err != nil {
		log.ErrorContext(ctx, "Post sent but marker update failed", "message_id", messageID, "error", err)
		return outcome, &MarkerError{MessageID: messageID, Err: err}
	}

	log.InfoContext(ctx, "Entry published", "message_id", messageID, "items", len(entry.Items))
	return outcome, nil
}

// send posts the entry in the shape its content requires and returns the id
// of the (first) channel message.
func (p *Publisher) send(ctx context.Context, entry *database.QueueEntry) (int, error) {
	switch len(entry.Items) {
	case 0:
		msg, err := p.sender.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: p.channelID, Text: entry.Caption})
		if err != nil {
			return 0, err
		}
		return msg.ID, nil

	case 1:
		return p.sendSingle(ctx, entry.Items[0], entry.Caption)

	default:
		media := make([]models.InputMedia, 0, len(entry.Items))
		for i, item := range entry.Items {
			text := ""
			if i == 0 {
				text = entry.Caption
			}
			m, err := inputMedia(item, text)
			if err != nil {
				return 0, err
			}
			media = append(media, m)
		}

		msgs, err := p.sender.SendMediaGroup(ctx, &tgbot.SendMediaGroupParams{ChatID: p.channelID, Media: media})
		if err != nil {
			return 0, err
		}
		if len(msgs) == 0 || msgs[0] == nil {
			return 0, fmt.Errorf("media group sent but no messages returned")
		}
		return msgs[0].ID, nil
	}
}

func (p *Publisher) sendSingle(ctx context.Context, item database.MediaRef, text string) (int, error) {
	file := &models.InputFileString{Data: item.FileID}

	var (
		msg *models.Message
		err error
	)
	switch item.Kind {
	case database.MediaPhoto:
		msg, err = p.sender.SendPhoto(ctx, &tgbot.SendPhotoParams{ChatID: p.channelID, Photo: file, Caption: text})
	case database.MediaVideo:
		msg, err = p.sender.SendVideo(ctx, &tgbot.SendVideoParams{ChatID: p.channelID, Video: file, Caption: text})
	case database.MediaDocument:
		msg, err = p.sender.SendDocument(ctx, &tgbot.SendDocumentParams{ChatID: p.channelID, Document: file, Caption: text})
	default:
		return 0, fmt.Errorf("unsupported media kind %q", item.Kind)
	}
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func inputMedia(item database.MediaRef, text string) (models.InputMedia, error) {
	switch item.Kind {
	case database.MediaPhoto:
		return &models.InputMediaPhoto{Media: item.FileID, Caption: text}, nil
	case database.MediaVideo:
		return &models.InputMediaVideo{Media: item.FileID, Caption: text}, nil
	case database.MediaDocument:
		return &models.InputMediaDocument{Media: item.FileID, Caption: text}, nil
	default:
		return nil, fmt.Errorf("unsupported media kind %q", item.Kind)
	}
}

// Package bot orchestrates the Telegram listener, the post scheduler and the
// album aggregator for the lifetime of the process.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/postqueue/internal/config"
)

// ErrConflict means another process is polling updates with the same token.
var ErrConflict = errors.New("another bot instance is running")

const notifyTimeout = 10 * time.Second

// Client is the part of the Telegram client the orchestrator drives.
type Client interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

// QueueCounter reports the queue depth for the startup notice.
type QueueCounter interface {
	Count(ctx context.Context) (int, error)
}

// AlbumBuffer is shut down when the bot stops.
type AlbumBuffer interface {
	Shutdown()
}

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger    *slog.Logger
	cfg       *config.Config
	queue     QueueCounter
	client    Client
	scheduler *Scheduler
	albums    AlbumBuffer
	conflicts <-chan error
}

// NewBot creates the orchestrator. conflicts delivers polling conflicts
// reported by the Telegram client; it may be nil.
func NewBot(
	logger *slog.Logger,
	cfg *config.Config,
	queue QueueCounter,
	client Client,
	scheduler *Scheduler,
	albums AlbumBuffer,
	conflicts <-chan error,
) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		cfg:       cfg,
		queue:     queue,
		client:    client,
		scheduler: scheduler,
		albums:    albums,
		conflicts: conflicts,
	}
}

// Run starts the bot and all its components, handling graceful shutdown on context cancellation.
// It returns an error if any component fails or another instance takes over polling.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")
	defer b.albums.Shutdown()

	b.notifyAdmins(ctx, b.startupNotice(ctx))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")

		b.client.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(gCtx); err != nil {
			b.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	if b.conflicts != nil {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return nil
			case err := <-b.conflicts:
				b.notifyAdmins(context.WithoutCancel(gCtx), b.cfg.Messages.Conflict)
				return fmt.Errorf("%w: %v", ErrConflict, err)
			}
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

func (b *Bot) startupNotice(ctx context.Context) string {
	var sb strings.Builder
	sb.WriteString(b.cfg.Messages.StartupNotice)

	if n, err := b.queue.Count(ctx); err != nil {
		b.logger.Warn("Failed to count queue for startup notice", "error", err)
	} else {
		fmt.Fprintf(&sb, "\nIn queue: %d", n)
	}

	times := make([]string, 0, len(b.cfg.Schedule.Times))
	for _, t := range b.cfg.Schedule.Times {
		times = append(times, t.String())
	}
	fmt.Fprintf(&sb, "\nPost times: %s (%s)", strings.Join(times, ", "), b.cfg.Schedule.Timezone)
	if lead := b.cfg.Schedule.PreviewLeadMinutes; lead > 0 {
		fmt.Fprintf(&sb, "\nPreview: %d min before", lead)
	}
	return sb.String()
}

// notifyAdmins sends text to every admin; failures are logged.
func (b *Bot) notifyAdmins(ctx context.Context, text string) {
	for _, adminID := range b.cfg.Telegram.AdminIDs {
		sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
		_, err := b.client.SendMessage(sendCtx, &tgbot.SendMessageParams{ChatID: adminID, Text: text})
		cancel()
		if err != nil {
			b.logger.Warn("Failed to notify admin", "admin_id", adminID, "error", err)
		}
	}
}

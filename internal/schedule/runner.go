package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/postqueue/internal/caption"
	"github.com/edgard/postqueue/internal/database"
	"github.com/edgard/postqueue/internal/publisher"
)

// DefaultErrorBackoff is the pause after a failed tick before polling resumes.
const DefaultErrorBackoff = 5 * time.Second

// Queue is the read side of the queue used for previews.
type Queue interface {
	Count(ctx context.Context) (int, error)
	PeekOldest(ctx context.Context) (*database.QueueEntry, error)
}

// Publisher publishes the oldest queued entry.
type Publisher interface {
	PublishNext(ctx context.Context) (publisher.Outcome, error)
}

// Notifier sends the admin preview.
type Notifier interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

// TriggerError is a failure of one due trigger.
type TriggerError struct {
	Trigger Trigger
	Err     error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Trigger.Action, e.Trigger.Key, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

// Runner executes due triggers: previews go to the first admin, posts go to the publisher.
type Runner struct {
	planner     *Planner
	queue       Queue
	publisher   Publisher
	notifier    Notifier
	adminChatID int64
	backoff     time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// RunnerConfig holds Runner settings.
type RunnerConfig struct {
	// AdminChatID receives previews. Zero disables previews.
	AdminChatID  int64
	ErrorBackoff time.Duration
}

// NewRunner creates a Runner.
func NewRunner(planner *Planner, queue Queue, pub Publisher, notifier Notifier, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	return &Runner{
		planner:     planner,
		queue:       queue,
		publisher:   pub,
		notifier:    notifier,
		adminChatID: cfg.AdminChatID,
		backoff:     cfg.ErrorBackoff,
		logger:      logger.With("component", "post_scheduler"),
		now:         time.Now,
	}
}

// Tick runs every trigger due at now. Each trigger is attempted once; failures
// are returned joined as *TriggerError values.
func (r *Runner) Tick(ctx context.Context, now time.Time) error {
	var errs []error
	for _, trig := range r.planner.Due(now) {
		var err error
		switch trig.Action {
		case ActionPreview:
			err = r.sendPreview(ctx, trig)
		case ActionPost:
			err = r.post(ctx, trig)
		default:
			err = fmt.Errorf("unknown trigger action %d", trig.Action)
		}
		if err != nil {
			errs = append(errs, &TriggerError{Trigger: trig, Err: err})
		}
	}
	return errors.Join(errs...)
}

// RunOnce performs one supervised tick: panics and errors are logged and
// reported, and a failed tick is followed by the error backoff. It never fails.
func (r *Runner) RunOnce(ctx context.Context) {
	failed := false
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				failed = true
				r.logger.ErrorContext(ctx, "Scheduler tick panicked", "panic", rec)
				sentry.CurrentHub().Recover(rec)
			}
		}()

		if err := r.Tick(ctx, r.now()); err != nil {
			failed = true
			r.logger.ErrorContext(ctx, "Scheduler tick failed", "error", err)
			sentry.CaptureException(err)
		}
	}()

	if !failed {
		return
	}

	r.logger.InfoContext(ctx, "Backing off after scheduler error", "backoff", r.backoff)
	timer := time.NewTimer(r.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (r *Runner) sendPreview(ctx context.Context, trig Trigger) error {
	if r.adminChatID == 0 {
		r.logger.WarnContext(ctx, "No admin configured, skipping preview", "target", trig.Key)
		return nil
	}

	count, err := r.queue.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count queue: %w", err)
	}
	next, err := r.queue.PeekOldest(ctx)
	if err != nil {
		return fmt.Errorf("failed to peek next entry: %w", err)
	}

	text := FormatPreview(trig.Target, count, next)
	if _, err := r.notifier.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: r.adminChatID, Text: text}); err != nil {
		return fmt.Errorf("failed to send preview: %w", err)
	}

	r.logger.InfoContext(ctx, "Preview sent", "target", trig.Key, "queued", count, "admin_id", r.adminChatID)
	return nil
}

func (r *Runner) post(ctx context.Context, trig Trigger) error {
	outcome, err := r.publisher.PublishNext(ctx)
	if err != nil {
		return err
	}

	switch outcome.Status {
	case publisher.StatusEmpty:
		r.logger.InfoContext(ctx, "Post time reached but queue is empty", "target", trig.Key)
	case publisher.StatusPublished:
		r.logger.InfoContext(ctx, "Scheduled post published",
			"target", trig.Key, "entry_id", outcome.EntryID, "message_id", outcome.MessageID)
	}
	return nil
}

// FormatPreview builds the admin preview text.
func FormatPreview(target time.Time, queued int, next *database.QueueEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ Next post at %s (%s)\n", target.Format("15:04"), target.Format("02.01 MST"))
	fmt.Fprintf(&b, "In queue: %d\n", queued)

	if next == nil {
		b.WriteString("Queue is empty, nothing will be posted.")
		return b.String()
	}

	fmt.Fprintf(&b, "Up next: #%d, %s", next.ID, describeEntry(next))
	if c := caption.Excerpt(next.Caption, 80); c != "" {
		fmt.Fprintf(&b, "\n%s", c)
	}
	return b.String()
}

func describeEntry(e *database.QueueEntry) string {
	switch len(e.Items) {
	case 0:
		return "text"
	case 1:
		return string(e.Items[0].Kind)
	default:
		return fmt.Sprintf("album of %d", len(e.Items))
	}
}

// Package album coalesces the separate Telegram messages of one media group
// into a single queue entry.
package album

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/edgard/postqueue/internal/database"
)

const (
	// DefaultDebounce is how long a group collects messages after its first one arrives.
	DefaultDebounce = 900 * time.Millisecond

	flushTimeout = 30 * time.Second
)

// Enqueuer stores a finished entry.
type Enqueuer interface {
	Enqueue(ctx context.Context, items database.MediaItems, caption string, source *database.Source) (int64, error)
}

// Normalizer produces the canonical caption.
type Normalizer interface {
	Normalize(raw string) string
}

// Message is one incoming message of a media group.
type Message struct {
	GroupID   string
	ChatID    int64
	MessageID int
	Caption   string
	Items     database.MediaItems
}

// FlushResult describes a group flushed by its debounce timer.
type FlushResult struct {
	GroupID string
	ChatID  int64
	EntryID int64
	Items   int
	Err     error
}

type buffer struct {
	messages []Message
	timer    *time.Timer
}

// Aggregator buffers media-group messages and flushes each group once, after
// the debounce window started by its first message.
type Aggregator struct {
	store      Enqueuer
	normalizer Normalizer
	logger     *slog.Logger
	debounce   time.Duration

	mu      sync.Mutex
	groups  map[string]*buffer
	stopped bool
	onFlush func(ctx context.Context, res FlushResult)
}

// NewAggregator creates an Aggregator. A non-positive debounce uses DefaultDebounce.
func NewAggregator(store Enqueuer, normalizer Normalizer, logger *slog.Logger, debounce time.Duration) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Aggregator{
		store:      store,
		normalizer: normalizer,
		logger:     logger.With("component", "album_aggregator"),
		debounce:   debounce,
		groups:     make(map[string]*buffer),
	}
}

// Add appends msg to its group, starting the flush timer if the group is new.
// It reports false if the aggregator has been shut down.
func (a *Aggregator) Add(msg Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		a.logger.Warn("Album message received after shutdown, dropping",
			"media_group_id", msg.GroupID, "message_id", msg.MessageID)
		return false
	}

	buf, ok := a.groups[msg.GroupID]
	if ok {
		for _, m := range buf.messages {
			if m.MessageID == msg.MessageID {
				a.logger.Debug("Duplicate album message, skipping",
					"media_group_id", msg.GroupID, "message_id", msg.MessageID)
				return true
			}
		}
		buf.messages = append(buf.messages, msg)
		a.logger.Debug("Appended message to album",
			"media_group_id", msg.GroupID, "message_id", msg.MessageID, "buffered", len(buf.messages))
		return true
	}

	groupID := msg.GroupID
	buf = &buffer{messages: []Message{msg}}
	buf.timer = time.AfterFunc(a.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		res, ok := a.flush(ctx, groupID)
		if !ok {
			return
		}
		if res.Err != nil {
			a.logger.Error("Failed to flush album", "media_group_id", groupID, "error", res.Err)
		}

		a.mu.Lock()
		hook := a.onFlush
		a.mu.Unlock()
		if hook != nil {
			hook(ctx, res)
		}
	})
	a.groups[groupID] = buf

	a.logger.Debug("Started album buffer",
		"media_group_id", groupID, "message_id", msg.MessageID, "debounce", a.debounce)
	return true
}

// OnFlush sets a callback run after each timer-driven flush, e.g. to
// acknowledge the album to its sender.
func (a *Aggregator) OnFlush(fn func(ctx context.Context, res FlushResult)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onFlush = fn
}

// Flush removes the group's buffer and enqueues it as one entry. Flushing a
// group that is not buffered is a no-op and returns ok == false.
func (a *Aggregator) Flush(ctx context.Context, groupID string) (id int64, ok bool, err error) {
	res, ok := a.flush(ctx, groupID)
	return res.EntryID, ok, res.Err
}

func (a *Aggregator) flush(ctx context.Context, groupID string) (FlushResult, bool) {
	a.mu.Lock()
	buf, exists := a.groups[groupID]
	if exists {
		delete(a.groups, groupID)
		buf.timer.Stop()
	}
	a.mu.Unlock()

	if !exists {
		a.logger.Debug("Flush for unknown or already flushed album", "media_group_id", groupID)
		return FlushResult{GroupID: groupID}, false
	}

	items, rawCaption := merge(buf.messages)
	first := buf.messages[0] // lowest message id after merge
	res := FlushResult{GroupID: groupID, ChatID: first.ChatID, Items: len(items)}
	source := &database.Source{ChatID: first.ChatID, MessageID: first.MessageID}

	id, err := a.store.Enqueue(ctx, items, a.normalizer.Normalize(rawCaption), source)
	if err != nil {
		res.Err = err
		return res, true
	}
	res.EntryID = id

	a.logger.Info("Album enqueued",
		"media_group_id", groupID, "entry_id", id, "messages", len(buf.messages), "items", len(items))
	return res, true
}

// merge concatenates media in arrival order and picks the first non-empty
// caption. Handlers run concurrently, so arrival order is message id order,
// not the order of Add calls.
func merge(messages []Message) (database.MediaItems, string) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].MessageID < messages[j].MessageID
	})

	var (
		items   database.MediaItems
		caption string
	)
	for _, m := range messages {
		items = append(items, m.Items...)
		if caption == "" && m.Caption != "" {
			caption = m.Caption
		}
	}
	return items, caption
}

// Pending returns the number of groups still buffering.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}

// Shutdown stops all pending timers. Buffered groups are discarded.
func (a *Aggregator) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	for groupID, buf := range a.groups {
		buf.timer.Stop()
		a.logger.Warn("Discarding unflushed album on shutdown",
			"media_group_id", groupID, "buffered", len(buf.messages))
	}
	a.groups = make(map[string]*buffer)
}

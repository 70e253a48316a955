package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
)

// metaKeyLastPublished holds the id of the most recent bot-authored channel message.
const metaKeyLastPublished = "last_channel_message_id"

const entryColumns = `id, items, caption, source_chat_id, source_message_id, created_at`

// Store defines the queue operations. Every mutating method runs as a single
// transaction that is committed before the method returns.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// Enqueue appends a new entry and returns its id.
	Enqueue(ctx context.Context, items MediaItems, caption string, source *Source) (int64, error)

	// PeekAll returns every queued entry in ascending id order.
	PeekAll(ctx context.Context) ([]QueueEntry, error)

	// PeekOldest returns the minimum-id entry without removing it. Returns nil, nil if the queue is empty.
	PeekOldest(ctx context.Context) (*QueueEntry, error)

	// DequeueOldest atomically removes and returns the minimum-id entry. Returns nil, nil if the queue is empty.
	DequeueOldest(ctx context.Context) (*QueueEntry, error)

	// DeleteByID removes one entry and returns the number of removed rows (0 or 1).
	DeleteByID(ctx context.Context, id int64) (int64, error)

	// DeleteLast removes the most recently enqueued entry (maximum id).
	DeleteLast(ctx context.Context) (int64, error)

	// Clear removes every entry and returns how many were removed.
	Clear(ctx context.Context) (int64, error)

	// Count returns the number of queued entries.
	Count(ctx context.Context) (int, error)

	// Stats returns a queue summary.
	Stats(ctx context.Context) (QueueStats, error)

	// GetLastPublishedMessageID returns the stored channel message id, if any.
	GetLastPublishedMessageID(ctx context.Context) (int, bool, error)

	// SetLastPublishedMessageID creates or overwrites the stored channel message id.
	SetLastPublishedMessageID(ctx context.Context, messageID int) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
		now:    time.Now,
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing on success and rolling back otherwise.
func (s *sqlxStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "op", op, "error", err)
		return fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "op", op, "error", rollbackErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "op", op, "error", err)
		return fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}
	tx = nil
	return nil
}

func (s *sqlxStore) Enqueue(ctx context.Context, items MediaItems, caption string, source *Source) (int64, error) {
	for _, item := range items {
		if !item.Kind.Valid() {
			return 0, fmt.Errorf("cannot enqueue media of unknown kind %q", item.Kind)
		}
		if item.FileID == "" {
			return 0, fmt.Errorf("cannot enqueue %s without file id", item.Kind)
		}
	}
	if items == nil {
		items = MediaItems{}
	}

	var srcChat, srcMsg sql.NullInt64
	if source != nil {
		srcChat = sql.NullInt64{Int64: source.ChatID, Valid: true}
		srcMsg = sql.NullInt64{Int64: int64(source.MessageID), Valid: true}
	}

	var id int64
	err := s.withTx(ctx, "enqueue", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO queue_entries (items, caption, source_chat_id, source_message_id, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			items, caption, srcChat, srcMsg, s.now().Unix())
		if err != nil {
			return fmt.Errorf("failed to insert queue entry: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted entry id: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error enqueuing entry", "items", len(items), "error", err)
		return 0, err
	}

	s.logger.DebugContext(ctx, "Entry enqueued", "entry_id", id, "items", len(items))
	return id, nil
}

func (s *sqlxStore) PeekAll(ctx context.Context) ([]QueueEntry, error) {
	var entries []QueueEntry
	query := `SELECT ` + entryColumns + ` FROM queue_entries ORDER BY id ASC`
	if err := s.db.SelectContext(ctx, &entries, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing queue", "error", err)
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	return entries, nil
}

func (s *sqlxStore) PeekOldest(ctx context.Context) (*QueueEntry, error) {
	var entry QueueEntry
	query := `SELECT ` + entryColumns + ` FROM queue_entries ORDER BY id ASC LIMIT 1`
	err := s.db.GetContext(ctx, &entry, query)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error peeking oldest entry", "error", err)
		return nil, fmt.Errorf("failed to peek oldest entry: %w", err)
	}
	return &entry, nil
}

// DequeueOldest deletes the minimum-id row with a single DELETE ... RETURNING
// statement, so two callers can never receive the same entry.
func (s *sqlxStore) DequeueOldest(ctx context.Context) (*QueueEntry, error) {
	var entry *QueueEntry
	err := s.withTx(ctx, "dequeue_oldest", func(tx *sqlx.Tx) error {
		var row QueueEntry
		err := tx.GetContext(ctx, &row,
			`DELETE FROM queue_entries
			 WHERE id = (SELECT MIN(id) FROM queue_entries)
			 RETURNING `+entryColumns)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil
		case err != nil:
			return fmt.Errorf("failed to dequeue oldest entry: %w", err)
		}
		entry = &row
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error dequeuing oldest entry", "error", err)
		return nil, err
	}

	if entry != nil {
		s.logger.DebugContext(ctx, "Entry dequeued", "entry_id", entry.ID)
	}
	return entry, nil
}

func (s *sqlxStore) execCount(ctx context.Context, op, query string, args ...any) (int64, error) {
	var affected int64
	err := s.withTx(ctx, op, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%s: failed to read affected rows: %w", op, err)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Queue mutation failed", "op", op, "error", err)
		return 0, err
	}
	return affected, nil
}

func (s *sqlxStore) DeleteByID(ctx context.Context, id int64) (int64, error) {
	n, err := s.execCount(ctx, "delete_by_id", `DELETE FROM queue_entries WHERE id = ?`, id)
	if err == nil {
		s.logger.DebugContext(ctx, "Delete by id", "entry_id", id, "deleted", n)
	}
	return n, err
}

func (s *sqlxStore) DeleteLast(ctx context.Context) (int64, error) {
	return s.execCount(ctx, "delete_last",
		`DELETE FROM queue_entries WHERE id = (SELECT MAX(id) FROM queue_entries)`)
}

func (s *sqlxStore) Clear(ctx context.Context) (int64, error) {
	n, err := s.execCount(ctx, "clear", `DELETE FROM queue_entries`)
	if err == nil {
		s.logger.InfoContext(ctx, "Queue cleared", "deleted", n)
	}
	return n, err
}

func (s *sqlxStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM queue_entries`); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return n, nil
}

func (s *sqlxStore) Stats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT COUNT(*) AS queued,
		       MIN(id) AS oldest_id,
		       MAX(id) AS newest_id,
		       (SELECT created_at FROM queue_entries ORDER BY id ASC LIMIT 1) AS oldest_created_at
		FROM queue_entries`)
	if err != nil {
		return QueueStats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return stats, nil
}

func (s *sqlxStore) GetLastPublishedMessageID(ctx context.Context) (int, bool, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM meta WHERE key = ?`, metaKeyLastPublished)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("failed to read last published message id: %w", err)
	}

	id, err := strconv.Atoi(value)
	if err != nil {
		s.logger.WarnContext(ctx, "Stored last published message id is not a number", "value", value)
		return 0, false, fmt.Errorf("invalid stored message id %q: %w", value, err)
	}
	return id, true, nil
}

func (s *sqlxStore) SetLastPublishedMessageID(ctx context.Context, messageID int) error {
	return s.withTx(ctx, "set_last_published", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			metaKeyLastPublished, strconv.Itoa(messageID), s.now().Unix())
		if err != nil {
			return fmt.Errorf("failed to store last published message id: %w", err)
		}
		return nil
	})
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM cannot run inside a transaction.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}

package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MediaKind identifies the type of a queued media item.
type MediaKind string

// Media kinds accepted by the queue. The set is closed: every switch over
// MediaKind must handle all of them.
const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Valid reports whether k is one of the known media kinds.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaPhoto, MediaVideo, MediaDocument:
		return true
	default:
		return false
	}
}

// MediaRef points to a file already uploaded to Telegram. FileID can be
// re-sent without uploading the content again.
type MediaRef struct {
	Kind   MediaKind `json:"kind"`
	FileID string    `json:"file_id"`
}

// MediaItems is the ordered media list of an entry, stored as a JSON column.
// The order is the send order of a media group.
type MediaItems []MediaRef

// Value implements driver.Valuer.
func (m MediaItems) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]MediaRef(m))
	if err != nil {
		return nil, fmt.Errorf("failed to encode media items: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *MediaItems) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = MediaItems{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported media items column type %T", src)
	}

	var items []MediaRef
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("failed to decode media items: %w", err)
	}
	for _, item := range items {
		if !item.Kind.Valid() {
			return fmt.Errorf("unknown media kind %q in stored entry", item.Kind)
		}
	}
	*m = items
	return nil
}

// Source identifies the admin message an entry was created from.
type Source struct {
	ChatID    int64
	MessageID int
}

// QueueEntry is a post waiting in the queue. Entries are ordered by ID and
// consumed oldest first.
type QueueEntry struct {
	ID              int64         `db:"id"`
	Items           MediaItems    `db:"items"`
	Caption         string        `db:"caption"`
	SourceChatID    sql.NullInt64 `db:"source_chat_id"`
	SourceMessageID sql.NullInt64 `db:"source_message_id"`
	CreatedAt       int64         `db:"created_at"` // Unix seconds
}

// Source returns the origin of the entry, if one was recorded.
func (e *QueueEntry) Source() (Source, bool) {
	if !e.SourceChatID.Valid || !e.SourceMessageID.Valid {
		return Source{}, false
	}
	return Source{ChatID: e.SourceChatID.Int64, MessageID: int(e.SourceMessageID.Int64)}, true
}

// Created returns the insertion time of the entry.
func (e *QueueEntry) Created() time.Time {
	return time.Unix(e.CreatedAt, 0)
}

// QueueStats summarizes the queue contents.
type QueueStats struct {
	Queued          int           `db:"queued"`
	OldestID        sql.NullInt64 `db:"oldest_id"`
	NewestID        sql.NullInt64 `db:"newest_id"`
	OldestCreatedAt sql.NullInt64 `db:"oldest_created_at"`
}

package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/postqueue/internal/album"
	"github.com/edgard/postqueue/internal/caption"
	"github.com/edgard/postqueue/internal/database"
)

const (
	// maxReplyLength is Telegram's message length limit.
	maxReplyLength = 4096
	excerptRunes   = 60
)

// ErrUnsupportedContent means a message carries nothing that can be queued.
var ErrUnsupportedContent = errors.New("unsupported message content")

// MediaFromMessage extracts the queueable media of one message. A plain text
// message yields no items and no error.
func MediaFromMessage(msg *models.Message) (database.MediaItems, error) {
	switch {
	case len(msg.Photo) > 0:
		return database.MediaItems{{Kind: database.MediaPhoto, FileID: largestPhoto(msg.Photo).FileID}}, nil
	case msg.Video != nil:
		return database.MediaItems{{Kind: database.MediaVideo, FileID: msg.Video.FileID}}, nil
	case msg.Document != nil:
		return database.MediaItems{{Kind: database.MediaDocument, FileID: msg.Document.FileID}}, nil
	case strings.TrimSpace(msg.Text) != "":
		return nil, nil
	default:
		return nil, ErrUnsupportedContent
	}
}

// largestPhoto picks the biggest rendition; later sizes win ties.
func largestPhoto(sizes []models.PhotoSize) models.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height >= best.Width*best.Height {
			best = s
		}
	}
	return best
}

// parseEntryID reads the id argument of "/delete <id>" (also "/delete@bot <id>").
func parseEntryID(text string) (int64, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return 0, fmt.Errorf("missing entry id")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(fields[1], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entry id %q", fields[1])
	}
	return id, nil
}

func describeEntry(e database.QueueEntry) string {
	switch len(e.Items) {
	case 0:
		return "text"
	case 1:
		return string(e.Items[0].Kind)
	default:
		return fmt.Sprintf("album of %d", len(e.Items))
	}
}

// formatQueue renders the queue listing, oldest first, within Telegram's limit.
func formatQueue(entries []database.QueueEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 In queue: %d\n", len(entries))

	for i, e := range entries {
		line := fmt.Sprintf("\n#%d · %s", e.ID, describeEntry(e))
		if price, ok := caption.DetectPrice(e.Caption); ok {
			line += " · " + price
		}
		if excerpt := caption.Excerpt(e.Caption, excerptRunes); excerpt != "" {
			line += " · " + excerpt
		}

		more := fmt.Sprintf("\n… and %d more", len(entries)-i)
		if b.Len()+len(line)+len(more) > maxReplyLength {
			b.WriteString(more)
			break
		}
		b.WriteString(line)
	}
	return b.String()
}

// formatStats renders /stats. next is the next post instant.
func formatStats(stats database.QueueStats, next, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 In queue: %d\n", stats.Queued)
	if stats.OldestID.Valid {
		fmt.Fprintf(&b, "Oldest: #%d", stats.OldestID.Int64)
		if stats.OldestCreatedAt.Valid {
			age := now.Sub(time.Unix(stats.OldestCreatedAt.Int64, 0)).Truncate(time.Minute)
			fmt.Fprintf(&b, " (queued %s ago)", age)
		}
		b.WriteString("\n")
	}
	if stats.NewestID.Valid {
		fmt.Fprintf(&b, "Newest: #%d\n", stats.NewestID.Int64)
	}
	if !next.IsZero() {
		fmt.Fprintf(&b, "Next post: %s", next.Format("15:04 02.01 MST"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// AlbumReport turns a flushed album into the admin acknowledgement.
func AlbumReport(res album.FlushResult, errorText string) string {
	if res.Err != nil {
		return errorText
	}
	return fmt.Sprintf("✅ Queued #%d (album of %d)", res.EntryID, res.Items)
}

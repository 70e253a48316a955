package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/postqueue/internal/album"
	"github.com/edgard/postqueue/internal/config"
	"github.com/edgard/postqueue/internal/database"
	"github.com/edgard/postqueue/internal/publisher"
)

// Publisher publishes the oldest queued entry on demand.
type Publisher interface {
	PublishNext(ctx context.Context) (publisher.Outcome, error)
}

// AlbumCollector buffers media-group messages until the group is complete.
type AlbumCollector interface {
	Add(msg album.Message) bool
}

// Normalizer produces the canonical caption for a new entry.
type Normalizer interface {
	Normalize(raw string) string
}

// NextPostClock reports the next scheduled post instant.
type NextPostClock interface {
	Next(now time.Time) time.Time
}

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      database.Store
	Publisher  Publisher
	Albums     AlbumCollector
	Normalizer Normalizer
	Schedule   NextPostClock
}

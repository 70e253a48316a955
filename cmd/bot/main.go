// Package main contains the entrypoint for the channel post queue bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/postqueue/internal/album"
	"github.com/edgard/postqueue/internal/bot"
	"github.com/edgard/postqueue/internal/bot/handlers"
	"github.com/edgard/postqueue/internal/bot/tasks"
	"github.com/edgard/postqueue/internal/caption"
	"github.com/edgard/postqueue/internal/config"
	"github.com/edgard/postqueue/internal/database"
	"github.com/edgard/postqueue/internal/logger"
	"github.com/edgard/postqueue/internal/publisher"
	"github.com/edgard/postqueue/internal/schedule"
	"github.com/edgard/postqueue/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, blocks until shutdown, and returns the exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			log.Error("Failed to initialize Sentry", "error", err)
			return 1
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("Sentry error reporting enabled", "environment", cfg.Sentry.Environment)
	}

	db, err := database.Open(ctx, cfg.Database.Path, log)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.Close(db, log)
	store := database.NewStore(db, log)

	normalizer := caption.New(caption.Footer{
		CatalogURL:   cfg.Footer.CatalogURL,
		CatalogLabel: cfg.Footer.CatalogLabel,
		Contact:      cfg.Footer.Contact,
		ContactLabel: cfg.Footer.ContactLabel,
	})
	albums := album.NewAggregator(store, normalizer, log, cfg.Album.Debounce)
	planner := schedule.NewPlanner(cfg.Schedule.Times, cfg.Schedule.PreviewLead(), cfg.Schedule.TriggerWindow, cfg.Schedule.Location)

	// Intake never publishes; the publisher is added to hDeps once the client exists.
	hDeps := handlers.HandlerDeps{
		Logger:     log,
		Config:     cfg,
		Store:      store,
		Albums:     albums,
		Normalizer: normalizer,
		Schedule:   planner,
	}
	intake := handlers.NewIntakeHandler(hDeps)

	conflicts := telegram.NewConflictWatcher(log)
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.AdminOnly(hDeps)(intake)),
		tgbot.WithErrorsHandler(conflicts.HandleError),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	pub := publisher.New(tg, store, cfg.Telegram.ChannelID, log)
	hDeps.Publisher = pub

	albums.OnFlush(func(ctx context.Context, res album.FlushResult) {
		text := handlers.AlbumReport(res, cfg.Messages.GeneralError)
		if _, err := tg.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: res.ChatID, Text: text}); err != nil {
			log.Warn("Failed to acknowledge album", "media_group_id", res.GroupID, "error", err)
		}
	})

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}
	if err := telegram.SetCommands(ctx, tg, log, cmdHandlers); err != nil {
		log.Warn("Failed to publish command menu", "error", err)
	}

	runner := schedule.NewRunner(planner, store, pub, tg, schedule.RunnerConfig{
		AdminChatID:  cfg.PrimaryAdmin(),
		ErrorBackoff: cfg.Schedule.ErrorBackoff,
	}, log)

	taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{Logger: log, Store: store})
	sched, err := bot.NewScheduler(log, cfg.Schedule.Location, runner, cfg.Schedule.PollInterval, cfg.Tasks, taskMap)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, cfg, store, tg, sched, albums, conflicts.Conflicts())

	log.Info("Starting bot...",
		"channel_id", cfg.Telegram.ChannelID,
		"admins", len(cfg.Telegram.AdminIDs),
		"next_post", planner.Next(time.Now()))
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		sentry.CaptureException(runErr)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}

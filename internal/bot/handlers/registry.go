package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Description string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all available bot commands.
// Every command is admin-only; other users get no reply.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	adminMiddleware := []tgbot.Middleware{AdminOnly(deps)}

	command := func(pattern, description string, h tgbot.HandlerFunc) RegisteredHandler {
		return RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Description: description,
			Handler:     h,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  adminMiddleware,
		}
	}

	return map[string]RegisteredHandler{
		"/start":       command("start", "Start the bot", NewStartHandler(deps)),
		"/help":        command("help", "Show available commands", NewHelpHandler(deps)),
		"/queue":       command("queue", "List queued posts", NewQueueHandler(deps)),
		"/post_now":    command("post_now", "Publish the oldest post now", NewPostNowHandler(deps)),
		"/delete":      command("delete", "Delete a queued post by id", NewDeleteHandler(deps)),
		"/delete_last": command("delete_last", "Delete the newest queued post", NewDeleteLastHandler(deps)),
		"/clear":       command("clear", "Remove every queued post", NewClearHandler(deps)),
		"/stats":       command("stats", "Queue statistics and next post time", NewStatsHandler(deps)),
	}
}

package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegohandler"
)

// updateTimeout bounds the work done for a single update.
const updateTimeout = 30 * time.Second

// contextMiddleware ties every update to the lifetime of the bot.
func (b *Bot) contextMiddleware(parent context.Context) telegohandler.Middleware {
	return func(bot *telego.Bot, update telego.Update, next telegohandler.Handler) {
		ctx, cancel := context.WithTimeout(parent, updateTimeout)
		defer cancel()

		next(bot, update.WithContext(ctx))
	}
}

func (b *Bot) recoverMiddleware(bot *telego.Bot, update telego.Update, next telegohandler.Handler) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("bot: Panic while handling update",
				"update_id", update.UpdateID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	next(bot, update)
}

// forwardFilterMiddleware drops forwarded messages so that a forwarded
// command is not executed again.
func (b *Bot) forwardFilterMiddleware(bot *telego.Bot, update telego.Update, next telegohandler.Handler) {
	if update.Message != nil && update.Message.ForwardOrigin != nil {
		slog.Debug("bot: Ignoring forwarded message", "chat_id", update.Message.Chat.ID)
		return
	}

	next(bot, update)
}

// Package bot is the Telegram front end: it parses commands, checks access
// and renders directory results.
package bot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	"golang.org/x/time/rate"

	"git.skobk.in/skobkin/telegram-group-mention-bot/access"
	"git.skobk.in/skobkin/telegram-group-mention-bot/callback"
	"git.skobk.in/skobkin/telegram-group-mention-bot/directory"
)

var (
	ErrGetMe          = errors.New("cannot retrieve api user")
	ErrUpdatesChannel = errors.New("cannot get updates channel")
	ErrHandlerInit    = errors.New("cannot initialize handler")
)

type Bot struct {
	api       *telego.Bot
	directory *directory.Manager
	access    *access.Engine
	picker    *callback.Picker
	limiter   *rate.Limiter
}

func NewBot(api *telego.Bot, dir *directory.Manager, acl *access.Engine, picker *callback.Picker, limiter *rate.Limiter) *Bot {
	return &Bot{
		api:       api,
		directory: dir,
		access:    acl,
		picker:    picker,
		limiter:   limiter,
	}
}

// Run handles updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	botUser, err := b.api.GetMe()
	if err != nil {
		slog.Error("bot: Cannot retrieve api user", "error", err)

		return ErrGetMe
	}

	slog.Info("bot: Running api as",
		"id", botUser.ID,
		"username", botUser.Username,
		"name", botUser.FirstName,
	)

	if err := b.api.SetMyCommands(&telego.SetMyCommandsParams{Commands: botCommands()}); err != nil {
		slog.Warn("bot: Cannot set bot commands", "error", err)
	}

	updates, err := b.api.UpdatesViaLongPolling(nil)
	if err != nil {
		slog.Error("bot: Cannot get update channel", "error", err)

		return ErrUpdatesChannel
	}

	bh, err := th.NewBotHandler(b.api, updates)
	if err != nil {
		slog.Error("bot: Cannot initialize bot handler", "error", err)

		return ErrHandlerInit
	}

	bh.Use(b.recoverMiddleware)
	bh.Use(b.contextMiddleware(ctx))
	bh.Use(b.forwardFilterMiddleware)

	bh.Handle(b.memberLeftHandler, memberLeft)
	bh.Handle(b.pickerCallbackHandler, th.AnyCallbackQuery())

	bh.Handle(b.startHandler, commandPredicate("start"))
	bh.Handle(b.helpHandler, commandPredicate("help"))
	bh.Handle(b.groupsHandler, commandPredicate("groups"))
	bh.Handle(b.membersHandler, commandPredicate("members"))
	bh.Handle(b.callHandler, commandPredicate("call"))
	bh.Handle(b.xcallHandler, commandPredicate("xcall"))
	bh.Handle(b.joinHandler, commandPredicate("join"))
	bh.Handle(b.leaveHandler, commandPredicate("leave"))
	bh.Handle(b.addGroupHandler, commandPredicate("add_group"))
	bh.Handle(b.removeGroupHandler, commandPredicate("remove_group"))
	bh.Handle(b.addAliasHandler, commandPredicate("add_alias"))
	bh.Handle(b.removeAliasHandler, commandPredicate("remove_alias"))
	bh.Handle(b.addMembersHandler, commandPredicate("add_members"))
	bh.Handle(b.removeMembersHandler, commandPredicate("remove_members"))
	bh.Handle(b.enableAnarchyHandler, commandPredicate("enable_anarchy"))
	bh.Handle(b.disableAnarchyHandler, commandPredicate("disable_anarchy"))

	go func() {
		<-ctx.Done()
		slog.Info("bot: Stopping")
		b.api.StopLongPolling()
		bh.Stop()
	}()

	bh.Start()

	return nil
}

func memberLeft(update telego.Update) bool {
	return update.Message != nil && update.Message.LeftChatMember != nil
}

// memberLeftHandler drops a user who left the chat from all of its groups.
func (b *Bot) memberLeftHandler(_ *telego.Bot, update telego.Update) {
	msg := update.Message
	user := msg.LeftChatMember
	if user.IsBot {
		return
	}

	removed, err := b.directory.RemoveUserFromChat(update.Context(), msg.Chat.ID, user.ID)
	if err != nil {
		slog.Error("bot: Cannot remove departed user", "error", err, "chat_id", msg.Chat.ID, "user_id", user.ID)
		return
	}

	slog.Debug("bot: Departed user processed", "chat_id", msg.Chat.ID, "user_id", user.ID, "removed", removed)
}

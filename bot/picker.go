package bot

import (
	"context"
	"log/slog"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"git.skobk.in/skobkin/telegram-group-mention-bot/access"
	"git.skobk.in/skobkin/telegram-group-mention-bot/callback"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

const cancelButtonText = "✖ Отмена ✖"

// xcallHandler offers the groups of the chat as inline buttons.
func (b *Bot) xcallHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "xcall", access.Read, func(ctx context.Context, msg *telego.Message) (string, error) {
		groups, err := b.directory.Groups(ctx, msg.Chat.ID)
		if err != nil {
			return "", err
		}
		if len(groups) == 0 {
			return textNoGroups, nil
		}

		offer, err := b.picker.Offer(msg.Chat.ID, msg.From.ID, groups)
		if err != nil {
			return "", err
		}

		b.reply(ctx, msg.Chat.ID, msg.MessageID, "<b>Выберите группу</b>", pickerKeyboard(offer))
		return "", nil
	})
}

// pickerKeyboard puts the cancel button first and one group per row.
func pickerKeyboard(offer callback.Offer) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(offer.Choices)+1)
	rows = append(rows, tu.InlineKeyboardRow(
		tu.InlineKeyboardButton(cancelButtonText).WithCallbackData(offer.Cancel),
	))
	for _, choice := range offer.Choices {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(groupLabel(choice.Group)).WithCallbackData(choice.Token),
		))
	}
	return tu.InlineKeyboard(rows...)
}

func (b *Bot) pickerCallbackHandler(_ *telego.Bot, update telego.Update) {
	query := update.CallbackQuery
	ctx := update.Context()

	var chatID int64
	if query.Message != nil {
		chatID = query.Message.GetChat().ID
	}

	ctl := &pickerControl{bot: b, query: query, chatID: chatID}
	outcome, err := b.picker.Handle(ctx, callback.Request{
		ChatID:  chatID,
		ActorID: query.From.ID,
		Data:    query.Data,
	}, ctl)
	if err != nil {
		slog.Error("bot: Picker callback failed", "error", err, "chat_id", chatID, "user_id", query.From.ID)
		ctl.answer(ctx, textSomethingWrong, false)
		return
	}

	slog.Info("bot: Picker callback handled", "outcome", outcome.String(), "chat_id", chatID, "user_id", query.From.ID)
}

// pickerControl applies picker decisions to the message with the buttons.
type pickerControl struct {
	bot    *Bot
	query  *telego.CallbackQuery
	chatID int64
}

func (c *pickerControl) answer(ctx context.Context, text string, alert bool) {
	c.bot.send(ctx, c.chatID, func() error {
		return c.bot.api.AnswerCallbackQuery(&telego.AnswerCallbackQueryParams{
			CallbackQueryID: c.query.ID,
			Text:            text,
			ShowAlert:       alert,
		})
	})
}

func (c *pickerControl) Alert(ctx context.Context, notice callback.Notice) error {
	c.answer(ctx, noticeText(notice), true)
	return nil
}

func (c *pickerControl) Dismiss(ctx context.Context, notice callback.Notice) error {
	if c.query.Message != nil {
		c.bot.send(ctx, c.chatID, func() error {
			return c.bot.api.DeleteMessage(&telego.DeleteMessageParams{
				ChatID:    tu.ID(c.chatID),
				MessageID: c.query.Message.GetMessageID(),
			})
		})
	}
	c.answer(ctx, noticeText(notice), false)
	return nil
}

func (c *pickerControl) Resolve(ctx context.Context, members []storage.Member) error {
	c.answer(ctx, "", false)
	if c.query.Message == nil {
		return nil
	}

	c.bot.send(ctx, c.chatID, func() error {
		_, err := c.bot.api.EditMessageText(&telego.EditMessageTextParams{
			ChatID:    tu.ID(c.chatID),
			MessageID: c.query.Message.GetMessageID(),
			Text:      mentions(members),
			ParseMode: telego.ModeHTML,
		})
		return err
	})
	return nil
}

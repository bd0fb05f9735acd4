package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"

	"git.skobk.in/skobkin/telegram-group-mention-bot/access"
	"git.skobk.in/skobkin/telegram-group-mention-bot/callback"
	"git.skobk.in/skobkin/telegram-group-mention-bot/directory"
	"git.skobk.in/skobkin/telegram-group-mention-bot/errorx"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

const (
	textSomethingWrong = "Что-то пошло не так!"
	textForbidden      = "Действие запрещено! Обратитесь к администратору группы."
	textBusy           = "Бот занят другой командой в этом чате. Попробуйте ещё раз."
	textNoGroups       = "Нет ни одной группы."
	textEmptyGroup     = "Группа пользователей пуста!"
)

func escape(s string) string {
	return html.EscapeString(s)
}

func bold(s string) string {
	return "<b>" + escape(s) + "</b>"
}

// mention renders a member as a clickable link when the user id is known
// and as escaped text otherwise.
func mention(m storage.Member) string {
	if !m.Mentionable() {
		return escape(m.Name)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, *m.UserID, escape(m.Name))
}

func mentions(members []storage.Member) string {
	list := make([]string, 0, len(members))
	for _, m := range members {
		list = append(list, mention(m))
	}
	return strings.Join(list, " ")
}

// memberList formats members one per line without notifying them.
func memberList(members []storage.Member) string {
	lines := make([]string, 0, len(members))
	for _, m := range members {
		lines = append(lines, "- "+escape(m.Name))
	}
	return strings.Join(lines, "\n")
}

// groupLabel is "canonical (синонимы: a, b)".
func groupLabel(g directory.Group) string {
	label := g.Canonical()
	if synonyms := g.Synonyms(); len(synonyms) > 0 {
		label += " (синонимы: " + strings.Join(synonyms, ", ") + ")"
	}
	return label
}

func groupList(groups []directory.Group) string {
	if len(groups) == 0 {
		return textNoGroups
	}
	lines := make([]string, 0, len(groups)+1)
	lines = append(lines, "<b>Вот такие группы существуют:</b>")
	for _, g := range groups {
		lines = append(lines, "- "+escape(groupLabel(g)))
	}
	return strings.Join(lines, "\n")
}

// userMention links a platform user by id.
func userMention(u *telego.User) string {
	return mention(memberFromUser(u))
}

func memberFromUser(u *telego.User) storage.Member {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if u.Username != "" {
		name = "@" + u.Username
	}
	id := u.ID
	return storage.Member{Name: name, UserID: &id}
}

// errorText turns an error into the reply shown to the user. Authorization
// denials share one message whatever the reason.
func errorText(err error) string {
	switch {
	case errors.Is(err, directory.ErrInvalidGroupName):
		return fmt.Sprintf("Неправильное название группы! Допустимы a-z, а-я, цифры, дефис и подчёркивание, не длиннее %d символов.",
			directory.MaxGroupNameLength)
	case errors.Is(err, directory.ErrNoMembers):
		return "Нужно указать хотя бы одного пользователя!"
	case errors.Is(err, directory.ErrInvalidMemberName):
		return fmt.Sprintf("Неправильное имя пользователя! Максимальная длина: %d.", directory.MaxMemberNameLength)
	case errors.Is(err, directory.ErrGroupQuota):
		return fmt.Sprintf("Слишком много групп уже создано! Текущее ограничение для чата: %d", directory.MaxGroupsPerChat)
	case errors.Is(err, directory.ErrAliasQuota):
		return fmt.Sprintf("Нельзя добавить так много алиасов! Текущее ограничение для одной группы: %d", directory.MaxAliasesPerGroup)
	case errors.Is(err, directory.ErrMemberQuota):
		return fmt.Sprintf("Слишком много пользователей уже добавлено в группу! Текущее ограничение для одной группы: %d", directory.MaxMembersPerGroup)
	case errors.Is(err, directory.ErrDuplicateAlias):
		return "Такой алиас уже используется!"
	case errors.Is(err, directory.ErrGroupNotEmpty):
		return "Группу нельзя удалить, в ней есть пользователи!"
	case errors.Is(err, directory.ErrLastAlias):
		return "Нельзя удалить единственное название группы!"
	case errors.Is(err, directory.ErrGroupNotFound):
		return "Группа не найдена!"
	case errors.Is(err, directory.ErrAliasNotFound):
		return "Алиас не найден для группы!"
	}

	switch errorx.KindOf(err) {
	case errorx.KindAuthorization:
		return textForbidden
	case errorx.KindBusy:
		return textBusy
	}
	return textSomethingWrong
}

func noticeText(n callback.Notice) string {
	switch n {
	case callback.NoticeForeign:
		return "Это чужой диалог!"
	case callback.NoticeCancelled:
		return "Операция отменена!"
	case callback.NoticeEmptyGroup:
		return "Эта группа пуста! Выберите другую."
	case callback.NoticeGroupGone:
		return "Этой группы больше нет! Выберите другую."
	}
	return textSomethingWrong
}

// isAdmin reports whether the user is the chat creator or an administrator.
func (b *Bot) isAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return false, err
	}
	member, err := b.api.GetChatMember(&telego.GetChatMemberParams{
		ChatID: tu.ID(chatID),
		UserID: userID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to get chat member: %w", err)
	}

	switch member.MemberStatus() {
	case telego.MemberStatusCreator, telego.MemberStatusAdministrator:
		return true, nil
	}
	return false, nil
}

// checkAccess asks the access engine whether the sender of msg may use
// the capability. Admin status is looked up only when it can matter.
func (b *Bot) checkAccess(ctx context.Context, msg *telego.Message, capability access.Capability) error {
	req := access.Request{
		ChatID:     msg.Chat.ID,
		ActorID:    msg.From.ID,
		Private:    msg.Chat.Type == telego.ChatTypePrivate,
		Capability: capability,
	}

	if !req.Private && capability != access.Read {
		admin, err := b.isAdmin(ctx, req.ChatID, req.ActorID)
		if err != nil {
			return errorx.Wrap(err, errorx.KindInternal, "cannot check administrator status")
		}
		req.Admin = admin
	}

	return b.access.Check(ctx, req)
}

// reply sends an HTML message in reply to the message with id replyTo.
func (b *Bot) reply(ctx context.Context, chatID int64, replyTo int, text string, markup telego.ReplyMarkup) {
	message := tu.Message(tu.ID(chatID), text)
	message.ParseMode = telego.ModeHTML
	message.ReplyParameters = &telego.ReplyParameters{
		MessageID:                replyTo,
		AllowSendingWithoutReply: true,
	}
	message.ReplyMarkup = markup

	b.send(ctx, chatID, func() error {
		_, err := b.api.SendMessage(message)
		return err
	})
}

// send runs an API call under the outgoing rate limit. When Telegram still
// answers with 429 the call is retried once after the advertised delay.
func (b *Bot) send(ctx context.Context, chatID int64, call func() error) {
	if err := b.limiter.Wait(ctx); err != nil {
		slog.Warn("bot: Rate limiter wait aborted", "error", err, "chat_id", chatID)
		return
	}

	err := call()
	if err != nil {
		if retryAfter := retryAfter(err); retryAfter > 0 {
			slog.Debug("bot: API error", "error", err.Error())
			slog.Info("bot: Rate limit hit, waiting", "seconds", retryAfter)

			select {
			case <-ctx.Done():
				slog.Warn("bot: Gave up waiting for rate limit", "chat_id", chatID)
				return
			case <-time.After(time.Duration(retryAfter) * time.Second):
			}

			err = call()
			if err == nil {
				slog.Info("bot: Message sent successfully after rate limit wait")
			}
		}
	}
	if err != nil {
		slog.Error("bot: Failed to send message", "error", err, "chat_id", chatID)
		return
	}

	slog.Debug("bot: Message sent successfully", "chat_id", chatID)
}

// retryAfter returns the flood control delay in seconds carried by a 429
// API error, or zero for any other error.
func retryAfter(err error) int {
	var apiErr *telegoapi.Error
	if !errors.As(err, &apiErr) || apiErr.ErrorCode != http.StatusTooManyRequests || apiErr.Parameters == nil {
		return 0
	}
	return apiErr.Parameters.RetryAfter
}

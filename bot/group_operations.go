package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"git.skobk.in/skobkin/telegram-group-mention-bot/access"
	"git.skobk.in/skobkin/telegram-group-mention-bot/directory"
	"git.skobk.in/skobkin/telegram-group-mention-bot/errorx"
	"git.skobk.in/skobkin/telegram-group-mention-bot/metrics"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

var errUsage = errorx.New(errorx.KindValidation, "bad command arguments")

// commandFunc executes a command and returns the HTML reply. An empty reply
// means the command has answered on its own.
type commandFunc func(ctx context.Context, msg *telego.Message) (string, error)

// runCommand checks access, runs fn and replies with its result or with
// the rendered error.
func (b *Bot) runCommand(update telego.Update, name string, capability access.Capability, fn commandFunc) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	ctx := update.Context()

	slog.Info("bot: Command received", "command", name, "chat_id", msg.Chat.ID, "user_id", msg.From.ID)

	err := b.checkAccess(ctx, msg, capability)
	var text string
	if err == nil {
		text, err = fn(ctx, msg)
	}

	outcome := "ok"
	if err != nil {
		kind := errorx.KindOf(err)
		outcome = kind.String()
		text = failureText(name, err)

		if kind == errorx.KindInternal {
			slog.Error("bot: Command failed", "command", name, "chat_id", msg.Chat.ID, "user_id", msg.From.ID, "error", err)
		} else {
			slog.Info("bot: Command rejected", "command", name, "chat_id", msg.Chat.ID, "user_id", msg.From.ID,
				"kind", outcome, "error", err)
		}
	}
	metrics.ObserveCommand(name, outcome)

	if text != "" {
		b.reply(ctx, msg.Chat.ID, msg.MessageID, text, nil)
	}
}

func failureText(command string, err error) string {
	if errors.Is(err, errUsage) {
		return usageText(lookupCommand(command))
	}
	return escape(errorText(err))
}

func (b *Bot) startHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "start", access.Read, func(_ context.Context, msg *telego.Message) (string, error) {
		return startText(msg.From), nil
	})
}

func (b *Bot) helpHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "help", access.Read, func(context.Context, *telego.Message) (string, error) {
		return helpText(), nil
	})
}

func (b *Bot) groupsHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "groups", access.Read, func(ctx context.Context, msg *telego.Message) (string, error) {
		groups, err := b.directory.Groups(ctx, msg.Chat.ID)
		if err != nil {
			return "", err
		}
		return groupList(groups), nil
	})
}

func (b *Bot) membersHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "members", access.Read, func(ctx context.Context, msg *telego.Message) (string, error) {
		group, ok := parseGroup(msg.Text)
		if !ok {
			return "", errUsage
		}

		members, err := b.directory.Members(ctx, msg.Chat.ID, group)
		if err != nil {
			return "", err
		}
		if len(members) == 0 {
			return fmt.Sprintf("В группе %s нет ни одного пользователя!", bold(group)), nil
		}
		return fmt.Sprintf("Участники группы %s:\n%s", bold(group), memberList(members)), nil
	})
}

// callHandler mentions the members of a group. When the command replies to
// a message, the mentions reply to that message instead.
func (b *Bot) callHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "call", access.Read, func(ctx context.Context, msg *telego.Message) (string, error) {
		group, ok := parseGroupWithTail(msg.Text)
		if !ok {
			return "", errUsage
		}

		members, err := b.directory.Members(ctx, msg.Chat.ID, group)
		if err != nil {
			return "", err
		}
		if len(members) == 0 {
			return textEmptyGroup, nil
		}

		replyTo := msg.MessageID
		if msg.ReplyToMessage != nil {
			replyTo = msg.ReplyToMessage.MessageID
		}
		b.reply(ctx, msg.Chat.ID, replyTo, mentions(members), nil)
		return "", nil
	})
}

func (b *Bot) joinHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "join", access.Write, func(ctx context.Context, msg *telego.Message) (string, error) {
		group, ok := parseGroup(msg.Text)
		if !ok {
			return "", errUsage
		}

		added, err := b.directory.AddMembers(ctx, msg.Chat.ID, group, []storage.Member{memberFromUser(msg.From)})
		if err != nil {
			return "", err
		}
		if added == 0 {
			return fmt.Sprintf("Вы уже состоите в группе %s.", bold(group)), nil
		}
		return fmt.Sprintf("Вы добавлены в группу %s!", bold(group)), nil
	})
}

// leaveHandler removes the sender from a group. Both the entries carrying
// the sender's user id and the entry for the sender's @username match.
func (b *Bot) leaveHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "leave", access.Write, func(ctx context.Context, msg *telego.Message) (string, error) {
		group, ok := parseGroup(msg.Text)
		if !ok {
			return "", errUsage
		}

		members, err := b.directory.Members(ctx, msg.Chat.ID, group)
		if err != nil {
			return "", err
		}
		names := ownEntries(members, msg.From)
		if len(names) == 0 {
			return fmt.Sprintf("Вы не состоите в группе %s.", bold(group)), nil
		}

		if _, err := b.directory.RemoveMembers(ctx, msg.Chat.ID, group, names); err != nil {
			return "", err
		}
		return fmt.Sprintf("Вы удалены из группы %s.", bold(group)), nil
	})
}

func ownEntries(members []storage.Member, user *telego.User) []string {
	var names []string
	for _, m := range members {
		switch {
		case m.UserID != nil && *m.UserID == user.ID:
			names = append(names, m.Name)
		case user.Username != "" && strings.EqualFold(m.Name, "@"+user.Username):
			names = append(names, m.Name)
		}
	}
	return names
}

func (b *Bot) addGroupHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "add_group", access.Write, func(ctx context.Context, msg *telego.Message) (string, error) {
		group, ok := parseGroup(msg.Text)
		if !ok {
			return "", errUsage
		}

		if _, err := b.directory.CreateGroup(ctx, msg.Chat.ID, group); err != nil {
			return "", err
		}
		return fmt.Sprintf("Группа %s добавлена!", bold(group)), nil
	})
}

func (b *Bot) removeGroupHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "remove_group", access.Write, func(ctx context.Context, msg *telego.Message) (string, error) {
		group, ok := parseGroup(msg.Text)
		if !ok {
			return "", errUsage
		}

		if err := b.directory.RemoveGroup(ctx, msg.Chat.ID, group); err != nil {
			return "", err
		}
		return fmt.Sprintf("Группа %s удалена!", bold(group)), nil
	})
}

func (b *Bot) addAliasHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "add_alias", access.Write, func(ctx context.Context, msg *telego.Message) (string, error) {
		group, alias, ok := parseGroupWithAlias(msg.Text)
		if !ok {
			return "", errUsage
		}

		if err := b.directory.AddAlias(ctx, msg.Chat.ID, group, alias); err != nil {
			return "", err
		}
		return fmt.Sprintf("Для группы %s добавлен алиас %s", bold(group), bold(alias)), nil
	})
}

func (b *Bot) removeAliasHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "remove_alias", access.Write, func(ctx context.Context, msg *telego.Message) (string, error) {
		group, alias, ok := parseGroupWithAlias(msg.Text)
		if !ok {
			return "", errUsage
		}

		if err := b.directory.RemoveAlias(ctx, msg.Chat.ID, group, alias); err != nil {
			return "", err
		}
		return fmt.Sprintf("Алиас %s удалён из группы %s", bold(alias), bold(group)), nil
	})
}

func (b *Bot) addMembersHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "add_members", access.Write, func(ctx context.Context, msg *telego.Message) (string, error) {
		group, members, ok := parseGroupWithMembers(msg)
		if !ok {
			return "", errUsage
		}

		if _, err := b.directory.AddMembers(ctx, msg.Chat.ID, group, members); err != nil {
			return "", err
		}
		return fmt.Sprintf("Пользователи добавленные в группу %s:\n%s", bold(group), mentionList(members)), nil
	})
}

func (b *Bot) removeMembersHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "remove_members", access.Write, func(ctx context.Context, msg *telego.Message) (string, error) {
		group, members, ok := parseGroupWithMembers(msg)
		if !ok {
			return "", errUsage
		}
		if len(members) == 0 {
			return "", directory.ErrNoMembers
		}

		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, m.Name)
		}
		if _, err := b.directory.RemoveMembers(ctx, msg.Chat.ID, group, names); err != nil {
			return "", err
		}
		return fmt.Sprintf("Пользователи удалённые из группы %s:\n%s", bold(group), mentionList(members)), nil
	})
}

func mentionList(members []storage.Member) string {
	lines := make([]string, 0, len(members))
	for _, m := range members {
		lines = append(lines, "- "+mention(m))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) enableAnarchyHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "enable_anarchy", access.ChangeSettings, func(ctx context.Context, msg *telego.Message) (string, error) {
		if err := b.directory.SetAnarchy(ctx, msg.Chat.ID, true); err != nil {
			return "", err
		}
		return "Анархия включена. Все пользователи могут настраивать бота.", nil
	})
}

func (b *Bot) disableAnarchyHandler(_ *telego.Bot, update telego.Update) {
	b.runCommand(update, "disable_anarchy", access.ChangeSettings, func(ctx context.Context, msg *telego.Message) (string, error) {
		if err := b.directory.SetAnarchy(ctx, msg.Chat.ID, false); err != nil {
			return "", err
		}
		return "Анархия выключена. Только администраторы могут настраивать бота.", nil
	})
}

package bot

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"git.skobk.in/skobkin/telegram-group-mention-bot/directory"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

type command struct {
	name        string
	description string
	usage       string
	admin       bool
	// aliases are accepted like the name but not advertised.
	aliases []string
}

var commands = []command{
	{name: "start", description: "начало работы с ботом"},
	{name: "help", description: "справка по всем командам бота"},
	{name: "groups", description: "показать список групп"},
	{name: "members", description: "показать список пользователей в группе", usage: "/members group1"},
	{name: "call", description: "позвать пользователей", usage: "/call group1"},
	{name: "xcall", description: "позвать пользователей (inline-диалог)"},
	{name: "join", description: "вступить в группу", usage: "/join group1"},
	{name: "leave", description: "выйти из группы", usage: "/leave group1"},
	{name: "add_group", description: "добавление группы", usage: "/add_group group1", admin: true},
	{name: "remove_group", description: "удаление группы", usage: "/remove_group group1", admin: true},
	{name: "add_alias", description: "добавление алиаса группы", usage: "/add_alias group1 alias1", admin: true, aliases: []string{"add_group_alias"}},
	{name: "remove_alias", description: "удаление алиаса группы", usage: "/remove_alias group1 alias1", admin: true, aliases: []string{"remove_group_alias"}},
	{name: "add_members", description: "добавление пользователей в группу", usage: "/add_members group1 @user1 @user2", admin: true, aliases: []string{"add_member"}},
	{name: "remove_members", description: "удаление пользователей из группы", usage: "/remove_members group1 @user1 @user2", admin: true, aliases: []string{"remove_member"}},
	{name: "enable_anarchy", description: "всем доступны настройки", admin: true},
	{name: "disable_anarchy", description: "только админам доступны настройки", admin: true},
}

func lookupCommand(name string) command {
	for _, c := range commands {
		if c.name == name {
			return c
		}
	}
	return command{name: name}
}

// commandPredicate matches the command by its name or any of its aliases.
func commandPredicate(name string) th.Predicate {
	c := lookupCommand(name)
	predicates := []th.Predicate{th.CommandEqual(c.name)}
	for _, alias := range c.aliases {
		predicates = append(predicates, th.CommandEqual(alias))
	}
	return th.Or(predicates...)
}

const (
	cmdPattern    = `(?:[@a-zA-Z0-9]|[-_])+`
	groupPattern  = `(?:[a-zA-Z0-9]|[а-яА-ЯёЁ]|[-_])+`
	memberPattern = `[@\p{L}\p{N}_-]+`
)

var (
	groupRe         = regexp.MustCompile(`^/` + cmdPattern + `\s+(?P<group>` + groupPattern + `)$`)
	groupWithTailRe = regexp.MustCompile(`(?s)^/` + cmdPattern + `\s+(?P<group>` + groupPattern + `)(?:\s.*)?$`)
	groupAliasRe    = regexp.MustCompile(`^/` + cmdPattern + `\s+(?P<group>` + groupPattern + `)\s+(?P<alias>` + groupPattern + `)$`)
	groupMembersRe  = regexp.MustCompile(`^/` + cmdPattern + `\s+(?P<group>` + groupPattern + `)(?:\s+` + memberPattern + `)+$`)
)

func submatch(re *regexp.Regexp, text, name string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[re.SubexpIndex(name)], true
}

// parseGroup parses "/cmd group".
func parseGroup(text string) (string, bool) {
	return submatch(groupRe, strings.TrimSpace(text), "group")
}

// parseGroupWithTail parses "/cmd group anything else".
func parseGroupWithTail(text string) (string, bool) {
	return submatch(groupWithTailRe, strings.TrimSpace(text), "group")
}

// parseGroupWithAlias parses "/cmd group alias".
func parseGroupWithAlias(text string) (group, alias string, ok bool) {
	m := groupAliasRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", false
	}
	return m[groupAliasRe.SubexpIndex("group")], m[groupAliasRe.SubexpIndex("alias")], true
}

const (
	entityMention     = "mention"
	entityTextMention = "text_mention"
)

// parseGroupWithMembers parses "/cmd group @user1 @user2 ...". Members are
// taken from mention entities, so plain words do not count.
func parseGroupWithMembers(msg *telego.Message) (string, []storage.Member, bool) {
	text := strings.TrimSpace(msg.Text)
	group, ok := submatch(groupMembersRe, text, "group")
	if !ok {
		return "", nil, false
	}

	var members []storage.Member
	seen := make(map[string]struct{})
	for _, e := range msg.Entities {
		var member storage.Member
		switch e.Type {
		case entityMention:
			member.Name = entityText(msg.Text, e)
		case entityTextMention:
			if e.User == nil {
				continue
			}
			id := e.User.ID
			member.Name = entityText(msg.Text, e)
			member.UserID = &id
		default:
			continue
		}
		if member.Name == "" {
			continue
		}
		if _, dup := seen[member.Name]; dup {
			continue
		}
		seen[member.Name] = struct{}{}
		members = append(members, member)
	}

	return group, members, true
}

// entityText cuts the entity out of text. Offsets are in UTF-16 code units.
func entityText(text string, e telego.MessageEntity) string {
	units := utf16.Encode([]rune(text))
	if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(units) {
		return ""
	}
	return string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
}

// usageText is the reply to a command with bad arguments.
func usageText(c command) string {
	var sb strings.Builder
	sb.WriteString("<b>Пример вызова:</b>\n")
	fmt.Fprintf(&sb, "<code>%s</code>\n\n", escape(c.usage))
	sb.WriteString("<b>Ограничения:</b>\n")
	fmt.Fprintf(&sb, "- название группы: a-z, а-я, цифры, дефис и подчёркивание, не длиннее %d символов\n",
		directory.MaxGroupNameLength)
	if strings.Contains(c.usage, "@") {
		fmt.Fprintf(&sb, "- пользователей в группе: не больше %d", directory.MaxMembersPerGroup)
	} else {
		fmt.Fprintf(&sb, "- групп в чате: не больше %d", directory.MaxGroupsPerChat)
	}
	return sb.String()
}

func helpText() string {
	var common, admin []string
	for _, c := range commands {
		line := fmt.Sprintf("/%s — %s", c.name, c.description)
		if c.admin {
			admin = append(admin, line)
		} else {
			common = append(common, line)
		}
	}

	return "<b>Общие команды:</b>\n" + strings.Join(common, "\n") +
		"\n\n<b>Административные команды:</b>\n" + strings.Join(admin, "\n")
}

func startText(user *telego.User) string {
	return fmt.Sprintf("Привет, %s! 👋\n\n", userMention(user)) +
		"<b>Пример работы с ботом:</b>\n" +
		"<code>/add_group group1</code>\n" +
		"<code>/add_members group1 @user1 @user2 @user3</code>\n" +
		"<code>/call group1</code>\n\n" +
		"Команда <i>call</i> вызовет ранее добавленных пользователей из группы <i>group1</i> вот в таком виде:\n" +
		"<code>@user1 @user2 @user3</code>\n\n" +
		helpText()
}

func botCommands() []telego.BotCommand {
	list := make([]telego.BotCommand, 0, len(commands))
	for _, c := range commands {
		list = append(list, telego.BotCommand{Command: c.name, Description: c.description})
	}
	return list
}

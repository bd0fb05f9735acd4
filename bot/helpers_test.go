package bot

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/mymmrac/telego/telegoapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.skobk.in/skobkin/telegram-group-mention-bot/access"
	"git.skobk.in/skobkin/telegram-group-mention-bot/callback"
	"git.skobk.in/skobkin/telegram-group-mention-bot/directory"
	"git.skobk.in/skobkin/telegram-group-mention-bot/errorx"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

func TestMention(t *testing.T) {
	id := int64(42)

	assert.Equal(t, "@alice", mention(storage.Member{Name: "@alice"}))
	assert.Equal(t, "&lt;b&gt;x", mention(storage.Member{Name: "<b>x"}))
	assert.Equal(t, `<a href="tg://user?id=42">Bob &amp; Co</a>`, mention(storage.Member{Name: "Bob & Co", UserID: &id}))

	assert.Equal(t, `@alice <a href="tg://user?id=42">Bob</a>`, mentions([]storage.Member{
		{Name: "@alice"},
		{Name: "Bob", UserID: &id},
	}))
}

func TestGroupList(t *testing.T) {
	assert.Equal(t, textNoGroups, groupList(nil))

	text := groupList([]directory.Group{
		{ID: 1, Aliases: []string{"team"}},
		{ID: 2, Aliases: []string{"ops", "sre", "oncall"}},
	})
	assert.Equal(t, "<b>Вот такие группы существуют:</b>\n- team\n- ops (синонимы: sre, oncall)", text)
}

func TestMemberFromUser(t *testing.T) {
	m := memberFromUser(&telego.User{ID: 7, FirstName: "Ivan", LastName: "Petrov"})
	assert.Equal(t, "Ivan Petrov", m.Name)
	require.NotNil(t, m.UserID)
	assert.Equal(t, int64(7), *m.UserID)

	m = memberFromUser(&telego.User{ID: 7, FirstName: "Ivan", Username: "ivan"})
	assert.Equal(t, "@ivan", m.Name)
}

func TestOwnEntries(t *testing.T) {
	id := int64(7)
	other := int64(8)
	members := []storage.Member{
		{Name: "Ivan", UserID: &id},
		{Name: "@Ivan"},
		{Name: "@petr"},
		{Name: "Petr", UserID: &other},
	}

	assert.Equal(t, []string{"Ivan", "@Ivan"}, ownEntries(members, &telego.User{ID: 7, Username: "ivan"}))
	assert.Empty(t, ownEntries(members, &telego.User{ID: 9}))
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("x: %w", directory.ErrGroupQuota), "Слишком много групп уже создано! Текущее ограничение для чата: 10"},
		{directory.ErrDuplicateAlias, "Такой алиас уже используется!"},
		{directory.ErrGroupNotEmpty, "Группу нельзя удалить, в ней есть пользователи!"},
		{directory.ErrLastAlias, "Нельзя удалить единственное название группы!"},
		{directory.ErrGroupNotFound, "Группа не найдена!"},
		{directory.ErrNoMembers, "Нужно указать хотя бы одного пользователя!"},
		{fmt.Errorf("deny: %w", access.ErrChatRestricted), textForbidden},
		{access.ErrChatNotConfigured, textForbidden},
		{access.ErrAdminOnly, textForbidden},
		{errorx.New(errorx.KindBusy, "busy"), textBusy},
		{errors.New("boom"), textSomethingWrong},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, errorText(tt.err), tt.err.Error())
	}
}

func TestFailureText(t *testing.T) {
	assert.Contains(t, failureText("add_alias", errUsage), "/add_alias group1 alias1")
	assert.Equal(t, "Группа не найдена!", failureText("members", directory.ErrGroupNotFound))
}

func TestNoticeText(t *testing.T) {
	assert.Equal(t, "Это чужой диалог!", noticeText(callback.NoticeForeign))
	assert.Equal(t, "Операция отменена!", noticeText(callback.NoticeCancelled))
	assert.Equal(t, "Эта группа пуста! Выберите другую.", noticeText(callback.NoticeEmptyGroup))
	assert.Equal(t, textSomethingWrong, noticeText(callback.NoticeMalformed))
}

func TestRetryAfter(t *testing.T) {
	floodErr := fmt.Errorf("telego: sendMessage(): api: %w", &telegoapi.Error{
		ErrorCode:   429,
		Description: "Too Many Requests: retry after 5",
		Parameters:  &telegoapi.ResponseParameters{RetryAfter: 5},
	})
	assert.Equal(t, 5, retryAfter(floodErr))

	assert.Zero(t, retryAfter(fmt.Errorf("api: %w", &telegoapi.Error{ErrorCode: 400, Description: "Bad Request"})))
	assert.Zero(t, retryAfter(&telegoapi.Error{ErrorCode: 429, Description: "Too Many Requests"}))
	assert.Zero(t, retryAfter(errors.New(`429 "Too Many Requests", retry after: 5`)), "only typed API errors are trusted")
}

func TestPickerKeyboard(t *testing.T) {
	markup := pickerKeyboard(callback.Offer{
		Cancel: "c",
		Choices: []callback.Choice{
			{Group: directory.Group{ID: 1, Aliases: []string{"a"}}, Token: "t1"},
			{Group: directory.Group{ID: 2, Aliases: []string{"b", "bee"}}, Token: "t2"},
		},
	})

	require.Len(t, markup.InlineKeyboard, 3)
	assert.Equal(t, cancelButtonText, markup.InlineKeyboard[0][0].Text)
	assert.Equal(t, "c", markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "a", markup.InlineKeyboard[1][0].Text)
	assert.Equal(t, "b (синонимы: bee)", markup.InlineKeyboard[2][0].Text)
	assert.Equal(t, "t2", markup.InlineKeyboard[2][0].CallbackData)
}

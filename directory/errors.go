package directory

import "git.skobk.in/skobkin/telegram-group-mention-bot/errorx"

// Rejections. They are terminal decisions and are never retried.
var (
	ErrInvalidGroupName  = errorx.New(errorx.KindValidation, "invalid group name")
	ErrInvalidMemberName = errorx.New(errorx.KindValidation, "invalid member name")
	ErrNoMembers         = errorx.New(errorx.KindValidation, "no members given")

	ErrGroupQuota  = errorx.New(errorx.KindQuota, "too many groups in chat")
	ErrAliasQuota  = errorx.New(errorx.KindQuota, "too many aliases for group")
	ErrMemberQuota = errorx.New(errorx.KindQuota, "too many members in group")

	ErrDuplicateAlias = errorx.New(errorx.KindConflict, "alias already used in chat")
	ErrGroupNotEmpty  = errorx.New(errorx.KindConflict, "group still has members")
	ErrLastAlias      = errorx.New(errorx.KindConflict, "cannot remove the only alias of a group")

	ErrGroupNotFound = errorx.New(errorx.KindNotFound, "group not found")
	ErrAliasNotFound = errorx.New(errorx.KindNotFound, "alias not found for group")
)

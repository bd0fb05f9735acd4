package storage

// Chat is a conversation the bot keeps a directory for.
type Chat struct {
	ID      int64 `gorm:"column:chat_id;primaryKey;autoIncrement:false"`
	Anarchy bool  `gorm:"column:is_anarchy_enabled;not null;default:false"`
}

func (Chat) TableName() string { return "chat" }

// Group has no name of its own, its aliases name it.
type Group struct {
	ID     int64 `gorm:"column:group_id;primaryKey"`
	ChatID int64 `gorm:"column:chat_id;not null;index"`
}

func (Group) TableName() string { return "chat_group" }

// GroupAlias is a name resolving to a group within one chat.
type GroupAlias struct {
	ID      int64  `gorm:"column:alias_id;primaryKey"`
	ChatID  int64  `gorm:"column:chat_id;not null;uniqueIndex:idx_chat_group_alias,priority:1"`
	GroupID int64  `gorm:"column:group_id;not null;index"`
	Name    string `gorm:"column:alias_name;size:200;not null;uniqueIndex:idx_chat_group_alias,priority:2"`
}

func (GroupAlias) TableName() string { return "chat_group_alias" }

// Member is a group participant. A member without UserID is referenced by
// its free-text handle only.
type Member struct {
	ID      int64  `gorm:"column:member_id;primaryKey"`
	GroupID int64  `gorm:"column:group_id;not null;uniqueIndex:idx_member,priority:1"`
	Name    string `gorm:"column:member_name;size:200;not null;uniqueIndex:idx_member,priority:2"`
	UserID  *int64 `gorm:"column:user_id"`
}

func (Member) TableName() string { return "member" }

// Mentionable reports whether the member can be rendered as a clickable mention.
func (m Member) Mentionable() bool {
	return m.UserID != nil
}

// Models lists every persisted model in migration order.
func Models() []any {
	return []any{&Chat{}, &Group{}, &GroupAlias{}, &Member{}}
}

// Package storage is the directory store: persisted chats, groups, aliases
// and members with raw point operations. It enforces no policy and holds no
// locks; callers pick the transaction boundary.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

type Storage struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

// WithContext returns a Storage whose statements run under ctx.
func (s *Storage) WithContext(ctx context.Context) *Storage {
	return &Storage{db: s.db.WithContext(ctx)}
}

// Transaction runs fn with a Storage bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Storage) Transaction(ctx context.Context, fn func(tx *Storage) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Storage{db: tx})
	})
}

// Exec runs a raw statement on the current session, e.g. a per-transaction
// lock timeout.
func (s *Storage) Exec(sql string, args ...any) error {
	if err := s.db.Exec(sql, args...).Error; err != nil {
		return fmt.Errorf("failed to execute statement: %w", err)
	}
	return nil
}

// UpsertChat inserts the chat row if it is absent.
func (s *Storage) UpsertChat(chatID int64) error {
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Chat{ID: chatID})
	if result.Error != nil {
		slog.Error("storage: Failed to upsert chat", "error", result.Error, "chat_id", chatID)
		return fmt.Errorf("failed to upsert chat: %w", result.Error)
	}
	return nil
}

// LockChat takes an exclusive row lock on the chat until the surrounding
// transaction ends. Requires a dialect with SELECT ... FOR UPDATE.
func (s *Storage) LockChat(chatID int64) error {
	var chat Chat
	result := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("chat_id = ?", chatID).
		Limit(1).
		Find(&chat)
	if result.Error != nil {
		return fmt.Errorf("failed to lock chat: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to lock chat %d: %w", chatID, ErrNotFound)
	}
	return nil
}

// GetChat returns the chat or nil when it has never been written to.
func (s *Storage) GetChat(chatID int64) (*Chat, error) {
	var chats []Chat
	result := s.db.Where("chat_id = ?", chatID).Limit(1).Find(&chats)
	if result.Error != nil {
		slog.Error("storage: Failed to get chat", "error", result.Error, "chat_id", chatID)
		return nil, fmt.Errorf("failed to get chat: %w", result.Error)
	}
	if len(chats) == 0 {
		return nil, nil
	}
	return &chats[0], nil
}

// SetAnarchy updates the anarchy flag of an existing chat.
func (s *Storage) SetAnarchy(chatID int64, enabled bool) error {
	result := s.db.Model(&Chat{}).Where("chat_id = ?", chatID).Update("is_anarchy_enabled", enabled)
	if result.Error != nil {
		slog.Error("storage: Failed to set anarchy", "error", result.Error, "chat_id", chatID)
		return fmt.Errorf("failed to set anarchy: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Some drivers report zero affected rows when the value is unchanged.
		chat, err := s.GetChat(chatID)
		if err != nil {
			return err
		}
		if chat == nil {
			return fmt.Errorf("failed to set anarchy for chat %d: %w", chatID, ErrNotFound)
		}
	}
	return nil
}

// FindAliasByName resolves an alias within a chat. It returns nil when the
// alias is unknown.
func (s *Storage) FindAliasByName(chatID int64, name string) (*GroupAlias, error) {
	var aliases []GroupAlias
	result := s.db.Where("chat_id = ? AND alias_name = ?", chatID, name).Limit(1).Find(&aliases)
	if result.Error != nil {
		slog.Error("storage: Failed to find alias", "error", result.Error, "chat_id", chatID, "name", name)
		return nil, fmt.Errorf("failed to find alias: %w", result.Error)
	}
	if len(aliases) == 0 {
		return nil, nil
	}
	return &aliases[0], nil
}

// ListAliasesByChat returns every alias of the chat, oldest first.
func (s *Storage) ListAliasesByChat(chatID int64) ([]GroupAlias, error) {
	var aliases []GroupAlias
	result := s.db.Where("chat_id = ?", chatID).Order("alias_id").Find(&aliases)
	if result.Error != nil {
		slog.Error("storage: Failed to list aliases by chat", "error", result.Error, "chat_id", chatID)
		return nil, fmt.Errorf("failed to list aliases by chat: %w", result.Error)
	}
	return aliases, nil
}

// ListAliasesByGroup returns the aliases of a group, oldest first. The first
// one is the canonical name.
func (s *Storage) ListAliasesByGroup(groupID int64) ([]GroupAlias, error) {
	var aliases []GroupAlias
	result := s.db.Where("group_id = ?", groupID).Order("alias_id").Find(&aliases)
	if result.Error != nil {
		slog.Error("storage: Failed to list aliases by group", "error", result.Error, "group_id", groupID)
		return nil, fmt.Errorf("failed to list aliases by group: %w", result.Error)
	}
	return aliases, nil
}

// ListMembers returns the members of a group in insertion order.
func (s *Storage) ListMembers(groupID int64) ([]Member, error) {
	var members []Member
	result := s.db.Where("group_id = ?", groupID).Order("member_id").Find(&members)
	if result.Error != nil {
		slog.Error("storage: Failed to list members", "error", result.Error, "group_id", groupID)
		return nil, fmt.Errorf("failed to list members: %w", result.Error)
	}
	return members, nil
}

// CreateGroup inserts a group row and returns its id. The caller must add
// the first alias in the same transaction.
func (s *Storage) CreateGroup(chatID int64) (int64, error) {
	group := Group{ChatID: chatID}
	result := s.db.Create(&group)
	if result.Error != nil {
		slog.Error("storage: Failed to create group", "error", result.Error, "chat_id", chatID)
		return 0, fmt.Errorf("failed to create group: %w", result.Error)
	}
	return group.ID, nil
}

func (s *Storage) CreateAlias(chatID, groupID int64, name string) error {
	alias := GroupAlias{ChatID: chatID, GroupID: groupID, Name: name}
	result := s.db.Create(&alias)
	if result.Error != nil {
		slog.Error("storage: Failed to create alias", "error", result.Error,
			"chat_id", chatID, "group_id", groupID, "name", name)
		return fmt.Errorf("failed to create alias: %w", result.Error)
	}
	return nil
}

func (s *Storage) DeleteAlias(aliasID int64) error {
	result := s.db.Delete(&GroupAlias{}, aliasID)
	if result.Error != nil {
		slog.Error("storage: Failed to delete alias", "error", result.Error, "alias_id", aliasID)
		return fmt.Errorf("failed to delete alias: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("failed to delete alias %d: %w", aliasID, ErrNotFound)
	}
	return nil
}

func (s *Storage) DeleteGroup(groupID int64) error {
	result := s.db.Delete(&Group{}, groupID)
	if result.Error != nil {
		slog.Error("storage: Failed to delete group", "error", result.Error, "group_id", groupID)
		return fmt.Errorf("failed to delete group: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("failed to delete group %d: %w", groupID, ErrNotFound)
	}
	return nil
}

// InsertMember adds a member unless one with the same name is already in
// the group. It reports whether a row was inserted.
func (s *Storage) InsertMember(groupID int64, member Member) (bool, error) {
	row := Member{GroupID: groupID, Name: member.Name, UserID: member.UserID}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		slog.Error("storage: Failed to insert member", "error", result.Error,
			"group_id", groupID, "name", member.Name)
		return false, fmt.Errorf("failed to insert member: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// DeleteMember removes a member by display name and reports whether it existed.
func (s *Storage) DeleteMember(groupID int64, name string) (bool, error) {
	result := s.db.Where("group_id = ? AND member_name = ?", groupID, name).Delete(&Member{})
	if result.Error != nil {
		slog.Error("storage: Failed to delete member", "error", result.Error,
			"group_id", groupID, "name", name)
		return false, fmt.Errorf("failed to delete member: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// DeleteUserFromChat removes every member carrying userID from the groups
// of a chat and returns how many rows went away.
func (s *Storage) DeleteUserFromChat(chatID, userID int64) (int64, error) {
	groups := s.db.Model(&Group{}).Select("group_id").Where("chat_id = ?", chatID)
	result := s.db.Where("user_id = ? AND group_id IN (?)", userID, groups).Delete(&Member{})
	if result.Error != nil {
		slog.Error("storage: Failed to delete user from chat", "error", result.Error,
			"chat_id", chatID, "user_id", userID)
		return 0, fmt.Errorf("failed to delete user from chat: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Package directory runs every check-then-write sequence on the group
// directory inside a chat-scoped, serialized transaction, so quota checks
// and the writes they guard are atomic per chat.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"git.skobk.in/skobkin/telegram-group-mention-bot/db"
	"git.skobk.in/skobkin/telegram-group-mention-bot/errorx"
	"git.skobk.in/skobkin/telegram-group-mention-bot/metrics"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

const DefaultLockTimeout = 5 * time.Second

// Group is a read view of a group: its id and aliases, oldest first.
type Group struct {
	ID      int64
	Aliases []string
}

// Canonical returns the oldest alias.
func (g Group) Canonical() string {
	return g.Aliases[0]
}

// Synonyms returns every alias but the canonical one.
func (g Group) Synonyms() []string {
	return g.Aliases[1:]
}

type Manager struct {
	store       *storage.Storage
	locker      Locker
	lockTimeout time.Duration
}

// NewManager returns a manager that bounds chat lock waits by lockTimeout.
func NewManager(store *storage.Storage, locker Locker, lockTimeout time.Duration) *Manager {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Manager{
		store:       store,
		locker:      locker,
		lockTimeout: lockTimeout,
	}
}

// write runs fn in a transaction holding the chat lock. The chat row exists
// when fn starts.
func (m *Manager) write(ctx context.Context, op string, chatID int64, fn func(tx *storage.Storage) error) error {
	started := time.Now()

	lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	release, err := m.locker.Acquire(lockCtx, chatID)
	cancel()
	if err != nil {
		// Only the lock wait bound makes the chat busy. A caller deadline
		// or cancellation is reported as is.
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = errorx.Wrapf(err, errorx.KindBusy, "%s: chat %d is busy", op, chatID)
		}
		return m.finish(op, chatID, err)
	}
	defer release()

	err = m.store.Transaction(ctx, func(tx *storage.Storage) error {
		if err := m.locker.Hold(tx, chatID); err != nil {
			return err
		}
		metrics.ObserveLockWait(op, time.Since(started))
		return fn(tx)
	})

	return m.finish(op, chatID, err)
}

// finish classifies the error of an operation and records its outcome.
func (m *Manager) finish(op string, chatID int64, err error) error {
	if err == nil {
		metrics.ObserveOperation(op, "ok")
		return nil
	}

	var classified *errorx.Error
	switch {
	case errors.As(err, &classified):
	case db.IsLockTimeout(err):
		err = errorx.Wrapf(err, errorx.KindBusy, "%s: chat %d is busy", op, chatID)
	default:
		err = errorx.Wrapf(err, errorx.KindInternal, "%s in chat %d", op, chatID)
	}

	kind := errorx.KindOf(err)
	metrics.ObserveOperation(op, kind.String())

	switch kind {
	case errorx.KindInternal:
		slog.Error("directory: Operation failed", "op", op, "chat_id", chatID, "error", err)
	case errorx.KindBusy:
		slog.Warn("directory: Chat lock wait timed out", "op", op, "chat_id", chatID, "error", err)
	default:
		slog.Info("directory: Operation rejected", "op", op, "chat_id", chatID, "kind", kind.String(), "error", err)
	}

	return err
}

// resolve finds the group an alias points to.
func resolve(tx *storage.Storage, chatID int64, name string) (int64, error) {
	alias, err := tx.FindAliasByName(chatID, name)
	if err != nil {
		return 0, err
	}
	if alias == nil {
		return 0, fmt.Errorf("%q: %w", name, ErrGroupNotFound)
	}
	return alias.GroupID, nil
}

// CreateGroup creates a group named by its first alias and returns its id.
func (m *Manager) CreateGroup(ctx context.Context, chatID int64, name string) (int64, error) {
	if err := ValidateGroupName(name); err != nil {
		return 0, m.finish("create_group", chatID, err)
	}

	var groupID int64
	err := m.write(ctx, "create_group", chatID, func(tx *storage.Storage) error {
		aliases, err := tx.ListAliasesByChat(chatID)
		if err != nil {
			return err
		}

		groups := make(map[int64]struct{}, len(aliases))
		for _, a := range aliases {
			if a.Name == name {
				return fmt.Errorf("%q: %w", name, ErrDuplicateAlias)
			}
			groups[a.GroupID] = struct{}{}
		}
		if len(groups) >= MaxGroupsPerChat {
			return fmt.Errorf("limit %d: %w", MaxGroupsPerChat, ErrGroupQuota)
		}

		groupID, err = tx.CreateGroup(chatID)
		if err != nil {
			return err
		}
		return tx.CreateAlias(chatID, groupID, name)
	})
	if err != nil {
		return 0, err
	}

	slog.Info("directory: Group created", "chat_id", chatID, "group_id", groupID, "name", name)
	return groupID, nil
}

// RemoveGroup deletes an empty group together with all of its aliases.
func (m *Manager) RemoveGroup(ctx context.Context, chatID int64, name string) error {
	return m.write(ctx, "remove_group", chatID, func(tx *storage.Storage) error {
		groupID, err := resolve(tx, chatID, name)
		if err != nil {
			return err
		}

		members, err := tx.ListMembers(groupID)
		if err != nil {
			return err
		}
		if len(members) > 0 {
			return fmt.Errorf("%q has %d members: %w", name, len(members), ErrGroupNotEmpty)
		}

		aliases, err := tx.ListAliasesByGroup(groupID)
		if err != nil {
			return err
		}
		for _, a := range aliases {
			if err := tx.DeleteAlias(a.ID); err != nil {
				return err
			}
		}
		if err := tx.DeleteGroup(groupID); err != nil {
			return err
		}

		slog.Info("directory: Group removed", "chat_id", chatID, "group_id", groupID, "aliases", len(aliases))
		return nil
	})
}

// AddAlias gives the group found by groupName one more name.
func (m *Manager) AddAlias(ctx context.Context, chatID int64, groupName, alias string) error {
	if err := ValidateGroupName(alias); err != nil {
		return m.finish("add_alias", chatID, err)
	}

	return m.write(ctx, "add_alias", chatID, func(tx *storage.Storage) error {
		groupID, err := resolve(tx, chatID, groupName)
		if err != nil {
			return err
		}

		aliases, err := tx.ListAliasesByChat(chatID)
		if err != nil {
			return err
		}

		count := 0
		for _, a := range aliases {
			if a.Name == alias {
				return fmt.Errorf("%q: %w", alias, ErrDuplicateAlias)
			}
			if a.GroupID == groupID {
				count++
			}
		}
		if count >= MaxAliasesPerGroup {
			return fmt.Errorf("limit %d: %w", MaxAliasesPerGroup, ErrAliasQuota)
		}

		if err := tx.CreateAlias(chatID, groupID, alias); err != nil {
			return err
		}

		slog.Info("directory: Alias added", "chat_id", chatID, "group_id", groupID, "alias", alias)
		return nil
	})
}

// RemoveAlias drops one alias of a group. The last alias of a group can
// only go away with RemoveGroup.
func (m *Manager) RemoveAlias(ctx context.Context, chatID int64, groupName, alias string) error {
	return m.write(ctx, "remove_alias", chatID, func(tx *storage.Storage) error {
		groupID, err := resolve(tx, chatID, groupName)
		if err != nil {
			return err
		}

		aliases, err := tx.ListAliasesByGroup(groupID)
		if err != nil {
			return err
		}

		var target *storage.GroupAlias
		for i := range aliases {
			if aliases[i].Name == alias {
				target = &aliases[i]
				break
			}
		}
		if target == nil {
			return fmt.Errorf("%q of %q: %w", alias, groupName, ErrAliasNotFound)
		}
		if len(aliases) == 1 {
			return fmt.Errorf("%q: %w", alias, ErrLastAlias)
		}

		if err := tx.DeleteAlias(target.ID); err != nil {
			return err
		}

		slog.Info("directory: Alias removed", "chat_id", chatID, "group_id", groupID, "alias", alias)
		return nil
	})
}

// AddMembers inserts a batch of members and returns how many were new. The
// quota check covers the whole batch: either it fits or nothing is written.
// Names already in the group are skipped silently.
func (m *Manager) AddMembers(ctx context.Context, chatID int64, groupName string, members []storage.Member) (int, error) {
	if err := ValidateMembers(members); err != nil {
		return 0, m.finish("add_members", chatID, err)
	}

	added := 0
	err := m.write(ctx, "add_members", chatID, func(tx *storage.Storage) error {
		groupID, err := resolve(tx, chatID, groupName)
		if err != nil {
			return err
		}

		existing, err := tx.ListMembers(groupID)
		if err != nil {
			return err
		}
		if len(existing)+len(members) > MaxMembersPerGroup {
			return fmt.Errorf("%d present, %d requested, limit %d: %w",
				len(existing), len(members), MaxMembersPerGroup, ErrMemberQuota)
		}

		for _, member := range members {
			inserted, err := tx.InsertMember(groupID, member)
			if err != nil {
				return err
			}
			if inserted {
				added++
			}
		}

		slog.Info("directory: Members added", "chat_id", chatID, "group_id", groupID,
			"requested", len(members), "added", added)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// RemoveMembers deletes members by display name and returns how many were
// present. Unknown names are not an error.
func (m *Manager) RemoveMembers(ctx context.Context, chatID int64, groupName string, names []string) (int, error) {
	removed := 0
	err := m.write(ctx, "remove_members", chatID, func(tx *storage.Storage) error {
		groupID, err := resolve(tx, chatID, groupName)
		if err != nil {
			return err
		}

		for _, name := range names {
			deleted, err := tx.DeleteMember(groupID, name)
			if err != nil {
				return err
			}
			if deleted {
				removed++
			}
		}

		slog.Info("directory: Members removed", "chat_id", chatID, "group_id", groupID,
			"requested", len(names), "removed", removed)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// RemoveUserFromChat drops a platform user from every group of the chat,
// e.g. after the user left the chat.
func (m *Manager) RemoveUserFromChat(ctx context.Context, chatID, userID int64) (int64, error) {
	var removed int64
	err := m.write(ctx, "remove_user", chatID, func(tx *storage.Storage) error {
		var err error
		removed, err = tx.DeleteUserFromChat(chatID, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		slog.Info("directory: User removed from chat groups", "chat_id", chatID, "user_id", userID, "removed", removed)
	}
	return removed, nil
}

// SetAnarchy toggles WRITE capability for non-admins of the chat.
func (m *Manager) SetAnarchy(ctx context.Context, chatID int64, enabled bool) error {
	return m.write(ctx, "set_anarchy", chatID, func(tx *storage.Storage) error {
		if err := tx.SetAnarchy(chatID, enabled); err != nil {
			return err
		}
		slog.Info("directory: Anarchy changed", "chat_id", chatID, "enabled", enabled)
		return nil
	})
}

// read wraps a lock-free query. Its result may already be superseded by a
// concurrent write in the same chat.
func (m *Manager) read(op string, chatID int64, err error) error {
	if err == nil {
		return nil
	}
	return m.finish(op, chatID, err)
}

// Chat returns the chat row or nil when the chat has never been written to.
func (m *Manager) Chat(ctx context.Context, chatID int64) (*storage.Chat, error) {
	chat, err := m.store.WithContext(ctx).GetChat(chatID)
	return chat, m.read("get_chat", chatID, err)
}

// Groups lists the groups of a chat ordered by creation.
func (m *Manager) Groups(ctx context.Context, chatID int64) ([]Group, error) {
	aliases, err := m.store.WithContext(ctx).ListAliasesByChat(chatID)
	if err != nil {
		return nil, m.read("list_groups", chatID, err)
	}
	return groupAliases(aliases), nil
}

// groupAliases folds aliases ordered by id into groups ordered by id.
func groupAliases(aliases []storage.GroupAlias) []Group {
	index := make(map[int64]int)
	var groups []Group
	for _, a := range aliases {
		i, ok := index[a.GroupID]
		if !ok {
			i = len(groups)
			index[a.GroupID] = i
			groups = append(groups, Group{ID: a.GroupID})
		}
		groups[i].Aliases = append(groups[i].Aliases, a.Name)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}

// Members lists the members of the group an alias points to.
func (m *Manager) Members(ctx context.Context, chatID int64, groupName string) ([]storage.Member, error) {
	store := m.store.WithContext(ctx)

	groupID, err := resolve(store, chatID, groupName)
	if err != nil {
		return nil, m.read("list_members", chatID, err)
	}

	members, err := store.ListMembers(groupID)
	return members, m.read("list_members", chatID, err)
}

// GroupMembers lists the members of a group by id. Groups of other chats
// are reported as not found.
func (m *Manager) GroupMembers(ctx context.Context, chatID, groupID int64) ([]storage.Member, error) {
	store := m.store.WithContext(ctx)

	aliases, err := store.ListAliasesByGroup(groupID)
	if err != nil {
		return nil, m.read("group_members", chatID, err)
	}
	if len(aliases) == 0 || aliases[0].ChatID != chatID {
		return nil, m.read("group_members", chatID, fmt.Errorf("group %d: %w", groupID, ErrGroupNotFound))
	}

	members, err := store.ListMembers(groupID)
	return members, m.read("group_members", chatID, err)
}

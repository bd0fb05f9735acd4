package directory

import (
	"context"
	"sync"
	"time"

	"git.skobk.in/skobkin/telegram-group-mention-bot/db"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

// Locker makes the chat the unit of serialization for writes.
type Locker interface {
	// Acquire runs before the transaction begins. It blocks until the chat
	// may be written or ctx is done.
	Acquire(ctx context.Context, chatID int64) (release func(), err error)
	// Hold runs first inside the transaction. It leaves the chat row present
	// and exclusively held by tx until commit or rollback.
	Hold(tx *storage.Storage, chatID int64) error
}

// NewLocker picks the row lock when the dialect has one and an in-process
// keyed lock otherwise.
func NewLocker(dialect db.Dialect, timeout time.Duration) Locker {
	if dialect.SupportsRowLocks() {
		return &RowLocker{timeoutStatement: db.LockTimeoutStatement(dialect, timeout)}
	}
	return NewKeyedLocker()
}

// RowLocker locks the chat row with SELECT ... FOR UPDATE.
type RowLocker struct {
	timeoutStatement string
}

func (l *RowLocker) Acquire(context.Context, int64) (func(), error) {
	return func() {}, nil
}

func (l *RowLocker) Hold(tx *storage.Storage, chatID int64) error {
	if l.timeoutStatement != "" {
		if err := tx.Exec(l.timeoutStatement); err != nil {
			return err
		}
	}
	if err := tx.UpsertChat(chatID); err != nil {
		return err
	}
	return tx.LockChat(chatID)
}

// KeyedLocker serializes writers per chat inside one process. It is used
// with SQLite, which has no row locks and a single writer per database file.
type KeyedLocker struct {
	mu    sync.Mutex
	chats map[int64]*chatSlot
}

type chatSlot struct {
	held chan struct{}
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{chats: make(map[int64]*chatSlot)}
}

func (l *KeyedLocker) Acquire(ctx context.Context, chatID int64) (func(), error) {
	l.mu.Lock()
	slot, ok := l.chats[chatID]
	if !ok {
		slot = &chatSlot{held: make(chan struct{}, 1)}
		l.chats[chatID] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.held <- struct{}{}:
		return func() {
			<-slot.held
			l.forget(chatID, slot)
		}, nil
	case <-ctx.Done():
		l.forget(chatID, slot)
		return nil, ctx.Err()
	}
}

func (l *KeyedLocker) Hold(tx *storage.Storage, chatID int64) error {
	return tx.UpsertChat(chatID)
}

func (l *KeyedLocker) forget(chatID int64, slot *chatSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.chats, chatID)
	}
}

func (l *KeyedLocker) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chats)
}

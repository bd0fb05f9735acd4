package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.skobk.in/skobkin/telegram-group-mention-bot/errorx"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

type chatTable struct {
	chats map[int64]*storage.Chat
	err   error
	reads int
}

func (c *chatTable) Chat(_ context.Context, chatID int64) (*storage.Chat, error) {
	c.reads++
	if c.err != nil {
		return nil, c.err
	}
	return c.chats[chatID], nil
}

func TestCheck(t *testing.T) {
	table := &chatTable{chats: map[int64]*storage.Chat{
		1: {ID: 1, Anarchy: true},
		2: {ID: 2, Anarchy: false},
	}}
	engine := NewEngine(table)

	tests := []struct {
		name   string
		req    Request
		reason error
	}{
		{"private chat allows settings", Request{ChatID: 3, Private: true, Capability: ChangeSettings}, nil},
		{"admin allows write", Request{ChatID: 3, Admin: true, Capability: Write}, nil},
		{"admin allows settings", Request{ChatID: 2, Admin: true, Capability: ChangeSettings}, nil},
		{"read is open", Request{ChatID: 3, Capability: Read}, nil},
		{"write with anarchy", Request{ChatID: 1, Capability: Write}, nil},
		{"write in restricted chat", Request{ChatID: 2, Capability: Write}, ErrChatRestricted},
		{"write in unknown chat", Request{ChatID: 3, Capability: Write}, ErrChatNotConfigured},
		{"settings with anarchy", Request{ChatID: 1, Capability: ChangeSettings}, ErrAdminOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Check(context.Background(), tt.req)
			if tt.reason == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.reason)
			assert.Equal(t, errorx.KindAuthorization, errorx.KindOf(err))
		})
	}
}

func TestCheckSkipsStoreWhenNotNeeded(t *testing.T) {
	table := &chatTable{}
	engine := NewEngine(table)

	for _, req := range []Request{
		{ChatID: 1, Private: true, Capability: Write},
		{ChatID: 1, Admin: true, Capability: Write},
		{ChatID: 1, Capability: Read},
		{ChatID: 1, Capability: ChangeSettings},
	} {
		_ = engine.Check(context.Background(), req)
	}

	assert.Zero(t, table.reads)
}

func TestCheckUnknownCapability(t *testing.T) {
	engine := NewEngine(&chatTable{})

	err := engine.Check(context.Background(), Request{ChatID: 1, Capability: Capability(42)})
	require.Error(t, err)
	assert.Equal(t, errorx.KindInternal, errorx.KindOf(err))
	assert.Contains(t, err.Error(), "capability(42)")
}

func TestCheckStoreFailure(t *testing.T) {
	failure := errorx.New(errorx.KindBusy, "chat is busy")
	engine := NewEngine(&chatTable{err: failure})

	err := engine.Check(context.Background(), Request{ChatID: 1, Capability: Write})
	assert.True(t, errors.Is(err, failure))
	assert.Equal(t, errorx.KindBusy, errorx.KindOf(err))
}

// Package access decides whether an actor may use a capability in a chat.
package access

import (
	"context"
	"fmt"
	"log/slog"

	"git.skobk.in/skobkin/telegram-group-mention-bot/errorx"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

type Capability uint8

const (
	Read Capability = iota + 1
	Write
	ChangeSettings
)

func (c Capability) String() string {
	switch c {
	case Read:
		return "read"
	case Write:
		return "write"
	case ChangeSettings:
		return "change_settings"
	}
	return fmt.Sprintf("capability(%d)", uint8(c))
}

// Denial reasons. Users see the same message for all of them.
var (
	ErrChatNotConfigured = errorx.New(errorx.KindAuthorization, "anarchy was never enabled in chat")
	ErrChatRestricted    = errorx.New(errorx.KindAuthorization, "chat is restricted to administrators")
	ErrAdminOnly         = errorx.New(errorx.KindAuthorization, "only administrators may change settings")
)

// Request describes who asks for what. Admin is true for the chat creator
// and administrators.
type Request struct {
	ChatID     int64
	ActorID    int64
	Private    bool
	Admin      bool
	Capability Capability
}

// ChatReader looks up the chat row. A nil chat means the chat has never
// been written to.
type ChatReader interface {
	Chat(ctx context.Context, chatID int64) (*storage.Chat, error)
}

type Engine struct {
	chats ChatReader
}

func NewEngine(chats ChatReader) *Engine {
	return &Engine{chats: chats}
}

// Check returns nil when the request is allowed. Denials are
// errorx.KindAuthorization errors wrapping one of the reason sentinels.
func (e *Engine) Check(ctx context.Context, req Request) error {
	if req.Private || req.Admin {
		return nil
	}

	switch req.Capability {
	case Read:
		return nil
	case Write:
		chat, err := e.chats.Chat(ctx, req.ChatID)
		if err != nil {
			return fmt.Errorf("failed to read chat %d settings: %w", req.ChatID, err)
		}
		if chat == nil {
			return e.deny(req, ErrChatNotConfigured)
		}
		if !chat.Anarchy {
			return e.deny(req, ErrChatRestricted)
		}
		return nil
	case ChangeSettings:
		return e.deny(req, ErrAdminOnly)
	}

	slog.Error("access: Unknown capability requested", "capability", req.Capability, "chat_id", req.ChatID)
	return errorx.New(errorx.KindInternal, fmt.Sprintf("unknown capability %s", req.Capability))
}

func (e *Engine) deny(req Request, reason error) error {
	slog.Info("access: Request denied",
		"chat_id", req.ChatID,
		"actor_id", req.ActorID,
		"capability", req.Capability.String(),
		"reason", reason,
	)
	return fmt.Errorf("%s for user %d: %w", req.Capability, req.ActorID, reason)
}

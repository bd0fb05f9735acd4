package callback

import (
	"context"
	"log/slog"

	"git.skobk.in/skobkin/telegram-group-mention-bot/directory"
	"git.skobk.in/skobkin/telegram-group-mention-bot/errorx"
	"git.skobk.in/skobkin/telegram-group-mention-bot/metrics"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

// Notice is what the requester is told about a callback.
type Notice uint8

const (
	NoticeMalformed Notice = iota + 1
	NoticeForeign
	NoticeCancelled
	NoticeEmptyGroup
	NoticeGroupGone
)

// Control is the picker message a callback came from.
type Control interface {
	// Alert shows a notice to the requester only and leaves the control as is.
	Alert(ctx context.Context, notice Notice) error
	// Dismiss removes the control and acknowledges the callback.
	Dismiss(ctx context.Context, notice Notice) error
	// Resolve replaces the control with the mentions of members.
	Resolve(ctx context.Context, members []storage.Member) error
}

type Outcome uint8

const (
	OutcomeMalformed Outcome = iota + 1
	OutcomeForeign
	OutcomeCancelled
	OutcomeEmptyGroup
	OutcomeGroupGone
	OutcomeResolved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMalformed:
		return "malformed"
	case OutcomeForeign:
		return "foreign"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeEmptyGroup:
		return "empty_group"
	case OutcomeGroupGone:
		return "group_gone"
	case OutcomeResolved:
		return "resolved"
	}
	return "failed"
}

// MemberSource returns the members of a group of a chat. Groups of other
// chats are errorx.KindNotFound.
type MemberSource interface {
	GroupMembers(ctx context.Context, chatID, groupID int64) ([]storage.Member, error)
}

// Choice is one selectable group of an offer.
type Choice struct {
	Group directory.Group
	Token string
}

// Offer is the content of a picker control.
type Offer struct {
	Cancel  string
	Choices []Choice
}

// Request is a callback as received from the platform.
type Request struct {
	ChatID  int64
	ActorID int64
	Data    string
}

type Picker struct {
	codec   *Codec
	members MemberSource
}

func NewPicker(codec *Codec, members MemberSource) *Picker {
	return &Picker{codec: codec, members: members}
}

// Offer mints the tokens for a picker shown to actorID in chatID.
func (p *Picker) Offer(chatID, actorID int64, groups []directory.Group) (Offer, error) {
	cancel, err := p.codec.Encode(Token{Kind: KindCancel, ChatID: chatID, ActorID: actorID})
	if err != nil {
		return Offer{}, err
	}

	offer := Offer{Cancel: cancel, Choices: make([]Choice, 0, len(groups))}
	for _, g := range groups {
		token, err := p.codec.Encode(Token{Kind: KindSelectGroup, ChatID: chatID, ActorID: actorID, GroupID: g.ID})
		if err != nil {
			return Offer{}, err
		}
		offer.Choices = append(offer.Choices, Choice{Group: g, Token: token})
	}

	return offer, nil
}

// Handle validates a callback and applies it to ctl. Errors are returned
// only for failures of ctl or the member source.
func (p *Picker) Handle(ctx context.Context, req Request, ctl Control) (Outcome, error) {
	outcome, err := p.handle(ctx, req, ctl)
	if err != nil {
		metrics.ObserveCallback("failed")
		return outcome, err
	}
	metrics.ObserveCallback(outcome.String())
	return outcome, nil
}

func (p *Picker) handle(ctx context.Context, req Request, ctl Control) (Outcome, error) {
	token, err := p.codec.Decode(req.Data)
	if err != nil {
		slog.Info("callback: Malformed token", "chat_id", req.ChatID, "actor_id", req.ActorID, "error", err)
		return OutcomeMalformed, ctl.Dismiss(ctx, NoticeMalformed)
	}

	if token.ActorID != req.ActorID || (token.ChatID != 0 && token.ChatID != req.ChatID) {
		slog.Info("callback: Foreign token",
			"chat_id", req.ChatID, "actor_id", req.ActorID,
			"token_chat_id", token.ChatID, "token_actor_id", token.ActorID,
		)
		return OutcomeForeign, ctl.Alert(ctx, NoticeForeign)
	}

	switch token.Kind {
	case KindCancel:
		return OutcomeCancelled, ctl.Dismiss(ctx, NoticeCancelled)
	case KindSelectGroup:
		members, err := p.members.GroupMembers(ctx, req.ChatID, token.GroupID)
		if errorx.Is(err, errorx.KindNotFound) {
			return OutcomeGroupGone, ctl.Alert(ctx, NoticeGroupGone)
		}
		if err != nil {
			return 0, err
		}
		if len(members) == 0 {
			return OutcomeEmptyGroup, ctl.Alert(ctx, NoticeEmptyGroup)
		}
		return OutcomeResolved, ctl.Resolve(ctx, members)
	}

	// Decode accepts known kinds only.
	return OutcomeMalformed, ctl.Dismiss(ctx, NoticeMalformed)
}

package callback

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.skobk.in/skobkin/telegram-group-mention-bot/directory"
	"git.skobk.in/skobkin/telegram-group-mention-bot/errorx"
	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

type recordedControl struct {
	alerts    []Notice
	dismissed []Notice
	resolved  [][]storage.Member
}

func (c *recordedControl) Alert(_ context.Context, n Notice) error {
	c.alerts = append(c.alerts, n)
	return nil
}

func (c *recordedControl) Dismiss(_ context.Context, n Notice) error {
	c.dismissed = append(c.dismissed, n)
	return nil
}

func (c *recordedControl) Resolve(_ context.Context, members []storage.Member) error {
	c.resolved = append(c.resolved, members)
	return nil
}

func (c *recordedControl) untouched() bool {
	return len(c.dismissed) == 0 && len(c.resolved) == 0
}

// groupTable maps chat id to group id to members.
type groupTable map[int64]map[int64][]storage.Member

func (g groupTable) GroupMembers(_ context.Context, chatID, groupID int64) ([]storage.Member, error) {
	members, ok := g[chatID][groupID]
	if !ok {
		return nil, fmt.Errorf("group %d: %w", groupID, directory.ErrGroupNotFound)
	}
	return members, nil
}

var testGroups = []directory.Group{
	{ID: 1, Aliases: []string{"a"}},
	{ID: 2, Aliases: []string{"b", "bee"}},
}

func newTestPicker() (*Picker, groupTable) {
	table := groupTable{
		5: {
			1: {{Name: "@alice"}},
			2: nil,
		},
	}
	return NewPicker(NewCodec("s3cret"), table), table
}

func TestOffer(t *testing.T) {
	picker, _ := newTestPicker()

	offer, err := picker.Offer(5, 42, testGroups)
	require.NoError(t, err)
	require.Len(t, offer.Choices, 2)

	cancel, err := picker.codec.Decode(offer.Cancel)
	require.NoError(t, err)
	assert.Equal(t, Token{Kind: KindCancel, ChatID: 5, ActorID: 42}, cancel)

	for i, choice := range offer.Choices {
		assert.Equal(t, testGroups[i], choice.Group)
		tok, err := picker.codec.Decode(choice.Token)
		require.NoError(t, err)
		assert.Equal(t, Token{Kind: KindSelectGroup, ChatID: 5, ActorID: 42, GroupID: testGroups[i].ID}, tok)
	}
}

func TestHandleEmptyGroupThenResolve(t *testing.T) {
	picker, _ := newTestPicker()
	ctx := context.Background()

	offer, err := picker.Offer(5, 42, testGroups)
	require.NoError(t, err)

	ctl := &recordedControl{}

	outcome, err := picker.Handle(ctx, Request{ChatID: 5, ActorID: 42, Data: offer.Choices[1].Token}, ctl)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEmptyGroup, outcome)
	assert.Equal(t, []Notice{NoticeEmptyGroup}, ctl.alerts)
	assert.True(t, ctl.untouched())

	outcome, err = picker.Handle(ctx, Request{ChatID: 5, ActorID: 42, Data: offer.Choices[0].Token}, ctl)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, outcome)
	require.Len(t, ctl.resolved, 1)
	assert.Equal(t, "@alice", ctl.resolved[0][0].Name)
}

func TestHandleCancel(t *testing.T) {
	picker, _ := newTestPicker()

	offer, err := picker.Offer(5, 42, testGroups)
	require.NoError(t, err)

	ctl := &recordedControl{}
	outcome, err := picker.Handle(context.Background(), Request{ChatID: 5, ActorID: 42, Data: offer.Cancel}, ctl)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, outcome)
	assert.Equal(t, []Notice{NoticeCancelled}, ctl.dismissed)
	assert.Empty(t, ctl.alerts)
}

func TestHandleForeignRequester(t *testing.T) {
	picker, _ := newTestPicker()

	offer, err := picker.Offer(5, 42, testGroups)
	require.NoError(t, err)

	requests := map[string]Request{
		"other actor": {ChatID: 5, ActorID: 43, Data: offer.Choices[0].Token},
		"other chat":  {ChatID: 6, ActorID: 42, Data: offer.Choices[0].Token},
		"cancel":      {ChatID: 5, ActorID: 43, Data: offer.Cancel},
	}

	for name, req := range requests {
		t.Run(name, func(t *testing.T) {
			ctl := &recordedControl{}
			outcome, err := picker.Handle(context.Background(), req, ctl)
			require.NoError(t, err)
			assert.Equal(t, OutcomeForeign, outcome)
			assert.Equal(t, []Notice{NoticeForeign}, ctl.alerts)
			assert.True(t, ctl.untouched())
		})
	}
}

func TestHandleMalformed(t *testing.T) {
	picker, _ := newTestPicker()

	ctl := &recordedControl{}
	outcome, err := picker.Handle(context.Background(), Request{ChatID: 5, ActorID: 42, Data: "garbage"}, ctl)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMalformed, outcome)
	assert.Equal(t, []Notice{NoticeMalformed}, ctl.dismissed)
	assert.Empty(t, ctl.alerts)
}

func TestHandleGroupGone(t *testing.T) {
	picker, table := newTestPicker()

	offer, err := picker.Offer(5, 42, testGroups)
	require.NoError(t, err)
	delete(table[5], 1)

	ctl := &recordedControl{}
	outcome, err := picker.Handle(context.Background(), Request{ChatID: 5, ActorID: 42, Data: offer.Choices[0].Token}, ctl)
	require.NoError(t, err)
	assert.Equal(t, OutcomeGroupGone, outcome)
	assert.Equal(t, []Notice{NoticeGroupGone}, ctl.alerts)
	assert.True(t, ctl.untouched())
}

type brokenSource struct{}

func (brokenSource) GroupMembers(context.Context, int64, int64) ([]storage.Member, error) {
	return nil, errorx.New(errorx.KindBusy, "chat is busy")
}

func TestHandleSourceFailure(t *testing.T) {
	picker := NewPicker(NewCodec(""), brokenSource{})

	offer, err := picker.Offer(5, 42, testGroups)
	require.NoError(t, err)

	ctl := &recordedControl{}
	_, err = picker.Handle(context.Background(), Request{ChatID: 5, ActorID: 42, Data: offer.Choices[0].Token}, ctl)
	assert.Equal(t, errorx.KindBusy, errorx.KindOf(err))
	assert.True(t, ctl.untouched())
	assert.Empty(t, ctl.alerts)
}

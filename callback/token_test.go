package callback

import (
	"encoding/ascii85"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.skobk.in/skobkin/telegram-group-mention-bot/errorx"
)

func encodeRaw(b []byte) string {
	out := make([]byte, ascii85.MaxEncodedLen(len(b)))
	return string(out[:ascii85.Encode(out, b)])
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := []Token{
		{Kind: KindCancel},
		{Kind: KindCancel, ActorID: 42},
		{Kind: KindCancel, ChatID: -1001234567890, ActorID: 7123456789},
		{Kind: KindSelectGroup, GroupID: 1},
		{Kind: KindSelectGroup, ChatID: 5, ActorID: 42, GroupID: 17},
		{Kind: KindSelectGroup, ChatID: math.MinInt64, ActorID: math.MaxInt64, GroupID: math.MaxInt64},
	}

	for _, secret := range []string{"", "s3cret"} {
		codec := NewCodec(secret)
		for _, tok := range tokens {
			data, err := codec.Encode(tok)
			require.NoError(t, err, "%+v", tok)
			assert.LessOrEqual(t, len(data), MaxTokenLength)

			decoded, err := codec.Decode(data)
			require.NoError(t, err, "%+v", tok)
			assert.Equal(t, tok, decoded)
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	codec := NewCodec("s3cret")
	tok := Token{Kind: KindSelectGroup, ChatID: 5, ActorID: 42, GroupID: 3}

	a, err := codec.Encode(tok)
	require.NoError(t, err)
	b, err := codec.Encode(tok)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestZeroFieldsAreOmitted(t *testing.T) {
	codec := NewCodec("")

	short, err := codec.Encode(Token{Kind: KindCancel})
	require.NoError(t, err)
	long, err := codec.Encode(Token{Kind: KindCancel, ActorID: 42})
	require.NoError(t, err)

	// {1: 1} is three bytes of CBOR.
	assert.Equal(t, encodeRaw([]byte{0xa1, 0x01, 0x01}), short)
	assert.Greater(t, len(long), len(short))
}

func TestEncodeRejectsUnrepresentableTokens(t *testing.T) {
	codec := NewCodec("")

	for _, tok := range []Token{
		{},
		{Kind: Kind(9), GroupID: 1},
		{Kind: KindSelectGroup},
		{Kind: KindCancel, GroupID: 3},
	} {
		_, err := codec.Encode(tok)
		assert.Equal(t, errorx.KindInternal, errorx.KindOf(err), "%+v", tok)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	codec := NewCodec("")

	valid, err := codec.Encode(Token{Kind: KindSelectGroup, ActorID: 42, GroupID: 3})
	require.NoError(t, err)

	inputs := map[string]string{
		"empty":             "",
		"not ascii85":       "~~~~",
		"too long":          string(make([]byte, MaxTokenLength+1)),
		"plain text":        "hello",
		"whitespace inside": valid[:2] + " " + valid[2:],
		"truncated":         valid[:len(valid)-1],
		"cbor array":        encodeRaw([]byte{0x82, 0x01, 0x02}),
		"unknown kind":      encodeRaw([]byte{0xa1, 0x01, 0x09}),
		"missing group":     encodeRaw([]byte{0xa1, 0x01, 0x02}),
		"unknown field":     encodeRaw([]byte{0xa2, 0x01, 0x01, 0x09, 0x01}),
		"duplicate key":     encodeRaw([]byte{0xa2, 0x01, 0x01, 0x01, 0x01}),
		"explicit zero":     encodeRaw([]byte{0xa2, 0x01, 0x01, 0x03, 0x00}),
		"unsorted keys":     encodeRaw([]byte{0xa2, 0x03, 0x18, 0x2a, 0x01, 0x01}),
		"long int form":     encodeRaw([]byte{0xa1, 0x01, 0x18, 0x01}),
		"trailing bytes":    encodeRaw([]byte{0xa1, 0x01, 0x01, 0x00}),
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			tok, err := codec.Decode(input)
			assert.ErrorIs(t, err, ErrMalformedToken)
			assert.Equal(t, errorx.KindMalformedToken, errorx.KindOf(err))
			assert.Equal(t, Token{}, tok)
		})
	}
}

func TestDecodeChecksTag(t *testing.T) {
	signer := NewCodec("s3cret")
	tok := Token{Kind: KindSelectGroup, ChatID: 5, ActorID: 42, GroupID: 3}

	data, err := signer.Encode(tok)
	require.NoError(t, err)

	t.Run("other secret", func(t *testing.T) {
		_, err := NewCodec("other").Decode(data)
		assert.ErrorIs(t, err, ErrMalformedToken)
	})

	t.Run("untagged token", func(t *testing.T) {
		plain, err := NewCodec("").Encode(tok)
		require.NoError(t, err)
		_, err = signer.Decode(plain)
		assert.ErrorIs(t, err, ErrMalformedToken)
	})

	t.Run("tampered payload", func(t *testing.T) {
		raw := make([]byte, 4*len(data))
		n, _, err := ascii85.Decode(raw, []byte(data), true)
		require.NoError(t, err)
		raw = raw[:n]

		// Last payload byte is the group id.
		raw[n-tagSize-1] = 0x04
		_, err = signer.Decode(encodeRaw(raw))
		assert.ErrorIs(t, err, ErrMalformedToken)
	})

	t.Run("tagged token without secret", func(t *testing.T) {
		_, err := NewCodec("").Decode(data)
		assert.ErrorIs(t, err, ErrMalformedToken)
	})
}

func TestLargestTokenFits(t *testing.T) {
	codec := NewCodec("s3cret")

	data, err := codec.Encode(Token{
		Kind:    KindSelectGroup,
		ChatID:  math.MinInt64,
		ActorID: math.MaxInt64,
		GroupID: math.MaxInt64,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), MaxTokenLength)
}

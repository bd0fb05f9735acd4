// Package callback carries picker intent through inline button payloads and
// drives the group picker dialog.
package callback

import (
	"bytes"
	"crypto/subtle"
	"encoding/ascii85"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"git.skobk.in/skobkin/telegram-group-mention-bot/errorx"
)

// MaxTokenLength is the Bot API limit for callback_data.
const MaxTokenLength = 64

const tagSize = 8

type Kind uint8

const (
	KindCancel Kind = iota + 1
	KindSelectGroup
)

func (k Kind) String() string {
	switch k {
	case KindCancel:
		return "cancel"
	case KindSelectGroup:
		return "select_group"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Token is the payload of one picker button. Zero fields are left out of
// the encoded form.
type Token struct {
	Kind    Kind  `cbor:"1,keyasint"`
	ChatID  int64 `cbor:"2,keyasint,omitempty"`
	ActorID int64 `cbor:"3,keyasint,omitempty"`
	GroupID int64 `cbor:"4,keyasint,omitempty"`
}

func (t Token) validate() error {
	switch t.Kind {
	case KindCancel:
		if t.GroupID != 0 {
			return errors.New("cancel token carries a group")
		}
	case KindSelectGroup:
		if t.GroupID <= 0 {
			return errors.New("select token without a group")
		}
	default:
		return fmt.Errorf("unknown token %s", t.Kind)
	}
	return nil
}

var ErrMalformedToken = errorx.New(errorx.KindMalformedToken, "malformed callback token")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("callback: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("callback: CBOR decoder initialization failed: " + err.Error())
	}
}

// tagDomainKey separates token tags from any other use of the secret.
var tagDomainKey = [32]byte{
	'm', 'e', 'n', 't', 'i', 'o', 'n', 'b', 'o', 't', '.', 'c', 'a', 'l', 'l', 'b',
	'a', 'c', 'k', '.', 't', 'a', 'g', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Codec turns tokens into callback_data strings and back. With a secret,
// every token carries a keyed BLAKE3 tag and tokens not minted with the
// same secret fail to decode.
type Codec struct {
	key []byte
}

func NewCodec(secret string) *Codec {
	if secret == "" {
		return &Codec{}
	}
	key := keyedSum(tagDomainKey[:], []byte(secret))
	return &Codec{key: key}
}

func keyedSum(key, data []byte) []byte {
	hasher, err := blake3.NewKeyed(key)
	if err != nil {
		panic("callback: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = hasher.Write(data)
	return hasher.Sum(nil)
}

func (c *Codec) tag(payload []byte) []byte {
	return keyedSum(c.key, payload)[:tagSize]
}

// Encode returns the printable form of t.
func (c *Codec) Encode(t Token) (string, error) {
	if err := t.validate(); err != nil {
		return "", errorx.Wrap(err, errorx.KindInternal, "cannot encode callback token")
	}

	payload, err := encMode.Marshal(t)
	if err != nil {
		return "", errorx.Wrap(err, errorx.KindInternal, "cannot encode callback token")
	}
	if c.key != nil {
		payload = append(payload, c.tag(payload)...)
	}

	encoded := make([]byte, ascii85.MaxEncodedLen(len(payload)))
	encoded = encoded[:ascii85.Encode(encoded, payload)]
	if len(encoded) > MaxTokenLength {
		return "", errorx.New(errorx.KindInternal,
			fmt.Sprintf("callback token is %d bytes long, limit is %d", len(encoded), MaxTokenLength))
	}

	return string(encoded), nil
}

// Decode parses data produced by Encode. Any other input, including other
// spellings of the same payload, is rejected with ErrMalformedToken.
func (c *Codec) Decode(data string) (Token, error) {
	t, err := c.decode(data)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	return t, nil
}

func (c *Codec) decode(data string) (Token, error) {
	if data == "" || len(data) > MaxTokenLength {
		return Token{}, fmt.Errorf("length %d", len(data))
	}

	// 'z' expands to four zero bytes.
	raw := make([]byte, 4*len(data))
	n, consumed, err := ascii85.Decode(raw, []byte(data), true)
	if err != nil {
		return Token{}, err
	}
	if consumed != len(data) {
		return Token{}, fmt.Errorf("trailing input after %d bytes", consumed)
	}
	raw = raw[:n]

	payload := raw
	if c.key != nil {
		if len(raw) <= tagSize {
			return Token{}, errors.New("too short for a tag")
		}
		payload = raw[:len(raw)-tagSize]
		if subtle.ConstantTimeCompare(raw[len(raw)-tagSize:], c.tag(payload)) != 1 {
			return Token{}, errors.New("tag mismatch")
		}
	}

	var t Token
	if err := decMode.Unmarshal(payload, &t); err != nil {
		return Token{}, err
	}
	if err := t.validate(); err != nil {
		return Token{}, err
	}

	canonical, err := encMode.Marshal(t)
	if err != nil {
		return Token{}, err
	}
	if !bytes.Equal(canonical, payload) {
		return Token{}, errors.New("payload is not in canonical form")
	}

	reencoded := make([]byte, ascii85.MaxEncodedLen(len(raw)))
	reencoded = reencoded[:ascii85.Encode(reencoded, raw)]
	if string(reencoded) != data {
		return Token{}, errors.New("text is not in canonical form")
	}

	return t, nil
}

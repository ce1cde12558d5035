// Package claimtoken seals and opens the bearer tokens handed to note recipients.
//
// A token is base64url(version || nonce || XChaCha20-Poly1305(json payload)) with the
// version byte bound as additional data. Opening fails closed: any decode, version,
// authentication or field error yields an error and no payload.
package claimtoken

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
)

const Version byte = 1

var (
	ErrMalformed = errors.New("malformed claim token")
	ErrVersion   = errors.New("unsupported claim token version")
	ErrTampered  = errors.New("claim token failed authentication")
	ErrBadKey    = errors.New("claim token key must be 32 bytes")
)

// Payload is the sealed content of a token.
type Payload struct {
	ClaimTokenID string         `json:"tid"`
	Recipient    common.Address `json:"rcp"`
}

type Codec struct {
	key []byte
}

func NewCodec(key []byte) (*Codec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrBadKey
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Codec{key: k}, nil
}

// NewCodecFromHex accepts the 64 hex char key format used in config.
func NewCodecFromHex(s string) (*Codec, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode claim token key: %w", err)
	}
	return NewCodec(key)
}

func (c *Codec) Seal(claimTokenID string, recipient common.Address) (string, error) {
	if _, err := uuid.Parse(claimTokenID); err != nil {
		return "", fmt.Errorf("claim token id: %w", err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	plain, err := json.Marshal(Payload{ClaimTokenID: claimTokenID, Recipient: recipient})
	if err != nil {
		return "", err
	}

	buf := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plain)+aead.Overhead())
	buf[0] = Version
	if _, err := rand.Read(buf[1:]); err != nil {
		return "", fmt.Errorf("claim token nonce: %w", err)
	}
	out := aead.Seal(buf, buf[1:], plain, buf[:1])
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (c *Codec) Open(token string) (*Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, ErrMalformed
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(raw) < 1+chacha20poly1305.NonceSizeX+aead.Overhead() {
		return nil, ErrMalformed
	}
	if raw[0] != Version {
		return nil, ErrVersion
	}
	nonce := raw[1 : 1+chacha20poly1305.NonceSizeX]
	plain, err := aead.Open(nil, nonce, raw[1+chacha20poly1305.NonceSizeX:], raw[:1])
	if err != nil {
		return nil, ErrTampered
	}

	var p Payload
	dec := json.NewDecoder(strings.NewReader(string(plain)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, ErrMalformed
	}
	if _, err := uuid.Parse(p.ClaimTokenID); err != nil {
		return nil, ErrMalformed
	}
	if p.Recipient == (common.Address{}) {
		return nil, ErrMalformed
	}
	return &p, nil
}

package handoff

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/sawpanic/noticerun/internal/domain"
	"github.com/sawpanic/noticerun/internal/fault"
)

const (
	KeySize   = 32
	nonceSize = 24
)

// ErrBadKey is returned for keys that do not decode to 32 bytes.
var ErrBadKey = errors.New("handoff key must be 32 bytes, base64 encoded")

// Key seals and opens bundles.
type Key [KeySize]byte

// ParseKey decodes a standard or URL-safe base64 key.
func ParseKey(s string) (Key, error) {
	var k Key
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		raw, err := enc.DecodeString(s)
		if err == nil && len(raw) == KeySize {
			copy(k[:], raw)
			return k, nil
		}
	}
	return k, fault.New(fault.EncryptionOrIO, "parse handoff key", ErrBadKey)
}

// GenerateKey returns a random key.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return k, fault.New(fault.EncryptionOrIO, "generate handoff key", err)
	}
	return k, nil
}

// String encodes the key as standard base64.
func (k Key) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// Seal encodes plans and encrypts them. The random nonce is prefixed to the
// ciphertext.
func Seal(k Key, plans []domain.BuildingPlan) ([]byte, error) {
	data, err := json.Marshal(plans)
	if err != nil {
		return nil, fault.New(fault.EncryptionOrIO, "encode bundle", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fault.New(fault.EncryptionOrIO, "seal bundle", err)
	}
	key := [KeySize]byte(k)
	return secretbox.Seal(nonce[:], data, &nonce, &key), nil
}

// Open decrypts and decodes a sealed bundle.
func Open(k Key, blob []byte) ([]domain.BuildingPlan, error) {
	if len(blob) < nonceSize+secretbox.Overhead {
		return nil, fault.Newf(fault.EncryptionOrIO, "open bundle", "bundle too short (%d bytes)", len(blob))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], blob[:nonceSize])
	key := [KeySize]byte(k)
	data, ok := secretbox.Open(nil, blob[nonceSize:], &nonce, &key)
	if !ok {
		return nil, fault.Newf(fault.EncryptionOrIO, "open bundle", "authentication failed")
	}
	var plans []domain.BuildingPlan
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, fault.New(fault.EncryptionOrIO, "decode bundle", err)
	}
	return plans, nil
}

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Sealer encrypts user text at rest and derives keyed digests for values
// that only ever need an equality check (one-time codes).
type Sealer struct {
	aead      cipher.AEAD
	digestKey []byte
}

// NewSealer expects two independent 32 byte keys: one for AES-256-GCM, one for HMAC-SHA256.
func NewSealer(encryptionKey, digestKey []byte) (*Sealer, error) {
	if len(encryptionKey) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	if len(digestKey) != 32 {
		return nil, errors.New("digest key must be 32 bytes")
	}
	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: gcm, digestKey: append([]byte(nil), digestKey...)}, nil
}

// Seal returns base64(nonce || ciphertext). Empty input stays empty.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return "", ErrCiphertextTooShort
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Digest is a deterministic HMAC-SHA256 of value, base64 encoded.
func (s *Sealer) Digest(value string) string {
	h := hmac.New(sha256.New, s.digestKey)
	h.Write([]byte(value))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Matches compares value against a stored digest in constant time.
func (s *Sealer) Matches(digest, value string) bool {
	want, err := base64.StdEncoding.DecodeString(digest)
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, s.digestKey)
	h.Write([]byte(value))
	return hmac.Equal(want, h.Sum(nil))
}

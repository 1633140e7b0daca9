package sessions

import (
	"crypto/rand"

	"github.com/jrsteele09/go-api-client/internal/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealer encrypts credentials at rest with XChaCha20-Poly1305. The sealed
// form is nonce followed by ciphertext.
type Sealer struct {
	key []byte
}

// NewSealer requires a 32 byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "seal key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// Seal encrypts plaintext bound to additionalData.
func (s *Sealer) Seal(plaintext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, errors.Wrapf(err, "init cipher")
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrapf(err, "generate nonce")
	}
	return aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open reverses Seal. Tampered data, a different key or different
// additionalData all fail with errors.ErrSessionCorrupt.
func (s *Sealer) Open(sealed, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, errors.Wrapf(err, "init cipher")
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.Wrapf(errors.ErrSessionCorrupt, "sealed credentials too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrSessionCorrupt, "open sealed credentials")
	}
	return plaintext, nil
}

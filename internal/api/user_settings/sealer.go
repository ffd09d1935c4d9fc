package userSettings

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrSealerDisabled = errors.New("custom API keys are disabled: no settings key configured")

// Sealer encrypts user supplied API keys with XChaCha20-Poly1305. The user id
// is bound as associated data so a sealed value cannot be moved between rows.
type Sealer struct {
	key []byte
}

// NewSealer takes a hex encoded 32 byte key. An empty key yields a disabled
// sealer whose Seal and Open always fail with ErrSealerDisabled.
func NewSealer(hexKey string) (*Sealer, error) {
	if hexKey == "" {
		return &Sealer{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("settings key is not hex: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("settings key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Sealer{key: key}, nil
}

func (s *Sealer) Enabled() bool { return len(s.key) > 0 }

func (s *Sealer) Seal(plaintext, associatedData []byte) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrSealerDisabled
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, associatedData), nil
}

func (s *Sealer) Open(sealed, associatedData []byte) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrSealerDisabled
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("sealed value too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, associatedData)
}

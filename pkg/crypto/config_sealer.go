// Package crypto seals data source connection configs at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
)

// sealVersion prefixes every sealed value so the format can change later.
const sealVersion = "v1"

var (
	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid encryption key: must not be empty")
	// ErrDecryptionFailed is returned for malformed or tampered ciphertext.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// ConfigSealer encrypts data source configs with AES-256-GCM.
// Sealed output is "v1:<key id>:<base64(nonce || ciphertext || tag)>". The key
// id is a short fingerprint of the key so a rotated or mistyped key is
// reported as apperrors.ErrCredentialsKeyMismatch instead of garbage.
type ConfigSealer struct {
	gcm   cipher.AEAD
	keyID string
}

// NewConfigSealer derives a sealer from key. A base64 value that decodes to
// exactly 32 bytes is used directly; anything else is hashed with SHA-256.
func NewConfigSealer(key string) (*ConfigSealer, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(raw) != 32 {
		sum := sha256.Sum256([]byte(key))
		raw = sum[:]
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	fingerprint := sha256.Sum256(append([]byte("datagate-key-id:"), raw...))
	return &ConfigSealer{gcm: gcm, keyID: hex.EncodeToString(fingerprint[:4])}, nil
}

// KeyID returns the fingerprint written into sealed values.
func (s *ConfigSealer) KeyID() string {
	return s.keyID
}

// Seal encodes config as JSON and encrypts it. A nil or empty config seals
// to the empty string.
func (s *ConfigSealer) Seal(config map[string]any) (string, error) {
	if len(config) == 0 {
		return "", nil
	}
	plaintext, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	// the key id is bound as associated data so it cannot be swapped
	sealed := s.gcm.Seal(nonce, nonce, plaintext, []byte(s.keyID))

	return strings.Join([]string{sealVersion, s.keyID, base64.StdEncoding.EncodeToString(sealed)}, ":"), nil
}

// Open reverses Seal. The empty string opens to an empty config.
func (s *ConfigSealer) Open(sealed string) (map[string]any, error) {
	if sealed == "" {
		return map[string]any{}, nil
	}

	parts := strings.SplitN(sealed, ":", 3)
	if len(parts) != 3 || parts[0] != sealVersion {
		return nil, fmt.Errorf("%w: unrecognised format", ErrDecryptionFailed)
	}
	if parts[1] != s.keyID {
		return nil, apperrors.ErrCredentialsKeyMismatch
	}

	data, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}
	nonceSize := s.gcm.NonceSize()
	if len(data) < nonceSize+s.gcm.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	plaintext, err := s.gcm.Open(nil, data[:nonceSize], data[nonceSize:], []byte(s.keyID))
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}

	config := map[string]any{}
	if err := json.Unmarshal(plaintext, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return config, nil
}

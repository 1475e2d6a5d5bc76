package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Service provides tenant-aware AES-256-GCM encryption and decryption. The
// tenant ID is bound as additional data, so a ciphertext copied into another
// tenant's row never opens.
type Service struct {
	keys KeyProvider
}

// NewService creates an encryption service backed by the given key provider.
func NewService(keys KeyProvider) *Service {
	return &Service{keys: keys}
}

func (s *Service) aead(ctx context.Context, tenantID string) (cipher.AEAD, error) {
	key, err := s.keys.GetKey(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("crypto: get key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	return gcm, nil
}

// EncryptString seals plaintext for the tenant and returns base64 nonce+ciphertext.
func (s *Service) EncryptString(ctx context.Context, tenantID, plaintext string) (string, error) {
	gcm, err := s.aead(ctx, tenantID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), []byte(tenantID))

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a value produced by EncryptString for the same tenant.
func (s *Service) DecryptString(ctx context.Context, tenantID, ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: base64 decode: %w", err)
	}

	gcm, err := s.aead(ctx, tenantID)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("crypto: ciphertext too short")
	}

	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, []byte(tenantID))
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt failed: %w", err)
	}

	return string(plaintext), nil
}

// Package crypto provides tenant-aware AES-256-GCM encryption for secrets
// stored at rest.
package crypto

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// KeyProvider returns AES-256 encryption keys for tenants.
type KeyProvider interface {
	// GetKey returns the 32-byte AES-256 key for the given tenant.
	GetKey(ctx context.Context, tenantID string) ([]byte, error)
}

const keyLen = 32

// DerivedProvider derives a distinct key per tenant from one master key
// using HKDF-SHA256 with the tenant ID as the info parameter.
type DerivedProvider struct {
	master []byte
	cache  sync.Map // tenantID -> []byte
}

// NewDerivedProvider creates a DerivedProvider from a hex-encoded 32-byte master key.
func NewDerivedProvider(hexKey string) (*DerivedProvider, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/derived: invalid hex key: %w", err)
	}

	if len(key) != keyLen {
		return nil, fmt.Errorf("crypto/derived: key must be %d bytes, got %d", keyLen, len(key))
	}

	return &DerivedProvider{master: key}, nil
}

// GetKey returns a copy of the tenant's derived key.
func (p *DerivedProvider) GetKey(_ context.Context, tenantID string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("crypto/derived: tenant id required")
	}

	if v, ok := p.cache.Load(tenantID); ok {
		return clone(v.([]byte)), nil
	}

	key := make([]byte, keyLen)
	r := hkdf.New(sha256.New, p.master, nil, []byte("cadence/tenant/"+tenantID))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("crypto/derived: derive key: %w", err)
	}

	p.cache.Store(tenantID, key)

	return clone(key), nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)

	return out
}

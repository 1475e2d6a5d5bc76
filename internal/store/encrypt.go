package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/persistorai/cadence/internal/models"
)

// storedConfig is the JSONB shape of a data source config. The webhook
// secret never lands in plaintext; it is kept in the _enc envelope field.
type storedConfig struct {
	models.DataSourceConfig
	SecretEnc string `json:"_enc,omitempty"`
}

// sealConfig encrypts the webhook secret and returns JSON for the config column.
func (b *Base) sealConfig(ctx context.Context, tenantID string, cfg models.DataSourceConfig) ([]byte, error) {
	sc := storedConfig{DataSourceConfig: cfg}
	if cfg.WebhookSecret != "" {
		if b.Crypto == nil {
			return nil, fmt.Errorf("sealing config: no encryption service configured")
		}

		ct, err := b.Crypto.EncryptString(ctx, tenantID, cfg.WebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("encrypting webhook secret: %w", err)
		}

		sc.SecretEnc = ct
		sc.WebhookSecret = ""
	}

	out, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("marshalling config: %w", err)
	}

	return out, nil
}

// openConfig decodes the config column and decrypts the webhook secret.
func (b *Base) openConfig(ctx context.Context, tenantID string, raw []byte) (models.DataSourceConfig, error) {
	var sc storedConfig
	if err := json.Unmarshal(raw, &sc); err != nil {
		return models.DataSourceConfig{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg := sc.DataSourceConfig
	if sc.SecretEnc == "" {
		return cfg, nil
	}

	if b.Crypto == nil {
		return models.DataSourceConfig{}, fmt.Errorf("opening config: no encryption service configured")
	}

	secret, err := b.Crypto.DecryptString(ctx, tenantID, sc.SecretEnc)
	if err != nil {
		return models.DataSourceConfig{}, fmt.Errorf("decrypting webhook secret: %w", err)
	}
	cfg.WebhookSecret = secret

	return cfg, nil
}

package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/persistorai/cadence/internal/models"
)

// Webhook request headers.
const (
	HeaderWebhookID        = "X-Webhook-Id"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"
	HeaderWebhookSignature = "X-Webhook-Signature"
)

// millisThreshold separates epoch-second from epoch-millisecond timestamps.
const millisThreshold = 1e12

// ParseTimestamp reads a webhook timestamp given in epoch seconds or
// milliseconds.
func ParseTimestamp(raw string) (time.Time, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return time.Time{}, models.Invalid(HeaderWebhookTimestamp, "missing or invalid webhook timestamp")
	}

	ms := v
	if v <= millisThreshold {
		ms = v * 1000
	}

	return time.UnixMilli(int64(ms)), nil
}

// CheckFreshness rejects timestamps further than tolerance from now in either direction.
func CheckFreshness(ts, now time.Time, tolerance time.Duration) error {
	d := now.Sub(ts)
	if d < 0 {
		d = -d
	}
	if d > tolerance {
		return models.ErrStaleWebhook
	}

	return nil
}

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{body}".
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the expected HMAC in constant time.
func VerifySignature(secret, timestamp string, body []byte, signature string) error {
	if signature == "" {
		return models.ErrMissingSignature
	}

	expected := Sign(secret, timestamp, body)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) != 1 {
		return models.ErrInvalidSignature
	}

	return nil
}

// ReplayKey is the de-duplication key for one delivery to one data source.
func ReplayKey(dataSourceID, webhookID string) string {
	return "webhook:" + dataSourceID + ":" + webhookID
}

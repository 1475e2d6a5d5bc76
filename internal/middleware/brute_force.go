package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	bruteForceMaxAttempts = 5
	bruteForceWindow      = 15 * time.Minute
	bruteForceLockout     = 5 * time.Minute
	bruteForceCleanup     = 60 * time.Second
	bruteForceMaxRecords  = 10000
)

type failureRecord struct {
	attempts  int
	firstFail time.Time
	lockedAt  time.Time
}

// BruteForceGuard counts bearer-token failures per client IP and locks a
// client out once it fails too often within the tracking window. Clients
// are stored by hash so the map never holds raw addresses.
type BruteForceGuard struct {
	mu      sync.Mutex
	records map[string]*failureRecord
	log     *logrus.Logger
	now     func() time.Time
}

// NewBruteForceGuard creates a guard whose cleanup loop stops with ctx.
func NewBruteForceGuard(ctx context.Context, log *logrus.Logger) *BruteForceGuard {
	g := &BruteForceGuard{
		records: make(map[string]*failureRecord),
		log:     log,
		now:     time.Now,
	}
	go g.cleanupLoop(ctx)
	return g
}

func clientHash(client string) string {
	h := sha256.Sum256([]byte(client))
	return hex.EncodeToString(h[:])
}

// LockedFor returns how long the client remains locked out, or zero.
func (g *BruteForceGuard) LockedFor(client string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[clientHash(client)]
	if !ok || rec.lockedAt.IsZero() {
		return 0
	}

	if left := bruteForceLockout - g.now().Sub(rec.lockedAt); left > 0 {
		return left
	}

	return 0
}

// IsBlocked reports whether the client is currently locked out.
func (g *BruteForceGuard) IsBlocked(client string) bool {
	return g.LockedFor(client) > 0
}

// RecordFailure counts one failed authentication for the client.
func (g *BruteForceGuard) RecordFailure(client string) {
	ch := clientHash(client)
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.records[ch]
	if !ok || now.Sub(rec.firstFail) > bruteForceWindow {
		g.records[ch] = &failureRecord{attempts: 1, firstFail: now}
		return
	}

	rec.attempts++
	if rec.attempts >= bruteForceMaxAttempts && rec.lockedAt.IsZero() {
		rec.lockedAt = now
		g.log.WithFields(logrus.Fields{
			"client_hash": ch[:16],
			"attempts":    rec.attempts,
		}).Warn("client locked out after repeated auth failures")
	}
}

// ResetKey clears the client's failures after a successful authentication.
func (g *BruteForceGuard) ResetKey(client string) {
	g.mu.Lock()
	delete(g.records, clientHash(client))
	g.mu.Unlock()
}

func (g *BruteForceGuard) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(bruteForceCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.sweep()
		}
	}
}

// sweep drops expired lockouts and stale windows, then trims the map to
// bruteForceMaxRecords by evicting the oldest first failures.
func (g *BruteForceGuard) sweep() {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for k, rec := range g.records {
		expired := !rec.lockedAt.IsZero() && now.Sub(rec.lockedAt) >= bruteForceLockout
		if expired || now.Sub(rec.firstFail) >= bruteForceWindow {
			delete(g.records, k)
		}
	}

	excess := len(g.records) - bruteForceMaxRecords
	if excess <= 0 {
		return
	}

	keys := make([]string, 0, len(g.records))
	for k := range g.records {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return g.records[a].firstFail.Compare(g.records[b].firstFail)
	})
	for _, k := range keys[:excess] {
		delete(g.records, k)
	}
}

// BruteForceMiddleware rejects locked-out clients with 429 and a
// Retry-After header before their token is verified.
func BruteForceMiddleware(guard *BruteForceGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if left := guard.LockedFor(c.ClientIP()); left > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(left.Seconds()))))
			respondError(c, http.StatusTooManyRequests, codeRateLimited, "too many failed authentication attempts")
			return
		}

		c.Next()
	}
}

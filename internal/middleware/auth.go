package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/auth"
	"github.com/persistorai/cadence/internal/models"
)

// authTimingFloor is the minimum response time for rejected requests so
// that failures cannot be told apart by latency.
const authTimingFloor = 50 * time.Millisecond

// UserKey is the gin context key for the authenticated *models.User.
const UserKey = "user"

// Authenticator verifies a bearer token.
type Authenticator interface {
	Authenticate(raw string) (auth.Principal, error)
}

// UserResolver maps a verified token onto a stored user.
type UserResolver interface {
	FindOrCreate(ctx context.Context, id models.Identity) (*models.User, error)
	Get(ctx context.Context, userID string) (*models.User, error)
}

// AdminEmails is the set of platform admin email addresses.
type AdminEmails map[string]struct{}

// NewAdminEmails builds the set, ignoring case and blanks.
func NewAdminEmails(emails []string) AdminEmails {
	set := make(AdminEmails, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// Contains reports whether email belongs to a platform admin.
func (a AdminEmails) Contains(email string) bool {
	_, ok := a[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// enforceTimingFloor sleeps if needed so the response takes at least authTimingFloor.
func enforceTimingFloor(start time.Time) {
	if elapsed := time.Since(start); elapsed < authTimingFloor {
		time.Sleep(authTimingFloor - elapsed)
	}
}

// Auth authenticates requests via Bearer token. Identity-provider tokens
// upsert the user; session tokens load it by id. Platform admin status is
// derived from the user's email on every request. If a BruteForceGuard is
// provided, failed attempts are tracked per client.
func Auth(tokens Authenticator, users UserResolver, admins AdminEmails, log *logrus.Logger, guards ...*BruteForceGuard) gin.HandlerFunc {
	var guard *BruteForceGuard
	if len(guards) > 0 {
		guard = guards[0]
	}

	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if c.Writer.Status() == http.StatusUnauthorized {
				enforceTimingFloor(start)
			}
		}()

		raw := ExtractBearerToken(c)
		if raw == "" {
			respondError(c, http.StatusUnauthorized, codeUnauthorized, "missing or invalid authorization header")
			return
		}

		principal, err := tokens.Authenticate(raw)
		if err != nil {
			logAuthFailure(log, c, err)
			if guard != nil {
				guard.RecordFailure(c.ClientIP())
			}
			respondError(c, http.StatusUnauthorized, codeUnauthorized, "invalid or expired token")
			return
		}

		user, err := resolveUser(c.Request.Context(), users, principal)
		if err != nil {
			if errors.Is(err, errEmailRequired) {
				respondError(c, http.StatusBadRequest, codeBadRequest, err.Error())
				return
			}
			log.WithError(err).WithField("request_id", c.GetString(RequestIDKey)).Error("resolving user failed")
			respondError(c, http.StatusUnauthorized, codeUnauthorized, "invalid or expired token")
			return
		}

		if guard != nil {
			guard.ResetKey(c.ClientIP())
		}

		if tc := TenantContext(c); tc != nil {
			tc.SetUser(user.ID, admins.Contains(user.Email))
		}
		c.Set(UserKey, user)
		c.Next()
	}
}

var errEmailRequired = errors.New("email is required")

func resolveUser(ctx context.Context, users UserResolver, p auth.Principal) (*models.User, error) {
	if p.Session != nil {
		return users.Get(ctx, p.Session.UserID)
	}
	if p.Identity.Email == "" {
		return nil, errEmailRequired
	}

	return users.FindOrCreate(ctx, *p.Identity)
}

// CurrentUser returns the authenticated user, or nil before Auth.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// ExtractBearerToken extracts the token from the Authorization header.
func ExtractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// logAuthFailure logs a failed authentication attempt.
func logAuthFailure(log *logrus.Logger, c *gin.Context, err error) {
	log.WithFields(logrus.Fields{
		"client_ip":  c.ClientIP(),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"user_agent": c.Request.UserAgent(),
		"request_id": c.GetString(RequestIDKey),
		"error":      err.Error(),
	}).Warn("authentication failed")
}

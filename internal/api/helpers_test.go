package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/cadence/internal/middleware"
	"github.com/persistorai/cadence/internal/models"
	"github.com/persistorai/cadence/internal/tenant"
)

const (
	testTenantID = "00000000-0000-0000-0000-000000000001"
	testUserID   = "00000000-0000-0000-0000-0000000000aa"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

// newTestRouter creates a gin engine whose requests are bound to the test
// tenant with the given role.
func newTestRouter(role models.Role) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.RequestIDKey, "req-test")
		tc := tenant.New("req-test")
		tc.SetUser(testUserID, false)
		if role != "" {
			_ = tc.SetTenant(testTenantID, role)
		}
		c.Request = c.Request.WithContext(tenant.With(c.Request.Context(), tc))
		c.Next()
	})

	return r
}

// doRequest performs an HTTP request against the test router and returns the recorder.
func doRequest(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

// decodeBody unmarshals the recorder body into a generic map.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}

	return body
}

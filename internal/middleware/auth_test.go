package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/circlechat/internal/metrics"
	"github.com/thereayou/circlechat/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuthenticator struct {
	tokens map[string]models.Identity
}

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (models.Identity, error) {
	identity, ok := f.tokens[token]
	if !ok {
		return models.Identity{}, errors.New("token is blacklisted")
	}
	return identity, nil
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		c.JSON(http.StatusOK, MustIdentity(c))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	sara := models.Identity{ID: uuid.New(), Name: "sara", Role: models.RoleStudent}
	authn := fakeAuthenticator{tokens: map[string]models.Identity{"good": sara}}

	cases := map[string]struct {
		header  string
		query   string
		code    int
		message string
	}{
		"valid header":   {header: "Bearer good", code: http.StatusOK},
		"missing":        {code: http.StatusUnauthorized, message: "missing or invalid token"},
		"wrong scheme":   {header: "Basic good", code: http.StatusUnauthorized, message: "missing or invalid token"},
		"rejected":       {header: "Bearer revoked", code: http.StatusUnauthorized, message: "token is blacklisted"},
		"query ignored":  {query: "good", code: http.StatusUnauthorized, message: "missing or invalid token"},
		"lowercase scheme": {header: "bearer good", query: "bad", code: http.StatusOK},
	}
	r := newRouter(AuthMiddleware(authn))
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me?token="+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tc.code, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tc.code == http.StatusOK {
				assert.Equal(t, sara.ID.String(), body["id"])
				return
			}
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tc.message, body["message"])
		})
	}
}

func TestWSAuthMiddlewareAcceptsQueryToken(t *testing.T) {
	sara := models.Identity{ID: uuid.New(), Name: "sara"}
	r := newRouter(WSAuthMiddleware(fakeAuthenticator{tokens: map[string]models.Identity{"good": sara}}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token=good", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token=bad", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIdentityFrom(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := IdentityFrom(c)
	assert.False(t, ok)
	assert.Panics(t, func() { MustIdentity(c) })

	c.Set(IdentityKey, models.Identity{Name: "sara"})
	identity, ok := IdentityFrom(c)
	require.True(t, ok)
	assert.Equal(t, "sara", identity.Name)
}

func TestRequestLoggerRecordsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := gin.New()
	r.Use(RequestLogger(slog.New(slog.NewTextHandler(io.Discard, nil)), m))
	r.GET("/chats/private/:userId", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chats/private/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	count, err := testutil.GatherAndCount(reg, "circlechat_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

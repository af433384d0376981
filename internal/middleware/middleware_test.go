package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-match-api/internal/models"
	appErrors "github.com/noah-isme/elective-match-api/pkg/errors"
)

type tokenStub struct {
	claims *models.JWTClaims
}

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

func protectedRouter(role models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", JWT(tokenStub{claims: &models.JWTClaims{UserID: "u1", Role: role}}), RequireRoles(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestJWTAndRBAC(t *testing.T) {
	cases := []struct {
		name   string
		role   models.UserRole
		header string
		status int
	}{
		{name: "missing header", role: models.RoleAdmin, status: http.StatusUnauthorized},
		{name: "malformed header", role: models.RoleAdmin, header: "Token good", status: http.StatusUnauthorized},
		{name: "bad token", role: models.RoleAdmin, header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "wrong role", role: models.RoleStudent, header: "Bearer good", status: http.StatusForbidden},
		{name: "admin", role: models.RoleAdmin, header: "Bearer good", status: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			protectedRouter(tc.role).ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

type observerStub struct {
	mu    sync.Mutex
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paths = append(o.paths, method+" "+path)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &observerStub{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/runs/:runId", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/runs/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, obs.paths, 2)
	assert.Equal(t, "GET /runs/:runId", obs.paths[0])
	assert.Equal(t, "GET unmatched", obs.paths[1])
}

package middleware

import (
	"academy_backend/internal/model"
	"academy_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-test-secret-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func token(t *testing.T, id uint, role model.UserRole, ttl time.Duration) string {
	t.Helper()
	user := &model.User{Role: role, Email: "a@academy.test"}
	user.ID = id
	tok, err := util.GenerateJWT(user, testSecret, ttl)
	require.NoError(t, err)
	return tok
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.String(http.StatusOK, UserKey(c))
	})
	r.GET("/x", handlers...)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(testSecret))

	cases := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"bearer", "Bearer " + token(t, 7, model.RoleFree, time.Hour), "", http.StatusOK, "user:7"},
		{"query token", "", token(t, 8, model.RoleFree, time.Hour), http.StatusOK, "user:8"},
		{"expired", "Bearer " + token(t, 7, model.RoleFree, -time.Minute), "", http.StatusUnauthorized, ""},
		{"garbage", "Bearer not-a-jwt", "", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			url := "/x"
			if tc.query != "" {
				url += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, w.Body.String())
			}
		})
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	r := newRouter(AuthMiddleware("another-secret"))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, 1, model.RoleAdmin, time.Hour))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(testSecret), RoleMiddleware(model.RoleLecturer))

	cases := []struct {
		role   model.UserRole
		status int
	}{
		{model.RoleAdmin, http.StatusOK},
		{model.RoleLecturer, http.StatusOK},
		{model.RoleFree, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, 3, tc.role, time.Hour))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, string(tc.role))
	}
}

func TestUserKeyFallsBackToIP(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "ip:10.1.2.3", w.Body.String())
}

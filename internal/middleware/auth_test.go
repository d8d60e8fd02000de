package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vigia_backend/internal/config"
	"vigia_backend/internal/util"

	"github.com/gin-gonic/gin"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func authRouter(roles ...string) *gin.Engine {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: testSecret}}
	r := gin.New()
	r.GET("/private", AuthMiddleware(cfg), RoleMiddleware(roles...), func(c *gin.Context) {
		util.Success(c, gin.H{"user": util.GetUserFromContext(c).UserID})
	})
	return r
}

func request(t *testing.T, r http.Handler, token string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := util.GenerateJWT(10, role, "", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	r := authRouter(util.RoleLearner)
	if code := request(t, r, ""); code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", code)
	}
	if code := request(t, r, "not-a-jwt"); code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", code)
	}
	if code := request(t, r, token(t, util.RoleLearner)); code != http.StatusOK {
		t.Fatalf("learner token: expected 200, got %d", code)
	}
}

func TestRoleMiddleware(t *testing.T) {
	r := authRouter(util.RoleLearner)
	if code := request(t, r, token(t, "guest")); code != http.StatusForbidden {
		t.Fatalf("guest: expected 403, got %d", code)
	}
	if code := request(t, r, token(t, util.RoleAdmin)); code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", code)
	}
}

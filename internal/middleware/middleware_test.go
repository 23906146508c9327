package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/internal/service"
	appErrors "github.com/noah-isme/roster-gateway/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func serve(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/callbacks", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func protectedRouter(role models.UserRole, guards ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(validatorStub{claims: &models.JWTClaims{UserID: "u-1", Role: role}})}, guards...)
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.POST("/callbacks", handlers...)
	return router
}

func TestJWT(t *testing.T) {
	router := protectedRouter(models.RoleTeacher)

	assert.Equal(t, http.StatusUnauthorized, serve(router, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "Bearer bad").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "Bearer good").Code)
}

func TestRequireRoles(t *testing.T) {
	teacher := protectedRouter(models.RoleTeacher, RequirePrivileged())
	assert.Equal(t, http.StatusForbidden, serve(teacher, "Bearer good").Code)

	admin := protectedRouter(models.RoleAdmin, RequirePrivileged())
	assert.Equal(t, http.StatusNoContent, serve(admin, "Bearer good").Code)

	staff := protectedRouter(models.RoleTeacher, RequireRoles(models.StaffRoles...))
	assert.Equal(t, http.StatusNoContent, serve(staff, "Bearer good").Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/callbacks", RequirePrivileged(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusUnauthorized, serve(router, "").Code)
}

func TestTokenBucketRefills(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	limiter := NewTokenBucket(2, 60)
	limiter.now = func() time.Time { return now }

	require.True(t, limiter.Allow("user:1"))
	require.True(t, limiter.Allow("user:1"))
	require.False(t, limiter.Allow("user:1"))
	require.True(t, limiter.Allow("user:2"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, limiter.Allow("user:1"))
	assert.False(t, limiter.Allow("user:1"))
}

func TestRateLimitKeysByUser(t *testing.T) {
	limiter := NewTokenBucket(1, 1)
	router := protectedRouter(models.RoleTeacher, limiter.RateLimit())

	require.Equal(t, http.StatusNoContent, serve(router, "Bearer good").Code)
	w := serve(router, "Bearer good")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrTooManyRequests.Code)
}

func TestMetricsMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(1), metrics.Snapshot().RequestsTotal)
}

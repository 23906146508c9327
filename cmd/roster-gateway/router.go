package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/roster-gateway/api/swagger"
	"github.com/noah-isme/roster-gateway/internal/handler"
	"github.com/noah-isme/roster-gateway/internal/middleware"
	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/internal/service"
	"github.com/noah-isme/roster-gateway/pkg/config"
	"github.com/noah-isme/roster-gateway/pkg/logger"
	corsmiddleware "github.com/noah-isme/roster-gateway/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/roster-gateway/pkg/middleware/requestid"
)

type routes struct {
	auth     *service.AuthService
	metrics  *handler.MetricsHandler
	metricsS *service.MetricsService
	sessions *handler.SessionHandler
	lessons  *handler.LessonHandler
	media    *handler.MediaHandler
	limiter  *middleware.TokenBucket
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routes) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(h.metricsS))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	// Signed links are opened from chat clients without a staff token.
	api.GET("/exports/download", h.media.Download)

	staff := api.Group("", middleware.JWT(h.auth), middleware.RequireRoles(models.StaffRoles...))
	staff.POST("/callbacks", h.limiter.RateLimit(), h.sessions.Callback)
	staff.POST("/sessions/text", h.limiter.RateLimit(), h.sessions.Text)
	staff.GET("/lessons/:ref/render", h.lessons.Render)
	staff.GET("/lessons/:ref/sheet", h.lessons.Sheet)
	staff.POST("/lessons", h.lessons.Prime)
	staff.POST("/media", h.media.RecordMedia)
	staff.POST("/exports", h.media.CreateExport)

	admin := api.Group("", middleware.JWT(h.auth), middleware.RequirePrivileged())
	admin.GET("/system/metrics", h.metrics.Snapshot)

	return r
}

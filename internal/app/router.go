package app

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/campus-portal-api/api/swagger"
	"github.com/noah-isme/campus-portal-api/internal/handler"
	"github.com/noah-isme/campus-portal-api/internal/middleware"
	"github.com/noah-isme/campus-portal-api/pkg/config"
	"github.com/noah-isme/campus-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-portal-api/pkg/middleware/requestid"
)

func (a *App) newRouter() *gin.Engine {
	if a.cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(corsmiddleware.New(a.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Services.Metrics))
	r.Use(middleware.WithResponseMeta())

	streams := handler.StreamConfig{
		WriteTimeout:   a.cfg.Realtime.WriteTimeout,
		AllowedOrigins: a.cfg.CORS.AllowedOrigins,
	}
	metricsHandler := handler.NewMetricsHandler(a.Services.Metrics, a.healthChecks())
	semesterHandler := handler.NewSemesterHandler(a.Services.Semester)
	catalogHandler := handler.NewCatalogHandler(a.Services.Catalog)
	noticeHandler := handler.NewNoticeHandler(a.Services.Notices, a.hub, streams)
	presenceHandler := handler.NewPresenceHandler(a.Services.Presence, a.monitor, streams)
	authHandler := handler.NewAuthHandler(a.Services.Auth)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if a.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(a.cfg.APIPrefix)
	api.GET("/semester/status", semesterHandler.Status)

	api.GET("/materials", catalogHandler.ListMaterials)
	api.GET("/materials/:id", catalogHandler.GetMaterial)
	api.GET("/courses", catalogHandler.ListCourses)
	api.GET("/courses/:code/materials", catalogHandler.CourseMaterials)

	api.GET("/notices", noticeHandler.List)
	api.GET("/notices/ws", noticeHandler.Stream)
	api.GET("/notices/:id", noticeHandler.Get)

	api.POST("/presence/heartbeat", presenceHandler.Heartbeat)
	api.DELETE("/presence/:sessionId", presenceHandler.Leave)

	api.POST("/admin/login", authHandler.Login)

	admin := api.Group("/admin", middleware.JWT(a.Services.Auth), middleware.RequireAdmin())
	admin.GET("/me", authHandler.Me)
	admin.GET("/presence", presenceHandler.Snapshot)
	admin.GET("/presence/ws", presenceHandler.Stream)
	admin.GET("/metrics", metricsHandler.Summary)

	audit := a.logger.Named("audit")
	admin.POST("/notices", middleware.Audit(audit, "create", "notice"), noticeHandler.Create)
	admin.PUT("/notices/:id", middleware.Audit(audit, "update", "notice"), noticeHandler.Update)
	admin.DELETE("/notices/:id", middleware.Audit(audit, "delete", "notice"), noticeHandler.Delete)

	if a.Services.Exports != nil {
		exportHandler := handler.NewExportHandler(a.Services.Exports)
		api.GET("/exports/download", exportHandler.Download)
		admin.POST("/exports", middleware.Audit(audit, "create", "export"), exportHandler.Create)
		admin.GET("/exports/:id", exportHandler.Status)
	}

	return r
}

func (a *App) healthChecks() map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{}
	if a.db != nil {
		checks["postgres"] = func(ctx context.Context) error { return a.db.PingContext(ctx) }
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	return checks
}

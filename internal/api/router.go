package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/boardwatch/boardwatch/internal/scheduler"
	"github.com/boardwatch/boardwatch/internal/store"
	"github.com/boardwatch/boardwatch/pkg/config"
	"github.com/boardwatch/boardwatch/pkg/logging"
	"github.com/boardwatch/boardwatch/pkg/metrics"
	"github.com/boardwatch/boardwatch/pkg/resilience"
)

// RouterDeps bundles everything the HTTP surface needs
type RouterDeps struct {
	Config     *config.Config
	Logger     *logging.Logger
	Metrics    *metrics.Metrics
	Runtime    *resilience.Runtime
	Configs    store.ConfigRepositoryInterface
	Executions store.ExecutionRepositoryInterface
	Runner     *scheduler.Runner
	Health     map[string]HealthChecker
}

// NewRouter creates and configures the API router
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config != nil && deps.Config.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(deps.Logger))
	router.Use(RecoveryMiddleware())
	router.Use(cors.Default())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.PrometheusMiddleware())
	}

	healthHandler := NewHealthHandler(deps.Health)
	router.GET("/health", healthHandler.Health)

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	obs := NewObservabilityHandler(deps.Runtime)
	configs := NewConfigHandler(deps.Configs, deps.Executions)

	v1 := router.Group("/api/v1")
	{
		observability := v1.Group("/observability")
		{
			observability.GET("/metrics", obs.GetMetricsJSON)
			observability.GET("/metrics.txt", obs.GetMetricsText)
		}

		alerts := v1.Group("/alerts")
		{
			alerts.GET("", obs.ListAlerts)
			alerts.POST("", obs.TriggerAlert)
			alerts.POST("/:id/resolve", obs.ResolveAlert)
		}

		cfg := v1.Group("/configs")
		{
			cfg.GET("", configs.ListConfigs)
			cfg.POST("", configs.CreateConfig)
			cfg.GET("/:id", configs.GetConfig)
			cfg.PUT("/:id", configs.UpdateConfig)
			cfg.DELETE("/:id", configs.DeleteConfig)
			cfg.GET("/:id/executions", configs.ListConfigExecutions)
		}

		v1.GET("/executions", configs.ListRecentExecutions)

		if deps.Runner != nil {
			v1.POST("/scheduler/run", func(c *gin.Context) {
				summary, err := deps.Runner.RunOnce(c.Request.Context())
				if err != nil {
					ErrorResponseFromError(c, err)
					return
				}
				SuccessResponse(c, summary)
			})
		}
	}

	router.NoRoute(func(c *gin.Context) {
		NotFoundResponse(c, "Endpoint not found")
	})

	return router
}

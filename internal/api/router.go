package api

import (
	"context"

	"github.com/gin-gonic/gin"
	v1 "github.com/splitfair/splitfair/internal/api/v1"
	"github.com/splitfair/splitfair/internal/config"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/types"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers bundles every route handler the router mounts
type Handlers struct {
	Health       *v1.HealthHandler
	Subscription *v1.SubscriptionHandler
	Webhook      *v1.WebhookHandler
	Entitlement  *v1.EntitlementHandler
	Plan         *v1.PlanHandler
	Anomaly      *v1.AnomalyHandler
}

// NewRouter builds the gin engine with all routes mounted
func NewRouter(handlers Handlers, cfg *config.Configuration, log *logger.Logger) *gin.Engine {
	if cfg.Deployment.Mode == types.ModeProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestContextMiddleware())
	router.Use(requestLogger(log))

	router.GET("/health", handlers.Health.Check)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/v1")
	{
		api.GET("/plans", handlers.Plan.List)

		subs := api.Group("/subscriptions")
		{
			subs.POST("/checkout", handlers.Subscription.CreateCheckout)
			subs.GET("/current", handlers.Subscription.GetCurrent)
			subs.POST("/:id/activate", handlers.Subscription.Activate)
			subs.POST("/:id/cancel", handlers.Subscription.Cancel)
			subs.POST("/:id/resume", handlers.Subscription.Resume)
			subs.GET("/:id/history", handlers.Subscription.ListHistory)
		}

		api.GET("/entitlements", handlers.Entitlement.GetSummary)
		api.GET("/entitlements/:key/limit", handlers.Entitlement.CheckLimit)

		api.POST("/webhooks/paypal", handlers.Webhook.HandlePayPal)

		admin := api.Group("/admin")
		{
			admin.POST("/subscriptions/sync", handlers.Subscription.SyncDue)
			admin.GET("/entitlements", handlers.Entitlement.List)
			admin.POST("/entitlements", handlers.Entitlement.Create)
			admin.PUT("/entitlements/:id", handlers.Entitlement.Update)
			admin.POST("/plans", handlers.Plan.Create)
			admin.POST("/plans/:plan_type/remote", handlers.Plan.EnsureRemote)
			admin.GET("/anomalies", handlers.Anomaly.ListOpen)
			admin.POST("/anomalies/:id/resolve", handlers.Anomaly.Resolve)
		}
	}

	return router
}

// requestContextMiddleware copies request identity headers into the
// context the services read from
func requestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = types.GenerateUUID()
		}
		ctx = context.WithValue(ctx, types.CtxRequestID, requestID)

		if userID := c.GetHeader("X-User-ID"); userID != "" {
			ctx = context.WithValue(ctx, types.CtxUserID, userID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debugw("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"request_id", types.GetRequestID(c.Request.Context()),
		)
	}
}

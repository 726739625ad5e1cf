package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/splitfair/splitfair/internal/api"
	v1 "github.com/splitfair/splitfair/internal/api/v1"
	"github.com/splitfair/splitfair/internal/cache"
	"github.com/splitfair/splitfair/internal/config"
	"github.com/splitfair/splitfair/internal/domain/anomaly"
	"github.com/splitfair/splitfair/internal/domain/subscription"
	"github.com/splitfair/splitfair/internal/httpclient"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/notification"
	"github.com/splitfair/splitfair/internal/paypal"
	"github.com/splitfair/splitfair/internal/postgres"
	"github.com/splitfair/splitfair/internal/repository"
	"github.com/splitfair/splitfair/internal/sentry"
	"github.com/splitfair/splitfair/internal/service"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func init() {
	// All timestamps are stored and compared in UTC
	time.Local = time.UTC
}

func main() {
	fx.New(
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			cache.NewInMemoryCache,
			postgres.NewClient,

			newHTTPClient,
			paypal.NewGateway,
			notification.NewDispatcher,

			repository.NewSubscriptionRepository,
			repository.NewHistoryRepository,
			repository.NewEntitlementRepository,
			repository.NewPlanCatalogRepository,
			repository.NewAnomalyRepository,

			newClock,
			newSleeper,
			newUsageCounter,

			service.NewPlanService,
			service.NewEntitlementService,
			service.NewSubscriptionService,

			v1.NewHealthHandler,
			v1.NewSubscriptionHandler,
			v1.NewWebhookHandler,
			v1.NewEntitlementHandler,
			v1.NewPlanHandler,
			newAnomalyHandler,
			newHandlers,
			api.NewRouter,
		),
		sentry.Module(),
		fx.Invoke(migrate),
		fx.Invoke(startServer),
	).Run()
}

func newHTTPClient(cfg *config.Configuration) httpclient.Client {
	return httpclient.NewClientWithTimeout(cfg.PayPal.Timeout)
}

func newClock() subscription.Clock {
	return subscription.RealClock{}
}

func newSleeper() service.Sleeper {
	return service.RealSleeper{}
}

func newUsageCounter() service.UsageCounter {
	return service.ZeroUsageCounter{}
}

func newAnomalyHandler(repo anomaly.Repository, log *logger.Logger) *v1.AnomalyHandler {
	return v1.NewAnomalyHandler(repo, log)
}

func newHandlers(
	health *v1.HealthHandler,
	sub *v1.SubscriptionHandler,
	webhook *v1.WebhookHandler,
	ent *v1.EntitlementHandler,
	plan *v1.PlanHandler,
	anom *v1.AnomalyHandler,
) api.Handlers {
	return api.Handlers{
		Health:       health,
		Subscription: sub,
		Webhook:      webhook,
		Entitlement:  ent,
		Plan:         plan,
		Anomaly:      anom,
	}
}

func migrate(db *gorm.DB, log *logger.Logger) error {
	if err := repository.Migrate(db); err != nil {
		return err
	}
	log.Info("schema migration complete")
	return nil
}

func startServer(
	lc fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Configuration,
	dispatcher notification.Dispatcher,
	log *logger.Logger,
) {
	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting server", "address", cfg.Server.Address)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalw("server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server")
			if err := dispatcher.Close(); err != nil {
				log.Errorw("failed to close notification dispatcher", "error", err)
			}
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}

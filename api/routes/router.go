package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamcart-live/streamcart-backend/api/controllers"
	webhookcontrollers "github.com/streamcart-live/streamcart-backend/api/controllers/webhooks"
	"github.com/streamcart-live/streamcart-backend/api/middleware"
	"github.com/streamcart-live/streamcart-backend/internal/batches"
	"github.com/streamcart-live/streamcart-backend/internal/notifications"
	"github.com/streamcart-live/streamcart-backend/internal/orders"
	"github.com/streamcart-live/streamcart-backend/pkg/config"
	"github.com/streamcart-live/streamcart-backend/pkg/db"
	"github.com/streamcart-live/streamcart-backend/pkg/logger"
	"github.com/streamcart-live/streamcart-backend/pkg/metrics"
	"github.com/streamcart-live/streamcart-backend/pkg/redis"
	"github.com/streamcart-live/streamcart-backend/pkg/stripe"
)

// RouterParams bundle everything the HTTP surface needs.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          *redis.Client
	Stripe         *stripe.Client
	WebhookService webhookcontrollers.StripeWebhookService
	WebhookMetrics *metrics.WebhookMetrics
	MetricsHandler http.Handler
	Orders         orders.Service
	Batches        *batches.Service
	Notifications  notifications.Service
}

// NewRouter assembles the API surface: health probes, the Stripe webhook
// ingress, and the buyer-facing read/complete endpoints.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, params.DB, params.Redis, logg))
	})

	metricsHandler := params.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(params.WebhookService, params.Stripe, params.WebhookMetrics, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity)
		r.Use(middleware.Idempotency(params.Redis, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(params.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(params.Orders, logg))
		})

		r.Route("/batches", func(r chi.Router) {
			r.Get("/", controllers.ListBatches(params.Batches, logg))
			r.Get("/{batchId}", controllers.GetBatch(params.Batches, logg))
			r.Post("/{batchId}/complete", controllers.CompletePickup(params.Batches, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(params.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(params.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(params.Notifications, logg))
		})
	})

	return r
}

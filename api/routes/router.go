package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/renewals-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/renewals-backend/api/controllers/webhooks"
	"github.com/angelmondragon/renewals-backend/api/middleware"
	"github.com/angelmondragon/renewals-backend/internal/orders"
	"github.com/angelmondragon/renewals-backend/internal/retry"
	"github.com/angelmondragon/renewals-backend/internal/webhooks"
	squarewebhook "github.com/angelmondragon/renewals-backend/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/renewals-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/renewals-backend/pkg/config"
	"github.com/angelmondragon/renewals-backend/pkg/db"
	"github.com/angelmondragon/renewals-backend/pkg/logger"
	"github.com/angelmondragon/renewals-backend/pkg/redis"
	pkgsquare "github.com/angelmondragon/renewals-backend/pkg/square"
	pkgstripe "github.com/angelmondragon/renewals-backend/pkg/stripe"
)

// RouterParams carries everything the HTTP surface needs.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	Metrics       *prometheus.Registry
	Orders        orders.Service
	Retry         retry.Service
	Rules         retry.RulesService
	StripeClient  *pkgstripe.Client
	SquareClient  *pkgsquare.Client
	StripeWebhook *stripewebhook.Service
	SquareWebhook *squarewebhook.Service
	StripeGuard   *webhooks.IdempotencyGuard
	SquareGuard   *webhooks.IdempotencyGuard
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins...),
	)

	webhookPolicy := middleware.NewRateLimitPolicy("webhooks", time.Minute, 600)
	adminPolicy := middleware.NewRateLimitPolicy("admin", time.Minute, 120)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, p.Redis, logg))
		if p.StripeWebhook != nil {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeClient, p.StripeGuard, logg))
		}
		if p.SquareWebhook != nil {
			r.Post("/square", webhookcontrollers.SquareWebhook(p.SquareWebhook, p.SquareClient, p.SquareGuard, logg))
		}
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Service.AdminAPIKey, logg))
		r.Use(middleware.RateLimit(adminPolicy, p.Redis, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Route("/retry-rules", func(r chi.Router) {
			r.Get("/", controllers.RetryRuleList(p.Rules, logg))
			r.Post("/", controllers.RetryRuleCreate(p.Rules, logg))
			r.Put("/{ruleId}", controllers.RetryRuleUpdate(p.Rules, logg))
			r.Delete("/{ruleId}", controllers.RetryRuleDelete(p.Rules, logg))
		})

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", controllers.AdminOrderDetail(p.Orders, logg))
			r.Post("/status", controllers.AdminOrderStatusChange(p.Orders, logg))
			r.Post("/notes", controllers.AdminOrderAddNote(p.Orders, logg))
			r.Get("/retry-attempts", controllers.RetryAttemptList(p.Retry, logg))
			r.Post("/retry/cancel", controllers.RetryCancel(p.Retry, logg))
		})
	})

	return r
}

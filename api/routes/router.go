package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rowanpress/members-backend/api/controllers"
	"github.com/rowanpress/members-backend/api/middleware"
	"github.com/rowanpress/members-backend/pkg/config"
	"github.com/rowanpress/members-backend/pkg/db"
	"github.com/rowanpress/members-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	memberService controllers.MemberService,
	planService controllers.PlanService,
	engine controllers.ReconcileEngine,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/members", func(r chi.Router) {
		r.Get("/", controllers.MemberList(memberService, logg))
		r.Post("/", controllers.MemberCreate(memberService, logg))

		r.Route("/{memberId}", func(r chi.Router) {
			r.Get("/", controllers.MemberDetail(memberService, logg))
			r.Patch("/", controllers.MemberUpdate(memberService, logg))
			r.Delete("/", controllers.MemberDelete(memberService, logg))

			r.Post("/subscriptions/link-customer", controllers.LinkCustomer(engine, logg))
			r.Put("/subscriptions/{subscriptionId}/cancel-at-period-end", controllers.UpdateSubscriptionCancellation(engine, logg))

			r.Post("/complimentary", controllers.GrantComplimentary(engine, logg))
			r.Delete("/complimentary", controllers.CancelComplimentary(engine, logg))
		})
	})

	r.Route("/api/v1/plans", func(r chi.Router) {
		r.Get("/", controllers.PlanList(planService, logg))
		r.Put("/{planId}", controllers.PlanUpsert(planService, logg))
		r.Delete("/{planId}", controllers.PlanDelete(planService, logg))
	})

	return r
}

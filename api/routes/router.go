package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/cartrecovery/api/controllers"
	cartcontrollers "github.com/angelmondragon/cartrecovery/api/controllers/carts"
	"github.com/angelmondragon/cartrecovery/api/middleware"
	"github.com/angelmondragon/cartrecovery/pkg/config"
	"github.com/angelmondragon/cartrecovery/pkg/logger"
)

// RouterParams collects what the HTTP surface needs. Readiness pingers may be nil.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Carts    cartcontrollers.Service
	Gatherer prometheus.Gatherer
	Ready    map[string]controllers.Pinger
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Ready))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	currency := cfg.Cart.Currency
	r.Route("/api/v1/abandoned-carts", func(r chi.Router) {
		r.Post("/", cartcontrollers.Submit(p.Carts, currency, logg))
		r.Get("/stats", cartcontrollers.Stats(p.Carts, currency, logg))
		r.Post("/sweep", cartcontrollers.Sweep(p.Carts, logg))
		r.Get("/{email}", cartcontrollers.Show(p.Carts, currency, logg))
		r.Delete("/{email}", cartcontrollers.Remove(p.Carts, logg))
	})

	return r
}

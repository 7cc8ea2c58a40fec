package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	mw "fruitorders/internal/middleware"
)

type RouterOptions struct {
	RateLimitEnabled bool
	RPS              float64
	Burst            int
	RequestTimeout   time.Duration
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewRouter(handler *OrderHandler, opts RouterOptions) *chi.Mux {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mw.NewCustomSlogLogger())
	router.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		router.Use(middleware.Timeout(opts.RequestTimeout))
	}

	router.Get("/health", handler.Health)
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	router.Group(func(r chi.Router) {
		if opts.RateLimitEnabled {
			r.Use(mw.IPRateLimiter(opts.RPS, opts.Burst))
		}

		r.Post("/orders", handler.CreateOrder)
		r.Route("/orders/{id}", func(r chi.Router) {
			r.Get("/", handler.GetOrder)
			r.Put("/", handler.UpdateOrder)
			r.Patch("/", handler.UpdateOrder)
			r.Delete("/", handler.DeleteOrder)
			r.Get("/history", handler.GetHistory)
			r.Get("/cost", handler.GetCost)
		})
	})

	return router
}

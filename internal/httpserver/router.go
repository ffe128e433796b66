package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"cachegate/internal/handlers"
	"cachegate/internal/metrics"
	"cachegate/internal/middleware"
)

func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, cacheHandler *handlers.CacheHandler, dsHandler *handlers.DataSubjectHandler) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())               // panic recovery
	r.Use(middleware.Timeout(15 * time.Second)) // request timeout
	r.Use(middleware.MaxBodySize(512 * 1024))   // 512 KB max body

	// cache consult/store protocol
	r.Route("/cache", func(r chi.Router) {
		r.Post("/lookup", cacheHandler.Lookup)
		r.Post("/store", cacheHandler.Store)
	})

	// data subject rights
	r.Route("/api/user", func(r chi.Router) {
		r.Get("/cached-data", dsHandler.Access)
		r.Delete("/cached-data", dsHandler.Delete)
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}

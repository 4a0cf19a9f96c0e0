package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/metrics", h.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/nomenclature", func(r chi.Router) {
			r.Post("/parse", h.ParseFilename)
			r.Get("/resolve", h.ResolveVersion)
			r.Post("/validate", h.ValidateTransition)
		})

		r.Post("/documents", h.CreateDocument)
		r.Get("/documents", h.ListDocuments)
		r.Route("/documents/{documentId}", func(r chi.Router) {
			r.Get("/", h.GetDocument)
			r.Get("/history", h.GetHistory)
			r.Post("/transitions", h.Transition)
			r.Post("/revert", h.RevertLastTransition)
			r.Post("/sync", h.SyncDocument)
			r.Put("/files/{stage}", h.ReplaceFile)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/inconsistencies", h.ListInconsistencies)
			r.Post("/inconsistencies/{documentId}/ignore", h.IgnoreInconsistency)
			r.Post("/sync", h.StartResync)
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

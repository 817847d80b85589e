package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mediagen/internal/http/handlers"
	"mediagen/internal/metrics"
	"mediagen/internal/middleware"
)

type Options struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
	RateLimit      int
	Country        middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Country(opts.Country),
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.IdentityHeaders, middleware.RateLimit(opts.RateLimit, time.Minute))
		r.Post("/v1/generate", app.Generate)
		r.Post("/generate", app.Generate)
		r.Post("/v1/endframe", app.EndFrame)
		r.Get("/v1/generations/{id}", app.GetGeneration)
	})

	return r
}

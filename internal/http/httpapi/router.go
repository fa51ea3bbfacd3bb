package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"tripplanner/internal/http/handlers"
	"tripplanner/internal/infra"
	"tripplanner/internal/middleware"
)

func NewRouter(app *handlers.App, logger infra.Logger, lookup middleware.CountryLookup) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS())
	r.Use(middleware.I18N("en", lookup))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/itineraries", func(r chi.Router) {
		r.Post("/", app.ItinerariesCreate)
		r.Get("/{id}", app.ItineraryStatus)
	})

	return r
}

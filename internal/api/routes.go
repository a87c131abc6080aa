package api

// Router wiring, in the teacher's walletserver/routes.Register shape:
// one function that mounts every controller's handlers onto a chi router.

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"stat7/core"
)

// Controllers bundles every controller Register needs.
type Controllers struct {
	Admission *AdmissionController
	Retrieval *RetrievalController
	Anchor    *AnchorController
	Journey   *JourneyController
	Health    *core.HealthLogger
}

// NewRouter builds the full chi router for the STAT7 HTTP surface.
func NewRouter(c Controllers, log *logrus.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(Logger(log))
	r.Use(RequireAuth)

	r.Get("/healthz", healthz)
	if c.Health != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.Health.Registry(), promhttp.HandlerOpts{}))
	}

	r.Route("/admit", func(r chi.Router) {
		r.Post("/", c.Admission.Admit)
	})
	r.Route("/retrieve", func(r chi.Router) {
		r.Post("/", c.Retrieval.Retrieve)
	})
	r.Route("/anchors", func(r chi.Router) {
		r.Get("/by-coord", c.Anchor.ByCoord)
		r.Get("/{id}", c.Anchor.Get)
	})
	r.Route("/journeys", func(r chi.Router) {
		r.Get("/", c.Journey.Since)
		r.Get("/{id}", c.Journey.Get)
	})

	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"usbdrop/pkg/db"
)

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/drives", func(r chi.Router) {
			r.Post("/", a.handleCreateDrive)
			r.Get("/", a.handleListDrives)
			r.Get("/code/{code}", a.handleGetDriveByCode)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", a.handleGetDrive)
				r.Delete("/", a.handleDeleteDrive)
				r.Post("/prepare", a.handlePrepareDrive)
				r.Get("/package", a.handleDownloadPackage)
				r.Post("/publish", a.handlePublishPackage)
				r.Post("/deploy", a.handleDeployDrive)
				r.Post("/recover", a.handleRecoverDrive)
				r.Get("/tokens", a.handleDriveTokens)
			})
		})

		r.Get("/profiles", a.handleListProfiles)
		r.Get("/profiles/{id}", a.handleGetProfile)

		r.Post("/webhooks/canary", a.handleCanaryWebhook)

		r.Get("/reports/triggers.csv", a.handleTriggersCSV)
		r.Get("/reports/summary", a.handleActivitySummary)
	})

	return r, nil
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.store.DB != nil {
		ctx, cancel := withTimeout(r.Context())
		defer cancel()
		if err := db.Ping(ctx, a.store.DB); err != nil {
			respondError(w, http.StatusServiceUnavailable, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

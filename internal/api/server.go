// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalendo/pluginhub/internal/core"
)

// Server holds the dependencies for our API.
type Server struct {
	app *core.App
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{app: app}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleGetVersion)
		r.Get("/health", s.handleHealth)

		// Repository Registry & Synchronizer
		r.Route("/repositories", func(r chi.Router) {
			r.Get("/", s.handleListRepositories)
			r.Post("/", s.handleAddRepository)
			r.Post("/sync", s.handleSyncAllRepositories)

			r.Route("/{repositoryID}", func(r chi.Router) {
				r.Get("/", s.handleGetRepository)
				r.Patch("/", s.handleUpdateRepository)
				r.Delete("/", s.handleRemoveRepository)
				r.Post("/toggle", s.handleToggleRepository)
				r.Post("/sync", s.handleSyncRepository)
				r.Get("/plugins", s.handleGetRepositoryPlugins)
			})
		})

		// Plugin Search & installed plugins
		r.Get("/plugins/search", s.handleSearchPlugins)
		r.Get("/plugins/installed", s.handleListInstalledPlugins)
		r.Post("/plugins/installed/{pluginID}/activate", s.handleActivatePlugin)
		r.Post("/plugins/installed/{pluginID}/deactivate", s.handleDeactivatePlugin)

		// Update Detector, Applier & Settings
		r.Route("/updates", func(r chi.Router) {
			r.Get("/", s.handleListAvailableUpdates)
			r.Post("/check", s.handleCheckForUpdates)
			r.Post("/apply-all", s.handleApplyAllUpdates)
			r.Post("/{pluginID}/apply", s.handleApplyUpdate)
			r.Get("/history", s.handleGetUpdateHistory)
			r.Get("/history/{pluginID}", s.handleGetPluginUpdateHistory)
			r.Get("/settings", s.handleGetUpdateSettings)
			r.Put("/settings", s.handleConfigureUpdateSettings)
			r.Get("/last-check", s.handleGetLastCheck)
			r.Get("/status", s.handleGetUpdateStatus)
		})

		// Job triggers
		r.Get("/jobs/status", s.handleGetJobsStatus)
		r.Post("/jobs/run", s.handleRunJob)
	})

	// WebSocket route streaming pluginSystem.* events
	r.Get("/ws/events", func(w http.ResponseWriter, r *http.Request) {
		s.app.WsHub().ServeWs(w, r)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DB().Ping(); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": s.app.Config().App.Version})
}

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalendo/pluginhub/internal/models"
)

// handleListRepositories lists all plugin repositories. ?enabled=true limits
// the list to enabled ones.
func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	repos := s.app.Repositories()
	if enabled, _ := strconv.ParseBool(r.URL.Query().Get("enabled")); enabled {
		RespondWithJSON(w, http.StatusOK, repos.GetEnabledRepositories())
		return
	}
	RespondWithJSON(w, http.StatusOK, repos.GetRepositories())
}

func (s *Server) handleGetRepository(w http.ResponseWriter, r *http.Request) {
	repositoryID := chi.URLParam(r, "repositoryID")
	repo, ok := s.app.Repositories().GetRepository(repositoryID)
	if !ok {
		RespondWithError(w, http.StatusNotFound, "Repository not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, repo)
}

// handleAddRepository registers a new plugin repository
func (s *Server) handleAddRepository(w http.ResponseWriter, r *http.Request) {
	var def models.RepositoryDefinition
	if err := decodeJSON(r, &def); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	repo, err := s.app.Repositories().AddRepository(r.Context(), def)
	if err != nil {
		respondWithPluginError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, repo)
}

func (s *Server) handleUpdateRepository(w http.ResponseWriter, r *http.Request) {
	var patch models.RepositoryPatch
	if err := decodeJSON(r, &patch); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	repo, err := s.app.Repositories().UpdateRepository(r.Context(), chi.URLParam(r, "repositoryID"), patch)
	if err != nil {
		respondWithPluginError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, repo)
}

func (s *Server) handleRemoveRepository(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Repositories().RemoveRepository(r.Context(), chi.URLParam(r, "repositoryID")); err != nil {
		respondWithPluginError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleRepository(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(r, &payload); err != nil || payload.Enabled == nil {
		RespondWithError(w, http.StatusBadRequest, "Field 'enabled' is required")
		return
	}

	repo, err := s.app.Repositories().ToggleRepository(r.Context(), chi.URLParam(r, "repositoryID"), *payload.Enabled)
	if err != nil {
		respondWithPluginError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, repo)
}

func (s *Server) handleSyncRepository(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.app.Repositories().SyncRepository(r.Context(), chi.URLParam(r, "repositoryID"))
	if err != nil {
		respondWithPluginError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, catalog)
}

func (s *Server) handleSyncAllRepositories(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Repositories().SyncAllRepositories(r.Context()))
}

// handleGetRepositoryPlugins returns the catalog of a repository, syncing it
// first when the cache is stale or ?force=true is given.
func (s *Server) handleGetRepositoryPlugins(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	catalog, err := s.app.Repositories().GetRepositoryPlugins(r.Context(), chi.URLParam(r, "repositoryID"), force)
	if err != nil {
		respondWithPluginError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, catalog)
}

func (s *Server) handleSearchPlugins(w http.ResponseWriter, r *http.Request) {
	results := s.app.Repositories().SearchPlugins(r.Context(), r.URL.Query().Get("q"))
	RespondWithJSON(w, http.StatusOK, results)
}

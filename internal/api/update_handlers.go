package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalendo/pluginhub/internal/models"
)

// handleListAvailableUpdates returns the pending updates ordered by plugin id.
func (s *Server) handleListAvailableUpdates(w http.ResponseWriter, r *http.Request) {
	pending := s.app.Updates().GetAvailableUpdates()
	updates := make([]models.AvailableUpdate, 0, len(pending))
	for _, u := range pending {
		updates = append(updates, u)
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].ID < updates[j].ID })
	RespondWithJSON(w, http.StatusOK, updates)
}

func (s *Server) handleCheckForUpdates(w http.ResponseWriter, r *http.Request) {
	var opts models.CheckOptions
	if err := decodeJSON(r, &opts); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	found, err := s.app.Updates().CheckForUpdates(r.Context(), opts)
	if err != nil {
		respondWithPluginError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, found)
}

func (s *Server) handleApplyUpdate(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginID")
	if err := s.app.Updates().ApplyUpdate(r.Context(), pluginID); err != nil {
		respondWithPluginError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Plugin " + pluginID + " updated successfully",
	})
}

func (s *Server) handleApplyAllUpdates(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Updates().ApplyAllUpdates(r.Context()))
}

func (s *Server) handleGetUpdateHistory(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Updates().GetUpdateHistory())
}

func (s *Server) handleGetPluginUpdateHistory(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Updates().GetPluginUpdateHistory(chi.URLParam(r, "pluginID")))
}

func (s *Server) handleGetUpdateSettings(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Updates().GetUpdateSettings())
}

func (s *Server) handleConfigureUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.UpdateSettingsPatch
	if err := decodeJSON(r, &patch); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings, err := s.app.Updates().ConfigureUpdateSettings(r.Context(), patch)
	if err != nil {
		respondWithPluginError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, settings)
}

func (s *Server) handleGetLastCheck(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		LastCheck *time.Time `json:"lastCheck"`
	}
	if last, ok := s.app.Updates().GetLastCheck(); ok {
		payload.LastCheck = &last
	}
	RespondWithJSON(w, http.StatusOK, payload)
}

// handleGetUpdateStatus reports the plugin currently being updated, if any.
func (s *Server) handleGetUpdateStatus(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"updatingPlugin":   s.app.Updates().GetUpdatingPlugin(),
		"availableUpdates": len(s.app.Updates().GetAvailableUpdates()),
	})
}

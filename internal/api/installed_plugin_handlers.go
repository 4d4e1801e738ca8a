package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/kalendo/pluginhub/internal/models"
)

func (s *Server) handleListInstalledPlugins(w http.ResponseWriter, r *http.Request) {
	installed, err := s.app.Installer().GetInstalledPlugins(r.Context())
	if err != nil {
		respondWithPluginError(w, err)
		return
	}

	list := make([]models.InstalledPlugin, 0, len(installed))
	for _, p := range installed {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	RespondWithJSON(w, http.StatusOK, list)
}

func (s *Server) handleActivatePlugin(w http.ResponseWriter, r *http.Request) {
	s.setPluginActive(w, r, true)
}

func (s *Server) handleDeactivatePlugin(w http.ResponseWriter, r *http.Request) {
	s.setPluginActive(w, r, false)
}

func (s *Server) setPluginActive(w http.ResponseWriter, r *http.Request, active bool) {
	pluginID := chi.URLParam(r, "pluginID")
	var err error
	if active {
		err = s.app.Installer().ActivatePlugin(r.Context(), pluginID)
	} else {
		err = s.app.Installer().DeactivatePlugin(r.Context(), pluginID)
	}
	if err != nil {
		respondWithPluginError(w, err)
		return
	}

	plugin, err := s.app.Installer().GetPlugin(r.Context(), pluginID)
	if err != nil {
		respondWithPluginError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, plugin)
}

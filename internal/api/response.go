// Helper functions for sending standardized JSON responses.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kalendo/pluginhub/internal/installer"
	"github.com/kalendo/pluginhub/internal/plugins"
)

// RespondWithJSON writes a JSON response with the given status code and payload.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		// If marshaling fails, return an error response
		RespondWithError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithError writes a standardized JSON error response.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithPluginError maps plugin system errors to a status code.
func respondWithPluginError(w http.ResponseWriter, err error) {
	RespondWithError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, plugins.ErrRepositoryInvalid),
		errors.Is(err, plugins.ErrInvalidSettings),
		errors.Is(err, installer.ErrInvalidPackage):
		return http.StatusBadRequest
	case errors.Is(err, plugins.ErrOfficialRepository):
		return http.StatusForbidden
	case errors.Is(err, plugins.ErrRepositoryNotFound),
		errors.Is(err, plugins.ErrUpdateNotFound),
		errors.Is(err, installer.ErrNotInstalled):
		return http.StatusNotFound
	case errors.Is(err, plugins.ErrRepositoryExists),
		errors.Is(err, plugins.ErrRepositoryDisabled),
		errors.Is(err, plugins.ErrNoRepositories),
		errors.Is(err, installer.ErrAlreadyInstalled):
		return http.StatusConflict
	case errors.Is(err, plugins.ErrRepositoryUnreachable),
		errors.Is(err, plugins.ErrResponseTooLarge):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body into dest. An empty body leaves dest untouched.
func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(dest)
}

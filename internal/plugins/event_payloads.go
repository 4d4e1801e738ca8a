package plugins

import (
	"time"

	"github.com/kalendo/pluginhub/internal/models"
)

// Payloads published through the notifier.

type RepositoryEvent struct {
	Repository models.Repository `json:"repository"`
}

type RepositoryIDEvent struct {
	RepositoryID string `json:"repositoryId"`
}

type RepositoryToggledEvent struct {
	RepositoryID string `json:"repositoryId"`
	Enabled      bool   `json:"enabled"`
}

type RepositoryErrorEvent struct {
	RepositoryID string `json:"repositoryId"`
	Operation    string `json:"operation"`
	Error        string `json:"error"`
}

type RepositorySyncCompletedEvent struct {
	RepositoryID string    `json:"repositoryId"`
	PluginCount  int       `json:"pluginCount"`
	SyncedAt     time.Time `json:"syncedAt"`
}

type AllRepositoriesSyncedEvent struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

type UpdateCheckCompletedEvent struct {
	UpdatesFound int       `json:"updatesFound"`
	CheckedAt    time.Time `json:"checkedAt"`
}

type UpdateCheckStartedEvent struct {
	FullCheck bool `json:"fullCheck"`
}

// UpdateAvailableEvent is published for every detected update.
// NotificationsEnabled tells user-facing consumers whether to surface it.
type UpdateAvailableEvent struct {
	models.AvailableUpdate
	NotificationsEnabled bool `json:"notificationsEnabled"`
}

type UpdateStartedEvent struct {
	PluginID       string `json:"pluginId"`
	CurrentVersion string `json:"currentVersion"`
	NewVersion     string `json:"newVersion"`
}

type UpdateCompletedEvent struct {
	PluginID     string `json:"pluginId"`
	FromVersion  string `json:"fromVersion"`
	ToVersion    string `json:"toVersion"`
	RepositoryID string `json:"repositoryId"`
}

// UpdateErrorEvent is published for failed applies and failed checks.
type UpdateErrorEvent struct {
	PluginID  string `json:"pluginId,omitempty"`
	Operation string `json:"operation"`
	Error     string `json:"error"`
}

type MassUpdateStartedEvent struct {
	PluginIDs []string `json:"pluginIds"`
}

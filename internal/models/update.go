package models

import "time"

// AvailableUpdate describes a pending update for an installed plugin.
type AvailableUpdate struct {
	ID                       string    `json:"id"`
	CurrentVersion           string    `json:"currentVersion"`
	NewVersion               string    `json:"newVersion"`
	RepositoryID             string    `json:"repositoryId"`
	ReleaseNotes             string    `json:"releaseNotes"`
	CompatibleWithCurrentApp bool      `json:"compatibleWithCurrentApp"`
	DetectedAt               time.Time `json:"detectedAt"`
}

// UpdateHistoryEntry records one applied update.
type UpdateHistoryEntry struct {
	FromVersion  string    `json:"fromVersion"`
	ToVersion    string    `json:"toVersion"`
	AppliedAt    time.Time `json:"appliedAt"`
	RepositoryID string    `json:"repositoryId"`
}

// UpdateSettings governs automatic checks and auto-apply behavior.
type UpdateSettings struct {
	CheckAutomatically bool `json:"checkAutomatically"`
	// CheckInterval is expressed in milliseconds.
	CheckInterval              int64 `json:"checkInterval"`
	AutoUpdate                 bool  `json:"autoUpdate"`
	UpdateNotificationsEnabled bool  `json:"updateNotificationsEnabled"`
}

// UpdateSettingsPatch carries the settings fields to change. Nil fields are kept.
type UpdateSettingsPatch struct {
	CheckAutomatically         *bool  `json:"checkAutomatically,omitempty"`
	CheckInterval              *int64 `json:"checkInterval,omitempty"`
	AutoUpdate                 *bool  `json:"autoUpdate,omitempty"`
	UpdateNotificationsEnabled *bool  `json:"updateNotificationsEnabled,omitempty"`
}

// CheckOptions tunes a single update check.
type CheckOptions struct {
	// FullCheck discards previously detected updates before recomputing.
	FullCheck bool `json:"fullCheck"`
}

// UpdateFailure records why one plugin failed during a mass update.
type UpdateFailure struct {
	PluginID string `json:"pluginId"`
	Error    string `json:"error"`
}

// MassUpdateResult is the outcome of applying every pending update.
type MassUpdateResult struct {
	Successful []string        `json:"successful"`
	Failed     []UpdateFailure `json:"failed"`
}

// InstalledPlugin is what the package installer reports for one plugin.
type InstalledPlugin struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Version      string `json:"version"`
	RepositoryID string `json:"repositoryId,omitempty"`
	Active       bool   `json:"active"`
}

package models

import "time"

// Repository is a content source advertising installable plugins.
type Repository struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	URL         string     `json:"url"`
	APIEndpoint string     `json:"apiEndpoint"`
	Description string     `json:"description,omitempty"`
	Official    bool       `json:"official"`
	Enabled     bool       `json:"enabled"`
	AddedAt     time.Time  `json:"addedAt"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	LastSync    *time.Time `json:"lastSync,omitempty"`
	// Priority orders search results; lower values take precedence.
	Priority int `json:"priority"`
}

// RepositoryDefinition is the input for registering a new repository.
type RepositoryDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	APIEndpoint string `json:"apiEndpoint,omitempty"`
	Description string `json:"description,omitempty"`
	// Priority defaults to 100 when nil.
	Priority *int `json:"priority,omitempty"`
}

// RepositoryPatch carries the mutable fields of a repository. Nil fields are
// left unchanged. ID and Official are accepted so callers can send a whole
// record back, but they are always stripped before applying.
type RepositoryPatch struct {
	ID          *string `json:"id,omitempty"`
	Official    *bool   `json:"official,omitempty"`
	Name        *string `json:"name,omitempty"`
	URL         *string `json:"url,omitempty"`
	APIEndpoint *string `json:"apiEndpoint,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
}

// PluginCatalogEntry is a plugin descriptor advertised by a repository.
type PluginCatalogEntry struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Version       string   `json:"version"`
	Author        string   `json:"author,omitempty"`
	Description   string   `json:"description,omitempty"`
	MinAppVersion string   `json:"minAppVersion,omitempty"`
	MaxAppVersion string   `json:"maxAppVersion,omitempty"`
	Downloads     int64    `json:"downloads"`
	Rating        float64  `json:"rating"`
	Tags          []string `json:"tags,omitempty"`
	LastUpdated   string   `json:"lastUpdated,omitempty"`
	ReleaseNotes  string   `json:"releaseNotes,omitempty"`
	DownloadURL   string   `json:"downloadUrl,omitempty"`
	Extra         Metadata `json:"extra,omitempty"`
}

// Metadata holds repository-specific fields this system does not interpret.
type Metadata map[string]any

// RepositoryManifest is the document served by a repository's catalog endpoint.
type RepositoryManifest struct {
	Version    string               `json:"version"`
	Repository RepositoryInfo       `json:"repository"`
	Plugins    []PluginCatalogEntry `json:"plugins"`
}

// RepositoryInfo contains repository metadata
type RepositoryInfo struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// RepositoryCacheEntry is the last synced catalog of one repository.
type RepositoryCacheEntry struct {
	Plugins  []PluginCatalogEntry `json:"plugins"`
	SyncedAt time.Time            `json:"syncedAt"`
}

// SearchResult is a catalog entry annotated with the repository it came from.
type SearchResult struct {
	PluginCatalogEntry
	RepositoryID   string `json:"repositoryId"`
	RepositoryName string `json:"repositoryName"`
}

// SyncFailure records why one repository failed during a batch sync.
type SyncFailure struct {
	RepositoryID string `json:"repositoryId"`
	Error        string `json:"error"`
}

// SyncAllResult is the outcome of synchronizing every enabled repository.
type SyncAllResult struct {
	Successful []string      `json:"successful"`
	Failed     []SyncFailure `json:"failed"`
}

// Package is a downloaded plugin package ready to be installed.
type Package struct {
	PluginID     string `json:"pluginId"`
	Version      string `json:"version"`
	RepositoryID string `json:"repositoryId"`
	Filename     string `json:"filename"`
	Data         []byte `json:"-"`
}

package plugins

import (
	"context"

	"github.com/kalendo/pluginhub/internal/models"
)

// Storage is the persistent key-value store. Values are JSON-serializable.
type Storage interface {
	// Get loads key into dest and reports whether the key was present.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// Transport talks to remote repositories. Timeout and retry policy belong
// to the implementation.
type Transport interface {
	FetchCatalog(ctx context.Context, repo models.Repository) ([]models.PluginCatalogEntry, error)
	DownloadPackage(ctx context.Context, repo models.Repository, pluginID, version string) (*models.Package, error)
	// Probe reports whether the repository answers at all.
	Probe(ctx context.Context, url, apiEndpoint string) bool
}

// InstallOptions tunes InstallPlugin.
type InstallOptions struct {
	Update bool
}

// UninstallOptions tunes UninstallPlugin.
type UninstallOptions struct {
	KeepSettings bool
}

// Installer installs and removes plugin packages.
type Installer interface {
	GetInstalledPlugins(ctx context.Context) (map[string]models.InstalledPlugin, error)
	HasUpdate(ctx context.Context, pluginID string, remote models.PluginCatalogEntry) (bool, error)
	InstallPlugin(ctx context.Context, pkg *models.Package, opts InstallOptions) error
	UninstallPlugin(ctx context.Context, pluginID string, opts UninstallOptions) error
}

// PluginRegistry tracks plugin definitions and their activation state.
type PluginRegistry interface {
	GetPlugin(ctx context.Context, pluginID string) (*models.InstalledPlugin, error)
	IsPluginActive(ctx context.Context, pluginID string) (bool, error)
	ActivatePlugin(ctx context.Context, pluginID string) error
}

// Package installer is the filesystem package installer and plugin registry.
// Packages are zip or tar archives carrying a plugin.json at their root (or
// inside a single top-level folder). Each plugin is unpacked into its own
// directory under the plugins path and tracked in the installed_plugins table.
package installer

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mholt/archives"

	"github.com/kalendo/pluginhub/internal/models"
	"github.com/kalendo/pluginhub/internal/plugins"
	"github.com/kalendo/pluginhub/internal/store"
	"github.com/kalendo/pluginhub/internal/util"
)

var (
	ErrNotInstalled     = errors.New("plugin is not installed")
	ErrAlreadyInstalled = errors.New("plugin is already installed")
	ErrInvalidPackage   = errors.New("invalid plugin package")
)

// maxExtractedSize bounds the unpacked size of a single package.
const maxExtractedSize = 256 << 20

// Manager installs packages on disk and tracks their activation state.
// It implements plugins.Installer and plugins.PluginRegistry.
type Manager struct {
	store      *store.Store
	pluginsDir string

	// mu serializes filesystem changes under pluginsDir.
	mu sync.Mutex
}

var (
	_ plugins.Installer      = (*Manager)(nil)
	_ plugins.PluginRegistry = (*Manager)(nil)
)

// NewManager validates pluginsDir, creating it when missing.
func NewManager(st *store.Store, pluginsDir string) (*Manager, error) {
	if err := util.EnsureWritableDir(pluginsDir); err != nil {
		return nil, fmt.Errorf("invalid plugins directory: %w", err)
	}
	abs, err := filepath.Abs(pluginsDir)
	if err != nil {
		return nil, err
	}
	return &Manager{store: st, pluginsDir: abs}, nil
}

// Dir returns the absolute plugins directory.
func (m *Manager) Dir() string {
	return m.pluginsDir
}

// GetInstalledPlugins returns every installed plugin keyed by id.
func (m *Manager) GetInstalledPlugins(ctx context.Context) (map[string]models.InstalledPlugin, error) {
	rows, err := m.store.GetAllInstalledPlugins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed plugins: %w", err)
	}
	out := make(map[string]models.InstalledPlugin, len(rows))
	for _, row := range rows {
		out[row.PluginID] = toModel(row)
	}
	return out, nil
}

// HasUpdate reports whether remote is newer than the installed version. A
// plugin that is not installed never has an update.
func (m *Manager) HasUpdate(ctx context.Context, pluginID string, remote models.PluginCatalogEntry) (bool, error) {
	row, err := m.store.GetInstalledPlugin(ctx, pluginID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return plugins.CompareVersions(row.InstalledVersion, remote.Version) < 0, nil
}

// InstallPlugin unpacks pkg into the plugin's directory. A settings.json
// left behind by a previous install is carried over when the package does
// not ship one. New installs start inactive.
func (m *Manager) InstallPlugin(ctx context.Context, pkg *models.Package, opts plugins.InstallOptions) error {
	if pkg == nil || pkg.PluginID == "" {
		return fmt.Errorf("%w: missing plugin id", ErrInvalidPackage)
	}
	dirName := util.SanitizeFolderName(pkg.PluginID)
	if dirName == "" {
		return fmt.Errorf("%w: unusable plugin id %q", ErrInvalidPackage, pkg.PluginID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.GetInstalledPlugin(ctx, pkg.PluginID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if existing != nil && !opts.Update {
		return fmt.Errorf("%w: %s", ErrAlreadyInstalled, pkg.PluginID)
	}

	staging, err := os.MkdirTemp(m.pluginsDir, ".staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := extract(ctx, pkg, staging); err != nil {
		return err
	}

	root, err := packageRoot(staging)
	if err != nil {
		return err
	}
	manifest, err := LoadManifest(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	if manifest.ID != pkg.PluginID {
		return fmt.Errorf("%w: package declares id %q, expected %q", ErrInvalidPackage, manifest.ID, pkg.PluginID)
	}

	target := filepath.Join(m.pluginsDir, dirName)
	if err := carrySettings(target, root); err != nil {
		return err
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to replace %s: %w", target, err)
	}
	if err := os.Rename(root, target); err != nil {
		return fmt.Errorf("failed to move plugin into place: %w", err)
	}

	repositoryID := sql.NullString{String: pkg.RepositoryID, Valid: pkg.RepositoryID != ""}
	if err := m.store.CreateOrUpdateInstalledPlugin(ctx, &store.InstalledPlugin{
		PluginID:         manifest.ID,
		Name:             manifest.Name,
		RepositoryID:     repositoryID,
		InstalledVersion: manifest.Version,
		Path:             dirName,
	}); err != nil {
		return fmt.Errorf("failed to record installed plugin: %w", err)
	}

	log.Printf("Installed plugin %s@%s", manifest.ID, manifest.Version)
	return nil
}

// UninstallPlugin removes the plugin's files and record. With KeepSettings
// its settings.json stays on disk for a later install.
func (m *Manager) UninstallPlugin(ctx context.Context, pluginID string, opts plugins.UninstallOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, err := m.store.GetInstalledPlugin(ctx, pluginID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotInstalled, pluginID)
	}
	if err != nil {
		return err
	}

	dir := filepath.Join(m.pluginsDir, row.Path)
	if opts.KeepSettings {
		err = removeAllExcept(dir, settingsFile)
	} else {
		err = os.RemoveAll(dir)
	}
	if err != nil {
		return fmt.Errorf("failed to remove plugin files: %w", err)
	}

	if err := m.store.DeleteInstalledPlugin(ctx, pluginID); err != nil {
		return fmt.Errorf("failed to delete installed plugin record: %w", err)
	}
	log.Printf("Uninstalled plugin %s", pluginID)
	return nil
}

func (m *Manager) GetPlugin(ctx context.Context, pluginID string) (*models.InstalledPlugin, error) {
	row, err := m.store.GetInstalledPlugin(ctx, pluginID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, pluginID)
	}
	if err != nil {
		return nil, err
	}
	p := toModel(row)
	return &p, nil
}

func (m *Manager) IsPluginActive(ctx context.Context, pluginID string) (bool, error) {
	p, err := m.GetPlugin(ctx, pluginID)
	if err != nil {
		return false, err
	}
	return p.Active, nil
}

func (m *Manager) ActivatePlugin(ctx context.Context, pluginID string) error {
	return m.setActive(ctx, pluginID, true)
}

func (m *Manager) DeactivatePlugin(ctx context.Context, pluginID string) error {
	return m.setActive(ctx, pluginID, false)
}

func (m *Manager) setActive(ctx context.Context, pluginID string, active bool) error {
	err := m.store.SetInstalledPluginActive(ctx, pluginID, active)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotInstalled, pluginID)
	}
	return err
}

// Reconcile drops records whose plugin directory or manifest has gone
// missing from disk and returns their ids.
func (m *Manager) Reconcile(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.store.GetAllInstalledPlugins(ctx)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, row := range rows {
		manifestPath := filepath.Join(m.pluginsDir, row.Path, manifestFile)
		if _, err := os.Stat(manifestPath); err == nil {
			continue
		}
		if err := m.store.DeleteInstalledPlugin(ctx, row.PluginID); err != nil {
			return removed, err
		}
		log.Printf("Plugin %s disappeared from disk, record removed", row.PluginID)
		removed = append(removed, row.PluginID)
	}
	return removed, nil
}

func toModel(row *store.InstalledPlugin) models.InstalledPlugin {
	return models.InstalledPlugin{
		ID:           row.PluginID,
		Name:         row.Name,
		Version:      row.InstalledVersion,
		RepositoryID: row.RepositoryID.String,
		Active:       row.Active,
	}
}

// extract unpacks any archive format mholt/archives can identify.
func extract(ctx context.Context, pkg *models.Package, dest string) error {
	format, _, err := archives.Identify(ctx, pkg.Filename, bytes.NewReader(pkg.Data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("%w: %s is not an archive", ErrInvalidPackage, pkg.Filename)
	}

	var written int64
	err = extractor.Extract(ctx, bytes.NewReader(pkg.Data), func(ctx context.Context, f archives.FileInfo) error {
		target, err := safeJoin(dest, f.NameInArchive)
		if err != nil {
			return err
		}
		if f.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		// Links and devices are never part of a plugin.
		if !f.Mode().IsRegular() {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}

		src, err := f.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		n, err := io.Copy(out, io.LimitReader(src, maxExtractedSize-written+1))
		written += n
		if closeErr := out.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		if written > maxExtractedSize {
			return fmt.Errorf("%w: package exceeds %d bytes when unpacked", ErrInvalidPackage, maxExtractedSize)
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrInvalidPackage) {
		return fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}
	return err
}

// safeJoin resolves an archive entry name below dest.
func safeJoin(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: entry %q escapes the package", ErrInvalidPackage, name)
	}
	return filepath.Join(dest, clean), nil
}

// packageRoot returns the directory holding plugin.json: the staging
// directory itself or its single top-level folder.
func packageRoot(staging string) (string, error) {
	if _, err := os.Stat(filepath.Join(staging, manifestFile)); err == nil {
		return staging, nil
	}
	entries, err := os.ReadDir(staging)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		nested := filepath.Join(staging, entries[0].Name())
		if _, err := os.Stat(filepath.Join(nested, manifestFile)); err == nil {
			return nested, nil
		}
	}
	return "", fmt.Errorf("%w: plugin.json not found", ErrInvalidPackage)
}

// carrySettings moves an existing settings.json from target into root
// unless the new package brings its own.
func carrySettings(target, root string) error {
	existing := filepath.Join(target, settingsFile)
	if _, err := os.Stat(existing); err != nil {
		return nil
	}
	incoming := filepath.Join(root, settingsFile)
	if _, err := os.Stat(incoming); err == nil {
		return nil
	}
	if err := os.Rename(existing, incoming); err != nil {
		return fmt.Errorf("failed to preserve settings: %w", err)
	}
	return nil
}

func removeAllExcept(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

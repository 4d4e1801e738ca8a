package plugins

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/kalendo/pluginhub/internal/config"
	"github.com/kalendo/pluginhub/internal/events"
	"github.com/kalendo/pluginhub/internal/models"
)

const (
	keyUpdateHistory    = "update_history"
	keyAvailableUpdates = "available_updates"
	keyLastUpdateCheck  = "last_update_check"
	keyUpdateSettings   = "update_settings"
)

// RepositorySource is the read side of the repository registry used by the
// update manager. *RepositoryManager satisfies it.
type RepositorySource interface {
	GetRepository(id string) (models.Repository, bool)
	GetRepositories() []models.Repository
	GetRepositoryPlugins(ctx context.Context, id string, forceSync bool) ([]models.PluginCatalogEntry, error)
}

// UpdateManager detects and applies plugin updates and owns the update
// settings. Like RepositoryManager, memory is authoritative and every
// mutation is written through to Storage.
type UpdateManager struct {
	repos      RepositorySource
	installer  Installer
	registry   PluginRegistry
	transport  Transport
	storage    Storage
	notifier   *events.Notifier
	appVersion string
	defaults   models.UpdateSettings
	now        func() time.Time

	mu               sync.Mutex
	availableUpdates map[string]models.AvailableUpdate
	history          map[string][]models.UpdateHistoryEntry
	settings         models.UpdateSettings
	lastCheck        *time.Time
	// updatingPlugin is bookkeeping for observers only. ApplyUpdate never
	// reads it to reject overlapping calls.
	updatingPlugin string
}

// NewUpdateManager creates an update manager. Call Initialize before use.
func NewUpdateManager(
	cfg *config.Config,
	repos RepositorySource,
	installer Installer,
	registry PluginRegistry,
	transport Transport,
	storage Storage,
	notifier *events.Notifier,
) *UpdateManager {
	defaults := models.UpdateSettings{
		CheckAutomatically:         cfg.Updates.CheckAutomatically,
		CheckInterval:              cfg.Updates.CheckInterval,
		AutoUpdate:                 cfg.Updates.AutoUpdate,
		UpdateNotificationsEnabled: cfg.Updates.Notifications,
	}
	return &UpdateManager{
		repos:            repos,
		installer:        installer,
		registry:         registry,
		transport:        transport,
		storage:          storage,
		notifier:         notifier,
		appVersion:       cfg.App.Version,
		defaults:         defaults,
		now:              time.Now,
		availableUpdates: make(map[string]models.AvailableUpdate),
		history:          make(map[string][]models.UpdateHistoryEntry),
		settings:         defaults,
	}
}

// SetClock replaces the time source. Intended for tests.
func (u *UpdateManager) SetClock(now func() time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.now = now
}

// Initialize loads history, pending updates, the last check time and the
// settings from storage. Missing settings fall back to configured defaults.
func (u *UpdateManager) Initialize(ctx context.Context) error {
	history := make(map[string][]models.UpdateHistoryEntry)
	if _, err := u.storage.Get(ctx, keyUpdateHistory, &history); err != nil {
		return fmt.Errorf("failed to load update history: %w", err)
	}
	available := make(map[string]models.AvailableUpdate)
	if _, err := u.storage.Get(ctx, keyAvailableUpdates, &available); err != nil {
		return fmt.Errorf("failed to load available updates: %w", err)
	}
	var lastCheck time.Time
	hasLastCheck, err := u.storage.Get(ctx, keyLastUpdateCheck, &lastCheck)
	if err != nil {
		return fmt.Errorf("failed to load last update check: %w", err)
	}
	settings := u.defaults
	if _, err := u.storage.Get(ctx, keyUpdateSettings, &settings); err != nil {
		return fmt.Errorf("failed to load update settings: %w", err)
	}
	if settings.CheckInterval <= 0 {
		settings.CheckInterval = u.defaults.CheckInterval
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.history = history
	u.availableUpdates = available
	u.settings = settings
	u.lastCheck = nil
	if hasLastCheck {
		u.lastCheck = &lastCheck
	}
	log.Printf("Loaded %d pending plugin updates", len(available))
	return nil
}

// CheckForUpdates compares every installed plugin against the catalogs of
// the enabled repositories, in registration order. The first repository
// reporting an update wins and later repositories are not consulted for
// that plugin. Returns the updates found by this check.
func (u *UpdateManager) CheckForUpdates(ctx context.Context, opts models.CheckOptions) ([]models.AvailableUpdate, error) {
	u.mu.Lock()
	now := u.now()
	u.lastCheck = &now
	u.mu.Unlock()
	if err := u.storage.Set(ctx, keyLastUpdateCheck, now); err != nil {
		return nil, u.failCheck(fmt.Errorf("failed to persist last update check: %w", err))
	}

	u.notifier.Emit(events.UpdateCheckStarted, UpdateCheckStartedEvent{FullCheck: opts.FullCheck})

	repos := u.repos.GetRepositories()
	if len(repos) == 0 {
		return nil, u.failCheck(ErrNoRepositories)
	}

	installed, err := u.installer.GetInstalledPlugins(ctx)
	if err != nil {
		return nil, u.failCheck(fmt.Errorf("failed to list installed plugins: %w", err))
	}

	if opts.FullCheck {
		u.mu.Lock()
		u.availableUpdates = make(map[string]models.AvailableUpdate)
		u.mu.Unlock()
	}

	ids := make([]string, 0, len(installed))
	for id := range installed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var found []models.AvailableUpdate
	for _, id := range ids {
		plugin := installed[id]
		for _, repo := range repos {
			if !repo.Enabled {
				continue
			}
			update, err := u.checkPluginInRepository(ctx, repo, id, plugin)
			if err != nil {
				log.Printf("Warning: failed to check %s in repository %s: %v", id, repo.ID, err)
				continue
			}
			if update == nil {
				continue
			}

			u.mu.Lock()
			u.availableUpdates[id] = *update
			notify := u.settings.UpdateNotificationsEnabled
			u.mu.Unlock()

			found = append(found, *update)
			u.notifier.Emit(events.UpdateAvailable, UpdateAvailableEvent{
				AvailableUpdate:      *update,
				NotificationsEnabled: notify,
			})
			break
		}
	}

	u.mu.Lock()
	err = u.storage.Set(ctx, keyAvailableUpdates, u.availableUpdates)
	autoUpdate := u.settings.AutoUpdate
	u.mu.Unlock()
	if err != nil {
		return nil, u.failCheck(fmt.Errorf("failed to persist available updates: %w", err))
	}

	log.Printf("Update check finished: %d updates found", len(found))
	u.notifier.Emit(events.UpdateCheckCompleted, UpdateCheckCompletedEvent{
		UpdatesFound: len(found),
		CheckedAt:    now,
	})

	if autoUpdate && len(found) > 0 {
		u.ApplyAllUpdates(ctx)
	}
	if found == nil {
		found = []models.AvailableUpdate{}
	}
	return found, nil
}

// checkPluginInRepository returns a pending update when repo advertises the
// plugin and the installer reports the advertised version as an update.
func (u *UpdateManager) checkPluginInRepository(ctx context.Context, repo models.Repository, pluginID string, plugin models.InstalledPlugin) (*models.AvailableUpdate, error) {
	catalog, err := u.repos.GetRepositoryPlugins(ctx, repo.ID, false)
	if err != nil {
		return nil, err
	}

	var remote *models.PluginCatalogEntry
	for i := range catalog {
		if catalog[i].ID == pluginID {
			remote = &catalog[i]
			break
		}
	}
	if remote == nil {
		return nil, nil
	}

	hasUpdate, err := u.installer.HasUpdate(ctx, pluginID, *remote)
	if err != nil {
		return nil, err
	}
	if !hasUpdate {
		return nil, nil
	}

	u.mu.Lock()
	now := u.now()
	u.mu.Unlock()
	return &models.AvailableUpdate{
		ID:                       pluginID,
		CurrentVersion:           plugin.Version,
		NewVersion:               remote.Version,
		RepositoryID:             repo.ID,
		ReleaseNotes:             remote.ReleaseNotes,
		CompatibleWithCurrentApp: IsCompatible(u.appVersion, remote.MinAppVersion, remote.MaxAppVersion),
		DetectedAt:               now,
	}, nil
}

func (u *UpdateManager) failCheck(err error) error {
	log.Printf("Update check failed: %v", err)
	u.notifier.Emit(events.UpdateCheckError, UpdateErrorEvent{
		Operation: "check",
		Error:     err.Error(),
	})
	return opError("check", "", err)
}

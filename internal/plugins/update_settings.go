package plugins

import (
	"context"
	"fmt"
	"time"

	"github.com/kalendo/pluginhub/internal/events"
	"github.com/kalendo/pluginhub/internal/models"
)

// ConfigureUpdateSettings merges patch into the current settings, persists
// the result and publishes updateSettingsChanged.
func (u *UpdateManager) ConfigureUpdateSettings(ctx context.Context, patch models.UpdateSettingsPatch) (models.UpdateSettings, error) {
	if patch.CheckInterval != nil && *patch.CheckInterval <= 0 {
		err := fmt.Errorf("%w: checkInterval must be positive", ErrInvalidSettings)
		u.notifier.Emit(events.UpdateError, UpdateErrorEvent{Operation: "configure", Error: err.Error()})
		return models.UpdateSettings{}, opError("configure", "", err)
	}

	u.mu.Lock()
	settings := u.settings
	if patch.CheckAutomatically != nil {
		settings.CheckAutomatically = *patch.CheckAutomatically
	}
	if patch.CheckInterval != nil {
		settings.CheckInterval = *patch.CheckInterval
	}
	if patch.AutoUpdate != nil {
		settings.AutoUpdate = *patch.AutoUpdate
	}
	if patch.UpdateNotificationsEnabled != nil {
		settings.UpdateNotificationsEnabled = *patch.UpdateNotificationsEnabled
	}
	u.settings = settings
	err := u.storage.Set(ctx, keyUpdateSettings, settings)
	u.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("failed to persist update settings: %w", err)
		u.notifier.Emit(events.UpdateError, UpdateErrorEvent{Operation: "configure", Error: err.Error()})
		return models.UpdateSettings{}, opError("configure", "", err)
	}

	u.notifier.Emit(events.UpdateSettingsChanged, settings)
	return settings, nil
}

func (u *UpdateManager) GetUpdateSettings() models.UpdateSettings {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.settings
}

// GetAvailableUpdates returns a copy of the pending updates keyed by plugin id.
func (u *UpdateManager) GetAvailableUpdates() map[string]models.AvailableUpdate {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]models.AvailableUpdate, len(u.availableUpdates))
	for id, update := range u.availableUpdates {
		out[id] = update
	}
	return out
}

// GetUpdateHistory returns a copy of the history of every plugin.
func (u *UpdateManager) GetUpdateHistory() map[string][]models.UpdateHistoryEntry {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string][]models.UpdateHistoryEntry, len(u.history))
	for id, entries := range u.history {
		out[id] = append([]models.UpdateHistoryEntry(nil), entries...)
	}
	return out
}

// GetPluginUpdateHistory returns the history of one plugin, oldest first.
// It is empty, never nil, for a plugin that was never updated.
func (u *UpdateManager) GetPluginUpdateHistory(pluginID string) []models.UpdateHistoryEntry {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]models.UpdateHistoryEntry{}, u.history[pluginID]...)
}

// GetLastCheck returns when updates were last checked.
func (u *UpdateManager) GetLastCheck() (time.Time, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.lastCheck == nil {
		return time.Time{}, false
	}
	return *u.lastCheck, true
}

// GetUpdatingPlugin returns the id of the plugin whose update is in
// progress, or "" when none is.
func (u *UpdateManager) GetUpdatingPlugin() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.updatingPlugin
}

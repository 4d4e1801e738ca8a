package plugins

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/kalendo/pluginhub/internal/events"
	"github.com/kalendo/pluginhub/internal/models"
)

// ApplyUpdate replaces an installed plugin with the version recorded in its
// pending update. Settings survive the reinstall and an active plugin is
// reactivated. On failure the update stays pending.
func (u *UpdateManager) ApplyUpdate(ctx context.Context, pluginID string) error {
	u.mu.Lock()
	update, ok := u.availableUpdates[pluginID]
	u.mu.Unlock()
	if !ok {
		return u.failApply(pluginID, fmt.Errorf("%w: %s", ErrUpdateNotFound, pluginID))
	}

	u.mu.Lock()
	u.updatingPlugin = pluginID
	u.mu.Unlock()

	u.notifier.Emit(events.UpdateStarted, UpdateStartedEvent{
		PluginID:       pluginID,
		CurrentVersion: update.CurrentVersion,
		NewVersion:     update.NewVersion,
	})

	repo, ok := u.repos.GetRepository(update.RepositoryID)
	if !ok {
		return u.failApply(pluginID, fmt.Errorf("%w: %s", ErrRepositoryNotFound, update.RepositoryID))
	}

	pkg, err := u.transport.DownloadPackage(ctx, repo, pluginID, update.NewVersion)
	if err != nil {
		return u.failApply(pluginID, err)
	}

	wasActive, err := u.registry.IsPluginActive(ctx, pluginID)
	if err != nil {
		return u.failApply(pluginID, fmt.Errorf("failed to read plugin state: %w", err))
	}

	if err := u.installer.UninstallPlugin(ctx, pluginID, UninstallOptions{KeepSettings: true}); err != nil {
		return u.failApply(pluginID, fmt.Errorf("failed to uninstall %s: %w", pluginID, err))
	}
	if err := u.installer.InstallPlugin(ctx, pkg, InstallOptions{Update: true}); err != nil {
		return u.failApply(pluginID, fmt.Errorf("failed to install %s@%s: %w", pluginID, update.NewVersion, err))
	}
	if wasActive {
		if err := u.registry.ActivatePlugin(ctx, pluginID); err != nil {
			return u.failApply(pluginID, fmt.Errorf("failed to reactivate %s: %w", pluginID, err))
		}
	}

	entry := models.UpdateHistoryEntry{
		FromVersion:  update.CurrentVersion,
		ToVersion:    update.NewVersion,
		AppliedAt:    u.now(),
		RepositoryID: update.RepositoryID,
	}
	if err := u.commitApplied(ctx, pluginID, entry); err != nil {
		return u.failApply(pluginID, fmt.Errorf("failed to persist update: %w", err))
	}

	log.Printf("Updated plugin %s from %s to %s", pluginID, update.CurrentVersion, update.NewVersion)
	u.notifier.Emit(events.UpdateCompleted, UpdateCompletedEvent{
		PluginID:     pluginID,
		FromVersion:  update.CurrentVersion,
		ToVersion:    update.NewVersion,
		RepositoryID: update.RepositoryID,
	})
	return nil
}

// ApplyAllUpdates applies every pending update strictly one after another.
// Failures are collected and never stop the batch.
func (u *UpdateManager) ApplyAllUpdates(ctx context.Context) models.MassUpdateResult {
	result := models.MassUpdateResult{
		Successful: []string{},
		Failed:     []models.UpdateFailure{},
	}

	u.mu.Lock()
	ids := make([]string, 0, len(u.availableUpdates))
	for id := range u.availableUpdates {
		ids = append(ids, id)
	}
	u.mu.Unlock()
	if len(ids) == 0 {
		return result
	}
	sort.Strings(ids)

	u.notifier.Emit(events.MassUpdateStarted, MassUpdateStartedEvent{PluginIDs: ids})

	for _, id := range ids {
		if err := u.ApplyUpdate(ctx, id); err != nil {
			log.Printf("Warning: failed to update plugin %s: %v", id, err)
			result.Failed = append(result.Failed, models.UpdateFailure{PluginID: id, Error: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, id)
	}

	u.notifier.Emit(events.MassUpdateCompleted, result)
	return result
}

// commitApplied records entry and drops the pending update. Both tables are
// written from copies and memory only changes once storage accepted them.
func (u *UpdateManager) commitApplied(ctx context.Context, pluginID string, entry models.UpdateHistoryEntry) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	defer func() { u.updatingPlugin = "" }()

	history := make(map[string][]models.UpdateHistoryEntry, len(u.history)+1)
	for id, entries := range u.history {
		history[id] = entries
	}
	history[pluginID] = append(append([]models.UpdateHistoryEntry(nil), u.history[pluginID]...), entry)

	pending := make(map[string]models.AvailableUpdate, len(u.availableUpdates))
	for id, update := range u.availableUpdates {
		if id != pluginID {
			pending[id] = update
		}
	}

	if err := u.storage.Set(ctx, keyUpdateHistory, history); err != nil {
		return err
	}
	if err := u.storage.Set(ctx, keyAvailableUpdates, pending); err != nil {
		if restoreErr := u.storage.Set(ctx, keyUpdateHistory, u.history); restoreErr != nil {
			log.Printf("Warning: failed to restore update history for %s: %v", pluginID, restoreErr)
		}
		return err
	}

	u.history = history
	u.availableUpdates = pending
	return nil
}

func (u *UpdateManager) failApply(pluginID string, err error) error {
	u.mu.Lock()
	u.updatingPlugin = ""
	u.mu.Unlock()

	log.Printf("Update of plugin %s failed: %v", pluginID, err)
	u.notifier.Emit(events.UpdateError, UpdateErrorEvent{
		PluginID:  pluginID,
		Operation: "apply",
		Error:     err.Error(),
	})
	return opError("apply", pluginID, err)
}

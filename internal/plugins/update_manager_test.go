package plugins_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kalendo/pluginhub/internal/config"
	"github.com/kalendo/pluginhub/internal/events"
	"github.com/kalendo/pluginhub/internal/models"
	"github.com/kalendo/pluginhub/internal/plugins"
)

type updateFixture struct {
	*repoFixture
	updates   *plugins.UpdateManager
	installer *MockInstaller
	registry  *MockRegistry
}

func newUpdateFixture(t *testing.T) *updateFixture {
	t.Helper()
	rf := newRepoFixture(t)
	f := &updateFixture{
		repoFixture: rf,
		installer:   new(MockInstaller),
		registry:    new(MockRegistry),
	}
	f.updates = plugins.NewUpdateManager(config.Default(), rf.manager, f.installer, f.registry, rf.transport, rf.storage, rf.notifier)
	f.updates.SetClock(rf.clock.Now)
	require.NoError(t, f.updates.Initialize(context.Background()))
	return f
}

func (f *updateFixture) installed(list ...models.InstalledPlugin) {
	out := make(map[string]models.InstalledPlugin, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	f.installer.On("GetInstalledPlugins", mock.Anything).Return(out, nil)
}

// pendingUpdates runs a check that finds an update for every id given.
func (f *updateFixture) pendingUpdates(t *testing.T, ids ...string) {
	t.Helper()
	var installed []models.InstalledPlugin
	var catalog []models.PluginCatalogEntry
	for _, id := range ids {
		installed = append(installed, models.InstalledPlugin{ID: id, Version: "1.0.0", Active: true})
		catalog = append(catalog, models.PluginCatalogEntry{ID: id, Name: id, Version: "2.0.0"})
	}
	f.transport.setCatalog("community", catalog...)
	f.addRepo(t, "community", 100)
	f.installed(installed...)
	f.installer.On("HasUpdate", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	found, err := f.updates.CheckForUpdates(context.Background(), models.CheckOptions{})
	require.NoError(t, err)
	require.Len(t, found, len(ids))
}

func TestUpdateManager_CheckForUpdates(t *testing.T) {
	ctx := context.Background()

	t.Run("First matching repository wins", func(t *testing.T) {
		f := newUpdateFixture(t)
		f.transport.setCatalog("first", models.PluginCatalogEntry{ID: "p1", Version: "2.0.0", ReleaseNotes: "from first"})
		f.transport.setCatalog("second", models.PluginCatalogEntry{ID: "p1", Version: "3.0.0"})
		f.addRepo(t, "first", 100)
		f.addRepo(t, "second", 1)
		f.installed(models.InstalledPlugin{ID: "p1", Version: "1.0.0"})
		f.installer.On("HasUpdate", mock.Anything, "p1", mock.Anything).Return(true, nil)

		found, err := f.updates.CheckForUpdates(ctx, models.CheckOptions{})
		require.NoError(t, err)
		require.Len(t, found, 1)

		update := f.updates.GetAvailableUpdates()["p1"]
		assert.Equal(t, "first", update.RepositoryID)
		assert.Equal(t, "1.0.0", update.CurrentVersion)
		assert.Equal(t, "2.0.0", update.NewVersion)
		assert.Equal(t, "from first", update.ReleaseNotes)
		assert.True(t, update.CompatibleWithCurrentApp)
		assert.Equal(t, f.clock.Now(), update.DetectedAt)

		f.installer.AssertNumberOfCalls(t, "HasUpdate", 1)
		assert.Len(t, f.recorder.named(events.UpdateCheckStarted), 1)
		available := f.recorder.named(events.UpdateAvailable)
		require.Len(t, available, 1)
		assert.True(t, available[0].Payload.(plugins.UpdateAvailableEvent).NotificationsEnabled)
		completed := f.recorder.named(events.UpdateCheckCompleted)
		require.Len(t, completed, 1)
		assert.Equal(t, 1, completed[0].Payload.(plugins.UpdateCheckCompletedEvent).UpdatesFound)

		last, ok := f.updates.GetLastCheck()
		require.True(t, ok)
		assert.Equal(t, f.clock.Now(), last)
		assert.True(t, f.storage.has("last_update_check"))
		assert.True(t, f.storage.has("available_updates"))
	})

	t.Run("Falls through when a repository reports no update", func(t *testing.T) {
		f := newUpdateFixture(t)
		older := models.PluginCatalogEntry{ID: "p1", Version: "1.0.0"}
		newer := models.PluginCatalogEntry{ID: "p1", Version: "1.5.0", MinAppVersion: "2.0.0"}
		f.transport.setCatalog("first", older)
		f.transport.setCatalog("second", newer)
		f.addRepo(t, "first", 100)
		f.addRepo(t, "second", 100)
		f.installed(models.InstalledPlugin{ID: "p1", Version: "1.0.0"})
		f.installer.On("HasUpdate", mock.Anything, "p1", older).Return(false, nil)
		f.installer.On("HasUpdate", mock.Anything, "p1", newer).Return(true, nil)

		_, err := f.updates.CheckForUpdates(ctx, models.CheckOptions{})
		require.NoError(t, err)

		update := f.updates.GetAvailableUpdates()["p1"]
		assert.Equal(t, "second", update.RepositoryID)
		assert.False(t, update.CompatibleWithCurrentApp, "app 1.0.0 is below minAppVersion 2.0.0")
	})

	t.Run("Disabled repositories are skipped", func(t *testing.T) {
		f := newUpdateFixture(t)
		f.transport.setCatalog("off", models.PluginCatalogEntry{ID: "p1", Version: "2.0.0"})
		f.addRepo(t, "off", 100)
		_, err := f.manager.ToggleRepository(ctx, "off", false)
		require.NoError(t, err)
		f.installed(models.InstalledPlugin{ID: "p1", Version: "1.0.0"})

		found, err := f.updates.CheckForUpdates(ctx, models.CheckOptions{})
		require.NoError(t, err)
		assert.Empty(t, found)
		f.installer.AssertNotCalled(t, "HasUpdate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("No repositories", func(t *testing.T) {
		storage := newMemStorage()
		notifier := events.NewNotifier(nil)
		rec := &eventRecorder{}
		rec.subscribe(notifier, events.UpdateCheckError)
		installer := new(MockInstaller)
		u := plugins.NewUpdateManager(config.Default(), emptySource{}, installer, new(MockRegistry), newFakeTransport(), storage, notifier)
		require.NoError(t, u.Initialize(ctx))

		_, err := u.CheckForUpdates(ctx, models.CheckOptions{})
		assert.ErrorIs(t, err, plugins.ErrNoRepositories)
		assert.Len(t, rec.named(events.UpdateCheckError), 1)
		assert.True(t, storage.has("last_update_check"), "the check time is stamped before failing")
		installer.AssertNotCalled(t, "GetInstalledPlugins", mock.Anything)
	})

	t.Run("Installer failure", func(t *testing.T) {
		f := newUpdateFixture(t)
		f.installer.On("GetInstalledPlugins", mock.Anything).Return(nil, errTest)

		_, err := f.updates.CheckForUpdates(ctx, models.CheckOptions{})
		assert.ErrorIs(t, err, errTest)
		assert.Len(t, f.recorder.named(events.UpdateCheckError), 1)
	})

	t.Run("Full check discards stale entries", func(t *testing.T) {
		f := newUpdateFixture(t)
		f.pendingUpdates(t, "p1")

		f.installer.ExpectedCalls = nil
		f.installed()

		_, err := f.updates.CheckForUpdates(ctx, models.CheckOptions{})
		require.NoError(t, err)
		assert.Contains(t, f.updates.GetAvailableUpdates(), "p1", "incremental check keeps previous entries")

		_, err = f.updates.CheckForUpdates(ctx, models.CheckOptions{FullCheck: true})
		require.NoError(t, err)
		assert.Empty(t, f.updates.GetAvailableUpdates())
	})

	t.Run("Notifications disabled", func(t *testing.T) {
		f := newUpdateFixture(t)
		_, err := f.updates.ConfigureUpdateSettings(ctx, models.UpdateSettingsPatch{UpdateNotificationsEnabled: boolPtr(false)})
		require.NoError(t, err)

		f.pendingUpdates(t, "p1")
		assert.Contains(t, f.updates.GetAvailableUpdates(), "p1")

		available := f.recorder.named(events.UpdateAvailable)
		require.Len(t, available, 1, "detection is always published")
		payload := available[0].Payload.(plugins.UpdateAvailableEvent)
		assert.Equal(t, "p1", payload.ID)
		assert.False(t, payload.NotificationsEnabled)
	})

	t.Run("Auto update applies what was found", func(t *testing.T) {
		f := newUpdateFixture(t)
		_, err := f.updates.ConfigureUpdateSettings(ctx, models.UpdateSettingsPatch{AutoUpdate: boolPtr(true)})
		require.NoError(t, err)
		f.registry.On("IsPluginActive", mock.Anything, "p1").Return(false, nil)
		f.installer.On("UninstallPlugin", mock.Anything, "p1", plugins.UninstallOptions{KeepSettings: true}).Return(nil)
		f.installer.On("InstallPlugin", mock.Anything, mock.Anything, plugins.InstallOptions{Update: true}).Return(nil)

		f.pendingUpdates(t, "p1")

		assert.Empty(t, f.updates.GetAvailableUpdates())
		assert.Len(t, f.updates.GetPluginUpdateHistory("p1"), 1)
		assert.Len(t, f.recorder.named(events.MassUpdateCompleted), 1)
		f.registry.AssertNotCalled(t, "ActivatePlugin", mock.Anything, mock.Anything)
	})
}

func TestUpdateManager_ApplyUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("Success preserves settings and activation", func(t *testing.T) {
		f := newUpdateFixture(t)
		f.pendingUpdates(t, "p1")

		f.registry.On("IsPluginActive", mock.Anything, "p1").Return(true, nil)
		f.installer.On("UninstallPlugin", mock.Anything, "p1", plugins.UninstallOptions{KeepSettings: true}).Return(nil)
		f.installer.On("InstallPlugin", mock.Anything, mock.MatchedBy(func(pkg *models.Package) bool {
			return pkg.PluginID == "p1" && pkg.Version == "2.0.0" && pkg.RepositoryID == "community"
		}), plugins.InstallOptions{Update: true}).Run(func(mock.Arguments) {
			assert.Equal(t, "p1", f.updates.GetUpdatingPlugin())
		}).Return(nil)
		f.registry.On("ActivatePlugin", mock.Anything, "p1").Return(nil)

		require.NoError(t, f.updates.ApplyUpdate(ctx, "p1"))

		f.installer.AssertExpectations(t)
		f.registry.AssertExpectations(t)
		assert.Equal(t, "", f.updates.GetUpdatingPlugin())
		assert.NotContains(t, f.updates.GetAvailableUpdates(), "p1")

		history := f.updates.GetPluginUpdateHistory("p1")
		require.Len(t, history, 1)
		assert.Equal(t, models.UpdateHistoryEntry{
			FromVersion:  "1.0.0",
			ToVersion:    "2.0.0",
			AppliedAt:    f.clock.Now(),
			RepositoryID: "community",
		}, history[0])

		var persisted map[string][]models.UpdateHistoryEntry
		_, err := f.storage.Get(ctx, "update_history", &persisted)
		require.NoError(t, err)
		assert.Len(t, persisted["p1"], 1)

		var pending map[string]models.AvailableUpdate
		_, err = f.storage.Get(ctx, "available_updates", &pending)
		require.NoError(t, err)
		assert.NotContains(t, pending, "p1")

		assert.Len(t, f.recorder.named(events.UpdateStarted), 1)
		completed := f.recorder.named(events.UpdateCompleted)
		require.Len(t, completed, 1)
		assert.Equal(t, "2.0.0", completed[0].Payload.(plugins.UpdateCompletedEvent).ToVersion)
	})

	t.Run("Inactive plugin stays inactive", func(t *testing.T) {
		f := newUpdateFixture(t)
		f.pendingUpdates(t, "p1")
		f.registry.On("IsPluginActive", mock.Anything, "p1").Return(false, nil)
		f.installer.On("UninstallPlugin", mock.Anything, "p1", mock.Anything).Return(nil)
		f.installer.On("InstallPlugin", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		require.NoError(t, f.updates.ApplyUpdate(ctx, "p1"))
		f.registry.AssertNotCalled(t, "ActivatePlugin", mock.Anything, mock.Anything)
	})

	t.Run("Unknown plugin", func(t *testing.T) {
		f := newUpdateFixture(t)
		err := f.updates.ApplyUpdate(ctx, "ghost")
		assert.ErrorIs(t, err, plugins.ErrUpdateNotFound)

		errs := f.recorder.named(events.UpdateError)
		require.Len(t, errs, 1)
		payload := errs[0].Payload.(plugins.UpdateErrorEvent)
		assert.Equal(t, "ghost", payload.PluginID)
		assert.Equal(t, "apply", payload.Operation)
	})

	t.Run("Source repository removed", func(t *testing.T) {
		f := newUpdateFixture(t)
		f.pendingUpdates(t, "p1")
		require.NoError(t, f.manager.RemoveRepository(ctx, "community"))

		err := f.updates.ApplyUpdate(ctx, "p1")
		assert.ErrorIs(t, err, plugins.ErrRepositoryNotFound)
		assert.Contains(t, f.updates.GetAvailableUpdates(), "p1")
	})

	t.Run("Install failure keeps the update pending", func(t *testing.T) {
		f := newUpdateFixture(t)
		f.pendingUpdates(t, "p1")
		f.registry.On("IsPluginActive", mock.Anything, "p1").Return(true, nil)
		f.installer.On("UninstallPlugin", mock.Anything, "p1", mock.Anything).Return(nil)
		f.installer.On("InstallPlugin", mock.Anything, mock.Anything, mock.Anything).Return(errTest)

		err := f.updates.ApplyUpdate(ctx, "p1")
		assert.ErrorIs(t, err, errTest)

		assert.Contains(t, f.updates.GetAvailableUpdates(), "p1")
		assert.Empty(t, f.updates.GetPluginUpdateHistory("p1"))
		assert.Equal(t, "", f.updates.GetUpdatingPlugin())
		assert.Len(t, f.recorder.named(events.UpdateError), 1)
		assert.Empty(t, f.recorder.named(events.UpdateCompleted))
		f.registry.AssertNotCalled(t, "ActivatePlugin", mock.Anything, mock.Anything)
	})

	persistFailures := []struct {
		name string
		key  string
	}{
		{"History write fails", "update_history"},
		{"Pending table write fails", "available_updates"},
	}
	for _, tc := range persistFailures {
		t.Run(tc.name, func(t *testing.T) {
			f := newUpdateFixture(t)
			f.pendingUpdates(t, "p1")
			f.registry.On("IsPluginActive", mock.Anything, "p1").Return(false, nil)
			f.installer.On("UninstallPlugin", mock.Anything, "p1", mock.Anything).Return(nil)
			f.installer.On("InstallPlugin", mock.Anything, mock.Anything, mock.Anything).Return(nil)
			f.storage.failSet[tc.key] = errTest

			for i := 0; i < 2; i++ {
				err := f.updates.ApplyUpdate(ctx, "p1")
				assert.ErrorIs(t, err, errTest)
			}

			assert.Contains(t, f.updates.GetAvailableUpdates(), "p1")
			assert.Empty(t, f.updates.GetPluginUpdateHistory("p1"), "retries must not accumulate history")
			assert.Equal(t, "", f.updates.GetUpdatingPlugin())
			assert.Empty(t, f.recorder.named(events.UpdateCompleted))

			var stored map[string][]models.UpdateHistoryEntry
			_, err := f.storage.Get(ctx, "update_history", &stored)
			require.NoError(t, err)
			assert.Empty(t, stored["p1"])

			delete(f.storage.failSet, tc.key)
			require.NoError(t, f.updates.ApplyUpdate(ctx, "p1"))
			assert.Len(t, f.updates.GetPluginUpdateHistory("p1"), 1)
			assert.NotContains(t, f.updates.GetAvailableUpdates(), "p1")
		})
	}
}

func TestUpdateManager_ApplyAllUpdates(t *testing.T) {
	ctx := context.Background()

	t.Run("Partial failure", func(t *testing.T) {
		f := newUpdateFixture(t)
		f.pendingUpdates(t, "p1", "p2")
		f.registry.On("IsPluginActive", mock.Anything, mock.Anything).Return(false, nil)
		f.installer.On("UninstallPlugin", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.installer.On("InstallPlugin", mock.Anything, mock.MatchedBy(func(pkg *models.Package) bool {
			return pkg.PluginID == "p1"
		}), mock.Anything).Return(nil)
		f.installer.On("InstallPlugin", mock.Anything, mock.MatchedBy(func(pkg *models.Package) bool {
			return pkg.PluginID == "p2"
		}), mock.Anything).Return(errTest)

		result := f.updates.ApplyAllUpdates(ctx)

		assert.Equal(t, []string{"p1"}, result.Successful)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, "p2", result.Failed[0].PluginID)
		assert.Contains(t, result.Failed[0].Error, "test error")

		pending := f.updates.GetAvailableUpdates()
		assert.NotContains(t, pending, "p1")
		assert.Contains(t, pending, "p2")

		assert.Len(t, f.recorder.named(events.MassUpdateStarted), 1)
		completed := f.recorder.named(events.MassUpdateCompleted)
		require.Len(t, completed, 1)
		assert.Equal(t, result, completed[0].Payload)
	})

	t.Run("Nothing pending", func(t *testing.T) {
		f := newUpdateFixture(t)
		result := f.updates.ApplyAllUpdates(ctx)
		assert.Equal(t, models.MassUpdateResult{Successful: []string{}, Failed: []models.UpdateFailure{}}, result)
		assert.Empty(t, f.recorder.named(events.MassUpdateStarted))
	})
}

func TestUpdateManager_Settings(t *testing.T) {
	ctx := context.Background()

	t.Run("Defaults come from configuration", func(t *testing.T) {
		f := newUpdateFixture(t)
		assert.Equal(t, models.UpdateSettings{
			CheckAutomatically:         true,
			CheckInterval:              86400000,
			AutoUpdate:                 false,
			UpdateNotificationsEnabled: true,
		}, f.updates.GetUpdateSettings())
	})

	t.Run("Shallow merge persists and notifies", func(t *testing.T) {
		f := newUpdateFixture(t)
		interval := int64(60000)

		settings, err := f.updates.ConfigureUpdateSettings(ctx, models.UpdateSettingsPatch{CheckInterval: &interval})
		require.NoError(t, err)
		assert.Equal(t, int64(60000), settings.CheckInterval)
		assert.True(t, settings.CheckAutomatically)

		changed := f.recorder.named(events.UpdateSettingsChanged)
		require.Len(t, changed, 1)
		assert.Equal(t, settings, changed[0].Payload)

		reloaded := plugins.NewUpdateManager(config.Default(), f.manager, f.installer, f.registry, f.transport, f.storage, f.notifier)
		require.NoError(t, reloaded.Initialize(ctx))
		assert.Equal(t, settings, reloaded.GetUpdateSettings())
	})

	t.Run("Rejects non-positive interval", func(t *testing.T) {
		f := newUpdateFixture(t)
		zero := int64(0)
		_, err := f.updates.ConfigureUpdateSettings(ctx, models.UpdateSettingsPatch{CheckInterval: &zero})
		assert.ErrorIs(t, err, plugins.ErrInvalidSettings)
		assert.Equal(t, int64(86400000), f.updates.GetUpdateSettings().CheckInterval)
		assert.False(t, f.storage.has("update_settings"))
	})
}

func TestUpdateManager_HistoryAccessors(t *testing.T) {
	ctx := context.Background()
	f := newUpdateFixture(t)
	f.pendingUpdates(t, "p1")
	f.registry.On("IsPluginActive", mock.Anything, "p1").Return(false, nil)
	f.installer.On("UninstallPlugin", mock.Anything, "p1", mock.Anything).Return(nil)
	f.installer.On("InstallPlugin", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	require.NoError(t, f.updates.ApplyUpdate(ctx, "p1"))

	all := f.updates.GetUpdateHistory()
	require.Len(t, all["p1"], 1)
	all["p1"][0].ToVersion = "mutated"
	assert.Equal(t, "2.0.0", f.updates.GetPluginUpdateHistory("p1")[0].ToVersion)

	none := f.updates.GetPluginUpdateHistory("never")
	assert.NotNil(t, none)
	assert.Empty(t, none)

	reloaded := plugins.NewUpdateManager(config.Default(), f.manager, f.installer, f.registry, f.transport, f.storage, f.notifier)
	require.NoError(t, reloaded.Initialize(ctx))
	assert.Len(t, reloaded.GetPluginUpdateHistory("p1"), 1)
	_, ok := reloaded.GetLastCheck()
	assert.True(t, ok)
}

type emptySource struct{}

func (emptySource) GetRepository(string) (models.Repository, bool) { return models.Repository{}, false }
func (emptySource) GetRepositories() []models.Repository           { return nil }
func (emptySource) GetRepositoryPlugins(context.Context, string, bool) ([]models.PluginCatalogEntry, error) {
	return nil, plugins.ErrRepositoryNotFound
}

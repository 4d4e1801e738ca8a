package plugins

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kalendo/pluginhub/internal/events"
	"github.com/kalendo/pluginhub/internal/models"
)

// SyncRepository fetches the catalog of an enabled repository and replaces
// its cache entry. Nothing is written when the fetch fails.
func (m *RepositoryManager) SyncRepository(ctx context.Context, id string) ([]models.PluginCatalogEntry, error) {
	const op = "sync"

	m.mu.Lock()
	idx := m.indexLocked(id)
	var repo models.Repository
	if idx >= 0 {
		repo = cloneRepository(m.repositories[idx])
	}
	m.mu.Unlock()

	if idx < 0 {
		return nil, m.fail(op, id, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id))
	}
	if !repo.Enabled {
		return nil, m.fail(op, id, fmt.Errorf("%w: %s", ErrRepositoryDisabled, id))
	}

	m.notifier.Emit(events.RepositorySyncStarted, RepositoryIDEvent{RepositoryID: id})

	catalog, err := m.transport.FetchCatalog(ctx, repo)
	if err != nil {
		return nil, m.fail(op, id, err)
	}
	if catalog == nil {
		catalog = []models.PluginCatalogEntry{}
	}

	m.mu.Lock()
	idx = m.indexLocked(id)
	if idx < 0 {
		// Removed while the fetch was in flight.
		m.mu.Unlock()
		return nil, m.fail(op, id, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id))
	}
	if !m.repositories[idx].Enabled {
		m.mu.Unlock()
		return nil, m.fail(op, id, fmt.Errorf("%w: %s", ErrRepositoryDisabled, id))
	}
	syncedAt := m.now()
	m.cache[id] = models.RepositoryCacheEntry{Plugins: catalog, SyncedAt: syncedAt}
	m.syncTimestamps[id] = syncedAt
	ts := syncedAt
	m.repositories[idx].LastSync = &ts
	err = m.persistAllLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, m.fail(op, id, err)
	}

	log.Printf("Synced repository %s: %d plugins", id, len(catalog))
	m.notifier.Emit(events.RepositorySyncCompleted, RepositorySyncCompletedEvent{
		RepositoryID: id,
		PluginCount:  len(catalog),
		SyncedAt:     syncedAt,
	})
	return cloneCatalog(catalog), nil
}

// SyncAllRepositories syncs every enabled repository one at a time. A failed
// repository is recorded and never stops the rest.
func (m *RepositoryManager) SyncAllRepositories(ctx context.Context) models.SyncAllResult {
	result := models.SyncAllResult{
		Successful: []string{},
		Failed:     []models.SyncFailure{},
	}

	for _, repo := range m.GetEnabledRepositories() {
		if _, err := m.SyncRepository(ctx, repo.ID); err != nil {
			log.Printf("Warning: failed to sync repository %s: %v", repo.ID, err)
			result.Failed = append(result.Failed, models.SyncFailure{
				RepositoryID: repo.ID,
				Error:        err.Error(),
			})
			continue
		}
		result.Successful = append(result.Successful, repo.ID)
	}

	m.notifier.Emit(events.AllRepositoriesSynced, AllRepositoriesSyncedEvent{
		Successful: len(result.Successful),
		Failed:     len(result.Failed),
		Total:      len(result.Successful) + len(result.Failed),
	})
	return result
}

// GetRepositoryPlugins returns the cached catalog of an enabled repository,
// syncing first when forced, when nothing is cached, or when the last sync
// is older than the cache TTL.
func (m *RepositoryManager) GetRepositoryPlugins(ctx context.Context, id string, forceSync bool) ([]models.PluginCatalogEntry, error) {
	const op = "getPlugins"

	m.mu.Lock()
	idx := m.indexLocked(id)
	var enabled bool
	if idx >= 0 {
		enabled = m.repositories[idx].Enabled
	}
	entry, cached := m.cache[id]
	last, synced := m.syncTimestamps[id]
	stale := synced && m.now().Sub(last) > m.cacheTTL
	m.mu.Unlock()

	if idx < 0 {
		return nil, m.fail(op, id, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id))
	}
	if !enabled {
		return nil, m.fail(op, id, fmt.Errorf("%w: %s", ErrRepositoryDisabled, id))
	}

	if forceSync || !cached || !synced || stale {
		return m.SyncRepository(ctx, id)
	}
	return cloneCatalog(entry.Plugins), nil
}

// GetCacheEntry returns a copy of the cache entry for id, if any.
func (m *RepositoryManager) GetCacheEntry(id string) (models.RepositoryCacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.cache[id]
	if !ok {
		return models.RepositoryCacheEntry{}, false
	}
	entry.Plugins = cloneCatalog(entry.Plugins)
	return entry, true
}

// GetSyncTimestamp returns the last successful sync time for id.
func (m *RepositoryManager) GetSyncTimestamp(id string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.syncTimestamps[id]
	return t, ok
}

func cloneCatalog(in []models.PluginCatalogEntry) []models.PluginCatalogEntry {
	out := make([]models.PluginCatalogEntry, len(in))
	for i, p := range in {
		if p.Tags != nil {
			p.Tags = append([]string(nil), p.Tags...)
		}
		if p.Extra != nil {
			extra := make(models.Metadata, len(p.Extra))
			for k, v := range p.Extra {
				extra[k] = v
			}
			p.Extra = extra
		}
		out[i] = p
	}
	return out
}

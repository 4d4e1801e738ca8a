package plugins

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/kalendo/pluginhub/internal/config"
	"github.com/kalendo/pluginhub/internal/events"
	"github.com/kalendo/pluginhub/internal/models"
)

// Persisted keys, namespaced by the Storage implementation.
const (
	keyRepositories    = "repositories"
	keyRepositoryCache = "repository_cache"
	keySyncTimestamps  = "repository_sync_timestamps"
)

const defaultRepositoryPriority = 100

// RepositoryManager owns the repository registry, the catalog cache and the
// sync timestamps. In-memory state is the source of truth and is written
// through to Storage after every mutation.
type RepositoryManager struct {
	storage   Storage
	transport Transport
	notifier  *events.Notifier
	official  config.OfficialRepository
	cacheTTL  time.Duration
	now       func() time.Time

	mu             sync.Mutex
	repositories   []models.Repository // registration order
	cache          map[string]models.RepositoryCacheEntry
	syncTimestamps map[string]time.Time

	background sync.WaitGroup
}

// NewRepositoryManager creates a manager. Call Initialize before use.
func NewRepositoryManager(cfg *config.Config, storage Storage, transport Transport, notifier *events.Notifier) *RepositoryManager {
	ttl := time.Duration(cfg.Repositories.CacheTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RepositoryManager{
		storage:        storage,
		transport:      transport,
		notifier:       notifier,
		official:       cfg.Repositories.Official,
		cacheTTL:       ttl,
		now:            time.Now,
		cache:          make(map[string]models.RepositoryCacheEntry),
		syncTimestamps: make(map[string]time.Time),
	}
}

// SetClock replaces the time source. Intended for tests.
func (m *RepositoryManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Initialize loads persisted state and seeds the official repository.
func (m *RepositoryManager) Initialize(ctx context.Context) error {
	var repos []models.Repository
	if _, err := m.storage.Get(ctx, keyRepositories, &repos); err != nil {
		return fmt.Errorf("failed to load repositories: %w", err)
	}
	cache := make(map[string]models.RepositoryCacheEntry)
	if _, err := m.storage.Get(ctx, keyRepositoryCache, &cache); err != nil {
		return fmt.Errorf("failed to load repository cache: %w", err)
	}
	timestamps := make(map[string]time.Time)
	if _, err := m.storage.Get(ctx, keySyncTimestamps, &timestamps); err != nil {
		return fmt.Errorf("failed to load sync timestamps: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.repositories = repos
	m.cache = cache
	m.syncTimestamps = timestamps

	seeded := false
	hasOfficial := false
	for i := range m.repositories {
		if !m.repositories[i].Official {
			continue
		}
		hasOfficial = true
		if !m.repositories[i].Enabled {
			m.repositories[i].Enabled = true
			seeded = true
		}
	}
	if !hasOfficial && m.official.ID != "" {
		if idx := m.indexLocked(m.official.ID); idx >= 0 {
			// A user repository squats on the official id; promote it.
			m.repositories[idx].Official = true
			m.repositories[idx].Enabled = true
		} else {
			apiEndpoint := m.official.APIEndpoint
			if apiEndpoint == "" {
				apiEndpoint = strings.TrimSuffix(m.official.URL, "/") + "/api"
			}
			official := models.Repository{
				ID:          m.official.ID,
				Name:        m.official.Name,
				URL:         m.official.URL,
				APIEndpoint: apiEndpoint,
				Description: m.official.Description,
				Official:    true,
				Enabled:     true,
				AddedAt:     m.now(),
				Priority:    0,
			}
			m.repositories = append([]models.Repository{official}, m.repositories...)
		}
		seeded = true
	}

	if seeded {
		if err := m.storage.Set(ctx, keyRepositories, m.repositories); err != nil {
			return fmt.Errorf("failed to persist repositories: %w", err)
		}
	}
	log.Printf("Loaded %d plugin repositories", len(m.repositories))
	return nil
}

// Wait blocks until background syncs started by AddRepository and
// UpdateRepository have finished.
func (m *RepositoryManager) Wait() {
	m.background.Wait()
}

// AddRepository validates and registers a new repository, then syncs it in
// the background. A failed background sync does not undo the add.
func (m *RepositoryManager) AddRepository(ctx context.Context, def models.RepositoryDefinition) (*models.Repository, error) {
	const op = "add"

	if def.ID == "" || def.Name == "" || def.URL == "" {
		return nil, m.fail(op, def.ID, fmt.Errorf("%w: id, name and url are required", ErrRepositoryInvalid))
	}

	m.mu.Lock()
	exists := m.indexLocked(def.ID) >= 0
	now := m.now()
	m.mu.Unlock()
	if exists {
		return nil, m.fail(op, def.ID, fmt.Errorf("%w: %s", ErrRepositoryExists, def.ID))
	}

	repo := models.Repository{
		ID:          def.ID,
		Name:        def.Name,
		URL:         def.URL,
		APIEndpoint: def.APIEndpoint,
		Description: def.Description,
		Official:    false,
		Enabled:     true,
		AddedAt:     now,
		Priority:    defaultRepositoryPriority,
	}
	if repo.APIEndpoint == "" {
		repo.APIEndpoint = strings.TrimSuffix(repo.URL, "/") + "/api"
	}
	if def.Priority != nil {
		repo.Priority = *def.Priority
	}

	if !m.validateRepository(ctx, repo) {
		return nil, m.fail(op, def.ID, fmt.Errorf("%w: %s is not reachable", ErrRepositoryUnreachable, repo.URL))
	}

	m.mu.Lock()
	if m.indexLocked(repo.ID) >= 0 {
		m.mu.Unlock()
		return nil, m.fail(op, def.ID, fmt.Errorf("%w: %s", ErrRepositoryExists, def.ID))
	}
	m.repositories = append(m.repositories, repo)
	err := m.storage.Set(ctx, keyRepositories, m.repositories)
	m.mu.Unlock()
	if err != nil {
		return nil, m.fail(op, repo.ID, fmt.Errorf("failed to persist repositories: %w", err))
	}

	log.Printf("Added plugin repository %s (%s)", repo.ID, repo.URL)
	m.notifier.Emit(events.RepositoryAdded, RepositoryEvent{Repository: cloneRepository(repo)})

	m.syncInBackground(repo.ID)

	out := cloneRepository(repo)
	return &out, nil
}

// UpdateRepository applies patch to a user repository. The id and official
// flag are never changed. Connection changes are re-validated before any
// mutation and trigger a background re-sync.
func (m *RepositoryManager) UpdateRepository(ctx context.Context, id string, patch models.RepositoryPatch) (*models.Repository, error) {
	const op = "update"

	m.mu.Lock()
	idx := m.indexLocked(id)
	var current models.Repository
	if idx >= 0 {
		current = cloneRepository(m.repositories[idx])
	}
	m.mu.Unlock()

	if idx < 0 {
		return nil, m.fail(op, id, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id))
	}
	if current.Official {
		return nil, m.fail(op, id, ErrOfficialRepository)
	}

	patch.ID = nil
	patch.Official = nil

	merged := current
	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.URL != nil {
		merged.URL = *patch.URL
	}
	if patch.APIEndpoint != nil {
		merged.APIEndpoint = *patch.APIEndpoint
	}
	if patch.Description != nil {
		merged.Description = *patch.Description
	}
	if patch.Priority != nil {
		merged.Priority = *patch.Priority
	}

	if merged.Name == "" || merged.URL == "" {
		return nil, m.fail(op, id, fmt.Errorf("%w: name and url are required", ErrRepositoryInvalid))
	}

	connectionChanged := merged.URL != current.URL || merged.APIEndpoint != current.APIEndpoint
	if connectionChanged && !m.validateRepository(ctx, merged) {
		return nil, m.fail(op, id, fmt.Errorf("%w: %s is not reachable", ErrRepositoryUnreachable, merged.URL))
	}

	m.mu.Lock()
	idx = m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return nil, m.fail(op, id, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id))
	}
	now := m.now()
	merged.LastUpdated = &now
	// Sync bookkeeping may have advanced while validating.
	merged.Enabled = m.repositories[idx].Enabled
	merged.LastSync = m.repositories[idx].LastSync
	m.repositories[idx] = merged
	err := m.storage.Set(ctx, keyRepositories, m.repositories)
	m.mu.Unlock()
	if err != nil {
		return nil, m.fail(op, id, fmt.Errorf("failed to persist repositories: %w", err))
	}

	m.notifier.Emit(events.RepositoryUpdated, RepositoryEvent{Repository: cloneRepository(merged)})

	if connectionChanged && merged.Enabled {
		m.syncInBackground(id)
	}

	out := cloneRepository(merged)
	return &out, nil
}

// RemoveRepository deletes a user repository along with its cache entry and
// sync timestamp.
func (m *RepositoryManager) RemoveRepository(ctx context.Context, id string) error {
	const op = "remove"

	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return m.fail(op, id, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id))
	}
	if m.repositories[idx].Official {
		m.mu.Unlock()
		return m.fail(op, id, ErrOfficialRepository)
	}

	delete(m.cache, id)
	delete(m.syncTimestamps, id)
	m.repositories = append(m.repositories[:idx:idx], m.repositories[idx+1:]...)

	err := m.persistAllLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return m.fail(op, id, err)
	}

	log.Printf("Removed plugin repository %s", id)
	m.notifier.Emit(events.RepositoryRemoved, RepositoryIDEvent{RepositoryID: id})
	return nil
}

// ToggleRepository enables or disables a repository. The official
// repository cannot be disabled.
func (m *RepositoryManager) ToggleRepository(ctx context.Context, id string, enabled bool) (*models.Repository, error) {
	const op = "toggle"

	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return nil, m.fail(op, id, fmt.Errorf("%w: %s", ErrRepositoryNotFound, id))
	}
	if m.repositories[idx].Official && !enabled {
		m.mu.Unlock()
		return nil, m.fail(op, id, ErrOfficialRepository)
	}

	now := m.now()
	m.repositories[idx].Enabled = enabled
	m.repositories[idx].LastUpdated = &now
	repo := cloneRepository(m.repositories[idx])
	err := m.storage.Set(ctx, keyRepositories, m.repositories)
	m.mu.Unlock()
	if err != nil {
		return nil, m.fail(op, id, fmt.Errorf("failed to persist repositories: %w", err))
	}

	m.notifier.Emit(events.RepositoryToggled, RepositoryToggledEvent{RepositoryID: id, Enabled: enabled})
	return &repo, nil
}

// GetRepository returns a copy of the repository with the given id.
func (m *RepositoryManager) GetRepository(id string) (models.Repository, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexLocked(id)
	if idx < 0 {
		return models.Repository{}, false
	}
	return cloneRepository(m.repositories[idx]), true
}

// GetRepositories returns copies of every repository in registration order.
func (m *RepositoryManager) GetRepositories() []models.Repository {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Repository, 0, len(m.repositories))
	for _, r := range m.repositories {
		out = append(out, cloneRepository(r))
	}
	return out
}

// GetEnabledRepositories returns copies of the enabled repositories in
// registration order.
func (m *RepositoryManager) GetEnabledRepositories() []models.Repository {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Repository, 0, len(m.repositories))
	for _, r := range m.repositories {
		if r.Enabled {
			out = append(out, cloneRepository(r))
		}
	}
	return out
}

// validateRepository checks the URL scheme and probes the endpoint. It never
// fails for a merely unreachable target; it reports false instead.
func (m *RepositoryManager) validateRepository(ctx context.Context, repo models.Repository) bool {
	if !strings.HasPrefix(repo.URL, "http") || !strings.HasPrefix(repo.APIEndpoint, "http") {
		return false
	}
	return m.transport.Probe(ctx, repo.URL, repo.APIEndpoint)
}

func (m *RepositoryManager) syncInBackground(id string) {
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		if _, err := m.SyncRepository(context.Background(), id); err != nil {
			log.Printf("Warning: background sync of repository %s failed: %v", id, err)
		}
	}()
}

// fail publishes a repositoryError event and returns the tagged error.
func (m *RepositoryManager) fail(operation, repositoryID string, err error) error {
	opErr := opError(operation, repositoryID, err)
	log.Printf("Repository %s %s failed: %v", operation, repositoryID, err)
	m.notifier.Emit(events.RepositoryError, RepositoryErrorEvent{
		RepositoryID: repositoryID,
		Operation:    operation,
		Error:        err.Error(),
	})
	return opErr
}

func (m *RepositoryManager) indexLocked(id string) int {
	for i := range m.repositories {
		if m.repositories[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *RepositoryManager) persistAllLocked(ctx context.Context) error {
	if err := m.storage.Set(ctx, keyRepositories, m.repositories); err != nil {
		return fmt.Errorf("failed to persist repositories: %w", err)
	}
	if err := m.storage.Set(ctx, keyRepositoryCache, m.cache); err != nil {
		return fmt.Errorf("failed to persist repository cache: %w", err)
	}
	if err := m.storage.Set(ctx, keySyncTimestamps, m.syncTimestamps); err != nil {
		return fmt.Errorf("failed to persist sync timestamps: %w", err)
	}
	return nil
}

func cloneRepository(r models.Repository) models.Repository {
	if r.LastUpdated != nil {
		t := *r.LastUpdated
		r.LastUpdated = &t
	}
	if r.LastSync != nil {
		t := *r.LastSync
		r.LastSync = &t
	}
	return r
}

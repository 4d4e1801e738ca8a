package plugins_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kalendo/pluginhub/internal/config"
	"github.com/kalendo/pluginhub/internal/events"
	"github.com/kalendo/pluginhub/internal/models"
	"github.com/kalendo/pluginhub/internal/plugins"
)

var errTest = errors.New("test error")

// memStorage is an in-memory plugins.Storage that round-trips through JSON
// like the sqlite store does.
type memStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	failSet map[string]error
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[string][]byte), failSet: make(map[string]error)}
}

func (s *memStorage) Get(_ context.Context, key string, dest any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (s *memStorage) Set(_ context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failSet[key]; err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.data[key] = raw
	return nil
}

func (s *memStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

// fakeTransport serves canned catalogs and packages keyed by repository id.
type fakeTransport struct {
	mu          sync.Mutex
	catalogs    map[string][]models.PluginCatalogEntry
	fetchErrs   map[string]error
	downloadErr map[string]error
	unreachable map[string]bool // keyed by url
	fetches     map[string]int
	downloads   []string
	// beforeFetch runs ahead of every FetchCatalog, outside the lock.
	beforeFetch func(repoID string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		catalogs:    make(map[string][]models.PluginCatalogEntry),
		fetchErrs:   make(map[string]error),
		downloadErr: make(map[string]error),
		unreachable: make(map[string]bool),
		fetches:     make(map[string]int),
	}
}

func (f *fakeTransport) setCatalog(repoID string, entries ...models.PluginCatalogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogs[repoID] = entries
}

func (f *fakeTransport) setFetchError(repoID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErrs[repoID] = err
}

func (f *fakeTransport) fetchCount(repoID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[repoID]
}

func (f *fakeTransport) FetchCatalog(_ context.Context, repo models.Repository) ([]models.PluginCatalogEntry, error) {
	if f.beforeFetch != nil {
		f.beforeFetch(repo.ID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[repo.ID]++
	if err := f.fetchErrs[repo.ID]; err != nil {
		return nil, err
	}
	return append([]models.PluginCatalogEntry(nil), f.catalogs[repo.ID]...), nil
}

func (f *fakeTransport) DownloadPackage(_ context.Context, repo models.Repository, pluginID, version string) (*models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, pluginID+"@"+version)
	if err := f.downloadErr[pluginID]; err != nil {
		return nil, err
	}
	return &models.Package{
		PluginID:     pluginID,
		Version:      version,
		RepositoryID: repo.ID,
		Filename:     pluginID + ".zip",
		Data:         []byte("package"),
	}, nil
}

func (f *fakeTransport) Probe(_ context.Context, url, _ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unreachable[url]
}

// MockInstaller is a testify mock of plugins.Installer.
type MockInstaller struct {
	mock.Mock
}

var _ plugins.Installer = (*MockInstaller)(nil)

func (m *MockInstaller) GetInstalledPlugins(ctx context.Context) (map[string]models.InstalledPlugin, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]models.InstalledPlugin), args.Error(1)
}

func (m *MockInstaller) HasUpdate(ctx context.Context, pluginID string, remote models.PluginCatalogEntry) (bool, error) {
	args := m.Called(ctx, pluginID, remote)
	return args.Bool(0), args.Error(1)
}

func (m *MockInstaller) InstallPlugin(ctx context.Context, pkg *models.Package, opts plugins.InstallOptions) error {
	args := m.Called(ctx, pkg, opts)
	return args.Error(0)
}

func (m *MockInstaller) UninstallPlugin(ctx context.Context, pluginID string, opts plugins.UninstallOptions) error {
	args := m.Called(ctx, pluginID, opts)
	return args.Error(0)
}

// MockRegistry is a testify mock of plugins.PluginRegistry.
type MockRegistry struct {
	mock.Mock
}

var _ plugins.PluginRegistry = (*MockRegistry)(nil)

func (m *MockRegistry) GetPlugin(ctx context.Context, pluginID string) (*models.InstalledPlugin, error) {
	args := m.Called(ctx, pluginID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InstalledPlugin), args.Error(1)
}

func (m *MockRegistry) IsPluginActive(ctx context.Context, pluginID string) (bool, error) {
	args := m.Called(ctx, pluginID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRegistry) ActivatePlugin(ctx context.Context, pluginID string) error {
	args := m.Called(ctx, pluginID)
	return args.Error(0)
}

// eventRecorder collects every event emitted through a notifier.
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) subscribe(n *events.Notifier, names ...string) {
	for _, name := range names {
		n.Subscribe(name, func(e events.Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
		})
	}
}

func (r *eventRecorder) named(name string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

var allEvents = []string{
	events.RepositoryAdded, events.RepositoryUpdated, events.RepositoryRemoved,
	events.RepositoryToggled, events.RepositorySyncStarted, events.RepositorySyncCompleted,
	events.RepositoryError, events.AllRepositoriesSynced,
	events.UpdateCheckStarted, events.UpdateAvailable, events.UpdateCheckCompleted,
	events.UpdateCheckError, events.UpdateStarted, events.UpdateCompleted, events.UpdateError,
	events.MassUpdateStarted, events.MassUpdateCompleted, events.UpdateSettingsChanged,
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type repoFixture struct {
	manager   *plugins.RepositoryManager
	storage   *memStorage
	transport *fakeTransport
	notifier  *events.Notifier
	recorder  *eventRecorder
	clock     *clock
}

func newRepoFixture(t *testing.T) *repoFixture {
	t.Helper()
	f := &repoFixture{
		storage:   newMemStorage(),
		transport: newFakeTransport(),
		notifier:  events.NewNotifier(nil),
		recorder:  &eventRecorder{},
		clock:     newClock(),
	}
	f.recorder.subscribe(f.notifier, allEvents...)
	f.manager = plugins.NewRepositoryManager(config.Default(), f.storage, f.transport, f.notifier)
	f.manager.SetClock(f.clock.Now)
	require.NoError(t, f.manager.Initialize(context.Background()))
	return f
}

// addRepo registers a repository and waits for its background sync.
func (f *repoFixture) addRepo(t *testing.T, id string, priority int) models.Repository {
	t.Helper()
	repo, err := f.manager.AddRepository(context.Background(), models.RepositoryDefinition{
		ID:       id,
		Name:     "Repo " + id,
		URL:      "https://" + id + ".example",
		Priority: &priority,
	})
	require.NoError(t, err)
	f.manager.Wait()
	return *repo
}

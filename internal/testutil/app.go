package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/kalendo/pluginhub/internal/config"
	"github.com/kalendo/pluginhub/internal/core"
	"github.com/kalendo/pluginhub/internal/models"
)

// StubTransport serves canned catalogs keyed by repository URL. Unknown
// URLs fail to fetch and do not answer probes.
type StubTransport struct {
	mu       sync.Mutex
	catalogs map[string][]models.PluginCatalogEntry
	packages map[string]*models.Package
}

func NewStubTransport() *StubTransport {
	return &StubTransport{
		catalogs: make(map[string][]models.PluginCatalogEntry),
		packages: make(map[string]*models.Package),
	}
}

// SetPackage registers the package served for pkg.PluginID@pkg.Version.
func (s *StubTransport) SetPackage(pkg *models.Package) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packages[pkg.PluginID+"@"+pkg.Version] = pkg
}

// SetCatalog registers the catalog served for url.
func (s *StubTransport) SetCatalog(url string, entries ...models.PluginCatalogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogs[url] = entries
}

func (s *StubTransport) FetchCatalog(ctx context.Context, repo models.Repository) ([]models.PluginCatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.catalogs[repo.URL]
	if !ok {
		return nil, fmt.Errorf("no catalog at %s", repo.URL)
	}
	return append([]models.PluginCatalogEntry{}, entries...), nil
}

func (s *StubTransport) DownloadPackage(ctx context.Context, repo models.Repository, pluginID, version string) (*models.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pkg, ok := s.packages[pluginID+"@"+version]
	if !ok {
		return nil, fmt.Errorf("no package for %s@%s", pluginID, version)
	}
	cp := *pkg
	cp.RepositoryID = repo.ID
	return &cp, nil
}

func (s *StubTransport) Probe(ctx context.Context, url, apiEndpoint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.catalogs[url]
	return ok
}

// TestConfig returns the default configuration pointed at an in-memory
// database and a temporary plugins directory.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = ":memory:"
	cfg.Plugins.Path = t.TempDir()
	cfg.App.Version = "1.0.0"
	return cfg
}

// SetupTestApp builds a full core.App backed by an in-memory database and
// the given transport. The app is closed when the test completes.
func SetupTestApp(t *testing.T, transport *StubTransport) *core.App {
	t.Helper()
	if transport == nil {
		transport = NewStubTransport()
	}

	app, err := core.NewWithConfig(TestConfig(t), transport)
	if err != nil {
		t.Fatalf("Failed to set up test app: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

package plugins

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/kalendo/pluginhub/internal/models"
)

// SearchPlugins matches query against the name, description, id and tags of
// every plugin in the enabled repositories. A repository that cannot be read
// is skipped.
//
// Results are ordered by repository priority, then exact id matches, then
// name matches, then downloads.
func (m *RepositoryManager) SearchPlugins(ctx context.Context, query string) []models.SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))

	type ranked struct {
		result   models.SearchResult
		priority int
	}
	var matches []ranked

	for _, repo := range m.GetEnabledRepositories() {
		catalog, err := m.GetRepositoryPlugins(ctx, repo.ID, false)
		if err != nil {
			log.Printf("Warning: skipping repository %s in search: %v", repo.ID, err)
			continue
		}
		for _, p := range catalog {
			if !matchesQuery(p, q) {
				continue
			}
			matches = append(matches, ranked{
				result: models.SearchResult{
					PluginCatalogEntry: p,
					RepositoryID:       repo.ID,
					RepositoryName:     repo.Name,
				},
				priority: repo.Priority,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.priority != b.priority {
			return a.priority < b.priority
		}
		aExact := strings.ToLower(a.result.ID) == q
		bExact := strings.ToLower(b.result.ID) == q
		if aExact != bExact {
			return aExact
		}
		aName := strings.Contains(strings.ToLower(a.result.Name), q)
		bName := strings.Contains(strings.ToLower(b.result.Name), q)
		if aName != bName {
			return aName
		}
		return a.result.Downloads > b.result.Downloads
	})

	results := make([]models.SearchResult, len(matches))
	for i, r := range matches {
		results[i] = r.result
	}
	return results
}

func matchesQuery(p models.PluginCatalogEntry, q string) bool {
	if strings.Contains(strings.ToLower(p.Name), q) ||
		strings.Contains(strings.ToLower(p.Description), q) ||
		strings.Contains(strings.ToLower(p.ID), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

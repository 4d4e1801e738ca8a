package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalendo/pluginhub/internal/config"
	"github.com/kalendo/pluginhub/internal/models"
)

// MaxResponseSize bounds a single catalog or package download.
const MaxResponseSize = 64 << 20

// HTTPTransport fetches catalogs and packages from repository API endpoints.
// Network errors and 5xx responses are retried with a linear backoff.
type HTTPTransport struct {
	client       *http.Client
	probeTimeout time.Duration
	retries      int
	backoff      time.Duration
}

// NewHTTPTransport creates a transport from the transport section of cfg.
func NewHTTPTransport(cfg *config.Config) *HTTPTransport {
	timeout := time.Duration(cfg.Transport.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	probeTimeout := time.Duration(cfg.Transport.ProbeTimeout) * time.Second
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	retries := cfg.Transport.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPTransport{
		client:       &http.Client{Timeout: timeout},
		probeTimeout: probeTimeout,
		retries:      retries,
		backoff:      time.Duration(cfg.Transport.RetryBackoff) * time.Millisecond,
	}
}

// FetchCatalog fetches and parses the repository manifest from
// {apiEndpoint}/plugins.
func (t *HTTPTransport) FetchCatalog(ctx context.Context, repo models.Repository) ([]models.PluginCatalogEntry, error) {
	endpoint := strings.TrimSuffix(repo.APIEndpoint, "/") + "/plugins"

	data, _, err := t.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch repository: %w", err)
	}

	var manifest models.RepositoryManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse repository JSON: %w", err)
	}
	if manifest.Plugins == nil {
		manifest.Plugins = []models.PluginCatalogEntry{}
	}
	return manifest.Plugins, nil
}

// DownloadPackage downloads {apiEndpoint}/plugins/{id}/{version}/download.
func (t *HTTPTransport) DownloadPackage(ctx context.Context, repo models.Repository, pluginID, version string) (*models.Package, error) {
	endpoint := fmt.Sprintf("%s/plugins/%s/%s/download",
		strings.TrimSuffix(repo.APIEndpoint, "/"), url.PathEscape(pluginID), url.PathEscape(version))

	data, header, err := t.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to download plugin %s@%s: %w", pluginID, version, err)
	}

	filename := fmt.Sprintf("%s-%s.zip", pluginID, version)
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}

	return &models.Package{
		PluginID:     pluginID,
		Version:      version,
		RepositoryID: repo.ID,
		Filename:     filename,
		Data:         data,
	}, nil
}

// Probe issues a single GET against the API endpoint (or the repository URL
// when no endpoint is set). Any response below 500 counts as reachable.
func (t *HTTPTransport) Probe(ctx context.Context, repoURL, apiEndpoint string) bool {
	target := apiEndpoint
	if target == "" {
		target = repoURL
	}
	ctx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	resp, err := t.client.Do(req)
	if err != nil {
		log.Printf("Repository probe %s failed: %v", target, err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode < http.StatusInternalServerError
}

func (t *HTTPTransport) get(ctx context.Context, target string) ([]byte, http.Header, error) {
	requestID := uuid.NewString()
	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(t.backoff * time.Duration(attempt)):
			}
		}

		data, header, retry, err := t.getOnce(ctx, target, requestID)
		if err == nil {
			return data, header, nil
		}
		lastErr = err
		if !retry {
			break
		}
		log.Printf("Warning: request %s to %s failed (attempt %d/%d): %v", requestID, target, attempt+1, t.retries+1, err)
	}
	return nil, nil, lastErr
}

func (t *HTTPTransport) getOnce(ctx context.Context, target, requestID string) (data []byte, header http.Header, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, false, err
	}
	req.Header.Set("X-Request-ID", requestID)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, resp.StatusCode >= http.StatusInternalServerError,
			fmt.Errorf("repository returned status %d", resp.StatusCode)
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, nil, false, fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, resp.ContentLength)
	}
	data, err = io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, nil, true, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, nil, false, fmt.Errorf("%w: exceeds %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}
	return data, resp.Header, false, nil
}

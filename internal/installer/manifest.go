package installer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	manifestFile = "plugin.json"
	settingsFile = "settings.json"
)

// PluginManifest represents the plugin.json structure shipped in a package.
type PluginManifest struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Version       string         `json:"version"`
	Description   string         `json:"description"`
	Author        string         `json:"author"`
	MinAppVersion string         `json:"minAppVersion,omitempty"`
	MaxAppVersion string         `json:"maxAppVersion,omitempty"`
	Config        map[string]any `json:"config,omitempty"`
}

// LoadManifest loads and parses a plugin.json file.
func LoadManifest(pluginDir string) (*PluginManifest, error) {
	manifestPath := filepath.Join(pluginDir, manifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin.json: %w", err)
	}

	var manifest PluginManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse plugin.json: %w", err)
	}

	// Validate required fields
	if manifest.ID == "" {
		return nil, fmt.Errorf("plugin.json missing required field: id")
	}
	if manifest.Version == "" {
		return nil, fmt.Errorf("plugin.json missing required field: version")
	}

	if manifest.Name == "" {
		manifest.Name = manifest.ID
	}

	return &manifest, nil
}

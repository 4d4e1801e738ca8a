package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/kalendo/pluginhub/internal/models"
)

// ZipPackage builds a zip plugin package holding a plugin.json for id@version.
func ZipPackage(t *testing.T, id, version string) *models.Package {
	t.Helper()
	manifest, err := json.Marshal(map[string]string{"id": id, "name": "Plugin " + id, "version": version})
	if err != nil {
		t.Fatalf("Failed to marshal manifest: %v", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("plugin.json")
	if err != nil {
		t.Fatalf("Failed to create zip entry: %v", err)
	}
	if _, err := w.Write(manifest); err != nil {
		t.Fatalf("Failed to write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}

	return &models.Package{
		PluginID: id,
		Version:  version,
		Filename: fmt.Sprintf("%s-%s.zip", id, version),
		Data:     buf.Bytes(),
	}
}

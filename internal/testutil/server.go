package testutil

import (
	"testing"

	"github.com/kalendo/pluginhub/internal/api"
	"github.com/kalendo/pluginhub/internal/core"
)

// SetupTestServer initializes a full core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T, transport *StubTransport) (*api.Server, *core.App) {
	t.Helper()
	app := SetupTestApp(t, transport)
	return api.NewServer(app), app
}

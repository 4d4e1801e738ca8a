package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalendo/pluginhub/internal/core"
	"github.com/kalendo/pluginhub/internal/testutil"
)

type testServer struct {
	router    http.Handler
	app       *core.App
	transport *testutil.StubTransport
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	transport := testutil.NewStubTransport()
	server, app := testutil.SetupTestServer(t, transport)
	return &testServer{router: server.Router(), app: app, transport: transport}
}

// do sends a request with an optional JSON body and returns the recorder.
func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("handler returned wrong status code: got %v want %v (body: %s)", rr.Code, want, rr.Body.String())
	}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dest); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

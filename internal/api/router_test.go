package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/errorwatch/internal/api"
	mw "github.com/kiranshivaraju/errorwatch/internal/api/middleware"
	"github.com/kiranshivaraju/errorwatch/internal/records"
	"github.com/kiranshivaraju/errorwatch/internal/store"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubCounter struct{}

func (stubCounter) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func reached(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(name))
	}
}

// newTestRouter issues one key per scope and routes every endpoint to a stub
// that echoes its name.
func newTestRouter(t *testing.T) (http.Handler, map[string]string) {
	t.Helper()
	keys := records.NewAPIKeyStore(store.NewMemoryBackend(), store.Options{})

	raw := map[string]string{
		mw.ScopeIngest: "ew_ingst_0123456789",
		mw.ScopeRead:   "ew_read__0123456789",
		mw.ScopeAdmin:  "ew_admin_0123456789",
	}
	for scope, key := range raw {
		hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
		require.NoError(t, err)
		_, err = keys.Create(context.Background(), &models.APIKey{
			Name:      scope,
			KeyHash:   string(hash),
			KeyPrefix: key[:mw.KeyPrefixLen],
			Scopes:    []string{scope},
		})
		require.NoError(t, err)
	}

	router := api.NewRouter(api.Dependencies{
		Auth:              mw.NewAuth(keys),
		RateLimit:         mw.NewRateLimit(stubCounter{}, 60),
		HealthHandler:     reached("health"),
		IngestHandler:     reached("ingest"),
		ListErrorsHandler: reached("list"),
		GetErrorHandler:   reached("get"),
		AnalyzeHandler:    reached("analyze"),
	})
	return router, raw
}

func call(router http.Handler, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router, _ := newTestRouter(t)

	w := call(router, "GET", "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "health", w.Body.String())
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/ingest"},
		{"GET", "/api/v1/errors"},
		{"GET", "/api/v1/errors/abc"},
		{"POST", "/api/v1/errors/abc/analyze"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := call(router, ep.method, ep.path, "")

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_ScopeMatrix(t *testing.T) {
	router, keys := newTestRouter(t)

	cases := []struct {
		method string
		path   string
		scope  string
		want   int
	}{
		{"POST", "/api/v1/ingest", mw.ScopeIngest, http.StatusOK},
		{"POST", "/api/v1/ingest", mw.ScopeRead, http.StatusForbidden},
		{"GET", "/api/v1/errors", mw.ScopeRead, http.StatusOK},
		{"GET", "/api/v1/errors", mw.ScopeIngest, http.StatusForbidden},
		{"GET", "/api/v1/errors/abc", mw.ScopeRead, http.StatusOK},
		{"POST", "/api/v1/errors/abc/analyze", mw.ScopeRead, http.StatusForbidden},
		{"POST", "/api/v1/errors/abc/analyze", mw.ScopeAdmin, http.StatusOK},
		{"GET", "/api/v1/errors", mw.ScopeAdmin, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.scope+" "+tc.method+" "+tc.path, func(t *testing.T) {
			w := call(router, tc.method, tc.path, keys[tc.scope])
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRouter_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := call(router, "GET", "/api/v1/nonexistent", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "RESOURCE_NOT_FOUND")
}

func TestRouter_UnwiredHandlerIsNotImplemented(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(records.NewAPIKeyStore(store.NewMemoryBackend(), store.Options{})),
		RateLimit: mw.NewRateLimit(stubCounter{}, 60),
	})

	w := call(router, "GET", "/api/v1/health", "")

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

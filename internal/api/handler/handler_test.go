package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/errorwatch/internal/ai/mock"
	"github.com/kiranshivaraju/errorwatch/internal/analysis"
	"github.com/kiranshivaraju/errorwatch/internal/api/handler"
	"github.com/kiranshivaraju/errorwatch/internal/cache"
	"github.com/kiranshivaraju/errorwatch/internal/ingest"
	"github.com/kiranshivaraju/errorwatch/internal/notify"
	"github.com/kiranshivaraju/errorwatch/internal/pipeline"
	"github.com/kiranshivaraju/errorwatch/internal/records"
	"github.com/kiranshivaraju/errorwatch/internal/store"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fixtures ---

type fixture struct {
	backend  *store.MemoryBackend
	records  *records.ErrorRecordStore
	features *records.FeatureRegistry
	status   *analysis.CacheStatusTracker
	provider *mock.MockProvider
	orch     *analysis.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := cache.NewMemoryCache(64)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	backend := store.NewMemoryBackend()
	f := &fixture{
		backend:  backend,
		records:  records.NewErrorRecordStore(backend, nil, store.Options{}),
		features: records.NewFeatureRegistry(backend, nil, store.Options{}),
		status:   analysis.NewCacheStatusTracker(c),
		provider: mock.NewStaticProvider("The nil map is written before make."),
	}
	f.orch = analysis.NewOrchestrator(f.features, nil, f.provider, f.records, f.status,
		analysis.Config{InferenceTimeout: time.Second})
	return f
}

func (f *fixture) seed(t *testing.T, rootFeature, message string) *models.ErrorRecord {
	t.Helper()
	rec, err := f.records.Create(context.Background(), models.RawErrorPayload{
		RootFeature: rootFeature, Feature: "checkout", Message: message, Stack: "at main.go:12",
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) registerFeature(t *testing.T, rootFeature string) {
	t.Helper()
	_, err := f.features.Put(context.Background(), models.FeatureInfoSet{
		ID:       "default",
		Features: []models.FeatureInfo{{RootFeature: rootFeature, URL: "https://github.com/acme/" + rootFeature}},
	})
	require.NoError(t, err)
}

// route mounts h on a chi router so URL params resolve.
func route(method, pattern string, h http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Method(method, pattern, h)
	return r
}

func do(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func dataOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error.Code
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

// ========================================
// Health
// ========================================

func TestHealth_OK(t *testing.T) {
	w := do(handler.NewHealthHandler(pinger{}, pinger{}), "GET", "/api/v1/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", dataOf(t, w)["status"])
}

func TestHealth_Degraded(t *testing.T) {
	w := do(handler.NewHealthHandler(pinger{}, pinger{err: errors.New("dial tcp: refused")}), "GET", "/api/v1/health", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "DEGRADED", errCode(t, w))
	assert.Contains(t, w.Body.String(), `"cache":"degraded"`)
}

// ========================================
// Ingest
// ========================================

type emptyNotifier struct{}

func (emptyNotifier) Notify(_ context.Context, rec *models.ErrorRecord) (*notify.DispatchReport, error) {
	return &notify.DispatchReport{RecordID: rec.ID}, nil
}

type nopTrigger struct{}

func (nopTrigger) Trigger(context.Context, *models.ErrorRecord) error { return nil }

func TestIngest_CloudWatchEvent(t *testing.T) {
	f := newFixture(t)
	f.registerFeature(t, "billing")
	proc := pipeline.NewProcessor(f.records, emptyNotifier{}, f.orch)

	env, err := ingest.EncodePayloads([]models.RawErrorPayload{
		{RootFeature: "billing", Feature: "invoice", Message: "nil map", Stack: "at a"},
		{RootFeature: "billing", Feature: "refund", Message: "index out of range", Stack: "at b"},
	})
	require.NoError(t, err)
	body, _ := json.Marshal(map[string]any{"awslogs": map[string]string{"data": env}})

	w := do(handler.NewIngestHandler(proc, 1<<20), "POST", "/api/v1/ingest", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := dataOf(t, w)
	assert.Equal(t, float64(2), data["received"])
	assert.Len(t, data["records"], 2)

	all, err := f.records.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, rec := range all {
		require.NotNil(t, rec.AnalysisResult)
		assert.Equal(t, "The nil map is written before make.", *rec.AnalysisResult)
	}
}

func TestIngest_BareEnvelopeString(t *testing.T) {
	f := newFixture(t)
	proc := pipeline.NewProcessor(f.records, emptyNotifier{}, nopTrigger{})

	env, err := ingest.EncodePayloads([]models.RawErrorPayload{{RootFeature: "billing", Message: "boom"}})
	require.NoError(t, err)
	body, _ := json.Marshal(env)

	w := do(handler.NewIngestHandler(proc, 1<<20), "POST", "/api/v1/ingest", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), dataOf(t, w)["received"])
}

func TestIngest_InvalidEnvelope(t *testing.T) {
	f := newFixture(t)
	proc := pipeline.NewProcessor(f.records, emptyNotifier{}, nopTrigger{})

	body, _ := json.Marshal(map[string]any{"awslogs": map[string]string{"data": "!!!not-base64!!!"}})
	w := do(handler.NewIngestHandler(proc, 1<<20), "POST", "/api/v1/ingest", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ENVELOPE", errCode(t, w))
}

func TestIngest_EmptyBody(t *testing.T) {
	f := newFixture(t)
	proc := pipeline.NewProcessor(f.records, emptyNotifier{}, nopTrigger{})

	w := do(handler.NewIngestHandler(proc, 1<<20), "POST", "/api/v1/ingest", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ENVELOPE", errCode(t, w))
}

func TestIngest_BodyTooLarge(t *testing.T) {
	f := newFixture(t)
	proc := pipeline.NewProcessor(f.records, emptyNotifier{}, nopTrigger{})

	body, _ := json.Marshal(strings.Repeat("A", 2048))
	w := do(handler.NewIngestHandler(proc, 1024), "POST", "/api/v1/ingest", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", errCode(t, w))
}

// ========================================
// Errors
// ========================================

func TestListErrors_NewestFirstPaginated(t *testing.T) {
	f := newFixture(t)
	for _, msg := range []string{"A", "B", "C"} {
		f.seed(t, "billing", msg)
		time.Sleep(2 * time.Millisecond)
	}
	h := handler.NewListErrorsHandler(f.records)

	w := do(h, "GET", "/api/v1/errors?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []models.ErrorRecord `json:"data"`
		Meta map[string]any       `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, "C", body.Data[0].Message)
	assert.Equal(t, "B", body.Data[1].Message)
	assert.Equal(t, float64(3), body.Meta["total"])
	assert.Equal(t, true, body.Meta["has_next"])

	w = do(h, "GET", "/api/v1/errors?limit=2&page=2", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "A", body.Data[0].Message)

	w = do(h, "GET", "/api/v1/errors?page=9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Data)
}

func TestListErrors_InvalidPage(t *testing.T) {
	f := newFixture(t)
	w := do(handler.NewListErrorsHandler(f.records), "GET", "/api/v1/errors?page=0", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, w))
}

func TestGetError_WithAnalysisStatus(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "billing", "nil map")
	f.status.Set(context.Background(), rec.ID, analysis.StatusQuerying)

	h := route("GET", "/api/v1/errors/{id}", handler.NewGetErrorHandler(f.records, f.orch))
	w := do(h, "GET", "/api/v1/errors/"+rec.ID, nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, rec.ID, data["id"])
	assert.Equal(t, "nil map", data["message"])
	assert.Equal(t, analysis.StatusQuerying, data["analysis_status"])
}

func TestGetError_NotFound(t *testing.T) {
	f := newFixture(t)
	h := route("GET", "/api/v1/errors/{id}", handler.NewGetErrorHandler(f.records, f.orch))

	w := do(h, "GET", "/api/v1/errors/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RESOURCE_NOT_FOUND", errCode(t, w))
}

// ========================================
// Analyze
// ========================================

const analyzePattern = "/api/v1/errors/{id}/analyze"

func TestAnalyze_SyncReturnsUpdatedRecord(t *testing.T) {
	f := newFixture(t)
	f.registerFeature(t, "billing")
	rec := f.seed(t, "billing", "nil map")

	h := route("POST", analyzePattern, handler.NewAnalyzeHandler(f.records, f.orch, nil))
	w := do(h, "POST", "/api/v1/errors/"+rec.ID+"/analyze", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataOf(t, w)
	assert.Equal(t, "The nil map is written before make.", data["analysis_result"])
	assert.Equal(t, analysis.StatusCompleted, data["analysis_status"])
}

func TestAnalyze_UnknownFeatureIsBadRequest(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "unregistered", "nil map")

	h := route("POST", analyzePattern, handler.NewAnalyzeHandler(f.records, f.orch, nil))
	w := do(h, "POST", "/api/v1/errors/"+rec.ID+"/analyze", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Unknown root feature: unregistered")
	assert.Empty(t, f.provider.Calls())
}

func TestAnalyze_ModelFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.registerFeature(t, "billing")
	rec := f.seed(t, "billing", "nil map")
	orch := analysis.NewOrchestrator(f.features, nil, mock.NewFailingProvider(errors.New("model offline")),
		f.records, f.status, analysis.Config{InferenceTimeout: time.Second})

	h := route("POST", analyzePattern, handler.NewAnalyzeHandler(f.records, orch, nil))
	w := do(h, "POST", "/api/v1/errors/"+rec.ID+"/analyze", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "ANALYSIS_FAILED", errCode(t, w))

	stored, err := f.records.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AnalysisResult)
}

type recordingQueue struct {
	reqs []analysis.Request
	err  error
}

func (q *recordingQueue) Submit(req analysis.Request) error {
	if q.err != nil {
		return q.err
	}
	q.reqs = append(q.reqs, req)
	return nil
}

func TestAnalyze_AsyncQueuesForcedJob(t *testing.T) {
	f := newFixture(t)
	f.registerFeature(t, "billing")
	rec := f.seed(t, "billing", "nil map")
	q := &recordingQueue{}

	h := route("POST", analyzePattern, handler.NewAnalyzeHandler(f.records, f.orch, q))
	w := do(h, "POST", "/api/v1/errors/"+rec.ID+"/analyze", nil)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, rec.ID, dataOf(t, w)["record_id"])
	require.Len(t, q.reqs, 1)
	assert.True(t, q.reqs[0].Force)
	assert.Equal(t, rec.ID, q.reqs[0].Record.ID)
}

func TestAnalyze_AsyncValidatesBeforeQueueing(t *testing.T) {
	f := newFixture(t)
	rec := f.seed(t, "unregistered", "nil map")
	q := &recordingQueue{}

	h := route("POST", analyzePattern, handler.NewAnalyzeHandler(f.records, f.orch, q))
	w := do(h, "POST", "/api/v1/errors/"+rec.ID+"/analyze", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, q.reqs)
}

func TestAnalyze_AsyncQueueFull(t *testing.T) {
	f := newFixture(t)
	f.registerFeature(t, "billing")
	rec := f.seed(t, "billing", "nil map")

	h := route("POST", analyzePattern, handler.NewAnalyzeHandler(f.records, f.orch, &recordingQueue{err: analysis.ErrQueueFull}))
	w := do(h, "POST", "/api/v1/errors/"+rec.ID+"/analyze", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestAnalyze_RecordNotFound(t *testing.T) {
	f := newFixture(t)
	h := route("POST", analyzePattern, handler.NewAnalyzeHandler(f.records, f.orch, nil))

	w := do(h, "POST", "/api/v1/errors/missing/analyze", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

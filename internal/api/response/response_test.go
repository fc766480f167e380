package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/errorwatch/internal/api/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDataEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, any)
		data   any
		status int
		check  func(t *testing.T, data map[string]any)
	}{
		{
			name:   "record read",
			write:  response.JSON,
			data:   map[string]any{"id": "e1", "rootFeature": "billing", "analysis_status": "completed"},
			status: http.StatusOK,
			check: func(t *testing.T, data map[string]any) {
				assert.Equal(t, "e1", data["id"])
				assert.Equal(t, "completed", data["analysis_status"])
			},
		},
		{
			name:   "queued analysis",
			write:  response.Accepted,
			data:   map[string]string{"record_id": "e1", "status": "pending"},
			status: http.StatusAccepted,
			check: func(t *testing.T, data map[string]any) {
				assert.Equal(t, "e1", data["record_id"])
				assert.Equal(t, "pending", data["status"])
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tc.write(w, tc.data)

			assert.Equal(t, tc.status, w.Code)
			body := decode(t, w)
			tc.check(t, body["data"].(map[string]any))
		})
	}
}

func TestCollection_ErrorListPage(t *testing.T) {
	w := httptest.NewRecorder()
	page := []map[string]string{{"id": "C"}, {"id": "B"}}

	response.Collection(w, page, response.NewPaginationMeta(1, 2, 3))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)

	data := body["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "C", data[0].(map[string]any)["id"])

	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["page"])
	assert.Equal(t, float64(2), meta["limit"])
	assert.Equal(t, float64(3), meta["total"])
	assert.Equal(t, true, meta["has_next"])
}

func TestNewPaginationMeta(t *testing.T) {
	tests := []struct {
		page, limit, total int
		hasNext            bool
	}{
		{1, 50, 120, true},
		{2, 50, 120, true},
		{3, 50, 120, false},
		{1, 50, 50, false},
		{1, 50, 0, false},
	}
	for _, tc := range tests {
		meta := response.NewPaginationMeta(tc.page, tc.limit, tc.total)
		assert.Equal(t, tc.hasNext, meta.HasNext, "page %d of %d", tc.page, tc.total)
		assert.Equal(t, tc.total, meta.Total)
	}
}

func TestError_InvalidEnvelopeWithStage(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusBadRequest, "INVALID_ENVELOPE", "envelope could not be decoded",
		map[string]string{"stage": "gzip"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "INVALID_ENVELOPE", errObj["code"])
	assert.Equal(t, "envelope could not be decoded", errObj["message"])
	assert.Equal(t, "gzip", errObj["details"].(map[string]any)["stage"])
}

func TestError_DetailsOmittedWhenNil(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "error record not found", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	_, hasDetails := errObj["details"]
	assert.False(t, hasDetails)
}

func TestJSON_UnencodableDataKeepsStatus(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

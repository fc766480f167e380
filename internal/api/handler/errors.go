package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/errorwatch/internal/api/response"
	"github.com/kiranshivaraju/errorwatch/internal/store"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// ErrorReader reads persisted error records.
type ErrorReader interface {
	GetByID(ctx context.Context, id string) (*models.ErrorRecord, error)
	List(ctx context.Context) ([]*models.ErrorRecord, error)
}

// StatusReader reports the analysis state of a record.
type StatusReader interface {
	Status(ctx context.Context, recordID string) (string, bool)
}

// NewListErrorsHandler returns an http.HandlerFunc for GET /api/v1/errors.
// Records are newest first, paginated with ?page= and ?limit=.
func NewListErrorsHandler(records ErrorReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, limit, ok := parsePage(w, r)
		if !ok {
			return
		}

		all, err := records.List(r.Context())
		if err != nil {
			slog.Error("list error records failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		start := (page - 1) * limit
		end := start + limit
		if start > len(all) {
			start = len(all)
		}
		if end > len(all) {
			end = len(all)
		}

		response.Collection(w, all[start:end], response.NewPaginationMeta(page, limit, len(all)))
	}
}

type errorRecordResponse struct {
	*models.ErrorRecord
	AnalysisStatus string `json:"analysis_status,omitempty"`
}

// NewGetErrorHandler returns an http.HandlerFunc for GET /api/v1/errors/{id}.
func NewGetErrorHandler(records ErrorReader, status StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := records.GetByID(r.Context(), id)
		if err != nil {
			writeRecordError(w, id, err)
			return
		}

		resp := errorRecordResponse{ErrorRecord: rec}
		if s, ok := status.Status(r.Context(), id); ok {
			resp.AnalysisStatus = s
		}
		response.JSON(w, resp)
	}
}

func writeRecordError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND",
			"Error record not found", map[string]string{"id": id})
		return
	}
	slog.Error("get error record failed", "id", id, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
		"An unexpected error occurred", nil)
}

func parsePage(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	page, limit := 1, defaultPageLimit

	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
			return 0, 0, false
		}
		page = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
			return 0, 0, false
		}
		limit = min(n, maxPageLimit)
	}
	return page, limit, true
}

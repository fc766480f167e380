package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/errorwatch/internal/analysis"
	"github.com/kiranshivaraju/errorwatch/internal/api/response"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

// Analyzer runs a forced analysis inline and can check a record up front.
type Analyzer interface {
	Validate(ctx context.Context, record *models.ErrorRecord) error
	Run(ctx context.Context, req analysis.Request) (*models.ErrorRecord, error)
}

// AnalysisQueue accepts background analysis jobs.
type AnalysisQueue interface {
	Submit(req analysis.Request) error
}

// NewAnalyzeHandler returns an http.HandlerFunc for POST /api/v1/errors/{id}/analyze.
// With a nil queue the analysis runs inline and the updated record is returned.
// Otherwise the record is validated, queued, and 202 is returned.
func NewAnalyzeHandler(records ErrorReader, analyzer Analyzer, queue AnalysisQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		rec, err := records.GetByID(r.Context(), id)
		if err != nil {
			writeRecordError(w, id, err)
			return
		}

		req := analysis.Request{Record: rec, Force: true}

		if queue == nil {
			updated, err := analyzer.Run(r.Context(), req)
			if err != nil {
				writeAnalysisError(w, id, err)
				return
			}
			response.JSON(w, errorRecordResponse{ErrorRecord: updated, AnalysisStatus: analysis.StatusCompleted})
			return
		}

		if err := analyzer.Validate(r.Context(), rec); err != nil {
			writeAnalysisError(w, id, err)
			return
		}
		if err := queue.Submit(req); err != nil {
			writeAnalysisError(w, id, err)
			return
		}
		response.Accepted(w, map[string]string{
			"record_id": id,
			"status":    analysis.StatusPending,
		})
	}
}

func writeAnalysisError(w http.ResponseWriter, id string, err error) {
	var badReq *analysis.BadRequestError
	var analysisErr *analysis.AnalysisError

	switch {
	case errors.As(err, &badReq):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", badReq.Message, nil)
	case errors.Is(err, analysis.ErrQueueFull), errors.Is(err, analysis.ErrRunnerClosed):
		w.Header().Set("Retry-After", "30")
		response.Error(w, http.StatusServiceUnavailable, "ANALYSIS_UNAVAILABLE",
			"Analysis queue is not accepting jobs", nil)
	case errors.As(err, &analysisErr):
		slog.Warn("manual analysis failed", "record_id", id, "stage", analysisErr.Stage, "error", err)
		response.Error(w, http.StatusBadGateway, "ANALYSIS_FAILED", err.Error(),
			map[string]string{"stage": analysisErr.Stage})
	default:
		slog.Error("manual analysis failed", "record_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

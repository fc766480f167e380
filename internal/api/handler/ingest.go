package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/errorwatch/internal/api/response"
	"github.com/kiranshivaraju/errorwatch/internal/ingest"
	"github.com/kiranshivaraju/errorwatch/internal/pipeline"
)

// BatchProcessor runs one envelope through the pipeline.
type BatchProcessor interface {
	Process(ctx context.Context, envelope string) (*pipeline.BatchReport, error)
}

// NewIngestHandler returns an http.HandlerFunc for POST /api/v1/ingest.
// The body is either a CloudWatch Logs subscription event or the bare envelope
// as a JSON string. Bodies over maxBytes are rejected.
func NewIngestHandler(proc BatchProcessor, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
					"Request body exceeds the envelope size limit", map[string]int64{"limit": tooLarge.Limit})
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read request body", nil)
			return
		}

		envelope, err := ingest.ParseCloudWatchEvent(body)
		if err != nil {
			writeDecodeError(w, err)
			return
		}

		report, err := proc.Process(r.Context(), envelope)
		if err != nil {
			var decodeErr *ingest.DecodeError
			if errors.As(err, &decodeErr) {
				writeDecodeError(w, err)
				return
			}
			slog.Error("ingest failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, report)
	}
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var details map[string]string
	var decodeErr *ingest.DecodeError
	if errors.As(err, &decodeErr) {
		details = map[string]string{"stage": decodeErr.Stage}
	}
	response.Error(w, http.StatusBadRequest, "INVALID_ENVELOPE", err.Error(), details)
}

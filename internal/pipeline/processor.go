// Package pipeline runs one decoded log batch through persistence, notification
// and analysis.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/kiranshivaraju/errorwatch/internal/ingest"
	"github.com/kiranshivaraju/errorwatch/internal/notify"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

// RecordCreator persists a decoded payload.
type RecordCreator interface {
	Create(ctx context.Context, payload models.RawErrorPayload) (*models.ErrorRecord, error)
}

// Notifier fans a record out to operators.
type Notifier interface {
	Notify(ctx context.Context, record *models.ErrorRecord) (*notify.DispatchReport, error)
}

// AnalysisTrigger starts analysis of a record, inline or queued.
type AnalysisTrigger interface {
	Trigger(ctx context.Context, record *models.ErrorRecord) error
}

// Outcome of one payload.
const (
	OutcomeProcessed     = "processed"
	OutcomePersistFailed = "persist_failed"
)

// RecordReport describes what happened to one payload of the batch.
type RecordReport struct {
	EventID       string `json:"event_id"`
	RecordID      string `json:"record_id,omitempty"`
	Outcome       string `json:"outcome"`
	Error         string `json:"error,omitempty"`
	Delivered     int    `json:"delivered"`
	Skipped       int    `json:"skipped"`
	Failed        int    `json:"failed"`
	NotifyError   string `json:"notify_error,omitempty"`
	AnalysisError string `json:"analysis_error,omitempty"`
}

// BatchReport is returned for every successfully decoded envelope.
type BatchReport struct {
	Received int              `json:"received"`
	Skipped  []ingest.Warning `json:"skipped"`
	Records  []RecordReport   `json:"records"`
}

// Processor implements the per-batch flow: decode, then for each payload in order
// persist, notify and trigger analysis.
type Processor struct {
	records  RecordCreator
	notifier Notifier
	analyzer AnalysisTrigger
}

func NewProcessor(records RecordCreator, notifier Notifier, analyzer AnalysisTrigger) *Processor {
	return &Processor{records: records, notifier: notifier, analyzer: analyzer}
}

// Process decodes envelope and handles each payload sequentially. Only a DecodeError
// fails the call; everything after decoding is contained per record.
func (p *Processor) Process(ctx context.Context, envelope string) (*BatchReport, error) {
	batch, err := ingest.Decode(envelope)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{
		Received: len(batch.Payloads) + len(batch.Warnings),
		Skipped:  batch.Warnings,
		Records:  make([]RecordReport, 0, len(batch.Payloads)),
	}
	if report.Skipped == nil {
		report.Skipped = []ingest.Warning{}
	}

	for _, payload := range batch.Payloads {
		report.Records = append(report.Records, p.processOne(ctx, payload))
	}

	slog.Info("batch processed",
		"received", report.Received,
		"records", len(report.Records),
		"skipped", len(report.Skipped),
	)
	return report, nil
}

func (p *Processor) processOne(ctx context.Context, payload models.RawErrorPayload) RecordReport {
	rr := RecordReport{EventID: payload.EventID}

	record, err := p.records.Create(ctx, payload)
	if err != nil {
		slog.Error("persist error record failed", "event_id", payload.EventID, "id", payload.ID, "error", err)
		rr.Outcome = OutcomePersistFailed
		rr.Error = err.Error()
		return rr
	}
	rr.RecordID = record.ID
	rr.Outcome = OutcomeProcessed

	dispatch, err := p.notifier.Notify(ctx, record)
	if err != nil {
		slog.Error("notify failed", "record_id", record.ID, "error", err)
		rr.NotifyError = err.Error()
	} else {
		rr.Delivered = dispatch.Count(notify.StatusDelivered)
		rr.Skipped = dispatch.Count(notify.StatusSkipped)
		rr.Failed = dispatch.Count(notify.StatusFailed)
	}

	if err := p.analyzer.Trigger(ctx, record); err != nil {
		rr.AnalysisError = err.Error()
	}

	return rr
}

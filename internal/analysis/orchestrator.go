// Package analysis runs root-cause analysis of error records: it resolves the
// failing feature's source, asks a language model, and writes the answer back.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/errorwatch/internal/snapshot"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

// FeatureLookup resolves a root feature to its registered source location.
type FeatureLookup interface {
	Lookup(ctx context.Context, rootFeature string) (models.FeatureInfo, bool, error)
}

// RecordUpdater persists an analysis result onto a record.
type RecordUpdater interface {
	Update(ctx context.Context, id string, upd models.ErrorRecordUpdate) (*models.ErrorRecord, error)
}

type Config struct {
	Model            string
	FetchContext     bool
	WebSearch        bool
	SkipAnalyzed     bool
	InferenceTimeout time.Duration
	FetchTimeout     time.Duration
}

// Request is one analysis job. Force bypasses SkipAnalyzed.
type Request struct {
	Record *models.ErrorRecord
	Force  bool
}

type Orchestrator struct {
	features  FeatureLookup
	snapshots snapshot.Provider
	provider  models.LLMProvider
	records   RecordUpdater
	status    StatusTracker
	cfg       Config
}

// NewOrchestrator wires an Orchestrator. snapshots may be nil when cfg.FetchContext is false.
func NewOrchestrator(features FeatureLookup, snapshots snapshot.Provider, provider models.LLMProvider,
	records RecordUpdater, status StatusTracker, cfg Config) *Orchestrator {
	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = 120 * time.Second
	}
	if snapshots == nil {
		cfg.FetchContext = false
	}
	return &Orchestrator{
		features:  features,
		snapshots: snapshots,
		provider:  provider,
		records:   records,
		status:    status,
		cfg:       cfg,
	}
}

// Status returns the last recorded analysis state for recordID.
func (o *Orchestrator) Status(ctx context.Context, recordID string) (string, bool) {
	return o.status.Get(ctx, recordID)
}

// Analyze runs one analysis of record, honoring SkipAnalyzed.
func (o *Orchestrator) Analyze(ctx context.Context, record *models.ErrorRecord) (*models.ErrorRecord, error) {
	return o.Run(ctx, Request{Record: record})
}

// Trigger runs the analysis inline and discards the updated record.
func (o *Orchestrator) Trigger(ctx context.Context, record *models.ErrorRecord) error {
	_, err := o.Analyze(ctx, record)
	return err
}

// Validate checks that record can be analyzed at all, without side effects.
func (o *Orchestrator) Validate(ctx context.Context, record *models.ErrorRecord) error {
	_, err := o.resolveFeature(ctx, record)
	return err
}

// Run drives one record through pending, context_fetching, querying and then completed
// or failed. The record is written only after the model has produced a full answer.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.ErrorRecord, error) {
	record := req.Record
	if record.HasAnalysis() && o.cfg.SkipAnalyzed && !req.Force {
		slog.Info("analysis skipped, result already present", "record_id", record.ID)
		return record, nil
	}

	o.status.Set(ctx, record.ID, StatusPending)

	feature, err := o.resolveFeature(ctx, record)
	if err != nil {
		return nil, o.fail(ctx, record.ID, err)
	}

	var snap string
	if o.cfg.FetchContext {
		o.status.Set(ctx, record.ID, StatusContextFetching)
		snap, err = o.fetch(ctx, feature.URL)
		if err != nil {
			return nil, o.fail(ctx, record.ID, &AnalysisError{RecordID: record.ID, Stage: StageFetch, Err: err})
		}
	}

	o.status.Set(ctx, record.ID, StatusQuerying)
	answer, err := o.query(ctx, record, feature, snap)
	if err != nil {
		return nil, o.fail(ctx, record.ID, &AnalysisError{RecordID: record.ID, Stage: StageQuery, Err: err})
	}

	updated, err := o.records.Update(ctx, record.ID, models.ErrorRecordUpdate{AnalysisResult: &answer})
	if err != nil {
		return nil, o.fail(ctx, record.ID, &AnalysisError{RecordID: record.ID, Stage: StagePersist, Err: err})
	}

	o.status.Set(ctx, record.ID, StatusCompleted)
	slog.Info("analysis completed",
		"record_id", record.ID,
		"root_feature", record.RootFeature,
		"provider", o.provider.Name(),
		"with_codebase", snap != "",
	)
	return updated, nil
}

func (o *Orchestrator) resolveFeature(ctx context.Context, record *models.ErrorRecord) (models.FeatureInfo, error) {
	feature, ok, err := o.features.Lookup(ctx, record.RootFeature)
	if err != nil {
		return models.FeatureInfo{}, &AnalysisError{RecordID: record.ID, Stage: StageFetch, Err: fmt.Errorf("lookup feature: %w", err)}
	}
	if !ok {
		return models.FeatureInfo{}, &BadRequestError{Message: fmt.Sprintf("Unknown root feature: %s", record.RootFeature)}
	}
	return feature, nil
}

func (o *Orchestrator) fetch(ctx context.Context, url string) (string, error) {
	if o.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.FetchTimeout)
		defer cancel()
	}
	return o.snapshots.Fetch(ctx, url)
}

func (o *Orchestrator) query(ctx context.Context, record *models.ErrorRecord, feature models.FeatureInfo, snap string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.InferenceTimeout)
	defer cancel()

	answer, err := o.provider.Chat(ctx, BuildMessages(record, feature, snap), models.ChatOptions{
		Model:     o.cfg.Model,
		WebSearch: o.cfg.WebSearch,
	})
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", fmt.Errorf("%s returned an empty answer", o.provider.Name())
	}
	return answer, nil
}

func (o *Orchestrator) fail(ctx context.Context, recordID string, err error) error {
	// Record the failure even when ctx itself was cancelled.
	o.status.Set(context.WithoutCancel(ctx), recordID, StatusFailed)
	slog.Error("analysis failed", "record_id", recordID, "error", err)
	return err
}

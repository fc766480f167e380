package records

import (
	"context"

	"github.com/kiranshivaraju/errorwatch/internal/cache"
	"github.com/kiranshivaraju/errorwatch/internal/store"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

// errorRecordAttrs is the persisted attribute layout of an ErrorNotification record.
type errorRecordAttrs struct {
	RootFeature   string  `json:"RootFeature,omitempty"`
	Feature       string  `json:"Feature,omitempty"`
	Message       string  `json:"Message,omitempty"`
	Stack         string  `json:"Stack,omitempty"`
	AnalyzeResult *string `json:"AnalyzeResult,omitempty"`
}

var errorRecordMapper = store.Mapper[*models.ErrorRecord, errorRecordAttrs]{
	ToWire: func(r *models.ErrorRecord) errorRecordAttrs {
		return errorRecordAttrs{
			RootFeature:   r.RootFeature,
			Feature:       r.Feature,
			Message:       r.Message,
			Stack:         r.Stack,
			AnalyzeResult: r.AnalysisResult,
		}
	},
	FromWire: func(m store.Meta, a errorRecordAttrs) *models.ErrorRecord {
		return &models.ErrorRecord{
			ID:             m.ID,
			RootFeature:    a.RootFeature,
			Feature:        a.Feature,
			Message:        a.Message,
			Stack:          a.Stack,
			AnalysisResult: a.AnalyzeResult,
			CreatedAt:      m.CreatedAt,
			UpdatedAt:      m.UpdatedAt,
		}
	},
}

// ErrorRecordStore persists ErrorNotification records.
type ErrorRecordStore struct {
	repo *store.Repository[*models.ErrorRecord, errorRecordAttrs]
}

func NewErrorRecordStore(backend store.Backend, c cache.Cache, opts store.Options) *ErrorRecordStore {
	return &ErrorRecordStore{
		repo: store.NewRepository(backend, c, models.DataTypeErrorNotification, errorRecordMapper, opts),
	}
}

// Create persists payload as a new record. The payload id is used when present,
// otherwise one is generated. A reused id returns store.ErrDuplicateKey.
func (s *ErrorRecordStore) Create(ctx context.Context, payload models.RawErrorPayload) (*models.ErrorRecord, error) {
	return s.repo.Create(ctx, payload.ID, &models.ErrorRecord{
		RootFeature: payload.RootFeature,
		Feature:     payload.Feature,
		Message:     payload.Message,
		Stack:       payload.Stack,
	})
}

// GetByID returns store.ErrNotFound when id is unknown.
func (s *ErrorRecordStore) GetByID(ctx context.Context, id string) (*models.ErrorRecord, error) {
	return s.repo.Get(ctx, id)
}

// List returns every error record, newest first.
func (s *ErrorRecordStore) List(ctx context.Context) ([]*models.ErrorRecord, error) {
	return s.repo.List(ctx)
}

// Update applies the non-nil fields of upd. ID and CreatedAt never change.
func (s *ErrorRecordStore) Update(ctx context.Context, id string, upd models.ErrorRecordUpdate) (*models.ErrorRecord, error) {
	return s.repo.Update(ctx, id, errorRecordAttrs{AnalyzeResult: upd.AnalysisResult})
}

package analysis

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/errorwatch/internal/cache"
)

// Analysis states, in order. completed and failed are terminal.
const (
	StatusPending         = "pending"
	StatusContextFetching = "context_fetching"
	StatusQuerying        = "querying"
	StatusCompleted       = "completed"
	StatusFailed          = "failed"
)

const statusTTL = 24 * time.Hour

// StatusTracker records the latest analysis state per record.
type StatusTracker interface {
	Set(ctx context.Context, recordID, status string)
	Get(ctx context.Context, recordID string) (string, bool)
}

// CacheStatusTracker keeps states in the cache. Failures are logged, never returned:
// a lost status must not fail an analysis.
type CacheStatusTracker struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewCacheStatusTracker(c cache.Cache) *CacheStatusTracker {
	return &CacheStatusTracker{cache: c, ttl: statusTTL}
}

func (t *CacheStatusTracker) Set(ctx context.Context, recordID, status string) {
	if err := t.cache.SetAnalysisStatus(ctx, recordID, status, t.ttl); err != nil {
		slog.Warn("analysis status write failed", "record_id", recordID, "status", status, "error", err)
	}
}

func (t *CacheStatusTracker) Get(ctx context.Context, recordID string) (string, bool) {
	status, ok, err := t.cache.GetAnalysisStatus(ctx, recordID)
	if err != nil {
		slog.Warn("analysis status read failed", "record_id", recordID, "error", err)
		return "", false
	}
	return status, ok
}

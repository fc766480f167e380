package records

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/errorwatch/internal/cache"
	"github.com/kiranshivaraju/errorwatch/internal/store"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

type featureInfoAttrs struct {
	FeatureInfoList []models.FeatureInfo `json:"FeatureInfoList"`
}

var featureInfoMapper = store.Mapper[models.FeatureInfoSet, featureInfoAttrs]{
	ToWire: func(s models.FeatureInfoSet) featureInfoAttrs {
		return featureInfoAttrs{FeatureInfoList: s.Features}
	},
	FromWire: func(m store.Meta, a featureInfoAttrs) models.FeatureInfoSet {
		return models.FeatureInfoSet{ID: m.ID, Features: a.FeatureInfoList}
	},
}

// FeatureRegistry maps root features to source repository URLs.
type FeatureRegistry struct {
	repo *store.Repository[models.FeatureInfoSet, featureInfoAttrs]
}

func NewFeatureRegistry(backend store.Backend, c cache.Cache, opts store.Options) *FeatureRegistry {
	return &FeatureRegistry{
		repo: store.NewRepository(backend, c, models.DataTypeFeatureInfo, featureInfoMapper, opts),
	}
}

// List flattens every FeatureInfo record into one list. Newer records come first.
func (r *FeatureRegistry) List(ctx context.Context) ([]models.FeatureInfo, error) {
	sets, err := r.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list feature info: %w", err)
	}
	var out []models.FeatureInfo
	for _, s := range sets {
		out = append(out, s.Features...)
	}
	return out, nil
}

// Lookup returns the first entry for rootFeature. ok is false when none is registered.
func (r *FeatureRegistry) Lookup(ctx context.Context, rootFeature string) (models.FeatureInfo, bool, error) {
	all, err := r.List(ctx)
	if err != nil {
		return models.FeatureInfo{}, false, err
	}
	for _, f := range all {
		if f.RootFeature == rootFeature {
			return f, true, nil
		}
	}
	return models.FeatureInfo{}, false, nil
}

// Get returns the set stored under id, or store.ErrNotFound.
func (r *FeatureRegistry) Get(ctx context.Context, id string) (models.FeatureInfoSet, error) {
	return r.repo.Get(ctx, id)
}

// Put replaces the feature list stored under set.ID.
func (r *FeatureRegistry) Put(ctx context.Context, set models.FeatureInfoSet) (models.FeatureInfoSet, error) {
	return upsert(ctx, r.repo, set.ID, set, featureInfoMapper.ToWire(set))
}

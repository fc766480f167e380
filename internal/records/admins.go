package records

import (
	"context"

	"github.com/kiranshivaraju/errorwatch/internal/cache"
	"github.com/kiranshivaraju/errorwatch/internal/store"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
)

type adminAttrs struct {
	TerminalIDList []string `json:"TerminalIDList"`
}

var adminMapper = store.Mapper[models.AdminRegistration, adminAttrs]{
	ToWire: func(a models.AdminRegistration) adminAttrs {
		return adminAttrs{TerminalIDList: a.TerminalIDs}
	},
	FromWire: func(m store.Meta, a adminAttrs) models.AdminRegistration {
		return models.AdminRegistration{ID: m.ID, TerminalIDs: a.TerminalIDList}
	},
}

// AdminRegistry holds administrator registrations and their terminal lists.
type AdminRegistry struct {
	repo *store.Repository[models.AdminRegistration, adminAttrs]
}

func NewAdminRegistry(backend store.Backend, c cache.Cache, opts store.Options) *AdminRegistry {
	return &AdminRegistry{
		repo: store.NewRepository(backend, c, models.DataTypeAdmin, adminMapper, opts),
	}
}

func (r *AdminRegistry) List(ctx context.Context) ([]models.AdminRegistration, error) {
	return r.repo.List(ctx)
}

// Put replaces the terminal list of admin.ID. An empty list is stored as-is.
func (r *AdminRegistry) Put(ctx context.Context, admin models.AdminRegistration) (models.AdminRegistration, error) {
	if admin.TerminalIDs == nil {
		admin.TerminalIDs = []string{}
	}
	return upsert(ctx, r.repo, admin.ID, admin, adminMapper.ToWire(admin))
}

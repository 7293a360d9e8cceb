package catalog

import (
	"context"

	"github.com/ehr/claims/internal/domain/coverage"
)

// ListFilter narrows catalog listings. Zero fields do not filter.
type ListFilter struct {
	Kind       coverage.ItemKind
	ActiveOnly bool
}

type Repository interface {
	Create(ctx context.Context, ci *ChargeItem) error
	GetByCode(ctx context.Context, code string) (*ChargeItem, error)
	Update(ctx context.Context, ci *ChargeItem) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*ChargeItem, int, error)
}

package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows bill listings. Zero fields do not filter.
type ListFilter struct {
	Status    Status
	PatientID uuid.UUID
}

type Repository interface {
	Create(ctx context.Context, b *Bill) error
	GetByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	// Update persists b if its Version still matches the stored row and
	// increments Version. A stale Version yields a conflict.
	Update(ctx context.Context, b *Bill) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Bill, int, error)
	// ListPastDue returns the ids of unpaid bills whose due date is before at.
	ListPastDue(ctx context.Context, at time.Time) ([]uuid.UUID, error)
}

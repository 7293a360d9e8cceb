package claim

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListFilter narrows claim listings. Zero fields do not filter.
type ListFilter struct {
	Status       Status
	PatientID    uuid.UUID
	PolicyNumber string
}

type Repository interface {
	Create(ctx context.Context, c *InsuranceClaim) error
	GetByID(ctx context.Context, id string) (*InsuranceClaim, error)
	Update(ctx context.Context, c *InsuranceClaim) error
	ListByBill(ctx context.Context, billID uuid.UUID) ([]*InsuranceClaim, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*InsuranceClaim, int, error)
	// Consumed sums the amounts approved under a policy, for the calendar
	// year containing at and over the policy's lifetime.
	Consumed(ctx context.Context, policyNumber string, at time.Time) (annual, lifetime decimal.Decimal, err error)
}

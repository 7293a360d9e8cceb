package coverage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PolicyRepository interface {
	Create(ctx context.Context, p *InsurancePolicy) error
	GetByNumber(ctx context.Context, number string) (*InsurancePolicy, error)
	Update(ctx context.Context, p *InsurancePolicy) error
	ListByHolder(ctx context.Context, holderID uuid.UUID, limit, offset int) ([]*InsurancePolicy, int, error)
	// CurrentForHolder returns the holder's newest policy in force at at, or
	// failing that the newest one that is not cancelled. Nil when neither exists.
	CurrentForHolder(ctx context.Context, holderID uuid.UUID, at time.Time) (*InsurancePolicy, error)
	List(ctx context.Context, limit, offset int) ([]*InsurancePolicy, int, error)
}

// PolicyProvider resolves the policy that covers a patient. A nil policy with
// a nil error means the patient has no coverage.
type PolicyProvider interface {
	PolicyForPatient(ctx context.Context, patientID uuid.UUID) (*InsurancePolicy, error)
}

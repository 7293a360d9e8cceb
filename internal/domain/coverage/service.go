package coverage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/claims/internal/platform/apperr"
)

type Service struct {
	policies PolicyRepository
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(policies PolicyRepository, log zerolog.Logger) *Service {
	return &Service{policies: policies, now: time.Now, log: log}
}

// SetClock overrides the time source used for policy predicates.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) CreatePolicy(ctx context.Context, p *InsurancePolicy) error {
	if p.Status == "" {
		p.Status = PolicyActive
	}
	if err := p.Validate(); err != nil {
		return apperr.InvalidArgument("%v", err)
	}
	if err := s.policies.Create(ctx, p); err != nil {
		return err
	}
	s.log.Info().Str("policy_number", p.PolicyNumber).Str("holder_id", p.HolderID.String()).
		Msg("insurance policy created")
	return nil
}

func (s *Service) GetPolicy(ctx context.Context, number string) (*InsurancePolicy, error) {
	return s.policies.GetByNumber(ctx, number)
}

func (s *Service) ListPolicies(ctx context.Context, limit, offset int) ([]*InsurancePolicy, int, error) {
	return s.policies.List(ctx, limit, offset)
}

func (s *Service) ListPoliciesByHolder(ctx context.Context, holderID uuid.UUID, limit, offset int) ([]*InsurancePolicy, int, error) {
	return s.policies.ListByHolder(ctx, holderID, limit, offset)
}

func (s *Service) CancelPolicy(ctx context.Context, number string) (*InsurancePolicy, error) {
	p, err := s.policies.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	p.Status = PolicyCancelled
	if err := s.policies.Update(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info().Str("policy_number", number).Msg("insurance policy cancelled")
	return p, nil
}

// PolicyForPatient returns the patient's most recent policy that is not
// cancelled, or nil when there is none. Expired policies are still returned
// so that adjudication can report the expiry.
func (s *Service) PolicyForPatient(ctx context.Context, patientID uuid.UUID) (*InsurancePolicy, error) {
	return s.policies.CurrentForHolder(ctx, patientID, s.now())
}

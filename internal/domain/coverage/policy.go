package coverage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PolicyStatus string

const (
	PolicyActive    PolicyStatus = "active"
	PolicyPending   PolicyStatus = "pending"
	PolicyCancelled PolicyStatus = "cancelled"
)

var validPolicyStatuses = map[PolicyStatus]bool{
	PolicyActive: true, PolicyPending: true, PolicyCancelled: true,
}

// InsurancePolicy binds a coverage to a policyholder for a period of time.
type InsurancePolicy struct {
	ID            uuid.UUID    `json:"id"`
	PolicyNumber  string       `json:"policy_number"`
	HolderID      uuid.UUID    `json:"holder_id"`
	Name          string       `json:"name"`
	ProviderID    string       `json:"provider_id"`
	ProviderName  *string      `json:"provider_name,omitempty"`
	Status        PolicyStatus `json:"status"`
	EffectiveFrom *time.Time   `json:"effective_from,omitempty"`
	ExpiresAt     time.Time    `json:"expires_at"`
	Plan          Plan         `json:"plan"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	coverage Coverage
}

// NewPolicy creates an active policy around an already built coverage.
func NewPolicy(number string, holder uuid.UUID, name, provider string, cov Coverage, expiresAt time.Time) *InsurancePolicy {
	p := &InsurancePolicy{
		PolicyNumber: number,
		HolderID:     holder,
		Name:         name,
		ProviderID:   provider,
		Status:       PolicyActive,
		ExpiresAt:    expiresAt,
		coverage:     cov,
	}
	if plan, ok := PlanOf(cov); ok {
		p.Plan = plan
	}
	return p
}

// Coverage returns the policy's coverage, building it from the plan on first use.
func (p *InsurancePolicy) Coverage() (Coverage, error) {
	if p.coverage != nil {
		return p.coverage, nil
	}
	c, err := p.Plan.Build()
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", p.PolicyNumber, err)
	}
	p.coverage = c
	return c, nil
}

func (p *InsurancePolicy) IsExpired(at time.Time) bool { return !at.Before(p.ExpiresAt) }
func (p *InsurancePolicy) IsCancelled() bool           { return p.Status == PolicyCancelled }

// IsPending reports whether the policy has not started yet.
func (p *InsurancePolicy) IsPending(at time.Time) bool {
	if p.Status == PolicyPending {
		return true
	}
	return p.EffectiveFrom != nil && at.Before(*p.EffectiveFrom)
}

func (p *InsurancePolicy) IsActive(at time.Time) bool {
	return !p.IsExpired(at) && !p.IsCancelled() && !p.IsPending(at)
}

// Validate checks the fields required to persist a policy, including that
// its plan builds into a valid coverage.
func (p *InsurancePolicy) Validate() error {
	if p.PolicyNumber == "" {
		return fmt.Errorf("policy_number is required")
	}
	if p.HolderID == uuid.Nil {
		return fmt.Errorf("holder_id is required")
	}
	if p.ProviderID == "" {
		return fmt.Errorf("provider_id is required")
	}
	if p.ExpiresAt.IsZero() {
		return fmt.Errorf("expires_at is required")
	}
	if p.Status != "" && !validPolicyStatuses[p.Status] {
		return fmt.Errorf("invalid policy status: %s", p.Status)
	}
	p.coverage = nil
	if _, err := p.Coverage(); err != nil {
		return err
	}
	return nil
}

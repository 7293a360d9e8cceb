package coverage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/claims/internal/platform/apperr"
)

// -- Mock Repository --

type mockPolicyRepo struct {
	items []*InsurancePolicy // newest first
}

func (m *mockPolicyRepo) Create(_ context.Context, p *InsurancePolicy) error {
	for _, existing := range m.items {
		if existing.PolicyNumber == p.PolicyNumber {
			return apperr.Conflict("policy %s already exists", p.PolicyNumber)
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.items = append([]*InsurancePolicy{p}, m.items...)
	return nil
}

func (m *mockPolicyRepo) GetByNumber(_ context.Context, number string) (*InsurancePolicy, error) {
	for _, p := range m.items {
		if p.PolicyNumber == number {
			return p, nil
		}
	}
	return nil, apperr.NotFound("policy", number)
}

func (m *mockPolicyRepo) Update(_ context.Context, p *InsurancePolicy) error {
	for i, existing := range m.items {
		if existing.PolicyNumber == p.PolicyNumber {
			m.items[i] = p
			return nil
		}
	}
	return apperr.NotFound("policy", p.PolicyNumber)
}

func (m *mockPolicyRepo) ListByHolder(_ context.Context, holderID uuid.UUID, limit, offset int) ([]*InsurancePolicy, int, error) {
	var result []*InsurancePolicy
	for _, p := range m.items {
		if p.HolderID == holderID {
			result = append(result, p)
		}
	}
	return result, len(result), nil
}

func (m *mockPolicyRepo) CurrentForHolder(_ context.Context, holderID uuid.UUID, at time.Time) (*InsurancePolicy, error) {
	var fallback *InsurancePolicy
	for _, p := range m.items {
		if p.HolderID != holderID || p.IsCancelled() {
			continue
		}
		if p.IsActive(at) {
			return p, nil
		}
		if fallback == nil {
			fallback = p
		}
	}
	return fallback, nil
}

func (m *mockPolicyRepo) List(_ context.Context, limit, offset int) ([]*InsurancePolicy, int, error) {
	return m.items, len(m.items), nil
}

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestService() *Service {
	svc := NewService(&mockPolicyRepo{}, zerolog.Nop())
	svc.SetClock(func() time.Time { return testNow })
	return svc
}

func testPlan() Plan {
	return Plan{
		Deductible:      decimal.NewFromInt(200),
		CoinsuranceRate: decimal.RequireFromString("0.1"),
		CoveredBenefits: []BenefitType{BenefitSurgery, BenefitHospitalization},
	}
}

func testPolicy(number string, holder uuid.UUID, expires time.Time) *InsurancePolicy {
	return &InsurancePolicy{
		PolicyNumber: number,
		HolderID:     holder,
		Name:         "Gold Care",
		ProviderID:   "ins-001",
		ExpiresAt:    expires,
		Plan:         testPlan(),
	}
}

func TestService_CreatePolicy(t *testing.T) {
	svc := newTestService()
	p := testPolicy("POL-1", uuid.New(), testNow.AddDate(1, 0, 0))
	if err := svc.CreatePolicy(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if p.Status != PolicyActive {
		t.Errorf("expected status active, got %s", p.Status)
	}
}

func TestService_CreatePolicy_InvalidPlan(t *testing.T) {
	svc := newTestService()
	p := testPolicy("POL-1", uuid.New(), testNow.AddDate(1, 0, 0))
	p.Plan.CoveredBenefits = nil
	err := svc.CreatePolicy(context.Background(), p)
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestService_CreatePolicy_MissingFields(t *testing.T) {
	svc := newTestService()
	tests := []func(p *InsurancePolicy){
		func(p *InsurancePolicy) { p.PolicyNumber = "" },
		func(p *InsurancePolicy) { p.HolderID = uuid.Nil },
		func(p *InsurancePolicy) { p.ProviderID = "" },
		func(p *InsurancePolicy) { p.ExpiresAt = time.Time{} },
		func(p *InsurancePolicy) { p.Status = "lapsed" },
	}
	for i, mutate := range tests {
		p := testPolicy("POL-X", uuid.New(), testNow.AddDate(1, 0, 0))
		mutate(p)
		if err := svc.CreatePolicy(context.Background(), p); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestService_CancelPolicy(t *testing.T) {
	svc := newTestService()
	p := testPolicy("POL-1", uuid.New(), testNow.AddDate(1, 0, 0))
	if err := svc.CreatePolicy(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	got, err := svc.CancelPolicy(context.Background(), "POL-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsCancelled() {
		t.Error("expected cancelled policy")
	}
	if _, err := svc.CancelPolicy(context.Background(), "POL-404"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_PolicyForPatient(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	holder := uuid.New()

	old := testPolicy("POL-OLD", holder, testNow.AddDate(0, -1, 0))
	active := testPolicy("POL-ACTIVE", holder, testNow.AddDate(1, 0, 0))
	cancelled := testPolicy("POL-CXL", holder, testNow.AddDate(2, 0, 0))
	cancelled.Status = PolicyCancelled
	for _, p := range []*InsurancePolicy{old, active, cancelled} {
		if err := svc.CreatePolicy(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.PolicyForPatient(ctx, holder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.PolicyNumber != "POL-ACTIVE" {
		t.Fatalf("expected POL-ACTIVE, got %+v", got)
	}

	none, err := svc.PolicyForPatient(ctx, uuid.New())
	if err != nil || none != nil {
		t.Errorf("expected no policy, got %v, %v", none, err)
	}
}

func TestService_PolicyForPatient_ExpiredOnly(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	holder := uuid.New()
	if err := svc.CreatePolicy(ctx, testPolicy("POL-OLD", holder, testNow.AddDate(0, -1, 0))); err != nil {
		t.Fatal(err)
	}
	got, err := svc.PolicyForPatient(ctx, holder)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.IsExpired(testNow) {
		t.Errorf("expected the expired policy to be returned, got %+v", got)
	}
}

func TestService_PolicyForPatient_ManyPolicies(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	holder := uuid.New()
	if err := svc.CreatePolicy(ctx, testPolicy("POL-ACTIVE", holder, testNow.AddDate(1, 0, 0))); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 60; i++ {
		p := testPolicy(fmt.Sprintf("POL-OLD-%02d", i), holder, testNow.AddDate(0, 0, -i-1))
		if err := svc.CreatePolicy(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.PolicyForPatient(ctx, holder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.PolicyNumber != "POL-ACTIVE" {
		t.Fatalf("expected POL-ACTIVE behind 60 newer expired policies, got %+v", got)
	}
}

func TestPolicy_Predicates(t *testing.T) {
	cov, err := testPlan().Build()
	if err != nil {
		t.Fatal(err)
	}
	p := NewPolicy("POL-1", uuid.New(), "Gold", "ins-1", cov, testNow.Add(time.Hour))

	if !p.IsActive(testNow) || p.IsExpired(testNow) || p.IsPending(testNow) || p.IsCancelled() {
		t.Error("expected an active policy")
	}
	if !p.IsExpired(testNow.Add(time.Hour)) {
		t.Error("policy expires at its expiry instant")
	}
	start := testNow.Add(30 * time.Minute)
	p.EffectiveFrom = &start
	if !p.IsPending(testNow) || p.IsActive(testNow) {
		t.Error("expected pending before the effective date")
	}
	p.EffectiveFrom = nil
	p.Status = PolicyCancelled
	if p.IsActive(testNow) {
		t.Error("cancelled policy must not be active")
	}

	got, err := p.Coverage()
	if err != nil || got != cov {
		t.Errorf("expected the bound coverage, got %v, %v", got, err)
	}
	if len(p.Plan.CoveredBenefits) != 2 {
		t.Errorf("expected the plan to be derived from the coverage, got %+v", p.Plan)
	}
}

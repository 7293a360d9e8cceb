package coverage

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Plan is the serializable form of a coverage, stored with each policy.
type Plan struct {
	Deductible      decimal.Decimal `json:"deductible"`
	CoinsuranceRate decimal.Decimal `json:"coinsurance_rate"`
	DeathBenefit    decimal.Decimal `json:"death_benefit"`
	CoveredBenefits []BenefitType   `json:"covered_benefits"`
	Exclusions      PlanExclusions  `json:"exclusions"`
	Limits          PlanLimits      `json:"limits"`
	Supplementary   *Plan           `json:"supplementary,omitempty"`
}

type PlanExclusions struct {
	DiagnosisPatterns []string       `json:"diagnosis_patterns,omitempty"`
	ProcedurePatterns []string       `json:"procedure_patterns,omitempty"`
	BenefitTypes      []BenefitType  `json:"benefit_types,omitempty"`
	AccidentTypes     []AccidentType `json:"accident_types,omitempty"`
}

type PlanLimits struct {
	Annual    *decimal.Decimal                  `json:"annual,omitempty"`
	Lifetime  *decimal.Decimal                  `json:"lifetime,omitempty"`
	Benefit   map[BenefitType]decimal.Decimal   `json:"benefit,omitempty"`
	WardClass map[WardClassType]decimal.Decimal `json:"ward_class,omitempty"`
	Accident  map[AccidentType]decimal.Decimal  `json:"accident,omitempty"`
}

// Build turns the plan into a Coverage. A plan with a supplementary plan
// builds a CompositeCoverage.
func (p Plan) Build() (Coverage, error) {
	base, err := p.buildBase()
	if err != nil {
		return nil, err
	}
	if p.Supplementary == nil {
		return base, nil
	}
	sup, err := p.Supplementary.Build()
	if err != nil {
		return nil, fmt.Errorf("supplementary plan: %w", err)
	}
	return NewComposite(base, sup)
}

func (p Plan) buildBase() (*BaseCoverage, error) {
	ex, err := NewExclusionBuilder().
		Diagnosis(p.Exclusions.DiagnosisPatterns...).
		Procedure(p.Exclusions.ProcedurePatterns...).
		Benefits(p.Exclusions.BenefitTypes...).
		Accidents(p.Exclusions.AccidentTypes...).
		Build()
	if err != nil {
		return nil, err
	}

	lb := NewLimitBuilder()
	if p.Limits.Annual != nil {
		lb.Annual(*p.Limits.Annual)
	}
	if p.Limits.Lifetime != nil {
		lb.Lifetime(*p.Limits.Lifetime)
	}
	for b, d := range p.Limits.Benefit {
		lb.Benefit(b, d)
	}
	for w, d := range p.Limits.WardClass {
		lb.WardClass(w, d)
	}
	for a, d := range p.Limits.Accident {
		lb.Accident(a, d)
	}
	limits, err := lb.Build()
	if err != nil {
		return nil, err
	}

	return NewBuilder().
		Deductible(p.Deductible).
		CoinsuranceRate(p.CoinsuranceRate).
		DeathBenefit(p.DeathBenefit).
		Cover(p.CoveredBenefits...).
		Limits(limits).
		Exclusions(ex).
		Build()
}

// PlanOf converts a coverage built by this package back into a Plan.
func PlanOf(c Coverage) (Plan, bool) {
	switch v := c.(type) {
	case *BaseCoverage:
		return planOfBase(v), true
	case *CompositeCoverage:
		p, ok := PlanOf(v.primary)
		if !ok {
			return Plan{}, false
		}
		sup, ok := PlanOf(v.secondary)
		if !ok {
			return Plan{}, false
		}
		// Attach to the end of the chain so nested composites round-trip.
		tail := &p
		for tail.Supplementary != nil {
			tail = tail.Supplementary
		}
		tail.Supplementary = &sup
		return p, true
	}
	return Plan{}, false
}

func planOfBase(c *BaseCoverage) Plan {
	p := Plan{
		Deductible:      c.deductible,
		CoinsuranceRate: c.rate,
		DeathBenefit:    c.deathBenefit,
		CoveredBenefits: c.covered.Sorted(),
		Exclusions: PlanExclusions{
			DiagnosisPatterns: c.exclusions.DiagnosisPatterns(),
			ProcedurePatterns: c.exclusions.ProcedurePatterns(),
			BenefitTypes:      c.exclusions.Benefits(),
			AccidentTypes:     c.exclusions.Accidents(),
		},
		Limits: PlanLimits{
			Benefit:   c.limits.BenefitLimits(),
			WardClass: c.limits.WardClassLimits(),
			Accident:  c.limits.AccidentLimits(),
		},
	}
	if d, ok := c.limits.Annual(); ok {
		p.Limits.Annual = &d
	}
	if d, ok := c.limits.Lifetime(); ok {
		p.Limits.Lifetime = &d
	}
	return p
}

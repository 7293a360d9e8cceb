package coverage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ehr/claims/pkg/money"
)

// Coverage decides which items an insurer pays for and how much.
type Coverage interface {
	IsItemCovered(item ClaimableItem, inpatient bool) bool
	CalculateCoinsurance(claimAmount decimal.Decimal) decimal.Decimal
	CalculateAccidentPayout(a AccidentType) decimal.Decimal
	Deductible() decimal.Decimal
	CoinsuranceRate() decimal.Decimal
	DeathBenefit() decimal.Decimal
	Limits() CoverageLimit
	CoveredBenefits() BenefitSet
}

// BaseCoverage is a single scheme's coverage rules.
type BaseCoverage struct {
	limits       CoverageLimit
	deductible   decimal.Decimal
	rate         decimal.Decimal
	deathBenefit decimal.Decimal
	covered      BenefitSet
	exclusions   ExclusionCriteria
}

func (c *BaseCoverage) IsItemCovered(item ClaimableItem, inpatient bool) bool {
	if !c.covered.Contains(item.ResolveBenefit(inpatient)) {
		return false
	}
	return !c.exclusions.Applies(item, inpatient)
}

// CalculateCoinsurance returns the patient's share of claimAmount.
func (c *BaseCoverage) CalculateCoinsurance(claimAmount decimal.Decimal) decimal.Decimal {
	return money.Round(claimAmount.Mul(c.rate))
}

// CalculateAccidentPayout returns the fixed payout for an accident type.
// Excluded types pay nothing; death-classified accidents pay the death
// benefit; other types pay their configured ceiling, or nothing without one.
func (c *BaseCoverage) CalculateAccidentPayout(a AccidentType) decimal.Decimal {
	if c.exclusions.ExcludesAccident(a) {
		return money.Zero
	}
	if a.IsDeath() {
		return c.deathBenefit
	}
	if limit, ok := c.limits.AccidentLimit(a); ok {
		return limit
	}
	return money.Zero
}

func (c *BaseCoverage) Deductible() decimal.Decimal      { return c.deductible }
func (c *BaseCoverage) CoinsuranceRate() decimal.Decimal { return c.rate }
func (c *BaseCoverage) DeathBenefit() decimal.Decimal    { return c.deathBenefit }
func (c *BaseCoverage) Limits() CoverageLimit            { return c.limits }
func (c *BaseCoverage) Exclusions() ExclusionCriteria    { return c.exclusions }

func (c *BaseCoverage) CoveredBenefits() BenefitSet {
	return NewBenefitSet(c.covered.Sorted()...)
}

// Builder assembles a BaseCoverage. Covered benefits, limits and exclusions
// are required; Build rejects a coverage missing any of them.
type Builder struct {
	limits       *CoverageLimit
	exclusions   *ExclusionCriteria
	deductible   decimal.Decimal
	rate         decimal.Decimal
	deathBenefit decimal.Decimal
	covered      []BenefitType
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) Limits(l CoverageLimit) *Builder            { b.limits = &l; return b }
func (b *Builder) Exclusions(e ExclusionCriteria) *Builder    { b.exclusions = &e; return b }
func (b *Builder) Deductible(d decimal.Decimal) *Builder      { b.deductible = d; return b }
func (b *Builder) CoinsuranceRate(r decimal.Decimal) *Builder { b.rate = r; return b }
func (b *Builder) DeathBenefit(d decimal.Decimal) *Builder    { b.deathBenefit = d; return b }

func (b *Builder) Cover(types ...BenefitType) *Builder {
	b.covered = append(b.covered, types...)
	return b
}

func (b *Builder) Build() (*BaseCoverage, error) {
	if len(b.covered) == 0 {
		return nil, fmt.Errorf("coverage requires at least one covered benefit")
	}
	for _, t := range b.covered {
		if !t.Valid() {
			return nil, fmt.Errorf("unknown benefit type %q", t)
		}
	}
	if b.limits == nil {
		return nil, fmt.Errorf("coverage limits are required")
	}
	if b.exclusions == nil {
		return nil, fmt.Errorf("coverage exclusions are required")
	}
	if b.deductible.IsNegative() {
		return nil, fmt.Errorf("deductible must not be negative")
	}
	if b.rate.IsNegative() || b.rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("coinsurance rate must be between 0 and 1, got %s", b.rate)
	}
	if b.deathBenefit.IsNegative() {
		return nil, fmt.Errorf("death benefit must not be negative")
	}
	return &BaseCoverage{
		limits:       *b.limits,
		exclusions:   *b.exclusions,
		deductible:   money.Round(b.deductible),
		rate:         b.rate,
		deathBenefit: money.Round(b.deathBenefit),
		covered:      NewBenefitSet(b.covered...),
	}, nil
}

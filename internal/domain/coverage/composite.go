package coverage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ehr/claims/pkg/money"
)

// CompositeCoverage stacks a supplementary scheme on top of a primary one.
//
// An item is covered when either scheme covers it. Limits take the tighter
// ceiling per dimension, the deductible is the smaller of the two, and the
// patient's coinsurance is what remains after both schemes pay their share
// (the product of the two rates).
type CompositeCoverage struct {
	primary   Coverage
	secondary Coverage
	limits    CoverageLimit
	rate      decimal.Decimal
}

func NewComposite(primary, secondary Coverage) (*CompositeCoverage, error) {
	if primary == nil || secondary == nil {
		return nil, fmt.Errorf("composite coverage requires two coverages")
	}
	return &CompositeCoverage{
		primary:   primary,
		secondary: secondary,
		limits:    MergeLimits(primary.Limits(), secondary.Limits()),
		rate:      primary.CoinsuranceRate().Mul(secondary.CoinsuranceRate()),
	}, nil
}

func (c *CompositeCoverage) IsItemCovered(item ClaimableItem, inpatient bool) bool {
	return c.primary.IsItemCovered(item, inpatient) || c.secondary.IsItemCovered(item, inpatient)
}

func (c *CompositeCoverage) CalculateCoinsurance(claimAmount decimal.Decimal) decimal.Decimal {
	return money.Round(claimAmount.Mul(c.rate))
}

// CalculateAccidentPayout pays the larger death benefit. Other accident types
// pay the tighter ceiling when both schemes pay out, otherwise whichever one
// does.
func (c *CompositeCoverage) CalculateAccidentPayout(a AccidentType) decimal.Decimal {
	p, s := c.primary.CalculateAccidentPayout(a), c.secondary.CalculateAccidentPayout(a)
	if a.IsDeath() || p.IsZero() || s.IsZero() {
		return money.Max(p, s)
	}
	return money.Min(p, s)
}

func (c *CompositeCoverage) Deductible() decimal.Decimal {
	return money.Min(c.primary.Deductible(), c.secondary.Deductible())
}

func (c *CompositeCoverage) CoinsuranceRate() decimal.Decimal { return c.rate }

func (c *CompositeCoverage) DeathBenefit() decimal.Decimal {
	return money.Max(c.primary.DeathBenefit(), c.secondary.DeathBenefit())
}

func (c *CompositeCoverage) Limits() CoverageLimit { return c.limits }

func (c *CompositeCoverage) CoveredBenefits() BenefitSet {
	out := c.primary.CoveredBenefits()
	for b := range c.secondary.CoveredBenefits() {
		out[b] = struct{}{}
	}
	return out
}

func (c *CompositeCoverage) Primary() Coverage   { return c.primary }
func (c *CompositeCoverage) Secondary() Coverage { return c.secondary }

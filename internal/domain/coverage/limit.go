package coverage

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// CoverageLimit holds the monetary ceilings of a coverage. A dimension with no
// entry is unlimited, never zero.
type CoverageLimit struct {
	annual   decimal.NullDecimal
	lifetime decimal.NullDecimal
	benefit  map[BenefitType]decimal.Decimal
	ward     map[WardClassType]decimal.Decimal
	accident map[AccidentType]decimal.Decimal
}

// NoLimits returns a limit with every dimension unlimited.
func NoLimits() CoverageLimit {
	return CoverageLimit{
		benefit:  map[BenefitType]decimal.Decimal{},
		ward:     map[WardClassType]decimal.Decimal{},
		accident: map[AccidentType]decimal.Decimal{},
	}
}

func (l CoverageLimit) Annual() (decimal.Decimal, bool) { return l.annual.Decimal, l.annual.Valid }
func (l CoverageLimit) Lifetime() (decimal.Decimal, bool) {
	return l.lifetime.Decimal, l.lifetime.Valid
}

func (l CoverageLimit) BenefitLimit(b BenefitType) (decimal.Decimal, bool) {
	d, ok := l.benefit[b]
	return d, ok
}

func (l CoverageLimit) WardClassLimit(w WardClassType) (decimal.Decimal, bool) {
	d, ok := l.ward[w]
	return d, ok
}

func (l CoverageLimit) AccidentLimit(a AccidentType) (decimal.Decimal, bool) {
	d, ok := l.accident[a]
	return d, ok
}

// BenefitLimits returns a copy of the per-benefit ceilings.
func (l CoverageLimit) BenefitLimits() map[BenefitType]decimal.Decimal {
	out := make(map[BenefitType]decimal.Decimal, len(l.benefit))
	for k, v := range l.benefit {
		out[k] = v
	}
	return out
}

func (l CoverageLimit) WardClassLimits() map[WardClassType]decimal.Decimal {
	out := make(map[WardClassType]decimal.Decimal, len(l.ward))
	for k, v := range l.ward {
		out[k] = v
	}
	return out
}

func (l CoverageLimit) AccidentLimits() map[AccidentType]decimal.Decimal {
	out := make(map[AccidentType]decimal.Decimal, len(l.accident))
	for k, v := range l.accident {
		out[k] = v
	}
	return out
}

// MergeLimits combines two limits taking the tighter ceiling in every
// dimension. A ceiling defined on only one side is kept as is.
func MergeLimits(a, b CoverageLimit) CoverageLimit {
	out := NoLimits()
	out.annual = minNull(a.annual, b.annual)
	out.lifetime = minNull(a.lifetime, b.lifetime)
	out.benefit = mergeMin(a.benefit, b.benefit)
	out.ward = mergeMin(a.ward, b.ward)
	out.accident = mergeMin(a.accident, b.accident)
	return out
}

func minNull(a, b decimal.NullDecimal) decimal.NullDecimal {
	switch {
	case !a.Valid:
		return b
	case !b.Valid:
		return a
	case a.Decimal.LessThan(b.Decimal):
		return a
	default:
		return b
	}
}

func mergeMin[K comparable](a, b map[K]decimal.Decimal) map[K]decimal.Decimal {
	out := make(map[K]decimal.Decimal, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if cur, ok := out[k]; !ok || v.LessThan(cur) {
			out[k] = v
		}
	}
	return out
}

// LimitBuilder accumulates ceilings. The first invalid amount is reported by Build.
type LimitBuilder struct {
	l   CoverageLimit
	err error
}

func NewLimitBuilder() *LimitBuilder { return &LimitBuilder{l: NoLimits()} }

func (b *LimitBuilder) check(name string, d decimal.Decimal) bool {
	if d.IsNegative() && b.err == nil {
		b.err = fmt.Errorf("%s limit must not be negative", name)
	}
	return b.err == nil
}

func (b *LimitBuilder) Annual(d decimal.Decimal) *LimitBuilder {
	if b.check("annual", d) {
		b.l.annual = decimal.NewNullDecimal(d)
	}
	return b
}

func (b *LimitBuilder) Lifetime(d decimal.Decimal) *LimitBuilder {
	if b.check("lifetime", d) {
		b.l.lifetime = decimal.NewNullDecimal(d)
	}
	return b
}

func (b *LimitBuilder) Benefit(t BenefitType, d decimal.Decimal) *LimitBuilder {
	if !t.Valid() && b.err == nil {
		b.err = fmt.Errorf("unknown benefit type %q", t)
	}
	if b.check(string(t), d) {
		b.l.benefit[t] = d
	}
	return b
}

func (b *LimitBuilder) WardClass(w WardClassType, d decimal.Decimal) *LimitBuilder {
	if !w.Valid() && b.err == nil {
		b.err = fmt.Errorf("unknown ward class %q", w)
	}
	if b.check(string(w), d) {
		b.l.ward[w] = d
	}
	return b
}

func (b *LimitBuilder) Accident(a AccidentType, d decimal.Decimal) *LimitBuilder {
	if !a.Valid() && b.err == nil {
		b.err = fmt.Errorf("unknown accident type %q", a)
	}
	if b.check(string(a), d) {
		b.l.accident[a] = d
	}
	return b
}

func (b *LimitBuilder) Build() (CoverageLimit, error) {
	if b.err != nil {
		return CoverageLimit{}, b.err
	}
	out := NoLimits()
	out.annual, out.lifetime = b.l.annual, b.l.lifetime
	out.benefit = b.l.BenefitLimits()
	out.ward = b.l.WardClassLimits()
	out.accident = b.l.AccidentLimits()
	return out, nil
}

func sortAccidents(a []AccidentType) {
	sort.Slice(a, func(i, j int) bool { return a[i] < a[j] })
}

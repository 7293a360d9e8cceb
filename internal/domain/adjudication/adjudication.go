// Package adjudication decides how much of a bill an insurance policy pays.
//
// Adjudicate is a pure computation over the bill's claimable items and the
// policy's coverage. It never performs I/O; the caller supplies prior usage of
// the policy and persists the resulting claim.
package adjudication

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/claims/internal/domain/claim"
	"github.com/ehr/claims/internal/domain/coverage"
	"github.com/ehr/claims/pkg/money"
)

// Denial reasons.
const (
	ReasonNoActivePolicy = "No active policy"
	ReasonPolicyExpired  = "Policy expired"
	ReasonNoCoveredItems = "No covered items"
)

// Usage is what a policy has already paid out.
type Usage struct {
	Annual   decimal.Decimal
	Lifetime decimal.Decimal
}

// UsageTracker reports the amounts already approved under a policy, for the
// calendar year containing at and over the policy's lifetime.
type UsageTracker interface {
	Consumed(ctx context.Context, policyNumber string, at time.Time) (annual, lifetime decimal.Decimal, err error)
}

// NoUsage reports nothing consumed.
type NoUsage struct{}

func (NoUsage) Consumed(context.Context, string, time.Time) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, nil
}

type Request struct {
	BillID    uuid.UUID
	PatientID uuid.UUID
	Items     []coverage.ClaimableItem
	Policy    *coverage.InsurancePolicy
	Inpatient bool
	Usage     Usage
}

// LineResult is the outcome for one claimable item.
type LineResult struct {
	Description string               `json:"description"`
	Benefit     coverage.BenefitType `json:"benefit"`
	Charge      decimal.Decimal      `json:"charge"`
	Covered     bool                 `json:"covered"`
	Payable     decimal.Decimal      `json:"payable"`
	// CappedBy names the ceiling that reduced the line, e.g. "benefit:SURGERY".
	CappedBy string `json:"capped_by,omitempty"`
}

// Result is the outcome of one adjudication. A denial is a normal result
// with Approved false and a DenialReason, never an error.
type Result struct {
	Approved     bool                  `json:"approved"`
	DenialReason string                `json:"denial_reason,omitempty"`
	Claim        *claim.InsuranceClaim `json:"claim,omitempty"`
	Payable      decimal.Decimal       `json:"payable"`
	Gross        decimal.Decimal       `json:"gross"`
	Deductible   decimal.Decimal       `json:"deductible"`
	// PatientCoinsurance is the patient's share of the post-deductible amount.
	PatientCoinsurance decimal.Decimal `json:"patient_coinsurance"`
	Lines              []LineResult    `json:"lines,omitempty"`
	EvaluatedAt        time.Time       `json:"evaluated_at"`
}

func deny(reason string, at time.Time) *Result {
	return &Result{DenialReason: reason, Payable: money.Zero, EvaluatedAt: at}
}

type Adjudicator struct {
	ids *claim.IDGenerator
	now func() time.Time
}

// New returns an adjudicator that numbers claims with ids and evaluates
// policies at now. A nil ids uses crypto/rand with the same clock.
func New(ids *claim.IDGenerator, now func() time.Time) *Adjudicator {
	if now == nil {
		now = time.Now
	}
	if ids == nil {
		ids = claim.NewIDGenerator(nil, now)
	}
	return &Adjudicator{ids: ids, now: now}
}

// Adjudicate evaluates the request's items against its policy. Errors are
// reserved for faults such as an unbuildable coverage plan or an exhausted
// id source.
func (a *Adjudicator) Adjudicate(req Request) (*Result, error) {
	at := a.now()
	p := req.Policy
	switch {
	case p == nil:
		return deny(ReasonNoActivePolicy, at), nil
	case p.IsExpired(at):
		return deny(ReasonPolicyExpired, at), nil
	case !p.IsActive(at):
		return deny(ReasonNoActivePolicy, at), nil
	}
	cov, err := p.Coverage()
	if err != nil {
		return nil, err
	}

	lines := make([]LineResult, len(req.Items))
	gross := money.Zero
	covered := 0
	for i, item := range req.Items {
		lines[i] = LineResult{
			Description: item.BenefitDescription(),
			Benefit:     item.ResolveBenefit(req.Inpatient),
			Charge:      money.Round(item.Charge()),
			Payable:     money.Zero,
		}
		if cov.IsItemCovered(item, req.Inpatient) {
			lines[i].Covered = true
			gross = gross.Add(lines[i].Charge)
			covered++
		}
	}
	if covered == 0 {
		res := deny(ReasonNoCoveredItems, at)
		res.Lines = lines
		return res, nil
	}

	deductible := money.Min(cov.Deductible(), gross)
	remaining := money.NonNegative(gross.Sub(cov.Deductible()))
	insurerShare := money.Round(remaining.Mul(decimal.NewFromInt(1).Sub(cov.CoinsuranceRate())))

	allocate(lines, insurerShare, gross)
	capLines(lines, req, cov)
	capTotal(lines, cov.Limits(), req.Usage)

	payable := money.Zero
	for _, l := range lines {
		payable = payable.Add(l.Payable)
	}

	id, err := a.ids.Next()
	if err != nil {
		return nil, err
	}
	c := claim.New(claim.Draft{
		ID:            id,
		BillID:        req.BillID,
		PatientID:     req.PatientID,
		ProviderID:    p.ProviderID,
		PolicyNumber:  p.PolicyNumber,
		ClaimedAmount: gross,
		PayableAmount: payable,
	}, a.now)

	return &Result{
		Approved:           true,
		Claim:              c,
		Payable:            payable,
		Gross:              gross,
		Deductible:         deductible,
		PatientCoinsurance: remaining.Sub(insurerShare),
		Lines:              lines,
		EvaluatedAt:        at,
	}, nil
}

// allocate spreads payable over the covered lines in proportion to their
// charge. The last covered line absorbs the rounding remainder.
func allocate(lines []LineResult, payable, gross decimal.Decimal) {
	last := -1
	for i := range lines {
		if lines[i].Covered {
			last = i
		}
	}
	left := payable
	for i := range lines {
		if !lines[i].Covered {
			continue
		}
		share := left
		if i != last && gross.IsPositive() {
			share = money.Min(left, money.Round(payable.Mul(lines[i].Charge).Div(gross)))
		}
		lines[i].Payable = share
		left = left.Sub(share)
	}
}

// capLines applies the per-benefit, per-ward-class and per-accident-type
// ceilings. Lines consume each ceiling in bill order.
func capLines(lines []LineResult, req Request, cov coverage.Coverage) {
	limits := cov.Limits()
	headroom := map[string]decimal.Decimal{}

	take := func(key string, ceiling decimal.Decimal, i int) {
		room, seen := headroom[key]
		if !seen {
			room = ceiling
		}
		if lines[i].Payable.GreaterThan(room) {
			lines[i].Payable = money.NonNegative(room)
			lines[i].CappedBy = key
		}
		headroom[key] = room
	}
	consume := func(key string, i int) {
		if room, ok := headroom[key]; ok {
			headroom[key] = money.NonNegative(room.Sub(lines[i].Payable))
		}
	}

	for i, item := range req.Items {
		if !lines[i].Covered {
			continue
		}
		var keys []string
		if ceiling, ok := limits.BenefitLimit(lines[i].Benefit); ok {
			key := "benefit:" + string(lines[i].Benefit)
			take(key, ceiling, i)
			keys = append(keys, key)
		}
		if w, ok := item.(coverage.WardClassed); ok {
			if ward, ok := w.WardClass(); ok {
				if ceiling, ok := limits.WardClassLimit(ward); ok {
					key := "ward_class:" + string(ward)
					take(key, ceiling, i)
					keys = append(keys, key)
				}
			}
		}
		if acc, ok := item.AccidentType(); ok {
			if ceiling, ok := accidentCeiling(cov, acc); ok {
				key := "accident:" + string(acc)
				take(key, ceiling, i)
				keys = append(keys, key)
			}
		}
		for _, key := range keys {
			consume(key, i)
		}
	}
}

// accidentCeiling is the most the coverage pays for one accident type, when
// it sets a figure for it at all. Death pays the death benefit; every other
// type is held to the coverage's accident limit, which for a composite is
// already the tighter of the two schemes.
func accidentCeiling(cov coverage.Coverage, a coverage.AccidentType) (decimal.Decimal, bool) {
	if a.IsDeath() && cov.DeathBenefit().IsPositive() {
		return cov.CalculateAccidentPayout(a), true
	}
	return cov.Limits().AccidentLimit(a)
}

// capTotal holds the total to the remaining annual and lifetime headroom,
// trimming from the last line backwards.
func capTotal(lines []LineResult, limits coverage.CoverageLimit, usage Usage) {
	total := money.Zero
	for _, l := range lines {
		total = total.Add(l.Payable)
	}
	allowed, reason := total, ""
	if annual, ok := limits.Annual(); ok {
		if room := money.NonNegative(annual.Sub(usage.Annual)); room.LessThan(allowed) {
			allowed, reason = room, "annual"
		}
	}
	if lifetime, ok := limits.Lifetime(); ok {
		if room := money.NonNegative(lifetime.Sub(usage.Lifetime)); room.LessThan(allowed) {
			allowed, reason = room, "lifetime"
		}
	}
	excess := total.Sub(allowed)
	for i := len(lines) - 1; i >= 0 && excess.IsPositive(); i-- {
		cut := money.Min(excess, lines[i].Payable)
		if !cut.IsPositive() {
			continue
		}
		lines[i].Payable = lines[i].Payable.Sub(cut)
		lines[i].CappedBy = reason
		excess = excess.Sub(cut)
	}
}

// Summary renders a one-line description of the result for logs and notes.
func (r *Result) Summary() string {
	if !r.Approved {
		return "denied: " + r.DenialReason
	}
	return fmt.Sprintf("approved: payable %s of %s (deductible %s, coinsurance %s)",
		money.Format(r.Payable), money.Format(r.Gross), money.Format(r.Deductible), money.Format(r.PatientCoinsurance))
}

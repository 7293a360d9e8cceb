package billing

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/claims/internal/domain/coverage"
	"github.com/ehr/claims/internal/platform/apperr"
	"github.com/ehr/claims/pkg/money"
)

// PaymentMethod is how a payment was received.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodInsurance    PaymentMethod = "INSURANCE"
	MethodCheque       PaymentMethod = "CHEQUE"
	MethodEWallet      PaymentMethod = "E_WALLET"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodBankTransfer, MethodInsurance, MethodCheque, MethodEWallet:
		return true
	}
	return false
}

// ParsePaymentMethod normalizes a method code such as "bank_transfer".
func ParsePaymentMethod(v string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToUpper(strings.TrimSpace(v)))
	if !m.Valid() {
		return "", apperr.InvalidArgument("unknown payment method %q", v)
	}
	return m, nil
}

// LineItem is one charge on a bill.
type LineItem struct {
	ID         uuid.UUID       `json:"id"`
	Item       coverage.Item   `json:"item"`
	Quantity   int             `json:"quantity"`
	UnitCharge decimal.Decimal `json:"unit_charge"`
	Total      decimal.Decimal `json:"total"`
	Category   string          `json:"category"`
	AddedAt    time.Time       `json:"added_at"`
}

// Claimable returns the line as a claimable item charged at its total.
func (l LineItem) Claimable() coverage.Item {
	it := l.Item
	it.Amount = l.Total
	return it
}

// Payment is one entry of the payment ledger. Refunds are recorded with a
// negative amount.
type Payment struct {
	ID         uuid.UUID       `json:"id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	Reference  string          `json:"reference,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Bill aggregates a patient's charges and tracks how they are settled. All
// changes go through the guarded operations below, which validate before
// mutating; a failed call leaves the bill untouched. Settled plus Outstanding
// always equals GrandTotal.
type Bill struct {
	ID             uuid.UUID                  `json:"id"`
	PatientID      uuid.UUID                  `json:"patient_id"`
	PolicyNumber   string                     `json:"policy_number,omitempty"`
	Inpatient      bool                       `json:"inpatient"`
	Status         Status                     `json:"status"`
	Lines          []LineItem                 `json:"lines"`
	CategoryTotals map[string]decimal.Decimal `json:"category_totals"`
	GrandTotal     decimal.Decimal            `json:"grand_total"`
	Settled        decimal.Decimal            `json:"settled"`
	Outstanding    decimal.Decimal            `json:"outstanding"`
	RefundPending  decimal.Decimal            `json:"refund_pending"`
	Refunded       decimal.Decimal            `json:"refunded"`
	Payments       []Payment                  `json:"payments"`
	ClaimID        string                     `json:"claim_id,omitempty"`
	DenialReason   string                     `json:"denial_reason,omitempty"`
	DisputeReason  string                     `json:"dispute_reason,omitempty"`
	DueDate        *time.Time                 `json:"due_date,omitempty"`
	Version        int                        `json:"version"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`

	clock func() time.Time
}

// New opens an empty bill in DRAFT.
func New(patientID uuid.UUID, inpatient bool, now func() time.Time) *Bill {
	if now == nil {
		now = time.Now
	}
	at := now()
	return &Bill{
		ID:             uuid.New(),
		PatientID:      patientID,
		Inpatient:      inpatient,
		Status:         StatusDraft,
		CategoryTotals: map[string]decimal.Decimal{},
		GrandTotal:     money.Zero,
		Settled:        money.Zero,
		Outstanding:    money.Zero,
		RefundPending:  money.Zero,
		Refunded:       money.Zero,
		CreatedAt:      at,
		UpdatedAt:      at,
		clock:          now,
	}
}

// SetClock overrides the time source used to stamp changes.
func (b *Bill) SetClock(now func() time.Time) { b.clock = now }

func (b *Bill) now() time.Time {
	if b.clock == nil {
		return time.Now()
	}
	return b.clock()
}

// eventTarget is the status ev leads to from any source, used in errors.
func eventTarget(ev Event) string {
	for _, next := range transitions {
		if to, ok := next[ev]; ok {
			return string(to)
		}
	}
	return string(ev)
}

func (b *Bill) check(ev Event) (Status, error) {
	if to, ok := b.Status.Next(ev); ok {
		return to, nil
	}
	return "", &apperr.TransitionError{
		Entity:   "bill",
		From:     string(b.Status),
		To:       eventTarget(ev),
		Terminal: b.Status.IsFinalized(),
	}
}

// Can reports whether ev is accepted in the bill's current status.
func (b *Bill) Can(ev Event) bool {
	_, ok := b.Status.Next(ev)
	return ok
}

func (b *Bill) apply(to Status) {
	b.Status = to
	b.UpdatedAt = b.now()
}

// AddItem appends quantity units of item. Items can only be added while the
// bill is in preparation.
func (b *Bill) AddItem(item coverage.ClaimableItem, quantity int) (LineItem, error) {
	if !b.Status.IsInPreparation() {
		return LineItem{}, apperr.InvalidState("items cannot be added to a bill in status %s", b.Status)
	}
	if quantity <= 0 {
		return LineItem{}, apperr.InvalidArgument("quantity must be positive")
	}
	snap := coverage.Snapshot(item)
	if snap.Amount.IsNegative() {
		return LineItem{}, apperr.InvalidArgument("item charge must not be negative")
	}
	unit := money.Round(snap.Amount)
	line := LineItem{
		ID:         uuid.New(),
		Item:       snap,
		Quantity:   quantity,
		UnitCharge: unit,
		Total:      money.Round(unit.Mul(decimal.NewFromInt(int64(quantity)))),
		Category:   coverage.CategoryOf(snap),
		AddedAt:    b.now(),
	}
	b.Lines = append(b.Lines, line)
	b.Recompute()
	b.UpdatedAt = line.AddedAt
	return line, nil
}

// Recompute derives category totals, the grand total and the outstanding
// balance from the line items and the settled amount. It is idempotent.
func (b *Bill) Recompute() {
	totals := map[string]decimal.Decimal{}
	grand := money.Zero
	for _, l := range b.Lines {
		totals[l.Category] = totals[l.Category].Add(l.Total)
		grand = grand.Add(l.Total)
	}
	b.CategoryTotals = totals
	b.GrandTotal = money.Round(grand)
	b.Outstanding = money.Round(b.GrandTotal.Sub(b.Settled))
}

// Categories returns the category names present on the bill, sorted.
func (b *Bill) Categories() []string {
	out := make([]string, 0, len(b.CategoryTotals))
	for c := range b.CategoryTotals {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ClaimableItems returns every line as a claimable item.
func (b *Bill) ClaimableItems() []coverage.ClaimableItem {
	out := make([]coverage.ClaimableItem, len(b.Lines))
	for i, l := range b.Lines {
		out[i] = l.Claimable()
	}
	return out
}

// Hold parks a draft bill for review before submission.
func (b *Bill) Hold() error {
	to, err := b.check(EventHold)
	if err != nil {
		return err
	}
	b.apply(to)
	return nil
}

// Submit finalizes the bill and issues it to the patient.
func (b *Bill) Submit() error {
	to, err := b.check(EventSubmit)
	if err != nil {
		return err
	}
	b.apply(to)
	return nil
}

// ApplyCoverage records the outcome of an insurance evaluation. An approval
// links the claim and moves the bill to INSURANCE_PENDING; a denial records
// the reason and leaves the status unchanged.
func (b *Bill) ApplyCoverage(approved bool, claimID, denialReason string) error {
	to, err := b.check(EventRequestInsurance)
	if err != nil {
		return err
	}
	if !approved {
		b.DenialReason = denialReason
		b.UpdatedAt = b.now()
		return nil
	}
	if claimID == "" {
		return apperr.InvalidArgument("claim id is required for an approved evaluation")
	}
	b.ClaimID = claimID
	b.DenialReason = ""
	b.apply(to)
	return nil
}

// ApproveInsurance records the insurer's approval of the linked claim.
func (b *Bill) ApproveInsurance() error {
	to, err := b.check(EventApproveInsurance)
	if err != nil {
		return err
	}
	b.DenialReason = ""
	b.apply(to)
	return nil
}

// RejectInsurance records the insurer's rejection of the linked claim.
func (b *Bill) RejectInsurance(reason string) error {
	to, err := b.check(EventRejectInsurance)
	if err != nil {
		return err
	}
	b.DenialReason = reason
	b.apply(to)
	return nil
}

// RecordFullPayment settles the whole outstanding balance.
func (b *Bill) RecordFullPayment(method PaymentMethod, reference string) (Payment, error) {
	to, err := b.check(EventSettle)
	if err != nil {
		return Payment{}, err
	}
	if !method.Valid() {
		return Payment{}, apperr.InvalidArgument("unknown payment method %q", method)
	}
	p := b.settle(b.Outstanding, method, reference)
	b.apply(to)
	return p, nil
}

// RecordPartialPayment records a payment of amount. A payment equal to the
// outstanding balance settles the bill; more than the balance is rejected.
func (b *Bill) RecordPartialPayment(amount decimal.Decimal, method PaymentMethod, reference string) (Payment, error) {
	if !b.Status.AcceptsPayment() {
		_, err := b.check(EventPartialPayment)
		return Payment{}, err
	}
	if !method.Valid() {
		return Payment{}, apperr.InvalidArgument("unknown payment method %q", method)
	}
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return Payment{}, apperr.InvalidArgument("payment amount must be positive")
	}
	if amount.GreaterThan(b.Outstanding) {
		return Payment{}, apperr.InvalidArgument("payment %s exceeds outstanding balance %s",
			money.Format(amount), money.Format(b.Outstanding))
	}
	ev := EventPartialPayment
	if amount.Equal(b.Outstanding) {
		ev = EventSettle
	}
	to, _ := b.Status.Next(ev)
	p := b.settle(amount, method, reference)
	b.apply(to)
	return p, nil
}

func (b *Bill) settle(amount decimal.Decimal, method PaymentMethod, reference string) Payment {
	p := Payment{
		ID:         uuid.New(),
		Amount:     amount,
		Method:     method,
		Reference:  reference,
		ReceivedAt: b.now(),
	}
	if amount.IsPositive() {
		b.Payments = append(b.Payments, p)
	}
	b.Settled = money.Round(b.Settled.Add(amount))
	b.Outstanding = money.Round(b.GrandTotal.Sub(b.Settled))
	return p
}

// MarkOverdue flags an unpaid bill whose due date has passed at.
func (b *Bill) MarkOverdue(at time.Time) error {
	to, err := b.check(EventMarkOverdue)
	if err != nil {
		return err
	}
	if b.DueDate == nil || !at.After(*b.DueDate) {
		return apperr.InvalidState("bill is not past its due date")
	}
	if !b.Outstanding.IsPositive() {
		return apperr.InvalidState("bill has no outstanding balance")
	}
	b.apply(to)
	return nil
}

// IsPastDue reports whether the bill could be marked overdue at.
func (b *Bill) IsPastDue(at time.Time) bool {
	return b.Can(EventMarkOverdue) && b.DueDate != nil && at.After(*b.DueDate) && b.Outstanding.IsPositive()
}

// Dispute records that the patient contests the bill.
func (b *Bill) Dispute(reason string) error {
	to, err := b.check(EventDispute)
	if err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return apperr.InvalidArgument("dispute reason is required")
	}
	b.DisputeReason = reason
	b.apply(to)
	return nil
}

// ResolveDispute closes a dispute. In the patient's favour the settled amount
// is refunded, or the bill cancelled when nothing was paid. Against the
// patient the bill returns to SUBMITTED.
func (b *Bill) ResolveDispute(inFavourOfPatient bool) error {
	if b.Status != StatusInDispute {
		_, err := b.check(EventResolveAgainst)
		return err
	}
	switch {
	case !inFavourOfPatient:
		to, _ := b.Status.Next(EventResolveAgainst)
		b.apply(to)
		return nil
	case b.Settled.IsPositive():
		return b.InitiateRefund()
	default:
		return b.Cancel()
	}
}

// InitiateRefund starts a refund of everything settled.
func (b *Bill) InitiateRefund() error {
	return b.InitiatePartialRefund(b.Settled)
}

// InitiatePartialRefund starts a refund of amount, which must not exceed the
// settled amount.
func (b *Bill) InitiatePartialRefund(amount decimal.Decimal) error {
	to, err := b.check(EventInitiateRefund)
	if err != nil {
		return err
	}
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return apperr.InvalidArgument("refund amount must be positive")
	}
	if amount.GreaterThan(b.Settled) {
		return apperr.InvalidArgument("refund %s exceeds settled amount %s",
			money.Format(amount), money.Format(b.Settled))
	}
	b.RefundPending = amount
	b.apply(to)
	return nil
}

// CompleteRefund pays out the pending refund, reducing the settled amount.
func (b *Bill) CompleteRefund(method PaymentMethod, reference string) (Payment, error) {
	to, err := b.check(EventCompleteRefund)
	if err != nil {
		return Payment{}, err
	}
	if !method.Valid() {
		return Payment{}, apperr.InvalidArgument("unknown payment method %q", method)
	}
	amount := b.RefundPending
	p := Payment{
		ID:         uuid.New(),
		Amount:     amount.Neg(),
		Method:     method,
		Reference:  reference,
		ReceivedAt: b.now(),
	}
	b.Payments = append(b.Payments, p)
	b.Settled = money.Round(b.Settled.Sub(amount))
	b.Outstanding = money.Round(b.GrandTotal.Sub(b.Settled))
	b.Refunded = money.Round(b.Refunded.Add(amount))
	b.RefundPending = money.Zero
	b.apply(to)
	return p, nil
}

// Cancel voids a bill that has not been finalized.
func (b *Bill) Cancel() error {
	to, err := b.check(EventCancel)
	if err != nil {
		return err
	}
	b.apply(to)
	return nil
}

// Transition applies ev for callers that drive the bill by event name. Events
// that carry data are routed through their dedicated operations.
func (b *Bill) Transition(ev Event) error {
	switch ev {
	case EventHold:
		return b.Hold()
	case EventSubmit:
		return b.Submit()
	case EventApproveInsurance:
		return b.ApproveInsurance()
	case EventInitiateRefund:
		return b.InitiateRefund()
	case EventCancel:
		return b.Cancel()
	case EventResolveAgainst:
		return b.ResolveDispute(false)
	}
	if _, err := b.check(ev); err != nil {
		return err
	}
	return apperr.InvalidArgument("event %s requires additional data", ev)
}

// Balanced reports whether settled plus outstanding equals the grand total.
func (b *Bill) Balanced() bool {
	return b.Settled.Add(b.Outstanding).Equal(b.GrandTotal)
}

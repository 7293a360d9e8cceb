package claim

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/claims/internal/platform/apperr"
	"github.com/ehr/claims/pkg/money"
)

// InsuranceClaim is a request to an insurer to pay part of a bill. It only
// changes through the guarded operations below, each of which validates
// before mutating so that a failed call leaves the claim untouched.
type InsuranceClaim struct {
	ID               string               `json:"id"`
	BillID           uuid.UUID            `json:"bill_id"`
	PatientID        uuid.UUID            `json:"patient_id"`
	ProviderID       string               `json:"provider_id"`
	PolicyNumber     string               `json:"policy_number"`
	Status           Status               `json:"status"`
	SubmittedAt      *time.Time           `json:"submitted_at,omitempty"`
	ClaimedAmount    decimal.Decimal      `json:"claimed_amount"`
	PayableAmount    decimal.NullDecimal  `json:"payable_amount"`
	ApprovedAmount   decimal.NullDecimal  `json:"approved_amount"`
	ReviewerComments string               `json:"reviewer_comments,omitempty"`
	Comments         string               `json:"comments,omitempty"`
	Documents        map[time.Time]string `json:"documents,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`

	clock func() time.Time
}

// Draft describes a claim about to be created.
type Draft struct {
	ID            string
	BillID        uuid.UUID
	PatientID     uuid.UUID
	ProviderID    string
	PolicyNumber  string
	ClaimedAmount decimal.Decimal
	PayableAmount decimal.Decimal
}

// New creates a claim in DRAFT.
func New(d Draft, now func() time.Time) *InsuranceClaim {
	if now == nil {
		now = time.Now
	}
	at := now()
	return &InsuranceClaim{
		ID:            d.ID,
		BillID:        d.BillID,
		PatientID:     d.PatientID,
		ProviderID:    d.ProviderID,
		PolicyNumber:  d.PolicyNumber,
		Status:        StatusDraft,
		ClaimedAmount: money.Round(d.ClaimedAmount),
		PayableAmount: decimal.NewNullDecimal(money.Round(d.PayableAmount)),
		Documents:     map[time.Time]string{},
		CreatedAt:     at,
		UpdatedAt:     at,
		clock:         now,
	}
}

// SetClock overrides the time source used to stamp changes.
func (c *InsuranceClaim) SetClock(now func() time.Time) { c.clock = now }

func (c *InsuranceClaim) now() time.Time {
	if c.clock == nil {
		return time.Now()
	}
	return c.clock()
}

func (c *InsuranceClaim) check(to Status) error {
	if c.Status.CanTransitionTo(to) {
		return nil
	}
	return &apperr.TransitionError{
		Entity:   "claim",
		From:     string(c.Status),
		To:       string(to),
		Terminal: c.Status.IsTerminal(),
	}
}

func (c *InsuranceClaim) apply(to Status) {
	c.Status = to
	c.UpdatedAt = c.now()
}

// UpdateStatus performs a guarded transition. Approval targets carry amounts
// and are routed through Approve; partial approval needs an explicit amount.
func (c *InsuranceClaim) UpdateStatus(to Status) error {
	switch to {
	case StatusApproved:
		return c.Approve()
	case StatusPartiallyApproved:
		if err := c.check(to); err != nil {
			return err
		}
		return apperr.InvalidArgument("partial approval requires an approved amount")
	case StatusSubmitted:
		return c.Submit()
	}
	if err := c.check(to); err != nil {
		return err
	}
	c.apply(to)
	return nil
}

// Submit sends a draft claim to the insurer.
func (c *InsuranceClaim) Submit() error {
	if err := c.check(StatusSubmitted); err != nil {
		return err
	}
	at := c.now()
	c.SubmittedAt = &at
	c.apply(StatusSubmitted)
	return nil
}

// StartReview moves a submitted, appealed or answered claim into review.
func (c *InsuranceClaim) StartReview() error {
	if err := c.check(StatusInReview); err != nil {
		return err
	}
	c.apply(StatusInReview)
	return nil
}

// Approve fully approves a claim under review. The approved amount is the
// adjudicated payable amount when one was computed, otherwise the claimed amount.
func (c *InsuranceClaim) Approve() error {
	if err := c.check(StatusApproved); err != nil {
		return err
	}
	amount := c.ClaimedAmount
	if c.PayableAmount.Valid {
		amount = c.PayableAmount.Decimal
	}
	c.ApprovedAmount = decimal.NewNullDecimal(amount)
	c.apply(StatusApproved)
	return nil
}

// ProcessPartialApproval approves less than the claimed amount.
func (c *InsuranceClaim) ProcessPartialApproval(amount decimal.Decimal, reason string) error {
	if err := c.check(StatusPartiallyApproved); err != nil {
		return err
	}
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return apperr.InvalidArgument("partial approval amount must be positive, got %s", money.Format(amount))
	}
	if !amount.LessThan(c.ClaimedAmount) {
		return apperr.InvalidArgument("partial approval amount %s must be less than the claimed amount %s",
			money.Format(amount), money.Format(c.ClaimedAmount))
	}
	c.ApprovedAmount = decimal.NewNullDecimal(amount)
	c.ReviewerComments = strings.TrimSpace(reason)
	c.apply(StatusPartiallyApproved)
	return nil
}

// Deny rejects a claim under review.
func (c *InsuranceClaim) Deny(reason string) error {
	if err := c.check(StatusDenied); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return apperr.InvalidArgument("a denial reason is required")
	}
	c.ReviewerComments = strings.TrimSpace(reason)
	c.apply(StatusDenied)
	return nil
}

// Appeal contests a denial.
func (c *InsuranceClaim) Appeal(reason string) error {
	if err := c.check(StatusAppealed); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return apperr.InvalidArgument("an appeal reason is required")
	}
	c.addComment(reason)
	c.apply(StatusAppealed)
	return nil
}

// RequestInformation pauses review until the provider supplies more detail.
func (c *InsuranceClaim) RequestInformation(note string) error {
	if err := c.check(StatusPendingInformation); err != nil {
		return err
	}
	if n := strings.TrimSpace(note); n != "" {
		c.ReviewerComments = n
	}
	c.apply(StatusPendingInformation)
	return nil
}

func (c *InsuranceClaim) MarkPaid() error {
	if err := c.check(StatusPaid); err != nil {
		return err
	}
	c.apply(StatusPaid)
	return nil
}

func (c *InsuranceClaim) Cancel() error {
	if err := c.check(StatusCancelled); err != nil {
		return err
	}
	c.apply(StatusCancelled)
	return nil
}

func (c *InsuranceClaim) Expire() error {
	if err := c.check(StatusExpired); err != nil {
		return err
	}
	c.apply(StatusExpired)
	return nil
}

func (c *InsuranceClaim) addComment(text string) {
	text = strings.TrimSpace(text)
	if c.Comments == "" {
		c.Comments = text
		return
	}
	c.Comments += "\n" + text
}

// AddSupportingDocument records a document description against the current
// time. Two documents never share a timestamp.
func (c *InsuranceClaim) AddSupportingDocument(description string) (time.Time, error) {
	if !c.IsActionable() {
		return time.Time{}, apperr.InvalidState("claim %s is %s and no longer accepts documents", c.ID, c.Status.Label())
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return time.Time{}, apperr.InvalidArgument("document description must not be blank")
	}
	if c.Documents == nil {
		c.Documents = map[time.Time]string{}
	}
	at := c.now()
	if latest, _, ok := c.LatestDocument(); ok && !at.After(latest) {
		at = latest.Add(time.Nanosecond)
	}
	c.Documents[at] = description
	c.UpdatedAt = at
	return at, nil
}

// LatestDocument returns the most recently added document.
func (c *InsuranceClaim) LatestDocument() (time.Time, string, bool) {
	var (
		latest time.Time
		found  bool
	)
	for at := range c.Documents {
		if !found || at.After(latest) {
			latest, found = at, true
		}
	}
	if !found {
		return time.Time{}, "", false
	}
	return latest, c.Documents[latest], true
}

// DocumentTimes returns document timestamps in the order they were added.
func (c *InsuranceClaim) DocumentTimes() []time.Time {
	out := make([]time.Time, 0, len(c.Documents))
	for at := range c.Documents {
		out = append(out, at)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (c *InsuranceClaim) IsDraft() bool              { return c.Status == StatusDraft }
func (c *InsuranceClaim) IsSubmitted() bool          { return c.Status == StatusSubmitted }
func (c *InsuranceClaim) IsInReview() bool           { return c.Status == StatusInReview }
func (c *InsuranceClaim) IsPendingInformation() bool { return c.Status == StatusPendingInformation }
func (c *InsuranceClaim) IsDenied() bool             { return c.Status == StatusDenied }
func (c *InsuranceClaim) IsAppealed() bool           { return c.Status == StatusAppealed }
func (c *InsuranceClaim) IsPaid() bool               { return c.Status == StatusPaid }
func (c *InsuranceClaim) IsCancelled() bool          { return c.Status == StatusCancelled }
func (c *InsuranceClaim) IsExpired() bool            { return c.Status == StatusExpired }

// IsApproved covers full and partial approval.
func (c *InsuranceClaim) IsApproved() bool {
	return c.Status == StatusApproved || c.Status == StatusPartiallyApproved
}

// IsClosed reports whether the claim reached a terminal status.
func (c *InsuranceClaim) IsClosed() bool     { return c.Status.IsTerminal() }
func (c *InsuranceClaim) IsActionable() bool { return !c.IsClosed() }

package claim

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an insurance claim.
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusSubmitted          Status = "SUBMITTED"
	StatusInReview           Status = "IN_REVIEW"
	StatusPendingInformation Status = "PENDING_INFORMATION"
	StatusApproved           Status = "APPROVED"
	StatusPartiallyApproved  Status = "PARTIALLY_APPROVED"
	StatusDenied             Status = "DENIED"
	StatusAppealed           Status = "APPEALED"
	StatusPaid               Status = "PAID"
	StatusCancelled          Status = "CANCELLED"
	StatusExpired            Status = "EXPIRED"
)

// Statuses lists every claim status in lifecycle order.
var Statuses = []Status{
	StatusDraft, StatusSubmitted, StatusInReview, StatusPendingInformation,
	StatusApproved, StatusPartiallyApproved, StatusDenied, StatusAppealed,
	StatusPaid, StatusCancelled, StatusExpired,
}

var statusLabels = map[Status]string{
	StatusDraft:              "Draft",
	StatusSubmitted:          "Submitted",
	StatusInReview:           "In Review",
	StatusPendingInformation: "Pending Information",
	StatusApproved:           "Approved",
	StatusPartiallyApproved:  "Partially Approved",
	StatusDenied:             "Denied",
	StatusAppealed:           "Appealed",
	StatusPaid:               "Paid",
	StatusCancelled:          "Cancelled",
	StatusExpired:            "Expired",
}

// transitions is the complete set of legal claim status changes.
var transitions = map[Status][]Status{
	"":                       {StatusDraft},
	StatusDraft:              {StatusSubmitted},
	StatusSubmitted:          {StatusInReview, StatusCancelled},
	StatusInReview:           {StatusApproved, StatusPartiallyApproved, StatusDenied, StatusPendingInformation},
	StatusPendingInformation: {StatusInReview, StatusExpired},
	StatusDenied:             {StatusAppealed},
	StatusAppealed:           {StatusInReview},
	StatusApproved:           {StatusPaid},
	StatusPartiallyApproved:  {StatusPaid},
	StatusPaid:               nil,
	StatusCancelled:          nil,
	StatusExpired:            nil,
}

func (s Status) Valid() bool { _, ok := statusLabels[s]; return ok }

// Label is the display form, e.g. "In Review".
func (s Status) Label() string { return statusLabels[s] }

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusExpired
}

// CanTransitionTo reports whether moving from s to target is legal.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from s in one step.
func (s Status) AllowedTransitions() []Status {
	return append([]Status(nil), transitions[s]...)
}

// ParseStatus accepts either the code ("IN_REVIEW") or the label ("In Review").
func ParseStatus(v string) (Status, error) {
	if s := Status(strings.ToUpper(v)); s.Valid() {
		return s, nil
	}
	for s, label := range statusLabels {
		if strings.EqualFold(label, v) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown claim status %q", v)
}

func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

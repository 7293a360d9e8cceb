package billing

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the lifecycle state of a bill.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusPending           Status = "PENDING"
	StatusSubmitted         Status = "SUBMITTED"
	StatusInsurancePending  Status = "INSURANCE_PENDING"
	StatusInsuranceApproved Status = "INSURANCE_APPROVED"
	StatusInsuranceRejected Status = "INSURANCE_REJECTED"
	StatusPartiallyPaid     Status = "PARTIALLY_PAID"
	StatusPaid              Status = "PAID"
	StatusOverdue           Status = "OVERDUE"
	StatusCancelled         Status = "CANCELLED"
	StatusInDispute         Status = "IN_DISPUTE"
	StatusRefundPending     Status = "REFUND_PENDING"
	StatusRefunded          Status = "REFUNDED"
)

// StatusInfo is the display vocabulary of a status.
type StatusInfo struct {
	Code        Status `json:"code"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

var statusInfo = []StatusInfo{
	{StatusDraft, "Draft", "Bill is being prepared and items can still be added"},
	{StatusPending, "Pending", "Bill is on hold awaiting review before submission"},
	{StatusSubmitted, "Submitted", "Bill has been finalized and issued to the patient"},
	{StatusInsurancePending, "Insurance Pending", "Insurance claim has been filed and awaits a decision"},
	{StatusInsuranceApproved, "Insurance Approved", "Insurer approved the claim for this bill"},
	{StatusInsuranceRejected, "Insurance Rejected", "Insurer rejected the claim for this bill"},
	{StatusPartiallyPaid, "Partially Paid", "Part of the bill has been paid"},
	{StatusPaid, "Paid", "Bill has been paid in full"},
	{StatusOverdue, "Overdue", "Payment is past the due date"},
	{StatusCancelled, "Cancelled", "Bill has been cancelled"},
	{StatusInDispute, "In Dispute", "Charges on the bill are being disputed"},
	{StatusRefundPending, "Refund Pending", "A refund has been initiated and awaits completion"},
	{StatusRefunded, "Refunded", "Refund has been completed"},
}

var statusIndex = func() map[Status]StatusInfo {
	m := make(map[Status]StatusInfo, len(statusInfo))
	for _, info := range statusInfo {
		m[info.Code] = info
	}
	return m
}()

// Statuses returns every bill status with its label and description.
func Statuses() []StatusInfo {
	return append([]StatusInfo(nil), statusInfo...)
}

func (s Status) Valid() bool         { _, ok := statusIndex[s]; return ok }
func (s Status) Label() string       { return statusIndex[s].Label }
func (s Status) Description() string { return statusIndex[s].Description }

func (s Status) IsFinalized() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusRefunded
}

func (s Status) RequiresAction() bool {
	return s == StatusInsuranceRejected || s == StatusOverdue || s == StatusInDispute
}

func (s Status) IsInsuranceRelated() bool {
	return s == StatusInsurancePending || s == StatusInsuranceApproved || s == StatusInsuranceRejected
}

func (s Status) IsInPreparation() bool {
	return s == StatusDraft || s == StatusPending
}

func (s Status) IsSubmitted() bool {
	return s == StatusSubmitted
}

// AcceptsPayment reports whether payments can be recorded in status s.
func (s Status) AcceptsPayment() bool {
	_, ok := transitions[s][EventSettle]
	return ok
}

// ParseStatus accepts the code ("INSURANCE_PENDING") or the label ("Insurance Pending").
func ParseStatus(v string) (Status, error) {
	if s := Status(strings.ToUpper(strings.TrimSpace(v))); s.Valid() {
		return s, nil
	}
	for _, info := range statusInfo {
		if strings.EqualFold(info.Label, strings.TrimSpace(v)) {
			return info.Code, nil
		}
	}
	return "", fmt.Errorf("unknown bill status %q", v)
}

func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Event is something that happens to a bill and may move it to a new status.
type Event string

const (
	EventHold             Event = "hold"
	EventSubmit           Event = "submit"
	EventRequestInsurance Event = "request_insurance"
	EventApproveInsurance Event = "approve_insurance"
	EventRejectInsurance  Event = "reject_insurance"
	EventPartialPayment   Event = "partial_payment"
	EventSettle           Event = "settle"
	EventMarkOverdue      Event = "mark_overdue"
	EventDispute          Event = "dispute"
	EventResolveAgainst   Event = "resolve_against_patient"
	EventInitiateRefund   Event = "initiate_refund"
	EventCompleteRefund   Event = "complete_refund"
	EventCancel           Event = "cancel"
)

// payable lists the statuses in which payments are accepted.
var payable = []Status{
	StatusSubmitted, StatusInsuranceApproved, StatusInsuranceRejected, StatusPartiallyPaid, StatusOverdue,
}

// transitions is the complete bill state machine: status -> event -> next status.
var transitions = buildTransitions()

func buildTransitions() map[Status]map[Event]Status {
	t := map[Status]map[Event]Status{}
	add := func(ev Event, to Status, from ...Status) {
		for _, f := range from {
			if t[f] == nil {
				t[f] = map[Event]Status{}
			}
			t[f][ev] = to
		}
	}

	add(EventHold, StatusPending, StatusDraft)
	add(EventSubmit, StatusSubmitted, StatusDraft, StatusPending)
	add(EventRequestInsurance, StatusInsurancePending, StatusSubmitted)
	add(EventApproveInsurance, StatusInsuranceApproved, StatusInsurancePending, StatusInsuranceRejected)
	add(EventRejectInsurance, StatusInsuranceRejected, StatusInsurancePending)
	add(EventPartialPayment, StatusPartiallyPaid, payable...)
	add(EventSettle, StatusPaid, payable...)
	add(EventMarkOverdue, StatusOverdue,
		StatusSubmitted, StatusInsuranceApproved, StatusInsuranceRejected, StatusPartiallyPaid)
	add(EventDispute, StatusInDispute,
		StatusSubmitted, StatusInsurancePending, StatusInsuranceApproved, StatusInsuranceRejected,
		StatusPartiallyPaid, StatusOverdue)
	add(EventResolveAgainst, StatusSubmitted, StatusInDispute)
	add(EventInitiateRefund, StatusRefundPending, StatusPaid, StatusInDispute)
	add(EventCompleteRefund, StatusRefunded, StatusRefundPending)
	for _, info := range statusInfo {
		if !info.Code.IsFinalized() {
			add(EventCancel, StatusCancelled, info.Code)
		}
	}
	return t
}

// Next returns the status event ev leads to from s.
func (s Status) Next(ev Event) (Status, bool) {
	to, ok := transitions[s][ev]
	return to, ok
}

// Events returns the events accepted in status s.
func (s Status) Events() []Event {
	out := make([]Event, 0, len(transitions[s]))
	for ev := range transitions[s] {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

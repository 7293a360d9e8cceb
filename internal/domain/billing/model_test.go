package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/claims/internal/domain/coverage"
	"github.com/ehr/claims/internal/platform/apperr"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func clock() time.Time { return testNow }

func newBill(t *testing.T, charges ...string) *Bill {
	t.Helper()
	b := New(uuid.New(), true, clock)
	for _, c := range charges {
		_, err := b.AddItem(coverage.NewProcedure("0DTJ4ZZ", "Appendectomy", d(c)), 1)
		require.NoError(t, err)
	}
	return b
}

func submitted(t *testing.T, charges ...string) *Bill {
	t.Helper()
	b := newBill(t, charges...)
	require.NoError(t, b.Submit())
	return b
}

func requireBalanced(t *testing.T, b *Bill) {
	t.Helper()
	assert.True(t, b.Settled.Add(b.Outstanding).Equal(b.GrandTotal),
		"settled %s + outstanding %s != grand %s", b.Settled, b.Outstanding, b.GrandTotal)
}

func TestStatus_Classification(t *testing.T) {
	for _, info := range Statuses() {
		s := info.Code
		assert.Equal(t, s == StatusPaid || s == StatusCancelled || s == StatusRefunded, s.IsFinalized(), s)
		assert.Equal(t, s == StatusInsuranceRejected || s == StatusOverdue || s == StatusInDispute, s.RequiresAction(), s)
		assert.Equal(t, s == StatusInsurancePending || s == StatusInsuranceApproved || s == StatusInsuranceRejected,
			s.IsInsuranceRelated(), s)
		assert.Equal(t, s == StatusDraft || s == StatusPending, s.IsInPreparation(), s)
		assert.NotEmpty(t, s.Label())
		assert.NotEmpty(t, s.Description())
	}
	assert.Len(t, Statuses(), 13)
}

func TestStatus_FinalizedAcceptNoEvents(t *testing.T) {
	for _, s := range []Status{StatusPaid, StatusCancelled, StatusRefunded} {
		for _, ev := range s.Events() {
			assert.Equal(t, EventInitiateRefund, ev, "%s accepts %s", s, ev)
		}
	}
	assert.Empty(t, StatusCancelled.Events())
	assert.Empty(t, StatusRefunded.Events())
}

func TestParseStatus(t *testing.T) {
	for _, info := range Statuses() {
		got, err := ParseStatus(info.Label)
		require.NoError(t, err)
		assert.Equal(t, info.Code, got)
		got, err = ParseStatus(string(info.Code))
		require.NoError(t, err)
		assert.Equal(t, info.Code, got)
	}
	_, err := ParseStatus("ARCHIVED")
	assert.Error(t, err)
}

func TestAddItem_RecomputesTotals(t *testing.T) {
	b := New(uuid.New(), true, clock)
	_, err := b.AddItem(coverage.NewProcedure("0DTJ4ZZ", "Appendectomy", d("1000")), 1)
	require.NoError(t, err)
	_, err = b.AddItem(coverage.NewMedication("RX-1", "Amoxicillin", d("12.50")), 4)
	require.NoError(t, err)
	_, err = b.AddItem(coverage.NewMedication("RX-2", "Paracetamol", d("3.25")), 2)
	require.NoError(t, err)

	assert.True(t, b.GrandTotal.Equal(d("1056.50")), b.GrandTotal.String())
	assert.True(t, b.Outstanding.Equal(d("1056.50")))
	assert.True(t, b.CategoryTotals["Procedures"].Equal(d("1000")))
	assert.True(t, b.CategoryTotals["Medications"].Equal(d("56.50")))
	assert.Equal(t, []string{"Medications", "Procedures"}, b.Categories())
	requireBalanced(t, b)
}

func TestAddItem_Guards(t *testing.T) {
	b := newBill(t, "100")
	_, err := b.AddItem(coverage.NewConsultation("Visit", d("50")), 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	require.NoError(t, b.Submit())
	_, err = b.AddItem(coverage.NewConsultation("Visit", d("50")), 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Len(t, b.Lines, 1)
}

func TestRecompute_Idempotent(t *testing.T) {
	b := newBill(t, "100", "250.75")
	_, err := b.AddItem(coverage.NewConsultation("Visit", d("80")), 2)
	require.NoError(t, err)

	b.Recompute()
	first := map[string]string{}
	for k, v := range b.CategoryTotals {
		first[k] = v.String()
	}
	grand := b.GrandTotal
	b.Recompute()
	second := map[string]string{}
	for k, v := range b.CategoryTotals {
		second[k] = v.String()
	}
	assert.Equal(t, first, second)
	assert.True(t, grand.Equal(b.GrandTotal))

	// Line order does not matter.
	b.Lines[0], b.Lines[2] = b.Lines[2], b.Lines[0]
	b.Recompute()
	assert.True(t, grand.Equal(b.GrandTotal))
	assert.True(t, b.CategoryTotals["Consultations"].Equal(d("160")))
}

func TestSubmit_OnlyFromPreparation(t *testing.T) {
	b := newBill(t, "100")
	require.NoError(t, b.Hold())
	assert.Equal(t, StatusPending, b.Status)
	require.NoError(t, b.Submit())
	assert.Equal(t, StatusSubmitted, b.Status)

	err := b.Submit()
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, StatusSubmitted, b.Status)
}

func TestApplyCoverage(t *testing.T) {
	b := submitted(t, "1000")
	require.NoError(t, b.ApplyCoverage(false, "", "Policy expired"))
	assert.Equal(t, StatusSubmitted, b.Status)
	assert.Equal(t, "Policy expired", b.DenialReason)

	require.NoError(t, b.ApplyCoverage(true, "CLM-20240315-AB12", ""))
	assert.Equal(t, StatusInsurancePending, b.Status)
	assert.Equal(t, "CLM-20240315-AB12", b.ClaimID)
	assert.Empty(t, b.DenialReason)

	draft := newBill(t, "10")
	assert.ErrorIs(t, draft.ApplyCoverage(true, "CLM-1", ""), apperr.ErrInvalidTransition)
}

func TestInsuranceDecision(t *testing.T) {
	b := submitted(t, "1000")
	require.NoError(t, b.ApplyCoverage(true, "CLM-1", ""))
	require.NoError(t, b.RejectInsurance("not medically necessary"))
	assert.Equal(t, StatusInsuranceRejected, b.Status)
	assert.True(t, b.Status.RequiresAction())

	require.NoError(t, b.ApproveInsurance())
	assert.Equal(t, StatusInsuranceApproved, b.Status)
	assert.ErrorIs(t, b.RejectInsurance("late"), apperr.ErrInvalidTransition)
}

func TestPartialPayment_SettlesAtOutstanding(t *testing.T) {
	b := submitted(t, "1000")
	_, err := b.RecordPartialPayment(d("700"), MethodCard, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyPaid, b.Status)
	assert.True(t, b.Outstanding.Equal(d("300")))

	_, err = b.RecordPartialPayment(d("300"), MethodCash, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, b.Status)
	assert.True(t, b.Outstanding.IsZero())
	assert.True(t, b.Settled.Equal(d("1000")))
	assert.Len(t, b.Payments, 2)
	requireBalanced(t, b)
}

func TestPartialPayment_Guards(t *testing.T) {
	b := submitted(t, "1000")
	cases := []struct {
		name   string
		amount string
		method PaymentMethod
	}{
		{"zero", "0", MethodCash},
		{"negative", "-5", MethodCash},
		{"over outstanding", "1000.01", MethodCash},
		{"unknown method", "10", PaymentMethod("BARTER")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.RecordPartialPayment(d(tc.amount), tc.method, "")
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
			assert.Equal(t, StatusSubmitted, b.Status)
			assert.True(t, b.Settled.IsZero())
			assert.Empty(t, b.Payments)
		})
	}

	draft := newBill(t, "10")
	_, err := draft.RecordPartialPayment(d("5"), MethodCash, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestFullPayment(t *testing.T) {
	for _, from := range []Status{StatusSubmitted, StatusInsuranceApproved, StatusInsuranceRejected, StatusPartiallyPaid, StatusOverdue} {
		t.Run(string(from), func(t *testing.T) {
			b := submitted(t, "500")
			if from == StatusPartiallyPaid {
				_, err := b.RecordPartialPayment(d("100"), MethodCash, "")
				require.NoError(t, err)
			} else {
				b.Status = from
			}
			_, err := b.RecordFullPayment(MethodBankTransfer, "TRX-1")
			require.NoError(t, err)
			assert.Equal(t, StatusPaid, b.Status)
			assert.True(t, b.Settled.Equal(d("500")))
			assert.True(t, b.Outstanding.IsZero())
		})
	}

	pending := submitted(t, "500")
	pending.Status = StatusInsurancePending
	_, err := pending.RecordFullPayment(MethodCash, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestRefund(t *testing.T) {
	b := submitted(t, "400")
	_, err := b.RecordFullPayment(MethodCard, "")
	require.NoError(t, err)

	require.NoError(t, b.InitiatePartialRefund(d("150")))
	assert.Equal(t, StatusRefundPending, b.Status)
	_, err = b.CompleteRefund(MethodCard, "RF-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, b.Status)
	assert.True(t, b.Settled.Equal(d("250")))
	assert.True(t, b.Outstanding.Equal(d("150")))
	assert.True(t, b.Refunded.Equal(d("150")))
	assert.True(t, b.Payments[len(b.Payments)-1].Amount.Equal(d("-150")))
	requireBalanced(t, b)
}

func TestRefund_Guards(t *testing.T) {
	b := submitted(t, "400")
	assert.ErrorIs(t, b.InitiateRefund(), apperr.ErrInvalidTransition)

	_, err := b.RecordFullPayment(MethodCard, "")
	require.NoError(t, err)
	assert.ErrorIs(t, b.InitiatePartialRefund(d("400.01")), apperr.ErrInvalidArgument)
	assert.Equal(t, StatusPaid, b.Status)

	_, err = b.CompleteRefund(MethodCard, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestDispute(t *testing.T) {
	t.Run("against patient", func(t *testing.T) {
		b := submitted(t, "300")
		require.NoError(t, b.Dispute("duplicate charge"))
		assert.Equal(t, StatusInDispute, b.Status)
		require.NoError(t, b.ResolveDispute(false))
		assert.Equal(t, StatusSubmitted, b.Status)
	})
	t.Run("for patient with money settled", func(t *testing.T) {
		b := submitted(t, "300")
		_, err := b.RecordPartialPayment(d("120"), MethodCash, "")
		require.NoError(t, err)
		require.NoError(t, b.Dispute("duplicate charge"))
		require.NoError(t, b.ResolveDispute(true))
		assert.Equal(t, StatusRefundPending, b.Status)
		assert.True(t, b.RefundPending.Equal(d("120")))
	})
	t.Run("for patient with nothing settled", func(t *testing.T) {
		b := submitted(t, "300")
		require.NoError(t, b.Dispute("duplicate charge"))
		require.NoError(t, b.ResolveDispute(true))
		assert.Equal(t, StatusCancelled, b.Status)
	})
	t.Run("reason required", func(t *testing.T) {
		b := submitted(t, "300")
		assert.ErrorIs(t, b.Dispute(" "), apperr.ErrInvalidArgument)
		assert.Equal(t, StatusSubmitted, b.Status)
	})
	t.Run("resolve without dispute", func(t *testing.T) {
		b := submitted(t, "300")
		assert.ErrorIs(t, b.ResolveDispute(true), apperr.ErrInvalidTransition)
	})
}

func TestCancel(t *testing.T) {
	for _, info := range Statuses() {
		b := submitted(t, "100")
		b.Status = info.Code
		err := b.Cancel()
		if info.Code.IsFinalized() {
			var te *apperr.TransitionError
			require.True(t, errors.As(err, &te), info.Code)
			assert.True(t, te.Terminal)
			assert.ErrorIs(t, err, apperr.ErrInvalidState)
			assert.Equal(t, info.Code, b.Status)
			continue
		}
		require.NoError(t, err, info.Code)
		assert.Equal(t, StatusCancelled, b.Status)
	}
}

func TestMarkOverdue(t *testing.T) {
	b := submitted(t, "100")
	assert.ErrorIs(t, b.MarkOverdue(testNow), apperr.ErrInvalidState)

	due := testNow.Add(-24 * time.Hour)
	b.DueDate = &due
	assert.True(t, b.IsPastDue(testNow))
	require.NoError(t, b.MarkOverdue(testNow))
	assert.Equal(t, StatusOverdue, b.Status)
	assert.ErrorIs(t, b.MarkOverdue(testNow), apperr.ErrInvalidTransition)

	_, err := b.RecordPartialPayment(d("40"), MethodCash, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyPaid, b.Status)
}

func TestTransition_RoutesByEvent(t *testing.T) {
	b := newBill(t, "100")
	require.NoError(t, b.Transition(EventSubmit))
	assert.Equal(t, StatusSubmitted, b.Status)
	assert.ErrorIs(t, b.Transition(EventSettle), apperr.ErrInvalidArgument)
	assert.ErrorIs(t, b.Transition(EventCompleteRefund), apperr.ErrInvalidTransition)
}

// The settled and outstanding amounts always add up to the grand total,
// whatever sequence of payment operations is applied.
func TestInvariant_SettledPlusOutstanding(t *testing.T) {
	type step func(b *Bill)
	steps := []step{
		func(b *Bill) { _, _ = b.RecordPartialPayment(d("33.33"), MethodCash, "") },
		func(b *Bill) { _, _ = b.RecordPartialPayment(d("5000"), MethodCash, "") },
		func(b *Bill) { _, _ = b.RecordFullPayment(MethodCard, "") },
		func(b *Bill) { _ = b.InitiatePartialRefund(d("10")) },
		func(b *Bill) { _, _ = b.CompleteRefund(MethodCard, "") },
		func(b *Bill) { _ = b.InitiateRefund() },
		func(b *Bill) { _, _ = b.AddItem(coverage.NewConsultation("Visit", d("19.99")), 3) },
	}
	// Walk every ordering of three steps drawn from the list.
	for i := range steps {
		for j := range steps {
			for k := range steps {
				b := newBill(t, "250.10")
				steps[6](b)
				require.NoError(t, b.Submit())
				for _, idx := range []int{i, j, k} {
					steps[idx](b)
					requireBalanced(t, b)
					assert.False(t, b.Settled.IsNegative())
				}
			}
		}
	}
}

package events

import (
	"context"
	"testing"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	r.Publish(ctx, New(BillStatusChanged, "bill-1", map[string]string{"to": "SUBMITTED"}))
	r.Publish(ctx, New(ClaimStatusChanged, "CLM-1", nil))
	r.Publish(ctx, New(BillStatusChanged, "bill-1", map[string]string{"to": "PAID"}))

	if got := len(r.Events()); got != 3 {
		t.Fatalf("expected 3 events, got %d", got)
	}
	bills := r.OfType(BillStatusChanged)
	if len(bills) != 2 {
		t.Fatalf("expected 2 bill events, got %d", len(bills))
	}
	if bills[0].ID == bills[1].ID {
		t.Error("expected unique event ids")
	}
	if bills[0].AggregateID != "bill-1" {
		t.Errorf("unexpected aggregate id %s", bills[0].AggregateID)
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), New(PaymentRecorded, "x", nil)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

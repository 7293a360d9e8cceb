package fhir

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewMoney(t *testing.T) {
	m := NewMoney(decimal.RequireFromString("1056.505"))
	if m.Value != 1056.51 || m.Currency != DefaultCurrency {
		t.Errorf("unexpected money %+v", m)
	}

	data, _ := json.Marshal(NewMoney(decimal.NewFromInt(720)))
	if string(data) != `{"value":720,"currency":"USD"}` {
		t.Errorf("unexpected JSON %s", data)
	}
}

func TestFormatReference(t *testing.T) {
	if got := FormatReference("Invoice", "abc"); got != "Invoice/abc" {
		t.Errorf("expected Invoice/abc, got %s", got)
	}
}

func TestNotFoundOutcome(t *testing.T) {
	o := NotFoundOutcome("Claim", "CLM-1")
	if o.ResourceType != "OperationOutcome" || len(o.Issue) != 1 {
		t.Fatalf("unexpected outcome %+v", o)
	}
	issue := o.Issue[0]
	if issue.Severity != "error" || issue.Code != "not-found" || issue.Diagnostics != "Claim/CLM-1 not found" {
		t.Errorf("unexpected issue %+v", issue)
	}
}

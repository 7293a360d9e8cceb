package reporting

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ehr/claims/internal/platform/apperr"
)

// ParamKind controls how a query-string parameter is parsed before it is
// bound to a measure's SQL.
type ParamKind string

const (
	ParamDate ParamKind = "date"
	ParamInt  ParamKind = "int"
	ParamText ParamKind = "text"
)

// Parameter is bound positionally: the first declared parameter is $1.
// Absent parameters are bound as NULL, so the SQL must tolerate that.
type Parameter struct {
	Name string    `json:"name"`
	Kind ParamKind `json:"kind"`
}

// Measure is a named aggregate over the billing tables.
type Measure struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	SQL         string      `json:"-"`
}

var Measures = []Measure{
	{
		ID:          "bill-status-summary",
		Name:        "Bills by Status",
		Description: "Bill count, billed total and outstanding balance per billing status",
		SQL: `SELECT status, COUNT(*) AS bills, COALESCE(SUM(grand_total), 0) AS billed,
			COALESCE(SUM(outstanding), 0) AS outstanding
			FROM bill GROUP BY status ORDER BY bills DESC, status`,
	},
	{
		ID:          "claim-status-summary",
		Name:        "Claims by Status",
		Description: "Claim count with claimed and approved amounts per claim status",
		Parameters:  []Parameter{{Name: "from", Kind: ParamDate}, {Name: "to", Kind: ParamDate}},
		SQL: `SELECT status, COUNT(*) AS claims, COALESCE(SUM(claimed_amount), 0) AS claimed,
			COALESCE(SUM(approved_amount), 0) AS approved
			FROM insurance_claim
			WHERE ($1::date IS NULL OR created_at >= $1::date)
			  AND ($2::date IS NULL OR created_at < $2::date + 1)
			GROUP BY status ORDER BY claims DESC, status`,
	},
	{
		ID:          "policy-utilization",
		Name:        "Policy Utilization",
		Description: "Approved claim amounts per policy for a calendar year",
		Parameters:  []Parameter{{Name: "year", Kind: ParamInt}},
		SQL: `SELECT policy_number, COUNT(*) AS claims, COALESCE(SUM(approved_amount), 0) AS approved
			FROM insurance_claim
			WHERE status IN ('APPROVED', 'PARTIALLY_APPROVED', 'PAID')
			  AND EXTRACT(YEAR FROM COALESCE(submitted_at, created_at)) =
			      COALESCE($1::int, EXTRACT(YEAR FROM NOW())::int)
			GROUP BY policy_number ORDER BY approved DESC, policy_number`,
	},
	{
		ID:          "revenue-by-category",
		Name:        "Charges by Category",
		Description: "Line item totals per charge category, excluding cancelled bills",
		SQL: `SELECT li.category, COUNT(*) AS lines, COALESCE(SUM(li.total), 0) AS charged
			FROM bill_line_item li JOIN bill b ON b.id = li.bill_id
			WHERE b.status <> 'CANCELLED'
			GROUP BY li.category ORDER BY charged DESC, li.category`,
	},
	{
		ID:          "payments-by-method",
		Name:        "Payments by Method",
		Description: "Payments and refunds per payment method in a date range",
		Parameters:  []Parameter{{Name: "from", Kind: ParamDate}, {Name: "to", Kind: ParamDate}},
		SQL: `SELECT method,
			COUNT(*) FILTER (WHERE amount > 0) AS payments,
			COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0) AS received,
			COALESCE(-SUM(amount) FILTER (WHERE amount < 0), 0) AS refunded
			FROM bill_payment
			WHERE ($1::date IS NULL OR received_at >= $1::date)
			  AND ($2::date IS NULL OR received_at < $2::date + 1)
			GROUP BY method ORDER BY received DESC, method`,
	},
	{
		ID:          "overdue-bills",
		Name:        "Overdue Bills",
		Description: "Bills marked overdue with their outstanding balance and due date",
		SQL: `SELECT id, patient_id, policy_number, outstanding, due_date
			FROM bill WHERE status = 'OVERDUE' ORDER BY due_date NULLS LAST, id`,
	},
}

// Find returns the measure with the given id.
func Find(id string) (*Measure, error) {
	for i := range Measures {
		if Measures[i].ID == id {
			return &Measures[i], nil
		}
	}
	return nil, apperr.NotFound("measure", id)
}

// Bind converts raw query values into positional SQL arguments. It also
// returns the values that were supplied, for echoing back in the report.
func (m *Measure) Bind(raw map[string]string) ([]interface{}, map[string]string, error) {
	args := make([]interface{}, len(m.Parameters))
	used := make(map[string]string)
	for i, p := range m.Parameters {
		v, ok := raw[p.Name]
		if !ok || v == "" {
			continue
		}
		arg, err := p.parse(v)
		if err != nil {
			return nil, nil, err
		}
		args[i] = arg
		used[p.Name] = v
	}
	return args, used, nil
}

func (p Parameter) parse(v string) (interface{}, error) {
	switch p.Kind {
	case ParamDate:
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return nil, apperr.InvalidArgument("parameter %s must be a date (YYYY-MM-DD)", p.Name)
		}
		return t, nil
	case ParamInt:
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, apperr.InvalidArgument("parameter %s must be an integer", p.Name)
		}
		return n, nil
	case ParamText:
		return v, nil
	default:
		return nil, fmt.Errorf("parameter %s has unknown kind %q", p.Name, p.Kind)
	}
}

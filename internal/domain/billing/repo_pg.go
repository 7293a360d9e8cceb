package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/claims/internal/platform/apperr"
	"github.com/ehr/claims/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const billCols = `id, patient_id, policy_number, inpatient, status, grand_total, settled, outstanding,
	refund_pending, refunded, claim_id, denial_reason, dispute_reason, due_date, version, created_at, updated_at`

func (r *repoPG) scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.PatientID, &b.PolicyNumber, &b.Inpatient, &b.Status, &b.GrandTotal, &b.Settled, &b.Outstanding,
		&b.RefundPending, &b.Refunded, &b.ClaimID, &b.DenialReason, &b.DisputeReason, &b.DueDate, &b.Version,
		&b.CreatedAt, &b.UpdatedAt)
	return &b, err
}

func (r *repoPG) Create(ctx context.Context, b *Bill) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bill (id, patient_id, policy_number, inpatient, status, grand_total, settled, outstanding,
			refund_pending, refunded, claim_id, denial_reason, dispute_reason, due_date, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		b.ID, b.PatientID, b.PolicyNumber, b.Inpatient, b.Status, b.GrandTotal, b.Settled, b.Outstanding,
		b.RefundPending, b.Refunded, b.ClaimID, b.DenialReason, b.DisputeReason, b.DueDate, b.Version,
		b.CreatedAt, b.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("bill %s already exists", b.ID)
	}
	if err != nil {
		return err
	}
	return r.saveChildren(ctx, b)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Bill, error) {
	b, err := r.scanBill(r.conn(ctx).QueryRow(ctx, `SELECT `+billCols+` FROM bill WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("bill", id.String())
	}
	if err != nil {
		return nil, err
	}
	if err := r.attach(ctx, []*Bill{b}); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repoPG) Update(ctx context.Context, b *Bill) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bill SET policy_number=$3, status=$4, grand_total=$5, settled=$6, outstanding=$7,
			refund_pending=$8, refunded=$9, claim_id=$10, denial_reason=$11, dispute_reason=$12,
			due_date=$13, updated_at=$14, version = version + 1
		WHERE id = $1 AND version = $2`,
		b.ID, b.Version, b.PolicyNumber, b.Status, b.GrandTotal, b.Settled, b.Outstanding,
		b.RefundPending, b.Refunded, b.ClaimID, b.DenialReason, b.DisputeReason, b.DueDate, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bill WHERE id = $1)`, b.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound("bill", b.ID.String())
		}
		return apperr.Conflict("bill %s was modified concurrently", b.ID)
	}
	b.Version++
	return r.saveChildren(ctx, b)
}

// saveChildren inserts lines and payments not yet stored. Both are append-only.
func (r *repoPG) saveChildren(ctx context.Context, b *Bill) error {
	for _, l := range b.Lines {
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO bill_line_item (id, bill_id, item, quantity, unit_charge, total, category, added_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO NOTHING`,
			l.ID, b.ID, l.Item, l.Quantity, l.UnitCharge, l.Total, l.Category, l.AddedAt); err != nil {
			return fmt.Errorf("save line item: %w", err)
		}
	}
	for _, p := range b.Payments {
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO bill_payment (id, bill_id, amount, method, reference, received_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, b.ID, p.Amount, p.Method, p.Reference, p.ReceivedAt); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}
	}
	return nil
}

// attach loads lines and payments for bills and recomputes their totals.
func (r *repoPG) attach(ctx context.Context, bills []*Bill) error {
	if len(bills) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*Bill, len(bills))
	ids := make([]uuid.UUID, len(bills))
	for i, b := range bills {
		byID[b.ID] = b
		ids[i] = b.ID
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, bill_id, item, quantity, unit_charge, total, category, added_at
		FROM bill_line_item WHERE bill_id = ANY($1) ORDER BY added_at, id`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			l      LineItem
			billID uuid.UUID
		)
		if err := rows.Scan(&l.ID, &billID, &l.Item, &l.Quantity, &l.UnitCharge, &l.Total, &l.Category, &l.AddedAt); err != nil {
			rows.Close()
			return err
		}
		byID[billID].Lines = append(byID[billID].Lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.conn(ctx).Query(ctx, `
		SELECT id, bill_id, amount, method, reference, received_at
		FROM bill_payment WHERE bill_id = ANY($1) ORDER BY received_at, id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p      Payment
			billID uuid.UUID
		)
		if err := rows.Scan(&p.ID, &billID, &p.Amount, &p.Method, &p.Reference, &p.ReceivedAt); err != nil {
			return err
		}
		byID[billID].Payments = append(byID[billID].Payments, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, b := range bills {
		b.Recompute()
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Bill, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.PatientID != uuid.Nil {
		args = append(args, filter.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bill`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT `+billCols+` FROM bill%s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	var bills []*Bill
	for rows.Next() {
		b, err := r.scanBill(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		bills = append(bills, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.attach(ctx, bills); err != nil {
		return nil, 0, err
	}
	return bills, total, nil
}

func (r *repoPG) ListPastDue(ctx context.Context, at time.Time) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id FROM bill
		WHERE due_date < $1 AND outstanding > 0
			AND status IN ('SUBMITTED', 'INSURANCE_APPROVED', 'INSURANCE_REJECTED', 'PARTIALLY_PAID')
		ORDER BY due_date`, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

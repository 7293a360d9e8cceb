package claim

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
	"github.com/shopspring/decimal"

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

const claimCols = `id, bill_id, patient_id, provider_id, policy_number, status, submitted_at,
	claimed_amount, payable_amount, approved_amount, reviewer_comments, comments,
	documents, created_at, updated_at`

func (r *repoPG) scanClaim(row pgx.Row) (*InsuranceClaim, error) {
	var c InsuranceClaim
	err := row.Scan(&c.ID, &c.BillID, &c.PatientID, &c.ProviderID, &c.PolicyNumber, &c.Status, &c.SubmittedAt,
		&c.ClaimedAmount, &c.PayableAmount, &c.ApprovedAmount, &c.ReviewerComments, &c.Comments,
		&c.Documents, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *InsuranceClaim) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO insurance_claim (id, bill_id, patient_id, provider_id, policy_number, status, submitted_at,
			claimed_amount, payable_amount, approved_amount, reviewer_comments, comments,
			documents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.BillID, c.PatientID, c.ProviderID, c.PolicyNumber, c.Status, c.SubmittedAt,
		c.ClaimedAmount, c.PayableAmount, c.ApprovedAmount, c.ReviewerComments, c.Comments,
		c.Documents, c.CreatedAt, c.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("claim %s already exists", c.ID)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*InsuranceClaim, error) {
	c, err := r.scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM insurance_claim WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("claim", id)
	}
	return c, err
}

func (r *repoPG) Update(ctx context.Context, c *InsuranceClaim) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurance_claim SET status=$2, submitted_at=$3, payable_amount=$4, approved_amount=$5,
			reviewer_comments=$6, comments=$7, documents=$8, updated_at=$9
		WHERE id = $1`,
		c.ID, c.Status, c.SubmittedAt, c.PayableAmount, c.ApprovedAmount,
		c.ReviewerComments, c.Comments, c.Documents, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("claim", c.ID)
	}
	return nil
}

func (r *repoPG) ListByBill(ctx context.Context, billID uuid.UUID) ([]*InsuranceClaim, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+claimCols+` FROM insurance_claim WHERE bill_id = $1 ORDER BY created_at`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*InsuranceClaim, int, error) {
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
	if filter.PolicyNumber != "" {
		args = append(args, filter.PolicyNumber)
		where = append(where, fmt.Sprintf("policy_number = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM insurance_claim`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT `+claimCols+` FROM insurance_claim%s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *repoPG) Consumed(ctx context.Context, policyNumber string, at time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var annual, lifetime decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COALESCE(SUM(approved_amount) FILTER (
				WHERE date_trunc('year', COALESCE(submitted_at, created_at)) = date_trunc('year', $2::timestamptz)), 0),
			COALESCE(SUM(approved_amount), 0)
		FROM insurance_claim
		WHERE policy_number = $1 AND status IN ('APPROVED', 'PARTIALLY_APPROVED', 'PAID')`,
		policyNumber, at).Scan(&annual, &lifetime)
	return annual, lifetime, err
}

func (r *repoPG) collect(rows pgx.Rows) ([]*InsuranceClaim, error) {
	var items []*InsuranceClaim
	for rows.Next() {
		c, err := r.scanClaim(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

package coverage

import (
	"context"
	"errors"
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

type policyRepoPG struct{ pool *pgxpool.Pool }

func NewPolicyRepoPG(pool *pgxpool.Pool) PolicyRepository { return &policyRepoPG{pool: pool} }

func (r *policyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const policyCols = `id, policy_number, holder_id, name, provider_id, provider_name,
	status, effective_from, expires_at, plan, created_at, updated_at`

func (r *policyRepoPG) scanPolicy(row pgx.Row) (*InsurancePolicy, error) {
	var p InsurancePolicy
	err := row.Scan(&p.ID, &p.PolicyNumber, &p.HolderID, &p.Name, &p.ProviderID, &p.ProviderName,
		&p.Status, &p.EffectiveFrom, &p.ExpiresAt, &p.Plan, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *policyRepoPG) Create(ctx context.Context, p *InsurancePolicy) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO insurance_policy (id, policy_number, holder_id, name, provider_id, provider_name,
			status, effective_from, expires_at, plan)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.ID, p.PolicyNumber, p.HolderID, p.Name, p.ProviderID, p.ProviderName,
		p.Status, p.EffectiveFrom, p.ExpiresAt, p.Plan).Scan(&p.CreatedAt, &p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("policy %s already exists", p.PolicyNumber)
	}
	return err
}

func (r *policyRepoPG) GetByNumber(ctx context.Context, number string) (*InsurancePolicy, error) {
	p, err := r.scanPolicy(r.conn(ctx).QueryRow(ctx,
		`SELECT `+policyCols+` FROM insurance_policy WHERE policy_number = $1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("policy", number)
	}
	return p, err
}

func (r *policyRepoPG) Update(ctx context.Context, p *InsurancePolicy) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurance_policy SET name=$2, provider_name=$3, status=$4,
			effective_from=$5, expires_at=$6, plan=$7, updated_at=NOW()
		WHERE policy_number = $1`,
		p.PolicyNumber, p.Name, p.ProviderName, p.Status, p.EffectiveFrom, p.ExpiresAt, p.Plan)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("policy", p.PolicyNumber)
	}
	return nil
}

func (r *policyRepoPG) ListByHolder(ctx context.Context, holderID uuid.UUID, limit, offset int) ([]*InsurancePolicy, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM insurance_policy WHERE holder_id = $1`, holderID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+policyCols+` FROM insurance_policy WHERE holder_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, holderID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *policyRepoPG) CurrentForHolder(ctx context.Context, holderID uuid.UUID, at time.Time) (*InsurancePolicy, error) {
	p, err := r.scanPolicy(r.conn(ctx).QueryRow(ctx, `SELECT `+policyCols+` FROM insurance_policy
		WHERE holder_id = $1 AND status <> $2
		ORDER BY (status <> $3 AND effective_from <= $4 AND expires_at > $4) DESC, created_at DESC
		LIMIT 1`, holderID, PolicyCancelled, PolicyPending, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *policyRepoPG) List(ctx context.Context, limit, offset int) ([]*InsurancePolicy, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM insurance_policy`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+policyCols+` FROM insurance_policy
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *policyRepoPG) collect(rows pgx.Rows) ([]*InsurancePolicy, error) {
	var items []*InsurancePolicy
	for rows.Next() {
		p, err := r.scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

const itemCols = `code, kind, description, unit_price, inpatient_benefit, outpatient_benefit,
	diagnosis_code, procedure_code, medication_ref, ward_class, accident_type, active, created_at, updated_at`

func (r *repoPG) scanItem(row pgx.Row) (*ChargeItem, error) {
	var ci ChargeItem
	err := row.Scan(&ci.Code, &ci.Kind, &ci.Description, &ci.UnitPrice, &ci.InpatientBenefit, &ci.OutpatientBenefit,
		&ci.DiagnosisCode, &ci.ProcedureCode, &ci.MedicationRef, &ci.WardClass, &ci.AccidentType, &ci.Active,
		&ci.CreatedAt, &ci.UpdatedAt)
	return &ci, err
}

func (r *repoPG) Create(ctx context.Context, ci *ChargeItem) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO charge_item (`+itemCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		ci.Code, ci.Kind, ci.Description, ci.UnitPrice, ci.InpatientBenefit, ci.OutpatientBenefit,
		ci.DiagnosisCode, ci.ProcedureCode, ci.MedicationRef, ci.WardClass, ci.AccidentType, ci.Active,
		ci.CreatedAt, ci.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.Conflict("charge code %s already exists", ci.Code)
	}
	return err
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*ChargeItem, error) {
	ci, err := r.scanItem(r.conn(ctx).QueryRow(ctx, `SELECT `+itemCols+` FROM charge_item WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("code", code)
	}
	return ci, err
}

func (r *repoPG) Update(ctx context.Context, ci *ChargeItem) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE charge_item SET kind=$2, description=$3, unit_price=$4, inpatient_benefit=$5,
			outpatient_benefit=$6, diagnosis_code=$7, procedure_code=$8, medication_ref=$9,
			ward_class=$10, accident_type=$11, active=$12, updated_at=$13
		WHERE code = $1`,
		ci.Code, ci.Kind, ci.Description, ci.UnitPrice, ci.InpatientBenefit, ci.OutpatientBenefit,
		ci.DiagnosisCode, ci.ProcedureCode, ci.MedicationRef, ci.WardClass, ci.AccidentType, ci.Active,
		ci.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("code", ci.Code)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*ChargeItem, int, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.ActiveOnly {
		where = append(where, "active")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM charge_item`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT `+itemCols+` FROM charge_item%s
		ORDER BY code LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ChargeItem
	for rows.Next() {
		ci, err := r.scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ci)
	}
	return items, total, rows.Err()
}

// Package catalog is the registry of billable charge definitions. Bills add
// items by code and the catalog resolves each code into a claimable item.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ehr/claims/internal/domain/coverage"
)

// ChargeItem is a priced charge definition.
type ChargeItem struct {
	Code              string                 `json:"code" validate:"required,max=64"`
	Kind              coverage.ItemKind      `json:"kind" validate:"required"`
	Description       string                 `json:"description" validate:"required"`
	UnitPrice         decimal.Decimal        `json:"unit_price" validate:"amount"`
	InpatientBenefit  coverage.BenefitType   `json:"inpatient_benefit" validate:"required"`
	OutpatientBenefit coverage.BenefitType   `json:"outpatient_benefit" validate:"required"`
	DiagnosisCode     string                 `json:"diagnosis_code,omitempty"`
	ProcedureCode     string                 `json:"procedure_code,omitempty"`
	MedicationRef     string                 `json:"medication_ref,omitempty"`
	WardClass         coverage.WardClassType `json:"ward_class,omitempty"`
	AccidentType      coverage.AccidentType  `json:"accident_type,omitempty"`
	Active            bool                   `json:"active"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// NormalizeCode is the canonical form codes are stored and looked up under.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Item returns the charge as a claimable item priced at one unit.
func (ci *ChargeItem) Item() coverage.Item {
	return coverage.Item{
		Kind:              ci.Kind,
		Code:              ci.Code,
		Description:       ci.Description,
		Amount:            ci.UnitPrice,
		InpatientBenefit:  ci.InpatientBenefit,
		OutpatientBenefit: ci.OutpatientBenefit,
		Diagnosis:         ci.DiagnosisCode,
		Procedure:         ci.ProcedureCode,
		Medication:        ci.MedicationRef,
		Accident:          ci.AccidentType,
		Ward:              ci.WardClass,
	}
}

// Validate checks the definition produces a valid claimable item.
func (ci *ChargeItem) Validate() error {
	if NormalizeCode(ci.Code) == "" {
		return fmt.Errorf("code is required")
	}
	if ci.Kind == coverage.KindWardStay && ci.WardClass == "" {
		return fmt.Errorf("ward stay charges require a ward class")
	}
	return ci.Item().Validate()
}

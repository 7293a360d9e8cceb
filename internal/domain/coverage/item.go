package coverage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ehr/claims/pkg/money"
)

// ClaimableItem is anything billable that can be evaluated for insurance
// benefit eligibility. Optional codes report ok=false when absent.
type ClaimableItem interface {
	Charge() decimal.Decimal
	ResolveBenefit(inpatient bool) BenefitType
	BenefitDescription() string
	DiagnosisCode() (string, bool)
	ProcedureCode() (string, bool)
	MedicationRef() (string, bool)
	AccidentType() (AccidentType, bool)
}

// WardClassed is implemented by items billed against a ward class so that
// ward-class ceilings can be applied to them.
type WardClassed interface {
	WardClass() (WardClassType, bool)
}

// ItemKind is the billing category an item was produced by.
type ItemKind string

const (
	KindWardStay     ItemKind = "ward_stay"
	KindProcedure    ItemKind = "procedure"
	KindDiagnosis    ItemKind = "diagnosis"
	KindMedication   ItemKind = "medication"
	KindConsultation ItemKind = "consultation"
	KindFee          ItemKind = "fee"
)

var kindCategories = map[ItemKind]string{
	KindWardStay:     "Ward Charges",
	KindProcedure:    "Procedures",
	KindDiagnosis:    "Diagnostics",
	KindMedication:   "Medications",
	KindConsultation: "Consultations",
	KindFee:          "Fees",
}

func (k ItemKind) Valid() bool { _, ok := kindCategories[k]; return ok }

// Category is the bill category name used to group line totals.
func (k ItemKind) Category() string {
	if c, ok := kindCategories[k]; ok {
		return c
	}
	return "Other"
}

// Item is the value implementation of ClaimableItem. It is what bills store
// and persist; any other ClaimableItem is captured into one with Snapshot.
type Item struct {
	Kind              ItemKind        `json:"kind"`
	Code              string          `json:"code,omitempty"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"`
	InpatientBenefit  BenefitType     `json:"inpatient_benefit"`
	OutpatientBenefit BenefitType     `json:"outpatient_benefit"`
	Diagnosis         string          `json:"diagnosis_code,omitempty"`
	Procedure         string          `json:"procedure_code,omitempty"`
	Medication        string          `json:"medication_ref,omitempty"`
	Accident          AccidentType    `json:"accident_type,omitempty"`
	Ward              WardClassType   `json:"ward_class,omitempty"`
}

func (i Item) Charge() decimal.Decimal { return i.Amount }

func (i Item) ResolveBenefit(inpatient bool) BenefitType {
	if inpatient {
		return i.InpatientBenefit
	}
	return i.OutpatientBenefit
}

func (i Item) BenefitDescription() string { return i.Description }

func (i Item) DiagnosisCode() (string, bool)      { return i.Diagnosis, i.Diagnosis != "" }
func (i Item) ProcedureCode() (string, bool)      { return i.Procedure, i.Procedure != "" }
func (i Item) MedicationRef() (string, bool)      { return i.Medication, i.Medication != "" }
func (i Item) AccidentType() (AccidentType, bool) { return i.Accident, i.Accident != "" }
func (i Item) WardClass() (WardClassType, bool)   { return i.Ward, i.Ward != "" }

// Category is the bill category of the item.
func (i Item) Category() string { return i.Kind.Category() }

// WithDiagnosis returns a copy tagged with a diagnosis code.
func (i Item) WithDiagnosis(code string) Item { i.Diagnosis = code; return i }

// WithProcedure returns a copy tagged with a procedure code.
func (i Item) WithProcedure(code string) Item { i.Procedure = code; return i }

// WithAccident returns a copy marked as accident-related.
func (i Item) WithAccident(a AccidentType) Item { i.Accident = a; return i }

// Times returns a copy whose charge is multiplied by quantity.
func (i Item) Times(quantity int) Item {
	i.Amount = money.Round(i.Amount.Mul(decimal.NewFromInt(int64(quantity))))
	return i
}

// Validate checks the fields every persisted item needs.
func (i Item) Validate() error {
	if !i.Kind.Valid() {
		return fmt.Errorf("unknown item kind %q", i.Kind)
	}
	if i.Description == "" {
		return fmt.Errorf("item description is required")
	}
	if i.Amount.IsNegative() {
		return fmt.Errorf("item charge must not be negative")
	}
	if !i.InpatientBenefit.Valid() || !i.OutpatientBenefit.Valid() {
		return fmt.Errorf("item benefit types are required")
	}
	if i.Accident != "" && !i.Accident.Valid() {
		return fmt.Errorf("unknown accident type %q", i.Accident)
	}
	if i.Ward != "" && !i.Ward.Valid() {
		return fmt.Errorf("unknown ward class %q", i.Ward)
	}
	return nil
}

// NewWardStay bills days in a ward of the given class.
func NewWardStay(ward WardClassType, days int, dailyRate decimal.Decimal) Item {
	return Item{
		Kind:              KindWardStay,
		Description:       fmt.Sprintf("%s stay, %d day(s)", ward.DisplayName(), days),
		Amount:            money.Round(dailyRate.Mul(decimal.NewFromInt(int64(days)))),
		InpatientBenefit:  BenefitHospitalization,
		OutpatientBenefit: BenefitHospitalization,
		Ward:              ward,
	}
}

// NewProcedure bills a coded procedure.
func NewProcedure(code, description string, charge decimal.Decimal) Item {
	return Item{
		Kind:              KindProcedure,
		Code:              code,
		Description:       description,
		Amount:            money.Round(charge),
		InpatientBenefit:  BenefitSurgery,
		OutpatientBenefit: BenefitSurgery,
		Procedure:         code,
	}
}

// NewDiagnosisItem bills the workup for a coded diagnosis.
func NewDiagnosisItem(code, description string, charge decimal.Decimal) Item {
	return Item{
		Kind:              KindDiagnosis,
		Code:              code,
		Description:       description,
		Amount:            money.Round(charge),
		InpatientBenefit:  BenefitDiagnosticTests,
		OutpatientBenefit: BenefitDiagnosticTests,
		Diagnosis:         code,
	}
}

// NewMedication bills a dispensed medication. Drugs given during an admission
// fall under hospitalization; otherwise they are prescription drugs.
func NewMedication(ref, description string, charge decimal.Decimal) Item {
	return Item{
		Kind:              KindMedication,
		Code:              ref,
		Description:       description,
		Amount:            money.Round(charge),
		InpatientBenefit:  BenefitHospitalization,
		OutpatientBenefit: BenefitPrescriptionDrugs,
		Medication:        ref,
	}
}

// NewConsultation bills a doctor consultation or visit.
func NewConsultation(description string, charge decimal.Decimal) Item {
	return Item{
		Kind:              KindConsultation,
		Description:       description,
		Amount:            money.Round(charge),
		InpatientBenefit:  BenefitHospitalization,
		OutpatientBenefit: BenefitOutpatient,
	}
}

// NewFee bills a fixed fee under a single benefit type.
func NewFee(description string, charge decimal.Decimal, benefit BenefitType) Item {
	return Item{
		Kind:              KindFee,
		Description:       description,
		Amount:            money.Round(charge),
		InpatientBenefit:  benefit,
		OutpatientBenefit: benefit,
	}
}

type categorized interface{ Category() string }

type kinded interface{ Kind() ItemKind }

// Snapshot captures any ClaimableItem as an Item, resolving its benefit type
// for both the inpatient and outpatient case.
func Snapshot(ci ClaimableItem) Item {
	if it, ok := ci.(Item); ok {
		return it
	}
	if it, ok := ci.(*Item); ok && it != nil {
		return *it
	}
	it := Item{
		Kind:              KindFee,
		Description:       ci.BenefitDescription(),
		Amount:            ci.Charge(),
		InpatientBenefit:  ci.ResolveBenefit(true),
		OutpatientBenefit: ci.ResolveBenefit(false),
	}
	if k, ok := ci.(kinded); ok {
		it.Kind = k.Kind()
	}
	if code, ok := ci.DiagnosisCode(); ok {
		it.Diagnosis = code
	}
	if code, ok := ci.ProcedureCode(); ok {
		it.Procedure = code
	}
	if ref, ok := ci.MedicationRef(); ok {
		it.Medication = ref
	}
	if a, ok := ci.AccidentType(); ok {
		it.Accident = a
	}
	if w, ok := ci.(WardClassed); ok {
		if ward, ok := w.WardClass(); ok {
			it.Ward = ward
		}
	}
	return it
}

// CategoryOf returns the bill category for any claimable item.
func CategoryOf(ci ClaimableItem) string {
	if c, ok := ci.(categorized); ok {
		return c.Category()
	}
	return "Other"
}

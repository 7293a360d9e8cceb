package coverage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type customItem struct{}

func (customItem) Charge() decimal.Decimal { return decimal.RequireFromString("42.50") }
func (customItem) ResolveBenefit(inpatient bool) BenefitType {
	if inpatient {
		return BenefitHospitalization
	}
	return BenefitEmergency
}
func (customItem) BenefitDescription() string         { return "Ambulance" }
func (customItem) DiagnosisCode() (string, bool)      { return "", false }
func (customItem) ProcedureCode() (string, bool)      { return "A0429", true }
func (customItem) MedicationRef() (string, bool)      { return "", false }
func (customItem) AccidentType() (AccidentType, bool) { return AccidentMotorVehicle, true }

func TestSnapshot_CapturesBothBenefitResolutions(t *testing.T) {
	it := Snapshot(customItem{})
	assert.Equal(t, KindFee, it.Kind)
	assert.Equal(t, BenefitHospitalization, it.ResolveBenefit(true))
	assert.Equal(t, BenefitEmergency, it.ResolveBenefit(false))
	assert.Equal(t, "A0429", it.Procedure)
	assert.Equal(t, AccidentMotorVehicle, it.Accident)
	assert.NoError(t, it.Validate())
}

func TestNewWardStay(t *testing.T) {
	it := NewWardStay(WardSemiPrivate, 3, decimal.RequireFromString("180.25"))
	assert.True(t, decimal.RequireFromString("540.75").Equal(it.Charge()))
	ward, ok := it.WardClass()
	assert.True(t, ok)
	assert.Equal(t, WardSemiPrivate, ward)
	assert.Equal(t, "Ward Charges", it.Category())
}

func TestItem_OptionalCodesDefaultAbsent(t *testing.T) {
	it := NewConsultation("Follow-up", decimal.NewFromInt(40))
	_, ok := it.DiagnosisCode()
	assert.False(t, ok)
	_, ok = it.ProcedureCode()
	assert.False(t, ok)
	_, ok = it.MedicationRef()
	assert.False(t, ok)
	_, ok = it.AccidentType()
	assert.False(t, ok)
}

func TestItem_Times(t *testing.T) {
	it := NewMedication("PARA500", "Paracetamol", decimal.RequireFromString("0.35")).Times(3)
	assert.True(t, decimal.RequireFromString("1.05").Equal(it.Amount))
}

func TestItem_Validate(t *testing.T) {
	assert.Error(t, Item{Kind: "gift", Description: "x"}.Validate())
	assert.Error(t, NewFee("", decimal.NewFromInt(1), BenefitDental).Validate())
	assert.Error(t, NewFee("Fee", decimal.NewFromInt(-1), BenefitDental).Validate())
	assert.NoError(t, NewFee("Fee", decimal.NewFromInt(1), BenefitDental).Validate())
}

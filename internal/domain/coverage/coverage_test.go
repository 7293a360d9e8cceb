package coverage

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustExclusions(t *testing.T, b *ExclusionBuilder) ExclusionCriteria {
	t.Helper()
	e, err := b.Build()
	require.NoError(t, err)
	return e
}

func mustCoverage(t *testing.T, b *Builder) *BaseCoverage {
	t.Helper()
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func mustLimits(t *testing.T, b *LimitBuilder) CoverageLimit {
	t.Helper()
	l, err := b.Build()
	require.NoError(t, err)
	return l
}

func basicBuilder() *Builder {
	return NewBuilder().
		Cover(BenefitSurgery, BenefitHospitalization, BenefitAccident).
		Limits(NoLimits()).
		Exclusions(NoExclusions())
}

func TestIsItemCovered_RequiresCoveredBenefit(t *testing.T) {
	c := mustCoverage(t, basicBuilder())

	items := []Item{
		NewConsultation("GP visit", d("80")),                // outpatient benefit, not covered
		NewMedication("AMOX500", "Amoxicillin", d("12.40")), // prescription drugs outpatient
		NewFee("Dental cleaning", d("150"), BenefitDental),
	}
	for _, it := range items {
		assert.False(t, c.IsItemCovered(it, false), it.Description)
	}

	assert.True(t, c.IsItemCovered(NewProcedure("0DTJ4ZZ", "Appendectomy", d("4200")), false))
	// Inpatient medication resolves to hospitalization.
	assert.True(t, c.IsItemCovered(NewMedication("AMOX500", "Amoxicillin", d("12.40")), true))
}

func TestExclusionCriteria_FullMatch(t *testing.T) {
	e := mustExclusions(t, NewExclusionBuilder().Diagnosis(`E66\..*`).Procedure("0W3"))

	tests := []struct {
		name string
		item Item
		want bool
	}{
		{"family member", NewDiagnosisItem("E66.01", "Morbid obesity", d("100")), true},
		{"prefix elsewhere", NewDiagnosisItem("XE66.1", "Unrelated", d("100")), false},
		{"family root without dot", NewDiagnosisItem("E66", "Obesity", d("100")), false},
		{"exact procedure", NewProcedure("0W3", "Control bleeding", d("900")), true},
		{"longer procedure", NewProcedure("0W3P8ZZ", "Control bleeding GI", d("900")), false},
		{"no codes", NewConsultation("Visit", d("50")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Applies(tt.item, false))
		})
	}
}

func TestExclusionCriteria_CaseSensitive(t *testing.T) {
	e := mustExclusions(t, NewExclusionBuilder().Diagnosis(`Z00.*`))
	assert.True(t, e.Applies(NewDiagnosisItem("Z00.00", "Checkup", d("1")), false))
	assert.False(t, e.Applies(NewDiagnosisItem("z00.00", "Checkup", d("1")), false))
}

func TestExclusionCriteria_BenefitAndAccident(t *testing.T) {
	e := mustExclusions(t, NewExclusionBuilder().
		Benefits(BenefitPrescriptionDrugs).
		Accidents(AccidentSports))

	med := NewMedication("IBU200", "Ibuprofen", d("5"))
	assert.True(t, e.Applies(med, false), "outpatient drugs excluded")
	assert.False(t, e.Applies(med, true), "inpatient drugs resolve to hospitalization")

	surgery := NewProcedure("0QS", "Reduce fracture", d("3000"))
	assert.False(t, e.Applies(surgery, true))
	assert.True(t, e.Applies(surgery.WithAccident(AccidentSports), true))
	assert.False(t, e.Applies(surgery.WithAccident(AccidentWorkplace), true))
}

func TestExclusionBuilder_InvalidPattern(t *testing.T) {
	_, err := NewExclusionBuilder().Diagnosis("E66(").Build()
	assert.Error(t, err)
}

func TestExclusionsMakeItemUncovered(t *testing.T) {
	c := mustCoverage(t, basicBuilder().
		Exclusions(mustExclusions(t, NewExclusionBuilder().Procedure(`15.*`))))

	assert.False(t, c.IsItemCovered(NewProcedure("15780", "Dermabrasion", d("800")), true))
	assert.True(t, c.IsItemCovered(NewProcedure("47562", "Cholecystectomy", d("800")), true))
}

func TestCalculateCoinsurance_RoundsHalfUp(t *testing.T) {
	tests := []struct {
		amount, rate, want string
	}{
		{"1000", "0.10", "100.00"},
		{"333.33", "0.15", "50.00"},
		{"10.05", "0.5", "5.03"},
		{"800", "0", "0.00"},
		{"800", "1", "800.00"},
	}
	for _, tt := range tests {
		c := mustCoverage(t, basicBuilder().CoinsuranceRate(d(tt.rate)))
		got := c.CalculateCoinsurance(d(tt.amount))
		assert.True(t, d(tt.want).Equal(got), "%s * %s = %s, got %s", tt.amount, tt.rate, tt.want, got)
	}
}

func TestCalculateAccidentPayout(t *testing.T) {
	limits, err := NewLimitBuilder().
		Accident(AccidentMotorVehicle, d("20000")).
		Accident(AccidentSports, d("5000")).
		Build()
	require.NoError(t, err)

	c := mustCoverage(t, basicBuilder().
		Limits(limits).
		DeathBenefit(d("100000")).
		Exclusions(mustExclusions(t, NewExclusionBuilder().Accidents(AccidentSports))))

	assert.True(t, d("20000").Equal(c.CalculateAccidentPayout(AccidentMotorVehicle)))
	assert.True(t, c.CalculateAccidentPayout(AccidentSports).IsZero(), "excluded")
	assert.True(t, c.CalculateAccidentPayout(AccidentTravel).IsZero(), "no limit configured")
	assert.True(t, d("100000").Equal(c.CalculateAccidentPayout(AccidentDeath)))
}

func TestBuilder_RequiredFields(t *testing.T) {
	_, err := NewBuilder().Limits(NoLimits()).Exclusions(NoExclusions()).Build()
	assert.ErrorContains(t, err, "covered benefit")

	_, err = NewBuilder().Cover(BenefitSurgery).Exclusions(NoExclusions()).Build()
	assert.ErrorContains(t, err, "limits")

	_, err = NewBuilder().Cover(BenefitSurgery).Limits(NoLimits()).Build()
	assert.ErrorContains(t, err, "exclusions")

	_, err = basicBuilder().CoinsuranceRate(d("1.2")).Build()
	assert.ErrorContains(t, err, "coinsurance rate")

	_, err = basicBuilder().Deductible(d("-1")).Build()
	assert.ErrorContains(t, err, "deductible")

	_, err = basicBuilder().Cover("TELEPORTATION").Build()
	assert.Error(t, err)
}

func TestLimitBuilder(t *testing.T) {
	_, err := NewLimitBuilder().Annual(d("-5")).Build()
	assert.ErrorContains(t, err, "annual")

	l, err := NewLimitBuilder().
		Annual(d("50000")).
		Benefit(BenefitSurgery, d("10000")).
		WardClass(WardPrivate, d("400")).
		Build()
	require.NoError(t, err)

	annual, ok := l.Annual()
	assert.True(t, ok)
	assert.True(t, d("50000").Equal(annual))
	_, ok = l.Lifetime()
	assert.False(t, ok, "absent lifetime is unlimited")
	_, ok = l.BenefitLimit(BenefitMaternity)
	assert.False(t, ok)
	w, ok := l.WardClassLimit(WardPrivate)
	assert.True(t, ok)
	assert.True(t, d("400").Equal(w))
}

func TestMergeLimits_TakesTighterCeiling(t *testing.T) {
	a, err := NewLimitBuilder().
		Annual(d("100000")).
		Benefit(BenefitSurgery, d("20000")).
		Benefit(BenefitMaternity, d("5000")).
		Build()
	require.NoError(t, err)
	b, err := NewLimitBuilder().
		Annual(d("30000")).
		Lifetime(d("500000")).
		Benefit(BenefitSurgery, d("15000")).
		WardClass(WardICU, d("2000")).
		Build()
	require.NoError(t, err)

	m := MergeLimits(a, b)
	annual, _ := m.Annual()
	assert.True(t, d("30000").Equal(annual))
	lifetime, ok := m.Lifetime()
	assert.True(t, ok)
	assert.True(t, d("500000").Equal(lifetime))
	surgery, _ := m.BenefitLimit(BenefitSurgery)
	assert.True(t, d("15000").Equal(surgery))
	maternity, ok := m.BenefitLimit(BenefitMaternity)
	assert.True(t, ok, "one-sided ceiling survives")
	assert.True(t, d("5000").Equal(maternity))
	icu, ok := m.WardClassLimit(WardICU)
	assert.True(t, ok)
	assert.True(t, d("2000").Equal(icu))
}

func TestCompositeCoverage(t *testing.T) {
	gov := mustCoverage(t, NewBuilder().
		Cover(BenefitHospitalization, BenefitSurgery).
		Deductible(d("500")).
		CoinsuranceRate(d("0.20")).
		DeathBenefit(d("10000")).
		Limits(NoLimits()).
		Exclusions(mustExclusions(t, NewExclusionBuilder().Procedure(`15.*`))))
	sup := mustCoverage(t, NewBuilder().
		Cover(BenefitOutpatient, BenefitSurgery).
		Deductible(d("100")).
		CoinsuranceRate(d("0.50")).
		DeathBenefit(d("50000")).
		Limits(NoLimits()).
		Exclusions(NoExclusions()))

	c, err := NewComposite(gov, sup)
	require.NoError(t, err)

	assert.True(t, c.IsItemCovered(NewConsultation("GP", d("60")), false), "covered by supplementary only")
	assert.True(t, c.IsItemCovered(NewProcedure("15780", "Dermabrasion", d("800")), true), "excluded by one, covered by the other")
	assert.False(t, c.IsItemCovered(NewFee("Glasses", d("300"), BenefitVision), false))

	assert.True(t, d("100").Equal(c.Deductible()))
	assert.True(t, d("0.1").Equal(c.CoinsuranceRate()))
	assert.True(t, d("50.00").Equal(c.CalculateCoinsurance(d("500"))))
	assert.True(t, d("50000").Equal(c.CalculateAccidentPayout(AccidentDeath)))
	assert.Len(t, c.CoveredBenefits(), 3)

	motorA := mustCoverage(t, NewBuilder().Cover(BenefitSurgery).
		Limits(mustLimits(t, NewLimitBuilder().Accident(AccidentMotorVehicle, d("500")))).
		Exclusions(NoExclusions()))
	motorB := mustCoverage(t, NewBuilder().Cover(BenefitSurgery).
		Limits(mustLimits(t, NewLimitBuilder().Accident(AccidentMotorVehicle, d("2000")).Accident(AccidentTravel, d("700")))).
		Exclusions(NoExclusions()))
	motor, err := NewComposite(motorA, motorB)
	require.NoError(t, err)
	assert.True(t, d("500").Equal(motor.CalculateAccidentPayout(AccidentMotorVehicle)), "tighter ceiling")
	assert.True(t, d("700").Equal(motor.CalculateAccidentPayout(AccidentTravel)), "one-sided ceiling")

	_, err = NewComposite(gov, nil)
	assert.Error(t, err)
}

func TestPlan_BuildAndRoundTrip(t *testing.T) {
	raw := `{
		"deductible": "200",
		"coinsurance_rate": "0.1",
		"death_benefit": "25000",
		"covered_benefits": ["SURGERY", "HOSPITALIZATION"],
		"exclusions": {"diagnosis_patterns": ["E66\\..*"], "accident_types": ["SPORTS"]},
		"limits": {"annual": "50000", "benefit": {"SURGERY": "10000"}, "ward_class": {"PRIVATE": "350"}},
		"supplementary": {
			"covered_benefits": ["OUTPATIENT"],
			"coinsurance_rate": "0.5",
			"limits": {"annual": "20000"}
		}
	}`
	var p Plan
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	cov, err := p.Build()
	require.NoError(t, err)
	comp, ok := cov.(*CompositeCoverage)
	require.True(t, ok, "supplementary plan builds a composite")
	annual, _ := comp.Limits().Annual()
	assert.True(t, d("20000").Equal(annual))

	back, ok := PlanOf(cov)
	require.True(t, ok)
	require.NotNil(t, back.Supplementary)
	assert.Equal(t, []string{`E66\..*`}, back.Exclusions.DiagnosisPatterns)
	assert.Equal(t, []BenefitType{BenefitOutpatient}, back.Supplementary.CoveredBenefits)

	rebuilt, err := back.Build()
	require.NoError(t, err)
	assert.True(t, rebuilt.Deductible().Equal(cov.Deductible()))
}

func TestPlan_RejectsUnknownEnums(t *testing.T) {
	var p Plan
	err := json.Unmarshal([]byte(`{"covered_benefits":["TIME_TRAVEL"]}`), &p)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"covered_benefits":["SURGERY"],"limits":{"ward_class":{"PENTHOUSE":"1"}}}`), &p)
	assert.Error(t, err)
}

func TestPlan_EmptyCoverageFails(t *testing.T) {
	_, err := Plan{}.Build()
	assert.Error(t, err)
}

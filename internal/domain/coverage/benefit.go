package coverage

import (
	"fmt"
	"sort"
)

// BenefitType is the category of medical service used to match coverage rules.
type BenefitType string

const (
	BenefitHospitalization   BenefitType = "HOSPITALIZATION"
	BenefitSurgery           BenefitType = "SURGERY"
	BenefitOutpatient        BenefitType = "OUTPATIENT"
	BenefitEmergency         BenefitType = "EMERGENCY"
	BenefitMaternity         BenefitType = "MATERNITY"
	BenefitPrescriptionDrugs BenefitType = "PRESCRIPTION_DRUGS"
	BenefitDiagnosticTests   BenefitType = "DIAGNOSTIC_TESTS"
	BenefitPreventiveCare    BenefitType = "PREVENTIVE_CARE"
	BenefitRehabilitation    BenefitType = "REHABILITATION"
	BenefitMentalHealth      BenefitType = "MENTAL_HEALTH"
	BenefitDental            BenefitType = "DENTAL"
	BenefitVision            BenefitType = "VISION"
	BenefitAccident          BenefitType = "ACCIDENT"
	BenefitCriticalIllness   BenefitType = "CRITICAL_ILLNESS"
)

var benefitNames = map[BenefitType]string{
	BenefitHospitalization:   "Hospitalization",
	BenefitSurgery:           "Surgery",
	BenefitOutpatient:        "Outpatient Care",
	BenefitEmergency:         "Emergency Care",
	BenefitMaternity:         "Maternity",
	BenefitPrescriptionDrugs: "Prescription Drugs",
	BenefitDiagnosticTests:   "Diagnostic Tests",
	BenefitPreventiveCare:    "Preventive Care",
	BenefitRehabilitation:    "Rehabilitation",
	BenefitMentalHealth:      "Mental Health",
	BenefitDental:            "Dental",
	BenefitVision:            "Vision",
	BenefitAccident:          "Accident",
	BenefitCriticalIllness:   "Critical Illness",
}

// Valid reports whether b is a known benefit type.
func (b BenefitType) Valid() bool { _, ok := benefitNames[b]; return ok }

// DisplayName returns the human-readable benefit name.
func (b BenefitType) DisplayName() string { return benefitNames[b] }

func (b *BenefitType) UnmarshalText(text []byte) error {
	v := BenefitType(text)
	if !v.Valid() {
		return fmt.Errorf("unknown benefit type %q", string(text))
	}
	*b = v
	return nil
}

// WardClassType is the accommodation class of a ward stay.
type WardClassType string

const (
	WardGeneral     WardClassType = "GENERAL"
	WardSemiPrivate WardClassType = "SEMI_PRIVATE"
	WardPrivate     WardClassType = "PRIVATE"
	WardICU         WardClassType = "ICU"
	WardIsolation   WardClassType = "ISOLATION"
)

var wardNames = map[WardClassType]string{
	WardGeneral:     "General Ward",
	WardSemiPrivate: "Semi-Private Room",
	WardPrivate:     "Private Room",
	WardICU:         "Intensive Care Unit",
	WardIsolation:   "Isolation Room",
}

func (w WardClassType) Valid() bool         { _, ok := wardNames[w]; return ok }
func (w WardClassType) DisplayName() string { return wardNames[w] }

func (w *WardClassType) UnmarshalText(text []byte) error {
	v := WardClassType(text)
	if !v.Valid() {
		return fmt.Errorf("unknown ward class %q", string(text))
	}
	*w = v
	return nil
}

// AccidentType classifies accident-related items.
type AccidentType string

const (
	AccidentMotorVehicle        AccidentType = "MOTOR_VEHICLE"
	AccidentWorkplace           AccidentType = "WORKPLACE"
	AccidentSports              AccidentType = "SPORTS"
	AccidentHousehold           AccidentType = "HOUSEHOLD"
	AccidentTravel              AccidentType = "TRAVEL"
	AccidentPermanentDisability AccidentType = "PERMANENT_DISABILITY"
	AccidentDeath               AccidentType = "ACCIDENTAL_DEATH"
)

var accidentNames = map[AccidentType]string{
	AccidentMotorVehicle:        "Motor Vehicle Accident",
	AccidentWorkplace:           "Workplace Accident",
	AccidentSports:              "Sports Injury",
	AccidentHousehold:           "Household Accident",
	AccidentTravel:              "Travel Accident",
	AccidentPermanentDisability: "Permanent Disability",
	AccidentDeath:               "Accidental Death",
}

func (a AccidentType) Valid() bool         { _, ok := accidentNames[a]; return ok }
func (a AccidentType) DisplayName() string { return accidentNames[a] }

// IsDeath reports whether the accident is death-classified, which pays the
// death benefit instead of the per-accident ceiling.
func (a AccidentType) IsDeath() bool { return a == AccidentDeath }

func (a *AccidentType) UnmarshalText(text []byte) error {
	v := AccidentType(text)
	if !v.Valid() {
		return fmt.Errorf("unknown accident type %q", string(text))
	}
	*a = v
	return nil
}

// BenefitSet is an immutable-by-convention set of benefit types.
type BenefitSet map[BenefitType]struct{}

func NewBenefitSet(types ...BenefitType) BenefitSet {
	s := make(BenefitSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

func (s BenefitSet) Contains(b BenefitType) bool {
	_, ok := s[b]
	return ok
}

// Sorted returns the members in a stable order.
func (s BenefitSet) Sorted() []BenefitType {
	out := make([]BenefitType, 0, len(s))
	for b := range s {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

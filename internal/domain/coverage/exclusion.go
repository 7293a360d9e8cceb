package coverage

import (
	"fmt"
	"regexp"
)

// ExclusionCriteria lists what a coverage refuses to pay for. Diagnosis and
// procedure patterns are regular expressions matched against the whole code,
// so "E66\..*" excludes the E66 family but not "XE66.1".
type ExclusionCriteria struct {
	diagnosisPatterns []string
	procedurePatterns []string
	diagnosis         []*regexp.Regexp
	procedure         []*regexp.Regexp
	benefits          BenefitSet
	accidents         map[AccidentType]struct{}
}

// NoExclusions returns criteria that exclude nothing.
func NoExclusions() ExclusionCriteria {
	return ExclusionCriteria{benefits: BenefitSet{}, accidents: map[AccidentType]struct{}{}}
}

// Applies reports whether the item is excluded. Absent codes never match a
// pattern, and the accident set is only consulted for accident-related items.
func (e ExclusionCriteria) Applies(item ClaimableItem, inpatient bool) bool {
	if code, ok := item.DiagnosisCode(); ok && matchAny(e.diagnosis, code) {
		return true
	}
	if code, ok := item.ProcedureCode(); ok && matchAny(e.procedure, code) {
		return true
	}
	if e.benefits.Contains(item.ResolveBenefit(inpatient)) {
		return true
	}
	if a, ok := item.AccidentType(); ok && e.ExcludesAccident(a) {
		return true
	}
	return false
}

// ExcludesAccident reports whether the accident type is excluded outright.
func (e ExclusionCriteria) ExcludesAccident(a AccidentType) bool {
	_, ok := e.accidents[a]
	return ok
}

func (e ExclusionCriteria) ExcludesBenefit(b BenefitType) bool { return e.benefits.Contains(b) }

func (e ExclusionCriteria) DiagnosisPatterns() []string {
	return append([]string(nil), e.diagnosisPatterns...)
}

func (e ExclusionCriteria) ProcedurePatterns() []string {
	return append([]string(nil), e.procedurePatterns...)
}

func (e ExclusionCriteria) Benefits() []BenefitType { return e.benefits.Sorted() }

func (e ExclusionCriteria) Accidents() []AccidentType {
	out := make([]AccidentType, 0, len(e.accidents))
	for a := range e.accidents {
		out = append(out, a)
	}
	sortAccidents(out)
	return out
}

func matchAny(res []*regexp.Regexp, code string) bool {
	for _, re := range res {
		if re.MatchString(code) {
			return true
		}
	}
	return false
}

// ExclusionBuilder accumulates exclusion rules. Patterns are compiled at Build.
type ExclusionBuilder struct {
	diagnosis []string
	procedure []string
	benefits  []BenefitType
	accidents []AccidentType
}

func NewExclusionBuilder() *ExclusionBuilder { return &ExclusionBuilder{} }

func (b *ExclusionBuilder) Diagnosis(patterns ...string) *ExclusionBuilder {
	b.diagnosis = append(b.diagnosis, patterns...)
	return b
}

func (b *ExclusionBuilder) Procedure(patterns ...string) *ExclusionBuilder {
	b.procedure = append(b.procedure, patterns...)
	return b
}

func (b *ExclusionBuilder) Benefits(types ...BenefitType) *ExclusionBuilder {
	b.benefits = append(b.benefits, types...)
	return b
}

func (b *ExclusionBuilder) Accidents(types ...AccidentType) *ExclusionBuilder {
	b.accidents = append(b.accidents, types...)
	return b
}

func (b *ExclusionBuilder) Build() (ExclusionCriteria, error) {
	e := NoExclusions()
	var err error
	if e.diagnosis, err = compileAll(b.diagnosis); err != nil {
		return ExclusionCriteria{}, fmt.Errorf("diagnosis exclusion: %w", err)
	}
	if e.procedure, err = compileAll(b.procedure); err != nil {
		return ExclusionCriteria{}, fmt.Errorf("procedure exclusion: %w", err)
	}
	e.diagnosisPatterns = append([]string(nil), b.diagnosis...)
	e.procedurePatterns = append([]string(nil), b.procedure...)
	for _, t := range b.benefits {
		if !t.Valid() {
			return ExclusionCriteria{}, fmt.Errorf("benefit exclusion: unknown benefit type %q", t)
		}
		e.benefits[t] = struct{}{}
	}
	for _, a := range b.accidents {
		if !a.Valid() {
			return ExclusionCriteria{}, fmt.Errorf("accident exclusion: unknown accident type %q", a)
		}
		e.accidents[a] = struct{}{}
	}
	return e, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)$`)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Package mec computes WHO Medical Eligibility Criteria categories for the
// supported contraceptive methods from age and smoking status.
package mec

import (
	"strings"

	"github.com/thebtf/contraceptiq/pkg/models"
)

// Age limits used by the rules.
const (
	adolescentAge     = 18
	olderSmokerAge    = 35
	perimenopausalAge = 40
	heavySmokerPerDay = 15
)

// DefaultAge is assumed when a client's age is not given.
const DefaultAge = 25

// Input is what the rules need to know about a client.
type Input struct {
	SmokingStatus    models.SmokingStatus `json:"smoking_status,omitempty"`
	Age              int                  `json:"age"`
	CigarettesPerDay int                  `json:"cigarettes_per_day,omitempty"`
}

// Calculate returns the category for every method. It is total: any input,
// including an empty smoking status, yields a full result.
func Calculate(in Input) models.MECResult {
	status := in.SmokingStatus
	if status == "" {
		status = models.SmokingNever
	}

	iud := models.MECNoRestriction
	if in.Age < adolescentAge {
		iud = models.MECAdvantages
	}

	dmpa := models.MECNoRestriction
	if in.Age < adolescentAge || in.Age >= perimenopausalAge {
		dmpa = models.MECAdvantages
	}

	return models.MECResult{
		CuIUD:   iud,
		LNGIUD:  iud,
		Implant: models.MECNoRestriction,
		DMPA:    dmpa,
		CHC:     combinedHormonal(in.Age, status, in.CigarettesPerDay),
		POP:     models.MECNoRestriction,
	}
}

// combinedHormonal applies the age rule, then lets current smoking override it.
func combinedHormonal(age int, status models.SmokingStatus, perDay int) models.MECCategory {
	category := models.MECNoRestriction
	if age >= perimenopausalAge {
		category = models.MECAdvantages
	}

	if !status.IsCurrentSmoker() {
		return category
	}
	if age < olderSmokerAge {
		return models.MECAdvantages
	}
	if perDay >= heavySmokerPerDay {
		return models.MECUnacceptable
	}
	return models.MECRisksOutweigh
}

// ParseSmokingStatus maps either a rules value ("current_daily") or an intake
// form option ("Current daily") to a SmokingStatus. Unknown text is never.
func ParseSmokingStatus(s string) models.SmokingStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "former", "former smoker":
		return models.SmokingFormer
	case "occasional", "occasional smoker":
		return models.SmokingOccasional
	case "current_daily", "current daily", "current daily smoker":
		return models.SmokingCurrentDaily
	default:
		return models.SmokingNever
	}
}

// InputFromAnswers derives rule input from intake answers. A missing or
// unreadable age uses the intake default.
func InputFromAnswers(answers models.PatientAnswers) Input {
	in := Input{Age: DefaultAge, SmokingStatus: models.SmokingNever}

	if age, ok := answers.Number(models.KeyAge); ok && age >= 0 {
		in.Age = int(age)
	}
	if v, ok := answers.Get(models.KeySmokeCigar); ok {
		in.SmokingStatus = smokingFromAnswer(v)
	}
	if n, ok := answers.Number(models.KeyCigarettesPerDay); ok && n > 0 {
		in.CigarettesPerDay = int(n)
	}
	return in
}

// smokingFromAnswer also accepts the encoded SMOKE_CIGAR codes 0..3.
func smokingFromAnswer(v string) models.SmokingStatus {
	switch strings.TrimSpace(v) {
	case "1":
		return models.SmokingFormer
	case "2":
		return models.SmokingOccasional
	case "3":
		return models.SmokingCurrentDaily
	default:
		return ParseSmokingStatus(v)
	}
}

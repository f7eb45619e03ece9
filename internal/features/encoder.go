// Package features turns intake answers into the numeric vector the risk models consume.
package features

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/thebtf/contraceptiq/pkg/models"
)

// FeatureCount is the number of model inputs.
const FeatureCount = 25

// feature describes how one intake answer becomes one model input.
// A nil table means the answer is passed through as a number.
type feature struct {
	table map[string]float32
	key   models.QuestionKey
	def   float32
	min   float32
	max   float32
}

// featureSpecs is in training order. Changing the order invalidates the models.
var featureSpecs = [FeatureCount]feature{
	{key: models.KeyAge, def: 25, min: 10, max: 100},
	{key: models.KeyRegion, table: regionCodes, def: 1, min: 1, max: 17},
	{key: models.KeyEducLevel, table: educationCodes, def: 2, min: 0, max: 6},
	{key: models.KeyReligion, table: religionCodes, def: 1, min: 1, max: 7},
	{key: models.KeyEthnicity, table: ethnicityCodes, def: 1, min: 1, max: 3},
	{key: models.KeyMaritalStatus, table: maritalCodes, def: 0, min: 0, max: 5},
	{key: models.KeyResidingWithPartner, table: yesNoCodes, def: 0, min: 0, max: 1},
	{key: models.KeyHouseholdHeadSex, table: householdHeadSexCodes, def: 1, min: 1, max: 4},
	{key: models.KeyOccupation, table: occupationCodes, def: 0, min: 0, max: 3},
	{key: models.KeyHusbandsEduc, table: educationCodes, def: 2, min: 0, max: 6},
	{key: models.KeyHusbandAge, def: 30, min: 10, max: 100},
	{key: models.KeyPartnerEduc, table: educationCodes, def: 2, min: 0, max: 6},
	{key: models.KeySmokeCigar, table: smokingCodes, def: 0, min: 0, max: 3},
	{key: models.KeyParity, def: 0, min: 0, max: 20},
	{key: models.KeyDesireForMoreChildren, table: desireCodes, def: 0, min: 0, max: 2},
	{key: models.KeyWantLastChild, table: desireCodes, def: 0, min: 0, max: 2},
	{key: models.KeyWantLastPregnancy, table: desireCodes, def: 0, min: 0, max: 2},
	{key: models.KeyContraceptiveMethod, def: 0, min: 0, max: 99},
	{key: models.KeyMonthUseCurrentMethod, def: 0, min: 0, max: 600},
	{key: models.KeyPatternUse, def: 0, min: 0, max: 99},
	{key: models.KeyToldAboutSideEffects, def: 0, min: 0, max: 1},
	{key: models.KeyLastSourceType, def: 0, min: 0, max: 99},
	{key: models.KeyLastMethodDiscontinued, table: lastMethodCodes, def: 0, min: 0, max: 8},
	{key: models.KeyReasonDiscontinued, table: reasonCodes, def: 0, min: 0, max: 3},
	{key: models.KeyHusbandDesireForMoreChildren, table: desireCodes, def: 0, min: 0, max: 2},
}

// FeatureOrder lists the model input names in training order.
var FeatureOrder = func() []models.QuestionKey {
	keys := make([]models.QuestionKey, FeatureCount)
	for i, f := range featureSpecs {
		keys[i] = f.key
	}
	return keys
}()

// RequiredKeys are the answers a guest intake must provide before assessment.
var RequiredKeys = []models.QuestionKey{
	models.KeyAge,
	models.KeyRegion,
	models.KeyEducLevel,
	models.KeyReligion,
	models.KeyEthnicity,
	models.KeyMaritalStatus,
	models.KeySmokeCigar,
	models.KeyParity,
}

// Default returns the documented default for key and whether key is a model input.
func Default(key models.QuestionKey) (float32, bool) {
	for _, f := range featureSpecs {
		if f.key == key {
			return f.def, true
		}
	}
	return 0, false
}

// Encode converts answers into a feature vector. It never fails: answers that
// are missing or cannot be mapped take the documented default for their key.
func Encode(answers models.PatientAnswers) models.FeatureVector {
	vec, _ := EncodeDetailed(answers)
	return vec
}

// EncodeDetailed is Encode that also reports which keys fell back to defaults.
func EncodeDetailed(answers models.PatientAnswers) (models.FeatureVector, []models.QuestionKey) {
	vec := make(models.FeatureVector, FeatureCount)
	var defaulted []models.QuestionKey

	for i, f := range featureSpecs {
		v, ok := f.encode(answers)
		if !ok {
			v = f.def
			defaulted = append(defaulted, f.key)
		}
		vec[i] = v
	}
	return vec, defaulted
}

// encode maps a single answer. The boolean is false when the default must be used.
func (f feature) encode(answers models.PatientAnswers) (float32, bool) {
	raw, ok := answers.Get(f.key)
	if !ok {
		return 0, false
	}

	if f.table == nil {
		n, ok := parseFinite(raw)
		if !ok {
			return 0, false
		}
		return float32(n), true
	}

	if code, ok := f.table[raw]; ok {
		return code, true
	}
	for label, code := range f.table {
		if strings.EqualFold(label, raw) {
			return code, true
		}
	}
	// Already-encoded answers are accepted when they name a real code.
	if n, ok := parseFinite(raw); ok {
		for _, code := range f.table {
			if float64(code) == n {
				return code, true
			}
		}
	}
	return 0, false
}

func parseFinite(s string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// FieldError describes one invalid vector position.
type FieldError struct {
	Feature models.QuestionKey `json:"feature"`
	Reason  string             `json:"reason"`
	Index   int                `json:"index"`
	Value   float32            `json:"value"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s[%d]=%v: %s", e.Feature, e.Index, e.Value, e.Reason)
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Errors []FieldError `json:"errors,omitempty"`
	Valid  bool         `json:"valid"`
}

// Error joins the field errors into one message.
func (r ValidationResult) Error() string {
	if r.Valid {
		return ""
	}
	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}

// Validate checks the vector length and that every value is finite and within
// the bounds of its feature. It never panics.
func Validate(vec models.FeatureVector) ValidationResult {
	if len(vec) != FeatureCount {
		return ValidationResult{Errors: []FieldError{{
			Index:  len(vec),
			Reason: fmt.Sprintf("expected %d features, got %d", FeatureCount, len(vec)),
		}}}
	}

	var errs []FieldError
	for i, f := range featureSpecs {
		v := vec[i]
		switch {
		case math.IsNaN(float64(v)) || math.IsInf(float64(v), 0):
			errs = append(errs, FieldError{Feature: f.key, Index: i, Value: v, Reason: "not a finite number"})
		case v < f.min || v > f.max:
			errs = append(errs, FieldError{
				Feature: f.key,
				Index:   i,
				Value:   v,
				Reason:  fmt.Sprintf("outside [%v, %v]", f.min, f.max),
			})
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// MissingRequired lists the required keys absent from answers, in RequiredKeys order.
func MissingRequired(answers models.PatientAnswers) []models.QuestionKey {
	var missing []models.QuestionKey
	for _, k := range RequiredKeys {
		if _, ok := answers.Get(k); !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// Categories groups the model inputs the way the intake form presents them.
func Categories() map[string][]models.QuestionKey {
	return map[string][]models.QuestionKey{
		"demographic":    append([]models.QuestionKey(nil), FeatureOrder[:13]...),
		"fertility":      append([]models.QuestionKey(nil), FeatureOrder[13:17]...),
		"method_history": append([]models.QuestionKey(nil), FeatureOrder[17:]...),
	}
}

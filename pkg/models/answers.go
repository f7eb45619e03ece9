// Package models contains domain models for contraceptiq.
package models

import (
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// QuestionKey identifies one intake question.
type QuestionKey string

// Intake question keys. Every model feature has a key of the same name.
const (
	KeyAge                          QuestionKey = "AGE"
	KeyRegion                       QuestionKey = "REGION"
	KeyEducLevel                    QuestionKey = "EDUC_LEVEL"
	KeyReligion                     QuestionKey = "RELIGION"
	KeyEthnicity                    QuestionKey = "ETHNICITY"
	KeyMaritalStatus                QuestionKey = "MARITAL_STATUS"
	KeyResidingWithPartner          QuestionKey = "RESIDING_WITH_PARTNER"
	KeyHouseholdHeadSex             QuestionKey = "HOUSEHOLD_HEAD_SEX"
	KeyOccupation                   QuestionKey = "OCCUPATION"
	KeyHusbandsEduc                 QuestionKey = "HUSBANDS_EDUC"
	KeyHusbandAge                   QuestionKey = "HUSBAND_AGE"
	KeyPartnerEduc                  QuestionKey = "PARTNER_EDUC"
	KeySmokeCigar                   QuestionKey = "SMOKE_CIGAR"
	KeyParity                       QuestionKey = "PARITY"
	KeyDesireForMoreChildren        QuestionKey = "DESIRE_FOR_MORE_CHILDREN"
	KeyWantLastChild                QuestionKey = "WANT_LAST_CHILD"
	KeyWantLastPregnancy            QuestionKey = "WANT_LAST_PREGNANCY"
	KeyContraceptiveMethod          QuestionKey = "CONTRACEPTIVE_METHOD"
	KeyMonthUseCurrentMethod        QuestionKey = "MONTH_USE_CURRENT_METHOD"
	KeyPatternUse                   QuestionKey = "PATTERN_USE"
	KeyToldAboutSideEffects         QuestionKey = "TOLD_ABT_SIDE_EFFECTS"
	KeyLastSourceType               QuestionKey = "LAST_SOURCE_TYPE"
	KeyLastMethodDiscontinued       QuestionKey = "LAST_METHOD_DISCONTINUED"
	KeyReasonDiscontinued           QuestionKey = "REASON_DISCONTINUED"
	KeyHusbandDesireForMoreChildren QuestionKey = "HSBND_DESIRE_FOR_MORE_CHILDREN"

	// KeyCigarettesPerDay feeds the eligibility rules only; it is not a model input.
	KeyCigarettesPerDay QuestionKey = "CIGARETTES_PER_DAY"
)

// keyAliases maps alternate spellings used by older intake forms to canonical keys.
var keyAliases = map[string]QuestionKey{
	"HUSBAND_EDUC_LEVEL": KeyHusbandsEduc,
}

var knownKeys = map[QuestionKey]bool{
	KeyAge: true, KeyRegion: true, KeyEducLevel: true, KeyReligion: true,
	KeyEthnicity: true, KeyMaritalStatus: true, KeyResidingWithPartner: true,
	KeyHouseholdHeadSex: true, KeyOccupation: true, KeyHusbandsEduc: true,
	KeyHusbandAge: true, KeyPartnerEduc: true, KeySmokeCigar: true, KeyParity: true,
	KeyDesireForMoreChildren: true, KeyWantLastChild: true, KeyWantLastPregnancy: true,
	KeyContraceptiveMethod: true, KeyMonthUseCurrentMethod: true, KeyPatternUse: true,
	KeyToldAboutSideEffects: true, KeyLastSourceType: true,
	KeyLastMethodDiscontinued: true, KeyReasonDiscontinued: true,
	KeyHusbandDesireForMoreChildren: true, KeyCigarettesPerDay: true,
}

// IsKnownKey reports whether k is a recognized intake question.
func IsKnownKey(k QuestionKey) bool {
	return knownKeys[k]
}

// CanonicalKey resolves aliases and reports whether the key is recognized.
func CanonicalKey(raw string) (QuestionKey, bool) {
	raw = strings.TrimSpace(raw)
	if alias, ok := keyAliases[raw]; ok {
		return alias, true
	}
	k := QuestionKey(raw)
	return k, knownKeys[k]
}

// PatientAnswers holds intake responses keyed by question.
// Values are kept as text; numeric answers use their shortest decimal form.
type PatientAnswers map[QuestionKey]string

// ParseAnswers converts a loosely typed payload into PatientAnswers.
// Unrecognized keys and values of unsupported types are dropped and
// returned in sorted order so callers can log them.
//
// A non-empty value under an alias key takes precedence over the canonical
// key; an empty alias value never clears the canonical answer.
func ParseAnswers(raw map[string]any) (PatientAnswers, []string) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	answers := make(PatientAnswers, len(raw))
	var ignored []string
	var aliased []string

	for _, name := range names {
		key, ok := CanonicalKey(name)
		if !ok {
			ignored = append(ignored, name)
			continue
		}
		text, ok := answerText(raw[name])
		if !ok {
			ignored = append(ignored, name)
			continue
		}
		if _, isAlias := keyAliases[strings.TrimSpace(name)]; isAlias {
			aliased = append(aliased, name)
			continue
		}
		answers[key] = text
	}

	for _, name := range aliased {
		text, _ := answerText(raw[name])
		if text == "" {
			continue
		}
		key, _ := CanonicalKey(name)
		answers[key] = text
	}

	return answers, ignored
}

// answerText renders a decoded JSON value as answer text.
func answerText(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case json.Number:
		return val.String(), true
	case bool:
		if val {
			return "Yes", true
		}
		return "No", true
	default:
		return "", false
	}
}

// Get returns the trimmed answer for k and whether it is present and non-empty.
func (a PatientAnswers) Get(k QuestionKey) (string, bool) {
	v, ok := a[k]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Number returns the answer for k parsed as a number.
func (a PatientAnswers) Number(k QuestionKey) (float64, bool) {
	v, ok := a.Get(k)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Merge returns a copy of a with every answer in overlay applied on top.
// Clinician-entered data overlays what the patient submitted.
func (a PatientAnswers) Merge(overlay PatientAnswers) PatientAnswers {
	out := make(PatientAnswers, len(a)+len(overlay))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range overlay {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// Canonical returns a stable serialization: keys sorted, "KEY=value" joined by "&".
// Two answer sets with equal content always produce the same string.
func (a PatientAnswers) Canonical() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.TrimSpace(a[QuestionKey(k)]))
	}
	return b.String()
}

// Payload renders the answers for the remote inference endpoint.
// Numeric answers are sent as JSON numbers, everything else as strings.
func (a PatientAnswers) Payload() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		v = strings.TrimSpace(v)
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[string(k)] = f
			continue
		}
		out[string(k)] = v
	}
	return out
}

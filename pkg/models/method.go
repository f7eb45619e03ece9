package models

// MethodID identifies a contraceptive method.
type MethodID string

const (
	MethodCuIUD   MethodID = "Cu-IUD"
	MethodLNGIUD  MethodID = "LNG-IUD"
	MethodImplant MethodID = "Implant"
	MethodDMPA    MethodID = "DMPA"
	MethodCHC     MethodID = "CHC"
	MethodPOP     MethodID = "POP"
)

// Methods lists every supported method.
var Methods = []MethodID{
	MethodCuIUD, MethodLNGIUD, MethodImplant, MethodDMPA, MethodCHC, MethodPOP,
}

// MECCategory is a WHO Medical Eligibility Criteria category.
// 1 is no restriction, 4 is unacceptable health risk.
type MECCategory int

const (
	MECNoRestriction MECCategory = 1
	MECAdvantages    MECCategory = 2
	MECRisksOutweigh MECCategory = 3
	MECUnacceptable  MECCategory = 4
)

// Valid reports whether c lies in 1..4.
func (c MECCategory) Valid() bool {
	return c >= MECNoRestriction && c <= MECUnacceptable
}

// SmokingStatus is the smoking status used by the eligibility rules.
type SmokingStatus string

const (
	SmokingNever        SmokingStatus = "never"
	SmokingFormer       SmokingStatus = "former"
	SmokingOccasional   SmokingStatus = "occasional"
	SmokingCurrentDaily SmokingStatus = "current_daily"
)

// IsCurrentSmoker reports whether the status counts as current smoking.
func (s SmokingStatus) IsCurrentSmoker() bool {
	return s == SmokingCurrentDaily || s == SmokingOccasional
}

// MECResult holds one category per method. All six fields are always set.
type MECResult struct {
	CuIUD   MECCategory `json:"Cu-IUD"`
	LNGIUD  MECCategory `json:"LNG-IUD"`
	Implant MECCategory `json:"Implant"`
	DMPA    MECCategory `json:"DMPA"`
	CHC     MECCategory `json:"CHC"`
	POP     MECCategory `json:"POP"`
}

// Category returns the category for id, false for an unknown method.
func (r MECResult) Category(id MethodID) (MECCategory, bool) {
	switch id {
	case MethodCuIUD:
		return r.CuIUD, true
	case MethodLNGIUD:
		return r.LNGIUD, true
	case MethodImplant:
		return r.Implant, true
	case MethodDMPA:
		return r.DMPA, true
	case MethodCHC:
		return r.CHC, true
	case MethodPOP:
		return r.POP, true
	default:
		return 0, false
	}
}

// AsMap returns the result keyed by method ID.
func (r MECResult) AsMap() map[MethodID]MECCategory {
	out := make(map[MethodID]MECCategory, len(Methods))
	for _, id := range Methods {
		c, _ := r.Category(id)
		out[id] = c
	}
	return out
}

// UniformMEC returns a result with every method set to c.
func UniformMEC(c MECCategory) MECResult {
	return MECResult{CuIUD: c, LNGIUD: c, Implant: c, DMPA: c, CHC: c, POP: c}
}

package models

// FeatureVector is an ordered list of numeric model inputs.
// Position i corresponds to the i-th entry of the encoder's feature order.
type FeatureVector []float32

// RiskLevel is the discontinuation risk classification.
type RiskLevel string

const (
	// RiskLow means continued use is likely.
	RiskLow RiskLevel = "LOW"
	// RiskHigh means the client is likely to discontinue and needs follow-up.
	RiskHigh RiskLevel = "HIGH"
)

// Valid reports whether l is one of the known levels.
func (l RiskLevel) Valid() bool {
	return l == RiskLow || l == RiskHigh
}

// AssessmentSource records which path produced an assessment.
type AssessmentSource string

const (
	SourceOnDevice AssessmentSource = "on-device"
	SourceRemote   AssessmentSource = "remote"
)

// AssessmentMetadata describes the model bundle that produced a result.
type AssessmentMetadata struct {
	ModelVersion     string  `json:"model_version"`
	Threshold        float64 `json:"threshold"`
	ConfidenceMargin float64 `json:"confidence_margin"`
}

// RiskAssessment is the result of one discontinuation risk prediction.
// Confidence is the primary classifier's class-1 probability rounded to four
// decimals, on every path.
type RiskAssessment struct {
	RiskLevel      RiskLevel          `json:"risk_level"`
	Confidence     float64            `json:"confidence"`
	Recommendation string             `json:"recommendation"`
	Probability    float64            `json:"xgb_probability"`
	Upgraded       bool               `json:"upgraded_by_dt"`
	Metadata       AssessmentMetadata `json:"metadata"`
	Source         AssessmentSource   `json:"source,omitempty"`
}

// IsHigh reports whether the assessment flags high discontinuation risk.
func (r RiskAssessment) IsHigh() bool {
	return r.RiskLevel == RiskHigh
}

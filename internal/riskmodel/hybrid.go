package riskmodel

import (
	"math"

	"github.com/thebtf/contraceptiq/pkg/models"
)

// Recommendation templates keyed by risk level.
var recommendations = map[models.RiskLevel]string{
	models.RiskHigh: "Schedule follow-up counseling session",
	models.RiskLow:  "Continue monitoring contraceptive use",
}

// Recommendation returns the follow-up text for a risk level.
func Recommendation(level models.RiskLevel) string {
	return recommendations[level]
}

// Decide applies the hybrid rule to the primary probability p and the override
// tree's label.
//
//   - p >= Threshold is HIGH.
//   - Otherwise, an override label of 1 upgrades to HIGH when p is within
//     ConfidenceMargin of the threshold.
//
// The override never downgrades. Confidence is p rounded to four decimals.
func Decide(p float64, overrideLabel int64, cfg HybridConfig) models.RiskAssessment {
	level := models.RiskLow
	if p >= cfg.Threshold {
		level = models.RiskHigh
	}

	upgraded := false
	if level == models.RiskLow && overrideLabel == 1 && math.Abs(p-cfg.Threshold) < cfg.ConfidenceMargin {
		level = models.RiskHigh
		upgraded = true
	}

	return models.RiskAssessment{
		RiskLevel:      level,
		Confidence:     round4(p),
		Recommendation: Recommendation(level),
		Probability:    round4(p),
		Upgraded:       upgraded,
		Metadata: models.AssessmentMetadata{
			ModelVersion:     cfg.ModelVersion,
			Threshold:        cfg.Threshold,
			ConfidenceMargin: cfg.ConfidenceMargin,
		},
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

package models

import "time"

// ConsultationStatus tracks a consultation code through the clinic workflow.
type ConsultationStatus string

const (
	StatusWaiting   ConsultationStatus = "waiting"
	StatusCompleted ConsultationStatus = "completed"
	StatusCritical  ConsultationStatus = "critical"
	StatusCancelled ConsultationStatus = "cancelled"
)

// StatusForRisk returns the status a record takes once assessed.
func StatusForRisk(level RiskLevel) ConsultationStatus {
	if level == RiskHigh {
		return StatusCritical
	}
	return StatusCompleted
}

// ConsultationRecord is the document exchanged between a patient's intake
// and the clinician who picks it up by code.
type ConsultationRecord struct {
	CreatedAt   time.Time          `json:"created_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
	AssessedAt  *time.Time         `json:"assessed_at,omitempty"`
	PatientData map[string]any     `json:"patient_data"`
	RiskResult  *RiskAssessment    `json:"risk_result,omitempty"`
	Code        string             `json:"code"`
	Status      ConsultationStatus `json:"status"`
	OBID        string             `json:"ob_id,omitempty"`
	OBName      string             `json:"ob_name,omitempty"`
}

// Expired reports whether the code can no longer be retrieved.
func (r *ConsultationRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Answers parses the stored patient data into intake answers.
func (r *ConsultationRecord) Answers() PatientAnswers {
	answers, _ := ParseAnswers(r.PatientData)
	return answers
}

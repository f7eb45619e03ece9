package consultation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/contraceptiq/pkg/models"
)

// Consultation is the persisted form of a consultation record.
// Timestamps are Unix milliseconds; JSON documents are stored as text.
type Consultation struct {
	Code            string         `gorm:"column:code;primaryKey;size:6"`
	Status          string         `gorm:"column:status;type:text;not null;default:'waiting';check:status IN ('waiting', 'completed', 'critical', 'cancelled');index:idx_consultations_ob_status,priority:2"`
	PatientData     string         `gorm:"column:patient_data;type:text;not null"`
	OBID            sql.NullString `gorm:"column:ob_id;index:idx_consultations_ob_status,priority:1"`
	OBName          sql.NullString `gorm:"column:ob_name"`
	RiskResult      sql.NullString `gorm:"column:risk_result;type:text"`
	AssessedAtEpoch sql.NullInt64  `gorm:"column:assessed_at_epoch"`
	CreatedAtEpoch  int64          `gorm:"column:created_at_epoch;not null"`
	ExpiresAtEpoch  int64          `gorm:"column:expires_at_epoch;not null;index"`
}

func (Consultation) TableName() string { return "consultations" }

// newRow builds the row for a freshly created record.
func newRow(code string, patientData map[string]any, now time.Time, ttl time.Duration) (*Consultation, error) {
	if patientData == nil {
		patientData = map[string]any{}
	}
	data, err := json.Marshal(patientData)
	if err != nil {
		return nil, fmt.Errorf("encode patient data: %w", err)
	}
	return &Consultation{
		Code:           code,
		Status:         string(models.StatusWaiting),
		PatientData:    string(data),
		CreatedAtEpoch: now.UnixMilli(),
		ExpiresAtEpoch: now.Add(ttl).UnixMilli(),
	}, nil
}

// encodeRisk renders a risk result for the risk_result column.
func encodeRisk(result models.RiskAssessment) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode risk result: %w", err)
	}
	return string(data), nil
}

// toRecord converts a row into the domain record.
func (c *Consultation) toRecord() (*models.ConsultationRecord, error) {
	rec := &models.ConsultationRecord{
		Code:      c.Code,
		Status:    models.ConsultationStatus(c.Status),
		OBID:      c.OBID.String,
		OBName:    c.OBName.String,
		CreatedAt: time.UnixMilli(c.CreatedAtEpoch).UTC(),
		ExpiresAt: time.UnixMilli(c.ExpiresAtEpoch).UTC(),
	}

	if err := json.Unmarshal([]byte(c.PatientData), &rec.PatientData); err != nil {
		return nil, fmt.Errorf("decode patient data for %s: %w", c.Code, err)
	}
	if c.RiskResult.Valid && c.RiskResult.String != "" {
		var risk models.RiskAssessment
		if err := json.Unmarshal([]byte(c.RiskResult.String), &risk); err != nil {
			return nil, fmt.Errorf("decode risk result for %s: %w", c.Code, err)
		}
		rec.RiskResult = &risk
	}
	if c.AssessedAtEpoch.Valid {
		at := time.UnixMilli(c.AssessedAtEpoch.Int64).UTC()
		rec.AssessedAt = &at
	}
	return rec, nil
}

func toRecords(rows []Consultation) ([]*models.ConsultationRecord, error) {
	out := make([]*models.ConsultationRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

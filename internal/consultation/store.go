// Package consultation stores the records that carry a patient's intake from
// the guest app to the clinician who picks it up by code.
package consultation

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/thebtf/contraceptiq/pkg/models"
)

const (
	// CodeLength is the number of characters in a consultation code.
	CodeLength = 6

	// DefaultCodeTTL is how long a code can be retrieved after creation.
	DefaultCodeTTL = 24 * time.Hour

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxCodeAttempts bounds retries when a generated code collides.
	maxCodeAttempts = 8
)

var (
	ErrNotFound       = errors.New("consultation not found")
	ErrExpired        = errors.New("consultation code expired")
	ErrAlreadyClaimed = errors.New("consultation already claimed by another clinician")
	ErrCodeExhausted  = errors.New("could not allocate a unique consultation code")
)

// Store persists consultation records.
type Store interface {
	Create(ctx context.Context, patientData map[string]any) (*models.ConsultationRecord, error)
	Get(ctx context.Context, code string) (*models.ConsultationRecord, error)
	SaveRiskResult(ctx context.Context, code string, result models.RiskAssessment) error
	Claim(ctx context.Context, code, obID, obName string) (*models.ConsultationRecord, error)
	Cancel(ctx context.Context, code string) error
	Queue(ctx context.Context, obID string) ([]*models.ConsultationRecord, error)
	History(ctx context.Context, obID string) ([]*models.ConsultationRecord, error)
	PurgeExpired(ctx context.Context) (int64, error)
	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
	ttl time.Duration
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, ttl: DefaultCodeTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTTL sets how long new codes stay retrievable.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewCode returns a random code of CodeLength uppercase letters and digits.
func NewCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	alphabetSize := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode upper-cases and trims a code typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code has the shape of a consultation code.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// checkClaim applies the claim rule: a record already handled by a different
// clinician cannot be taken over. A waiting record can be re-assigned.
func checkClaim(rec *models.ConsultationRecord, obID string) error {
	if rec.Status != models.StatusWaiting && rec.OBID != "" && rec.OBID != obID {
		return ErrAlreadyClaimed
	}
	return nil
}

// sortQueue orders waiting records newest first.
func sortQueue(records []*models.ConsultationRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// sortHistory orders records by assessment time, falling back to creation time, newest first.
func sortHistory(records []*models.ConsultationRecord) {
	at := func(r *models.ConsultationRecord) time.Time {
		if r.AssessedAt != nil {
			return *r.AssessedAt
		}
		return r.CreatedAt
	}
	sort.SliceStable(records, func(i, j int) bool {
		return at(records[i]).After(at(records[j]))
	})
}

// historyStatuses are the statuses shown in a clinician's history.
var historyStatuses = []string{string(models.StatusCompleted), string(models.StatusCritical)}

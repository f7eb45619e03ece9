package consultation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/thebtf/contraceptiq/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS consultations (
	code TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'waiting' CHECK (status IN ('waiting', 'completed', 'critical', 'cancelled')),
	patient_data TEXT NOT NULL,
	ob_id TEXT,
	ob_name TEXT,
	risk_result TEXT,
	assessed_at_epoch INTEGER,
	created_at_epoch INTEGER NOT NULL,
	expires_at_epoch INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_consultations_ob_status ON consultations(ob_id, status);
CREATE INDEX IF NOT EXISTS idx_consultations_expires ON consultations(expires_at_epoch);
`

const selectColumns = `code, status, patient_data, ob_id, ob_name, risk_result,
	assessed_at_epoch, created_at_epoch, expires_at_epoch`

// SQLiteStore keeps consultation records in an embedded SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// Compile-time check that SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" to one database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create consultation schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("Consultation store opened")
	return &SQLiteStore{db: db, opts: newOptions(opts)}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create stores patientData under a new code.
func (s *SQLiteStore) Create(ctx context.Context, patientData map[string]any) (*models.ConsultationRecord, error) {
	now := s.opts.now()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := NewCode()
		if err != nil {
			return nil, err
		}
		row, err := newRow(code, patientData, now, s.opts.ttl)
		if err != nil {
			return nil, err
		}

		res, err := s.db.ExecContext(ctx, `
			INSERT INTO consultations (code, status, patient_data, created_at_epoch, expires_at_epoch)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(code) DO NOTHING`,
			row.Code, row.Status, row.PatientData, row.CreatedAtEpoch, row.ExpiresAtEpoch)
		if err != nil {
			return nil, fmt.Errorf("insert consultation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return row.toRecord()
		}
		log.Debug().Str("code", code).Msg("Consultation code collision, retrying")
	}
	return nil, ErrCodeExhausted
}

// Get returns the record for code. Expired codes return ErrExpired.
func (s *SQLiteStore) Get(ctx context.Context, code string) (*models.ConsultationRecord, error) {
	rec, err := s.load(ctx, s.db, NormalizeCode(code))
	if err != nil {
		return nil, err
	}
	if rec.Expired(s.opts.now()) {
		return nil, ErrExpired
	}
	return rec, nil
}

// SaveRiskResult stores result on the record and moves it to completed or critical.
func (s *SQLiteStore) SaveRiskResult(ctx context.Context, code string, result models.RiskAssessment) error {
	risk, err := encodeRisk(result)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE consultations SET risk_result = ?, assessed_at_epoch = ?, status = ?
		WHERE code = ?`,
		risk, s.opts.now().UnixMilli(), string(models.StatusForRisk(result.RiskLevel)), NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("save risk result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Claim assigns the record to a clinician.
func (s *SQLiteStore) Claim(ctx context.Context, code, obID, obName string) (*models.ConsultationRecord, error) {
	code = NormalizeCode(code)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := s.load(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if rec.Expired(s.opts.now()) {
		return nil, ErrExpired
	}
	if err := checkClaim(rec, obID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE consultations SET ob_id = ?, ob_name = ? WHERE code = ?`,
		obID, nullString(obName), code); err != nil {
		return nil, fmt.Errorf("claim consultation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	rec.OBID, rec.OBName = obID, obName
	return rec, nil
}

// Cancel marks the record cancelled.
func (s *SQLiteStore) Cancel(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE consultations SET status = ? WHERE code = ?`,
		string(models.StatusCancelled), NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("cancel consultation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Queue returns the unexpired waiting records claimed by obID, newest first.
func (s *SQLiteStore) Queue(ctx context.Context, obID string) ([]*models.ConsultationRecord, error) {
	records, err := s.query(ctx,
		`SELECT `+selectColumns+` FROM consultations
		WHERE ob_id = ? AND status = ? AND expires_at_epoch > ?`,
		obID, string(models.StatusWaiting), s.opts.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("fetch queue: %w", err)
	}
	sortQueue(records)
	return records, nil
}

// History returns the assessed records handled by obID, most recently assessed first.
func (s *SQLiteStore) History(ctx context.Context, obID string) ([]*models.ConsultationRecord, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(historyStatuses)), ", ")
	args := []any{obID}
	for _, st := range historyStatuses {
		args = append(args, st)
	}

	records, err := s.query(ctx,
		`SELECT `+selectColumns+` FROM consultations
		WHERE ob_id = ? AND status IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	sortHistory(records)
	return records, nil
}

// PurgeExpired deletes expired records that were never assessed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM consultations WHERE expires_at_epoch <= ? AND status IN (?, ?)`,
		s.opts.now().UnixMilli(), string(models.StatusWaiting), string(models.StatusCancelled))
	if err != nil {
		return 0, fmt.Errorf("purge expired consultations: %w", err)
	}
	return res.RowsAffected()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) load(ctx context.Context, q queryer, code string) (*models.ConsultationRecord, error) {
	var row Consultation
	err := scanRow(q.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM consultations WHERE code = ?`, code), &row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load consultation: %w", err)
	}
	return row.toRecord()
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]*models.ConsultationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Consultation
	for rows.Next() {
		var row Consultation
		if err := scanRow(rows, &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return toRecords(out)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner, row *Consultation) error {
	return sc.Scan(
		&row.Code,
		&row.Status,
		&row.PatientData,
		&row.OBID,
		&row.OBName,
		&row.RiskResult,
		&row.AssessedAtEpoch,
		&row.CreatedAtEpoch,
		&row.ExpiresAtEpoch,
	)
}

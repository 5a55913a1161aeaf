// Package store provides SQLite-backed alert storage with guarded
// transitions and notification cooldown.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/medobsmind/obswatch/internal/alert"
)

// ErrNotFound is returned when no alert has the requested id.
var ErrNotFound = errors.New("alert not found")

// timeFormat is fixed-width so that text ordering matches time ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps an SQLite connection for alert storage.
type DB struct {
	db  *sql.DB
	log *zap.Logger

	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	mu   sync.Mutex
	refs int
}

// Open opens or creates an SQLite database at the given path.
func Open(path string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrate(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{db: db, log: log, locks: make(map[string]*idLock)}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Insert stores a new alert.
func (d *DB) Insert(a *alert.Alert) error {
	return insert(d.db, a)
}

func insert(x execer, a *alert.Alert) error {
	recs, ack, res, esc, err := encodeJSON(a)
	if err != nil {
		return err
	}

	_, err = x.Exec(`
		INSERT INTO alerts (
			id, patient_id, type, severity, title, message, score, recommendations,
			status, triggered_at,
			acknowledged_by, acknowledged_at, acknowledgment,
			resolved_by, resolved_at, resolution_notes, resolution,
			escalated, escalated_at, escalation,
			explanation, explanation_needs_review, notified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.PatientID,
		string(a.Type),
		string(a.Severity),
		a.Title,
		a.Message,
		nullInt(a.Score),
		recs,
		string(a.Status),
		formatTime(a.TriggeredAt),
		a.AcknowledgedBy,
		nullTime(a.AcknowledgedAt),
		ack,
		a.ResolvedBy,
		nullTime(a.ResolvedAt),
		a.ResolutionNotes,
		res,
		a.Escalated,
		nullTime(a.EscalatedAt),
		esc,
		a.Explanation,
		a.ExplanationNeedsReview,
		false,
	)
	if err != nil {
		return fmt.Errorf("inserting alert: %w", err)
	}
	return nil
}

// Update writes every mutable field of an existing alert.
func (d *DB) Update(a *alert.Alert) error {
	return update(d.db, a)
}

func update(x execer, a *alert.Alert) error {
	_, ack, res, esc, err := encodeJSON(a)
	if err != nil {
		return err
	}

	result, err := x.Exec(`
		UPDATE alerts SET
			status = ?,
			acknowledged_by = ?, acknowledged_at = ?, acknowledgment = ?,
			resolved_by = ?, resolved_at = ?, resolution_notes = ?, resolution = ?,
			escalated = ?, escalated_at = ?, escalation = ?,
			explanation = ?, explanation_needs_review = ?
		WHERE id = ?`,
		string(a.Status),
		a.AcknowledgedBy, nullTime(a.AcknowledgedAt), ack,
		a.ResolvedBy, nullTime(a.ResolvedAt), a.ResolutionNotes, res,
		a.Escalated, nullTime(a.EscalatedAt), esc,
		a.Explanation, a.ExplanationNeedsReview,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating alert %s: %w", a.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("updating alert %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

// Get loads one alert by id.
func (d *DB) Get(id string) (*alert.Alert, error) {
	return get(d.db, id)
}

func get(x execer, id string) (*alert.Alert, error) {
	a, err := scanAlert(x.QueryRow(`SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return a, err
}

// Transition loads an alert, applies fn and saves the result, holding a
// per-id lock and a transaction so at most one transition per alert is in
// flight. If fn fails nothing is written.
func (d *DB) Transition(id string, fn func(a *alert.Alert) error) (*alert.Alert, error) {
	unlock := d.lock(id)
	defer unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transition: %w", err)
	}
	defer tx.Rollback()

	a, err := get(tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	if err := update(tx, a); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transition: %w", err)
	}
	return a, nil
}

func (d *DB) lock(id string) func() {
	d.mu.Lock()
	l, ok := d.locks[id]
	if !ok {
		l = &idLock{}
		d.locks[id] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, id)
		}
		d.mu.Unlock()
	}
}

// MarkNotified marks an alert as having been sent to ntfy.
func (d *DB) MarkNotified(id string) error {
	_, err := d.db.Exec(`UPDATE alerts SET notified = TRUE WHERE id = ?`, id)
	return err
}

// QueryFilter controls which alerts are returned by Query.
type QueryFilter struct {
	Since     time.Time
	Until     time.Time
	PatientID string
	Severity  alert.Severity
	Status    alert.Status
	// OpenOnly excludes resolved alerts.
	OpenOnly bool
	Limit    int
}

// Query returns alerts matching the filter, newest first.
func (d *DB) Query(f QueryFilter) ([]*alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any

	if !f.Since.IsZero() {
		query += " AND triggered_at >= ?"
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		query += " AND triggered_at <= ?"
		args = append(args, formatTime(f.Until))
	}
	if f.PatientID != "" {
		query += " AND patient_id = ?"
		args = append(args, f.PatientID)
	}
	if f.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(f.Severity))
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	if f.OpenOnly {
		query += " AND status != ?"
		args = append(args, string(alert.StatusResolved))
	}

	query += " ORDER BY triggered_at DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Active returns unresolved alerts, optionally for one patient, ordered by
// severity then most recent trigger.
func (d *DB) Active(patientID string) ([]*alert.Alert, error) {
	alerts, err := d.Query(QueryFilter{PatientID: patientID, OpenOnly: true})
	if err != nil {
		return nil, err
	}
	alert.SortActive(alerts)
	return alerts, nil
}

// Delete removes an alert. It is an administrative action, not a lifecycle
// transition.
func (d *DB) Delete(id string) error {
	unlock := d.lock(id)
	defer unlock()

	result, err := d.db.Exec(`DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting alert %s: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting alert %s: %w", id, ErrNotFound)
	}
	return nil
}

// Purge deletes resolved alerts triggered before the retention window.
// Unresolved alerts are never purged.
func (d *DB) Purge(retention time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-retention))
	result, err := d.db.Exec(`DELETE FROM alerts WHERE triggered_at < ? AND status = ?`,
		cutoff, string(alert.StatusResolved))
	if err != nil {
		return 0, fmt.Errorf("purging old alerts: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the total number of stored alerts.
func (d *DB) Count() (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting alerts: %w", err)
	}
	return n, nil
}

const alertColumns = `id, patient_id, type, severity, title, message, score, recommendations,
	status, triggered_at,
	acknowledged_by, acknowledged_at, acknowledgment,
	resolved_by, resolved_at, resolution_notes, resolution,
	escalated, escalated_at, escalation,
	explanation, explanation_needs_review`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (*alert.Alert, error) {
	var a alert.Alert
	var score sql.NullInt64
	var recs, triggered string
	var ackAt, resAt, escAt sql.NullString
	var ack, res, esc sql.NullString

	err := s.Scan(
		&a.ID,
		&a.PatientID,
		&a.Type,
		&a.Severity,
		&a.Title,
		&a.Message,
		&score,
		&recs,
		&a.Status,
		&triggered,
		&a.AcknowledgedBy,
		&ackAt,
		&ack,
		&a.ResolvedBy,
		&resAt,
		&a.ResolutionNotes,
		&res,
		&a.Escalated,
		&escAt,
		&esc,
		&a.Explanation,
		&a.ExplanationNeedsReview,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning alert row: %w", err)
	}

	if score.Valid {
		v := int(score.Int64)
		a.Score = &v
	}
	a.TriggeredAt, _ = time.Parse(timeFormat, triggered)
	a.AcknowledgedAt = parseNullTime(ackAt)
	a.ResolvedAt = parseNullTime(resAt)
	a.EscalatedAt = parseNullTime(escAt)

	if recs != "" {
		_ = json.Unmarshal([]byte(recs), &a.Recommendations)
	}
	if ack.Valid {
		a.Acknowledgment = &alert.Acknowledgment{}
		_ = json.Unmarshal([]byte(ack.String), a.Acknowledgment)
	}
	if res.Valid {
		a.Resolution = &alert.Resolution{}
		_ = json.Unmarshal([]byte(res.String), a.Resolution)
	}
	if esc.Valid {
		a.Escalation = &alert.Escalation{}
		_ = json.Unmarshal([]byte(esc.String), a.Escalation)
	}
	return &a, nil
}

func encodeJSON(a *alert.Alert) (recs string, ack, res, esc sql.NullString, err error) {
	b, err := json.Marshal(a.Recommendations)
	if err != nil {
		return "", ack, res, esc, fmt.Errorf("encoding recommendations: %w", err)
	}
	recs = string(b)
	if ack, err = nullJSON(a.Acknowledgment); err != nil {
		return
	}
	if res, err = nullJSON(a.Resolution); err != nil {
		return
	}
	esc, err = nullJSON(a.Escalation)
	return
}

func nullJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding %T: %w", v, err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeFormat, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func migrate(db *sql.DB, log *zap.Logger) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id                       TEXT PRIMARY KEY,
			patient_id               TEXT NOT NULL,
			type                     TEXT NOT NULL,
			severity                 TEXT NOT NULL,
			title                    TEXT NOT NULL,
			message                  TEXT NOT NULL,
			score                    INTEGER,
			recommendations          TEXT NOT NULL DEFAULT '[]',
			status                   TEXT NOT NULL,
			triggered_at             TEXT NOT NULL,
			acknowledged_by          TEXT NOT NULL DEFAULT '',
			acknowledged_at          TEXT,
			acknowledgment           TEXT,
			resolved_by              TEXT NOT NULL DEFAULT '',
			resolved_at              TEXT,
			resolution_notes         TEXT NOT NULL DEFAULT '',
			resolution               TEXT,
			escalated                BOOLEAN NOT NULL DEFAULT FALSE,
			escalated_at             TEXT,
			escalation               TEXT,
			explanation              TEXT NOT NULL DEFAULT '',
			explanation_needs_review BOOLEAN NOT NULL DEFAULT FALSE,
			notified                 BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_patient_ts ON alerts(patient_id, triggered_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status, severity)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(patient_id, type, severity, triggered_at)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	log.Debug("database schema up to date")
	return nil
}

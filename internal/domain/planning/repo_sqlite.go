package planning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteRepo stores appointments in an embedded SQLite file.
type SQLiteRepo struct {
	db *sql.DB
}

// NewSQLiteRepo opens (and creates when missing) the database at path.
func NewSQLiteRepo(path string) (*SQLiteRepo, error) {
	if path == "" {
		path = "galepedia.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS appointment (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		patient_name TEXT NOT NULL,
		date TEXT NOT NULL,
		status TEXT NOT NULL,
		molecule TEXT NOT NULL DEFAULT '',
		contact_phone TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create appointment table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_appointment_date ON appointment (date)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create appointment index: %w", err)
	}
	return &SQLiteRepo{db: db}, nil
}

func (r *SQLiteRepo) List(ctx context.Context) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, patient_id, patient_name, date, status, molecule, contact_phone, created_at
		FROM appointment ORDER BY date, created_at`)
	if err != nil {
		return nil, fmt.Errorf("select appointments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Appointment
	for rows.Next() {
		var (
			a       Appointment
			id      string
			created int64
		)
		if err := rows.Scan(&id, &a.PatientID, &a.PatientName, &a.Date, &a.Status,
			&a.Molecule, &a.ContactPhone, &created); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if a.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse appointment id %q: %w", id, err)
		}
		a.CreatedAt = time.UnixMilli(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) Create(ctx context.Context, a *Appointment) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO appointment
		(id, patient_id, patient_name, date, status, molecule, contact_phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.PatientID, a.PatientName, a.Date, string(a.Status),
		a.Molecule, a.ContactPhone, a.CreatedAt.UnixMilli(),
	)
	return err
}

func (r *SQLiteRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM appointment WHERE id = ?`, id.String())
	return err
}

func (r *SQLiteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

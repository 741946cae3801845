package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/galepedia/galepedia/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, name, phone, age, weight, last_update`

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id)
}

func (r *repoPG) GetByName(ctx context.Context, name string) (*Patient, error) {
	return r.getOne(ctx, `SELECT `+patientCols+` FROM patient WHERE name = $1`, name)
}

func (r *repoPG) getOne(ctx context.Context, sql string, arg interface{}) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadHistory(ctx, []*Patient{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, name, phone, age, weight, last_update)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO NOTHING`,
		p.ID, p.Name, p.Phone, p.Age, p.Weight, p.LastUpdate,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateName, p.Name)
	}
	return nil
}

func (r *repoPG) UpdateDemographics(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET phone = $2, age = $3, weight = $4, last_update = $5
		WHERE id = $1`,
		p.ID, p.Phone, p.Age, p.Weight, p.LastUpdate,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) AppendLog(ctx context.Context, log *HistoryLog) error {
	preps, err := json.Marshal(log.Preps)
	if err != nil {
		return fmt.Errorf("encode preps: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO history_log (id, patient_id, date_label, ts, doctor, preparators, preps)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ID, log.PatientID, log.Date, log.Timestamp, log.Doctor, log.Preparators, preps,
	)
	return err
}

func (r *repoPG) Search(ctx context.Context, q Query) ([]*Patient, int, error) {
	where := `WHERE ($1 = '' OR strpos(name, $1) > 0 OR strpos(phone, $1) > 0)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient `+where, q.Term).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "last_update DESC"
	switch {
	case q.Sort == SortName && q.Asc:
		order = "name ASC"
	case q.Sort == SortName:
		order = "name DESC"
	case q.Asc:
		order = "last_update ASC"
	}
	// LIMIT NULL means no limit.
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patient `+where+` ORDER BY `+order+`, id LIMIT $2 OFFSET $3`,
		q.Term, limit, q.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := r.loadHistory(ctx, patients); err != nil {
		return nil, 0, err
	}
	return patients, total, nil
}

func (r *repoPG) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *repoPG) loadHistory(ctx context.Context, patients []*Patient) error {
	if len(patients) == 0 {
		return nil
	}
	index := make(map[uuid.UUID]*Patient, len(patients))
	ids := make([]uuid.UUID, 0, len(patients))
	for _, p := range patients {
		p.History = []HistoryLog{}
		index[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, date_label, ts, doctor, preparators, preps
		FROM history_log WHERE patient_id = ANY($1) ORDER BY seq`, ids)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h HistoryLog
		var preps []byte
		if err := rows.Scan(&h.ID, &h.PatientID, &h.Date, &h.Timestamp, &h.Doctor, &h.Preparators, &preps); err != nil {
			return fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal(preps, &h.Preps); err != nil {
			return fmt.Errorf("decode preps of log %s: %w", h.ID, err)
		}
		if p, ok := index[h.PatientID]; ok {
			p.History = append(p.History, h)
		}
	}
	return rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Age, &p.Weight, &p.LastUpdate); err != nil {
		return nil, err
	}
	return &p, nil
}

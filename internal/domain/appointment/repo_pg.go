package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/validate"
)

// PGStore is the PostgreSQL Store. Upserts run in read-committed
// transactions that lock referenced patients and doctors FOR SHARE and the
// updated appointment FOR UPDATE.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const apptCols = `a.id, a.clinic_id, a.patient_id, a.doctor_id, a.appointment_date,
	a.appointment_time, a.starts_at, a.price_in_cents, a.created_at, a.updated_at`

func scanAppt(row pgx.Row, extra ...any) (*Appointment, error) {
	var a Appointment
	var day time.Time
	dest := append([]any{&a.ID, &a.ClinicID, &a.PatientID, &a.DoctorID, &day,
		&a.Time, &a.StartsAt, &a.PriceInCents, &a.CreatedAt, &a.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Date = day.Format(validate.DateLayout)
	return &a, nil
}

func civilDate(s string) (time.Time, error) {
	d, err := time.Parse(validate.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

func (s *PGStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
}

func (s *PGStore) GetByID(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	return scanAppt(s.pool.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments a WHERE a.clinic_id = $1 AND a.id = $2`, clinicID, id))
}

func (s *PGStore) List(ctx context.Context, clinicID uuid.UUID, f ListFilter, limit, offset int) ([]*Listing, int, error) {
	where := ` WHERE a.clinic_id = $1`
	args := []any{clinicID}
	idx := 2

	if f.PatientID != nil {
		where += fmt.Sprintf(` AND a.patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND a.doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.Date != "" {
		d, err := civilDate(f.Date)
		if err != nil {
			return nil, 0, err
		}
		where += fmt.Sprintf(` AND a.appointment_date = $%d`, idx)
		args = append(args, d)
		idx++
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + `, p.name, d.name
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN doctors d ON d.id = a.doctor_id` + where +
		fmt.Sprintf(` ORDER BY a.starts_at DESC, a.id LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Listing
	for rows.Next() {
		l := &Listing{}
		a, err := scanAppt(rows, &l.PatientName, &l.DoctorName)
		if err != nil {
			return nil, 0, err
		}
		l.Appointment = a
		items = append(items, l)
	}
	return items, total, rows.Err()
}

func (s *PGStore) Delete(ctx context.Context, clinicID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM appointments WHERE clinic_id = $1 AND id = $2`, clinicID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) CountByDoctor(ctx context.Context, clinicID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doctor_id, COUNT(*) FROM appointments WHERE clinic_id = $1 GROUP BY doctor_id`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgTx struct {
	q db.Querier
}

func (t *pgTx) PatientClinic(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error) {
	var clinicID uuid.UUID
	err := t.q.QueryRow(ctx, `SELECT clinic_id FROM patients WHERE id = $1 FOR SHARE`, patientID).Scan(&clinicID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	return clinicID, err
}

func (t *pgTx) Doctor(ctx context.Context, doctorID uuid.UUID) (DoctorRef, error) {
	var ref DoctorRef
	err := t.q.QueryRow(ctx,
		`SELECT clinic_id, appointment_price_in_cents FROM doctors WHERE id = $1 FOR SHARE`, doctorID).
		Scan(&ref.ClinicID, &ref.PriceInCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return DoctorRef{}, ErrNotFound
	}
	return ref, err
}

func (t *pgTx) GetForUpdate(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	return scanAppt(t.q.QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments a WHERE a.clinic_id = $1 AND a.id = $2 FOR UPDATE`, clinicID, id))
}

func (t *pgTx) Insert(ctx context.Context, a *Appointment) error {
	day, err := civilDate(a.Date)
	if err != nil {
		return err
	}
	return t.q.QueryRow(ctx, `
		INSERT INTO appointments (id, clinic_id, patient_id, doctor_id, appointment_date,
			appointment_time, starts_at, price_in_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.ClinicID, a.PatientID, a.DoctorID, day, a.Time, a.StartsAt, a.PriceInCents).
		Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (t *pgTx) Update(ctx context.Context, a *Appointment) error {
	day, err := civilDate(a.Date)
	if err != nil {
		return err
	}
	err = t.q.QueryRow(ctx, `
		UPDATE appointments SET patient_id = $3, doctor_id = $4, appointment_date = $5,
			appointment_time = $6, starts_at = $7, price_in_cents = $8, updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2
		RETURNING updated_at`,
		a.ClinicID, a.ID, a.PatientID, a.DoctorID, day, a.Time, a.StartsAt, a.PriceInCents).
		Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) EnsureClinic(ctx context.Context, id uuid.UUID, name string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO clinics (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, id, name)
	if err != nil {
		return fmt.Errorf("ensure clinic: %w", err)
	}
	return nil
}

const patientCols = `id, clinic_id, name, email, phone_number, sex, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ClinicID, &p.Name, &p.Email, &p.PhoneNumber, &p.Sex, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, clinic_id, name, email, phone_number, sex)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.ClinicID, p.Name, p.Email, p.PhoneNumber, p.Sex).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE clinic_id = $1 AND id = $2`, clinicID, id))
}

func (r *repoPG) ListPatients(ctx context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Patient, int, error) {
	where := `WHERE clinic_id = $1 AND ($2::text = '' OR name ILIKE '%' || $2::text || '%')`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients `+where, clinicID, search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+patientCols+` FROM patients `+where+` ORDER BY name LIMIT $3 OFFSET $4`,
		clinicID, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) UpdatePatient(ctx context.Context, p *Patient) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE patients SET name = $3, email = $4, phone_number = $5, sex = $6, updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2
		RETURNING created_at, updated_at`,
		p.ClinicID, p.ID, p.Name, p.Email, p.PhoneNumber, p.Sex).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// DeletePatient relies on ON DELETE CASCADE to drop the patient's appointments.
func (r *repoPG) DeletePatient(ctx context.Context, clinicID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM patients WHERE clinic_id = $1 AND id = $2`, clinicID, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const doctorCols = `id, clinic_id, name, specialty, avatar_image_url, appointment_price_in_cents, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.ClinicID, &d.Name, &d.Specialty, &d.AvatarImageURL,
		&d.AppointmentPriceInCents, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (r *repoPG) CreateDoctor(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, clinic_id, name, specialty, avatar_image_url, appointment_price_in_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		d.ID, d.ClinicID, d.Name, d.Specialty, d.AvatarImageURL, d.AppointmentPriceInCents).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *repoPG) GetDoctor(ctx context.Context, clinicID, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.pool.QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctors WHERE clinic_id = $1 AND id = $2`, clinicID, id))
}

func (r *repoPG) ListDoctors(ctx context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Doctor, int, error) {
	where := `WHERE clinic_id = $1 AND ($2::text = '' OR name ILIKE '%' || $2::text || '%')`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM doctors `+where, clinicID, search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+doctorCols+` FROM doctors `+where+` ORDER BY name LIMIT $3 OFFSET $4`,
		clinicID, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *repoPG) UpdateDoctor(ctx context.Context, d *Doctor) error {
	err := r.pool.QueryRow(ctx, `
		UPDATE doctors SET name = $3, specialty = $4, avatar_image_url = $5,
			appointment_price_in_cents = $6, updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2
		RETURNING created_at, updated_at`,
		d.ClinicID, d.ID, d.Name, d.Specialty, d.AvatarImageURL, d.AppointmentPriceInCents).Scan(&d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) DeleteDoctor(ctx context.Context, clinicID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM doctors WHERE clinic_id = $1 AND id = $2`, clinicID, id)
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package clinic

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no row matches inside the
// requested clinic.
var ErrNotFound = errors.New("clinic: record not found")

type Repository interface {
	EnsureClinic(ctx context.Context, id uuid.UUID, name string) error

	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error)
	ListPatients(ctx context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Patient, int, error)
	UpdatePatient(ctx context.Context, p *Patient) error
	DeletePatient(ctx context.Context, clinicID, id uuid.UUID) error

	CreateDoctor(ctx context.Context, d *Doctor) error
	GetDoctor(ctx context.Context, clinicID, id uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Doctor, int, error)
	UpdateDoctor(ctx context.Context, d *Doctor) error
	DeleteDoctor(ctx context.Context, clinicID, id uuid.UUID) error
}

// Dependents removes rows that reference a deleted patient or doctor. The
// memory repository calls it to mirror the ON DELETE CASCADE of the schema.
type Dependents interface {
	DeleteByPatient(ctx context.Context, patientID uuid.UUID) error
	DeleteByDoctor(ctx context.Context, doctorID uuid.UUID) error
}

// AppointmentCounter reports how many appointments each doctor of a clinic has.
type AppointmentCounter interface {
	CountByDoctor(ctx context.Context, clinicID uuid.UUID) (map[uuid.UUID]int, error)
}

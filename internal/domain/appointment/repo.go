package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("appointment: not found")
	ErrConflict = errors.New("appointment: conflict")
)

// DoctorRef is what the upsert needs to know about a referenced doctor.
type DoctorRef struct {
	ClinicID     uuid.UUID
	PriceInCents int
}

// TxRepository is the view of the store inside one transaction. Lookups of
// referenced rows hold them until the transaction ends.
type TxRepository interface {
	// PatientClinic returns the clinic owning the patient, or ErrNotFound.
	PatientClinic(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error)
	Doctor(ctx context.Context, doctorID uuid.UUID) (DoctorRef, error)
	GetForUpdate(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)
	Insert(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, a *Appointment) error
}

type Store interface {
	// InTx runs fn in a transaction that commits only when fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetByID(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, clinicID uuid.UUID, filter ListFilter, limit, offset int) ([]*Listing, int, error)
	Delete(ctx context.Context, clinicID, id uuid.UUID) error
	CountByDoctor(ctx context.Context, clinicID uuid.UUID) (map[uuid.UUID]int, error)
	Ping(ctx context.Context) error
}

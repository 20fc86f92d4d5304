package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

// OutOfScopeCause is the field cause reported when a referenced patient or
// doctor belongs to another clinic.
const OutOfScopeCause = "reference outside clinic scope"

type Service struct {
	store  Store
	loc    *time.Location
	logger zerolog.Logger
}

func NewService(store Store, loc *time.Location, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		loc:    loc,
		logger: logger.With().Str("component", "appointment").Logger(),
	}
}

func (s *Service) Location() *time.Location { return s.loc }

// Upsert creates an appointment when req.ID is nil and otherwise overwrites
// every mutable field of the existing one. All reads and the write happen in
// one store transaction.
func (s *Service) Upsert(ctx context.Context, clinicID uuid.UUID, req UpsertRequest) (*Appointment, error) {
	startsAt, ok := req.StartsAt(s.loc)
	if !ok {
		return nil, apperr.Validation("invalid appointment", map[string]string{
			"time": "Time does not exist on this date in the clinic time zone.",
		})
	}

	var out *Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// The update target is loaded first so a missing id reports NotFound
		// whatever the references hold.
		var existing *Appointment
		if req.ID != nil {
			var err error
			existing, err = tx.GetForUpdate(ctx, clinicID, *req.ID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return apperr.NotFound("appointment not found", err)
				}
				return fmt.Errorf("load appointment: %w", err)
			}
		}

		price, err := s.checkReferences(ctx, tx, clinicID, req)
		if err != nil {
			return err
		}

		a := &Appointment{
			ClinicID:     clinicID,
			PatientID:    req.PatientID,
			DoctorID:     req.DoctorID,
			Date:         req.Date,
			Time:         req.Time,
			StartsAt:     startsAt,
			PriceInCents: price,
		}

		if existing == nil {
			a.ID = uuid.New()
			if err := tx.Insert(ctx, a); err != nil {
				return fmt.Errorf("insert appointment: %w", err)
			}
			out = a
			return nil
		}

		a.ID = existing.ID
		a.CreatedAt = existing.CreatedAt
		if err := tx.Update(ctx, a); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		out = a
		return nil
	})
	if err != nil {
		err = translate(err)
		s.logger.Debug().Err(err).Str("clinic_id", clinicID.String()).Msg("upsert rejected")
		return nil, err
	}

	evt := s.logger.Info().
		Str("clinic_id", clinicID.String()).
		Str("appointment_id", out.ID.String()).
		Int("price_in_cents", out.PriceInCents)
	if req.ID == nil {
		evt.Msg("appointment created")
	} else {
		evt.Msg("appointment updated")
	}
	return out, nil
}

// checkReferences locks the referenced patient and doctor and returns the
// price to store.
func (s *Service) checkReferences(ctx context.Context, tx TxRepository, clinicID uuid.UUID, req UpsertRequest) (int, error) {
	patientClinic, err := tx.PatientClinic(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, apperr.NotFound("patient not found", err)
		}
		return 0, fmt.Errorf("load patient: %w", err)
	}
	doctor, err := tx.Doctor(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, apperr.NotFound("doctor not found", err)
		}
		return 0, fmt.Errorf("load doctor: %w", err)
	}

	fields := map[string]string{}
	if patientClinic != clinicID {
		fields["patient_id"] = OutOfScopeCause
	}
	if doctor.ClinicID != clinicID {
		fields["doctor_id"] = OutOfScopeCause
	}
	if len(fields) > 0 {
		return 0, apperr.Validation(OutOfScopeCause, fields)
	}

	if req.PriceInCents != nil {
		return *req.PriceInCents, nil
	}
	return doctor.PriceInCents, nil
}

func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	a, err := s.store.GetByID(ctx, clinicID, id)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, clinicID uuid.UUID, f ListFilter, limit, offset int) ([]*Listing, int, error) {
	items, total, err := s.store.List(ctx, clinicID, f, limit, offset)
	if err != nil {
		return nil, 0, translate(err)
	}
	return items, total, nil
}

func (s *Service) Delete(ctx context.Context, clinicID, id uuid.UUID) error {
	if err := s.store.Delete(ctx, clinicID, id); err != nil {
		return translate(err)
	}
	s.logger.Info().Str("clinic_id", clinicID.String()).Str("appointment_id", id.String()).Msg("appointment deleted")
	return nil
}

// translate maps store errors onto apperr kinds. Errors that already carry a
// kind pass through unchanged.
func translate(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("appointment not found", err)
	case errors.Is(err, ErrConflict):
		return apperr.Conflict("appointment was changed concurrently, retry", err)
	}
	switch db.PgErrorCode(err) {
	case db.CodeUniqueViolation:
		return apperr.Conflict("appointment already exists", err)
	case db.CodeForeignKeyViolation:
		return apperr.NotFound("referenced patient or doctor not found", err)
	case db.CodeCheckViolation:
		return apperr.Validation("invalid appointment", map[string]string{"price_in_cents": "Price must not be negative."})
	case db.CodeNumericOutOfRange:
		return apperr.Validation("invalid appointment", map[string]string{"price_in_cents": "Price must be at most 21.474.836,47."})
	}
	return err
}

package clinic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/validate"
)

const (
	DefaultTopDoctors = 10
	// directoryScanLimit caps how many doctors TopDoctors ranks.
	directoryScanLimit = 1000
)

type Service struct {
	repo     Repository
	counter  AppointmentCounter
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewService(repo Repository, counter AppointmentCounter, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		counter:  counter,
		validate: validate.New(),
		logger:   logger.With().Str("component", "clinic").Logger(),
	}
}

func (s *Service) checkInput(in interface{}) error {
	if err := s.validate.Struct(in); err != nil {
		if fields := validate.Fields(err, inputMessages); fields != nil {
			return apperr.Validation("invalid input", fields)
		}
		return fmt.Errorf("validate input: %w", err)
	}
	return nil
}

func notFound(what string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound(what+" not found", err)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func (s *Service) CreatePatient(ctx context.Context, clinicID uuid.UUID, in PatientInput) (*Patient, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	p := &Patient{
		ClinicID:    clinicID,
		Name:        in.Name,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Sex:         in.Sex,
	}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient created")
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatient(ctx, clinicID, id)
	if err != nil {
		return nil, notFound("patient", err)
	}
	return p, nil
}

func (s *Service) ListPatients(ctx context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.ListPatients(ctx, clinicID, search, limit, offset)
}

// UpdatePatient replaces every field of an existing patient.
func (s *Service) UpdatePatient(ctx context.Context, clinicID, id uuid.UUID, in PatientInput) (*Patient, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	p := &Patient{
		ID:          id,
		ClinicID:    clinicID,
		Name:        in.Name,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Sex:         in.Sex,
	}
	if err := s.repo.UpdatePatient(ctx, p); err != nil {
		return nil, notFound("patient", err)
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient updated")
	return p, nil
}

// DeletePatient removes the patient together with its appointments.
func (s *Service) DeletePatient(ctx context.Context, clinicID, id uuid.UUID) error {
	if err := s.repo.DeletePatient(ctx, clinicID, id); err != nil {
		return notFound("patient", err)
	}
	s.logger.Info().Str("patient_id", id.String()).Msg("patient deleted")
	return nil
}

func (s *Service) CreateDoctor(ctx context.Context, clinicID uuid.UUID, in DoctorInput) (*Doctor, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	d := &Doctor{
		ClinicID:                clinicID,
		Name:                    in.Name,
		Specialty:               in.Specialty,
		AvatarImageURL:          in.AvatarImageURL,
		AppointmentPriceInCents: in.AppointmentPriceInCents,
	}
	if err := s.repo.CreateDoctor(ctx, d); err != nil {
		return nil, fmt.Errorf("create doctor: %w", err)
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Msg("doctor created")
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, clinicID, id uuid.UUID) (*Doctor, error) {
	d, err := s.repo.GetDoctor(ctx, clinicID, id)
	if err != nil {
		return nil, notFound("doctor", err)
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Doctor, int, error) {
	return s.repo.ListDoctors(ctx, clinicID, search, limit, offset)
}

func (s *Service) UpdateDoctor(ctx context.Context, clinicID, id uuid.UUID, in DoctorInput) (*Doctor, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.checkInput(in); err != nil {
		return nil, err
	}
	d := &Doctor{
		ID:                      id,
		ClinicID:                clinicID,
		Name:                    in.Name,
		Specialty:               in.Specialty,
		AvatarImageURL:          in.AvatarImageURL,
		AppointmentPriceInCents: in.AppointmentPriceInCents,
	}
	if err := s.repo.UpdateDoctor(ctx, d); err != nil {
		return nil, notFound("doctor", err)
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Msg("doctor updated")
	return d, nil
}

func (s *Service) DeleteDoctor(ctx context.Context, clinicID, id uuid.UUID) error {
	if err := s.repo.DeleteDoctor(ctx, clinicID, id); err != nil {
		return notFound("doctor", err)
	}
	s.logger.Info().Str("doctor_id", id.String()).Msg("doctor deleted")
	return nil
}

// TopDoctors ranks the clinic's doctors by appointment count, most booked
// first, ties broken by name. Doctors without appointments are left out.
func (s *Service) TopDoctors(ctx context.Context, clinicID uuid.UUID, limit int) ([]*TopDoctor, error) {
	if limit <= 0 {
		limit = DefaultTopDoctors
	}
	counts, err := s.counter.CountByDoctor(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	doctors, _, err := s.repo.ListDoctors(ctx, clinicID, "", directoryScanLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	top := make([]*TopDoctor, 0, len(doctors))
	for _, d := range doctors {
		n := counts[d.ID]
		if n == 0 {
			continue
		}
		top = append(top, &TopDoctor{
			ID:               d.ID,
			Name:             d.Name,
			Specialty:        d.Specialty,
			AvatarImageURL:   d.AvatarImageURL,
			AppointmentCount: n,
		})
	}
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].AppointmentCount != top[j].AppointmentCount {
			return top[i].AppointmentCount > top[j].AppointmentCount
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/clinic"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/pkg/pagination"
)

// Directory resolves the clinic's patients and doctors. *clinic.Service
// satisfies it.
type Directory interface {
	GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*clinic.Patient, error)
	GetDoctor(ctx context.Context, clinicID, id uuid.UUID) (*clinic.Doctor, error)
	ListPatients(ctx context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*clinic.Patient, int, error)
	ListDoctors(ctx context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*clinic.Doctor, int, error)
}

// Appointments is the slice of the appointment service drafts depend on.
type Appointments interface {
	Upserter
	Get(ctx context.Context, clinicID, id uuid.UUID) (*appointment.Appointment, error)
}

type Option struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type DoctorOption struct {
	Option
	Specialty    string `json:"specialty,omitempty"`
	PriceInCents int    `json:"price_in_cents"`
}

// Options are the choices offered by the patient and doctor selects.
type Options struct {
	Patients []Option       `json:"patients"`
	Doctors  []DoctorOption `json:"doctors"`
}

type entry struct {
	draft   *Draft
	touched time.Time
}

// Manager owns the drafts of every clinic. Drafts idle longer than the TTL
// are dropped by Run.
type Manager struct {
	mu     sync.RWMutex
	drafts map[uuid.UUID]*entry

	dir    Directory
	appts  Appointments
	loc    *time.Location
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func NewManager(dir Directory, appts Appointments, loc *time.Location, ttl time.Duration, logger zerolog.Logger) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Manager{
		drafts: make(map[uuid.UUID]*entry),
		dir:    dir,
		appts:  appts,
		loc:    loc,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With().Str("component", "booking").Logger(),
	}
}

// Create starts an empty draft for clinicID.
func (m *Manager) Create(clinicID uuid.UUID) *Draft {
	d := NewDraft(clinicID, m.loc)
	m.store(d)
	return d
}

// Open starts a draft prefilled from an existing appointment of the clinic.
func (m *Manager) Open(ctx context.Context, clinicID, appointmentID uuid.UUID) (*Draft, error) {
	a, err := m.appts.Get(ctx, clinicID, appointmentID)
	if err != nil {
		return nil, err
	}
	p, err := m.dir.GetPatient(ctx, clinicID, a.PatientID)
	if err != nil {
		return nil, err
	}
	doc, err := m.dir.GetDoctor(ctx, clinicID, a.DoctorID)
	if err != nil {
		return nil, err
	}
	d := NewDraft(clinicID, m.loc)
	d.loadAppointment(a, p.Name, doc.Name, doc.AppointmentPriceInCents)
	m.store(d)
	return d, nil
}

func (m *Manager) store(d *Draft) {
	m.mu.Lock()
	m.drafts[d.ID()] = &entry{draft: d, touched: m.now()}
	m.mu.Unlock()
}

// Get returns the draft if it exists, belongs to clinicID and has not
// expired. Drafts of other clinics are reported as missing.
func (m *Manager) Get(clinicID, id uuid.UUID) (*Draft, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.drafts[id]
	if !ok || e.draft.ClinicID() != clinicID {
		return nil, ErrDraftNotFound
	}
	if now.Sub(e.touched) > m.ttl {
		delete(m.drafts, id)
		return nil, ErrDraftNotFound
	}
	e.touched = now
	return e.draft, nil
}

func (m *Manager) Delete(clinicID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.drafts[id]
	if !ok || e.draft.ClinicID() != clinicID {
		return ErrDraftNotFound
	}
	delete(m.drafts, id)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.drafts)
}

// Sweep drops expired drafts and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.drafts {
		if now.Sub(e.touched) > m.ttl {
			delete(m.drafts, id)
			n++
		}
	}
	return n
}

// Run sweeps expired drafts until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.ttl / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug().Int("expired", n).Msg("swept booking drafts")
			}
		}
	}
}

// Options loads the clinic's patients and doctors for the form selects.
func (m *Manager) Options(ctx context.Context, clinicID uuid.UUID) (*Options, error) {
	patients, err := listAll(ctx, func(ctx context.Context, limit, offset int) ([]*clinic.Patient, int, error) {
		return m.dir.ListPatients(ctx, clinicID, "", limit, offset)
	})
	if err != nil {
		return nil, err
	}
	doctors, err := listAll(ctx, func(ctx context.Context, limit, offset int) ([]*clinic.Doctor, int, error) {
		return m.dir.ListDoctors(ctx, clinicID, "", limit, offset)
	})
	if err != nil {
		return nil, err
	}
	opts := &Options{
		Patients: make([]Option, 0, len(patients)),
		Doctors:  make([]DoctorOption, 0, len(doctors)),
	}
	for _, p := range patients {
		opts.Patients = append(opts.Patients, Option{ID: p.ID, Name: p.Name})
	}
	for _, d := range doctors {
		opts.Doctors = append(opts.Doctors, DoctorOption{
			Option:       Option{ID: d.ID, Name: d.Name},
			Specialty:    d.Specialty,
			PriceInCents: d.AppointmentPriceInCents,
		})
	}
	return opts, nil
}

// listAll walks a directory listing one page at a time until the reported
// total is reached.
func listAll[T any](ctx context.Context, list func(ctx context.Context, limit, offset int) ([]T, int, error)) ([]T, error) {
	var all []T
	for {
		page, total, err := list(ctx, pagination.MaxLimit, len(all))
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) == 0 || len(all) >= total {
			return all, nil
		}
	}
}

// SelectPatient looks the patient up in the draft's clinic before choosing it.
func (m *Manager) SelectPatient(ctx context.Context, d *Draft, patientID uuid.UUID) error {
	p, err := m.dir.GetPatient(ctx, d.ClinicID(), patientID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.Validation("invalid patient", map[string]string{string(FieldPatient): "Patient not found in this clinic."})
		}
		return err
	}
	d.SelectPatient(p.ID, p.Name)
	return nil
}

// SelectDoctor looks the doctor up in the draft's clinic before choosing it.
func (m *Manager) SelectDoctor(ctx context.Context, d *Draft, doctorID uuid.UUID) error {
	if !d.Enabled(FieldDoctor) {
		return &DisabledError{Field: FieldDoctor}
	}
	doc, err := m.dir.GetDoctor(ctx, d.ClinicID(), doctorID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.Validation("invalid doctor", map[string]string{string(FieldDoctor): "Doctor not found in this clinic."})
		}
		return err
	}
	return d.SelectDoctor(doc.ID, doc.Name, doc.AppointmentPriceInCents)
}

// Submit sends the draft to the appointment service.
func (m *Manager) Submit(ctx context.Context, d *Draft) (*appointment.Appointment, error) {
	a, err := d.Submit(ctx, m.appts)
	if err != nil {
		m.logger.Debug().Err(err).Str("draft_id", d.ID().String()).Msg("draft submission rejected")
		return nil, err
	}
	m.logger.Info().
		Str("draft_id", d.ID().String()).
		Str("appointment_id", a.ID.String()).
		Msg("draft submitted")
	return a, nil
}

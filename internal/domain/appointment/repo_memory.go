package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/clinic"
	"github.com/clinic/clinic/pkg/pagination"
)

// ReferenceLookup resolves patients and doctors regardless of clinic, so the
// store can tell a missing reference from one owned by another clinic.
// *clinic.MemoryRepo implements it.
type ReferenceLookup interface {
	FindPatient(ctx context.Context, id uuid.UUID) (*clinic.Patient, error)
	FindDoctor(ctx context.Context, id uuid.UUID) (*clinic.Doctor, error)
}

// MemoryStore keeps appointments in process memory. Transactions are
// serialized under one lock and their writes staged until fn succeeds.
type MemoryStore struct {
	mu   sync.RWMutex
	refs ReferenceLookup
	rows map[uuid.UUID]*Appointment
	now  func() time.Time
}

func NewMemoryStore(refs ReferenceLookup) *MemoryStore {
	return &MemoryStore{
		refs: refs,
		rows: make(map[uuid.UUID]*Appointment),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s, staged: make(map[uuid.UUID]*Appointment)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, a := range tx.staged {
		s.rows[id] = a
	}
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.rows[id]
	if !ok || a.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, clinicID uuid.UUID, f ListFilter, limit, offset int) ([]*Listing, int, error) {
	s.mu.RLock()
	var matched []*Appointment
	for _, a := range s.rows {
		if a.ClinicID != clinicID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Date != "" && a.Date != f.Date {
			continue
		}
		cp := *a
		matched = append(matched, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartsAt.Equal(matched[j].StartsAt) {
			return matched[i].StartsAt.After(matched[j].StartsAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(len(matched))
	items := make([]*Listing, 0, end-start)
	for _, a := range matched[start:end] {
		l := &Listing{Appointment: a}
		if p, err := s.refs.FindPatient(ctx, a.PatientID); err == nil {
			l.PatientName = p.Name
		}
		if d, err := s.refs.FindDoctor(ctx, a.DoctorID); err == nil {
			l.DoctorName = d.Name
		}
		items = append(items, l)
	}
	return items, len(matched), nil
}

func (s *MemoryStore) Delete(_ context.Context, clinicID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok || a.ClinicID != clinicID {
		return ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

// DeleteByPatient drops every appointment of a deleted patient.
func (s *MemoryStore) DeleteByPatient(_ context.Context, patientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.rows {
		if a.PatientID == patientID {
			delete(s.rows, id)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteByDoctor(_ context.Context, doctorID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.rows {
		if a.DoctorID == doctorID {
			delete(s.rows, id)
		}
	}
	return nil
}

func (s *MemoryStore) CountByDoctor(_ context.Context, clinicID uuid.UUID) (map[uuid.UUID]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[uuid.UUID]int)
	for _, a := range s.rows {
		if a.ClinicID == clinicID {
			counts[a.DoctorID]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// memTx runs with the store's write lock held.
type memTx struct {
	store  *MemoryStore
	staged map[uuid.UUID]*Appointment
}

func (t *memTx) PatientClinic(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error) {
	p, err := t.store.refs.FindPatient(ctx, patientID)
	if err != nil {
		return uuid.Nil, ErrNotFound
	}
	return p.ClinicID, nil
}

func (t *memTx) Doctor(ctx context.Context, doctorID uuid.UUID) (DoctorRef, error) {
	d, err := t.store.refs.FindDoctor(ctx, doctorID)
	if err != nil {
		return DoctorRef{}, ErrNotFound
	}
	return DoctorRef{ClinicID: d.ClinicID, PriceInCents: d.AppointmentPriceInCents}, nil
}

func (t *memTx) lookup(id uuid.UUID) (*Appointment, bool) {
	if a, ok := t.staged[id]; ok {
		return a, true
	}
	a, ok := t.store.rows[id]
	return a, ok
}

func (t *memTx) GetForUpdate(_ context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	a, ok := t.lookup(id)
	if !ok || a.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) Insert(_ context.Context, a *Appointment) error {
	if _, exists := t.lookup(a.ID); exists {
		return ErrConflict
	}
	now := t.store.now()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	t.staged[a.ID] = &cp
	return nil
}

func (t *memTx) Update(_ context.Context, a *Appointment) error {
	cur, ok := t.lookup(a.ID)
	if !ok || cur.ClinicID != a.ClinicID {
		return ErrNotFound
	}
	a.CreatedAt = cur.CreatedAt
	a.UpdatedAt = t.store.now()
	cp := *a
	t.staged[a.ID] = &cp
	return nil
}

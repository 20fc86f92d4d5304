package clinic

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/pagination"
)

// MemoryRepo is a Repository kept in process memory. It backs
// STORE_DRIVER=memory and the tests.
type MemoryRepo struct {
	mu       sync.RWMutex
	clinics  map[uuid.UUID]string
	patients map[uuid.UUID]*Patient
	doctors  map[uuid.UUID]*Doctor

	dependents Dependents
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		clinics:  make(map[uuid.UUID]string),
		patients: make(map[uuid.UUID]*Patient),
		doctors:  make(map[uuid.UUID]*Doctor),
	}
}

// SetDependents registers the store whose rows are dropped along with a
// deleted patient or doctor.
func (r *MemoryRepo) SetDependents(d Dependents) {
	r.mu.Lock()
	r.dependents = d
	r.mu.Unlock()
}

func (r *MemoryRepo) EnsureClinic(_ context.Context, id uuid.UUID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clinics[id]; !ok {
		r.clinics[id] = name
	}
	return nil
}

func (r *MemoryRepo) CreatePatient(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	r.patients[p.ID] = &cp
	return nil
}

func (r *MemoryRepo) GetPatient(ctx context.Context, clinicID, id uuid.UUID) (*Patient, error) {
	p, err := r.FindPatient(ctx, id)
	if err != nil || p.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	return p, nil
}

// FindPatient looks a patient up regardless of clinic.
func (r *MemoryRepo) FindPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepo) ListPatients(_ context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Patient, int, error) {
	r.mu.RLock()
	var items []*Patient
	for _, p := range r.patients {
		if p.ClinicID == clinicID && matches(p.Name, search) {
			cp := *p
			items = append(items, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(len(items))
	return items[start:end], len(items), nil
}

func (r *MemoryRepo) UpdatePatient(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.patients[p.ID]
	if !ok || cur.ClinicID != p.ClinicID {
		return ErrNotFound
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	r.patients[p.ID] = &cp
	return nil
}

func (r *MemoryRepo) DeletePatient(ctx context.Context, clinicID, id uuid.UUID) error {
	r.mu.Lock()
	cur, ok := r.patients[id]
	if !ok || cur.ClinicID != clinicID {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.patients, id)
	deps := r.dependents
	r.mu.Unlock()

	// The appointment store reads back through this repo while it holds its
	// own lock, so it is called only after r.mu is released.
	if deps != nil {
		return deps.DeleteByPatient(ctx, id)
	}
	return nil
}

func (r *MemoryRepo) CreateDoctor(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	cp := *d
	r.doctors[d.ID] = &cp
	return nil
}

func (r *MemoryRepo) GetDoctor(ctx context.Context, clinicID, id uuid.UUID) (*Doctor, error) {
	d, err := r.FindDoctor(ctx, id)
	if err != nil || d.ClinicID != clinicID {
		return nil, ErrNotFound
	}
	return d, nil
}

// FindDoctor looks a doctor up regardless of clinic.
func (r *MemoryRepo) FindDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepo) ListDoctors(_ context.Context, clinicID uuid.UUID, search string, limit, offset int) ([]*Doctor, int, error) {
	r.mu.RLock()
	var items []*Doctor
	for _, d := range r.doctors {
		if d.ClinicID == clinicID && matches(d.Name, search) {
			cp := *d
			items = append(items, &cp)
		}
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(len(items))
	return items[start:end], len(items), nil
}

func (r *MemoryRepo) UpdateDoctor(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.doctors[d.ID]
	if !ok || cur.ClinicID != d.ClinicID {
		return ErrNotFound
	}
	d.CreatedAt = cur.CreatedAt
	d.UpdatedAt = time.Now().UTC()
	cp := *d
	r.doctors[d.ID] = &cp
	return nil
}

func (r *MemoryRepo) DeleteDoctor(ctx context.Context, clinicID, id uuid.UUID) error {
	r.mu.Lock()
	cur, ok := r.doctors[id]
	if !ok || cur.ClinicID != clinicID {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.doctors, id)
	deps := r.dependents
	r.mu.Unlock()

	if deps != nil {
		return deps.DeleteByDoctor(ctx, id)
	}
	return nil
}

func matches(name, search string) bool {
	return search == "" || strings.Contains(strings.ToLower(name), strings.ToLower(search))
}

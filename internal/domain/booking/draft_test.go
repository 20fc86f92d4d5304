package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/clinic"
	"github.com/clinic/clinic/internal/platform/apperr"
)

type fixture struct {
	mgr     *Manager
	dir     *clinic.Service
	appts   *appointment.Service
	loc     *time.Location
	clinicA uuid.UUID
	clinicB uuid.UUID
	ana     *clinic.Patient
	bia     *clinic.Patient
	bruno   *clinic.Patient
	silva   *clinic.Doctor
	costa   *clinic.Doctor
	free    *clinic.Doctor
	foreign *clinic.Doctor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatal(err)
	}

	repo := clinic.NewMemoryRepo()
	store := appointment.NewMemoryStore(repo)
	repo.SetDependents(store)
	f := &fixture{
		dir:     clinic.NewService(repo, store, zerolog.Nop()),
		appts:   appointment.NewService(store, loc, zerolog.Nop()),
		loc:     loc,
		clinicA: uuid.New(),
		clinicB: uuid.New(),
	}
	f.mgr = NewManager(f.dir, f.appts, loc, time.Hour, zerolog.Nop())

	patient := func(clinicID uuid.UUID, name string) *clinic.Patient {
		p := &clinic.Patient{ClinicID: clinicID, Name: name, Email: name + "@example.com"}
		if err := repo.CreatePatient(ctx, p); err != nil {
			t.Fatal(err)
		}
		return p
	}
	doctor := func(clinicID uuid.UUID, name string, price int) *clinic.Doctor {
		d := &clinic.Doctor{ClinicID: clinicID, Name: name, AppointmentPriceInCents: price}
		if err := repo.CreateDoctor(ctx, d); err != nil {
			t.Fatal(err)
		}
		return d
	}

	f.ana = patient(f.clinicA, "Ana")
	f.bia = patient(f.clinicA, "Bia")
	f.bruno = patient(f.clinicB, "Bruno")
	f.silva = doctor(f.clinicA, "Dr. Silva", 15000)
	f.costa = doctor(f.clinicA, "Dr. Costa", 20000)
	f.free = doctor(f.clinicA, "Dr. Free", 0)
	f.foreign = doctor(f.clinicB, "Dr. Foreign", 9000)
	return f
}

// ready returns a draft for Ana with Dr. Silva on 2025-03-10 09:00.
func (f *fixture) ready(t *testing.T) *Draft {
	t.Helper()
	d := NewDraft(f.clinicA, f.loc)
	d.SelectPatient(f.ana.ID, f.ana.Name)
	mustOK(t, d.SelectDoctor(f.silva.ID, f.silva.Name, f.silva.AppointmentPriceInCents))
	mustOK(t, d.SelectDate("2025-03-10"))
	mustOK(t, d.SelectTime("09:00"))
	if got := d.Stage(); got != StageReady {
		t.Fatalf("expected ready draft, got %s", got)
	}
	return d
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDraft_PriceFollowsDoctor(t *testing.T) {
	f := newFixture(t)
	d := NewDraft(f.clinicA, f.loc)

	d.SelectPatient(f.ana.ID, f.ana.Name)
	mustOK(t, d.SelectDoctor(f.silva.ID, f.silva.Name, 15000))
	if got := d.PriceDisplay(); got != "150,00" {
		t.Fatalf("expected 150,00, got %q", got)
	}
	if d.Stage() != StagePriceSet {
		t.Errorf("expected price_set, got %s", d.Stage())
	}

	mustOK(t, d.SetPrice("100,00"))
	if got := d.PriceDisplay(); got != "100,00" {
		t.Fatalf("expected override 100,00, got %q", got)
	}
	if !d.View().PriceOverridden {
		t.Error("expected override flag")
	}

	mustOK(t, d.SelectDoctor(f.silva.ID, f.silva.Name, 15000))
	if got := d.PriceDisplay(); got != "100,00" {
		t.Errorf("re-selecting the same doctor must keep the override, got %q", got)
	}

	mustOK(t, d.SelectDoctor(f.costa.ID, f.costa.Name, 20000))
	if got := d.PriceDisplay(); got != "200,00" {
		t.Errorf("expected 200,00 after switching doctor, got %q", got)
	}
	if d.View().PriceOverridden {
		t.Error("switching doctor must clear the override flag")
	}
}

func TestDraft_EnablementIsMonotonic(t *testing.T) {
	f := newFixture(t)
	d := NewDraft(f.clinicA, f.loc)

	steps := []func(){
		func() {},
		func() { d.SelectPatient(f.ana.ID, f.ana.Name) },
		func() { mustOK(t, d.SelectDoctor(f.silva.ID, f.silva.Name, 15000)) },
		func() { mustOK(t, d.SelectDate("2025-03-10")) },
		func() { mustOK(t, d.SelectTime("09:00")) },
	}
	prev := map[Field]bool{}
	prevStage := StageEmpty
	for i, step := range steps {
		step()
		v := d.View()
		for field, was := range prev {
			if was && !v.Enabled[field] {
				t.Errorf("step %d: %s became disabled", i, field)
			}
		}
		if v.Stage < prevStage {
			t.Errorf("step %d: stage went back from %s to %s", i, prevStage, v.Stage)
		}
		prev, prevStage = v.Enabled, v.Stage
	}
	if !prev[FieldSubmit] {
		t.Error("expected submit enabled on a ready draft")
	}
}

func TestDraft_GatedFields(t *testing.T) {
	f := newFixture(t)
	d := NewDraft(f.clinicA, f.loc)

	if err := d.SelectDoctor(f.silva.ID, f.silva.Name, 15000); !errors.Is(err, ErrFieldDisabled) {
		t.Errorf("expected ErrFieldDisabled for doctor, got %v", err)
	}
	if err := d.SetPrice("100,00"); !errors.Is(err, ErrFieldDisabled) {
		t.Errorf("expected ErrFieldDisabled for price, got %v", err)
	}

	d.SelectPatient(f.ana.ID, f.ana.Name)
	if err := d.SelectDate("2025-03-10"); !errors.Is(err, ErrFieldDisabled) {
		t.Errorf("date requires a doctor, got %v", err)
	}
	var disabled *DisabledError
	if err := d.SelectTime("09:00"); !errors.As(err, &disabled) || disabled.Field != FieldTime {
		t.Errorf("expected DisabledError for time, got %v", err)
	}
}

func TestDraft_ChangingPatientClearsDependents(t *testing.T) {
	f := newFixture(t)
	d := f.ready(t)

	d.SelectPatient(f.ana.ID, f.ana.Name)
	if d.Stage() != StageReady {
		t.Fatalf("same patient must be a no-op, got %s", d.Stage())
	}

	d.SelectPatient(f.bia.ID, f.bia.Name)
	v := d.View()
	if v.Stage != StagePatientChosen {
		t.Errorf("expected patient_chosen, got %s", v.Stage)
	}
	if v.DoctorID != nil || v.PriceInCents != 0 || v.Date != "" || v.Time != "" {
		t.Errorf("expected dependents cleared, got %+v", v)
	}
}

func TestDraft_SetPriceRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	d := NewDraft(f.clinicA, f.loc)
	d.SelectPatient(f.ana.ID, f.ana.Name)
	mustOK(t, d.SelectDoctor(f.silva.ID, f.silva.Name, 15000))

	for _, in := range []string{"", "abc", "0,00", "1,234", "-5,00", "1e3", "+5", ".5", "30.000.000,00", "99999999999999999999"} {
		err := d.SetPrice(in)
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("%q: expected validation error, got %v", in, err)
			continue
		}
		if apperr.FieldsOf(err)[string(FieldPrice)] == "" {
			t.Errorf("%q: expected a price cause", in)
		}
	}
	if got := d.PriceDisplay(); got != "150,00" {
		t.Errorf("rejected input must keep the price, got %q", got)
	}
	if d.View().FieldErrors[string(FieldPrice)] == "" {
		t.Error("expected the price error on the draft")
	}

	mustOK(t, d.SetPrice("R$ 1.500,00"))
	if v := d.View(); v.PriceInCents != 150000 || v.FieldErrors[string(FieldPrice)] != "" {
		t.Errorf("expected 150000 and cleared error, got %d %v", v.PriceInCents, v.FieldErrors)
	}
}

func TestDraft_SetPriceAboveStorageRange(t *testing.T) {
	f := newFixture(t)
	d := NewDraft(f.clinicA, f.loc)
	d.SelectPatient(f.ana.ID, f.ana.Name)
	mustOK(t, d.SelectDoctor(f.silva.ID, f.silva.Name, 15000))

	err := d.SetPrice("30.000.000,00")
	if got := apperr.FieldsOf(err)[string(FieldPrice)]; got != msgPriceTooLarge {
		t.Fatalf("expected too-large cause, got %q (%v)", got, err)
	}
	mustOK(t, d.SetPrice("21.474.836,47"))
	if got := d.View().PriceInCents; got != 2147483647 {
		t.Errorf("expected the largest storable price, got %d", got)
	}
}

func TestDraft_ZeroPriceDoctorNeedsManualPrice(t *testing.T) {
	f := newFixture(t)
	d := NewDraft(f.clinicA, f.loc)
	d.SelectPatient(f.ana.ID, f.ana.Name)
	mustOK(t, d.SelectDoctor(f.free.ID, f.free.Name, 0))

	if d.Stage() != StageDoctorChosen {
		t.Fatalf("expected doctor_chosen, got %s", d.Stage())
	}
	if d.PriceDisplay() != "" {
		t.Errorf("expected no price display, got %q", d.PriceDisplay())
	}
	mustOK(t, d.SetPrice("80,00"))
	if d.Stage() != StagePriceSet {
		t.Errorf("expected price_set, got %s", d.Stage())
	}
}

func TestDraft_TimeInDaylightSavingGap(t *testing.T) {
	f := newFixture(t)
	newYork, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	d := NewDraft(f.clinicA, newYork)
	d.SelectPatient(f.ana.ID, f.ana.Name)
	mustOK(t, d.SelectDoctor(f.silva.ID, f.silva.Name, 15000))
	mustOK(t, d.SelectDate("2025-03-09"))
	mustOK(t, d.SelectTime("02:30"))

	if d.Stage() != StageTimeChosen {
		t.Fatalf("expected time_chosen, got %s", d.Stage())
	}
	if d.Enabled(FieldSubmit) {
		t.Error("submit must stay disabled")
	}
	if d.MissingFields()[string(FieldTime)] == "" {
		t.Error("expected a time cause")
	}

	mustOK(t, d.SelectTime("03:30"))
	if d.Stage() != StageReady {
		t.Errorf("expected ready, got %s", d.Stage())
	}
}

func TestDraft_SubmitCreatesThenUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.ready(t)

	first, err := d.Submit(ctx, f.appts)
	mustOK(t, err)
	if first.PriceInCents != 15000 {
		t.Errorf("expected doctor price, got %d", first.PriceInCents)
	}
	if v := d.View(); v.AppointmentID == nil || *v.AppointmentID != first.ID {
		t.Fatalf("expected draft to remember %s", first.ID)
	}

	mustOK(t, d.SelectTime("10:30"))
	second, err := d.Submit(ctx, f.appts)
	mustOK(t, err)
	if second.ID != first.ID {
		t.Errorf("expected update of %s, got %s", first.ID, second.ID)
	}
	if second.Time != "10:30" {
		t.Errorf("expected 10:30, got %s", second.Time)
	}
	_, total, err := f.appts.List(ctx, f.clinicA, appointment.ListFilter{}, 10, 0)
	mustOK(t, err)
	if total != 1 {
		t.Errorf("expected 1 appointment, got %d", total)
	}
}

func TestDraft_SubmitNotReady(t *testing.T) {
	f := newFixture(t)
	d := NewDraft(f.clinicA, f.loc)
	d.SelectPatient(f.ana.ID, f.ana.Name)

	if _, err := d.Submit(context.Background(), f.appts); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	missing := d.MissingFields()
	for _, field := range []Field{FieldDoctor, FieldPrice, FieldDate, FieldTime} {
		if missing[string(field)] == "" {
			t.Errorf("expected %s to be reported missing", field)
		}
	}
	if _, ok := missing[string(FieldPatient)]; ok {
		t.Error("patient is set")
	}
}

type blockingUpserter struct {
	entered chan struct{}
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (b *blockingUpserter) Upsert(_ context.Context, clinicID uuid.UUID, req appointment.UpsertRequest) (*appointment.Appointment, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	close(b.entered)
	<-b.release
	return &appointment.Appointment{ID: uuid.New(), ClinicID: clinicID, PatientID: req.PatientID, DoctorID: req.DoctorID}, nil
}

func TestDraft_SecondSubmitRejectedWhileInFlight(t *testing.T) {
	f := newFixture(t)
	d := f.ready(t)
	up := &blockingUpserter{entered: make(chan struct{}), release: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), up)
		done <- err
	}()
	<-up.entered

	if !d.View().Submitting || d.Enabled(FieldSubmit) {
		t.Error("expected submitting with submit disabled")
	}
	if _, err := d.Submit(context.Background(), up); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("expected ErrSubmissionInFlight, got %v", err)
	}

	close(up.release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if up.calls != 1 {
		t.Errorf("expected exactly one upsert, got %d", up.calls)
	}
	if d.View().Submitting {
		t.Error("expected submitting cleared")
	}
}

type stubUpserter struct {
	err error
}

func (s stubUpserter) Upsert(context.Context, uuid.UUID, appointment.UpsertRequest) (*appointment.Appointment, error) {
	return nil, s.err
}

func TestDraft_SubmitFailureKeepsValues(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantField   string
		wantGeneral string
	}{
		{
			name:      "validation",
			err:       apperr.Validation("invalid", map[string]string{"doctor_id": "reference outside clinic scope"}),
			wantField: "doctor_id",
		},
		{
			name:        "not found",
			err:         apperr.NotFound("appointment not found", nil),
			wantGeneral: "appointment not found",
		},
		{
			name:        "unexpected",
			err:         errors.New("connection reset"),
			wantGeneral: msgSaveFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			d := f.ready(t)
			before := d.View()

			if _, err := d.Submit(context.Background(), stubUpserter{err: tt.err}); err == nil {
				t.Fatal("expected error")
			}
			v := d.View()
			if v.Stage != StageReady || v.Date != before.Date || v.Time != before.Time || v.PriceInCents != before.PriceInCents {
				t.Errorf("values changed: %+v", v)
			}
			if tt.wantField != "" && v.FieldErrors[tt.wantField] == "" {
				t.Errorf("expected field error on %s, got %v", tt.wantField, v.FieldErrors)
			}
			if v.GeneralError != tt.wantGeneral {
				t.Errorf("expected general error %q, got %q", tt.wantGeneral, v.GeneralError)
			}
			if v.AppointmentID != nil {
				t.Error("failed submit must not record an id")
			}
		})
	}
}

func TestDraft_SubmitForeignDoctorReportsField(t *testing.T) {
	f := newFixture(t)
	d := NewDraft(f.clinicA, f.loc)
	d.SelectPatient(f.ana.ID, f.ana.Name)
	mustOK(t, d.SelectDoctor(f.foreign.ID, f.foreign.Name, 9000))
	mustOK(t, d.SelectDate("2025-03-10"))
	mustOK(t, d.SelectTime("09:00"))

	_, err := d.Submit(context.Background(), f.appts)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if d.View().FieldErrors["doctor_id"] == "" {
		t.Error("expected doctor_id cause on the draft")
	}
}

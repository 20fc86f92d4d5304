package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/validate"
	"github.com/clinic/clinic/pkg/money"
)

// Upserter persists a validated appointment request.
type Upserter interface {
	Upsert(ctx context.Context, clinicID uuid.UUID, req appointment.UpsertRequest) (*appointment.Appointment, error)
}

const (
	msgPriceRequired = "Appointment price is required."
	msgPriceInvalid  = "Price must be an amount such as 150,00."
	msgPriceTooLarge = "Price must be at most 21.474.836,47."
	msgDateInvalid   = "Date must be a valid calendar date (YYYY-MM-DD)."
	msgTimeInvalid   = "Time must be HH:MM in 24-hour format."
	msgSaveFailed    = "Could not save the appointment. Try again."
)

// Draft is the server-held state of one booking form. All methods are safe
// for concurrent use.
type Draft struct {
	mu sync.Mutex

	id       uuid.UUID
	clinicID uuid.UUID
	loc      *time.Location

	appointmentID *uuid.UUID

	patientID   uuid.UUID
	patientName string

	doctorID    uuid.UUID
	doctorName  string
	doctorPrice int

	priceInCents    int
	priceOverridden bool

	date  string
	clock string

	fieldErrors  map[string]string
	generalError string
	submitting   bool
}

func NewDraft(clinicID uuid.UUID, loc *time.Location) *Draft {
	return &Draft{
		id:          uuid.New(),
		clinicID:    clinicID,
		loc:         loc,
		fieldErrors: map[string]string{},
	}
}

func (d *Draft) ID() uuid.UUID { return d.id }

func (d *Draft) ClinicID() uuid.UUID { return d.clinicID }

func (d *Draft) Stage() Stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stage()
}

func (d *Draft) stage() Stage {
	switch {
	case d.patientID == uuid.Nil:
		return StageEmpty
	case d.doctorID == uuid.Nil:
		return StagePatientChosen
	case d.priceInCents <= 0:
		return StageDoctorChosen
	case d.date == "":
		return StagePriceSet
	case d.clock == "":
		return StageDateChosen
	}
	if _, ok := appointment.ResolveInstant(d.date, d.clock, d.loc); !ok {
		return StageTimeChosen
	}
	return StageReady
}

// Enabled reports whether a control accepts input.
func (d *Draft) Enabled(f Field) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled(f)
}

func (d *Draft) enabled(f Field) bool {
	hasPatient := d.patientID != uuid.Nil
	hasDoctor := d.doctorID != uuid.Nil
	switch f {
	case FieldPatient:
		return true
	case FieldDoctor:
		return hasPatient
	case FieldPrice:
		return hasPatient && hasDoctor
	case FieldDate, FieldTime:
		return hasPatient && hasDoctor
	case FieldSubmit:
		return d.stage() == StageReady && !d.submitting
	}
	return false
}

func (d *Draft) require(f Field) error {
	if !d.enabled(f) {
		return &DisabledError{Field: f}
	}
	return nil
}

func (d *Draft) reject(f Field, msg string) error {
	d.fieldErrors[string(f)] = msg
	return apperr.Validation("invalid "+strings.ReplaceAll(string(f), "_", " "), map[string]string{string(f): msg})
}

func (d *Draft) accept(f Field) {
	delete(d.fieldErrors, string(f))
	d.generalError = ""
}

// SelectPatient chooses the patient. Choosing a different patient discards
// the doctor, price, date and time picked for the previous one.
func (d *Draft) SelectPatient(id uuid.UUID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id == d.patientID {
		return
	}
	d.patientID = id
	d.patientName = name
	d.doctorID = uuid.Nil
	d.doctorName = ""
	d.doctorPrice = 0
	d.priceInCents = 0
	d.priceOverridden = false
	d.date = ""
	d.clock = ""
	d.fieldErrors = map[string]string{}
	d.generalError = ""
}

// SelectDoctor chooses the doctor and fills the price with the doctor's
// standard price. Switching to another doctor replaces a manual price;
// re-selecting the current doctor keeps it.
func (d *Draft) SelectDoctor(id uuid.UUID, name string, priceInCents int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.require(FieldDoctor); err != nil {
		return err
	}
	d.accept(FieldDoctor)
	if id == d.doctorID {
		return nil
	}
	d.doctorID = id
	d.doctorName = name
	d.doctorPrice = priceInCents
	d.priceInCents = priceInCents
	d.priceOverridden = false
	delete(d.fieldErrors, string(FieldPrice))
	return nil
}

// SetPrice parses a display amount ("100,00", "R$ 1.500,00") and marks the
// price as manually overridden.
func (d *Draft) SetPrice(display string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.require(FieldPrice); err != nil {
		return err
	}
	cents, err := money.Parse(display)
	switch {
	case errors.Is(err, money.ErrEmpty):
		return d.reject(FieldPrice, msgPriceRequired)
	case errors.Is(err, money.ErrTooLarge):
		return d.reject(FieldPrice, msgPriceTooLarge)
	case err != nil:
		return d.reject(FieldPrice, msgPriceInvalid)
	case cents <= 0:
		return d.reject(FieldPrice, msgPriceRequired)
	}
	d.accept(FieldPrice)
	d.priceInCents = cents
	d.priceOverridden = true
	return nil
}

func (d *Draft) SelectDate(date string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.require(FieldDate); err != nil {
		return err
	}
	date = strings.TrimSpace(date)
	if _, err := time.Parse(validate.DateLayout, date); err != nil {
		return d.reject(FieldDate, msgDateInvalid)
	}
	d.accept(FieldDate)
	d.date = date
	return nil
}

func (d *Draft) SelectTime(clock string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.require(FieldTime); err != nil {
		return err
	}
	clock = strings.TrimSpace(clock)
	if !validate.IsClock(clock) {
		return d.reject(FieldTime, msgTimeInvalid)
	}
	d.accept(FieldTime)
	d.clock = clock
	return nil
}

// loadAppointment fills the draft from a stored appointment so that submitting
// updates it. The stored price counts as a manual choice.
func (d *Draft) loadAppointment(a *appointment.Appointment, patientName, doctorName string, doctorPrice int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := a.ID
	d.appointmentID = &id
	d.patientID, d.patientName = a.PatientID, patientName
	d.doctorID, d.doctorName, d.doctorPrice = a.DoctorID, doctorName, doctorPrice
	d.priceInCents = a.PriceInCents
	d.priceOverridden = true
	d.date, d.clock = a.Date, a.Time
}

// MissingFields lists the controls that still block submission with the
// cause to show next to each.
func (d *Draft) MissingFields() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.missingFields()
}

func (d *Draft) missingFields() map[string]string {
	out := map[string]string{}
	if d.patientID == uuid.Nil {
		out[string(FieldPatient)] = "Patient is required."
	}
	if d.doctorID == uuid.Nil {
		out[string(FieldDoctor)] = "Doctor is required."
	}
	if d.priceInCents <= 0 {
		out[string(FieldPrice)] = msgPriceRequired
	}
	if d.date == "" {
		out[string(FieldDate)] = "Date is required."
	}
	if d.clock == "" {
		out[string(FieldTime)] = "Time is required."
	}
	if len(out) == 0 && d.stage() == StageTimeChosen {
		out[string(FieldTime)] = "Time does not exist on this date in the clinic time zone."
	}
	return out
}

func (d *Draft) input() appointment.UpsertInput {
	price := d.priceInCents
	in := appointment.UpsertInput{
		PatientID:    d.patientID.String(),
		DoctorID:     d.doctorID.String(),
		Date:         d.date,
		Time:         d.clock,
		PriceInCents: &price,
	}
	if d.appointmentID != nil {
		in.ID = d.appointmentID.String()
	}
	return in
}

// Submit validates the draft and hands it to up. Only one submission may be
// in flight; a second call while one is pending fails with
// ErrSubmissionInFlight. The lock is not held while up runs. On failure the
// draft keeps its values and records field or general errors; on success it
// remembers the appointment id so later submits update it.
func (d *Draft) Submit(ctx context.Context, up Upserter) (*appointment.Appointment, error) {
	d.mu.Lock()
	if d.submitting {
		d.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if d.stage() != StageReady {
		d.mu.Unlock()
		return nil, ErrNotReady
	}
	d.submitting = true
	d.fieldErrors = map[string]string{}
	d.generalError = ""
	in := d.input()
	clinicID := d.clinicID
	d.mu.Unlock()

	a, err := submit(ctx, up, clinicID, in)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitting = false
	if err != nil {
		if fields := apperr.FieldsOf(err); len(fields) > 0 {
			for k, v := range fields {
				d.fieldErrors[k] = v
			}
		} else if appErr, ok := apperr.As(err); ok && appErr.Message != "" {
			d.generalError = appErr.Message
		} else {
			d.generalError = msgSaveFailed
		}
		return nil, err
	}
	id := a.ID
	d.appointmentID = &id
	return a, nil
}

func submit(ctx context.Context, up Upserter, clinicID uuid.UUID, in appointment.UpsertInput) (*appointment.Appointment, error) {
	req, err := appointment.ValidateUpsert(in)
	if err != nil {
		return nil, err
	}
	return up.Upsert(ctx, clinicID, req)
}

// View is a point-in-time copy of a draft for rendering.
type View struct {
	ID              uuid.UUID         `json:"id"`
	AppointmentID   *uuid.UUID        `json:"appointment_id,omitempty"`
	Stage           Stage             `json:"stage"`
	PatientID       *uuid.UUID        `json:"patient_id,omitempty"`
	PatientName     string            `json:"patient_name,omitempty"`
	DoctorID        *uuid.UUID        `json:"doctor_id,omitempty"`
	DoctorName      string            `json:"doctor_name,omitempty"`
	DoctorPrice     int               `json:"doctor_price_in_cents,omitempty"`
	PriceInCents    int               `json:"price_in_cents"`
	PriceDisplay    string            `json:"price_display"`
	PriceOverridden bool              `json:"price_overridden"`
	Date            string            `json:"date,omitempty"`
	Time            string            `json:"time,omitempty"`
	Enabled         map[Field]bool    `json:"enabled"`
	FieldErrors     map[string]string `json:"field_errors,omitempty"`
	GeneralError    string            `json:"general_error,omitempty"`
	Submitting      bool              `json:"submitting"`
	Options         *Options          `json:"options,omitempty"`
}

func (d *Draft) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := View{
		ID:              d.id,
		Stage:           d.stage(),
		PatientName:     d.patientName,
		DoctorName:      d.doctorName,
		DoctorPrice:     d.doctorPrice,
		PriceInCents:    d.priceInCents,
		PriceOverridden: d.priceOverridden,
		Date:            d.date,
		Time:            d.clock,
		Enabled:         make(map[Field]bool, len(formFields)),
		GeneralError:    d.generalError,
		Submitting:      d.submitting,
	}
	if d.priceInCents > 0 {
		v.PriceDisplay = money.Format(d.priceInCents)
	}
	if d.appointmentID != nil {
		id := *d.appointmentID
		v.AppointmentID = &id
	}
	if d.patientID != uuid.Nil {
		id := d.patientID
		v.PatientID = &id
	}
	if d.doctorID != uuid.Nil {
		id := d.doctorID
		v.DoctorID = &id
	}
	for _, f := range formFields {
		v.Enabled[f] = d.enabled(f)
	}
	if len(d.fieldErrors) > 0 {
		v.FieldErrors = make(map[string]string, len(d.fieldErrors))
		for k, msg := range d.fieldErrors {
			v.FieldErrors[k] = msg
		}
	}
	return v
}

// PriceDisplay returns the price as shown in the form ("150,00"), or "" when
// no price is set.
func (d *Draft) PriceDisplay() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.priceInCents <= 0 {
		return ""
	}
	return money.Format(d.priceInCents)
}

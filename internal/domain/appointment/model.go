package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/validate"
	"github.com/clinic/clinic/pkg/money"
)

type Appointment struct {
	ID           uuid.UUID `json:"id"`
	ClinicID     uuid.UUID `json:"-"`
	PatientID    uuid.UUID `json:"patient_id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	StartsAt     time.Time `json:"starts_at"`
	PriceInCents int       `json:"price_in_cents"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Listing is an appointment row as shown in the clinic's appointment table.
type Listing struct {
	*Appointment
	PatientName string `json:"patient_name"`
	DoctorName  string `json:"doctor_name"`
}

// Label renders "Ana • Dr. Silva • 10/03/2025 09:00".
func (l *Listing) Label() string {
	day := l.Date
	if d, err := time.Parse(validate.DateLayout, l.Date); err == nil {
		day = d.Format("02/01/2006")
	}
	return fmt.Sprintf("%s • %s • %s %s", l.PatientName, l.DoctorName, day, l.Time)
}

func (a *Appointment) PriceDisplay() string {
	return money.FormatCurrency(a.PriceInCents)
}

type ListFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Date      string
}

// ResolveInstant combines a civil date ("2006-01-02") and a clock time
// ("15:04") in loc. It reports false when either part is malformed or when
// the wall-clock time does not exist on that day, as happens inside a
// daylight-saving gap.
func ResolveInstant(date, clock string, loc *time.Location) (time.Time, bool) {
	if !validate.IsClock(clock) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(validate.DateLayout+" 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, false
	}
	if t.Format(validate.DateLayout) != date || t.Format("15:04") != clock {
		return time.Time{}, false
	}
	return t, true
}

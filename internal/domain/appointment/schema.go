package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/validate"
)

// UpsertInput is the wire shape of an upsert request.
type UpsertInput struct {
	ID           string `json:"id" validate:"omitempty,uuid"`
	PatientID    string `json:"patient_id" validate:"required,uuid"`
	DoctorID     string `json:"doctor_id" validate:"required,uuid"`
	Date         string `json:"date" validate:"required,civildate"`
	Time         string `json:"time" validate:"required,clock"`
	PriceInCents *int   `json:"price_in_cents" validate:"omitempty,gte=0,lte=2147483647"`
}

// UpsertRequest is an UpsertInput that passed ValidateUpsert. A nil ID means
// create; a nil PriceInCents means the doctor's standard price.
type UpsertRequest struct {
	ID           *uuid.UUID
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	Date         string
	Time         string
	PriceInCents *int
}

var schemaMessages = map[string]string{
	"id":                  "Appointment id must be a valid identifier.",
	"patient_id.required": "Patient is required.",
	"patient_id.uuid":     "Patient must be a valid identifier.",
	"doctor_id.required":  "Doctor is required.",
	"doctor_id.uuid":      "Doctor must be a valid identifier.",
	"date.required":       "Date is required.",
	"date.civildate":      "Date must be a valid calendar date (YYYY-MM-DD).",
	"time.required":       "Time is required.",
	"time.clock":          "Time must be HH:MM in 24-hour format.",
	"price_in_cents.gte":  "Price must not be negative.",
	"price_in_cents.lte":  "Price must be at most 21.474.836,47.",
}

var schema = validate.New()

// ValidateUpsert checks every field of raw and returns all violations at
// once as an apperr validation error.
func ValidateUpsert(raw UpsertInput) (UpsertRequest, error) {
	raw.ID = strings.TrimSpace(raw.ID)
	raw.PatientID = strings.TrimSpace(raw.PatientID)
	raw.DoctorID = strings.TrimSpace(raw.DoctorID)
	raw.Date = strings.TrimSpace(raw.Date)
	raw.Time = strings.TrimSpace(raw.Time)

	if err := schema.Struct(raw); err != nil {
		fields := validate.Fields(err, schemaMessages)
		if fields == nil {
			fields = map[string]string{"": err.Error()}
		}
		return UpsertRequest{}, apperr.Validation("invalid appointment", fields)
	}

	req := UpsertRequest{
		PatientID:    uuid.MustParse(raw.PatientID),
		DoctorID:     uuid.MustParse(raw.DoctorID),
		Date:         raw.Date,
		Time:         raw.Time,
		PriceInCents: raw.PriceInCents,
	}
	if raw.ID != "" {
		id := uuid.MustParse(raw.ID)
		req.ID = &id
	}
	return req, nil
}

// StartsAt resolves the request's date and time in loc.
func (r UpsertRequest) StartsAt(loc *time.Location) (time.Time, bool) {
	return ResolveInstant(r.Date, r.Time, loc)
}

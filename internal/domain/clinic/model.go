package clinic

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/pkg/money"
)

type Patient struct {
	ID          uuid.UUID `json:"id"`
	ClinicID    uuid.UUID `json:"-"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phone_number"`
	Sex         string    `json:"sex"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Doctor struct {
	ID                      uuid.UUID `json:"id"`
	ClinicID                uuid.UUID `json:"-"`
	Name                    string    `json:"name"`
	Specialty               string    `json:"specialty"`
	AvatarImageURL          string    `json:"avatar_image_url"`
	AppointmentPriceInCents int       `json:"appointment_price_in_cents"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// PriceDisplay renders the doctor's standard price as "R$ 150,00".
func (d *Doctor) PriceDisplay() string {
	return money.FormatCurrency(d.AppointmentPriceInCents)
}

// TopDoctor is a dashboard row: a doctor and how many appointments the clinic
// has booked with them.
type TopDoctor struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Specialty        string    `json:"specialty"`
	AvatarImageURL   string    `json:"avatar_image_url"`
	AppointmentCount int       `json:"appointment_count"`
}

type PatientInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,max=32"`
	Sex         string `json:"sex" validate:"omitempty,oneof=male female"`
}

type DoctorInput struct {
	Name                    string `json:"name" validate:"required,max=255"`
	Specialty               string `json:"specialty" validate:"max=255"`
	AvatarImageURL          string `json:"avatar_image_url" validate:"omitempty,url"`
	AppointmentPriceInCents int    `json:"appointment_price_in_cents" validate:"gte=0,lte=2147483647"`
}

var inputMessages = map[string]string{
	"name.required":                  "Name is required.",
	"email.required":                 "Email is required.",
	"email.email":                    "Email is invalid.",
	"sex":                            "Sex must be male or female.",
	"avatar_image_url":               "Avatar must be a URL.",
	"appointment_price_in_cents.gte": "Appointment price must not be negative.",
	"appointment_price_in_cents.lte": "Appointment price must be at most 21.474.836,47.",
}

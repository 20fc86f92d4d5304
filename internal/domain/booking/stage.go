package booking

import (
	"errors"
	"fmt"
)

// Stage is how far a draft has progressed through the booking form. Stages
// are derived from the draft's values in strict order; a later stage implies
// every earlier one.
type Stage int

const (
	StageEmpty Stage = iota
	StagePatientChosen
	StageDoctorChosen
	StagePriceSet
	StageDateChosen
	StageTimeChosen
	StageReady
)

var stageNames = [...]string{
	StageEmpty:         "empty",
	StagePatientChosen: "patient_chosen",
	StageDoctorChosen:  "doctor_chosen",
	StagePriceSet:      "price_set",
	StageDateChosen:    "date_chosen",
	StageTimeChosen:    "time_chosen",
	StageReady:         "ready",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	for i, name := range stageNames {
		if name == string(b) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("booking: unknown stage %q", b)
}

// Field names a form control. Values match the upsert request's field names
// so validation causes map straight onto controls.
type Field string

const (
	FieldPatient Field = "patient_id"
	FieldDoctor  Field = "doctor_id"
	FieldPrice   Field = "price_in_cents"
	FieldDate    Field = "date"
	FieldTime    Field = "time"
	FieldSubmit  Field = "submit"
)

var formFields = []Field{FieldPatient, FieldDoctor, FieldPrice, FieldDate, FieldTime, FieldSubmit}

var (
	ErrFieldDisabled      = errors.New("booking: field is disabled")
	ErrSubmissionInFlight = errors.New("booking: a submission is already in progress")
	ErrNotReady           = errors.New("booking: draft is not ready to submit")
	ErrDraftNotFound      = errors.New("booking: draft not found")
)

// DisabledError reports an edit to a control whose prerequisites are unset.
type DisabledError struct {
	Field Field
}

func (e *DisabledError) Error() string {
	return fmt.Sprintf("booking: %s is disabled", e.Field)
}

func (e *DisabledError) Is(target error) bool { return target == ErrFieldDisabled }

// disabledCause is shown next to a control that cannot be edited yet.
func disabledCause(f Field) string {
	switch f {
	case FieldDoctor:
		return "Select a patient first."
	case FieldPrice:
		return "Select a doctor first."
	case FieldSubmit:
		return "Complete the form before submitting."
	default:
		return "Select a patient and a doctor first."
	}
}

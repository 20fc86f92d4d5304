// Package validate wraps go-playground/validator with the clinic's custom
// rules and turns its errors into field → message maps.
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the civil date format accepted on the wire.
const DateLayout = "2006-01-02"

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// New returns a validator that reports fields by their json name and knows
// the "civildate" (YYYY-MM-DD) and "clock" (HH:MM, 24h) tags.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails on empty tags or nil funcs.
	_ = v.RegisterValidation("civildate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateLayout, fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return IsClock(fl.Field().String())
	})
	return v
}

// IsClock reports whether s is a 24-hour "HH:MM" time.
func IsClock(s string) bool {
	return clockPattern.MatchString(s)
}

// Fields converts validator errors into a field → message map. messages is
// looked up by "field.tag" first, then by "field"; unknown pairs fall back to
// a generic message. It returns nil when err holds no field errors.
func Fields(err error, messages map[string]string) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if _, seen := out[field]; seen {
			continue
		}
		if msg, ok := messages[field+"."+fe.Tag()]; ok {
			out[field] = msg
		} else if msg, ok := messages[field]; ok {
			out[field] = msg
		} else {
			out[field] = "Invalid value for " + field + "."
		}
	}
	return out
}

package validate

import (
	"testing"
)

type sample struct {
	Name string `json:"name" validate:"required"`
	Date string `json:"date" validate:"required,civildate"`
	Time string `json:"time" validate:"required,clock"`
	Skip string `json:"-"`
}

func TestNew_CustomTags(t *testing.T) {
	v := New()
	tests := []struct {
		name   string
		in     sample
		fields []string
	}{
		{"valid", sample{Name: "a", Date: "2025-03-10", Time: "09:00"}, nil},
		{"bad date", sample{Name: "a", Date: "2025-02-30", Time: "09:00"}, []string{"date"}},
		{"bad time", sample{Name: "a", Date: "2025-03-10", Time: "24:00"}, []string{"time"}},
		{"all missing", sample{}, []string{"name", "date", "time"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fields(v.Struct(tt.in), nil)
			if len(got) != len(tt.fields) {
				t.Fatalf("expected %d field errors, got %v", len(tt.fields), got)
			}
			for _, f := range tt.fields {
				if _, ok := got[f]; !ok {
					t.Errorf("expected error on %s, got %v", f, got)
				}
			}
		})
	}
}

func TestFields_MessageLookup(t *testing.T) {
	v := New()
	err := v.Struct(sample{Date: "bad", Time: "09:00"})
	got := Fields(err, map[string]string{
		"name.required": "Name is required.",
		"date":          "Date is invalid.",
	})
	if got["name"] != "Name is required." {
		t.Errorf("unexpected name message %q", got["name"])
	}
	if got["date"] != "Date is invalid." {
		t.Errorf("unexpected date message %q", got["date"])
	}
}

func TestIsClock(t *testing.T) {
	for _, s := range []string{"00:00", "09:30", "23:59"} {
		if !IsClock(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range []string{"9:30", "24:00", "12:60", "12:00:00", ""} {
		if IsClock(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

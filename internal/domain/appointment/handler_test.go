package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

func (f *fixture) context(method, target, body string, clinicID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(db.WithClinicID(req.Context(), clinicID))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_UpsertCreates(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	body := fmt.Sprintf(`{"patient_id":%q,"doctor_id":%q,"date":"2025-03-10","time":"09:00"}`, f.ana.ID, f.silva.ID)

	c, rec := f.context(http.MethodPost, "/appointments", body, f.clinicA)
	if err := h.UpsertAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["price_display"] != "R$ 150,00" {
		t.Errorf("unexpected price display %v", out["price_display"])
	}
	if _, leaked := out["clinic_id"]; leaked {
		t.Error("clinic id must not be exposed")
	}
}

func TestHandler_UpsertIgnoresClinicInBody(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	body := fmt.Sprintf(`{"clinic_id":%q,"patient_id":%q,"doctor_id":%q,"date":"2025-03-10","time":"09:00"}`,
		f.clinicB, f.ana.ID, f.silva.ID)

	c, _ := f.context(http.MethodPost, "/appointments", body, f.clinicA)
	if err := h.UpsertAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, total, _ := f.svc.List(context.Background(), f.clinicA, ListFilter{}, 10, 0)
	if total != 1 {
		t.Error("expected appointment in the session's clinic")
	}
}

func TestHandler_UpsertValidationError(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)

	c, _ := f.context(http.MethodPost, "/appointments", `{"date":"2025-03-10"}`, f.clinicA)
	err := h.UpsertAppointment(c)
	fields := apperr.FieldsOf(err)
	if fields["patient_id"] != "Patient is required." || fields["doctor_id"] != "Doctor is required." || fields["time"] != "Time is required." {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestHandler_UpdateUsesPathID(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	created := f.create(t)
	body := fmt.Sprintf(`{"patient_id":%q,"doctor_id":%q,"date":"2025-03-10","time":"10:00"}`, f.ana.ID, f.costa.ID)

	c, rec := f.context(http.MethodPut, "/", body, f.clinicA)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.UpdateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	stored, _ := f.svc.Get(context.Background(), f.clinicA, created.ID)
	if stored.Time != "10:00" || stored.DoctorID != f.costa.ID {
		t.Errorf("expected update applied, got %+v", stored)
	}
}

func TestHandler_UpdateMismatchedID(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	body := fmt.Sprintf(`{"id":%q,"patient_id":%q,"doctor_id":%q,"date":"2025-03-10","time":"10:00"}`,
		uuid.New(), f.ana.ID, f.costa.ID)

	c, _ := f.context(http.MethodPut, "/", body, f.clinicA)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if _, ok := apperr.FieldsOf(h.UpdateAppointment(c))["id"]; !ok {
		t.Error("expected id mismatch to be a field error")
	}
}

func TestHandler_GetAndDelete(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	created := f.create(t)

	c, rec := f.context(http.MethodGet, "/", "", f.clinicA)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.GetAppointment(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, rec = f.context(http.MethodDelete, "/", "", f.clinicA)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.DeleteAppointment(c); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c, _ = f.context(http.MethodGet, "/", "", f.clinicA)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.GetAppointment(c); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("expected NotFound after delete, got %v", err)
	}
}

func TestHandler_ListIncludesLabel(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	f.create(t)

	c, rec := f.context(http.MethodGet, "/appointments?date=2025-03-10", "", f.clinicA)
	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"label":"Ana • Dr. Silva • 10/03/2025 09:00"`) {
		t.Errorf("expected label in %s", rec.Body.String())
	}
}

func TestHandler_ListRejectsBadFilters(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	for _, q := range []string{"?date=10-03-2025", "?doctor_id=d1", "?patient_id=p1"} {
		c, _ := f.context(http.MethodGet, "/appointments"+q, "", f.clinicA)
		he, ok := h.ListAppointments(c).(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400", q)
		}
	}
}

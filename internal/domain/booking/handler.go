package booking

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/appointment-drafts", auth.RequireRole(auth.RoleReceptionist))
	g.POST("", h.CreateDraft)
	g.GET("/:id", h.GetDraft)
	g.DELETE("/:id", h.DeleteDraft)
	g.PUT("/:id/patient", h.SelectPatient)
	g.PUT("/:id/doctor", h.SelectDoctor)
	g.PUT("/:id/price", h.SetPrice)
	g.PUT("/:id/date", h.SelectDate)
	g.PUT("/:id/time", h.SelectTime)
	g.POST("/:id/submit", h.Submit)
}

type createRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type valueRequest struct {
	Value string `json:"value"`
}

type submitResponse struct {
	Draft         View      `json:"draft"`
	AppointmentID uuid.UUID `json:"appointment_id"`
}

func clinicID(c echo.Context) (uuid.UUID, error) {
	id, ok := db.ClinicFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "missing clinic scope")
	}
	return id, nil
}

func (h *Handler) draft(c echo.Context) (*Draft, error) {
	cid, err := clinicID(c)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid draft id")
	}
	d, err := h.mgr.Get(cid, id)
	if err != nil {
		return nil, toHTTP(d, err)
	}
	return d, nil
}

// toHTTP renders draft sentinels as apperr kinds.
func toHTTP(d *Draft, err error) error {
	var disabled *DisabledError
	switch {
	case errors.Is(err, ErrDraftNotFound):
		return apperr.NotFound("draft not found", err)
	case errors.As(err, &disabled):
		return apperr.Validation("field is disabled", map[string]string{string(disabled.Field): disabledCause(disabled.Field)})
	case errors.Is(err, ErrSubmissionInFlight):
		return apperr.Conflict("a submission is already in progress", err)
	case errors.Is(err, ErrNotReady):
		return apperr.Validation("draft is incomplete", d.MissingFields())
	}
	return err
}

func (h *Handler) view(c echo.Context, status int, d *Draft) error {
	v := d.View()
	opts, err := h.mgr.Options(c.Request().Context(), d.ClinicID())
	if err != nil {
		return err
	}
	v.Options = opts
	return c.JSON(status, v)
}

func (h *Handler) CreateDraft(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}
	var req createRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if req.AppointmentID == "" {
		return h.view(c, http.StatusCreated, h.mgr.Create(cid))
	}
	apptID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		return apperr.Validation("invalid appointment id", map[string]string{"appointment_id": "Appointment id must be a valid identifier."})
	}
	d, err := h.mgr.Open(c.Request().Context(), cid, apptID)
	if err != nil {
		return err
	}
	return h.view(c, http.StatusCreated, d)
}

func (h *Handler) GetDraft(c echo.Context) error {
	d, err := h.draft(c)
	if err != nil {
		return err
	}
	return h.view(c, http.StatusOK, d)
}

func (h *Handler) DeleteDraft(c echo.Context) error {
	d, err := h.draft(c)
	if err != nil {
		return err
	}
	if err := h.mgr.Delete(d.ClinicID(), d.ID()); err != nil {
		return toHTTP(d, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// mutate binds {"value": ...}, applies fn and renders the draft.
func (h *Handler) mutate(c echo.Context, fn func(d *Draft, value string) error) error {
	d, err := h.draft(c)
	if err != nil {
		return err
	}
	var req valueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := fn(d, req.Value); err != nil {
		return toHTTP(d, err)
	}
	return c.JSON(http.StatusOK, d.View())
}

func parseRef(f Field, value, msg string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid "+string(f), map[string]string{string(f): msg})
	}
	return id, nil
}

func (h *Handler) SelectPatient(c echo.Context) error {
	return h.mutate(c, func(d *Draft, value string) error {
		id, err := parseRef(FieldPatient, value, "Patient is required.")
		if err != nil {
			return err
		}
		return h.mgr.SelectPatient(c.Request().Context(), d, id)
	})
}

func (h *Handler) SelectDoctor(c echo.Context) error {
	return h.mutate(c, func(d *Draft, value string) error {
		id, err := parseRef(FieldDoctor, value, "Doctor is required.")
		if err != nil {
			return err
		}
		return h.mgr.SelectDoctor(c.Request().Context(), d, id)
	})
}

func (h *Handler) SetPrice(c echo.Context) error {
	return h.mutate(c, func(d *Draft, value string) error { return d.SetPrice(value) })
}

func (h *Handler) SelectDate(c echo.Context) error {
	return h.mutate(c, func(d *Draft, value string) error { return d.SelectDate(value) })
}

func (h *Handler) SelectTime(c echo.Context) error {
	return h.mutate(c, func(d *Draft, value string) error { return d.SelectTime(value) })
}

func (h *Handler) Submit(c echo.Context) error {
	d, err := h.draft(c)
	if err != nil {
		return err
	}
	a, err := h.mgr.Submit(c.Request().Context(), d)
	if err != nil {
		return toHTTP(d, err)
	}
	return c.JSON(http.StatusOK, submitResponse{Draft: d.View(), AppointmentID: a.ID})
}

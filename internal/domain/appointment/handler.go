package appointment

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/validate"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleReceptionist, auth.RoleDoctor))
	read.GET("/appointments", h.ListAppointments)
	read.GET("/appointments/:id", h.GetAppointment)

	write := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	write.POST("/appointments", h.UpsertAppointment)
	write.PUT("/appointments/:id", h.UpdateAppointment)
	write.DELETE("/appointments/:id", h.DeleteAppointment)
}

type appointmentView struct {
	*Appointment
	PriceDisplay string `json:"price_display"`
}

type listingView struct {
	*Listing
	PriceDisplay string `json:"price_display"`
	Label        string `json:"label"`
}

func clinicID(c echo.Context) (uuid.UUID, error) {
	id, ok := db.ClinicFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "missing clinic scope")
	}
	return id, nil
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) upsert(c echo.Context, in UpsertInput) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}
	req, err := ValidateUpsert(in)
	if err != nil {
		return err
	}
	a, err := h.svc.Upsert(c.Request().Context(), cid, req)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if req.ID == nil {
		status = http.StatusCreated
	}
	return c.JSON(status, appointmentView{Appointment: a, PriceDisplay: a.PriceDisplay()})
}

// UpsertAppointment creates an appointment, or updates one when the body
// carries an id.
func (h *Handler) UpsertAppointment(c echo.Context) error {
	var in UpsertInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	return h.upsert(c, in)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in UpsertInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if in.ID != "" && in.ID != id.String() {
		return apperr.Validation("invalid appointment", map[string]string{
			"id": "Appointment id does not match the URL.",
		})
	}
	in.ID = id.String()
	return h.upsert(c, in)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Request().Context(), cid, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, appointmentView{Appointment: a, PriceDisplay: a.PriceDisplay()})
}

func (h *Handler) ListAppointments(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}
	var f ListFilter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("doctor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
		f.DoctorID = &id
	}
	if v := c.QueryParam("date"); v != "" {
		if _, err := time.Parse(validate.DateLayout, v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date")
		}
		f.Date = v
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), cid, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	views := make([]listingView, 0, len(items))
	for _, l := range items {
		views = append(views, listingView{Listing: l, PriceDisplay: l.PriceDisplay(), Label: l.Label()})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	cid, err := clinicID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), cid, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

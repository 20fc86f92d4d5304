package db

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const ClinicIDKey contextKey = "clinic_id"

// ClinicMiddleware resolves the caller's clinic from the verified token claim
// set by the auth middleware. Headers and query parameters are never consulted,
// so a caller cannot act on another clinic's records.
func ClinicMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, _ := c.Get("jwt_clinic_id").(string)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing clinic scope")
			}
			clinicID, err := uuid.Parse(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid clinic scope")
			}

			ctx := WithClinicID(c.Request().Context(), clinicID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("clinic_id", clinicID)

			return next(c)
		}
	}
}

func WithClinicID(ctx context.Context, clinicID uuid.UUID) context.Context {
	return context.WithValue(ctx, ClinicIDKey, clinicID)
}

// ClinicFromContext returns the clinic resolved by ClinicMiddleware.
func ClinicFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ClinicIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

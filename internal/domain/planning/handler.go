package planning

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/galepedia/galepedia/internal/platform/auth"
	"github.com/galepedia/galepedia/internal/platform/metrics"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RolePharmacist, auth.RolePreparator))
	read.GET("/appointments", h.ListAppointments)
	read.GET("/appointments/:id", h.GetAppointment)
	read.GET("/planning/days/:date", h.GetDay)
	read.GET("/planning/month", h.GetMonth)
	read.POST("/planning/suggest", h.Suggest)
	read.POST("/appointments", h.CreateAppointment)

	write := api.Group("", auth.RequireRole(auth.RolePharmacist))
	write.DELETE("/appointments/:id", h.DeleteAppointment)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.List(c.QueryParam("from"), c.QueryParam("to")))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = uuid.Nil
	a.CreatedAt = time.Time{}
	if err := h.svc.Schedule(c.Request().Context(), &a); err != nil {
		return scheduleError(err)
	}
	metrics.AppointmentsBooked.Inc()
	return c.JSON(http.StatusCreated, a)
}

func scheduleError(err error) error {
	switch {
	case errors.Is(err, ErrCapacityExceeded):
		metrics.AppointmentsRejected.WithLabelValues("capacity").Inc()
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrDayClosed):
		metrics.AppointmentsRejected.WithLabelValues("closed").Inc()
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrDuplicateAppointment):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Cancel(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetDay(c echo.Context) error {
	day, err := h.svc.Day(c.Param("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, day)
}

func (h *Handler) GetMonth(c echo.Context) error {
	now := time.Now().In(h.svc.Calendar().Location())
	year, month := now.Year(), int(now.Month())
	if v := c.QueryParam("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
		year = n
	}
	if v := c.QueryParam("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			return echo.NewHTTPError(http.StatusBadRequest, "month must be between 1 and 12")
		}
		month = n
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"year":     year,
		"month":    month,
		"capacity": h.svc.Capacity(),
		"days":     h.svc.Month(year, time.Month(month)),
	})
}

// SuggestRequest either names a patient whose latest treatment is renewed,
// or carries the raw search inputs. LastPrepTimestamp is in Unix milliseconds.
type SuggestRequest struct {
	PatientID         string     `json:"patient_id"`
	Molecule          string     `json:"molecule"`
	DurationDays      int        `json:"duration_days"`
	LastPrep          *time.Time `json:"last_prep,omitempty"`
	LastPrepTimestamp *int64     `json:"last_prep_timestamp,omitempty"`
}

func (h *Handler) Suggest(c echo.Context) error {
	var req SuggestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var lastPrep time.Time
	switch {
	case req.LastPrep != nil:
		lastPrep = *req.LastPrep
	case req.LastPrepTimestamp != nil:
		lastPrep = time.UnixMilli(*req.LastPrepTimestamp)
	}

	if lastPrep.IsZero() && req.DurationDays == 0 {
		if req.PatientID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "patient_id or duration_days with last_prep is required")
		}
		res, err := h.svc.SuggestForPatient(c.Request().Context(), req.PatientID)
		if err != nil {
			switch {
			case errors.Is(err, ErrNoHistory):
				return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
			case errors.Is(err, ErrLookupUnwired):
				return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
			case errors.Is(err, ErrPatientUnknown):
				return echo.NewHTTPError(http.StatusNotFound, err.Error())
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, res)
	}

	if req.DurationDays < 0 || req.DurationDays > MaxDurationDays {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("duration_days must be between 0 and %d", MaxDurationDays))
	}
	if lastPrep.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "last_prep or last_prep_timestamp is required")
	}
	return c.JSON(http.StatusOK, h.svc.Suggest(req.PatientID, req.Molecule, req.DurationDays, lastPrep))
}

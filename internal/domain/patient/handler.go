package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/galepedia/galepedia/internal/domain/compounding"
	"github.com/galepedia/galepedia/internal/platform/auth"
	"github.com/galepedia/galepedia/internal/platform/metrics"
	"github.com/galepedia/galepedia/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePharmacist, auth.RolePreparator))
	g.POST("/preparations", h.RecordPreparation)
	g.GET("/patients", h.ListPatients)
	g.GET("/patients/:id", h.GetPatient)
	g.GET("/patients/:id/status", h.GetStatus)
}

// RecordRequest is one visit as submitted from the preparation screen.
type RecordRequest struct {
	Patient     Info                          `json:"patient"`
	Preparators []string                      `json:"preparators"`
	Lines       []compounding.PreparationLine `json:"lines"`
}

type RecordResponse struct {
	Patient *Patient    `json:"patient"`
	Log     *HistoryLog `json:"log"`
}

func (h *Handler) RecordPreparation(c echo.Context) error {
	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, log, err := h.svc.RecordPreparation(c.Request().Context(), req.Patient, req.Preparators, req.Lines)
	switch {
	case errors.Is(err, ErrNameRequired), errors.Is(err, ErrNoLines):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, compounding.ErrLineNotReady):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrDuplicateName):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	for _, prep := range log.Preps {
		metrics.PreparationLinesRecorded.WithLabelValues(string(prep.Status)).Inc()
	}
	return c.JSON(http.StatusCreated, RecordResponse{Patient: p, Log: log})
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	q := ListQuery{
		Search: c.QueryParam("search"),
		Filter: Filter(c.QueryParam("filter")),
		Sort:   SortKey(pg.Sort),
		Asc:    pg.Asc,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	}
	patients, total, err := h.svc.List(c.Request().Context(), q)
	if errors.Is(err, ErrInvalidQuery) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	s, err := h.svc.Status(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, s)
}

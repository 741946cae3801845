package compounding

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/galepedia/galepedia/internal/platform/auth"
)

type Handler struct {
	formulary *Formulary
}

func NewHandler(f *Formulary) *Handler {
	return &Handler{formulary: f}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePharmacist, auth.RolePreparator))
	g.GET("/formulary/drugs", h.ListDrugs)
	g.GET("/formulary/capsules", h.ListCapsules)
	g.GET("/formulary/preparators", h.ListPreparators)
	g.POST("/compounding/calculate", h.Calculate)
	g.POST("/compounding/units", h.DeriveUnits)
	g.POST("/compounding/lots", h.SplitLots)
}

func (h *Handler) ListDrugs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.formulary.Drugs())
}

func (h *Handler) ListCapsules(c echo.Context) error {
	return c.JSON(http.StatusOK, h.formulary.Capsules())
}

func (h *Handler) ListPreparators(c echo.Context) error {
	return c.JSON(http.StatusOK, Preparators)
}

// CalculateResponse carries the calculator outcome for one line. Result is
// nil while the line is incomplete.
type CalculateResponse struct {
	Readiness Readiness       `json:"readiness"`
	Result    *Result         `json:"result"`
	Lots      []int           `json:"lots,omitempty"`
	LotMasses []float64       `json:"lot_masses_g,omitempty"`
	LotSplits *LotSuggestions `json:"lot_suggestions,omitempty"`
}

func (h *Handler) Calculate(c echo.Context) error {
	var line PreparationLine
	if err := c.Bind(&line); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if line.DrugKey != "" {
		if _, ok := h.formulary.Drug(line.DrugKey); !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown drug_key: "+line.DrugKey)
		}
	}
	if line.CapsuleKey != "" {
		if _, ok := h.formulary.Capsule(line.CapsuleKey); !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown capsule_key: "+line.CapsuleKey)
		}
	}

	resp := CalculateResponse{Readiness: CheckLine(h.formulary, line)}
	if res, ok := Calculate(h.formulary, line); ok {
		resp.Result = &res
		if res.Kind == ResultBicarbonate {
			resp.Lots = EffectiveLots(line)
			resp.LotMasses = LotMasses(res.Bicarbonate.ContentPerCapsuleMg, resp.Lots)
			if s, ok := SplitLots(*line.TotalUnits); ok {
				resp.LotSplits = &s
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type deriveUnitsRequest struct {
	DrugKey         string   `json:"drug_key"`
	TargetDoseMg    *float64 `json:"target_dose_mg"`
	FrequencyPerDay int      `json:"frequency_per_day"`
	DurationDays    int      `json:"duration_days"`
}

func (h *Handler) DeriveUnits(c echo.Context) error {
	var req deriveUnitsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	total, ok := DeriveTotalUnits(h.formulary, req.DrugKey, req.TargetDoseMg, req.FrequencyPerDay, req.DurationDays)
	if !ok {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "frequency_per_day and duration_days must be positive")
	}
	resp := map[string]interface{}{"total_units": total}
	if drug, found := h.formulary.Drug(req.DrugKey); found && drug.IsBatchSplit() && req.TargetDoseMg != nil {
		resp["capsules_per_intake"] = CapsulesPerIntake(drug, *req.TargetDoseMg)
	}
	return c.JSON(http.StatusOK, resp)
}

type splitLotsRequest struct {
	TotalUnits int `json:"total_units"`
}

func (h *Handler) SplitLots(c echo.Context) error {
	var req splitLotsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, ok := SplitLots(req.TotalUnits)
	if !ok {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "total_units must be positive")
	}
	return c.JSON(http.StatusOK, s)
}

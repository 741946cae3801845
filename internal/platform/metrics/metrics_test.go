package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_CountsRequests(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/planning/days/:date", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	before := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodGet, "/api/v1/planning/days/:date", "200"))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/planning/days/2025-03-02", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}

	after := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodGet, "/api/v1/planning/days/:date", "200"))
	if after-before != 3 {
		t.Errorf("expected 3 more requests on the route pattern, got %v", after-before)
	}
	if v := testutil.ToFloat64(HTTPRequestInFlight); v != 0 {
		t.Errorf("expected no in-flight requests, got %v", v)
	}
}

func TestMiddleware_RecordsErrorStatus(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.POST("/api/v1/appointments", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "day is fully booked")
	})

	before := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodPost, "/api/v1/appointments", "409"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	after := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodPost, "/api/v1/appointments", "409"))
	if after-before != 1 {
		t.Errorf("expected the 409 to be counted once, got %v", after-before)
	}
}

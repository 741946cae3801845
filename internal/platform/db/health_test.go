package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthHandler_AllHealthy(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := HealthHandler(nil, map[string]Pinger{"appointments": fakePinger{}})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	if _, ok := body["pool"]; ok {
		t.Error("pool stats must be absent without a pool")
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := HealthHandler(nil, map[string]Pinger{
		"appointments": fakePinger{},
		"patients":     fakePinger{err: errors.New("connection refused")},
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Stores map[string]string `json:"stores"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Stores["patients"] != "connection refused" || body.Stores["appointments"] != "ok" {
		t.Errorf("unexpected store checks %v", body.Stores)
	}
}

func TestNoopTxRunner(t *testing.T) {
	called := false
	err := NoopTxRunner{}.WithTx(context.Background(), func(ctx context.Context) error {
		called = true
		if TxFromContext(ctx) != nil {
			t.Error("noop runner must not install a transaction")
		}
		return nil
	})
	if err != nil || !called {
		t.Fatalf("expected fn to run, err=%v", err)
	}

	want := errors.New("boom")
	if got := (NoopTxRunner{}).WithTx(context.Background(), func(context.Context) error { return want }); !errors.Is(got, want) {
		t.Errorf("expected fn error to propagate, got %v", got)
	}
}

func TestTxFromContext_Empty(t *testing.T) {
	if TxFromContext(context.Background()) != nil {
		t.Error("expected no transaction in a bare context")
	}
}

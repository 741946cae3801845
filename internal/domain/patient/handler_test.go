package patient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService(NewMemoryRepo())
	return NewHandler(svc), echo.New()
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

const recordBody = `{
	"patient": {"name": "benali karim", "phone": "0550123456", "age": 4, "doctor": "Dr Kaci"},
	"preparators": ["Dr Slimatni Souad"],
	"lines": [
		{"drug_key": "prop", "feasible": true, "target_dose_mg": 7, "total_units": 30, "capsule_key": "T4", "duration_days": 30},
		{"drug_key": "captopril", "feasible": false, "reason": "rupture de stock"}
	]
}`

func TestHandler_RecordPreparation(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/preparations", recordBody), rec)

	if err := h.RecordPreparation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var resp RecordResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Patient.Name != "BENALI KARIM" || len(resp.Log.Preps) != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_RecordPreparation_NotReady(t *testing.T) {
	h, e := newTestHandler()
	body := `{"patient": {"name": "A"}, "lines": [{"drug_key": "prop", "feasible": true, "target_dose_mg": 7}]}`
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/preparations", body), httptest.NewRecorder())

	err := h.RecordPreparation(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %v", err)
	}
}

func TestHandler_RecordPreparation_MissingName(t *testing.T) {
	h, e := newTestHandler()
	body := `{"patient": {"name": ""}, "lines": []}`
	c := e.NewContext(jsonRequest(http.MethodPost, "/api/v1/preparations", body), httptest.NewRecorder())

	err := h.RecordPreparation(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ListPatients(t *testing.T) {
	h, e := newTestHandler()
	h.RecordPreparation(e.NewContext(jsonRequest(http.MethodPost, "/", recordBody), httptest.NewRecorder()))

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients?search=karim&limit=5", nil), rec)
	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []Summary `json:"data"`
		Total int       `json:"total"`
		Limit int       `json:"limit"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Limit != 5 || len(resp.Data) != 1 {
		t.Fatalf("unexpected page %+v", resp)
	}
	if resp.Data[0].Status.State != StateGreen {
		t.Errorf("expected a running treatment, got %+v", resp.Data[0].Status)
	}
}

func TestHandler_ListPatients_BadFilter(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients?filter=cardio", nil), httptest.NewRecorder())

	err := h.ListPatients(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	h.RecordPreparation(e.NewContext(jsonRequest(http.MethodPost, "/", recordBody), rec))
	var created RecordResponse
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(created.Patient.ID.String())
	if err := h.GetStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s Summary
	json.Unmarshal(rec.Body.Bytes(), &s)
	if s.Status.DaysLeft != 30 || len(s.RecentMolecules) != 2 {
		t.Errorf("unexpected status %+v", s)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	err := h.GetPatient(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

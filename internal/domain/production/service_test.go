package production

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/galepedia/galepedia/internal/domain/compounding"
	"github.com/galepedia/galepedia/internal/domain/patient"
	"github.com/galepedia/galepedia/internal/domain/planning"
)

var testLoc = time.FixedZone("UTC+1", 3600)

// -- Fakes --

type fakeSource struct {
	patients []*patient.Patient
	err      error
}

func (f *fakeSource) All(context.Context) ([]*patient.Patient, error) {
	return f.patients, f.err
}

type fakePlanner struct {
	booked   map[string]bool
	upcoming []planning.Appointment
}

func (f *fakePlanner) HasPatient(ref string) bool { return f.booked[ref] }

func (f *fakePlanner) Upcoming(n int) []planning.Appointment {
	if len(f.upcoming) > n {
		return f.upcoming[:n]
	}
	return f.upcoming
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func logAt(ts time.Time, preparators []string, preps ...compounding.PreparationDetail) patient.HistoryLog {
	return patient.HistoryLog{
		ID:          uuid.New(),
		Date:        ts.In(testLoc).Format(patient.DateLabelLayout),
		Timestamp:   ts,
		Preparators: preparators,
		Preps:       preps,
	}
}

func okPrep(molecule, capsule string, units int, realDose float64, days int) compounding.PreparationDetail {
	return compounding.PreparationDetail{
		Molecule: molecule, Status: compounding.StatusOK, Units: units,
		RealDoseMg: realDose, Capsule: capsule, DurationDays: days,
	}
}

func fixture() (*Service, *fakePlanner) {
	amina := &patient.Patient{ID: uuid.New(), Name: "AMINA", History: []patient.HistoryLog{
		logAt(time.Date(2025, 3, 15, 8, 0, 0, 0, testLoc), []string{"X", "Y"},
			okPrep("Propranolol", "T4", 20, 7, 30),
			compounding.PreparationDetail{Molecule: "Captopril", Status: compounding.StatusKO, Reason: "rupture"}),
	}}
	benali := &patient.Patient{ID: uuid.New(), Name: "BENALI", History: []patient.HistoryLog{
		logAt(time.Date(2025, 3, 2, 9, 0, 0, 0, testLoc), []string{"X"},
			okPrep("Bicarbonate de Sodium", "T0", 270, 250, 14)),
	}}
	cherif := &patient.Patient{ID: uuid.New(), Name: "CHERIF", History: []patient.HistoryLog{
		logAt(time.Date(2025, 2, 10, 9, 0, 0, 0, testLoc), []string{"Z"},
			okPrep("Propranolol", "", 60, 10, 30)),
	}}
	dalia := &patient.Patient{ID: uuid.New(), Name: "DALIA"}

	planner := &fakePlanner{
		booked:   map[string]bool{"CHERIF": true},
		upcoming: []planning.Appointment{{PatientName: "CHERIF", Date: "2025-03-16"}},
	}
	src := &fakeSource{patients: []*patient.Patient{amina, benali, cherif, dalia}}
	svc := NewService(src, planner, compounding.DefaultFormulary(), testLoc)
	svc.now = func() time.Time { return time.Date(2025, 3, 15, 10, 0, 0, 0, testLoc) }
	return svc, planner
}

func TestDashboard(t *testing.T) {
	svc, _ := fixture()
	d, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.TotalPatients != 4 {
		t.Errorf("expected 4 patients, got %d", d.TotalPatients)
	}
	if d.MonthPreps != 3 || d.TodayPreps != 2 || d.MonthCapsules != 290 {
		t.Errorf("unexpected counters month=%d today=%d capsules=%d", d.MonthPreps, d.TodayPreps, d.MonthCapsules)
	}
	if len(d.TopPreparators) != 3 || d.TopPreparators[0] != (Count{"X", 2}) || d.TopPreparators[1].Name != "Y" {
		t.Errorf("unexpected preparators %+v", d.TopPreparators)
	}
	if len(d.RecentActivity) != 3 || d.RecentActivity[0].PatientName != "AMINA" || len(d.RecentActivity[0].Molecules) != 2 {
		t.Errorf("unexpected activity %+v", d.RecentActivity)
	}
	if len(d.Upcoming) != 1 {
		t.Errorf("expected 1 upcoming appointment, got %d", len(d.Upcoming))
	}

	if len(d.RenewalAlerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", d.RenewalAlerts)
	}
	a := d.RenewalAlerts[0]
	if a.PatientName != "BENALI" || a.DaysLeft != 1 || a.Severity != SeverityOrange || a.Label != "Reste 1j" {
		t.Errorf("unexpected alert %+v", a)
	}
}

func TestRenewalAlerts_Severity(t *testing.T) {
	svc, planner := fixture()
	planner.booked = nil

	alerts, err := svc.RenewalAlerts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %+v", alerts)
	}
	if alerts[0].PatientName != "CHERIF" || alerts[0].Severity != SeverityRed || alerts[0].Label != "Terminé (3j)" {
		t.Errorf("expected the expired treatment first, got %+v", alerts[0])
	}
}

func TestRenewalAlerts_Yellow(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, testLoc)
	p := &patient.Patient{Name: "A", History: []patient.HistoryLog{logAt(start, nil, okPrep("Propranolol", "T4", 30, 7, 20))}}

	alerts := renewalAlerts([]*patient.Patient{p}, start.Add(15*24*time.Hour))
	if len(alerts) != 1 || alerts[0].Severity != SeverityYellow || alerts[0].DaysLeft != 5 {
		t.Errorf("unexpected alerts %+v", alerts)
	}
	if got := renewalAlerts([]*patient.Patient{p}, start.Add(24*time.Hour)); len(got) != 0 {
		t.Errorf("expected no alert with 19 days left, got %+v", got)
	}
}

func TestStats_CurrentMonth(t *testing.T) {
	svc, _ := fixture()
	st, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.Month != "2025-03" || st.WorkingDays != 2 || st.DistinctPatients != 2 || st.PrepCount != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.TotalCapsules != 290 || st.Cadence != 145 {
		t.Errorf("unexpected capsules %+v", st)
	}
	// T4: 0.21*20*0.65 - 0.14 = 2.59; T0: 0.68*270*0.65 - 67.5 = 51.84
	if !approx(st.ExcipientMassG, 54.43) || !approx(st.ExcipientFlowG, 27.2) || !approx(st.PatientYield, 1) {
		t.Errorf("unexpected excipient figures %+v", st)
	}
	if len(st.TopMolecules) != 2 || st.TopMolecules[0].Name != "Bicarbonate de Sodium" {
		t.Errorf("unexpected molecules %+v", st.TopMolecules)
	}
}

func TestStats_OtherMonths(t *testing.T) {
	svc, _ := fixture()
	feb, err := svc.MonthStats(context.Background(), 2025, time.February)
	if err != nil {
		t.Fatal(err)
	}
	if feb.TotalCapsules != 60 || feb.WorkingDays != 1 || feb.DistinctPatients != 1 {
		t.Errorf("unexpected february %+v", feb)
	}

	jan, _ := svc.MonthStats(context.Background(), 2025, time.January)
	if jan.WorkingDays != 1 || jan.Cadence != 0 || jan.PrepCount != 0 {
		t.Errorf("empty month must report one working day and nothing else, got %+v", jan)
	}
}

func TestExcipientMass_NeverNegative(t *testing.T) {
	svc, _ := fixture()
	if got := svc.excipientMass(okPrep("Amoxicilline", "T4", 10, 500, 7)); got != 0 {
		t.Errorf("expected 0 when the active fills the capsule, got %v", got)
	}
}

func TestDashboard_SourceError(t *testing.T) {
	svc := NewService(&fakeSource{err: errors.New("db down")}, &fakePlanner{}, compounding.DefaultFormulary(), testLoc)
	if _, err := svc.Dashboard(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestHandler_GetStats_InvalidMonth(t *testing.T) {
	svc, _ := fixture()
	h := NewHandler(svc)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/stats/production?year=2025&month=0", nil), httptest.NewRecorder())

	err := h.GetStats(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_GetDashboard(t *testing.T) {
	svc, _ := fixture()
	h := NewHandler(svc)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil), rec)

	if err := h.GetDashboard(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

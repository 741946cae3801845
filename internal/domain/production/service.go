package production

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/galepedia/galepedia/internal/domain/compounding"
	"github.com/galepedia/galepedia/internal/domain/patient"
	"github.com/galepedia/galepedia/internal/domain/planning"
)

// PatientSource lists every patient with full history.
type PatientSource interface {
	All(ctx context.Context) ([]*patient.Patient, error)
}

// Planner is the part of the scheduler the reports read.
type Planner interface {
	HasPatient(ref string) bool
	Upcoming(n int) []planning.Appointment
}

type Service struct {
	patients  PatientSource
	planner   Planner
	formulary *compounding.Formulary
	loc       *time.Location
	now       func() time.Time
}

func NewService(patients PatientSource, planner Planner, formulary *compounding.Formulary, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{patients: patients, planner: planner, formulary: formulary, loc: loc, now: time.Now}
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	patients, err := s.patients.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	now := s.now().In(s.loc)
	today := now.Format(patient.DateLabelLayout)

	d := &Dashboard{TotalPatients: len(patients)}
	preparators := make(map[string]int)
	var activity []Activity

	for _, p := range patients {
		for _, h := range p.History {
			if sameMonth(h.Timestamp.In(s.loc), now) {
				d.MonthPreps += len(h.Preps)
				for _, prep := range h.Preps {
					if prep.Status == compounding.StatusOK {
						d.MonthCapsules += prep.Units
					}
				}
			}
			if h.Date == today {
				d.TodayPreps += len(h.Preps)
			}
			for _, name := range h.Preparators {
				preparators[name]++
			}
			activity = append(activity, toActivity(p, h))
		}
	}

	d.TopPreparators = topCounts(preparators, 3)
	sort.SliceStable(activity, func(i, j int) bool {
		return activity[i].Timestamp.After(activity[j].Timestamp)
	})
	if len(activity) > 10 {
		activity = activity[:10]
	}
	d.RecentActivity = activity
	d.RenewalAlerts = s.unscheduled(renewalAlerts(patients, now))
	d.Upcoming = s.planner.Upcoming(5)
	return d, nil
}

// RenewalAlerts lists patients due for renewal that hold no appointment yet,
// most urgent first.
func (s *Service) RenewalAlerts(ctx context.Context) ([]RenewalAlert, error) {
	patients, err := s.patients.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("renewal alerts: %w", err)
	}
	return s.unscheduled(renewalAlerts(patients, s.now())), nil
}

func (s *Service) unscheduled(alerts []RenewalAlert) []RenewalAlert {
	out := []RenewalAlert{}
	for _, a := range alerts {
		if !s.planner.HasPatient(a.PatientName) {
			out = append(out, a)
		}
	}
	return out
}

// Stats reports production for the month containing now.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	now := s.now().In(s.loc)
	return s.MonthStats(ctx, now.Year(), now.Month())
}

func (s *Service) MonthStats(ctx context.Context, year int, month time.Month) (*Stats, error) {
	patients, err := s.patients.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("production stats: %w", err)
	}
	ref := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)

	st := &Stats{Month: ref.Format("2006-01")}
	distinct := make(map[string]bool)
	days := make(map[string]bool)
	molecules := make(map[string]int)

	for _, p := range patients {
		for _, h := range p.History {
			ts := h.Timestamp.In(s.loc)
			if !sameMonth(ts, ref) {
				continue
			}
			days[ts.Format(planning.DateLayout)] = true
			distinct[p.Name] = true

			for _, prep := range h.Preps {
				if prep.Status != compounding.StatusOK {
					continue
				}
				st.PrepCount++
				molecules[prep.Molecule]++
				if prep.Units > 0 {
					st.TotalCapsules += prep.Units
					st.ExcipientMassG += s.excipientMass(prep)
				}
			}
		}
	}

	st.DistinctPatients = len(distinct)
	st.WorkingDays = len(days)
	if st.WorkingDays == 0 {
		st.WorkingDays = 1
	}
	wd := float64(st.WorkingDays)
	st.Cadence = int(math.Round(float64(st.TotalCapsules) / wd))
	st.PatientYield = round1(float64(st.DistinctPatients) / wd)
	st.ExcipientFlowG = round1(st.ExcipientMassG / wd)
	st.ExcipientMassG = math.Round(st.ExcipientMassG*100) / 100
	st.TopMolecules = topCounts(molecules, 5)
	return st, nil
}

// excipientMass is the filler needed to top up the capsules of one line.
func (s *Service) excipientMass(prep compounding.PreparationDetail) float64 {
	vol := 0.21
	key := prep.Capsule
	if key == "" {
		key = "T4"
	}
	if c, ok := s.formulary.Capsule(key); ok {
		vol = c.FillVolumeMl
	}
	units := float64(prep.Units)
	theoretical := vol * units * ExcipientDensity
	active := prep.RealDoseMg * units / 1000
	return math.Max(0, theoretical-active)
}

func renewalAlerts(patients []*patient.Patient, now time.Time) []RenewalAlert {
	var alerts []RenewalAlert
	for _, p := range patients {
		latest, ok := p.Latest()
		if !ok {
			continue
		}
		duration := latest.MaxDurationDays()
		if duration == 0 {
			continue
		}
		left := patient.DaysLeft(latest.Timestamp, duration, now)
		if left > 7 {
			continue
		}
		a := RenewalAlert{
			PatientID:    p.ID,
			PatientName:  p.Name,
			DaysLeft:     left,
			LastPrep:     latest.Timestamp,
			DurationDays: duration,
		}
		if len(latest.Preps) > 0 {
			a.Molecule = latest.Preps[0].Molecule
		}
		switch {
		case left <= 0:
			a.Severity = SeverityRed
			a.Label = fmt.Sprintf("Terminé (%dj)", -left)
		case left <= 3:
			a.Severity = SeverityOrange
			a.Label = fmt.Sprintf("Reste %dj", left)
		default:
			a.Severity = SeverityYellow
			a.Label = fmt.Sprintf("Reste %dj", left)
		}
		alerts = append(alerts, a)
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].DaysLeft < alerts[j].DaysLeft
	})
	return alerts
}

func toActivity(p *patient.Patient, h patient.HistoryLog) Activity {
	a := Activity{
		LogID:       h.ID,
		PatientID:   p.ID,
		PatientName: p.Name,
		Timestamp:   h.Timestamp,
		Preparators: h.Preparators,
	}
	for _, prep := range h.Preps {
		a.Molecules = append(a.Molecules, ActivityMolecule{
			Name:       prep.Molecule,
			Status:     prep.Status,
			Kind:       prep.Kind,
			TotalMassG: prep.TotalMassG,
		})
	}
	return a
}

// topCounts returns the n largest counts, ties broken by name.
func topCounts(m map[string]int, n int) []Count {
	out := make([]Count, 0, len(m))
	for name, c := range m {
		out = append(out, Count{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

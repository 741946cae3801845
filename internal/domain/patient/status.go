package patient

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/galepedia/galepedia/internal/domain/compounding"
)

const day = 24 * time.Hour

// NormalizeName trims and upper-cases a patient name. The result is the
// registry key.
func NormalizeName(name string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(name))
}

// DaysLeft is the number of started days remaining on a treatment of
// durationDays that began at start. It is zero or negative once finished.
func DaysLeft(start time.Time, durationDays int, now time.Time) int {
	remaining := time.Duration(durationDays)*day - now.Sub(start)
	return int(math.Ceil(float64(remaining) / float64(day)))
}

// Status computes the progress of the latest treatment at now.
func (p *Patient) Status(now time.Time) TreatmentStatus {
	latest, ok := p.Latest()
	if !ok {
		return TreatmentStatus{State: StateUnknown, Label: "Nouveau"}
	}
	duration := latest.MaxDurationDays()
	if duration == 0 {
		return TreatmentStatus{State: StateUnknown, Label: "Durée inconnue"}
	}

	elapsed := now.Sub(latest.Timestamp)
	daysLeft := DaysLeft(latest.Timestamp, duration, now)
	percent := float64(elapsed) / float64(time.Duration(duration)*day) * 100
	percent = math.Max(0, math.Min(100, percent))

	switch {
	case daysLeft <= 0:
		return TreatmentStatus{State: StateRed, Percent: 100, DaysLeft: daysLeft,
			Label: fmt.Sprintf("Terminé depuis %dj", -daysLeft)}
	case daysLeft <= 7:
		return TreatmentStatus{State: StateOrange, Percent: percent, DaysLeft: daysLeft, Label: "Critique"}
	default:
		return TreatmentStatus{State: StateGreen, Percent: percent, DaysLeft: daysLeft,
			Label: fmt.Sprintf("%dj restants", daysLeft)}
	}
}

// RecentMolecules lists up to n distinct molecules from the three latest visits,
// newest first.
func (p *Patient) RecentMolecules(n int) []string {
	logs := make([]HistoryLog, len(p.History))
	copy(logs, p.History)
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})
	if len(logs) > 3 {
		logs = logs[:3]
	}

	seen := make(map[string]bool)
	out := []string{}
	for _, h := range logs {
		for _, prep := range h.Preps {
			if seen[prep.Molecule] {
				continue
			}
			seen[prep.Molecule] = true
			out = append(out, prep.Molecule)
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Filter names a registry view.
type Filter string

const (
	FilterAll     Filter = ""
	FilterRecent  Filter = "recent"
	FilterKO      Filter = "ko"
	FilterCardiac Filter = "cardiac"
	FilterRenew   Filter = "renew"
)

var cardiacMolecules = []string{
	"Carvédilol", "Bisoprolol", "Valsartan", "Aténolol", "Amlodipine",
	"Captopril", "Furosémide", "Spironolactone", "Digoxine", "Propranolol",
}

// Matches reports whether p belongs to the view f at now.
func (f Filter) Matches(p *Patient, now time.Time) bool {
	switch f {
	case FilterRecent:
		return now.Sub(p.LastUpdate) < 30*day
	case FilterKO:
		return p.anyPrep(func(molecule string, ok bool) bool { return !ok })
	case FilterCardiac:
		return p.anyPrep(func(molecule string, _ bool) bool {
			for _, m := range cardiacMolecules {
				if strings.Contains(molecule, m) {
					return true
				}
			}
			return false
		})
	case FilterRenew:
		s := p.Status(now).State
		return s == StateRed || s == StateOrange
	}
	return true
}

func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterRecent, FilterKO, FilterCardiac, FilterRenew:
		return true
	}
	return false
}

func (p *Patient) anyPrep(match func(molecule string, ok bool) bool) bool {
	for _, h := range p.History {
		for _, prep := range h.Preps {
			if match(prep.Molecule, prep.Status == compounding.StatusOK) {
				return true
			}
		}
	}
	return false
}

// urgency orders by days left; patients without a known treatment go last.
func urgency(s TreatmentStatus) int {
	if s.State == StateUnknown {
		return 9999
	}
	return s.DaysLeft
}

package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/galepedia/galepedia/internal/domain/compounding"
)

// Patient is keyed by its normalized name. History is kept in insertion order.
type Patient struct {
	ID         uuid.UUID    `json:"id"`
	Name       string       `json:"name"`
	Phone      string       `json:"phone,omitempty"`
	Age        *float64     `json:"age,omitempty"`
	Weight     *float64     `json:"weight,omitempty"`
	LastUpdate time.Time    `json:"last_update"`
	History    []HistoryLog `json:"history"`
}

// HistoryLog is one visit. It is never modified once appended.
type HistoryLog struct {
	ID          uuid.UUID                       `json:"id"`
	PatientID   uuid.UUID                       `json:"patient_id"`
	Date        string                          `json:"date"`
	Timestamp   time.Time                       `json:"timestamp"`
	Doctor      string                          `json:"doctor,omitempty"`
	Preparators []string                        `json:"preparators"`
	Preps       []compounding.PreparationDetail `json:"preps"`
}

// Latest returns the log with the greatest timestamp.
func (p *Patient) Latest() (HistoryLog, bool) {
	if len(p.History) == 0 {
		return HistoryLog{}, false
	}
	latest := p.History[0]
	for _, h := range p.History[1:] {
		if h.Timestamp.After(latest.Timestamp) {
			latest = h
		}
	}
	return latest, true
}

// MaxDurationDays is the longest treatment duration in a log.
func (h HistoryLog) MaxDurationDays() int {
	max := 0
	for _, p := range h.Preps {
		if p.DurationDays > max {
			max = p.DurationDays
		}
	}
	return max
}

type State string

const (
	StateUnknown State = "unknown"
	StateGreen   State = "green"
	StateOrange  State = "orange"
	StateRed     State = "red"
)

// TreatmentStatus describes how far the latest treatment has run.
type TreatmentStatus struct {
	State    State   `json:"state"`
	Percent  float64 `json:"percent"`
	DaysLeft int     `json:"days_left"`
	Label    string  `json:"label"`
}

// Summary is a patient with its computed status, as listed by the registry.
type Summary struct {
	*Patient
	Status          TreatmentStatus `json:"status"`
	RecentMolecules []string        `json:"recent_molecules"`
}

// Info is the identity block entered with a visit.
type Info struct {
	Name   string   `json:"name"`
	Phone  string   `json:"phone"`
	Age    *float64 `json:"age,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
	Doctor string   `json:"doctor"`
}

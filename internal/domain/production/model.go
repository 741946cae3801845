package production

import (
	"time"

	"github.com/google/uuid"

	"github.com/galepedia/galepedia/internal/domain/compounding"
	"github.com/galepedia/galepedia/internal/domain/planning"
)

// ExcipientDensity is the average density of the lactose/starch filler, g/ml.
const ExcipientDensity = 0.65

type Severity string

const (
	SeverityRed    Severity = "red"
	SeverityOrange Severity = "orange"
	SeverityYellow Severity = "yellow"
)

// RenewalAlert flags a patient whose latest treatment ends within a week.
type RenewalAlert struct {
	PatientID    uuid.UUID `json:"patient_id"`
	PatientName  string    `json:"patient_name"`
	Molecule     string    `json:"molecule"`
	DaysLeft     int       `json:"days_left"`
	Severity     Severity  `json:"severity"`
	Label        string    `json:"label"`
	LastPrep     time.Time `json:"last_prep"`
	DurationDays int       `json:"duration_days"`
}

type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type ActivityMolecule struct {
	Name       string               `json:"name"`
	Status     compounding.Status   `json:"status"`
	Kind       compounding.DrugKind `json:"kind,omitempty"`
	TotalMassG *float64             `json:"total_mass_g,omitempty"`
}

// Activity is one visit in the recent activity feed.
type Activity struct {
	LogID       uuid.UUID          `json:"log_id"`
	PatientID   uuid.UUID          `json:"patient_id"`
	PatientName string             `json:"patient_name"`
	Timestamp   time.Time          `json:"timestamp"`
	Preparators []string           `json:"preparators"`
	Molecules   []ActivityMolecule `json:"molecules"`
}

type Dashboard struct {
	TotalPatients  int                    `json:"total_patients"`
	MonthPreps     int                    `json:"month_preps"`
	TodayPreps     int                    `json:"today_preps"`
	MonthCapsules  int                    `json:"month_capsules"`
	TopPreparators []Count                `json:"top_preparators"`
	RecentActivity []Activity             `json:"recent_activity"`
	RenewalAlerts  []RenewalAlert         `json:"renewal_alerts"`
	Upcoming       []planning.Appointment `json:"upcoming_appointments"`
}

// Stats is the production report of one calendar month.
type Stats struct {
	Month            string  `json:"month"`
	TotalCapsules    int     `json:"total_capsules"`
	ExcipientMassG   float64 `json:"excipient_mass_g"`
	DistinctPatients int     `json:"distinct_patients"`
	PrepCount        int     `json:"prep_count"`
	WorkingDays      int     `json:"working_days"`
	Cadence          int     `json:"cadence"`
	PatientYield     float64 `json:"patient_yield"`
	ExcipientFlowG   float64 `json:"excipient_flow_g"`
	TopMolecules     []Count `json:"top_molecules"`
}

package planning

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar-day key used for appointments.
const DateLayout = "2006-01-02"

// MaxDurationDays bounds the treatment duration a renewal search accepts.
const MaxDurationDays = 3650

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
)

// Appointment books one patient on one calendar day. Appointments are
// created and deleted, never updated.
type Appointment struct {
	ID          uuid.UUID `json:"id"`
	PatientID   string    `json:"patient_id"`
	PatientName string    `json:"patient_name"`
	Date        string    `json:"date"`
	Status      Status    `json:"status"`
	// Molecule is free text. Operators sometimes store a phone number here;
	// it is kept as entered.
	Molecule     string    `json:"molecule"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SuggestionResult is the outcome of a renewal date search.
type SuggestionResult struct {
	PatientID     string `json:"patient_id,omitempty"`
	Molecule      string `json:"molecule,omitempty"`
	IdealDate     string `json:"ideal_date"`
	SuggestedDate string `json:"suggested_date"`
	IsIdeal       bool   `json:"is_ideal"`
	SlotsLeft     int    `json:"slots_left"`
	StepsBack     int    `json:"steps_back"`
}

// DayView summarizes one calendar day for the planning screens.
type DayView struct {
	Date      string `json:"date"`
	Count     int    `json:"count"`
	SlotsLeft int    `json:"slots_left"`
	Closed    bool   `json:"closed"`
	Holiday   string `json:"holiday,omitempty"`
	Full      bool   `json:"full"`
}

// Options tune the scheduler.
type Options struct {
	MaxCapacity      int
	SearchAttempts   int
	SafetyBufferDays int
}

func DefaultOptions() Options {
	return Options{
		MaxCapacity:      6,
		SearchAttempts:   30,
		SafetyBufferDays: 2,
	}
}

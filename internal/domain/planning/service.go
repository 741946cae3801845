package planning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("appointment not found")
	ErrNoHistory      = errors.New("patient has no preparation to renew")
	ErrInvalidRequest = errors.New("invalid appointment")
	ErrLookupUnwired  = errors.New("patient lookup not configured")
	ErrPatientUnknown = errors.New("patient not found")
)

// Treatment is the latest renewable treatment of a patient.
type Treatment struct {
	PatientID    string
	PatientName  string
	Molecule     string
	DurationDays int
	LastPrep     time.Time
}

// PatientLookup resolves the treatment a renewal is planned for.
type PatientLookup interface {
	LatestTreatment(ctx context.Context, ref string) (Treatment, error)
}

// Service owns the Book and keeps it in step with the repository. Every
// mutation is validated against the Book, written to the repository, then
// committed to the Book while holding the same lock.
type Service struct {
	mu       sync.RWMutex
	book     *Book
	repo     Repository
	patients PatientLookup
	now      func() time.Time
}

func NewService(book *Book, repo Repository) *Service {
	return &Service{book: book, repo: repo, now: time.Now}
}

func (s *Service) SetPatientLookup(p PatientLookup) {
	s.patients = p
}

// Load fills the Book from the repository.
func (s *Service) Load(ctx context.Context) error {
	appts, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}
	s.mu.Lock()
	s.book.Load(appts)
	s.mu.Unlock()
	return nil
}

// Schedule books a. ID, status and creation time are filled in when empty.
func (s *Service) Schedule(ctx context.Context, a *Appointment) error {
	a.PatientName = strings.TrimSpace(a.PatientName)
	a.PatientID = strings.TrimSpace(a.PatientID)
	if a.PatientName == "" {
		return fmt.Errorf("%w: patient_name is required", ErrInvalidRequest)
	}
	if a.PatientID == "" {
		a.PatientID = a.PatientName
	}
	switch a.Status {
	case "":
		a.Status = StatusConfirmed
	case StatusConfirmed, StatusPending:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, a.Status)
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.book.Check(a.Date); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return fmt.Errorf("persist appointment: %w", err)
	}
	return s.book.Add(*a)
}

// Cancel deletes an appointment. Unknown ids are not an error.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	s.book.Delete(id)
	return nil
}

func (s *Service) Get(id uuid.UUID) (Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.book.Get(id)
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *Service) List(from, to string) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Between(from, to)
}

func (s *Service) Upcoming(n int) []Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Upcoming(s.now(), n)
}

func (s *Service) DailyCount(date string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.DailyCount(date)
}

func (s *Service) Day(date string) (DayView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Day(date)
}

func (s *Service) Month(year int, month time.Month) []DayView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Month(year, month)
}

// HasPatient reports whether the patient already holds a booking.
func (s *Service) HasPatient(ref string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.HasPatient(ref)
}

func (s *Service) Capacity() int {
	return s.book.Capacity()
}

func (s *Service) Calendar() *Calendar {
	return s.book.Calendar()
}

// Suggest runs the renewal search on raw inputs.
func (s *Service) Suggest(patientRef, molecule string, durationDays int, lastPrep time.Time) SuggestionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.FindBestSlot(patientRef, molecule, durationDays, lastPrep)
}

// SuggestForPatient plans the renewal of the patient's latest treatment.
func (s *Service) SuggestForPatient(ctx context.Context, ref string) (SuggestionResult, error) {
	if s.patients == nil {
		return SuggestionResult{}, ErrLookupUnwired
	}
	t, err := s.patients.LatestTreatment(ctx, ref)
	if err != nil {
		return SuggestionResult{}, err
	}
	if t.DurationDays <= 0 {
		return SuggestionResult{}, ErrNoHistory
	}
	return s.Suggest(t.PatientID, t.Molecule, t.DurationDays, t.LastPrep), nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

package planning

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCapacityExceeded     = errors.New("day is fully booked")
	ErrDayClosed            = errors.New("pharmacy is closed that day")
	ErrInvalidDate          = errors.New("invalid date")
	ErrDuplicateAppointment = errors.New("appointment already booked")
)

// Book is the in-memory appointment set with its capacity and calendar
// rules. It is not safe for concurrent use; Service serializes access.
type Book struct {
	cal    *Calendar
	closed ClosedDayChecker
	opts   Options

	appts   []Appointment
	perDate map[string]int
}

// NewBook creates an empty book. A nil checker uses the calendar's rules.
func NewBook(cal *Calendar, closed ClosedDayChecker, opts Options) *Book {
	if closed == nil {
		closed = cal
	}
	return &Book{
		cal:     cal,
		closed:  closed,
		opts:    opts,
		perDate: make(map[string]int),
	}
}

func (b *Book) Capacity() int {
	return b.opts.MaxCapacity
}

func (b *Book) Calendar() *Calendar {
	return b.cal
}

// Load replaces the book content with persisted appointments as they are.
func (b *Book) Load(appts []Appointment) {
	b.appts = append([]Appointment(nil), appts...)
	b.perDate = make(map[string]int, len(appts))
	for _, a := range b.appts {
		b.perDate[a.Date]++
	}
}

// Check reports whether one more appointment fits on date. Capacity is
// checked before the calendar.
func (b *Book) Check(date string) error {
	day, err := b.cal.ParseDate(date)
	if err != nil {
		return err
	}
	if b.DailyCount(date) >= b.opts.MaxCapacity {
		return fmt.Errorf("%w: %s (max %d)", ErrCapacityExceeded, date, b.opts.MaxCapacity)
	}
	if b.closed.IsClosed(day) {
		return fmt.Errorf("%w: %s", ErrDayClosed, date)
	}
	return nil
}

// Add books a. On error the book is left unchanged.
func (b *Book) Add(a Appointment) error {
	if err := b.Check(a.Date); err != nil {
		return err
	}
	if _, ok := b.find(a.ID); ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAppointment, a.ID)
	}
	b.appts = append(b.appts, a)
	b.perDate[a.Date]++
	return nil
}

// Delete removes the appointment with id. Unknown ids are ignored.
func (b *Book) Delete(id uuid.UUID) bool {
	i, ok := b.find(id)
	if !ok {
		return false
	}
	date := b.appts[i].Date
	b.appts = append(b.appts[:i], b.appts[i+1:]...)
	if b.perDate[date]--; b.perDate[date] <= 0 {
		delete(b.perDate, date)
	}
	return true
}

func (b *Book) Get(id uuid.UUID) (Appointment, bool) {
	i, ok := b.find(id)
	if !ok {
		return Appointment{}, false
	}
	return b.appts[i], true
}

func (b *Book) find(id uuid.UUID) (int, bool) {
	for i := range b.appts {
		if b.appts[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

func (b *Book) DailyCount(date string) int {
	return b.perDate[date]
}

// FindBestSlot proposes a renewal date for a treatment that started at
// lastPrep and lasts durationDays. The search starts SafetyBufferDays before
// the end of the treatment and walks back one calendar day at a time while
// the day is full or closed, for at most SearchAttempts steps. When the
// budget runs out the last examined day is returned as is.
func (b *Book) FindBestSlot(patientRef, molecule string, durationDays int, lastPrep time.Time) SuggestionResult {
	durationDays = min(max(durationDays, 0), MaxDurationDays)
	offset := time.Duration(durationDays-b.opts.SafetyBufferDays) * 24 * time.Hour
	ideal := lastPrep.In(b.cal.Location()).Add(offset)
	idealDate := b.cal.FormatDate(ideal)

	current := ideal
	found := idealDate
	isIdeal := !b.closed.IsClosed(current)

	steps := 0
	for (b.DailyCount(found) >= b.opts.MaxCapacity || b.closed.IsClosed(current)) && steps < b.opts.SearchAttempts {
		isIdeal = false
		current = current.AddDate(0, 0, -1)
		found = b.cal.FormatDate(current)
		steps++
	}

	return SuggestionResult{
		PatientID:     patientRef,
		Molecule:      molecule,
		IdealDate:     idealDate,
		SuggestedDate: found,
		IsIdeal:       isIdeal,
		SlotsLeft:     b.opts.MaxCapacity - b.DailyCount(found),
		StepsBack:     steps,
	}
}

// Appointments returns every booking ordered by date then creation time.
func (b *Book) Appointments() []Appointment {
	return b.filter(func(Appointment) bool { return true })
}

func (b *Book) OnDate(date string) []Appointment {
	return b.filter(func(a Appointment) bool { return a.Date == date })
}

// Between returns bookings whose date lies in [from, to]. Empty bounds are open.
func (b *Book) Between(from, to string) []Appointment {
	return b.filter(func(a Appointment) bool {
		return (from == "" || a.Date >= from) && (to == "" || a.Date <= to)
	})
}

// Upcoming returns at most n bookings on or after the day of from.
func (b *Book) Upcoming(from time.Time, n int) []Appointment {
	out := b.Between(b.cal.FormatDate(from), "")
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// HasPatient reports whether any booking matches the patient reference or
// name, ignoring case.
func (b *Book) HasPatient(ref string) bool {
	for _, a := range b.appts {
		if strings.EqualFold(a.PatientID, ref) || strings.EqualFold(a.PatientName, ref) {
			return true
		}
	}
	return false
}

func (b *Book) Day(date string) (DayView, error) {
	day, err := b.cal.ParseDate(date)
	if err != nil {
		return DayView{}, err
	}
	return b.dayView(day), nil
}

// Month returns one view per day of the given month.
func (b *Book) Month(year int, month time.Month) []DayView {
	first := time.Date(year, month, 1, 0, 0, 0, 0, b.cal.Location())
	var out []DayView
	for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
		out = append(out, b.dayView(d))
	}
	return out
}

func (b *Book) dayView(day time.Time) DayView {
	date := b.cal.FormatDate(day)
	count := b.DailyCount(date)
	holiday, _ := b.cal.HolidayName(day)
	return DayView{
		Date:      date,
		Count:     count,
		SlotsLeft: max(0, b.opts.MaxCapacity-count),
		Closed:    b.closed.IsClosed(day),
		Holiday:   holiday,
		Full:      count >= b.opts.MaxCapacity,
	}
}

func (b *Book) filter(keep func(Appointment) bool) []Appointment {
	out := make([]Appointment, 0)
	for _, a := range b.appts {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Package jobs runs the periodic background work of the server: the daily
// renewal sweep and housekeeping of the rate limiter.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/galepedia/galepedia/internal/domain/production"
	"github.com/galepedia/galepedia/internal/platform/metrics"
)

// AlertSource lists patients due for renewal without an appointment.
type AlertSource interface {
	RenewalAlerts(ctx context.Context) ([]production.RenewalAlert, error)
}

// Cleaner drops idle state and reports how much was removed.
type Cleaner interface {
	Cleanup() int
}

type Scheduler struct {
	sched   *gocron.Scheduler
	logger  zerolog.Logger
	timeout time.Duration
}

func New(loc *time.Location, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()
	return &Scheduler{sched: s, logger: logger.With().Str("component", "jobs").Logger(), timeout: time.Minute}
}

// AddRenewalSweep runs SweepRenewals every day at the given HH:MM.
func (s *Scheduler) AddRenewalSweep(src AlertSource, at string) error {
	_, err := s.sched.Every(1).Days().At(at).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := SweepRenewals(ctx, src, s.logger); err != nil {
			s.logger.Error().Err(err).Msg("renewal sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule renewal sweep at %q: %w", at, err)
	}
	return nil
}

// AddCleanup runs c.Cleanup at a fixed interval.
func (s *Scheduler) AddCleanup(name string, c Cleaner, every time.Duration) error {
	_, err := s.sched.Every(every).Do(func() {
		if n := c.Cleanup(); n > 0 {
			s.logger.Debug().Str("job", name).Int("removed", n).Msg("cleanup")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s cleanup: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.sched.StartAsync()
	s.logger.Info().Int("jobs", len(s.sched.Jobs())).Msg("scheduler started")
}

func (s *Scheduler) Stop() {
	s.sched.Stop()
}

// SweepRenewals counts pending renewals by severity, publishes the counts on
// the renewal gauge and logs them.
func SweepRenewals(ctx context.Context, src AlertSource, logger zerolog.Logger) (map[production.Severity]int, error) {
	alerts, err := src.RenewalAlerts(ctx)
	if err != nil {
		return nil, err
	}

	counts := map[production.Severity]int{
		production.SeverityRed:    0,
		production.SeverityOrange: 0,
		production.SeverityYellow: 0,
	}
	for _, a := range alerts {
		counts[a.Severity]++
	}
	for sev, n := range counts {
		metrics.RenewalAlerts.WithLabelValues(string(sev)).Set(float64(n))
	}

	evt := logger.Info()
	if counts[production.SeverityRed] > 0 {
		evt = logger.Warn()
	}
	evt.
		Int("red", counts[production.SeverityRed]).
		Int("orange", counts[production.SeverityOrange]).
		Int("yellow", counts[production.SeverityYellow]).
		Msg("renewal sweep")
	return counts, nil
}

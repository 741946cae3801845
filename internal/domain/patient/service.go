package patient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/galepedia/galepedia/internal/domain/compounding"
	"github.com/galepedia/galepedia/internal/domain/planning"
	"github.com/galepedia/galepedia/internal/platform/db"
)

var (
	ErrNotFound      = errors.New("patient not found")
	ErrNameRequired  = errors.New("patient name is required")
	ErrNoLines       = errors.New("at least one preparation line is required")
	ErrDuplicateName = errors.New("patient already exists")
	ErrInvalidQuery  = errors.New("invalid patient query")
)

// DateLabelLayout is the day label stored with each visit.
const DateLabelLayout = "02/01/2006"

type Service struct {
	repo      Repository
	tx        db.TxRunner
	formulary *compounding.Formulary
	loc       *time.Location
	now       func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, formulary *compounding.Formulary, loc *time.Location) *Service {
	if tx == nil {
		tx = db.NoopTxRunner{}
		if r, ok := repo.(db.TxRunner); ok {
			tx = r
		}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, tx: tx, formulary: formulary, loc: loc, now: time.Now}
}

// RecordPreparation finalizes every line and appends them as one visit to
// the patient named in info, creating the patient on first visit. Phone is
// replaced; age and weight are kept when not supplied. Nothing is written if
// any line is not ready.
func (s *Service) RecordPreparation(ctx context.Context, info Info, preparators []string, lines []compounding.PreparationLine) (*Patient, *HistoryLog, error) {
	name := NormalizeName(info.Name)
	if name == "" {
		return nil, nil, ErrNameRequired
	}
	if len(lines) == 0 {
		return nil, nil, ErrNoLines
	}

	preps := make([]compounding.PreparationDetail, 0, len(lines))
	for i, line := range lines {
		detail, err := compounding.Finalize(s.formulary, line)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		preps = append(preps, detail)
	}

	now := s.now().In(s.loc).Truncate(time.Millisecond)
	log := &HistoryLog{
		ID:          uuid.New(),
		Date:        now.Format(DateLabelLayout),
		Timestamp:   now,
		Doctor:      strings.TrimSpace(info.Doctor),
		Preparators: cleanPreparators(preparators),
		Preps:       preps,
	}

	var saved *Patient
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByName(ctx, name)
		switch {
		case errors.Is(err, ErrNotFound):
			p = &Patient{
				ID:         uuid.New(),
				Name:       name,
				Phone:      strings.TrimSpace(info.Phone),
				Age:        info.Age,
				Weight:     info.Weight,
				LastUpdate: now,
			}
			if err := s.repo.Create(ctx, p); err != nil {
				return fmt.Errorf("create patient: %w", err)
			}
		case err != nil:
			return fmt.Errorf("load patient: %w", err)
		default:
			p.Phone = strings.TrimSpace(info.Phone)
			if info.Age != nil {
				p.Age = info.Age
			}
			if info.Weight != nil {
				p.Weight = info.Weight
			}
			p.LastUpdate = now
			if err := s.repo.UpdateDemographics(ctx, p); err != nil {
				return fmt.Errorf("update patient: %w", err)
			}
		}

		log.PatientID = p.ID
		if err := s.repo.AppendLog(ctx, log); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		p.History = append(p.History, *log)
		saved = p
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return saved, log, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Find resolves a patient by id or by name.
func (s *Service) Find(ctx context.Context, ref string) (*Patient, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.repo.GetByID(ctx, id)
	}
	return s.repo.GetByName(ctx, NormalizeName(ref))
}

// ListQuery drives the registry view.
type ListQuery struct {
	Search string
	Filter Filter
	Sort   SortKey
	Asc    bool
	Limit  int
	Offset int
}

// List returns matching patients with their status. Filters and urgency
// ordering are evaluated on the full match set; otherwise the store pages.
func (s *Service) List(ctx context.Context, q ListQuery) ([]Summary, int, error) {
	if !q.Filter.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown filter %q", ErrInvalidQuery, q.Filter)
	}
	switch q.Sort {
	case "", SortLastUpdate, SortName, SortUrgency:
	default:
		return nil, 0, fmt.Errorf("%w: unknown sort %q", ErrInvalidQuery, q.Sort)
	}

	now := s.now()
	rq := Query{Term: NormalizeName(q.Search), Sort: q.Sort, Asc: q.Asc}
	inMemory := q.Filter != FilterAll || q.Sort == SortUrgency
	if !inMemory {
		rq.Limit, rq.Offset = q.Limit, q.Offset
	}

	patients, total, err := s.repo.Search(ctx, rq)
	if err != nil {
		return nil, 0, fmt.Errorf("search patients: %w", err)
	}

	out := make([]Summary, 0, len(patients))
	for _, p := range patients {
		if !q.Filter.Matches(p, now) {
			continue
		}
		out = append(out, summarize(p, now))
	}
	if !inMemory {
		return out, total, nil
	}

	if q.Sort == SortUrgency {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := urgency(out[i].Status), urgency(out[j].Status)
			if q.Asc {
				return a < b
			}
			return a > b
		})
	}
	total = len(out)
	if q.Offset >= total {
		return []Summary{}, total, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, total, nil
}

// All returns every patient with full history.
func (s *Service) All(ctx context.Context) ([]*Patient, error) {
	patients, _, err := s.repo.Search(ctx, Query{})
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

// Status returns the patient with its treatment status and recent molecules.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (Summary, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return summarize(p, s.now()), nil
}

// LatestTreatment implements planning.PatientLookup. The returned PatientID is
// the normalized name, which is what appointments reference.
func (s *Service) LatestTreatment(ctx context.Context, ref string) (planning.Treatment, error) {
	p, err := s.Find(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return planning.Treatment{}, fmt.Errorf("%w: %s", planning.ErrPatientUnknown, ref)
	}
	if err != nil {
		return planning.Treatment{}, err
	}

	t := planning.Treatment{PatientID: p.Name, PatientName: p.Name}
	latest, ok := p.Latest()
	if !ok {
		return t, nil
	}
	t.DurationDays = latest.MaxDurationDays()
	t.LastPrep = latest.Timestamp
	if len(latest.Preps) > 0 {
		t.Molecule = latest.Preps[0].Molecule
	}
	return t, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func summarize(p *Patient, now time.Time) Summary {
	return Summary{Patient: p, Status: p.Status(now), RecentMolecules: p.RecentMolecules(3)}
}

func cleanPreparators(in []string) []string {
	out := make([]string, 0, len(in))
	for _, name := range in {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

package patient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/galepedia/galepedia/internal/domain/compounding"
)

// MemoryRepo keeps patients in process memory. It is also the TxRunner of
// its own writes: a failed WithTx restores the state seen when it began.
type MemoryRepo struct {
	mu     sync.RWMutex
	txMu   sync.Mutex
	byID   map[uuid.UUID]*Patient
	byName map[string]uuid.UUID
}

type memTxKey struct{}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[uuid.UUID]*Patient),
		byName: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePatient(p), nil
}

func (r *MemoryRepo) GetByName(_ context.Context, name string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePatient(r.byID[id]), nil
}

func (r *MemoryRepo) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[p.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, p.Name)
	}
	stored := clonePatient(p)
	stored.History = nil
	r.byID[p.ID] = stored
	r.byName[p.Name] = p.ID
	return nil
}

func (r *MemoryRepo) UpdateDemographics(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[p.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Phone = p.Phone
	stored.Age = p.Age
	stored.Weight = p.Weight
	stored.LastUpdate = p.LastUpdate
	return nil
}

func (r *MemoryRepo) AppendLog(_ context.Context, log *HistoryLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[log.PatientID]
	if !ok {
		return ErrNotFound
	}
	stored.History = append(stored.History, cloneLog(*log))
	return nil
}

func (r *MemoryRepo) Search(_ context.Context, q Query) ([]*Patient, int, error) {
	r.mu.RLock()
	var matches []*Patient
	for _, p := range r.byID {
		if q.Term == "" || strings.Contains(p.Name, q.Term) || (p.Phone != "" && strings.Contains(p.Phone, q.Term)) {
			matches = append(matches, clonePatient(p))
		}
	}
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if q.Sort == SortName {
			if q.Asc {
				return a.Name < b.Name
			}
			return a.Name > b.Name
		}
		if q.Asc {
			return a.LastUpdate.Before(b.LastUpdate)
		}
		return a.LastUpdate.After(b.LastUpdate)
	})

	total := len(matches)
	if q.Offset >= total {
		return []*Patient{}, total, nil
	}
	matches = matches[q.Offset:]
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, total, nil
}

func (r *MemoryRepo) Ping(context.Context) error { return nil }

// WithTx serializes transactions and rolls the store back when fn fails.
// Nested calls join the outer transaction.
func (r *MemoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()

	byID, byName := r.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		r.mu.Lock()
		r.byID, r.byName = byID, byName
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *MemoryRepo) snapshot() (map[uuid.UUID]*Patient, map[string]uuid.UUID) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byID := make(map[uuid.UUID]*Patient, len(r.byID))
	for id, p := range r.byID {
		byID[id] = clonePatient(p)
	}
	byName := make(map[string]uuid.UUID, len(r.byName))
	for name, id := range r.byName {
		byName[name] = id
	}
	return byID, byName
}

func clonePatient(p *Patient) *Patient {
	c := *p
	c.History = make([]HistoryLog, len(p.History))
	for i, h := range p.History {
		c.History[i] = cloneLog(h)
	}
	return &c
}

func cloneLog(h HistoryLog) HistoryLog {
	h.Preparators = append([]string(nil), h.Preparators...)
	preps := make([]compounding.PreparationDetail, len(h.Preps))
	copy(preps, h.Preps)
	h.Preps = preps
	return h
}

package planning

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]Appointment
}

// NewMemoryRepo returns a process-local repository. Bookings are lost on restart.
func NewMemoryRepo() Repository {
	return &memoryRepo{items: make(map[uuid.UUID]Appointment)}
}

func (r *memoryRepo) List(_ context.Context) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Appointment, 0, len(r.items))
	for _, a := range r.items {
		out = append(out, a)
	}
	return out, nil
}

func (r *memoryRepo) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[a.ID]; ok {
		return ErrDuplicateAppointment
	}
	r.items[a.ID] = *a
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *memoryRepo) Ping(_ context.Context) error {
	return nil
}

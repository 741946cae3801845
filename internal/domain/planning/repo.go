package planning

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists appointments. The Book stays the source of truth for
// capacity; repositories only store what the service committed.
type Repository interface {
	List(ctx context.Context) ([]Appointment, error)
	Create(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
}

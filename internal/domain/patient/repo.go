package patient

import (
	"context"

	"github.com/google/uuid"
)

type SortKey string

const (
	SortLastUpdate SortKey = "last_update"
	SortName       SortKey = "name"
	SortUrgency    SortKey = "urgency"
)

// Query selects patients whose normalized name or phone contains Term.
// A Limit of zero returns every match.
type Query struct {
	Term   string
	Sort   SortKey
	Asc    bool
	Limit  int
	Offset int
}

// Repository stores patients and their append-only history. Returned
// patients carry their full history.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByName(ctx context.Context, name string) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
	UpdateDemographics(ctx context.Context, p *Patient) error
	AppendLog(ctx context.Context, log *HistoryLog) error
	Search(ctx context.Context, q Query) ([]*Patient, int, error)
	Ping(ctx context.Context) error
}

package facts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence boundary for the fact history. The history
// is append-only; updates touch only verification and supersession columns.
type Repository interface {
	Insert(ctx context.Context, f *Fact) error
	GetByID(ctx context.Context, id uuid.UUID) (*Fact, error)
	// Supersede sets the supersession columns on oldID only when it has not
	// been superseded yet. Returns false when no row was updated.
	Supersede(ctx context.Context, oldID, newID uuid.UUID, at time.Time) (bool, error)
	// Verify sets the verification columns. Returns false when the fact
	// does not exist.
	Verify(ctx context.Context, id uuid.UUID, verifiedBy string, at time.Time) (bool, error)
	// CurrentByCase returns the resolved current fact per fact_type: the
	// latest non-superseded fact by created_at, higher confidence breaking
	// exact timestamp ties.
	CurrentByCase(ctx context.Context, caseID uuid.UUID) ([]*Fact, error)
	// HistoryByType returns all facts of one type for a case ordered by
	// created_at ascending, superseded rows included.
	HistoryByType(ctx context.Context, caseID uuid.UUID, factType string) ([]*Fact, error)
}

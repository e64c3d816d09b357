package intake

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Insert(ctx context.Context, n *VoiceNote) error
	GetByID(ctx context.Context, id uuid.UUID) (*VoiceNote, error)
	// GetByHash returns the note with the given content hash, or nil when
	// none exists.
	GetByHash(ctx context.Context, hash string) (*VoiceNote, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error
	// Recent lists notes newest first, optionally filtered by status and MRN.
	Recent(ctx context.Context, limit, offset int, status *Status, mrn *string) ([]*VoiceNote, error)
}

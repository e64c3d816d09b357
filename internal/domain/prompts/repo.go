package prompts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence boundary for prompt state. Transitions out
// of live statuses are conditional updates so racing callers cannot revive a
// terminal prompt.
type Repository interface {
	Insert(ctx context.Context, p *Prompt) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prompt, error)
	// GetLive returns the active or snoozed prompt for (caseID, ruleID),
	// or nil when none exists.
	GetLive(ctx context.Context, caseID uuid.UUID, ruleID string) (*Prompt, error)
	// ListLive returns active and snoozed prompts for a case.
	ListLive(ctx context.Context, caseID uuid.UUID) ([]*Prompt, error)
	// ListActive returns active prompts ordered by severity (block, warn,
	// info) then created_at ascending.
	ListActive(ctx context.Context, caseID uuid.UUID) ([]*Prompt, error)
	// Terminate moves a live prompt into a terminal status. Returns false
	// when the prompt was not live (missing or already terminal).
	Terminate(ctx context.Context, id uuid.UUID, status Status, rt ResolutionType, resolvedBy, note *string, at time.Time) (bool, error)
	// Snooze sets a wake time on a live prompt and bumps its snooze count.
	Snooze(ctx context.Context, id uuid.UUID, until time.Time, at time.Time) (bool, error)
	// WakeExpired flips snoozed prompts whose wake time has passed back to
	// active, optionally scoped to one case, returning the woken prompts.
	WakeExpired(ctx context.Context, caseID *uuid.UUID, now time.Time) ([]*Prompt, error)
}

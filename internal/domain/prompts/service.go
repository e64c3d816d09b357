package prompts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scc/shadow-coder/internal/domain/rules"
)

// Service owns valid prompt state transitions, independent of whether they
// are triggered by rule re-evaluation or a direct user action.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create opens a new active prompt for (caseID, ruleID). If a live prompt
// already exists the pre-existing prompt is returned together with
// ErrDuplicateActivePrompt; the caller decides whether that is a bug or a
// benign race.
func (s *Service) Create(ctx context.Context, caseID uuid.UUID, ruleID string, severity rules.Severity, message string, details, guidelineRef *string) (*Prompt, error) {
	if caseID == uuid.Nil || ruleID == "" {
		return nil, fmt.Errorf("%w: case_id and rule_id are required", ErrInvalidInput)
	}
	if !severity.Valid() {
		return nil, fmt.Errorf("%w: invalid severity %q", ErrInvalidInput, severity)
	}

	existing, err := s.repo.GetLive(ctx, caseID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("check live prompt: %w", err)
	}
	if existing != nil {
		return existing, ErrDuplicateActivePrompt
	}

	now := time.Now().UTC()
	p := &Prompt{
		ID:           uuid.New(),
		CaseID:       caseID,
		RuleID:       ruleID,
		Severity:     severity,
		Status:       StatusActive,
		Message:      message,
		Details:      details,
		GuidelineRef: guidelineRef,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, p); err != nil {
		return nil, fmt.Errorf("insert prompt: %w", err)
	}
	return p, nil
}

// terminate is the shared live→terminal path. A failed conditional update is
// disambiguated by re-reading: missing id is NotFound, anything else means
// the prompt was already terminal.
func (s *Service) terminate(ctx context.Context, id uuid.UUID, status Status, rt ResolutionType, resolvedBy, note *string) error {
	ok, err := s.repo.Terminate(ctx, id, status, rt, resolvedBy, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("terminate prompt: %w", err)
	}
	if ok {
		return nil
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyTerminal
}

// Resolve closes a prompt because its rule's requirements are now satisfied,
// or because a user documented the missing facts.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, rt ResolutionType, resolvedBy, note *string) error {
	if rt == "" {
		rt = ResolutionFactAdded
	}
	return s.terminate(ctx, id, StatusResolved, rt, resolvedBy, note)
}

// Dismiss closes a prompt by explicit user override.
func (s *Service) Dismiss(ctx context.Context, id uuid.UUID, rt ResolutionType, resolvedBy, note *string) error {
	if !rt.DismissalType() {
		return fmt.Errorf("%w: %q is not a dismissal resolution type", ErrInvalidInput, rt)
	}
	return s.terminate(ctx, id, StatusDismissed, rt, resolvedBy, note)
}

// Expire closes a prompt whose rule no longer applies to the case.
func (s *Service) Expire(ctx context.Context, id uuid.UUID) error {
	return s.terminate(ctx, id, StatusExpired, ResolutionAutoExpired, nil, nil)
}

// Snooze parks a live prompt until the wake time.
func (s *Service) Snooze(ctx context.Context, id uuid.UUID, until time.Time) error {
	if until.IsZero() {
		return fmt.Errorf("%w: snooze wake time is required", ErrInvalidInput)
	}
	ok, err := s.repo.Snooze(ctx, id, until.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("snooze prompt: %w", err)
	}
	if ok {
		return nil
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyTerminal
}

// ExpireStaleSnoozes wakes snoozed prompts whose snoozed_until has passed.
// Invoked periodically from the serve loop and lazily before active reads.
func (s *Service) ExpireStaleSnoozes(ctx context.Context, now time.Time) ([]*Prompt, error) {
	woken, err := s.repo.WakeExpired(ctx, nil, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("wake stale snoozes: %w", err)
	}
	return woken, nil
}

// GetActive returns the active prompts for a case in presentation order:
// block first, then warn, then info, oldest first within a tier. Snoozes
// that have lapsed are woken first so they are never silently hidden.
func (s *Service) GetActive(ctx context.Context, caseID uuid.UUID) ([]*Prompt, error) {
	if _, err := s.repo.WakeExpired(ctx, &caseID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("wake stale snoozes: %w", err)
	}
	active, err := s.repo.ListActive(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("list active prompts: %w", err)
	}
	return active, nil
}

// GetLive returns the outstanding (active or snoozed) prompt for one rule,
// or nil.
func (s *Service) GetLive(ctx context.Context, caseID uuid.UUID, ruleID string) (*Prompt, error) {
	return s.repo.GetLive(ctx, caseID, ruleID)
}

// ListLive returns all outstanding prompts for a case.
func (s *Service) ListLive(ctx context.Context, caseID uuid.UUID) ([]*Prompt, error) {
	return s.repo.ListLive(ctx, caseID)
}

// GetByID returns one prompt regardless of status.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Prompt, error) {
	return s.repo.GetByID(ctx, id)
}

// Summary counts outstanding prompts by severity.
func (s *Service) Summary(ctx context.Context, caseID uuid.UUID) (SeveritySummary, error) {
	live, err := s.repo.ListLive(ctx, caseID)
	if err != nil {
		return SeveritySummary{}, fmt.Errorf("list live prompts: %w", err)
	}
	var sum SeveritySummary
	for _, p := range live {
		switch p.Severity {
		case rules.SeverityBlock:
			sum.Block++
		case rules.SeverityWarn:
			sum.Warn++
		case rules.SeverityInfo:
			sum.Info++
		}
		sum.Total++
	}
	return sum, nil
}

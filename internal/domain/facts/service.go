package facts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scc/shadow-coder/internal/platform/db"
)

// Service owns the versioned fact history: append-only inserts, deterministic
// current-value resolution, verification and idempotent supersession.
type Service struct {
	repo Repository
	tx   db.TxRunner
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

func validateCandidate(factType string, confidence float64, sourceType SourceType) error {
	if factType == "" {
		return fmt.Errorf("%w: fact_type is required", ErrInvalidInput)
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidInput, confidence)
	}
	if !sourceType.Valid() {
		return fmt.Errorf("%w: unknown source_type %q", ErrInvalidInput, sourceType)
	}
	return nil
}

// AddFact inserts a new fact row. It never overwrites: a newer fact of the
// same type becomes current by timestamp, while the old row stays in history.
func (s *Service) AddFact(ctx context.Context, caseID uuid.UUID, factType string, value interface{}, confidence float64, sourceType SourceType, sourceRef *string) (*Fact, error) {
	if caseID == uuid.Nil {
		return nil, fmt.Errorf("%w: case_id is required", ErrInvalidInput)
	}
	if err := validateCandidate(factType, confidence, sourceType); err != nil {
		return nil, err
	}

	f := &Fact{
		ID:         uuid.New(),
		CaseID:     caseID,
		FactType:   factType,
		Value:      value,
		Confidence: confidence,
		SourceType: sourceType,
		SourceRef:  sourceRef,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, f); err != nil {
		return nil, fmt.Errorf("insert fact: %w", err)
	}
	return f, nil
}

// AddFactsBatch commits a full set of candidate facts from one source in a
// single transaction: either every fact lands or none do. All candidates are
// validated before the first insert. Supersession stays explicit; the batch
// never marks prior facts superseded on its own.
func (s *Service) AddFactsBatch(ctx context.Context, caseID uuid.UUID, candidates []Candidate, sourceRef *string) ([]*Fact, error) {
	if caseID == uuid.Nil {
		return nil, fmt.Errorf("%w: case_id is required", ErrInvalidInput)
	}
	for i, c := range candidates {
		st := c.SourceType
		if st == "" {
			st = SourceVoiceNote
		}
		if err := validateCandidate(c.FactType, c.Confidence, st); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
	}

	now := time.Now().UTC()
	inserted := make([]*Fact, 0, len(candidates))
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, c := range candidates {
			st := c.SourceType
			if st == "" {
				st = SourceVoiceNote
			}
			f := &Fact{
				ID:         uuid.New(),
				CaseID:     caseID,
				FactType:   c.FactType,
				Value:      c.Value,
				Confidence: c.Confidence,
				SourceType: st,
				SourceRef:  sourceRef,
				CreatedAt:  now,
			}
			if err := s.repo.Insert(ctx, f); err != nil {
				return fmt.Errorf("insert fact %s: %w", c.FactType, err)
			}
			inserted = append(inserted, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// SupersedeFact marks oldID as replaced by newID. Idempotent: repeating an
// identical supersession succeeds; a conflicting newID after the first
// supersession returns ErrAlreadySuperseded.
func (s *Service) SupersedeFact(ctx context.Context, oldID, newID uuid.UUID) error {
	if oldID == uuid.Nil || newID == uuid.Nil {
		return fmt.Errorf("%w: fact ids are required", ErrInvalidInput)
	}
	if oldID == newID {
		return fmt.Errorf("%w: a fact cannot supersede itself", ErrInvalidInput)
	}
	if _, err := s.repo.GetByID(ctx, newID); err != nil {
		return err
	}

	updated, err := s.repo.Supersede(ctx, oldID, newID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("supersede fact: %w", err)
	}
	if updated {
		return nil
	}

	old, err := s.repo.GetByID(ctx, oldID)
	if err != nil {
		return err
	}
	if old.SupersededBy != nil && *old.SupersededBy == newID {
		return nil
	}
	return ErrAlreadySuperseded
}

// VerifyFact records clinician sign-off. Verification does not affect
// current-value resolution.
func (s *Service) VerifyFact(ctx context.Context, factID uuid.UUID, verifiedBy string) error {
	if verifiedBy == "" {
		return fmt.Errorf("%w: verified_by is required", ErrInvalidInput)
	}
	updated, err := s.repo.Verify(ctx, factID, verifiedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("verify fact: %w", err)
	}
	if !updated {
		return ErrNotFound
	}
	return nil
}

// GetFactMap returns the resolved current fact per fact_type. A case with no
// facts yields an empty map, not an error.
func (s *Service) GetFactMap(ctx context.Context, caseID uuid.UUID) (map[string]*Fact, error) {
	current, err := s.repo.CurrentByCase(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("resolve current facts: %w", err)
	}
	m := make(map[string]*Fact, len(current))
	for _, f := range current {
		m[f.FactType] = f
	}
	return m, nil
}

// GetFactValues projects GetFactMap down to the raw values, the shape the
// rule evaluator consumes.
func (s *Service) GetFactValues(ctx context.Context, caseID uuid.UUID) (map[string]interface{}, error) {
	m, err := s.GetFactMap(ctx, caseID)
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{}, len(m))
	for t, f := range m {
		values[t] = f.Value
	}
	return values, nil
}

// GetFactHistory returns the full audit trail for one fact type, superseded
// rows included, oldest first.
func (s *Service) GetFactHistory(ctx context.Context, caseID uuid.UUID, factType string) ([]*Fact, error) {
	if factType == "" {
		return nil, fmt.Errorf("%w: fact_type is required", ErrInvalidInput)
	}
	history, err := s.repo.HistoryByType(ctx, caseID, factType)
	if err != nil {
		return nil, fmt.Errorf("fact history: %w", err)
	}
	return history, nil
}

// HasFact reports whether the case has a current fact of the given type,
// optionally constrained by a value predicate.
func (s *Service) HasFact(ctx context.Context, caseID uuid.UUID, factType string, pred func(interface{}) bool) (bool, error) {
	m, err := s.GetFactMap(ctx, caseID)
	if err != nil {
		return false, err
	}
	f, ok := m[factType]
	if !ok {
		return false, nil
	}
	if pred != nil {
		return pred(f.Value), nil
	}
	return true, nil
}

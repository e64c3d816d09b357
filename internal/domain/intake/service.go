package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scc/shadow-coder/internal/domain/compliance"
	"github.com/scc/shadow-coder/internal/domain/facts"
	"github.com/scc/shadow-coder/pkg/pagination"
)

// IngestRequest carries one voice note with its already-extracted candidate
// facts. The transcript-to-fact extraction step is an upstream collaborator.
type IngestRequest struct {
	Transcript  string                 `json:"transcript"`
	Summary     *string                `json:"summary,omitempty"`
	MRN         *string                `json:"mrn,omitempty"`
	PatientName *string                `json:"patient_name,omitempty"`
	CapturedAt  *time.Time             `json:"captured_at,omitempty"`
	AudioRef    *string                `json:"audio_ref,omitempty"`
	CaseID      *uuid.UUID             `json:"case_id,omitempty"`
	Provenance  map[string]interface{} `json:"provenance,omitempty"`
	Facts       []facts.Candidate      `json:"facts,omitempty"`
}

// IngestResult reports what one intake call did.
type IngestResult struct {
	Duplicate  bool                `json:"duplicate"`
	NoteID     uuid.UUID           `json:"note_id"`
	CaseID     uuid.UUID           `json:"case_id"`
	Status     Status              `json:"status"`
	Facts      []*facts.Fact       `json:"facts,omitempty"`
	Evaluation *compliance.Summary `json:"evaluation,omitempty"`
}

// Service runs the intake pipeline: duplicate suppression, case resolution,
// note bookkeeping, fact commit and rule evaluation.
type Service struct {
	repo   Repository
	facts  *facts.Service
	engine *compliance.Engine
	log    zerolog.Logger
}

func NewService(repo Repository, factsSvc *facts.Service, engine *compliance.Engine, log zerolog.Logger) *Service {
	return &Service{repo: repo, facts: factsSvc, engine: engine, log: log}
}

// Ingest records a voice note and commits its candidate facts. Replayed
// notes (same content hash) are suppressed without writes. Evaluation
// failures after a successful fact commit are logged, not fatal: prompt
// state is rebuilt by the next evaluation pass.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.Transcript == "" {
		return nil, fmt.Errorf("%w: transcript is required", ErrInvalidInput)
	}

	hash := ContentHash(req.Transcript, req.CapturedAt)
	existing, err := s.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}
	if existing != nil {
		return &IngestResult{
			Duplicate: true,
			NoteID:    existing.ID,
			CaseID:    existing.CaseID,
			Status:    existing.Status,
		}, nil
	}

	caseID := s.resolveCase(req)
	now := time.Now().UTC()
	note := &VoiceNote{
		ID:          uuid.New(),
		Transcript:  req.Transcript,
		Summary:     req.Summary,
		ContentHash: hash,
		MRN:         req.MRN,
		PatientName: req.PatientName,
		CapturedAt:  req.CapturedAt,
		AudioRef:    req.AudioRef,
		CaseID:      caseID,
		Status:      StatusReceived,
		Provenance:  req.Provenance,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, note); err != nil {
		return nil, fmt.Errorf("record voice note: %w", err)
	}

	result := &IngestResult{NoteID: note.ID, CaseID: caseID, Status: StatusProcessed}

	if len(req.Facts) > 0 {
		ref := note.ID.String()
		committed, err := s.facts.AddFactsBatch(ctx, caseID, req.Facts, &ref)
		if err != nil {
			if uerr := s.repo.UpdateStatus(ctx, note.ID, StatusFailed, time.Now().UTC()); uerr != nil {
				s.log.Error().Err(uerr).Str("note_id", note.ID.String()).Msg("mark note failed")
			}
			return nil, fmt.Errorf("commit facts: %w", err)
		}
		result.Facts = committed
	}

	if err := s.repo.UpdateStatus(ctx, note.ID, StatusProcessed, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("mark note processed: %w", err)
	}

	summary, err := s.engine.Evaluate(ctx, caseID)
	if err != nil {
		s.log.Warn().Err(err).Str("case_id", caseID.String()).Msg("post-intake evaluation failed")
	} else {
		result.Evaluation = summary
	}

	return result, nil
}

func (s *Service) resolveCase(req IngestRequest) uuid.UUID {
	if req.CaseID != nil && *req.CaseID != uuid.Nil {
		return *req.CaseID
	}
	if req.MRN != nil && *req.MRN != "" {
		return CaseForMRN(*req.MRN)
	}
	return uuid.New()
}

func (s *Service) GetNote(ctx context.Context, id uuid.UUID) (*VoiceNote, error) {
	return s.repo.GetByID(ctx, id)
}

// Recent lists notes newest first. It fetches one extra row to report
// whether another page exists.
func (s *Service) Recent(ctx context.Context, p pagination.Params, status *Status, mrn *string) ([]*VoiceNote, bool, error) {
	notes, err := s.repo.Recent(ctx, p.Limit+1, p.Offset, status, mrn)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(notes) > p.Limit
	if hasMore {
		notes = notes[:p.Limit]
	}
	return notes, hasMore, nil
}

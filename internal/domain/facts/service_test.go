package facts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scc/shadow-coder/internal/platform/db"
)

type mockRepo struct {
	facts     map[uuid.UUID]*Fact
	order     []uuid.UUID
	insertErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{facts: make(map[uuid.UUID]*Fact)}
}

func (m *mockRepo) Insert(_ context.Context, f *Fact) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	cp := *f
	m.facts[f.ID] = &cp
	m.order = append(m.order, f.ID)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Fact, error) {
	f, ok := m.facts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *mockRepo) Supersede(_ context.Context, oldID, newID uuid.UUID, at time.Time) (bool, error) {
	f, ok := m.facts[oldID]
	if !ok || f.SupersededBy != nil {
		return false, nil
	}
	f.SupersededBy = &newID
	f.SupersededAt = &at
	return true, nil
}

func (m *mockRepo) Verify(_ context.Context, id uuid.UUID, verifiedBy string, at time.Time) (bool, error) {
	f, ok := m.facts[id]
	if !ok {
		return false, nil
	}
	f.Verified = true
	f.VerifiedBy = &verifiedBy
	f.VerifiedAt = &at
	return true, nil
}

func (m *mockRepo) CurrentByCase(_ context.Context, caseID uuid.UUID) ([]*Fact, error) {
	best := map[string]*Fact{}
	for _, id := range m.order {
		f := m.facts[id]
		if f.CaseID != caseID || f.SupersededBy != nil {
			continue
		}
		cur, ok := best[f.FactType]
		if !ok || f.CreatedAt.After(cur.CreatedAt) ||
			(f.CreatedAt.Equal(cur.CreatedAt) && f.Confidence > cur.Confidence) {
			best[f.FactType] = f
		}
	}
	var out []*Fact
	for _, f := range best {
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockRepo) HistoryByType(_ context.Context, caseID uuid.UUID, factType string) ([]*Fact, error) {
	var out []*Fact
	for _, id := range m.order {
		f := m.facts[id]
		if f.CaseID == caseID && f.FactType == factType {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, db.PassthroughTxRunner{}), repo
}

func TestAddFact_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	caseID := uuid.New()

	tests := []struct {
		name       string
		caseID     uuid.UUID
		factType   string
		confidence float64
		source     SourceType
	}{
		{"empty fact type", caseID, "", 1.0, SourceManual},
		{"confidence below range", caseID, "abi_value", -0.1, SourceManual},
		{"confidence above range", caseID, "abi_value", 1.1, SourceManual},
		{"unknown source type", caseID, "abi_value", 1.0, "fax"},
		{"nil case id", uuid.Nil, "abi_value", 1.0, SourceManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddFact(ctx, tt.caseID, tt.factType, 0.7, tt.confidence, tt.source, nil)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestAddFact_AppearsInHistory(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	caseID := uuid.New()

	f, err := svc.AddFact(ctx, caseID, "rutherford_class", 4, 1.0, SourceManual, nil)
	if err != nil {
		t.Fatalf("AddFact: %v", err)
	}

	history, err := svc.GetFactHistory(ctx, caseID, "rutherford_class")
	if err != nil {
		t.Fatalf("GetFactHistory: %v", err)
	}
	if len(history) != 1 || history[0].ID != f.ID {
		t.Errorf("expected history to contain just-added fact, got %v", history)
	}
}

func TestAddFactsBatch_ValidatesBeforeWriting(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	candidates := []Candidate{
		{FactType: "laterality", Value: "left", Confidence: 0.9},
		{FactType: "", Value: "x", Confidence: 0.9},
	}
	_, err := svc.AddFactsBatch(ctx, uuid.New(), candidates, nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(repo.facts) != 0 {
		t.Errorf("expected no writes after validation failure, got %d", len(repo.facts))
	}
}

func TestAddFactsBatch_DefaultsSourceToVoiceNote(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	caseID := uuid.New()
	ref := "note-1"

	inserted, err := svc.AddFactsBatch(ctx, caseID, []Candidate{
		{FactType: "laterality", Value: "left", Confidence: 0.9},
		{FactType: "abi_value", Value: 0.55, Confidence: 0.8},
	}, &ref)
	if err != nil {
		t.Fatalf("AddFactsBatch: %v", err)
	}
	if len(inserted) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(inserted))
	}
	for _, f := range inserted {
		if f.SourceType != SourceVoiceNote {
			t.Errorf("expected voice_note source, got %s", f.SourceType)
		}
		if f.SourceRef == nil || *f.SourceRef != "note-1" {
			t.Errorf("expected source ref note-1, got %v", f.SourceRef)
		}
	}
}

func TestSupersedeFact(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	caseID := uuid.New()

	a, _ := svc.AddFact(ctx, caseID, "laterality", "left", 1.0, SourceManual, nil)
	b, _ := svc.AddFact(ctx, caseID, "laterality", "bilateral", 1.0, SourceManual, nil)
	c, _ := svc.AddFact(ctx, caseID, "laterality", "right", 1.0, SourceManual, nil)

	if err := svc.SupersedeFact(ctx, a.ID, b.ID); err != nil {
		t.Fatalf("first supersession: %v", err)
	}
	// Identical repeat is a no-op success.
	if err := svc.SupersedeFact(ctx, a.ID, b.ID); err != nil {
		t.Errorf("repeat supersession: expected nil, got %v", err)
	}
	// Conflicting replacement fails.
	if err := svc.SupersedeFact(ctx, a.ID, c.ID); !errors.Is(err, ErrAlreadySuperseded) {
		t.Errorf("expected ErrAlreadySuperseded, got %v", err)
	}
	// Unknown ids fail with NotFound.
	if err := svc.SupersedeFact(ctx, uuid.New(), b.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown old id, got %v", err)
	}
	if err := svc.SupersedeFact(ctx, c.ID, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown new id, got %v", err)
	}
	// Self-supersession is rejected.
	if err := svc.SupersedeFact(ctx, c.ID, c.ID); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for self-supersession, got %v", err)
	}
}

func TestGetFactMap_Resolution(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	caseID := uuid.New()
	base := time.Now().UTC()

	seed := func(factType string, value interface{}, confidence float64, at time.Time) *Fact {
		f := &Fact{
			ID: uuid.New(), CaseID: caseID, FactType: factType,
			Value: value, Confidence: confidence, SourceType: SourceVoiceNote, CreatedAt: at,
		}
		repo.Insert(ctx, f)
		return f
	}

	// Later timestamp wins regardless of confidence.
	seed("abi_value", 0.5, 0.99, base)
	newer := seed("abi_value", 0.6, 0.4, base.Add(time.Minute))

	// Equal timestamps: higher confidence wins.
	seed("laterality", "left", 0.6, base)
	confident := seed("laterality", "right", 0.9, base)

	// Superseded facts never resolve.
	old := seed("target_vessel", "SFA", 1.0, base.Add(time.Hour))
	replacement := seed("target_vessel", "popliteal", 1.0, base)
	if err := svc.SupersedeFact(ctx, old.ID, replacement.ID); err != nil {
		t.Fatalf("supersede: %v", err)
	}

	m, err := svc.GetFactMap(ctx, caseID)
	if err != nil {
		t.Fatalf("GetFactMap: %v", err)
	}
	if m["abi_value"].ID != newer.ID {
		t.Errorf("expected newest abi_value to win")
	}
	if m["laterality"].ID != confident.ID {
		t.Errorf("expected higher confidence to break timestamp tie")
	}
	if m["target_vessel"].ID != replacement.ID {
		t.Errorf("expected superseded fact to be excluded from resolution")
	}

	// History still lists both target_vessel rows.
	history, _ := svc.GetFactHistory(ctx, caseID, "target_vessel")
	if len(history) != 2 {
		t.Errorf("expected full history including superseded rows, got %d", len(history))
	}
}

func TestGetFactMap_EmptyCase(t *testing.T) {
	svc, _ := newTestService()
	m, err := svc.GetFactMap(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetFactMap: %v", err)
	}
	if len(m) != 0 {
		t.Errorf("expected empty map for unknown case, got %v", m)
	}
}

func TestVerifyFact(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	f, _ := svc.AddFact(ctx, uuid.New(), "wound_present", true, 1.0, SourceManual, nil)
	if err := svc.VerifyFact(ctx, f.ID, "dr-smith"); err != nil {
		t.Fatalf("VerifyFact: %v", err)
	}
	stored := repo.facts[f.ID]
	if !stored.Verified || stored.VerifiedBy == nil || *stored.VerifiedBy != "dr-smith" {
		t.Errorf("verification fields not set: %+v", stored)
	}

	if err := svc.VerifyFact(ctx, uuid.New(), "dr-smith"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := svc.VerifyFact(ctx, f.ID, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty verifier, got %v", err)
	}
}

func TestHasFact(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	caseID := uuid.New()

	svc.AddFact(ctx, caseID, "pad_symptom_class", "claudication", 1.0, SourceManual, nil)

	ok, err := svc.HasFact(ctx, caseID, "pad_symptom_class", nil)
	if err != nil || !ok {
		t.Errorf("expected fact present, got %v %v", ok, err)
	}
	ok, _ = svc.HasFact(ctx, caseID, "pad_symptom_class", func(v interface{}) bool {
		return v == "claudication"
	})
	if !ok {
		t.Error("expected predicate to match")
	}
	ok, _ = svc.HasFact(ctx, caseID, "pad_symptom_class", func(v interface{}) bool {
		return v == "rest_pain"
	})
	if ok {
		t.Error("expected predicate mismatch")
	}
	ok, _ = svc.HasFact(ctx, caseID, "rutherford_class", nil)
	if ok {
		t.Error("expected missing fact type")
	}
}

func TestAddFactsBatch_InsertFailurePropagates(t *testing.T) {
	repo := newMockRepo()
	repo.insertErr = fmt.Errorf("connection reset")
	svc := NewService(repo, db.PassthroughTxRunner{})

	_, err := svc.AddFactsBatch(context.Background(), uuid.New(), []Candidate{
		{FactType: "laterality", Value: "left", Confidence: 0.9},
	}, nil)
	if err == nil {
		t.Fatal("expected insert error to propagate")
	}
}

package compliance

import (
	"context"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scc/shadow-coder/internal/domain/facts"
	"github.com/scc/shadow-coder/internal/domain/prompts"
	"github.com/scc/shadow-coder/internal/domain/rules"
	"github.com/scc/shadow-coder/internal/platform/caselock"
	"github.com/scc/shadow-coder/internal/platform/db"
)

// In-memory fact repository.

type memFactRepo struct {
	facts map[uuid.UUID]*facts.Fact
	order []uuid.UUID
}

func newMemFactRepo() *memFactRepo {
	return &memFactRepo{facts: make(map[uuid.UUID]*facts.Fact)}
}

func (m *memFactRepo) Insert(_ context.Context, f *facts.Fact) error {
	cp := *f
	m.facts[f.ID] = &cp
	m.order = append(m.order, f.ID)
	return nil
}

func (m *memFactRepo) GetByID(_ context.Context, id uuid.UUID) (*facts.Fact, error) {
	f, ok := m.facts[id]
	if !ok {
		return nil, facts.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memFactRepo) Supersede(_ context.Context, oldID, newID uuid.UUID, at time.Time) (bool, error) {
	f, ok := m.facts[oldID]
	if !ok || f.SupersededBy != nil {
		return false, nil
	}
	f.SupersededBy = &newID
	f.SupersededAt = &at
	return true, nil
}

func (m *memFactRepo) Verify(_ context.Context, id uuid.UUID, by string, at time.Time) (bool, error) {
	f, ok := m.facts[id]
	if !ok {
		return false, nil
	}
	f.Verified = true
	f.VerifiedBy = &by
	f.VerifiedAt = &at
	return true, nil
}

func (m *memFactRepo) CurrentByCase(_ context.Context, caseID uuid.UUID) ([]*facts.Fact, error) {
	best := map[string]*facts.Fact{}
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
	var out []*facts.Fact
	for _, f := range best {
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memFactRepo) HistoryByType(_ context.Context, caseID uuid.UUID, factType string) ([]*facts.Fact, error) {
	var out []*facts.Fact
	for _, id := range m.order {
		f := m.facts[id]
		if f.CaseID == caseID && f.FactType == factType {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

// In-memory prompt repository.

type memPromptRepo struct {
	prompts map[uuid.UUID]*prompts.Prompt
	order   []uuid.UUID
}

func newMemPromptRepo() *memPromptRepo {
	return &memPromptRepo{prompts: make(map[uuid.UUID]*prompts.Prompt)}
}

func (m *memPromptRepo) Insert(_ context.Context, p *prompts.Prompt) error {
	cp := *p
	m.prompts[p.ID] = &cp
	m.order = append(m.order, p.ID)
	return nil
}

func (m *memPromptRepo) GetByID(_ context.Context, id uuid.UUID) (*prompts.Prompt, error) {
	p, ok := m.prompts[id]
	if !ok {
		return nil, prompts.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPromptRepo) GetLive(_ context.Context, caseID uuid.UUID, ruleID string) (*prompts.Prompt, error) {
	for _, id := range m.order {
		p := m.prompts[id]
		if p.CaseID == caseID && p.RuleID == ruleID && p.Status.Live() {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memPromptRepo) ListLive(_ context.Context, caseID uuid.UUID) ([]*prompts.Prompt, error) {
	var out []*prompts.Prompt
	for _, id := range m.order {
		p := m.prompts[id]
		if p.CaseID == caseID && p.Status.Live() {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPromptRepo) ListActive(_ context.Context, caseID uuid.UUID) ([]*prompts.Prompt, error) {
	var out []*prompts.Prompt
	for _, id := range m.order {
		p := m.prompts[id]
		if p.CaseID == caseID && p.Status == prompts.StatusActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() < out[j].Severity.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memPromptRepo) Terminate(_ context.Context, id uuid.UUID, status prompts.Status, rt prompts.ResolutionType, by, note *string, at time.Time) (bool, error) {
	p, ok := m.prompts[id]
	if !ok || !p.Status.Live() {
		return false, nil
	}
	p.Status = status
	p.ResolutionType = &rt
	p.ResolvedBy = by
	p.ResolutionNote = note
	p.ResolvedAt = &at
	p.UpdatedAt = at
	return true, nil
}

func (m *memPromptRepo) Snooze(_ context.Context, id uuid.UUID, until, at time.Time) (bool, error) {
	p, ok := m.prompts[id]
	if !ok || !p.Status.Live() {
		return false, nil
	}
	p.Status = prompts.StatusSnoozed
	p.SnoozedUntil = &until
	p.SnoozeCount++
	p.UpdatedAt = at
	return true, nil
}

func (m *memPromptRepo) WakeExpired(_ context.Context, caseID *uuid.UUID, now time.Time) ([]*prompts.Prompt, error) {
	var woken []*prompts.Prompt
	for _, id := range m.order {
		p := m.prompts[id]
		if caseID != nil && p.CaseID != *caseID {
			continue
		}
		if p.Status == prompts.StatusSnoozed && p.SnoozedUntil != nil && !p.SnoozedUntil.After(now) {
			p.Status = prompts.StatusActive
			p.SnoozedUntil = nil
			cp := *p
			woken = append(woken, &cp)
		}
	}
	return woken, nil
}

type testEnv struct {
	engine     *Engine
	factsSvc   *facts.Service
	promptsSvc *prompts.Service
	promptRepo *memPromptRepo
}

func newTestEnv(t *testing.T, catalog *rules.Catalog) *testEnv {
	t.Helper()
	factRepo := newMemFactRepo()
	promptRepo := newMemPromptRepo()
	factsSvc := facts.NewService(factRepo, db.PassthroughTxRunner{})
	promptsSvc := prompts.NewService(promptRepo)
	engine := NewEngine(factsSvc, promptsSvc, catalog, caselock.NewRegistry(), db.PassthroughTxRunner{}, zerolog.Nop())
	return &testEnv{engine: engine, factsSvc: factsSvc, promptsSvc: promptsSvc, promptRepo: promptRepo}
}

func singleRuleCatalog(t *testing.T, r rules.Rule) *rules.Catalog {
	t.Helper()
	c, err := rules.NewCatalog([]rules.Rule{r})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestEvaluate_ViolationThenResolution(t *testing.T) {
	catalog := singleRuleCatalog(t, rules.Rule{
		ID:       "RUTHERFORD_REQUIRED",
		Severity: rules.SeverityBlock,
		Requires: []rules.Requirement{{Fact: "rutherford_class"}},
		Message:  "Rutherford class not documented.",
	})
	env := newTestEnv(t, catalog)
	ctx := context.Background()
	caseID := uuid.New()

	// No facts: one active prompt with the rule's severity.
	summary, err := env.engine.Evaluate(ctx, caseID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(summary.Violations) != 1 || len(summary.PromptsCreated) != 1 {
		t.Fatalf("expected one violation and one created prompt, got %+v", summary)
	}
	active, _ := env.engine.GetActivePrompts(ctx, caseID)
	if len(active) != 1 || active[0].Severity != rules.SeverityBlock {
		t.Fatalf("expected one active block prompt, got %v", active)
	}

	// Documenting the fact resolves the prompt on re-evaluation.
	if _, err := env.factsSvc.AddFact(ctx, caseID, "rutherford_class", 4, 1.0, facts.SourceManual, nil); err != nil {
		t.Fatal(err)
	}
	summary, err = env.engine.Evaluate(ctx, caseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.PromptsResolved) != 1 || len(summary.Violations) != 0 {
		t.Fatalf("expected one resolution and no violations, got %+v", summary)
	}
	resolved := env.promptRepo.prompts[summary.PromptsResolved[0]]
	if resolved.Status != prompts.StatusResolved || *resolved.ResolutionType != prompts.ResolutionFactAdded {
		t.Errorf("unexpected resolved state: %+v", resolved)
	}
	active, _ = env.engine.GetActivePrompts(ctx, caseID)
	if len(active) != 0 {
		t.Errorf("expected zero active prompts, got %d", len(active))
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	env := newTestEnv(t, rules.Builtin())
	ctx := context.Background()
	caseID := uuid.New()

	env.factsSvc.AddFact(ctx, caseID, "pad_symptom_class", "claudication", 1.0, facts.SourceManual, nil)

	first, err := env.engine.Evaluate(ctx, caseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.PromptsCreated) == 0 {
		t.Fatal("expected prompts on first pass")
	}

	second, err := env.engine.Evaluate(ctx, caseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(second.PromptsCreated) != 0 || len(second.PromptsResolved) != 0 || len(second.PromptsExpired) != 0 {
		t.Errorf("second pass mutated prompt state: %+v", second)
	}
}

func TestEvaluate_DoesNotResetSnoozes(t *testing.T) {
	env := newTestEnv(t, rules.Builtin())
	ctx := context.Background()
	caseID := uuid.New()

	env.engine.Evaluate(ctx, caseID)
	live, _ := env.promptsSvc.ListLive(ctx, caseID)
	if len(live) == 0 {
		t.Fatal("expected live prompts")
	}
	wake := time.Now().UTC().Add(time.Hour)
	if err := env.promptsSvc.Snooze(ctx, live[0].ID, wake); err != nil {
		t.Fatal(err)
	}

	if _, err := env.engine.Evaluate(ctx, caseID); err != nil {
		t.Fatal(err)
	}
	p := env.promptRepo.prompts[live[0].ID]
	if p.Status != prompts.StatusSnoozed || p.SnoozedUntil == nil || !p.SnoozedUntil.Equal(wake) {
		t.Errorf("re-evaluation disturbed a snoozed prompt: %+v", p)
	}
}

func TestEvaluate_ResolvedPromptNeverReopens(t *testing.T) {
	catalog := singleRuleCatalog(t, rules.Rule{
		ID:       "LATERALITY_REQUIRED",
		Severity: rules.SeverityBlock,
		Requires: []rules.Requirement{{Fact: "laterality"}},
		Message:  "Laterality not documented.",
	})
	env := newTestEnv(t, catalog)
	ctx := context.Background()
	caseID := uuid.New()

	summary, _ := env.engine.Evaluate(ctx, caseID)
	firstPrompt := summary.PromptsCreated[0]

	f, _ := env.factsSvc.AddFact(ctx, caseID, "laterality", "left", 1.0, facts.SourceManual, nil)
	env.engine.Evaluate(ctx, caseID)

	// Re-evaluating with still-satisfied facts leaves the resolved prompt alone.
	summary, _ = env.engine.Evaluate(ctx, caseID)
	if len(summary.PromptsCreated) != 0 {
		t.Fatal("resolved prompt must not reopen while facts stay satisfied")
	}

	// Contradicting facts arriving later mint a brand-new prompt. The
	// replacement carries a nil value, which requirement checks treat as
	// absent documentation.
	replacement, _ := env.factsSvc.AddFact(ctx, caseID, "laterality", nil, 1.0, facts.SourceManual, nil)
	if err := env.factsSvc.SupersedeFact(ctx, f.ID, replacement.ID); err != nil {
		t.Fatal(err)
	}
	summary, err := env.engine.Evaluate(ctx, caseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.PromptsCreated) != 1 {
		t.Fatalf("expected a new prompt after re-violation, got %+v", summary)
	}
	if summary.PromptsCreated[0] == firstPrompt {
		t.Error("expected a new prompt id, not the terminal one reopened")
	}
	if env.promptRepo.prompts[firstPrompt].Status != prompts.StatusResolved {
		t.Error("original prompt status changed")
	}
}

func TestEvaluate_ExpiresInapplicableRulePrompts(t *testing.T) {
	env := newTestEnv(t, rules.Builtin())
	ctx := context.Background()
	caseID := uuid.New()

	// Claudication makes PAD_003 applicable and violated.
	env.factsSvc.AddFact(ctx, caseID, "pad_symptom_class", "claudication", 1.0, facts.SourceManual, nil)
	env.engine.Evaluate(ctx, caseID)
	abiPrompt, _ := env.promptsSvc.GetLive(ctx, caseID, "PAD_003_ABI_FOR_CLAUDICATION")
	if abiPrompt == nil {
		t.Fatal("expected live prompt for PAD_003")
	}

	// Reclassification to rest pain makes the rule inapplicable.
	env.factsSvc.AddFact(ctx, caseID, "pad_symptom_class", "rest_pain", 1.0, facts.SourceManual, nil)
	summary, err := env.engine.Evaluate(ctx, caseID)
	if err != nil {
		t.Fatal(err)
	}
	expired := false
	for _, id := range summary.PromptsExpired {
		if id == abiPrompt.ID {
			expired = true
		}
	}
	if !expired {
		t.Fatalf("expected PAD_003 prompt to expire, got %+v", summary)
	}
	p := env.promptRepo.prompts[abiPrompt.ID]
	if p.Status != prompts.StatusExpired || *p.ResolutionType != prompts.ResolutionAutoExpired {
		t.Errorf("unexpected expired state: %+v", p)
	}
}

func TestEvaluate_UnevaluableRuleSkippedWithoutChurn(t *testing.T) {
	catalog, err := rules.NewCatalog([]rules.Rule{
		{
			ID:       "ABI_SEVERITY",
			Severity: rules.SeverityWarn,
			AppliesWhen: &rules.Condition{
				Lt: &rules.Threshold{Fact: "abi_value", Value: 0.4},
			},
			Requires: []rules.Requirement{{Fact: "wound_present"}},
			Message:  "Document wound status for severe ischemia.",
		},
		{
			ID:       "LATERALITY_REQUIRED",
			Severity: rules.SeverityBlock,
			Requires: []rules.Requirement{{Fact: "laterality"}},
			Message:  "Laterality not documented.",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, catalog)
	ctx := context.Background()
	caseID := uuid.New()

	// Numeric abi makes the conditional rule applicable and violated.
	env.factsSvc.AddFact(ctx, caseID, "abi_value", 0.3, 1.0, facts.SourceManual, nil)
	env.engine.Evaluate(ctx, caseID)
	abiPrompt, _ := env.promptsSvc.GetLive(ctx, caseID, "ABI_SEVERITY")
	if abiPrompt == nil {
		t.Fatal("expected live prompt for ABI_SEVERITY")
	}

	// A malformed replacement value makes the condition unevaluable; the
	// rule is skipped and its prompt stays untouched while the healthy
	// rule keeps evaluating.
	env.factsSvc.AddFact(ctx, caseID, "abi_value", "unreadable", 1.0, facts.SourceManual, nil)
	summary, err := env.engine.Evaluate(ctx, caseID)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range summary.PromptsExpired {
		if id == abiPrompt.ID {
			t.Fatal("unevaluable rule's prompt must not expire")
		}
	}
	if env.promptRepo.prompts[abiPrompt.ID].Status != prompts.StatusActive {
		t.Error("prompt state churned for a skipped rule")
	}
	if live, _ := env.promptsSvc.GetLive(ctx, caseID, "LATERALITY_REQUIRED"); live == nil {
		t.Error("unrelated rule stopped evaluating")
	}
}

// Random operation sequences must never leave two live prompts for the same
// (case, rule) pair.
func TestLivePromptInvariantUnderRandomOps(t *testing.T) {
	env := newTestEnv(t, rules.Builtin())
	ctx := context.Background()
	caseID := uuid.New()
	rng := rand.New(rand.NewSource(42))

	factTypes := []string{"pad_symptom_class", "laterality", "abi_value", "target_vessel", "target_territory"}
	values := []interface{}{"claudication", "left", 0.55, "SFA", "carotid", nil}

	checkInvariant := func(step int) {
		counts := map[string]int{}
		for _, p := range env.promptRepo.prompts {
			if p.CaseID == caseID && p.Status.Live() {
				counts[p.RuleID]++
			}
		}
		for ruleID, n := range counts {
			if n > 1 {
				t.Fatalf("step %d: %d live prompts for rule %s", step, n, ruleID)
			}
		}
	}

	var inserted []*facts.Fact
	for step := 0; step < 200; step++ {
		switch rng.Intn(5) {
		case 0, 1:
			ft := factTypes[rng.Intn(len(factTypes))]
			v := values[rng.Intn(len(values))]
			f, err := env.factsSvc.AddFact(ctx, caseID, ft, v, 1.0, facts.SourceManual, nil)
			if err == nil {
				inserted = append(inserted, f)
			}
		case 2:
			if len(inserted) >= 2 {
				a := inserted[rng.Intn(len(inserted))]
				b := inserted[rng.Intn(len(inserted))]
				if a.ID != b.ID {
					env.factsSvc.SupersedeFact(ctx, a.ID, b.ID)
				}
			}
		case 3:
			live, _ := env.promptsSvc.ListLive(ctx, caseID)
			if len(live) > 0 {
				p := live[rng.Intn(len(live))]
				if rng.Intn(2) == 0 {
					env.promptsSvc.Snooze(ctx, p.ID, time.Now().Add(time.Hour))
				} else {
					env.promptsSvc.Dismiss(ctx, p.ID, prompts.ResolutionManualDismiss, nil, nil)
				}
			}
		case 4:
			if _, err := env.engine.Evaluate(ctx, caseID); err != nil {
				t.Fatalf("step %d: Evaluate: %v", step, err)
			}
		}
		checkInvariant(step)
	}
}

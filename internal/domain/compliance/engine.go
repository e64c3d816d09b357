package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scc/shadow-coder/internal/domain/facts"
	"github.com/scc/shadow-coder/internal/domain/prompts"
	"github.com/scc/shadow-coder/internal/domain/rules"
	"github.com/scc/shadow-coder/internal/platform/caselock"
	"github.com/scc/shadow-coder/internal/platform/db"
)

// Violation is one rule whose requirements the current facts do not meet.
type Violation struct {
	RuleID       string         `json:"rule_id"`
	Severity     rules.Severity `json:"severity"`
	Message      string         `json:"message"`
	MissingFacts []string       `json:"missing_facts"`
}

// Summary reports the outcome of one evaluation pass.
type Summary struct {
	CaseID          uuid.UUID   `json:"case_id"`
	RulesEvaluated  int         `json:"rules_evaluated"`
	Violations      []Violation `json:"violations"`
	Passed          []string    `json:"passed"`
	PromptsCreated  []uuid.UUID `json:"prompts_created"`
	PromptsResolved []uuid.UUID `json:"prompts_resolved"`
	PromptsExpired  []uuid.UUID `json:"prompts_expired"`
}

// Engine is the reconciliation loop: given a case, it derives the compliance
// state from the current fact map and drives prompt lifecycle changes to
// match it. Evaluation is idempotent and serialized per case.
type Engine struct {
	facts   *facts.Service
	prompts *prompts.Service
	catalog *rules.Catalog
	locks   *caselock.Registry
	tx      db.TxRunner
	log     zerolog.Logger
}

func NewEngine(factsSvc *facts.Service, promptsSvc *prompts.Service, catalog *rules.Catalog, locks *caselock.Registry, tx db.TxRunner, log zerolog.Logger) *Engine {
	return &Engine{
		facts:   factsSvc,
		prompts: promptsSvc,
		catalog: catalog,
		locks:   locks,
		tx:      tx,
		log:     log,
	}
}

// Evaluate runs one reconciliation pass for a case: create prompts for new
// violations, resolve prompts whose rules now pass, and expire prompts whose
// rules no longer apply. Missing facts are normal output, never an error;
// only storage failures propagate, and all prompt mutations for the pass
// apply atomically.
func (e *Engine) Evaluate(ctx context.Context, caseID uuid.UUID) (*Summary, error) {
	var summary *Summary
	err := e.locks.Do(caseID.String(), func() error {
		var err error
		summary, err = e.evaluateLocked(ctx, caseID)
		return err
	})
	return summary, err
}

func (e *Engine) evaluateLocked(ctx context.Context, caseID uuid.UUID) (*Summary, error) {
	values, err := e.facts.GetFactValues(ctx, caseID)
	if err != nil {
		return nil, err
	}

	applicable, skipped := e.catalog.ApplicableRules(values)
	for _, ruleID := range skipped {
		e.log.Warn().Str("case_id", caseID.String()).Str("rule_id", ruleID).
			Msg("rule condition unevaluable for current fact shapes, skipping")
	}
	// Skipped rules are excluded from the pass entirely: their live prompts
	// are neither resolved nor expired, so one malformed fact cannot churn
	// unrelated prompt state.
	skippedSet := make(map[string]bool, len(skipped))
	for _, id := range skipped {
		skippedSet[id] = true
	}

	live, err := e.prompts.ListLive(ctx, caseID)
	if err != nil {
		return nil, err
	}
	liveByRule := make(map[string]*prompts.Prompt, len(live))
	for _, p := range live {
		liveByRule[p.RuleID] = p
	}

	summary := &Summary{
		CaseID:          caseID,
		RulesEvaluated:  len(applicable),
		Violations:      []Violation{},
		Passed:          []string{},
		PromptsCreated:  []uuid.UUID{},
		PromptsResolved: []uuid.UUID{},
		PromptsExpired:  []uuid.UUID{},
	}

	applicableSet := make(map[string]bool, len(applicable))
	var violations []rules.Rule
	missingByRule := make(map[string][]string)
	for _, r := range applicable {
		applicableSet[r.ID] = true
		if missing := r.Missing(values); len(missing) > 0 {
			violations = append(violations, r)
			missingByRule[r.ID] = missing
			summary.Violations = append(summary.Violations, Violation{
				RuleID:       r.ID,
				Severity:     r.Severity,
				Message:      r.Message,
				MissingFacts: missing,
			})
		} else {
			summary.Passed = append(summary.Passed, r.ID)
		}
	}

	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		// Violations without an outstanding prompt get a new active one.
		// Existing live prompts are left untouched so re-evaluation never
		// resets snooze timers.
		for _, r := range violations {
			if liveByRule[r.ID] != nil {
				continue
			}
			details := "Missing documentation: " + strings.Join(missingByRule[r.ID], ", ")
			ref := r.GuidelineRef
			var refPtr *string
			if ref != "" {
				refPtr = &ref
			}
			p, err := e.prompts.Create(ctx, caseID, r.ID, r.Severity, r.Message, &details, refPtr)
			if errors.Is(err, prompts.ErrDuplicateActivePrompt) {
				// A race outside the case lock would be a bug; keep the
				// existing prompt and keep going.
				e.log.Warn().Str("case_id", caseID.String()).Str("rule_id", r.ID).
					Msg("live prompt already present during create")
				continue
			}
			if err != nil {
				return fmt.Errorf("create prompt for rule %s: %w", r.ID, err)
			}
			summary.PromptsCreated = append(summary.PromptsCreated, p.ID)
		}

		// Passing rules release their outstanding prompt.
		for _, ruleID := range summary.Passed {
			p := liveByRule[ruleID]
			if p == nil {
				continue
			}
			err := e.prompts.Resolve(ctx, p.ID, prompts.ResolutionFactAdded, nil, nil)
			if errors.Is(err, prompts.ErrAlreadyTerminal) {
				continue
			}
			if err != nil {
				return fmt.Errorf("resolve prompt %s: %w", p.ID, err)
			}
			summary.PromptsResolved = append(summary.PromptsResolved, p.ID)
		}

		// Prompts whose rule no longer applies expire.
		for ruleID, p := range liveByRule {
			if applicableSet[ruleID] || skippedSet[ruleID] {
				continue
			}
			err := e.prompts.Expire(ctx, p.ID)
			if errors.Is(err, prompts.ErrAlreadyTerminal) {
				continue
			}
			if err != nil {
				return fmt.Errorf("expire prompt %s: %w", p.ID, err)
			}
			summary.PromptsExpired = append(summary.PromptsExpired, p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return summary, nil
}

// GetActivePrompts returns the case's active prompts in presentation order.
func (e *Engine) GetActivePrompts(ctx context.Context, caseID uuid.UUID) ([]*prompts.Prompt, error) {
	return e.prompts.GetActive(ctx, caseID)
}

// GetPromptSummary counts the case's outstanding prompts by severity.
func (e *Engine) GetPromptSummary(ctx context.Context, caseID uuid.UUID) (prompts.SeveritySummary, error) {
	return e.prompts.Summary(ctx, caseID)
}

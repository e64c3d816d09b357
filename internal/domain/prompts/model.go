package prompts

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/scc/shadow-coder/internal/domain/rules"
)

var (
	// ErrInvalidInput marks a malformed transition request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a referenced prompt id that does not exist.
	ErrNotFound = errors.New("prompt not found")
	// ErrAlreadyTerminal marks a transition attempted on a resolved,
	// dismissed or expired prompt. Benign for the automatic evaluation
	// loop, which treats it as "no-op, continue".
	ErrAlreadyTerminal = errors.New("prompt already terminal")
	// ErrDuplicateActivePrompt marks a create attempt while a live prompt
	// already exists for the same case and rule. The pre-existing prompt
	// is returned alongside it.
	ErrDuplicateActivePrompt = errors.New("duplicate active prompt")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSnoozed   Status = "snoozed"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusDismissed || s == StatusExpired
}

// Live reports whether the prompt still counts against the one-per-rule
// invariant.
func (s Status) Live() bool {
	return s == StatusActive || s == StatusSnoozed
}

type ResolutionType string

const (
	ResolutionFactAdded     ResolutionType = "fact_added"
	ResolutionManualDismiss ResolutionType = "manual_dismiss"
	ResolutionAttestation   ResolutionType = "attestation"
	ResolutionOrderPlaced   ResolutionType = "order_placed"
	ResolutionAutoExpired   ResolutionType = "auto_expired"
)

// DismissalType reports whether rt is a valid user-override resolution.
func (rt ResolutionType) DismissalType() bool {
	return rt == ResolutionManualDismiss || rt == ResolutionAttestation || rt == ResolutionOrderPlaced
}

// Prompt is one actionable compliance finding for one rule on one case.
// At most one live (active or snoozed) prompt exists per (case_id, rule_id);
// a re-violation after a terminal outcome mints a new prompt rather than
// reopening the old one.
type Prompt struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	CaseID         uuid.UUID       `db:"case_id" json:"case_id"`
	RuleID         string          `db:"rule_id" json:"rule_id"`
	Severity       rules.Severity  `db:"severity" json:"severity"`
	Status         Status          `db:"status" json:"status"`
	ResolutionType *ResolutionType `db:"resolution_type" json:"resolution_type,omitempty"`
	Message        string          `db:"message" json:"message"`
	Details        *string         `db:"details" json:"details,omitempty"`
	GuidelineRef   *string         `db:"guideline_ref" json:"guideline_ref,omitempty"`
	SnoozedUntil   *time.Time      `db:"snoozed_until" json:"snoozed_until,omitempty"`
	SnoozeCount    int             `db:"snooze_count" json:"snooze_count"`
	ResolvedBy     *string         `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolutionNote *string         `db:"resolution_note" json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// SeveritySummary counts live prompts per severity tier.
type SeveritySummary struct {
	Block int `json:"block"`
	Warn  int `json:"warn"`
	Info  int `json:"info"`
	Total int `json:"total"`
}

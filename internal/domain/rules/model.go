package rules

import "fmt"

type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
)

// Rank orders severities for prompt sorting: block first, info last.
func (s Severity) Rank() int {
	switch s {
	case SeverityBlock:
		return 1
	case SeverityWarn:
		return 2
	case SeverityInfo:
		return 3
	}
	return 4
}

func (s Severity) Valid() bool {
	return s == SeverityBlock || s == SeverityWarn || s == SeverityInfo
}

// Rule is a declarative coding-compliance check over a case's current fact
// values. Rules are configuration: loaded once at startup, never mutated.
type Rule struct {
	ID           string        `yaml:"id" json:"id"`
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Severity     Severity      `yaml:"severity" json:"severity"`
	AppliesWhen  *Condition    `yaml:"applies_when,omitempty" json:"applies_when,omitempty"`
	Requires     []Requirement `yaml:"requires" json:"requires"`
	Alternatives []string      `yaml:"alternatives,omitempty" json:"alternatives,omitempty"`
	Message      string        `yaml:"message" json:"message"`
	GuidelineRef string        `yaml:"guideline_ref,omitempty" json:"guideline_ref,omitempty"`
}

// Requirement names a fact type that must be present for the rule to pass,
// optionally constrained in value.
type Requirement struct {
	Fact string     `yaml:"fact" json:"fact"`
	When *Condition `yaml:"when,omitempty" json:"when,omitempty"`
}

// Applies reports whether the rule's applies_when condition holds for the
// given fact values. Rules without a condition are unconditional. An error
// means the condition could not be evaluated against the value shapes present;
// callers skip the rule for the pass rather than failing.
func (r Rule) Applies(values map[string]interface{}) (bool, error) {
	if r.AppliesWhen == nil {
		return true, nil
	}
	return r.AppliesWhen.Eval(values)
}

// Missing returns the fact types the rule still requires given the current
// values. An empty result means the rule passes. If required facts are
// missing but any alternative fact is present, the alternative satisfies the
// rule.
func (r Rule) Missing(values map[string]interface{}) []string {
	var missing []string
	for _, req := range r.Requires {
		v, ok := values[req.Fact]
		if !ok || v == nil {
			missing = append(missing, req.Fact)
			continue
		}
		if req.When != nil {
			ok, err := req.When.Eval(values)
			if err != nil || !ok {
				missing = append(missing, req.Fact)
			}
		}
	}
	if len(missing) > 0 {
		for _, alt := range r.Alternatives {
			if v, ok := values[alt]; ok && v != nil {
				return nil
			}
		}
	}
	return missing
}

func (r Rule) validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("rule %s: invalid severity %q", r.ID, r.Severity)
	}
	if r.Message == "" {
		return fmt.Errorf("rule %s: message is required", r.ID)
	}
	if len(r.Requires) == 0 {
		return fmt.Errorf("rule %s: at least one requirement is needed", r.ID)
	}
	for _, req := range r.Requires {
		if req.Fact == "" {
			return fmt.Errorf("rule %s: requirement with empty fact", r.ID)
		}
		if req.When != nil {
			if err := req.When.validate(); err != nil {
				return fmt.Errorf("rule %s: %w", r.ID, err)
			}
		}
	}
	if r.AppliesWhen != nil {
		if err := r.AppliesWhen.validate(); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	return nil
}

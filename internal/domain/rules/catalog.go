package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the fixed set of compliance rules for the process. It is
// immutable after construction and safe for concurrent reads.
type Catalog struct {
	rules []Rule
	byID  map[string]Rule
}

func NewCatalog(rules []Rule) (*Catalog, error) {
	byID := make(map[string]Rule, len(rules))
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %s", r.ID)
		}
		byID[r.ID] = r
	}
	return &Catalog{rules: rules, byID: byID}, nil
}

// Load reads a YAML rule catalog from disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule catalog: %w", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rule catalog: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("rule catalog %s contains no rules", path)
	}
	return NewCatalog(doc.Rules)
}

func (c *Catalog) Get(ruleID string) (Rule, bool) {
	r, ok := c.byID[ruleID]
	return r, ok
}

func (c *Catalog) All() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func (c *Catalog) Len() int { return len(c.rules) }

// ApplicableRules filters the catalog by each rule's applies_when condition
// against the current fact values. Unconditional rules always apply. Rules
// whose condition cannot be evaluated are skipped for the pass and reported
// so the caller can log them.
func (c *Catalog) ApplicableRules(values map[string]interface{}) (applicable []Rule, skipped []string) {
	for _, r := range c.rules {
		ok, err := r.Applies(values)
		if err != nil {
			skipped = append(skipped, r.ID)
			continue
		}
		if ok {
			applicable = append(applicable, r)
		}
	}
	return applicable, skipped
}

package rules

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Condition is a predicate over a case's current fact values, expressed as a
// closed set of variants so catalogs stay statically checkable. Exactly one
// variant may be set per node. Missing fact types never error: equality and
// threshold checks on an absent fact evaluate to false.
type Condition struct {
	Eq     *Match      `yaml:"eq,omitempty" json:"eq,omitempty"`
	Ne     *Match      `yaml:"ne,omitempty" json:"ne,omitempty"`
	Exists string      `yaml:"exists,omitempty" json:"exists,omitempty"`
	Gt     *Threshold  `yaml:"gt,omitempty" json:"gt,omitempty"`
	Gte    *Threshold  `yaml:"gte,omitempty" json:"gte,omitempty"`
	Lt     *Threshold  `yaml:"lt,omitempty" json:"lt,omitempty"`
	Lte    *Threshold  `yaml:"lte,omitempty" json:"lte,omitempty"`
	In     *Membership `yaml:"in,omitempty" json:"in,omitempty"`
	All    []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	Any    []Condition `yaml:"any,omitempty" json:"any,omitempty"`
}

// Match compares a fact value against a literal.
type Match struct {
	Fact  string      `yaml:"fact" json:"fact"`
	Value interface{} `yaml:"value" json:"value"`
}

// Threshold compares a numeric fact value against a bound.
type Threshold struct {
	Fact  string  `yaml:"fact" json:"fact"`
	Value float64 `yaml:"value" json:"value"`
}

// Membership checks a fact value against a set of allowed literals.
type Membership struct {
	Fact   string        `yaml:"fact" json:"fact"`
	Values []interface{} `yaml:"values" json:"values"`
}

// Eval evaluates the condition against the current fact values. It is total
// and side-effect-free. An error means a value had a shape the condition
// cannot interpret (e.g. a string where a number is required); callers treat
// the owning rule as unevaluable for the pass.
func (c *Condition) Eval(values map[string]interface{}) (bool, error) {
	switch {
	case c.Eq != nil:
		v, ok := values[c.Eq.Fact]
		if !ok || v == nil {
			return false, nil
		}
		return literalEqual(v, c.Eq.Value), nil
	case c.Ne != nil:
		v, ok := values[c.Ne.Fact]
		if !ok || v == nil {
			return false, nil
		}
		return !literalEqual(v, c.Ne.Value), nil
	case c.Exists != "":
		v, ok := values[c.Exists]
		return ok && v != nil, nil
	case c.Gt != nil:
		return compareNumeric(values, c.Gt, func(a, b float64) bool { return a > b })
	case c.Gte != nil:
		return compareNumeric(values, c.Gte, func(a, b float64) bool { return a >= b })
	case c.Lt != nil:
		return compareNumeric(values, c.Lt, func(a, b float64) bool { return a < b })
	case c.Lte != nil:
		return compareNumeric(values, c.Lte, func(a, b float64) bool { return a <= b })
	case c.In != nil:
		v, ok := values[c.In.Fact]
		if !ok || v == nil {
			return false, nil
		}
		for _, allowed := range c.In.Values {
			if literalEqual(v, allowed) {
				return true, nil
			}
		}
		return false, nil
	case len(c.All) > 0:
		for i := range c.All {
			ok, err := c.All[i].Eval(values)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case len(c.Any) > 0:
		for i := range c.Any {
			ok, err := c.Any[i].Eval(values)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("empty condition")
}

func (c *Condition) validate() error {
	set := 0
	if c.Eq != nil {
		set++
	}
	if c.Ne != nil {
		set++
	}
	if c.Exists != "" {
		set++
	}
	if c.Gt != nil {
		set++
	}
	if c.Gte != nil {
		set++
	}
	if c.Lt != nil {
		set++
	}
	if c.Lte != nil {
		set++
	}
	if c.In != nil {
		set++
	}
	if len(c.All) > 0 {
		set++
	}
	if len(c.Any) > 0 {
		set++
	}
	if set != 1 {
		return fmt.Errorf("condition must set exactly one variant, got %d", set)
	}
	for i := range c.All {
		if err := c.All[i].validate(); err != nil {
			return err
		}
	}
	for i := range c.Any {
		if err := c.Any[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

func compareNumeric(values map[string]interface{}, t *Threshold, cmp func(a, b float64) bool) (bool, error) {
	v, ok := values[t.Fact]
	if !ok || v == nil {
		return false, nil
	}
	n, err := asFloat(v)
	if err != nil {
		return false, fmt.Errorf("fact %s: %w", t.Fact, err)
	}
	return cmp(n, t.Value), nil
}

func asFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
}

// literalEqual compares a fact value against a catalog literal. Numbers
// compare numerically regardless of concrete type since fact values arrive
// from JSON and catalog literals from YAML.
func literalEqual(a, b interface{}) bool {
	if af, err := asFloat(a); err == nil {
		if bf, err := asFloat(b); err == nil {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

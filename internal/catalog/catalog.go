// Package catalog holds versioned detection rule definitions. A Catalog is
// an immutable snapshot: reloading rules builds a new catalog rather than
// mutating shared state, so in-flight evaluations keep a consistent view.
package catalog

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrRuleExists   = errors.New("rule already exists")
)

// Catalog is an immutable set of rule definitions keyed by rule ID.
type Catalog struct {
	rules []*RuleDefinition
	byID  map[string]*RuleDefinition
}

// New builds a catalog from rule definitions, validating each one.
// allowedVariables bounds explanation template placeholders.
func New(rules []*RuleDefinition, allowedVariables []string) (*Catalog, error) {
	c := &Catalog{
		rules: make([]*RuleDefinition, 0, len(rules)),
		byID:  make(map[string]*RuleDefinition, len(rules)),
	}
	for _, rule := range rules {
		if err := rule.Validate(allowedVariables); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.RuleID, err)
		}
		if _, exists := c.byID[rule.RuleID]; exists {
			return nil, fmt.Errorf("rule %s: %w", rule.RuleID, ErrRuleExists)
		}
		c.rules = append(c.rules, rule)
		c.byID[rule.RuleID] = rule
	}
	return c, nil
}

// Rules returns all rule definitions in insertion order.
func (c *Catalog) Rules() []*RuleDefinition {
	return c.rules
}

// Get returns the rule with the given ID.
func (c *Catalog) Get(ruleID string) (*RuleDefinition, error) {
	rule, ok := c.byID[ruleID]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return rule, nil
}

// Len returns the number of rules in the catalog.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// Active returns all enabled rules that trigger on the given event type.
func (c *Catalog) Active(eventType string) []*RuleDefinition {
	var matched []*RuleDefinition
	for _, rule := range c.rules {
		if rule.Enabled && rule.TriggersOn(eventType) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// MaxDedupeWindow returns the largest dedupe window configured across all
// rules; the suppression store uses it to bound its sweep horizon.
func (c *Catalog) MaxDedupeWindow() time.Duration {
	var max time.Duration
	for _, rule := range c.rules {
		if w := rule.DedupeWindow(); w > max {
			max = w
		}
	}
	return max
}

// WithRule returns a new catalog snapshot with the rule added.
func (c *Catalog) WithRule(rule *RuleDefinition, allowedVariables []string) (*Catalog, error) {
	if _, exists := c.byID[rule.RuleID]; exists {
		return nil, fmt.Errorf("rule %s: %w", rule.RuleID, ErrRuleExists)
	}
	return New(append(append([]*RuleDefinition{}, c.rules...), rule), allowedVariables)
}

// WithRuleEnabled returns a new catalog snapshot with the rule's enabled
// flag changed.
func (c *Catalog) WithRuleEnabled(ruleID string, enabled bool) (*Catalog, error) {
	existing, ok := c.byID[ruleID]
	if !ok {
		return nil, ErrRuleNotFound
	}
	rules := make([]*RuleDefinition, len(c.rules))
	for i, rule := range c.rules {
		if rule == existing {
			copied := *rule
			copied.Enabled = enabled
			rules[i] = &copied
		} else {
			rules[i] = rule
		}
	}
	return New(rules, nil)
}

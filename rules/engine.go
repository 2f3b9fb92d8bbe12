// Package rules evaluates classification rules against a session's metrics.
package rules

import (
	"fmt"
	"math"

	"mabletask/tracker/models"
)

// DefaultLegacyThreshold applies when no rules and no threshold are configured.
const DefaultLegacyThreshold = 300 // seconds of active time

type compiledRule struct {
	rule  models.Rule
	get   Accessor
	match func(Value) bool
}

func (c compiledRule) eval(m *models.SessionMetrics) bool {
	if c.get == nil || c.match == nil {
		return false
	}
	v, ok := c.get(m)
	if !ok {
		return false
	}
	return c.match(v)
}

// RuleSet is a list of rules bound to registry accessors.
type RuleSet struct {
	rules []compiledRule
}

// Compile binds rules to accessors from reg. Rules that reference an unknown
// metric or type still take part in evaluation and never match; they are
// reported in the returned problems.
func Compile(reg *Registry, rules []models.Rule) (RuleSet, []error) {
	var problems []error
	set := RuleSet{rules: make([]compiledRule, 0, len(rules))}

	for _, r := range rules {
		c := compiledRule{rule: r}

		if fn, ok := reg.Lookup(r.MetricPath); ok {
			c.get = fn
		} else {
			problems = append(problems, fmt.Errorf("rule %q: unknown metric %q", r.ID, r.MetricPath))
		}

		if match, err := comparator(r); err == nil {
			c.match = match
		} else {
			problems = append(problems, fmt.Errorf("rule %q: %w", r.ID, err))
		}

		set.rules = append(set.rules, c)
	}

	return set, problems
}

func (s RuleSet) Len() int {
	return len(s.rules)
}

// Match reports whether every rule matches. An empty set never matches.
func (s RuleSet) Match(m *models.SessionMetrics) bool {
	if len(s.rules) == 0 {
		return false
	}
	for _, c := range s.rules {
		if !c.eval(m) {
			return false
		}
	}
	return true
}

func comparator(r models.Rule) (func(Value) bool, error) {
	switch r.Type {
	case models.RuleRange:
		lo, hi := math.Inf(-1), math.Inf(1)
		if r.Min != nil {
			lo = *r.Min
		}
		if r.Max != nil {
			hi = *r.Max
		}
		return func(v Value) bool {
			f, ok := v.Float()
			return ok && f >= lo && f <= hi
		}, nil

	case models.RuleThreshold, models.RuleTime:
		limit := configNumber(r.Value)
		return func(v Value) bool {
			f, ok := v.Float()
			return ok && f >= limit
		}, nil

	case models.RuleSelect, models.RuleCategorical:
		want := configText(r.Value)
		return func(v Value) bool {
			return v.Text() == want
		}, nil

	case models.RuleBoolean:
		want := configBool(r.Value)
		return func(v Value) bool {
			return v.Truthy() == want
		}, nil

	default:
		return nil, fmt.Errorf("unknown rule type %q", r.Type)
	}
}

// Engine applies a compiled rule set, falling back to the legacy
// active-time threshold when no rules are configured.
type Engine struct {
	set             RuleSet
	legacyThreshold int
}

// NewEngine compiles settings against reg.
func NewEngine(reg *Registry, settings models.Settings) (*Engine, []error) {
	set, problems := Compile(reg, settings.GoldRules)

	threshold := DefaultLegacyThreshold
	if settings.GoldThresholdMinutes > 0 {
		threshold = int(math.Round(settings.GoldThresholdMinutes * 60))
	}

	return &Engine{set: set, legacyThreshold: threshold}, problems
}

// LegacyThreshold returns the active-seconds threshold used without rules.
func (e *Engine) LegacyThreshold() int {
	return e.legacyThreshold
}

// RuleCount returns the number of configured rules.
func (e *Engine) RuleCount() int {
	return e.set.Len()
}

// Evaluate reports whether the session qualifies.
func (e *Engine) Evaluate(m *models.SessionMetrics) bool {
	if e.set.Len() == 0 {
		return m.Internal.ActiveSeconds >= e.legacyThreshold
	}
	return e.set.Match(m)
}

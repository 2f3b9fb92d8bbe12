package models

import (
	"encoding/json"
)

// RuleType selects the comparison a rule applies.
type RuleType string

const (
	RuleRange     RuleType = "range"
	RuleThreshold RuleType = "threshold"
	RuleTime      RuleType = "time"
	RuleSelect    RuleType = "select"
	RuleBoolean   RuleType = "boolean"
)

// RuleCategorical is accepted as a synonym of RuleSelect.
const RuleCategorical RuleType = "categorical"

// Rule is one classification condition over a registered metric.
// Value holds a number, string or bool depending on Type; Min and Max are
// used by range rules, a nil bound is unbounded.
type Rule struct {
	ID         string   `json:"id"         yaml:"id"`
	MetricPath string   `json:"metricPath" yaml:"metric_path"`
	Label      string   `json:"label"      yaml:"label"`
	Type       RuleType `json:"type"       yaml:"type"`
	Value      any      `json:"value,omitempty" yaml:"value,omitempty"`
	Min        *float64 `json:"min,omitempty"   yaml:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"   yaml:"max,omitempty"`
}

// UnmarshalJSON accepts both metricPath and metric_path spellings.
func (r *Rule) UnmarshalJSON(data []byte) error {
	type plain Rule
	var aux struct {
		plain
		SnakePath string `json:"metric_path"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Rule(aux.plain)
	if r.MetricPath == "" {
		r.MetricPath = aux.SnakePath
	}
	return nil
}

// Settings is the classification configuration supplied by the application's
// settings collaborator.
type Settings struct {
	// GoldThresholdMinutes drives the legacy rule used when GoldRules is empty.
	GoldThresholdMinutes float64 `json:"goldThreshold"     yaml:"gold_threshold_minutes"`
	GoldRules            []Rule  `json:"goldConfig"        yaml:"gold_config"`
	ExternalCounterID    string  `json:"externalCounterId" yaml:"external_counter_id"`
}

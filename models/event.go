package models

import (
	"encoding/json"
	"time"
)

// Event types written to the analytics event log.
const (
	EventGoalReached = "goal_reached"
)

// AnalyticsEvent represents a single analytics event.
type AnalyticsEvent struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	UserID    string          `json:"userId"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	PagePath  string          `json:"pagePath"`
	Referrer  string          `json:"referrer"`
	EventData json.RawMessage `json:"eventData,omitempty"`
}

// GoalEvent describes a classification goal that fired for a session.
type GoalEvent struct {
	Goal      string
	SessionID string
	UserID    *string
	CounterID string
	PagePath  string
	Referrer  string
	FiredAt   time.Time
}

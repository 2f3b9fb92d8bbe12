package models

import (
	"encoding/json"
	"time"
)

// LogData is the persisted shape of a session snapshot. Sets become plain
// ordered lists and only the essential internal counters are kept.
type LogData struct {
	SessionID  string            `json:"sessionId"`
	UserID     *string           `json:"userId"`
	Behavior   BehavioralLog     `json:"behavior"`
	Ecommerce  EcommerceLog      `json:"ecommerce"`
	Context    ContextMetrics    `json:"context"`
	Temporal   TemporalMetrics   `json:"temporal"`
	Source     SourceMetrics     `json:"source"`
	Calculated CalculatedMetrics `json:"calculated"`
	Internal   InternalLog       `json:"_internal"`
}

type BehavioralLog struct {
	TotalPageviews    int      `json:"total_pageviews"`
	UniquePagesViewed []string `json:"unique_pages_viewed"`
	AvgTimePerPage    float64  `json:"avg_time_per_page"`
	MaxScrollDepth    int      `json:"max_scroll_depth"`
	ClickCount        int      `json:"click_count"`
	SiteSearchUsage   bool     `json:"site_search_usage"`
	FilterUsage       bool     `json:"filter_usage"`
}

type EcommerceLog struct {
	CartAddsCount      int      `json:"cart_adds_count"`
	CartRemovesCount   int      `json:"cart_removes_count"`
	ViewedProductCount int      `json:"viewed_product_count"`
	AvgPriceViewed     float64  `json:"avg_price_viewed"`
	CategoryDiversity  []string `json:"category_diversity"`
	ReviewsRead        bool     `json:"reviews_read"`
	SizeGuideViewed    bool     `json:"size_guide_viewed"`
}

type InternalLog struct {
	ActiveSeconds int      `json:"active_seconds"`
	TotalSeconds  int      `json:"total_seconds"`
	GoalsReached  []string `json:"goals_reached"`
}

// ToLogData converts the live tree into its persisted shape.
func (m *SessionMetrics) ToLogData() LogData {
	goals := append([]string{}, m.Internal.GoalsReached...)
	var userID *string
	if m.UserID != nil {
		id := *m.UserID
		userID = &id
	}

	return LogData{
		SessionID: m.SessionID,
		UserID:    userID,
		Behavior: BehavioralLog{
			TotalPageviews:    m.Behavior.TotalPageviews,
			UniquePagesViewed: m.Behavior.UniquePagesViewed.List(),
			AvgTimePerPage:    m.Behavior.AvgTimePerPage,
			MaxScrollDepth:    m.Behavior.MaxScrollDepth,
			ClickCount:        m.Behavior.ClickCount,
			SiteSearchUsage:   m.Behavior.SiteSearchUsage,
			FilterUsage:       m.Behavior.FilterUsage,
		},
		Ecommerce: EcommerceLog{
			CartAddsCount:      m.Ecommerce.CartAddsCount,
			CartRemovesCount:   m.Ecommerce.CartRemovesCount,
			ViewedProductCount: m.Ecommerce.ViewedProductCount,
			AvgPriceViewed:     m.Ecommerce.AvgPriceViewed,
			CategoryDiversity:  m.Ecommerce.CategoryDiversity.List(),
			ReviewsRead:        m.Ecommerce.ReviewsRead,
			SizeGuideViewed:    m.Ecommerce.SizeGuideViewed,
		},
		Context:    m.Context,
		Temporal:   m.Temporal,
		Source:     m.Source,
		Calculated: m.Calculated,
		Internal: InternalLog{
			ActiveSeconds: m.Internal.ActiveSeconds,
			TotalSeconds:  m.Internal.TotalSeconds,
			GoalsReached:  goals,
		},
	}
}

// SessionRecord is one row of the remote session log, keyed by SessionID.
type SessionRecord struct {
	SessionID string          `json:"session_id"`
	UserID    *string         `json:"user_id"`
	LogData   json.RawMessage `json:"log_data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

package models

import (
	"maps"
	"slices"
	"time"

	"mabletask/tracker/utils"
)

// Device categories. Unknown is used when no user agent is available.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceUnknown = "unknown"
)

// BehavioralMetrics describes how the visitor moves through the site.
type BehavioralMetrics struct {
	TotalPageviews    int               `json:"total_pageviews"`
	UniquePagesViewed *utils.OrderedSet `json:"unique_pages_viewed"`
	AvgTimePerPage    float64           `json:"avg_time_per_page"`
	MaxScrollDepth    int               `json:"max_scroll_depth"`
	ClickCount        int               `json:"click_count"`
	SiteSearchUsage   bool              `json:"site_search_usage"`
	FilterUsage       bool              `json:"filter_usage"`
}

// EcommerceMetrics describes catalogue and cart activity.
type EcommerceMetrics struct {
	CartAddsCount      int               `json:"cart_adds_count"`
	CartRemovesCount   int               `json:"cart_removes_count"`
	ViewedProductCount int               `json:"viewed_product_count"`
	AvgPriceViewed     float64           `json:"avg_price_viewed"`
	CategoryDiversity  *utils.OrderedSet `json:"category_diversity"`
	ReviewsRead        bool              `json:"reviews_read"`
	SizeGuideViewed    bool              `json:"size_guide_viewed"`
}

// ContextMetrics are captured once when the session starts.
type ContextMetrics struct {
	DeviceCategory  string `json:"device_category"`
	OSType          string `json:"os_type"`
	BrowserLanguage string `json:"browser_language"`
	// IsWifi is nil when the client exposed no connection information.
	IsWifi           *bool  `json:"is_wifi"`
	GeoCityTier      string `json:"geo_city_tier"`
	ScreenResolution string `json:"screen_resolution"`
}

type TemporalMetrics struct {
	HourOfDay               int     `json:"hour_of_day"`
	DayOfWeek               int     `json:"day_of_week"`
	IsWorkHours             bool    `json:"is_work_hours"`
	TimeSinceLastVisitHours float64 `json:"time_since_last_visit_hours"`
	SessionStartTS          int64   `json:"session_start_ts"`
}

type SourceMetrics struct {
	TrafficSource  string            `json:"traffic_source"`
	UTM            map[string]string `json:"utm"`
	ReferrerDomain string            `json:"referrer_domain"`
}

type CalculatedMetrics struct {
	CartToDetailRatio float64 `json:"cart_to_detail_ratio"`
	IdleTimeRatio     float64 `json:"idle_time_ratio"`
	// ScrollSpeed is an exponential moving average in pixels per second.
	ScrollSpeed float64 `json:"scroll_speed"`
}

// PageVisit is one entry of the page history. TimeOnPage is only meaningful
// once Completed is set, which happens when the visitor navigates away.
type PageVisit struct {
	Path       string    `json:"path"`
	StartedAt  time.Time `json:"started_at"`
	TimeOnPage float64   `json:"time_on_page"`
	Completed  bool      `json:"completed"`
}

type ScrollSample struct {
	Depth int       `json:"depth"`
	Speed float64   `json:"speed"`
	At    time.Time `json:"ts"`
}

// InternalState is working state used to derive the reported metrics.
type InternalState struct {
	PageHistory   []PageVisit    `json:"page_history"`
	ScrollSamples []ScrollSample `json:"scroll_samples"`
	ProductPrices []float64      `json:"product_prices"`
	LastScrollY   float64        `json:"last_scroll_y"`
	LastScrollAt  time.Time      `json:"last_scroll_ts"`
	SpeedSampled  bool           `json:"speed_sampled"`
	ActiveSeconds int            `json:"active_seconds"`
	TotalSeconds  int            `json:"total_seconds"`
	GoalsReached  []string       `json:"goals_reached"`
}

// HasGoal reports whether goal was already fired this session.
func (s *InternalState) HasGoal(goal string) bool {
	return slices.Contains(s.GoalsReached, goal)
}

// SessionMetrics is the full metrics tree of one tracked session.
type SessionMetrics struct {
	SessionID  string            `json:"sessionId"`
	UserID     *string           `json:"userId"`
	Behavior   BehavioralMetrics `json:"behavior"`
	Ecommerce  EcommerceMetrics  `json:"ecommerce"`
	Context    ContextMetrics    `json:"context"`
	Temporal   TemporalMetrics   `json:"temporal"`
	Source     SourceMetrics     `json:"source"`
	Calculated CalculatedMetrics `json:"calculated"`
	Internal   InternalState     `json:"_internal"`
}

// NewSessionMetrics returns an empty tree for sessionID starting at start.
func NewSessionMetrics(sessionID string, start time.Time) *SessionMetrics {
	return &SessionMetrics{
		SessionID: sessionID,
		Behavior: BehavioralMetrics{
			UniquePagesViewed: utils.NewOrderedSet(),
		},
		Ecommerce: EcommerceMetrics{
			CategoryDiversity: utils.NewOrderedSet(),
		},
		Source: SourceMetrics{
			UTM: map[string]string{},
		},
		Internal: InternalState{
			LastScrollAt: start,
			GoalsReached: []string{},
		},
	}
}

// Clone returns a deep copy safe to hand out while the original keeps mutating.
func (m *SessionMetrics) Clone() *SessionMetrics {
	c := *m
	if m.UserID != nil {
		id := *m.UserID
		c.UserID = &id
	}
	c.Behavior.UniquePagesViewed = m.Behavior.UniquePagesViewed.Clone()
	c.Ecommerce.CategoryDiversity = m.Ecommerce.CategoryDiversity.Clone()
	if m.Context.IsWifi != nil {
		wifi := *m.Context.IsWifi
		c.Context.IsWifi = &wifi
	}
	c.Source.UTM = maps.Clone(m.Source.UTM)
	c.Internal.PageHistory = slices.Clone(m.Internal.PageHistory)
	c.Internal.ScrollSamples = slices.Clone(m.Internal.ScrollSamples)
	c.Internal.ProductPrices = slices.Clone(m.Internal.ProductPrices)
	c.Internal.GoalsReached = slices.Clone(m.Internal.GoalsReached)
	return &c
}

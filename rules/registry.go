package rules

import (
	"sort"

	"mabletask/tracker/models"
)

// Accessor reads one metric from the tree. ok is false when the metric has no
// value for this session, e.g. unknown connectivity.
type Accessor func(m *models.SessionMetrics) (v Value, ok bool)

// Registry maps rule keys to typed accessors. Keys keep the dotted spelling
// used by stored rule configuration.
type Registry struct {
	accessors map[string]Accessor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{accessors: make(map[string]Accessor)}
}

// Register adds or replaces the accessor for key.
func (r *Registry) Register(key string, fn Accessor) {
	r.accessors[key] = fn
}

// Lookup returns the accessor for key.
func (r *Registry) Lookup(key string) (Accessor, bool) {
	fn, ok := r.accessors[key]
	return fn, ok
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.accessors))
	for k := range r.accessors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func num(fn func(m *models.SessionMetrics) float64) Accessor {
	return func(m *models.SessionMetrics) (Value, bool) { return Number(fn(m)), true }
}

func integer(fn func(m *models.SessionMetrics) int) Accessor {
	return func(m *models.SessionMetrics) (Value, bool) { return Int(fn(m)), true }
}

func flag(fn func(m *models.SessionMetrics) bool) Accessor {
	return func(m *models.SessionMetrics) (Value, bool) { return Bool(fn(m)), true }
}

func text(fn func(m *models.SessionMetrics) string) Accessor {
	return func(m *models.SessionMetrics) (Value, bool) { return String(fn(m)), true }
}

// DefaultRegistry returns every metric that rules may reference.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("behavior.total_pageviews", integer(func(m *models.SessionMetrics) int { return m.Behavior.TotalPageviews }))
	r.Register("behavior.unique_pages_count", integer(func(m *models.SessionMetrics) int { return m.Behavior.UniquePagesViewed.Len() }))
	r.Register("behavior.avg_time_per_page", num(func(m *models.SessionMetrics) float64 { return m.Behavior.AvgTimePerPage }))
	r.Register("behavior.max_scroll_depth", integer(func(m *models.SessionMetrics) int { return m.Behavior.MaxScrollDepth }))
	r.Register("behavior.click_count", integer(func(m *models.SessionMetrics) int { return m.Behavior.ClickCount }))
	r.Register("behavior.site_search_usage", flag(func(m *models.SessionMetrics) bool { return m.Behavior.SiteSearchUsage }))
	r.Register("behavior.filter_usage", flag(func(m *models.SessionMetrics) bool { return m.Behavior.FilterUsage }))

	r.Register("ecommerce.cart_adds_count", integer(func(m *models.SessionMetrics) int { return m.Ecommerce.CartAddsCount }))
	r.Register("ecommerce.cart_removes_count", integer(func(m *models.SessionMetrics) int { return m.Ecommerce.CartRemovesCount }))
	r.Register("ecommerce.viewed_product_count", integer(func(m *models.SessionMetrics) int { return m.Ecommerce.ViewedProductCount }))
	r.Register("ecommerce.avg_price_viewed", num(func(m *models.SessionMetrics) float64 { return m.Ecommerce.AvgPriceViewed }))
	r.Register("ecommerce.category_count", integer(func(m *models.SessionMetrics) int { return m.Ecommerce.CategoryDiversity.Len() }))
	r.Register("ecommerce.reviews_read", flag(func(m *models.SessionMetrics) bool { return m.Ecommerce.ReviewsRead }))
	r.Register("ecommerce.size_guide_viewed", flag(func(m *models.SessionMetrics) bool { return m.Ecommerce.SizeGuideViewed }))

	r.Register("context.device_category", text(func(m *models.SessionMetrics) string { return m.Context.DeviceCategory }))
	r.Register("context.os_type", text(func(m *models.SessionMetrics) string { return m.Context.OSType }))
	r.Register("context.browser_language", text(func(m *models.SessionMetrics) string { return m.Context.BrowserLanguage }))
	r.Register("context.geo_city_tier", text(func(m *models.SessionMetrics) string { return m.Context.GeoCityTier }))
	r.Register("context.screen_resolution", text(func(m *models.SessionMetrics) string { return m.Context.ScreenResolution }))
	r.Register("context.is_wifi", func(m *models.SessionMetrics) (Value, bool) {
		if m.Context.IsWifi == nil {
			return Value{}, false
		}
		return Bool(*m.Context.IsWifi), true
	})

	r.Register("temporal.hour_of_day", integer(func(m *models.SessionMetrics) int { return m.Temporal.HourOfDay }))
	r.Register("temporal.day_of_week", integer(func(m *models.SessionMetrics) int { return m.Temporal.DayOfWeek }))
	r.Register("temporal.is_work_hours", flag(func(m *models.SessionMetrics) bool { return m.Temporal.IsWorkHours }))
	r.Register("temporal.time_since_last_visit_hours", num(func(m *models.SessionMetrics) float64 { return m.Temporal.TimeSinceLastVisitHours }))

	r.Register("source.traffic_source", text(func(m *models.SessionMetrics) string { return m.Source.TrafficSource }))
	r.Register("source.referrer_domain", text(func(m *models.SessionMetrics) string { return m.Source.ReferrerDomain }))
	for _, key := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"} {
		r.Register("source.utm."+key, func(m *models.SessionMetrics) (Value, bool) {
			v, ok := m.Source.UTM[key]
			if !ok {
				return Value{}, false
			}
			return String(v), true
		})
	}

	r.Register("calculated.cart_to_detail_ratio", num(func(m *models.SessionMetrics) float64 { return m.Calculated.CartToDetailRatio }))
	r.Register("calculated.idle_time_ratio", num(func(m *models.SessionMetrics) float64 { return m.Calculated.IdleTimeRatio }))
	r.Register("calculated.scroll_speed", num(func(m *models.SessionMetrics) float64 { return m.Calculated.ScrollSpeed }))

	r.Register("_internal.active_seconds", integer(func(m *models.SessionMetrics) int { return m.Internal.ActiveSeconds }))
	r.Register("_internal.total_seconds", integer(func(m *models.SessionMetrics) int { return m.Internal.TotalSeconds }))

	return r
}

package models

// ConnectionInfo mirrors the browser Network Information API.
type ConnectionInfo struct {
	Type          string `json:"type"`
	EffectiveType string `json:"effective_type"`
}

// Environment carries the client signals read once when a session starts.
// Every field is optional.
type Environment struct {
	UserAgent      string          `json:"user_agent"`
	ScreenWidth    int             `json:"screen_width"`
	ScreenHeight   int             `json:"screen_height"`
	Language       string          `json:"language"`
	AcceptLanguage string          `json:"-"`
	Referrer       string          `json:"referrer"`
	URL            string          `json:"url"`
	Connection     *ConnectionInfo `json:"connection,omitempty"`
	TimeZone       string          `json:"time_zone"`
	// VisitorID identifies the browser across sessions for the last-visit marker.
	VisitorID string `json:"visitor_id"`
}

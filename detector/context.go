// Package detector derives the one-off context, source and temporal metrics of
// a session from the signals the client reports when the session starts.
package detector

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"mabletask/tracker/models"
)

const (
	unknownValue = "unknown"
	// GeoCityTierUnknown is reported until an IP lookup is available.
	GeoCityTierUnknown = "Unknown"
	OSUnknown          = "Unknown"
)

var (
	mobileUA = regexp.MustCompile(`(?i)Mobi|Android`)
	tabletUA = regexp.MustCompile(`(?i)iPad|Tablet`)
)

// osMarkers are checked in order; a later match overrides an earlier one, so
// "Android" beats "Linux" and "like Mac" beats "Mac".
var osMarkers = []struct {
	marker string
	name   string
}{
	{"Win", "Windows"},
	{"Mac", "macOS"},
	{"Linux", "Linux"},
	{"Android", "Android"},
	{"like Mac", "iOS"},
}

// DetectContext classifies device, OS, language, connectivity and screen.
func DetectContext(env models.Environment) models.ContextMetrics {
	return models.ContextMetrics{
		DeviceCategory:   deviceCategory(env.UserAgent),
		OSType:           osType(env.UserAgent),
		BrowserLanguage:  browserLanguage(env.Language, env.AcceptLanguage),
		IsWifi:           isWifi(env.Connection),
		GeoCityTier:      GeoCityTierUnknown,
		ScreenResolution: screenResolution(env.ScreenWidth, env.ScreenHeight),
	}
}

func deviceCategory(ua string) string {
	switch {
	case ua == "":
		return models.DeviceUnknown
	case mobileUA.MatchString(ua):
		return models.DeviceMobile
	case tabletUA.MatchString(ua):
		return models.DeviceTablet
	default:
		return models.DeviceDesktop
	}
}

func osType(ua string) string {
	os := OSUnknown
	for _, m := range osMarkers {
		if strings.Contains(ua, m.marker) {
			os = m.name
		}
	}
	return os
}

// browserLanguage prefers the explicit language and falls back to the first
// entry of an Accept-Language header.
func browserLanguage(explicit, acceptHeader string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		tag, err := language.Parse(explicit)
		if err != nil {
			return unknownValue
		}
		return tag.String()
	}

	if acceptHeader != "" {
		tags, _, err := language.ParseAcceptLanguage(acceptHeader)
		if err == nil && len(tags) > 0 {
			return tags[0].String()
		}
	}
	return unknownValue
}

// isWifi approximates connectivity: wifi or a 4g effective type counts as a
// fast connection. nil means the client exposed nothing.
func isWifi(conn *models.ConnectionInfo) *bool {
	if conn == nil {
		return nil
	}
	wifi := conn.Type == "wifi" || conn.EffectiveType == "4g"
	return &wifi
}

func screenResolution(w, h int) string {
	if w <= 0 || h <= 0 {
		return unknownValue
	}
	return strconv.Itoa(w) + "x" + strconv.Itoa(h)
}

package detector

import (
	"net/url"
	"strings"

	"mabletask/tracker/models"
)

// Traffic sources reported when no utm_source is present.
const (
	SourceDirect        = "direct"
	SourceOrganicSearch = "organic_search"
	SourceSocial        = "social"
	SourceReferral      = "referral"
)

// UTMKeys are the campaign parameters captured from the landing URL.
var UTMKeys = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

// DetectSource extracts campaign parameters and classifies how the visitor
// arrived.
func DetectSource(env models.Environment) models.SourceMetrics {
	utm := utmParams(env.URL)

	return models.SourceMetrics{
		TrafficSource:  trafficSource(utm["utm_source"], env.Referrer),
		UTM:            utm,
		ReferrerDomain: referrerDomain(env.Referrer),
	}
}

// utmParams accepts a full URL or a bare query string.
func utmParams(landing string) map[string]string {
	utm := map[string]string{}
	if landing == "" {
		return utm
	}

	var query url.Values
	if u, err := url.Parse(landing); err == nil {
		query = u.Query()
	} else if q, err := url.ParseQuery(strings.TrimPrefix(landing, "?")); err == nil {
		query = q
	} else {
		return utm
	}

	for _, key := range UTMKeys {
		if v := query.Get(key); v != "" {
			utm[key] = v
		}
	}
	return utm
}

func trafficSource(utmSource, referrer string) string {
	switch {
	case utmSource != "":
		return utmSource
	case referrer == "":
		return SourceDirect
	case strings.Contains(referrer, "google"):
		return SourceOrganicSearch
	case strings.Contains(referrer, "facebook"), strings.Contains(referrer, "instagram"):
		return SourceSocial
	default:
		return SourceReferral
	}
}

func referrerDomain(referrer string) string {
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Scheme == "" {
		return ""
	}
	return u.Hostname()
}

package detector

import (
	"context"
	"time"
	_ "time/tzdata" // visitor zones must resolve in minimal containers

	"mabletask/tracker/logger"
	"mabletask/tracker/models"
	"mabletask/tracker/utils"
)

// Work hours are inclusive on both ends.
const (
	workHoursStart = 9
	workHoursEnd   = 18
)

// VisitMarkerStore keeps the timestamp of each visitor's previous session.
type VisitMarkerStore interface {
	LastVisit(ctx context.Context, visitorID string) (time.Time, bool, error)
	MarkVisit(ctx context.Context, visitorID string, at time.Time) error
}

// DetectTemporal computes the time-of-visit metrics in the visitor's time
// zone and advances the visitor's last-visit marker to now. markers may be
// nil, and marker failures only cost the time-since-last-visit value.
func DetectTemporal(ctx context.Context, now time.Time, env models.Environment, markers VisitMarkerStore, log logger.Logger) models.TemporalMetrics {
	local := now.In(visitorLocation(env.TimeZone))
	hour := local.Hour()

	return models.TemporalMetrics{
		HourOfDay:               hour,
		DayOfWeek:               int(local.Weekday()),
		IsWorkHours:             hour >= workHoursStart && hour <= workHoursEnd,
		TimeSinceLastVisitHours: hoursSinceLastVisit(ctx, now, env.VisitorID, markers, log),
		SessionStartTS:          now.UnixMilli(),
	}
}

func visitorLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func hoursSinceLastVisit(ctx context.Context, now time.Time, visitorID string, markers VisitMarkerStore, log logger.Logger) float64 {
	if markers == nil || visitorID == "" {
		return 0
	}

	var hours float64
	last, found, err := markers.LastVisit(ctx, visitorID)
	switch {
	case err != nil:
		log.Warn("Failed to read last visit marker",
			logger.String("visitor_id", visitorID),
			logger.Error(err),
		)
	case found:
		hours = utils.Round2(now.Sub(last).Hours())
	}

	if err := markers.MarkVisit(ctx, visitorID, now); err != nil {
		log.Warn("Failed to write last visit marker",
			logger.String("visitor_id", visitorID),
			logger.Error(err),
		)
	}
	return hours
}

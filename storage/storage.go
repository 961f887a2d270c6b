package storage

import (
	"context"
	"math"
	"time"

	"bartwatch.dev/relay/model"
)

// Storage owns the observation schema: stations, append-only
// departures, and materialized daily stats. Implementations must be
// safe for concurrent use; callers share a single handle rather than
// opening one per request.
type Storage interface {
	// Insert-or-replace keyed on the station code. Attributes of an
	// existing row are overwritten.
	UpsertStation(ctx context.Context, station *model.Station) error

	// Retrieves all known stations, ordered by code.
	ListStations(ctx context.Context) ([]model.Station, error)

	// Appends one departure observation. The day bucket is derived
	// from the observation timestamp; a zero timestamp is stamped
	// with the current time.
	InsertDeparture(ctx context.Context, dep *model.Departure) error

	// Recomputes the daily rollup for one station and day and
	// upserts it keyed on (station, date). Never triggered by
	// inserts; callers refresh explicitly.
	RecomputeDailyStats(ctx context.Context, stationID, date string) error

	// Retrieves stored rollups for a station, most recent first.
	ListDailyStats(ctx context.Context, stationID string, limit int) ([]model.DailyStat, error)

	// Groups departures observed at or after since by destination.
	// The window boundary is inclusive. Empty result is not an
	// error.
	DestinationStats(ctx context.Context, since time.Time) ([]model.DestinationStat, error)

	// Computes the per-station counters for one day bucket, plus
	// the system-wide train counts for that day.
	StationPerformance(ctx context.Context, stationID, date string) (PerformanceSnapshot, error)

	Close() error
}

// PerformanceSnapshot holds the raw counters behind a performance
// report. Rates are derived, not stored.
type PerformanceSnapshot struct {
	TotalDepartures int
	OnTime          int
	AvgDelay        float64
	ActiveTrains    int
	DelayedTrains   int
}

// OnTimeRate returns the on-time percentage rounded to one decimal,
// or 0 when no departures were observed.
func (p PerformanceSnapshot) OnTimeRate() float64 {
	if p.TotalDepartures == 0 {
		return 0
	}
	return math.Round(float64(p.OnTime)/float64(p.TotalDepartures)*1000) / 10
}

package relay

import (
	"context"
	"fmt"
	"time"

	"bartwatch.dev/relay/metrics"
	"bartwatch.dev/relay/model"
	"bartwatch.dev/relay/storage"
)

const (
	// Window for the rolling destination analytics. The boundary is
	// inclusive: a row exactly this old still counts.
	DefaultAnalyticsWindow = 7 * 24 * time.Hour
)

// Elevator and parking figures are fixed placeholders; the live feed
// has no endpoint for either.
var placeholderStatus = model.SystemStatus{
	Elevators: model.ElevatorStatus{Total: 50, Down: 2},
	Parking:   model.ParkingStatus{Capacity: 1000, Available: 850},
}

// Feed is the upstream transit feed consumed by the service. It is
// satisfied by bart.Client; tests substitute a fake.
type Feed interface {
	Stations(ctx context.Context) ([]model.StationInfo, error)
	Departures(ctx context.Context, code string) ([]model.Departure, error)
}

// Service ties the upstream feed to the observation store. Every
// request triggers its own live fetch or store query; there is no
// polling and no retry.
type Service struct {
	// When set, departures fetched live are also appended to the
	// store. On by default.
	PersistDepartures bool

	AnalyticsWindow time.Duration

	feed  Feed
	store storage.Storage
}

func NewService(feed Feed, store storage.Storage) *Service {
	return &Service{
		PersistDepartures: true,
		AnalyticsWindow:   DefaultAnalyticsWindow,
		feed:              feed,
		store:             store,
	}
}

// Stations fetches the live station list and upserts every station
// into the store before returning the wire-shaped list.
func (s *Service) Stations(ctx context.Context) ([]model.StationInfo, error) {
	start := time.Now()
	stations, err := s.feed.Stations(ctx)
	metrics.ObserveUpstream("stations", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	for i := range stations {
		st := &model.Station{
			ID:     stations[i].Abbr,
			Name:   stations[i].Name,
			City:   stations[i].City,
			County: stations[i].County,
			State:  stations[i].State,
			ZIP:    stations[i].ZIP,
		}
		err := s.store.UpsertStation(ctx, st)
		metrics.ObserveStoreWrite("upsert_station", err)
		if err != nil {
			return nil, fmt.Errorf("upserting station %s: %w", st.ID, err)
		}
	}

	return stations, nil
}

// Departures fetches live estimates for a station and, when
// persistence is enabled, appends each observation to the store.
func (s *Service) Departures(ctx context.Context, code string) ([]model.Departure, error) {
	start := time.Now()
	departures, err := s.feed.Departures(ctx, code)
	metrics.ObserveUpstream("departures", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if s.PersistDepartures {
		for i := range departures {
			err := s.store.InsertDeparture(ctx, &departures[i])
			metrics.ObserveStoreWrite("insert_departure", err)
			if err != nil {
				return nil, fmt.Errorf("persisting departure: %w", err)
			}
		}
	}

	return departures, nil
}

// DestinationStats aggregates persisted departures over the rolling
// analytics window, grouped by destination.
func (s *Service) DestinationStats(ctx context.Context) ([]model.DestinationStat, error) {
	since := time.Now().Add(-s.AnalyticsWindow)
	stats, err := s.store.DestinationStats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("destination stats: %w", err)
	}
	return stats, nil
}

// Performance builds the per-station snapshot for today.
func (s *Service) Performance(ctx context.Context, code string) (*model.Performance, error) {
	snap, err := s.store.StationPerformance(ctx, code, model.DateOf(time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("station performance: %w", err)
	}

	status := placeholderStatus
	status.ActiveTrains = snap.ActiveTrains
	status.Delays = snap.DelayedTrains

	return &model.Performance{
		Ridership:    snap.TotalDepartures,
		OnTimeRate:   snap.OnTimeRate(),
		AvgDelay:     snap.AvgDelay,
		SystemStatus: status,
	}, nil
}

// DailyStats lists the stored rollups for a station, newest first.
func (s *Service) DailyStats(ctx context.Context, code string, limit int) ([]model.DailyStat, error) {
	stats, err := s.store.ListDailyStats(ctx, code, limit)
	if err != nil {
		return nil, fmt.Errorf("daily stats: %w", err)
	}
	return stats, nil
}

// RecomputeDailyStats refreshes the materialized rollup for one
// station and day.
func (s *Service) RecomputeDailyStats(ctx context.Context, code string, day time.Time) error {
	err := s.store.RecomputeDailyStats(ctx, code, model.DateOf(day.UTC()))
	metrics.ObserveStoreWrite("recompute_daily_stats", err)
	if err != nil {
		return fmt.Errorf("recomputing daily stats: %w", err)
	}
	return nil
}

package relay_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bartwatch.dev/relay"
	"bartwatch.dev/relay/model"
	"bartwatch.dev/relay/testutil"
)

// FakeFeed serves canned data in place of the live agency API.
type FakeFeed struct {
	StationList []model.StationInfo
	Estimates   map[string][]model.Departure
	Err         error
}

func (f *FakeFeed) Stations(ctx context.Context) ([]model.StationInfo, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.StationList, nil
}

func (f *FakeFeed) Departures(ctx context.Context, code string) ([]model.Departure, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	deps, ok := f.Estimates[code]
	if !ok {
		return []model.Departure{}, nil
	}
	return deps, nil
}

func TestStationsUpsertsEveryStation(t *testing.T) {
	store := testutil.BuildStorage(t, "memory")
	feed := &FakeFeed{
		StationList: []model.StationInfo{
			{Name: "Embarcadero", Abbr: "EMBR", City: "San Francisco", ZIP: "94111"},
			{Name: "Montgomery St.", Abbr: "MONT", City: "San Francisco", ZIP: "94104"},
		},
	}
	service := relay.NewService(feed, store)

	ctx := context.Background()
	stations, err := service.Stations(ctx)
	require.NoError(t, err)
	assert.Len(t, stations, 2)

	stored, err := store.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "EMBR", stored[0].ID)
	assert.Equal(t, "Embarcadero", stored[0].Name)
	assert.Equal(t, "94111", stored[0].ZIP)
	assert.Equal(t, "MONT", stored[1].ID)
}

func TestDeparturesWriteThrough(t *testing.T) {
	now := time.Now().UTC()
	store := testutil.BuildStorage(t, "memory")
	feed := &FakeFeed{
		Estimates: map[string][]model.Departure{
			"EMBR": {
				*testutil.Departure("EMBR", "Antioch", 0, now),
				*testutil.Departure("EMBR", "Richmond", 0, now),
			},
		},
	}
	service := relay.NewService(feed, store)

	ctx := context.Background()
	departures, err := service.Departures(ctx, "EMBR")
	require.NoError(t, err)
	assert.Len(t, departures, 2)

	snap, err := store.StationPerformance(ctx, "EMBR", model.DateOf(now))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalDepartures)

	// With persistence off the fetch leaves no trace.
	service.PersistDepartures = false
	_, err = service.Departures(ctx, "EMBR")
	require.NoError(t, err)

	snap, err = store.StationPerformance(ctx, "EMBR", model.DateOf(now))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.TotalDepartures)
}

func TestDeparturesFeedError(t *testing.T) {
	store := testutil.BuildStorage(t, "memory")
	feed := &FakeFeed{Err: fmt.Errorf("upstream down")}
	service := relay.NewService(feed, store)

	_, err := service.Departures(context.Background(), "EMBR")
	assert.ErrorContains(t, err, "upstream down")

	_, err = service.Stations(context.Background())
	assert.ErrorContains(t, err, "upstream down")
}

func TestPerformanceSnapshot(t *testing.T) {
	now := time.Now().UTC()
	store := testutil.BuildStorage(t, "memory")
	feed := &FakeFeed{
		Estimates: map[string][]model.Departure{
			"EMBR": {
				*testutil.Departure("EMBR", "Antioch", 0, now),
				*testutil.Departure("EMBR", "Antioch", 0, now.Add(time.Minute)),
				*testutil.Departure("EMBR", "Richmond", 0, now),
				*testutil.Departure("EMBR", "Antioch", 10, now),
			},
		},
	}
	service := relay.NewService(feed, store)

	ctx := context.Background()
	_, err := service.Departures(ctx, "EMBR")
	require.NoError(t, err)

	perf, err := service.Performance(ctx, "EMBR")
	require.NoError(t, err)

	assert.Equal(t, 4, perf.Ridership)
	assert.Equal(t, 75.0, perf.OnTimeRate)
	assert.Equal(t, 2.5, perf.AvgDelay)
	assert.Equal(t, 1, perf.SystemStatus.Delays)

	// Elevator and parking figures are fixed placeholders.
	assert.Equal(t, model.ElevatorStatus{Total: 50, Down: 2}, perf.SystemStatus.Elevators)
	assert.Equal(t, model.ParkingStatus{Capacity: 1000, Available: 850}, perf.SystemStatus.Parking)
}

func TestDestinationStatsWindow(t *testing.T) {
	now := time.Now().UTC()
	store := testutil.BuildStorage(t, "memory")

	ctx := context.Background()
	require.NoError(t, store.InsertDeparture(ctx,
		testutil.Departure("EMBR", "Antioch", 5, now.Add(-time.Hour))))
	require.NoError(t, store.InsertDeparture(ctx,
		testutil.Departure("EMBR", "Antioch", 0, now.Add(-8*24*time.Hour))))

	service := relay.NewService(&FakeFeed{}, store)

	stats, err := service.DestinationStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "Antioch", stats[0].Destination)
	assert.Equal(t, 1, stats[0].TotalDepartures)
	assert.Equal(t, 1, stats[0].DelayedTrains)
}

func TestRecomputeAndListDailyStats(t *testing.T) {
	now := time.Now().UTC()
	store := testutil.BuildStorage(t, "memory")

	ctx := context.Background()
	require.NoError(t, store.InsertDeparture(ctx,
		testutil.Departure("EMBR", "Antioch", 5, now)))
	require.NoError(t, store.InsertDeparture(ctx,
		testutil.Departure("EMBR", "Antioch", 0, now)))

	service := relay.NewService(&FakeFeed{}, store)

	require.NoError(t, service.RecomputeDailyStats(ctx, "EMBR", now))

	stats, err := service.DailyStats(ctx, "EMBR", 7)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, model.DateOf(now), stats[0].Date)
	assert.Equal(t, 2, stats[0].TotalDepartures)
	assert.Equal(t, 1, stats[0].DelayedDepartures)
	assert.Equal(t, 5.0, stats[0].AvgDelayMinutes)
}

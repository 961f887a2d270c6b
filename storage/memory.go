package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"bartwatch.dev/relay/model"
)

// In memory implementation of Storage below. Used by tests and for
// ephemeral runs where nothing should touch disk.

type memoryStatKey struct {
	StationID string
	Date      string
}

type MemoryStorage struct {
	mu         sync.RWMutex
	stations   map[string]model.Station
	departures []model.Departure
	dailyStats map[memoryStatKey]model.DailyStat
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		stations:   map[string]model.Station{},
		dailyStats: map[memoryStatKey]model.DailyStat{},
	}
}

func (s *MemoryStorage) UpsertStation(ctx context.Context, station *model.Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := *station
	if existing, ok := s.stations[st.ID]; ok {
		st.CreatedAt = existing.CreatedAt
	} else if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	s.stations[st.ID] = st
	return nil
}

func (s *MemoryStorage) ListStations(ctx context.Context) ([]model.Station, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stations := make([]model.Station, 0, len(s.stations))
	for _, st := range s.stations {
		stations = append(stations, st)
	}
	sort.Slice(stations, func(i, j int) bool {
		return stations[i].ID < stations[j].ID
	})
	return stations, nil
}

func (s *MemoryStorage) InsertDeparture(ctx context.Context, dep *model.Departure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := *dep
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	d.Timestamp = d.Timestamp.UTC()
	s.departures = append(s.departures, d)
	return nil
}

func (s *MemoryStorage) RecomputeDailyStats(ctx context.Context, stationID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat := model.DailyStat{StationID: stationID, Date: date}
	delaySum := 0
	for _, d := range s.departures {
		if d.StationID != stationID || model.DateOf(d.Timestamp) != date {
			continue
		}
		stat.TotalDepartures++
		if d.Delay > 0 {
			stat.DelayedDepartures++
			delaySum += d.Delay
			if d.Delay > stat.MaxDelayMinutes {
				stat.MaxDelayMinutes = d.Delay
			}
		}
	}
	if stat.DelayedDepartures > 0 {
		stat.AvgDelayMinutes = float64(delaySum) / float64(stat.DelayedDepartures)
	}

	s.dailyStats[memoryStatKey{StationID: stationID, Date: date}] = stat
	return nil
}

func (s *MemoryStorage) ListDailyStats(ctx context.Context, stationID string, limit int) ([]model.DailyStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := []model.DailyStat{}
	for key, stat := range s.dailyStats {
		if key.StationID == stationID {
			stats = append(stats, stat)
		}
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Date > stats[j].Date
	})
	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

func (s *MemoryStorage) DestinationStats(ctx context.Context, since time.Time) ([]model.DestinationStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type agg struct {
		total    int
		delayed  int
		delaySum int
	}

	byDest := map[string]*agg{}
	for _, d := range s.departures {
		if d.Timestamp.Before(since.UTC()) {
			continue
		}
		a, ok := byDest[d.Destination]
		if !ok {
			a = &agg{}
			byDest[d.Destination] = a
		}
		a.total++
		if d.Delay != 0 {
			a.delayed++
		}
		if d.Delay < 0 {
			a.delaySum -= d.Delay
		} else {
			a.delaySum += d.Delay
		}
	}

	stats := []model.DestinationStat{}
	for dest, a := range byDest {
		stats = append(stats, model.DestinationStat{
			Destination:     dest,
			TotalDepartures: a.total,
			DelayedTrains:   a.delayed,
			AvgDelayMinutes: round1(float64(a.delaySum) / float64(a.total)),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].TotalDepartures != stats[j].TotalDepartures {
			return stats[i].TotalDepartures > stats[j].TotalDepartures
		}
		return stats[i].Destination < stats[j].Destination
	})

	return stats, nil
}

func (s *MemoryStorage) StationPerformance(ctx context.Context, stationID, date string) (PerformanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap PerformanceSnapshot
	delaySum := 0
	trains := map[string]bool{}
	for _, d := range s.departures {
		if model.DateOf(d.Timestamp) != date {
			continue
		}
		trains[fmt.Sprintf("%s:%s:%s", d.Destination, d.Direction, d.Color)] = true
		if d.Delay > 0 {
			snap.DelayedTrains++
		}
		if d.StationID != stationID {
			continue
		}
		snap.TotalDepartures++
		delaySum += d.Delay
		if d.Delay == 0 {
			snap.OnTime++
		}
	}
	snap.ActiveTrains = len(trains)
	if snap.TotalDepartures > 0 {
		snap.AvgDelay = round1(float64(delaySum) / float64(snap.TotalDepartures))
	}

	return snap, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

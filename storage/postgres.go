package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"bartwatch.dev/relay/model"
)

type PSQLStorage struct {
	db *sql.DB
}

// NewPSQLStorage connects to Postgres using the provided connection
// string and creates the schema if missing.
//
// If clearDB is true, all tables are dropped first. You probably only
// want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS stations;
DROP TABLE IF EXISTS departures;
DROP TABLE IF EXISTS daily_stats;`)
		if err != nil {
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS stations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    city TEXT,
    county TEXT,
    state TEXT,
    zipcode TEXT,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS departures (
    id SERIAL PRIMARY KEY,
    station_id TEXT NOT NULL,
    destination TEXT NOT NULL,
    platform TEXT,
    minutes INTEGER NOT NULL,
    direction TEXT,
    color TEXT,
    length INTEGER,
    bike_flag INTEGER,
    delay INTEGER NOT NULL DEFAULT 0,
    timestamp TIMESTAMPTZ NOT NULL,
    date TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS departures_station_date ON departures (station_id, date);
CREATE INDEX IF NOT EXISTS departures_timestamp ON departures (timestamp);

CREATE TABLE IF NOT EXISTS daily_stats (
    station_id TEXT NOT NULL,
    date TEXT NOT NULL,
    total_departures INTEGER NOT NULL DEFAULT 0,
    delayed_departures INTEGER NOT NULL DEFAULT 0,
    avg_delay_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
    max_delay_minutes INTEGER NOT NULL DEFAULT 0,
PRIMARY KEY (station_id, date)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{db: db}, nil
}

func (s *PSQLStorage) UpsertStation(ctx context.Context, station *model.Station) error {
	createdAt := station.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO stations (id, name, city, county, state, zipcode, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    city = EXCLUDED.city,
    county = EXCLUDED.county,
    state = EXCLUDED.state,
    zipcode = EXCLUDED.zipcode`,
		station.ID,
		station.Name,
		station.City,
		station.County,
		station.State,
		station.ZIP,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("upserting station: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListStations(ctx context.Context) ([]model.Station, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, city, county, state, zipcode, created_at
FROM stations
ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing stations: %w", err)
	}
	defer rows.Close()

	stations := []model.Station{}
	for rows.Next() {
		var st model.Station
		err := rows.Scan(&st.ID, &st.Name, &st.City, &st.County, &st.State, &st.ZIP, &st.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		stations = append(stations, st)
	}

	return stations, rows.Err()
}

func (s *PSQLStorage) InsertDeparture(ctx context.Context, dep *model.Departure) error {
	ts := dep.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO departures (station_id, destination, platform, minutes, direction, color, length, bike_flag, delay, timestamp, date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		dep.StationID,
		dep.Destination,
		dep.Platform,
		dep.Minutes,
		dep.Direction,
		dep.Color,
		dep.Length,
		dep.BikeFlag,
		dep.Delay,
		ts,
		model.DateOf(ts),
	)
	if err != nil {
		return fmt.Errorf("inserting departure: %w", err)
	}
	return nil
}

func (s *PSQLStorage) RecomputeDailyStats(ctx context.Context, stationID, date string) error {
	var stat model.DailyStat
	err := s.db.QueryRowContext(ctx, `
SELECT
    COUNT(*),
    COALESCE(SUM(CASE WHEN delay > 0 THEN 1 ELSE 0 END), 0),
    COALESCE(AVG(CASE WHEN delay > 0 THEN delay END), 0),
    COALESCE(MAX(CASE WHEN delay > 0 THEN delay ELSE 0 END), 0)
FROM departures
WHERE station_id = $1 AND date = $2`, stationID, date).Scan(
		&stat.TotalDepartures,
		&stat.DelayedDepartures,
		&stat.AvgDelayMinutes,
		&stat.MaxDelayMinutes,
	)
	if err != nil {
		return fmt.Errorf("aggregating daily stats: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO daily_stats (station_id, date, total_departures, delayed_departures, avg_delay_minutes, max_delay_minutes)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (station_id, date) DO UPDATE SET
    total_departures = EXCLUDED.total_departures,
    delayed_departures = EXCLUDED.delayed_departures,
    avg_delay_minutes = EXCLUDED.avg_delay_minutes,
    max_delay_minutes = EXCLUDED.max_delay_minutes`,
		stationID,
		date,
		stat.TotalDepartures,
		stat.DelayedDepartures,
		stat.AvgDelayMinutes,
		stat.MaxDelayMinutes,
	)
	if err != nil {
		return fmt.Errorf("upserting daily stats: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListDailyStats(ctx context.Context, stationID string, limit int) ([]model.DailyStat, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT station_id, date, total_departures, delayed_departures, avg_delay_minutes, max_delay_minutes
FROM daily_stats
WHERE station_id = $1
ORDER BY date DESC
LIMIT $2`, stationID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing daily stats: %w", err)
	}
	defer rows.Close()

	stats := []model.DailyStat{}
	for rows.Next() {
		var st model.DailyStat
		err := rows.Scan(
			&st.StationID,
			&st.Date,
			&st.TotalDepartures,
			&st.DelayedDepartures,
			&st.AvgDelayMinutes,
			&st.MaxDelayMinutes,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning daily stat: %w", err)
		}
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

func (s *PSQLStorage) DestinationStats(ctx context.Context, since time.Time) ([]model.DestinationStat, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT
    destination,
    COUNT(*),
    COALESCE(SUM(CASE WHEN delay != 0 THEN 1 ELSE 0 END), 0),
    ROUND(COALESCE(AVG(ABS(delay)), 0), 1)
FROM departures
WHERE timestamp >= $1
GROUP BY destination
ORDER BY COUNT(*) DESC`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying destination stats: %w", err)
	}
	defer rows.Close()

	stats := []model.DestinationStat{}
	for rows.Next() {
		var st model.DestinationStat
		err := rows.Scan(&st.Destination, &st.TotalDepartures, &st.DelayedTrains, &st.AvgDelayMinutes)
		if err != nil {
			return nil, fmt.Errorf("scanning destination stat: %w", err)
		}
		stats = append(stats, st)
	}

	return stats, rows.Err()
}

func (s *PSQLStorage) StationPerformance(ctx context.Context, stationID, date string) (PerformanceSnapshot, error) {
	var snap PerformanceSnapshot

	err := s.db.QueryRowContext(ctx, `
SELECT
    COUNT(*),
    COALESCE(SUM(CASE WHEN delay = 0 THEN 1 ELSE 0 END), 0),
    ROUND(COALESCE(AVG(delay), 0), 1)
FROM departures
WHERE station_id = $1 AND date = $2`, stationID, date).Scan(
		&snap.TotalDepartures,
		&snap.OnTime,
		&snap.AvgDelay,
	)
	if err != nil {
		return PerformanceSnapshot{}, fmt.Errorf("querying station performance: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
SELECT
    COUNT(DISTINCT destination || ':' || direction || ':' || color),
    COALESCE(SUM(CASE WHEN delay > 0 THEN 1 ELSE 0 END), 0)
FROM departures
WHERE date = $1`, date).Scan(
		&snap.ActiveTrains,
		&snap.DelayedTrains,
	)
	if err != nil {
		return PerformanceSnapshot{}, fmt.Errorf("querying system status: %w", err)
	}

	return snap, nil
}

func (s *PSQLStorage) Close() error {
	return s.db.Close()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bartwatch.dev/relay/model"
)

type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) a file-backed store at path. An
// empty path yields an in-memory database, which is what the tests
// use.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// The sqlite driver serializes access per connection; a single
	// connection avoids table-lock errors from concurrent writers.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS stations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    city TEXT,
    county TEXT,
    state TEXT,
    zipcode TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS departures (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    station_id TEXT NOT NULL,
    destination TEXT NOT NULL,
    platform TEXT,
    minutes INTEGER NOT NULL,
    direction TEXT,
    color TEXT,
    length INTEGER,
    bike_flag INTEGER,
    delay INTEGER NOT NULL DEFAULT 0,
    timestamp TIMESTAMP NOT NULL,
    date TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS departures_station_date ON departures (station_id, date);
CREATE INDEX IF NOT EXISTS departures_timestamp ON departures (timestamp);

CREATE TABLE IF NOT EXISTS daily_stats (
    station_id TEXT NOT NULL,
    date TEXT NOT NULL,
    total_departures INTEGER NOT NULL DEFAULT 0,
    delayed_departures INTEGER NOT NULL DEFAULT 0,
    avg_delay_minutes REAL NOT NULL DEFAULT 0,
    max_delay_minutes INTEGER NOT NULL DEFAULT 0,
PRIMARY KEY (station_id, date)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) UpsertStation(ctx context.Context, station *model.Station) error {
	createdAt := station.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO stations (id, name, city, county, state, zipcode, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    city = excluded.city,
    county = excluded.county,
    state = excluded.state,
    zipcode = excluded.zipcode`,
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

func (s *SQLiteStorage) ListStations(ctx context.Context) ([]model.Station, error) {
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

func (s *SQLiteStorage) InsertDeparture(ctx context.Context, dep *model.Departure) error {
	ts := dep.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO departures (station_id, destination, platform, minutes, direction, color, length, bike_flag, delay, timestamp, date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *SQLiteStorage) RecomputeDailyStats(ctx context.Context, stationID, date string) error {
	var stat model.DailyStat
	err := s.db.QueryRowContext(ctx, `
SELECT
    COUNT(*),
    COALESCE(SUM(CASE WHEN delay > 0 THEN 1 ELSE 0 END), 0),
    COALESCE(AVG(CASE WHEN delay > 0 THEN delay END), 0),
    COALESCE(MAX(CASE WHEN delay > 0 THEN delay ELSE 0 END), 0)
FROM departures
WHERE station_id = ? AND date = ?`, stationID, date).Scan(
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
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (station_id, date) DO UPDATE SET
    total_departures = excluded.total_departures,
    delayed_departures = excluded.delayed_departures,
    avg_delay_minutes = excluded.avg_delay_minutes,
    max_delay_minutes = excluded.max_delay_minutes`,
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

func (s *SQLiteStorage) ListDailyStats(ctx context.Context, stationID string, limit int) ([]model.DailyStat, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT station_id, date, total_departures, delayed_departures, avg_delay_minutes, max_delay_minutes
FROM daily_stats
WHERE station_id = ?
ORDER BY date DESC
LIMIT ?`, stationID, limit)
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

func (s *SQLiteStorage) DestinationStats(ctx context.Context, since time.Time) ([]model.DestinationStat, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT
    destination,
    COUNT(*),
    COALESCE(SUM(CASE WHEN delay != 0 THEN 1 ELSE 0 END), 0),
    ROUND(COALESCE(AVG(ABS(delay)), 0), 1)
FROM departures
WHERE timestamp >= ?
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

func (s *SQLiteStorage) StationPerformance(ctx context.Context, stationID, date string) (PerformanceSnapshot, error) {
	var snap PerformanceSnapshot

	err := s.db.QueryRowContext(ctx, `
SELECT
    COUNT(*),
    COALESCE(SUM(CASE WHEN delay = 0 THEN 1 ELSE 0 END), 0),
    ROUND(COALESCE(AVG(delay), 0), 1)
FROM departures
WHERE station_id = ? AND date = ?`, stationID, date).Scan(
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
WHERE date = ?`, date).Scan(
		&snap.ActiveTrains,
		&snap.DelayedTrains,
	)
	if err != nil {
		return PerformanceSnapshot{}, fmt.Errorf("querying system status: %w", err)
	}

	return snap, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

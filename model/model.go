package model

import (
	"time"
)

// Holds all external facing types and constants.

// StationInfo is a station as described by the upstream station list.
// The wire response for the station list carries only Name and Abbr;
// the address fields feed the station upsert.
type StationInfo struct {
	Name   string `json:"name"`
	Abbr   string `json:"abbr"`
	City   string `json:"-"`
	County string `json:"-"`
	State  string `json:"-"`
	ZIP    string `json:"-"`
}

// Station is a persisted station record, keyed on the short station
// code. The code is stable and referenced by departures.
type Station struct {
	ID        string
	Name      string
	City      string
	County    string
	State     string
	ZIP       string
	CreatedAt time.Time
}

// Departure is one normalized observation of a train estimate at a
// platform. Rows are append-only; repeated polls of an unchanged
// estimate produce distinct rows differing only by timestamp.
type Departure struct {
	StationID   string    `json:"-"`
	Destination string    `json:"destination"`
	Platform    string    `json:"platform"`
	Minutes     int       `json:"minutes"`
	Direction   string    `json:"direction"`
	Color       string    `json:"color"`
	Length      int       `json:"length"`
	BikeFlag    int       `json:"bike_flag"`
	Delay       int       `json:"delay"`
	Timestamp   time.Time `json:"timestamp"`
}

// DailyStat is a materialized per-station-per-day rollup. It is only
// as fresh as the last explicit recompute.
type DailyStat struct {
	StationID         string  `json:"station_id"`
	Date              string  `json:"date"`
	TotalDepartures   int     `json:"total_departures"`
	DelayedDepartures int     `json:"delayed_departures"`
	AvgDelayMinutes   float64 `json:"avg_delay_minutes"`
	MaxDelayMinutes   int     `json:"max_delay_minutes"`
}

// DestinationStat is a rolling per-destination aggregate over a time
// window.
type DestinationStat struct {
	Destination     string  `json:"destination"`
	TotalDepartures int     `json:"total_departures"`
	DelayedTrains   int     `json:"delayed_trains"`
	AvgDelayMinutes float64 `json:"avg_delay_minutes"`
}

// Performance is the per-station snapshot for the current day.
type Performance struct {
	Ridership    int          `json:"ridership"`
	OnTimeRate   float64      `json:"onTimeRate"`
	AvgDelay     float64      `json:"avgDelay"`
	SystemStatus SystemStatus `json:"systemStatus"`
}

// SystemStatus holds the system-wide counters for today. Elevator and
// parking figures are fixed placeholders, not live data.
type SystemStatus struct {
	ActiveTrains int            `json:"activeTrains"`
	Delays       int            `json:"delays"`
	Elevators    ElevatorStatus `json:"elevators"`
	Parking      ParkingStatus  `json:"parking"`
}

type ElevatorStatus struct {
	Total int `json:"total"`
	Down  int `json:"down"`
}

type ParkingStatus struct {
	Capacity  int `json:"capacity"`
	Available int `json:"available"`
}

// DateOf formats a timestamp as the day bucket used by the store.
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}

package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bartwatch.dev/relay/api"
	"bartwatch.dev/relay/model"
)

// mockService lets each test script the relay layer.
type mockService struct {
	stations    func() ([]model.StationInfo, error)
	departures  func(code string) ([]model.Departure, error)
	destStats   func() ([]model.DestinationStat, error)
	performance func(code string) (*model.Performance, error)
	dailyStats  func(code string, limit int) ([]model.DailyStat, error)
	recompute   func(code string, day time.Time) error
}

func (m *mockService) Stations(ctx context.Context) ([]model.StationInfo, error) {
	return m.stations()
}

func (m *mockService) Departures(ctx context.Context, code string) ([]model.Departure, error) {
	return m.departures(code)
}

func (m *mockService) DestinationStats(ctx context.Context) ([]model.DestinationStat, error) {
	return m.destStats()
}

func (m *mockService) Performance(ctx context.Context, code string) (*model.Performance, error) {
	return m.performance(code)
}

func (m *mockService) DailyStats(ctx context.Context, code string, limit int) ([]model.DailyStat, error) {
	return m.dailyStats(code, limit)
}

func (m *mockService) RecomputeDailyStats(ctx context.Context, code string, day time.Time) error {
	return m.recompute(code, day)
}

func serve(t *testing.T, service api.Service, method, target string) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	api.NewHandler(service).RegisterRoutes(router)

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStationsEndpoint(t *testing.T) {
	service := &mockService{
		stations: func() ([]model.StationInfo, error) {
			return []model.StationInfo{
				{Name: "Embarcadero", Abbr: "EMBR"},
				{Name: "Montgomery St.", Abbr: "MONT"},
			}, nil
		},
	}

	rec := serve(t, service, "GET", "/api/stations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	// A bare array, not an envelope.
	assert.JSONEq(t, `[
		{"name": "Embarcadero", "abbr": "EMBR"},
		{"name": "Montgomery St.", "abbr": "MONT"}
	]`, rec.Body.String())
}

func TestStationsEndpointError(t *testing.T) {
	service := &mockService{
		stations: func() ([]model.StationInfo, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}

	rec := serve(t, service, "GET", "/api/stations")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error": "connection refused"}`, rec.Body.String())
}

func TestDeparturesEndpoint(t *testing.T) {
	ts := time.Date(2024, 3, 14, 8, 30, 0, 0, time.UTC)
	service := &mockService{
		departures: func(code string) ([]model.Departure, error) {
			assert.Equal(t, "EMBR", code)
			return []model.Departure{
				{
					StationID:   "EMBR",
					Destination: "Antioch",
					Platform:    "2",
					Minutes:     9,
					Direction:   "South",
					Color:       "YELLOW",
					Length:      10,
					BikeFlag:    1,
					Timestamp:   ts,
				},
			}, nil
		},
	}

	rec := serve(t, service, "GET", "/api/departures/EMBR")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.DeparturesResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Data available", resp.Status)
	assert.NotEmpty(t, resp.Timestamp)
	require.Len(t, resp.Departures, 1)
	assert.Equal(t, "Antioch", resp.Departures[0].Destination)

	// The station code stays out of each departure record.
	assert.NotContains(t, rec.Body.String(), "EMBR")
}

func TestDeparturesEndpointError(t *testing.T) {
	service := &mockService{
		departures: func(code string) ([]model.Departure, error) {
			return nil, fmt.Errorf("upstream timeout")
		},
	}

	rec := serve(t, service, "GET", "/api/departures/EMBR")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp api.DeparturesResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Error", resp.Status)
	assert.Equal(t, "upstream timeout", resp.Error)

	// The departures key is present and empty, never null.
	assert.Contains(t, rec.Body.String(), `"departures":[]`)
}

func TestStationAnalyticsEndpoint(t *testing.T) {
	service := &mockService{
		destStats: func() ([]model.DestinationStat, error) {
			return []model.DestinationStat{
				{Destination: "Antioch", TotalDepartures: 12, DelayedTrains: 3, AvgDelayMinutes: 2.5},
			}, nil
		},
	}

	rec := serve(t, service, "GET", "/api/analytics/stations")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.AnalyticsResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Data available", resp.Status)
	assert.Contains(t, rec.Body.String(), `"total_departures":12`)
}

func TestStationAnalyticsEndpointEmpty(t *testing.T) {
	service := &mockService{
		destStats: func() ([]model.DestinationStat, error) {
			return []model.DestinationStat{}, nil
		},
	}

	rec := serve(t, service, "GET", "/api/analytics/stations")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.AnalyticsResponse
	decode(t, rec, &resp)
	assert.Equal(t, "No data available", resp.Status)
}

func TestDailyAnalyticsPlaceholder(t *testing.T) {
	rec := serve(t, &mockService{}, "GET", "/api/analytics/daily")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.AnalyticsResponse
	decode(t, rec, &resp)
	assert.Equal(t, "No historical data available", resp.Status)
}

func TestStationDailyStatsEndpoint(t *testing.T) {
	service := &mockService{
		dailyStats: func(code string, limit int) ([]model.DailyStat, error) {
			assert.Equal(t, "EMBR", code)
			assert.Equal(t, 7, limit)
			return []model.DailyStat{
				{StationID: "EMBR", Date: "2024-03-14", TotalDepartures: 40},
			}, nil
		},
	}

	rec := serve(t, service, "GET", "/api/analytics/daily/EMBR")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.AnalyticsResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Data available", resp.Status)
}

func TestStationDailyStatsBadLimit(t *testing.T) {
	for _, limit := range []string{"0", "-1", "seven"} {
		rec := serve(t, &mockService{}, "GET", "/api/analytics/daily/EMBR?limit="+limit)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit %q", limit)
	}
}

func TestRollupEndpoint(t *testing.T) {
	var gotDay time.Time
	service := &mockService{
		recompute: func(code string, day time.Time) error {
			assert.Equal(t, "EMBR", code)
			gotDay = day
			return nil
		},
	}

	rec := serve(t, service, "POST", "/api/analytics/rollup/EMBR?date=2024-03-14")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "success"}`, rec.Body.String())
	assert.Equal(t, "2024-03-14", gotDay.Format("2006-01-02"))
}

func TestRollupEndpointBadDate(t *testing.T) {
	rec := serve(t, &mockService{}, "POST", "/api/analytics/rollup/EMBR?date=last-tuesday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPerformanceEndpoint(t *testing.T) {
	service := &mockService{
		performance: func(code string) (*model.Performance, error) {
			return &model.Performance{
				Ridership:  40,
				OnTimeRate: 75.0,
				AvgDelay:   2.5,
				SystemStatus: model.SystemStatus{
					ActiveTrains: 3,
					Delays:       1,
					Elevators:    model.ElevatorStatus{Total: 50, Down: 2},
					Parking:      model.ParkingStatus{Capacity: 1000, Available: 850},
				},
			}, nil
		},
	}

	rec := serve(t, service, "GET", "/api/performance/EMBR")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.JSONEq(t, `{
		"status": "success",
		"data": {
			"ridership": 40,
			"onTimeRate": 75.0,
			"avgDelay": 2.5,
			"systemStatus": {
				"activeTrains": 3,
				"delays": 1,
				"elevators": {"total": 50, "down": 2},
				"parking": {"capacity": 1000, "available": 850}
			}
		}
	}`, rec.Body.String())
}

func TestPerformanceEndpointError(t *testing.T) {
	service := &mockService{
		performance: func(code string) (*model.Performance, error) {
			return nil, fmt.Errorf("database locked")
		},
	}

	rec := serve(t, service, "GET", "/api/performance/EMBR")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status": "error", "error": "database locked"}`, rec.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	handler := api.CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/api/stations", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	// Preflight requests short-circuit.
	req = httptest.NewRequest("OPTIONS", "/api/stations", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

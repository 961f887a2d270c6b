package bart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"bartwatch.dev/relay/model"
)

const (
	// Public test key published by the agency.
	DefaultAPIKey  = "MW9S-E7SL-26DU-VV8V"
	DefaultBaseURL = "http://api.bart.gov/api"
	DefaultTimeout = 10 * time.Second

	// Sentinel minutes value meaning the train is at the platform.
	leavingSentinel = "Leaving"
)

// Client fetches station and estimated-departure data from the
// agency's legacy JSON API. It holds no state between calls.
type Client struct {
	baseURL string
	key     string
	client  *http.Client

	now func() time.Time
}

// NewClient builds a client. A zero timeout falls back to
// DefaultTimeout; the upstream has no bound of its own, so a client
// side one is mandatory.
func NewClient(baseURL, key string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if key == "" {
		key = DefaultAPIKey
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		key:     key,
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Upstream payload shapes. Every field the agency sends is a string;
// anything we do not consume is left undeclared and ignored.

type stationListResponse struct {
	Root struct {
		Stations struct {
			Station []upstreamStation `json:"station"`
		} `json:"stations"`
	} `json:"root"`
}

type upstreamStation struct {
	Name    string `json:"name"`
	Abbr    string `json:"abbr"`
	City    string `json:"city"`
	County  string `json:"county"`
	State   string `json:"state"`
	ZipCode string `json:"zipcode"`
}

type etdResponse struct {
	Root struct {
		Station []struct {
			Abbr string `json:"abbr"`
			ETD  []struct {
				Destination string             `json:"destination"`
				Estimate    []upstreamEstimate `json:"estimate"`
			} `json:"etd"`
		} `json:"station"`
	} `json:"root"`
}

type upstreamEstimate struct {
	Minutes   string `json:"minutes"`
	Platform  string `json:"platform"`
	Direction string `json:"direction"`
	Length    string `json:"length"`
	Color     string `json:"color"`
	BikeFlag  string `json:"bikeflag"`
}

// Stations fetches the upstream station list, in upstream order.
func (c *Client) Stations(ctx context.Context) ([]model.StationInfo, error) {
	var payload stationListResponse
	if err := c.get(ctx, "/stn.aspx", url.Values{"cmd": {"stns"}}, &payload); err != nil {
		return nil, err
	}

	stations := make([]model.StationInfo, 0, len(payload.Root.Stations.Station))
	for _, s := range payload.Root.Stations.Station {
		stations = append(stations, model.StationInfo{
			Name:   s.Name,
			Abbr:   s.Abbr,
			City:   s.City,
			County: s.County,
			State:  s.State,
			ZIP:    s.ZipCode,
		})
	}

	return stations, nil
}

// Departures fetches live departure estimates for a station code and
// normalizes them. Each record is stamped with the receipt time, not
// the upstream's own timestamp.
//
// A payload missing the root, station or etd keys means the agency
// has no estimates right now; that is an empty result, not an error.
func (c *Client) Departures(ctx context.Context, orig string) ([]model.Departure, error) {
	var payload etdResponse
	err := c.get(ctx, "/etd.aspx", url.Values{"cmd": {"etd"}, "orig": {orig}}, &payload)
	if err != nil {
		return nil, err
	}

	departures := []model.Departure{}
	if len(payload.Root.Station) == 0 {
		return departures, nil
	}

	observed := c.now()
	for _, group := range payload.Root.Station[0].ETD {
		for _, est := range group.Estimate {
			dep, err := normalizeEstimate(orig, group.Destination, est, observed)
			if err != nil {
				return nil, &Error{Kind: KindDecode, Op: "bart: departures", Err: err}
			}
			departures = append(departures, dep)
		}
	}

	return departures, nil
}

func normalizeEstimate(station, destination string, est upstreamEstimate, observed time.Time) (model.Departure, error) {
	minutes, err := parseMinutes(est.Minutes)
	if err != nil {
		return model.Departure{}, errors.Wrapf(err, "estimate for %q at %s", destination, station)
	}

	length, err := parseOptionalInt(est.Length)
	if err != nil {
		return model.Departure{}, errors.Wrapf(err, "length for %q at %s", destination, station)
	}

	bikeFlag, err := parseOptionalInt(est.BikeFlag)
	if err != nil {
		return model.Departure{}, errors.Wrapf(err, "bike flag for %q at %s", destination, station)
	}

	return model.Departure{
		StationID:   station,
		Destination: destination,
		Platform:    est.Platform,
		Minutes:     minutes,
		Direction:   est.Direction,
		Color:       est.Color,
		Length:      length,
		BikeFlag:    bikeFlag,
		Delay:       0, // upstream supplies no delay information
		Timestamp:   observed,
	}, nil
}

// parseMinutes maps the "at platform" sentinel to 0 and requires a
// non-negative integer otherwise.
func parseMinutes(raw string) (int, error) {
	if raw == leavingSentinel {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid minutes %q", raw)
	}
	if n < 0 {
		return 0, errors.Errorf("negative minutes %d", n)
	}
	return n, nil
}

func parseOptionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer %q", raw)
	}
	return n, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	params.Set("key", c.key)
	params.Set("json", "y")

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &Error{Kind: KindTransport, Op: "bart: building request", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Op: "bart: " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{
			Kind: KindTransport,
			Op:   "bart: " + path,
			Err:  fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindDecode, Op: "bart: " + path, Err: err}
	}

	return nil
}

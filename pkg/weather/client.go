// Package weather wraps the WeatherAPI.com forecast endpoint.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kafeai/brigade/pkg/errors"
)

// Forecast is the daily forecast signal the prediction stage consumes.
type Forecast struct {
	Date       string  `json:"date"`
	Condition  string  `json:"condition"`
	AvgTempC   float64 `json:"avg_temp_c"`
	RainChance int     `json:"rain_chance"`
}

// Provider produces a daily forecast for a city. dayOffset 0 is today,
// 1 is tomorrow.
type Provider interface {
	Forecast(ctx context.Context, city string, dayOffset int) (*Forecast, error)
}

// Client talks to the WeatherAPI.com v1 forecast endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a forecast client. baseURL defaults to the public API
// when empty.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "http://api.weatherapi.com/v1"
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type forecastResponse struct {
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				AvgTempC          float64 `json:"avgtemp_c"`
				DailyChanceOfRain int     `json:"daily_chance_of_rain"`
				Condition         struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"day"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// Forecast implements Provider.
func (c *Client) Forecast(ctx context.Context, city string, dayOffset int) (*Forecast, error) {
	if c.apiKey == "" {
		return nil, errors.New(errors.CodeInvalidInput, "weather api key is not configured", nil)
	}
	if dayOffset < 0 {
		return nil, errors.New(errors.CodeInvalidInput, "day offset must be non-negative", nil)
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("q", city)
	q.Set("days", strconv.Itoa(dayOffset+1))
	endpoint := fmt.Sprintf("%s/forecast.json?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "weather request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "read weather response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeInternal,
			fmt.Sprintf("weather api returned %d: %s", resp.StatusCode, body), nil)
	}

	var parsed forecastResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.New(errors.CodeParse, "decode weather response", err)
	}
	days := parsed.Forecast.ForecastDay
	if dayOffset >= len(days) {
		return nil, errors.New(errors.CodeParse,
			fmt.Sprintf("forecast has %d days, wanted offset %d", len(days), dayOffset), nil)
	}
	day := days[dayOffset]
	return &Forecast{
		Date:       day.Date,
		Condition:  day.Day.Condition.Text,
		AvgTempC:   day.Day.AvgTempC,
		RainChance: day.Day.DailyChanceOfRain,
	}, nil
}

// String renders the forecast as a one-line signal for prompts.
func (f *Forecast) String() string {
	return fmt.Sprintf("%s: %s, avg %.1f C, %d%% chance of rain",
		f.Date, f.Condition, f.AvgTempC, f.RainChance)
}

var _ Provider = (*Client)(nil)

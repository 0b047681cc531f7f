package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const forecastPayload = `{
  "forecast": {
    "forecastday": [
      {"date": "2026-08-31", "day": {"avgtemp_c": 14.2, "daily_chance_of_rain": 10, "condition": {"text": "Sunny"}}},
      {"date": "2026-09-01", "day": {"avgtemp_c": 9.5, "daily_chance_of_rain": 85, "condition": {"text": "Heavy rain"}}}
    ]
  }
}`

func TestForecastParsesRequestedDay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("key") != "test-key" || q.Get("q") != "Sundsvall" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if q.Get("days") != "2" {
			t.Errorf("days = %s, want 2", q.Get("days"))
		}
		w.Write([]byte(forecastPayload))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	forecast, err := c.Forecast(context.Background(), "Sundsvall", 1)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if forecast.Date != "2026-09-01" || forecast.Condition != "Heavy rain" {
		t.Fatalf("forecast = %+v", forecast)
	}
	if forecast.AvgTempC != 9.5 || forecast.RainChance != 85 {
		t.Fatalf("forecast numbers = %+v", forecast)
	}
}

func TestForecastMissingDayOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"forecast": {"forecastday": []}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	if _, err := c.Forecast(context.Background(), "Sundsvall", 1); err == nil {
		t.Fatalf("expected error for missing forecast day")
	}
}

func TestForecastAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "wrong-key")
	if _, err := c.Forecast(context.Background(), "Sundsvall", 0); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}

func TestForecastRequiresAPIKey(t *testing.T) {
	c := NewClient("http://example.invalid", "")
	if _, err := c.Forecast(context.Background(), "Sundsvall", 0); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}

package fx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"finrep/internal/core"
)

func TestLiveProviderFetchesTodaysRate(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"base":"USD","rates":{"EUR":0.90}}`)
	}))
	defer server.Close()

	provider := NewLiveProvider(NewTable("USD"), NewClientWithBaseURL(server.URL))

	today := time.Now()
	rate, err := provider.Rate("EUR", today)
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	want := 1 / 0.90
	if rate != want {
		t.Errorf("rate = %v, want %v", rate, want)
	}

	// Second lookup is served from cache.
	if _, err := provider.Rate("EUR", today); err != nil {
		t.Fatalf("Rate (cached): %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("API calls = %d, want 1", calls.Load())
	}
}

func TestLiveProviderNeverFetchesHistoricalRates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("historical lookup must not reach the API")
	}))
	defer server.Close()

	provider := NewLiveProvider(NewTable("USD"), NewClientWithBaseURL(server.URL))

	_, err := provider.Rate("EUR", time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, core.ErrRateUnavailable) {
		t.Errorf("err = %v, want ErrRateUnavailable", err)
	}
}

func TestLiveProviderPrefersTable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("table hit must not reach the API")
	}))
	defer server.Close()

	table := NewTable("USD")
	table.Add(RatePoint{Currency: "EUR", Date: core.BusinessDate(time.Now()), Rate: 1.05})
	provider := NewLiveProvider(table, NewClientWithBaseURL(server.URL))

	rate, err := provider.Rate("EUR", time.Now())
	if err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if rate != 1.05 {
		t.Errorf("rate = %v, want 1.05 from the table", rate)
	}
}

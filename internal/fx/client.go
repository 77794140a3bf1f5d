package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"finrep/internal/core"
)

const defaultBaseURL = "https://api.exchangerate-api.com/v4/latest"

// Client fetches current exchange rates from an external rate API. It is used
// to seed a Table before an ingestion run; the pipeline itself only ever reads
// from the table.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
	}
}

// NewClientWithBaseURL is used by tests to point the client at a stub server.
func NewClientWithBaseURL(baseURL string) *Client {
	c := NewClient()
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type latestResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// FetchLatest returns rate points converting each target currency into the
// base currency, dated today. The API reports units of target per 1 base, so
// the conversion rate into base is the reciprocal.
func (c *Client) FetchLatest(ctx context.Context, base string, targets []string) ([]RatePoint, error) {
	base = strings.ToUpper(strings.TrimSpace(base))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+base, nil)
	if err != nil {
		return nil, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("User-Agent", "finrep/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rates: unexpected status %s", resp.Status)
	}

	var payload latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode rate response: %w", err)
	}

	today := core.BusinessDate(time.Now())
	points := make([]RatePoint, 0, len(targets))
	for _, target := range targets {
		target = strings.ToUpper(strings.TrimSpace(target))
		if target == base {
			continue
		}
		rate, ok := payload.Rates[target]
		if !ok || rate == 0 {
			return nil, fmt.Errorf("%w: %s not in rate response", core.ErrRateUnavailable, target)
		}
		points = append(points, RatePoint{Currency: target, Date: today, Rate: 1 / rate})
	}
	return points, nil
}

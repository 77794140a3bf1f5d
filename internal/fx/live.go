package fx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finrep/internal/cache"
	"finrep/internal/core"
)

// LiveProvider layers live API rates over a static table. Lookups hit the
// table first; when the table has no rate and the requested date is current,
// the provider fetches today's rate and caches it. Historical dates never
// fall through to the API, since today's rate would misstate them.
type LiveProvider struct {
	table  *Table
	client *Client
	cached *cache.TTLCache[float64]
}

func NewLiveProvider(table *Table, client *Client) *LiveProvider {
	return &LiveProvider{
		table:  table,
		client: client,
		cached: cache.NewTTLCache[float64](64, time.Hour),
	}
}

func (p *LiveProvider) Rate(currency string, date time.Time) (float64, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	rate, err := p.table.Rate(currency, date)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, core.ErrRateUnavailable) {
		return 0, err
	}
	if !core.BusinessDate(date).Equal(core.BusinessDate(time.Now())) {
		return 0, err
	}

	if rate, ok := p.cached.Get(currency); ok {
		return rate, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	points, err := p.client.FetchLatest(ctx, p.table.reporting, []string{currency})
	if err != nil {
		return 0, err
	}
	for _, pt := range points {
		p.cached.Set(pt.Currency, pt.Rate)
		p.table.Add(pt)
	}
	rate, ok := p.cached.Get(currency)
	if !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrRateUnavailable, currency)
	}
	return rate, nil
}

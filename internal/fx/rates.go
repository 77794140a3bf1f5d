// Package fx provides exchange-rate lookup for currency normalization.
// Rates convert a foreign-currency amount into the single reporting currency;
// a missing rate is an error, never a guess.
package fx

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"finrep/internal/core"
)

// RateProvider returns the conversion rate into the reporting currency that
// is valid for the given business date.
type RateProvider interface {
	Rate(currency string, date time.Time) (float64, error)
}

// RatePoint is one dated exchange rate. The rate applies from Date onward,
// until superseded by a later point for the same currency.
type RatePoint struct {
	Currency string    `json:"currency"`
	Date     time.Time `json:"date"`
	Rate     float64   `json:"rate"`
}

// Table is an in-memory RateProvider backed by dated rate points.
type Table struct {
	reporting string
	points    map[string][]RatePoint // sorted by date ascending
}

// NewTable creates an empty rate table for the given reporting currency.
// The reporting currency itself always converts at 1.
func NewTable(reportingCurrency string) *Table {
	return &Table{
		reporting: strings.ToUpper(strings.TrimSpace(reportingCurrency)),
		points:    make(map[string][]RatePoint),
	}
}

// LoadTable reads rate points from a JSON file.
func LoadTable(reportingCurrency, path string) (*Table, error) {
	t := NewTable(reportingCurrency)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rates file: %w", err)
	}
	var points []RatePoint
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("parse rates file: %w", err)
	}
	t.Add(points...)
	return t, nil
}

// Add inserts rate points, keeping each currency's points date-ordered.
func (t *Table) Add(points ...RatePoint) {
	for _, p := range points {
		cur := strings.ToUpper(strings.TrimSpace(p.Currency))
		p.Currency = cur
		p.Date = core.BusinessDate(p.Date)
		t.points[cur] = append(t.points[cur], p)
	}
	for cur := range t.points {
		sort.Slice(t.points[cur], func(i, j int) bool {
			return t.points[cur][i].Date.Before(t.points[cur][j].Date)
		})
	}
}

// Rate returns the most recent rate for the currency that is not after date.
func (t *Table) Rate(currency string, date time.Time) (float64, error) {
	cur := strings.ToUpper(strings.TrimSpace(currency))
	if cur == t.reporting {
		return 1.0, nil
	}
	date = core.BusinessDate(date)

	points := t.points[cur]
	best := -1
	for i, p := range points {
		if p.Date.After(date) {
			break
		}
		best = i
	}
	if best == -1 {
		return 0, fmt.Errorf("%w: %s on %s", core.ErrRateUnavailable, cur, date.Format("2006-01-02"))
	}
	return points[best].Rate, nil
}

// Convert applies a rate to an amount in minor units, rounding half away
// from zero.
func Convert(cents int64, rate float64) int64 {
	converted := float64(cents) * rate
	if converted < 0 {
		return -int64(math.Floor(-converted + 0.5))
	}
	return int64(math.Floor(converted + 0.5))
}

// Package report derives financial reports from the canonical ledger. Reports
// are pure folds over the entries of a period: generating the same report
// twice over the same ledger yields identical output.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"finrep/internal/core"
)

type Kind string

const (
	KindPnL        Kind = "pnl"
	KindExpense    Kind = "expense"
	KindVendor     Kind = "vendor"
	KindCompliance Kind = "compliance"
)

var (
	ErrUnknownKind   = errors.New("unknown report kind")
	ErrInvalidPeriod = errors.New("invalid report period")
)

// ParseKind resolves user-facing report names, including the spellings that
// show up in practice ("P&L", "expenses").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pnl", "p&l", "pl", "profit_loss", "profit-loss":
		return KindPnL, nil
	case "expense", "expenses":
		return KindExpense, nil
	case "vendor", "vendors":
		return KindVendor, nil
	case "compliance":
		return KindCompliance, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Line is one row of a report. Dimension names what the row aggregates: a
// P&L group, a category, a category/vendor pair, or a vendor.
type Line struct {
	Dimension   string `json:"dimension"`
	AmountCents int64  `json:"amount_cents"`
	Count       int    `json:"count"`
}

// Flag is a compliance finding.
type Flag struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Meta carries the data-quality context every report discloses: how much of
// the period's data the numbers are based on, and what was held back.
type Meta struct {
	IncludedCount     int               `json:"included_count"`
	QuarantinedCount  int               `json:"quarantined_count"`
	QuarantineReasons map[core.Rule]int `json:"quarantine_reasons,omitempty"`
}

type Report struct {
	Kind        Kind        `json:"kind"`
	Period      core.Period `json:"period"`
	Currency    string      `json:"currency"`
	GeneratedAt time.Time   `json:"generated_at"`
	Lines       []Line      `json:"lines"`
	Flags       []Flag      `json:"flags,omitempty"`
	Meta        Meta        `json:"meta"`
}

// Line label used for entries with no resolvable vendor.
const unattributedVendor = "(unattributed)"

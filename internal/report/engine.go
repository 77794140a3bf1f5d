package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"finrep/internal/core"
	"finrep/internal/log"
	"finrep/internal/normalize"
)

// Store is the read surface the engine folds over.
type Store interface {
	EntriesInPeriod(ctx context.Context, p core.Period) ([]core.LedgerEntry, error)
	ListQuarantine(ctx context.Context, p *core.Period) ([]core.QuarantineRecord, error)
}

type Engine struct {
	store               Store
	currency            string
	quarantineThreshold float64
	aliases             *normalize.Aliases
	logger              *log.Logger
}

// NewEngine builds a report engine. The alias table is used by the compliance
// report to attribute quarantined records to taxonomy categories.
func NewEngine(store Store, reportingCurrency string, quarantineThreshold float64, aliases *normalize.Aliases, logger *log.Logger) *Engine {
	return &Engine{
		store:               store,
		currency:            reportingCurrency,
		quarantineThreshold: quarantineThreshold,
		aliases:             aliases,
		logger:              logger.WithComponent(log.ComponentReport),
	}
}

// Generate builds one report over the ledger snapshot for the period.
func (e *Engine) Generate(ctx context.Context, kind Kind, p core.Period) (*Report, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}

	entries, err := e.store.EntriesInPeriod(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("load entries for %s: %w", p, err)
	}
	quarantined, err := e.store.ListQuarantine(ctx, &p)
	if err != nil {
		return nil, fmt.Errorf("load quarantine for %s: %w", p, err)
	}

	report := &Report{
		Kind:        kind,
		Period:      p,
		Currency:    e.currency,
		GeneratedAt: time.Now().UTC(),
		Meta:        buildMeta(entries, quarantined),
	}

	switch kind {
	case KindPnL:
		report.Lines = buildPnL(entries)
	case KindExpense:
		report.Lines = buildExpense(entries)
	case KindVendor:
		report.Lines = buildVendor(entries)
	case KindCompliance:
		prev, err := e.store.EntriesInPeriod(ctx, p.Prev())
		if err != nil {
			return nil, fmt.Errorf("load entries for %s: %w", p.Prev(), err)
		}
		report.Lines, report.Flags = buildCompliance(entries, prev, quarantined, e.aliases, e.quarantineThreshold)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	e.logger.InfoContext(ctx, "Report generated",
		log.FieldReportKind, string(kind),
		log.FieldPeriod, p.String(),
		log.FieldRecordCount, len(entries),
		log.FieldQuarantinedCount, len(quarantined))

	return report, nil
}

func buildMeta(entries []core.LedgerEntry, quarantined []core.QuarantineRecord) Meta {
	meta := Meta{IncludedCount: len(entries), QuarantinedCount: len(quarantined)}
	if len(quarantined) > 0 {
		meta.QuarantineReasons = make(map[core.Rule]int)
		for _, q := range quarantined {
			for _, d := range q.Diagnostics {
				meta.QuarantineReasons[d.Rule]++
			}
		}
	}
	return meta
}

// buildPnL folds entries into one line per top-level group in stable order,
// then appends gross margin (revenue plus cost of goods, which is negative)
// and the net result. Net always equals the sum of every included entry.
func buildPnL(entries []core.LedgerEntry) []Line {
	totals := make(map[core.Group]int64)
	counts := make(map[core.Group]int)
	for _, e := range entries {
		g := e.Category.Group()
		totals[g] += e.Amount.Cents
		counts[g]++
	}

	var net int64
	lines := make([]Line, 0, len(core.Groups())+2)
	for _, g := range core.Groups() {
		lines = append(lines, Line{Dimension: string(g), AmountCents: totals[g], Count: counts[g]})
		net += totals[g]
	}
	lines = append(lines,
		Line{Dimension: "GrossMargin", AmountCents: totals[core.GroupRevenue] + totals[core.GroupCOGS]},
		Line{Dimension: "Net", AmountCents: net},
	)
	return lines
}

// buildExpense reports outflows (negative amounts outside Revenue): one line
// per category ordered by magnitude, then one line per category/vendor pair.
// Ties break on the dimension name so output order is deterministic.
func buildExpense(entries []core.LedgerEntry) []Line {
	byCategory := make(map[string]*Line)
	byVendor := make(map[string]*Line)
	for _, e := range entries {
		if e.Category.Group() == core.GroupRevenue || e.Amount.Cents >= 0 {
			continue
		}
		addLine(byCategory, string(e.Category), e.Amount.Cents)
		vendor := e.Vendor
		if vendor == "" {
			vendor = unattributedVendor
		}
		addLine(byVendor, string(e.Category)+"/"+vendor, e.Amount.Cents)
	}
	return append(sortByMagnitude(byCategory), sortByMagnitude(byVendor)...)
}

// buildVendor reports the signed total and entry count per vendor, largest
// magnitude first.
func buildVendor(entries []core.LedgerEntry) []Line {
	byVendor := make(map[string]*Line)
	for _, e := range entries {
		vendor := e.Vendor
		if vendor == "" {
			vendor = unattributedVendor
		}
		addLine(byVendor, vendor, e.Amount.Cents)
	}
	return sortByMagnitude(byVendor)
}

// buildCompliance reports the quarantine rate overall, per source, and per
// category, and flags categories that had activity in the previous period but
// none in this one. The denominator of every rate is accepted plus
// quarantined, so a period with no data at all rates zero.
func buildCompliance(entries, prev []core.LedgerEntry, quarantined []core.QuarantineRecord, aliases *normalize.Aliases, threshold float64) ([]Line, []Flag) {
	var lines []Line
	var flags []Flag

	total := len(entries) + len(quarantined)
	rate := 0.0
	if total > 0 {
		rate = float64(len(quarantined)) / float64(total)
	}
	lines = append(lines, Line{Dimension: "quarantine_rate_bps", AmountCents: int64(rate * 10000), Count: len(quarantined)})
	if rate > threshold {
		flags = append(flags, Flag{
			Code:   "quarantine_rate_exceeded",
			Detail: fmt.Sprintf("quarantine rate %.1f%% exceeds threshold %.1f%%", rate*100, threshold*100),
		})
	}

	// Per-source rates, flagged on the same threshold.
	acceptedBySource := make(map[string]int)
	for _, e := range entries {
		acceptedBySource[e.Source]++
	}
	quarantinedBySource := make(map[string]int)
	for _, q := range quarantined {
		quarantinedBySource[q.Record.Source]++
	}
	for _, src := range sortedKeys(quarantinedBySource) {
		n := quarantinedBySource[src]
		srcTotal := n + acceptedBySource[src]
		srcRate := float64(n) / float64(srcTotal)
		lines = append(lines, Line{Dimension: "source/" + src, AmountCents: int64(srcRate * 10000), Count: n})
		if srcRate > threshold {
			flags = append(flags, Flag{
				Code:   "source_quarantine_rate_exceeded",
				Detail: fmt.Sprintf("source %s quarantine rate %.1f%% exceeds threshold %.1f%%", src, srcRate*100, threshold*100),
			})
		}
	}

	// Per-category rates. Quarantined records only carry a free-text hint,
	// so resolve it through the alias table; unresolvable hints are exactly
	// the referential failures and group separately.
	acceptedByCategory := make(map[core.Category]int)
	for _, e := range entries {
		acceptedByCategory[e.Category]++
	}
	quarantinedByCategory := make(map[string]int)
	for _, q := range quarantined {
		dim := "(unmapped)"
		if cat, ok := aliases.ResolveCategory(q.Record.Field(core.FieldCategory)); ok {
			dim = string(cat)
		}
		quarantinedByCategory[dim]++
	}
	for _, dim := range sortedKeys(quarantinedByCategory) {
		n := quarantinedByCategory[dim]
		catTotal := n + acceptedByCategory[core.Category(dim)]
		catRate := float64(n) / float64(catTotal)
		lines = append(lines, Line{Dimension: "category/" + dim, AmountCents: int64(catRate * 10000), Count: n})
		if catRate > threshold {
			flags = append(flags, Flag{
				Code:   "category_quarantine_rate_exceeded",
				Detail: fmt.Sprintf("category %s quarantine rate %.1f%% exceeds threshold %.1f%%", dim, catRate*100, threshold*100),
			})
		}
	}

	current := make(map[core.Category]bool)
	for _, e := range entries {
		current[e.Category] = true
	}
	previous := make(map[core.Category]bool)
	for _, e := range prev {
		previous[e.Category] = true
	}
	for _, cat := range core.Categories() {
		if previous[cat] && !current[cat] {
			flags = append(flags, Flag{
				Code:   "category_activity_gap",
				Detail: fmt.Sprintf("category %s had entries in the previous period but none in this one", cat),
			})
		}
	}

	return lines, flags
}

func addLine(m map[string]*Line, dimension string, cents int64) {
	l, ok := m[dimension]
	if !ok {
		l = &Line{Dimension: dimension}
		m[dimension] = l
	}
	l.AmountCents += cents
	l.Count++
}

func sortByMagnitude(m map[string]*Line) []Line {
	lines := make([]Line, 0, len(m))
	for _, l := range m {
		lines = append(lines, *l)
	}
	sort.Slice(lines, func(i, j int) bool {
		mi, mj := abs(lines[i].AmountCents), abs(lines[j].AmountCents)
		if mi != mj {
			return mi > mj
		}
		return lines[i].Dimension < lines[j].Dimension
	})
	return lines
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

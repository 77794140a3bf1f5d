// Package validation screens raw records before they are trusted. Every
// record ends up in exactly one of two disjoint sets: accepted (proceeds to
// transformation) or quarantined (held with a diagnostic for remediation).
// Nothing is ever silently dropped.
package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"finrep/internal/core"
	"finrep/internal/normalize"
)

// LedgerIndex answers whether an entry identity is already ledgered.
type LedgerIndex interface {
	HasEntry(ctx context.Context, entryID string) (bool, error)
}

// Rules holds the configured thresholds for the range checks.
type Rules struct {
	// Now anchors the ingestion window; zero means the wall clock. Tests
	// pin it for reproducible window checks.
	Now                 time.Time
	BackdateLimitDays   int
	FutureGraceDays     int
	OutlierCeilingCents int64
}

func (r Rules) now() time.Time {
	if r.Now.IsZero() {
		return time.Now()
	}
	return r.Now
}

// Engine applies the validation rules in a fixed order, short-circuiting on
// the first failure so each record carries exactly one terminal diagnostic:
//
//  1. structural (id, then date, then amount)
//  2. referential (category hint resolves through the alias table)
//  3. range (date window, then amount ceiling)
//  4. duplicate (against the ledger snapshot and earlier records in the batch)
type Engine struct {
	aliases *normalize.Aliases
	ledger  LedgerIndex
	rules   Rules
}

func NewEngine(aliases *normalize.Aliases, ledger LedgerIndex, rules Rules) *Engine {
	return &Engine{aliases: aliases, ledger: ledger, rules: rules}
}

// Screen partitions records into accepted and quarantined. It returns an
// error only for faults consulting the ledger index; data-quality problems
// never fail a batch.
func (e *Engine) Screen(ctx context.Context, records []core.RawRecord) ([]core.RawRecord, []core.QuarantineRecord, error) {
	accepted := make([]core.RawRecord, 0, len(records))
	var quarantined []core.QuarantineRecord
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		diag, err := e.check(ctx, rec, seen)
		if err != nil {
			return nil, nil, err
		}
		if diag == nil {
			accepted = append(accepted, rec)
			seen[core.EntryID(rec.Source, rec.NativeID())] = true
			continue
		}
		quarantined = append(quarantined, Quarantine(rec, *diag))
	}
	return accepted, quarantined, nil
}

// Quarantine wraps a record with its terminal diagnostic and a fresh attempt
// id, so repeated failed ingestion attempts are all retained for audit.
func Quarantine(rec core.RawRecord, diags ...core.Diagnostic) core.QuarantineRecord {
	return core.QuarantineRecord{
		AttemptID:     uuid.NewString(),
		Record:        rec,
		Diagnostics:   diags,
		QuarantinedAt: time.Now(),
	}
}

func (e *Engine) check(ctx context.Context, rec core.RawRecord, seen map[string]bool) (*core.Diagnostic, error) {
	// Rule 1: structural
	nativeID := rec.NativeID()
	if nativeID == "" {
		return diag(core.RuleStructural, "missing %s", core.FieldTransactionID), nil
	}
	date, err := core.ParseDate(rec.Field(core.FieldDate))
	if err != nil {
		return diag(core.RuleStructural, "unparseable date %q", rec.Field(core.FieldDate)), nil
	}
	cents, err := core.ParseSignedToCents(rec.Field(core.FieldAmount))
	if err != nil {
		return diag(core.RuleStructural, "unparseable amount %q", rec.Field(core.FieldAmount)), nil
	}

	// Rule 2: referential
	hint := rec.Field(core.FieldCategory)
	if _, ok := e.aliases.ResolveCategory(hint); !ok {
		return diag(core.RuleReferential, "category hint %q has no taxonomy mapping", hint), nil
	}

	// Rule 3: range, date window first, then amount ceiling
	now := core.BusinessDate(e.rules.now())
	earliest := now.AddDate(0, 0, -e.rules.BackdateLimitDays)
	latest := now.AddDate(0, 0, e.rules.FutureGraceDays)
	if date.Before(earliest) {
		return diag(core.RuleRange, "date %s is backdated beyond %s",
			date.Format("2006-01-02"), earliest.Format("2006-01-02")), nil
	}
	if date.After(latest) {
		return diag(core.RuleRange, "date %s is beyond the future grace period ending %s",
			date.Format("2006-01-02"), latest.Format("2006-01-02")), nil
	}
	if abs(cents) > e.rules.OutlierCeilingCents {
		return diag(core.RuleRange, "amount magnitude %d exceeds outlier ceiling %d",
			abs(cents), e.rules.OutlierCeilingCents), nil
	}

	// Rule 4: duplicate
	entryID := core.EntryID(rec.Source, nativeID)
	if seen[entryID] {
		return diag(core.RuleDuplicate, "entry %s occurs earlier in this batch", entryID), nil
	}
	exists, err := e.ledger.HasEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("check ledger for %s: %w", entryID, err)
	}
	if exists {
		return diag(core.RuleDuplicate, "entry %s is already ledgered", entryID), nil
	}

	return nil, nil
}

func diag(rule core.Rule, format string, args ...any) *core.Diagnostic {
	severity := core.SeverityError
	if rule == core.RuleDuplicate {
		// Re-ingesting the same extract is expected, not a data fault.
		severity = core.SeverityWarning
	}
	return &core.Diagnostic{Rule: rule, Severity: severity, Detail: fmt.Sprintf(format, args...)}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

package storage

import (
	"context"
	"testing"
	"time"

	"finrep/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(":memory:")
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func entry(source, nativeID string, date time.Time, cents int64, cat core.Category, vendor string) core.LedgerEntry {
	return core.LedgerEntry{
		EntryID:  core.EntryID(source, nativeID),
		Date:     core.BusinessDate(date),
		Amount:   core.Money{Cents: cents},
		Category: cat,
		Vendor:   vendor,
		Source:   source,
		RawRef:   core.RawRef(source, nativeID),
	}
}

func TestAppendEntriesIgnoresDuplicates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	batch := []core.LedgerEntry{
		entry("bank_csv", "TX-1", d, 100000, core.CategoryRevenue, "acme-inc"),
		entry("bank_csv", "TX-2", d, -30000, core.CategoryOpexRent, "landlord-llc"),
	}

	n, err := repo.AppendEntries(ctx, batch)
	if err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}
	if n != 2 {
		t.Fatalf("appended = %d, want 2", n)
	}

	// Same batch again: identity is already ledgered, nothing changes.
	n, err = repo.AppendEntries(ctx, batch)
	if err != nil {
		t.Fatalf("AppendEntries (repeat): %v", err)
	}
	if n != 0 {
		t.Fatalf("repeat appended = %d, want 0", n)
	}

	count, err := repo.EntryCount(ctx)
	if err != nil {
		t.Fatalf("EntryCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("ledger size = %d, want 2", count)
	}
}

func TestHasEntry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if _, err := repo.AppendEntries(ctx, []core.LedgerEntry{
		entry("erp", "A-9", d, 5000, core.CategoryRevenue, ""),
	}); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}

	ok, err := repo.HasEntry(ctx, core.EntryID("erp", "A-9"))
	if err != nil {
		t.Fatalf("HasEntry: %v", err)
	}
	if !ok {
		t.Error("expected existing entry to be found")
	}

	ok, err = repo.HasEntry(ctx, core.EntryID("erp", "A-10"))
	if err != nil {
		t.Fatalf("HasEntry: %v", err)
	}
	if ok {
		t.Error("expected missing entry to be absent")
	}
}

func TestEntriesInPeriodHalfOpen(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	jan := core.MonthPeriod(2024, time.January)
	entries := []core.LedgerEntry{
		entry("s", "before", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), 1, core.CategoryRevenue, ""),
		entry("s", "first", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 2, core.CategoryRevenue, ""),
		entry("s", "last", time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), 3, core.CategoryRevenue, ""),
		entry("s", "after", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 4, core.CategoryRevenue, ""),
	}
	if _, err := repo.AppendEntries(ctx, entries); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}

	got, err := repo.EntriesInPeriod(ctx, jan)
	if err != nil {
		t.Fatalf("EntriesInPeriod: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	for _, e := range got {
		if !jan.Contains(e.Date) {
			t.Errorf("entry %s dated %s outside %s", e.EntryID, e.Date.Format("2006-01-02"), jan)
		}
	}
	if got[0].Amount.Cents != 2 || got[1].Amount.Cents != 3 {
		t.Errorf("unexpected ordering: %+v", got)
	}
}

func TestEntriesInPeriodRoundTripsFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	want := entry("bank_csv", "TX-42", d, -199900, core.CategoryOpexSoftware, "cloudco")
	if _, err := repo.AppendEntries(ctx, []core.LedgerEntry{want}); err != nil {
		t.Fatalf("AppendEntries: %v", err)
	}

	got, err := repo.EntriesInPeriod(ctx, core.MonthPeriod(2024, time.March))
	if err != nil {
		t.Fatalf("EntriesInPeriod: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	if got[0] != want {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got[0], want)
	}
}

func TestQuarantineRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := core.QuarantineRecord{
		AttemptID: "attempt-1",
		Record: core.RawRecord{
			Source: "bank_csv",
			Fields: map[string]string{
				core.FieldTransactionID: "TX-7",
				core.FieldDate:          "2024-01-05",
				core.FieldAmount:        "N/A",
				core.FieldCategory:      "Rent",
			},
		},
		Diagnostics: []core.Diagnostic{{
			Rule:     core.RuleStructural,
			Severity: core.SeverityError,
			Detail:   `invalid amount "N/A"`,
		}},
		QuarantinedAt: time.Date(2024, 1, 6, 12, 30, 0, 0, time.UTC),
	}

	if err := repo.InsertQuarantine(ctx, []core.QuarantineRecord{rec}); err != nil {
		t.Fatalf("InsertQuarantine: %v", err)
	}

	got, err := repo.ListQuarantine(ctx, nil)
	if err != nil {
		t.Fatalf("ListQuarantine: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	q := got[0]
	if q.AttemptID != rec.AttemptID || q.Record.Source != rec.Record.Source {
		t.Errorf("identity mismatch: %+v", q)
	}
	if q.Record.Field(core.FieldAmount) != "N/A" {
		t.Errorf("fields not preserved: %+v", q.Record.Fields)
	}
	if len(q.Diagnostics) != 1 || q.Diagnostics[0] != rec.Diagnostics[0] {
		t.Errorf("diagnostic mismatch: %+v", q.Diagnostics)
	}
	if !q.QuarantinedAt.Equal(rec.QuarantinedAt) {
		t.Errorf("quarantined_at = %s, want %s", q.QuarantinedAt, rec.QuarantinedAt)
	}
}

func TestListQuarantineByPeriod(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mk := func(id, date string, at time.Time) core.QuarantineRecord {
		fields := map[string]string{core.FieldTransactionID: id}
		if date != "" {
			fields[core.FieldDate] = date
		}
		return core.QuarantineRecord{
			AttemptID:     id,
			Record:        core.RawRecord{Source: "erp", Fields: fields},
			Diagnostics:   []core.Diagnostic{{Rule: core.RuleRange, Severity: core.SeverityError, Detail: "x"}},
			QuarantinedAt: at,
		}
	}

	feb6 := time.Date(2024, 2, 6, 9, 0, 0, 0, time.UTC)
	recs := []core.QuarantineRecord{
		mk("in-jan", "2024-01-10", feb6),
		mk("in-mar", "2024-03-02", feb6),
		// Unparseable date falls back to the attempt timestamp (February).
		mk("no-date", "", feb6),
	}
	if err := repo.InsertQuarantine(ctx, recs); err != nil {
		t.Fatalf("InsertQuarantine: %v", err)
	}

	tests := []struct {
		name   string
		period core.Period
		want   []string
	}{
		{"january by record date", core.MonthPeriod(2024, time.January), []string{"in-jan"}},
		{"february by attempt time", core.MonthPeriod(2024, time.February), []string{"no-date"}},
		{"march", core.MonthPeriod(2024, time.March), []string{"in-mar"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListQuarantine(ctx, &tt.period)
			if err != nil {
				t.Fatalf("ListQuarantine: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d records, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].AttemptID != id {
					t.Errorf("record %d = %s, want %s", i, got[i].AttemptID, id)
				}
			}
		})
	}
}

package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"finrep/internal/amqp"
	"finrep/internal/core"
	"finrep/internal/fx"
	"finrep/internal/log"
	"finrep/internal/normalize"
	"finrep/internal/report"
	"finrep/internal/source"
	"finrep/internal/storage"
	"finrep/internal/validation"
)

func newTestService(t *testing.T) (*Service, *storage.Repository) {
	t.Helper()

	repo, err := storage.NewRepository(":memory:")
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	aliases := normalize.MustDefaults()
	rates := fx.NewTable("USD")
	rates.Add(fx.RatePoint{Currency: "EUR", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Rate: 1.10})

	engine := validation.NewEngine(aliases, repo, validation.Rules{
		Now:                 time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
		BackdateLimitDays:   365,
		FutureGraceDays:     30,
		OutlierCeilingCents: 100_000_000,
	})
	transformer := normalize.NewTransformer(aliases, rates, "USD")
	logger := log.New(log.DefaultConfig())

	return NewService(repo, engine, transformer, nil, 2, logger), repo
}

func record(src, id, date, amount, currency, category, vendor string) core.RawRecord {
	return core.RawRecord{
		Source: src,
		Fields: map[string]string{
			core.FieldTransactionID: id,
			core.FieldDate:          date,
			core.FieldAmount:        amount,
			core.FieldCurrency:      currency,
			core.FieldCategory:      category,
			core.FieldVendor:        vendor,
		},
	}
}

func TestIngestPartitionsEveryRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	records := []core.RawRecord{
		record("bank_csv", "TX-1", "2024-01-15", "1000.00", "USD", "Revenue", "Acme Inc."),
		record("bank_csv", "TX-2", "2024-01-16", "-300.00", "USD", "Rent", "Landlord LLC"),
		record("bank_csv", "TX-3", "2024-01-16", "N/A", "USD", "Rent", ""),
		record("bank_csv", "TX-4", "2024-01-17", "-50.00", "USD", "Quantum Flux", ""),
		record("bank_csv", "TX-1", "2024-01-15", "1000.00", "USD", "Revenue", "Acme Inc."),
	}

	result, err := svc.Ingest(ctx, "bank_csv", records)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if result.AcceptedCount != 2 {
		t.Errorf("accepted = %d, want 2", result.AcceptedCount)
	}
	if len(result.Quarantined) != 3 {
		t.Fatalf("quarantined = %d, want 3", len(result.Quarantined))
	}
	if got := result.AcceptedCount + result.DuplicateCount + len(result.Quarantined); got != len(records) {
		t.Errorf("partition accounts for %d of %d records", got, len(records))
	}

	rules := make(map[core.Rule]int)
	for _, q := range result.Quarantined {
		rules[q.Diagnostics[0].Rule]++
	}
	if rules[core.RuleStructural] != 1 || rules[core.RuleReferential] != 1 || rules[core.RuleDuplicate] != 1 {
		t.Errorf("quarantine rules = %v", rules)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	records := []core.RawRecord{
		record("bank_csv", "TX-1", "2024-01-15", "1000.00", "USD", "Revenue", "Acme Inc."),
		record("bank_csv", "TX-2", "2024-01-16", "-300.00", "USD", "Rent", "Landlord LLC"),
	}

	first, err := svc.Ingest(ctx, "bank_csv", records)
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	if first.AcceptedCount != 2 {
		t.Fatalf("first accepted = %d, want 2", first.AcceptedCount)
	}

	second, err := svc.Ingest(ctx, "bank_csv", records)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if second.AcceptedCount != 0 {
		t.Errorf("second accepted = %d, want 0", second.AcceptedCount)
	}
	for _, q := range second.Quarantined {
		if q.Diagnostics[0].Rule != core.RuleDuplicate {
			t.Errorf("re-ingested record quarantined as %s, want duplicate", q.Diagnostics[0].Rule)
		}
		if q.Diagnostics[0].Severity != core.SeverityWarning {
			t.Errorf("duplicate severity = %s, want warning", q.Diagnostics[0].Severity)
		}
	}

	count, err := repo.EntryCount(ctx)
	if err != nil {
		t.Fatalf("EntryCount: %v", err)
	}
	if count != 2 {
		t.Errorf("ledger size = %d after re-ingestion, want 2", count)
	}
}

func TestIngestQuarantinesMissingRateAtTransform(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// GBP has no rate in the table; the record passes screening but cannot
	// be converted.
	records := []core.RawRecord{
		record("bank_csv", "TX-1", "2024-01-15", "500.00", "GBP", "Revenue", ""),
	}

	result, err := svc.Ingest(ctx, "bank_csv", records)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.AcceptedCount != 0 {
		t.Errorf("accepted = %d, want 0", result.AcceptedCount)
	}
	if len(result.Quarantined) != 1 {
		t.Fatalf("quarantined = %d, want 1", len(result.Quarantined))
	}
	if got := result.Quarantined[0].Diagnostics[0].Rule; got != core.RuleMissingRate {
		t.Errorf("rule = %s, want %s", got, core.RuleMissingRate)
	}
}

func TestListQuarantineSurfacesBrokenRecords(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	records := []core.RawRecord{
		record("bank_csv", "TX-1", "2024-01-15", "1000.00", "USD", "Revenue", "Acme Inc."),
		record("bank_csv", "TX-2", "2024-01-16", "N/A", "USD", "Rent", ""),
	}
	if _, err := svc.Ingest(ctx, "bank_csv", records); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	period := core.MonthPeriod(2024, time.January)
	held, err := svc.ListQuarantine(ctx, &period)
	if err != nil {
		t.Fatalf("ListQuarantine: %v", err)
	}
	if len(held) != 1 {
		t.Fatalf("quarantine listing = %d records, want 1", len(held))
	}
	if got := held[0].Record.Fields[core.FieldTransactionID]; got != "TX-2" {
		t.Errorf("quarantined native id = %q, want TX-2", got)
	}
	if got := held[0].Diagnostics[0].Rule; got != core.RuleStructural {
		t.Errorf("rule = %s, want %s", got, core.RuleStructural)
	}
}

func TestIngestConvertsForeignCurrency(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	records := []core.RawRecord{
		record("erp_db", "TX-9", "2024-01-10", "-100.00", "EUR", "Marketing", "AdCo"),
	}
	result, err := svc.Ingest(ctx, "erp_db", records)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.AcceptedCount != 1 {
		t.Fatalf("accepted = %d, want 1", result.AcceptedCount)
	}

	entries, err := repo.EntriesInPeriod(ctx, core.MonthPeriod(2024, time.January))
	if err != nil {
		t.Fatalf("EntriesInPeriod: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Amount.Cents != -11000 {
		t.Errorf("converted amount = %d cents, want -11000", entries[0].Amount.Cents)
	}
}

func TestIngestThenProfitAndLoss(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	records := []core.RawRecord{
		record("bank_csv", "t1", "2024-01-05", "1000", "USD", "Revenue", ""),
		record("bank_csv", "t2", "2024-01-10", "-300", "USD", "Opex:Rent", ""),
	}
	result, err := svc.Ingest(ctx, "bank_csv", records)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.AcceptedCount != 2 || len(result.Quarantined) != 0 {
		t.Fatalf("result = %+v, want 2 accepted and none quarantined", result)
	}

	engine := report.NewEngine(repo, "USD", 0.10, normalize.MustDefaults(), log.New(log.DefaultConfig()))
	rep, err := engine.Generate(ctx, report.KindPnL, core.MonthPeriod(2024, time.January))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := map[string]int64{"Revenue": 100000, "Opex": -30000, "Net": 70000}
	for dim, cents := range want {
		found := false
		for _, l := range rep.Lines {
			if l.Dimension == dim {
				found = true
				if l.AmountCents != cents {
					t.Errorf("%s = %d, want %d", dim, l.AmountCents, cents)
				}
			}
		}
		if !found {
			t.Errorf("no %s line in %+v", dim, rep.Lines)
		}
	}
	if rep.Meta.IncludedCount != 2 || rep.Meta.QuarantinedCount != 0 {
		t.Errorf("meta = %+v, want 2 included and 0 quarantined", rep.Meta)
	}
}

type stubSource struct {
	name    string
	records []core.RawRecord
	err     error
}

func (s stubSource) Name() string { return s.name }
func (s stubSource) Fetch(ctx context.Context) ([]core.RawRecord, error) {
	return s.records, s.err
}

func TestIngestAllIsolatesFetchFailures(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	boom := errors.New("connection refused")
	sources := []source.Source{
		stubSource{name: "good", records: []core.RawRecord{
			record("good", "TX-1", "2024-01-15", "100.00", "USD", "Revenue", ""),
		}},
		stubSource{name: "bad", err: boom},
	}

	results, errs := svc.IngestAll(ctx, sources)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Source != "good" || results[0].AcceptedCount != 1 {
		t.Errorf("unexpected result: %+v", results[0])
	}
	if !errors.Is(errs["bad"], boom) {
		t.Errorf("errs[bad] = %v, want %v", errs["bad"], boom)
	}
}

type capturingPublisher struct {
	alerts    []*amqp.QuarantineAlertMessage
	summaries []*amqp.IngestCompletedMessage
}

func (p *capturingPublisher) PublishQuarantineAlert(ctx context.Context, msg *amqp.QuarantineAlertMessage) error {
	p.alerts = append(p.alerts, msg)
	return nil
}

func (p *capturingPublisher) PublishIngestCompleted(ctx context.Context, msg *amqp.IngestCompletedMessage) error {
	p.summaries = append(p.summaries, msg)
	return nil
}

func TestIngestPublishesEvents(t *testing.T) {
	svc, _ := newTestService(t)
	pub := &capturingPublisher{}
	svc.publisher = pub
	ctx := context.Background()

	records := []core.RawRecord{
		record("bank_csv", "TX-1", "2024-01-15", "1000.00", "USD", "Revenue", ""),
		record("bank_csv", "TX-2", "2024-01-16", "N/A", "USD", "Rent", ""),
	}
	if _, err := svc.Ingest(ctx, "bank_csv", records); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if len(pub.alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(pub.alerts))
	}
	if pub.alerts[0].Quarantined != 1 {
		t.Errorf("alert quarantined = %d, want 1", pub.alerts[0].Quarantined)
	}
	if len(pub.summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(pub.summaries))
	}
	if pub.summaries[0].Accepted != 1 {
		t.Errorf("summary accepted = %d, want 1", pub.summaries[0].Accepted)
	}
}

package normalize

import (
	"errors"
	"testing"
	"time"

	"finrep/internal/core"
	"finrep/internal/fx"
)

func TestResolveCategory(t *testing.T) {
	a := MustDefaults()
	cases := []struct {
		hint string
		want core.Category
		ok   bool
	}{
		{"Revenue", core.CategoryRevenue, true},
		{"revenue", core.CategoryRevenue, true},
		{"Opex:Rent", core.CategoryOpexRent, true},
		{"  rent ", core.CategoryOpexRent, true},
		{"SaaS", core.CategoryOpexSoftware, true},
		{"Professional Services", core.CategoryOpexProfessional, true},
		{"Groceries", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := a.ResolveCategory(tc.hint)
		if ok != tc.ok {
			t.Fatalf("%q: expected ok=%v, got %v", tc.hint, tc.ok, ok)
		}
		if ok && got != tc.want {
			t.Fatalf("%q: expected %q, got %q", tc.hint, tc.want, got)
		}
	}
}

func TestCanonicalVendorStability(t *testing.T) {
	a := MustDefaults()
	cases := []struct {
		left, right string
	}{
		{"Acme Inc.", "ACME INC"},
		{"Acme Inc.", "acme,  inc"},
		{"AWS / Amazon Web Services", "aws amazon web services"},
	}
	for _, tc := range cases {
		l, r := a.CanonicalVendor(tc.left), a.CanonicalVendor(tc.right)
		if l == "" || l != r {
			t.Fatalf("%q vs %q: expected one id, got %q and %q", tc.left, tc.right, l, r)
		}
	}
	if got := a.CanonicalVendor("  "); got != "" {
		t.Fatalf("blank vendor should canonicalize to empty, got %q", got)
	}
	if got := a.CanonicalVendor("Acme Inc."); got != "acme-inc" {
		t.Fatalf("expected acme-inc, got %q", got)
	}
}

func record(fields map[string]string) core.RawRecord {
	return core.RawRecord{Source: "csv:test", Fields: fields, IngestedAt: time.Now()}
}

func newTransformer() *Transformer {
	table := fx.NewTable("USD")
	table.Add(fx.RatePoint{Currency: "EUR", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Rate: 1.10})
	return NewTransformer(MustDefaults(), table, "USD")
}

func TestTransform(t *testing.T) {
	tr := newTransformer()
	entry, err := tr.Transform(record(map[string]string{
		core.FieldTransactionID: "t1",
		core.FieldDate:          "2024-01-05",
		core.FieldAmount:        "1000",
		core.FieldCategory:      "Revenue",
		core.FieldVendor:        "Acme Inc.",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.EntryID != core.EntryID("csv:test", "t1") {
		t.Fatalf("entry id must derive from source and native id")
	}
	if entry.Amount.Cents != 100000 {
		t.Fatalf("expected 100000 cents, got %d", entry.Amount.Cents)
	}
	if entry.Category != core.CategoryRevenue {
		t.Fatalf("expected Revenue, got %s", entry.Category)
	}
	if entry.Vendor != "acme-inc" {
		t.Fatalf("expected canonical vendor, got %q", entry.Vendor)
	}
	if entry.RawRef != "csv:test:t1" {
		t.Fatalf("unexpected raw ref %q", entry.RawRef)
	}
}

func TestTransformConvertsCurrency(t *testing.T) {
	tr := newTransformer()
	entry, err := tr.Transform(record(map[string]string{
		core.FieldTransactionID: "t2",
		core.FieldDate:          "2024-01-10",
		core.FieldAmount:        "-100",
		core.FieldCurrency:      "EUR",
		core.FieldCategory:      "Opex:Rent",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Amount.Cents != -11000 {
		t.Fatalf("expected -11000 cents after conversion, got %d", entry.Amount.Cents)
	}
}

func TestTransformMissingRate(t *testing.T) {
	tr := newTransformer()
	_, err := tr.Transform(record(map[string]string{
		core.FieldTransactionID: "t3",
		core.FieldDate:          "2024-01-10",
		core.FieldAmount:        "50",
		core.FieldCurrency:      "JPY",
		core.FieldCategory:      "Revenue",
	}))
	if !errors.Is(err, core.ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
}

func TestTransformIdempotentIdentity(t *testing.T) {
	tr := newTransformer()
	rec := record(map[string]string{
		core.FieldTransactionID: "t4",
		core.FieldDate:          "2024-01-10",
		core.FieldAmount:        "10",
		core.FieldCategory:      "Revenue",
	})
	a, err1 := tr.Transform(rec)
	b, err2 := tr.Transform(rec)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if a.EntryID != b.EntryID {
		t.Fatalf("transform must be deterministic: %q vs %q", a.EntryID, b.EntryID)
	}
}

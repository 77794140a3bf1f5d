package normalize

import (
	"fmt"
	"strings"

	"finrep/internal/core"
	"finrep/internal/fx"
)

// Transformer rewrites an accepted RawRecord into a canonical LedgerEntry.
// Records reaching Transform have already been screened, so structural and
// referential failures here indicate a validation/transformation mismatch;
// they still surface as errors rather than bad entries.
type Transformer struct {
	aliases           *Aliases
	rates             fx.RateProvider
	reportingCurrency string
}

func NewTransformer(aliases *Aliases, rates fx.RateProvider, reportingCurrency string) *Transformer {
	return &Transformer{
		aliases:           aliases,
		rates:             rates,
		reportingCurrency: strings.ToUpper(strings.TrimSpace(reportingCurrency)),
	}
}

// Transform produces the LedgerEntry for a raw record. The entry identity is
// a pure function of (source, native id), so re-running transformation on the
// same record always yields the same identity.
func (t *Transformer) Transform(rec core.RawRecord) (core.LedgerEntry, error) {
	nativeID := rec.NativeID()
	if nativeID == "" {
		return core.LedgerEntry{}, fmt.Errorf("%w: missing %s", core.ErrStructural, core.FieldTransactionID)
	}

	date, err := core.ParseDate(rec.Field(core.FieldDate))
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("%w: %v", core.ErrStructural, err)
	}

	cents, err := core.ParseSignedToCents(rec.Field(core.FieldAmount))
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("%w: amount %q", core.ErrStructural, rec.Field(core.FieldAmount))
	}

	currency := strings.ToUpper(rec.Field(core.FieldCurrency))
	if currency == "" {
		currency = t.reportingCurrency
	}
	if currency != t.reportingCurrency {
		rate, err := t.rates.Rate(currency, date)
		if err != nil {
			return core.LedgerEntry{}, fmt.Errorf("convert %s: %w", currency, err)
		}
		cents = fx.Convert(cents, rate)
	}

	category, ok := t.aliases.ResolveCategory(rec.Field(core.FieldCategory))
	if !ok {
		return core.LedgerEntry{}, fmt.Errorf("%w: category %q", core.ErrReferential, rec.Field(core.FieldCategory))
	}

	return core.LedgerEntry{
		EntryID:  core.EntryID(rec.Source, nativeID),
		Date:     date,
		Amount:   core.Money{Cents: cents},
		Category: category,
		Vendor:   t.aliases.CanonicalVendor(rec.Field(core.FieldVendor)),
		Source:   rec.Source,
		RawRef:   core.RawRef(rec.Source, nativeID),
	}, nil
}

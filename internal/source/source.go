// Package source adapts external systems (CSV and Excel extracts, SQL
// databases, Google Sheets) into the raw records the pipeline screens.
// Adapters only reshape rows onto the well-known field keys; they never
// validate or drop data.
package source

import (
	"context"
	"strings"
	"time"

	"finrep/internal/core"
)

// Source fetches a batch of raw records from one external system.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]core.RawRecord, error)
}

// headerAliases maps the column labels seen in real extracts onto the
// pipeline's field keys. Matching is case-insensitive on the trimmed label.
var headerAliases = map[string]string{
	"transaction id":   core.FieldTransactionID,
	"transactionid":    core.FieldTransactionID,
	"id":               core.FieldTransactionID,
	"date":             core.FieldDate,
	"transaction date": core.FieldDate,
	"amount":           core.FieldAmount,
	"currency":         core.FieldCurrency,
	"category":         core.FieldCategory,
	"type":             core.FieldCategory,
	"vendor":           core.FieldVendor,
	"vendor name":      core.FieldVendor,
	"description":      core.FieldDescription,
	"memo":             core.FieldDescription,
}

// canonicalHeader resolves a column label to a field key. Unrecognized labels
// are kept as lowercase snake_case so no source data is discarded.
func canonicalHeader(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	if canonical, ok := headerAliases[key]; ok {
		return canonical
	}
	return strings.ReplaceAll(key, " ", "_")
}

// rowToRecord zips a header row and a data row into a raw record. Short rows
// are padded with empty fields; extra cells are ignored.
func rowToRecord(sourceName string, headers, row []string, at time.Time) core.RawRecord {
	fields := make(map[string]string, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		var val string
		if i < len(row) {
			val = strings.TrimSpace(row[i])
		}
		fields[h] = val
	}
	return core.RawRecord{Source: sourceName, Fields: fields, IngestedAt: at}
}

// canonicalHeaders maps every label in a header row.
func canonicalHeaders(labels []string) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out[i] = canonicalHeader(l)
	}
	return out
}

package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finrep/internal/core"
)

// SheetsSource reads transaction rows from a Google Sheets range. The first
// row of the range is the header and is matched against the known labels.
type SheetsSource struct {
	name          string
	svc           *gsheet.Service
	spreadsheetID string
	readRange     string
}

func NewSheetsSource(name string, svc *gsheet.Service, spreadsheetID, readRange string) *SheetsSource {
	return &SheetsSource{name: name, svc: svc, spreadsheetID: spreadsheetID, readRange: readRange}
}

func (s *SheetsSource) Name() string { return s.name }

func (s *SheetsSource) Fetch(ctx context.Context) ([]core.RawRecord, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: read range %q: %w", s.name, s.readRange, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}

	headers := canonicalHeaders(cellsToStrings(resp.Values[0]))

	now := time.Now().UTC()
	var records []core.RawRecord
	for _, raw := range resp.Values[1:] {
		row := cellsToStrings(raw)
		if emptyRow(row) {
			continue
		}
		records = append(records, rowToRecord(s.name, headers, row, now))
	}
	return records, nil
}

func cellsToStrings(cells []any) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = fmt.Sprint(c)
	}
	return out
}

// NewSheetsService builds a Sheets API client from Service Account
// credentials in GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if json := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); json != "" {
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON([]byte(json)),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	}
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if file == "" {
		return nil, errors.New("missing service account credentials")
	}
	return gsheet.NewService(ctx,
		goption.WithCredentialsFile(file),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
}

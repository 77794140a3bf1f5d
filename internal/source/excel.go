package source

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"finrep/internal/core"
)

// ExcelSource reads transaction extracts from an xlsx workbook. When sheet is
// empty the first sheet in the workbook is used.
type ExcelSource struct {
	name  string
	r     io.Reader
	sheet string
}

func NewExcelSource(name string, r io.Reader, sheet string) *ExcelSource {
	return &ExcelSource{name: name, r: r, sheet: sheet}
}

func (s *ExcelSource) Name() string { return s.name }

func (s *ExcelSource) Fetch(ctx context.Context) ([]core.RawRecord, error) {
	wb, err := excelize.OpenReader(s.r)
	if err != nil {
		return nil, fmt.Errorf("%s: open workbook: %w", s.name, err)
	}
	defer wb.Close()

	sheet := s.sheet
	if sheet == "" {
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s: workbook has no sheets", s.name)
		}
		sheet = sheets[0]
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: read sheet %q: %w", s.name, sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	headers := canonicalHeaders(rows[0])

	now := time.Now().UTC()
	var records []core.RawRecord
	for _, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if emptyRow(row) {
			continue
		}
		records = append(records, rowToRecord(s.name, headers, row, now))
	}
	return records, nil
}

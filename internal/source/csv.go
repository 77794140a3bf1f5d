package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finrep/internal/core"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// CSVSource reads transaction extracts from a CSV stream. The first row is
// the header and is matched against the known column labels.
type CSVSource struct {
	name string
	r    io.Reader
}

func NewCSVSource(name string, r io.Reader) *CSVSource {
	return &CSVSource{name: name, r: r}
}

func (s *CSVSource) Name() string { return s.name }

func (s *CSVSource) Fetch(ctx context.Context) ([]core.RawRecord, error) {
	br := bufio.NewReader(s.r)
	if peeked, err := br.Peek(len(byteOrderMark)); err == nil && bytes.Equal(peeked, byteOrderMark) {
		br.Discard(len(byteOrderMark))
	}

	reader := csv.NewReader(br)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	labels, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", s.name, err)
	}
	headers := canonicalHeaders(labels)

	now := time.Now().UTC()
	var records []core.RawRecord
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", s.name, line, err)
		}
		if emptyRow(row) {
			continue
		}
		records = append(records, rowToRecord(s.name, headers, row, now))
	}
	return records, nil
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// OpenFile builds a file-backed source, dispatching on the extension. The
// returned closer owns the file handle and must be closed after Fetch.
func OpenFile(name, path string) (Source, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSVSource(name, f), f, nil
	case ".xlsx", ".xls":
		return NewExcelSource(name, f, ""), f, nil
	default:
		f.Close()
		return nil, nil, fmt.Errorf("unsupported file format %q", filepath.Ext(path))
	}
}

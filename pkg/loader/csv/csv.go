package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/OFFIS-RIT/crosscheck/pkg/loader"
)

// CSVFileLoader turns CSV tables into one line of text per row.
type CSVFileLoader struct {
	loader loader.FileLoader

	cache *loader.Cache
}

// NewCSVFileLoader creates a new CSVFileLoader reading raw files through l.
func NewCSVFileLoader(l loader.FileLoader, opts ...loader.Option) *CSVFileLoader {
	return &CSVFileLoader{
		loader: l,
		cache:  loader.ApplyOptions(opts...).Cache,
	}
}

// GetFileText retrieves and renders the CSV file at source.
func (l *CSVFileLoader) GetFileText(ctx context.Context, source string) ([]byte, error) {
	return l.cache.Load(loader.CacheKey(source), func() ([]byte, error) {
		content, err := l.loader.GetFileText(ctx, source)
		if err != nil {
			return nil, err
		}

		parsed, err := ParseCSV(content)
		if err != nil {
			return nil, fmt.Errorf("csv %s: %w", source, err)
		}
		return parsed, nil
	})
}

// ParseCSV renders every data row as "column: value" pairs separated by
// "; ", using the first non-empty row as header. Empty cells are skipped
// and malformed rows are ignored.
func ParseCSV(content []byte) ([]byte, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var header []string
	var output strings.Builder

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if isEmptyRecord(record) {
			continue
		}
		if header == nil {
			header = record
			continue
		}

		pairs := make([]string, 0, len(record))
		for i, field := range record {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			name := fmt.Sprintf("column %d", i+1)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				name = strings.TrimSpace(header[i])
			}
			pairs = append(pairs, name+": "+field)
		}
		output.WriteString(strings.Join(pairs, "; "))
		output.WriteByte('\n')
	}

	if header == nil {
		return nil, fmt.Errorf("CSV file is empty or contains no valid data")
	}
	if output.Len() == 0 {
		// header only
		return []byte(strings.Join(header, ", ") + "\n"), nil
	}
	return []byte(output.String()), nil
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

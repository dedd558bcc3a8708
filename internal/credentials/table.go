// Package credentials merges an exported user-detail table with an exported
// password-hash table into the flat record set the destination platform's
// bulk importer expects. The merge is pure file-to-file transformation: it
// never talks to either account, and its output is an artifact for operator
// review, not something this pipeline feeds back into the API.
package credentials

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Warning is a non-fatal problem found in an input table. Row numbers count
// the header as row 1, matching what an operator sees in a spreadsheet; zero
// means the warning is about the file as a whole.
type Warning struct {
	Row     int
	Message string
}

// Row is one data row with its spreadsheet line number.
type Row struct {
	Line   int
	Fields map[string]string
}

// Table is one parsed CSV input.
type Table struct {
	Columns  []string
	Rows     []Row
	Warnings []Warning
}

// HasColumn reports whether the header contains name.
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	for _, column := range t.Columns {
		if column == name {
			return true
		}
	}
	return false
}

// ParseTable reads a CSV export. Real-world exports are messy: the encoding
// is sniffed first, headers are trimmed, rows with the wrong column count
// are padded or truncated with a warning, and unparseable rows are skipped
// with a warning rather than failing the file.
func ParseTable(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	decoded, _, err := DetectAndDecode(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file: no header row")
		}
		return nil, fmt.Errorf("read header row: %w", err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(name)
	}

	table := &Table{Columns: columns}
	rowNum := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		rowNum++
		if err != nil {
			table.Warnings = append(table.Warnings, Warning{
				Row:     rowNum,
				Message: fmt.Sprintf("unparseable row: %v", err),
			})
			continue
		}

		if len(row) != len(columns) {
			if len(row) < len(columns) {
				table.Warnings = append(table.Warnings, Warning{
					Row:     rowNum,
					Message: fmt.Sprintf("row has %d columns, expected %d; padded", len(row), len(columns)),
				})
				padded := make([]string, len(columns))
				copy(padded, row)
				row = padded
			} else {
				table.Warnings = append(table.Warnings, Warning{
					Row:     rowNum,
					Message: fmt.Sprintf("row has %d columns, expected %d; extra columns dropped", len(row), len(columns)),
				})
				row = row[:len(columns)]
			}
		}

		record := make(map[string]string, len(columns))
		for i, column := range columns {
			record[column] = row[i]
		}
		table.Rows = append(table.Rows, Row{Line: rowNum, Fields: record})
	}

	return table, nil
}

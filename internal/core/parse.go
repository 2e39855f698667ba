package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// FieldDelimiter separates fields in the source data file.
const FieldDelimiter = ';'

// Record is one parsed data row: header name to trimmed cell value.
// Cells beyond the end of a short row are absent from Fields.
type Record struct {
	Line   int
	Fields map[string]string
}

// Get returns the value of the named field, or "" when the row did not reach it.
func (r Record) Get(name string) string {
	return r.Fields[name]
}

// Table is the result of parsing a data file.
type Table struct {
	Header  []string
	Records []Record

	// Skipped lists rows that could not be parsed.
	Skipped []Diagnostic

	// Bytes is the size of the parsed input.
	Bytes int64
}

// ParseTable parses ;-delimited text whose first row is the header.
//
// Blanks around a quoted field are tolerated on both sides.
// Rows the CSV reader rejects are skipped and reported in Table.Skipped
// instead of failing the parse. Rows may be shorter or longer than the
// header. Blank and whitespace-only lines are skipped. Every field is trimmed.
//
// Returns ErrEmptyResult when no data row survives.
func ParseTable(r io.Reader) (*Table, error) {
	counter := newCountingReader(r)
	cr := csv.NewReader(newQuoteSpaceTrimmingReader(NewBOMSkippingReader(counter), FieldDelimiter))
	cr.Comma = FieldDelimiter
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := readHeader(cr)
	if err != nil {
		return nil, err
	}

	table := &Table{Header: header}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				table.Skipped = append(table.Skipped, Diagnostic{
					Line:   perr.StartLine,
					Kind:   DropMalformedRow,
					Detail: perr.Err.Error(),
				})
				continue
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}

		if isEmptyRow(row) {
			continue
		}

		line, _ := cr.FieldPos(0)
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i >= len(row) {
				break
			}
			fields[name] = strings.TrimSpace(row[i])
		}
		table.Records = append(table.Records, Record{Line: line, Fields: fields})
	}

	table.Bytes = counter.BytesRead

	if len(table.Records) == 0 {
		return table, fmt.Errorf("%w: no data rows after header (%d skipped)", ErrEmptyResult, len(table.Skipped))
	}

	return table, nil
}

// readHeader reads the first non-blank row and returns its trimmed names.
func readHeader(cr *csv.Reader) ([]string, error) {
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty file", ErrEmptyResult)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: invalid csv header: %v", ErrEmptyResult, err)
		}
		if isEmptyRow(row) {
			continue
		}

		header := make([]string, len(row))
		for i, name := range row {
			header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		}
		return header, nil
	}
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

package core

import (
	"fmt"
	"strings"
)

// Source column names of the descriptive fields.
const (
	ColumnLabel      = "Libellé"
	ColumnIDBank     = "idBank"
	ColumnLastUpdate = "Dernière mise à jour"
	ColumnPeriod     = "Période"
)

// DefaultFamilyMarker is the substring a label must contain to be admitted.
const DefaultFamilyMarker = "IPAMPA"

// NormalizedRow is an admitted row: the record (without id) and its value
// candidates, in year column order.
type NormalizedRow struct {
	Record IndexRecord
	Values []YearValue
	Line   int
}

// Normalizer applies the admission filter and value parsing to parsed rows.
type Normalizer struct {
	// FamilyMarker must appear in every admitted label. Empty means
	// DefaultFamilyMarker.
	FamilyMarker string
}

func (n Normalizer) marker() string {
	if n.FamilyMarker == "" {
		return DefaultFamilyMarker
	}
	return n.FamilyMarker
}

// NormalizeRow converts one parsed record. ok is false when the row is not
// admitted; diags then explains why. Invalid value cells are dropped
// individually and reported in diags without rejecting the row.
func (n Normalizer) NormalizeRow(rec Record, years []YearColumn) (row NormalizedRow, diags []Diagnostic, ok bool) {
	label := CleanText(rec.Get(ColumnLabel))
	idBank := CleanText(rec.Get(ColumnIDBank))

	switch {
	case label == "":
		return row, []Diagnostic{{Line: rec.Line, Kind: DropMissingField, Column: ColumnLabel, Detail: "empty label"}}, false
	case idBank == "":
		return row, []Diagnostic{{Line: rec.Line, Kind: DropMissingField, Column: ColumnIDBank, Detail: "empty idBank"}}, false
	case !strings.Contains(label, n.marker()):
		return row, []Diagnostic{{
			Line:   rec.Line,
			Kind:   DropFamilyMismatch,
			Column: ColumnLabel,
			Detail: fmt.Sprintf("label does not contain %q", n.marker()),
		}}, false
	}

	row = NormalizedRow{
		Record: IndexRecord{
			Label:      label,
			IDBank:     idBank,
			LastUpdate: CleanText(rec.Get(ColumnLastUpdate)),
			Period:     CleanText(rec.Get(ColumnPeriod)),
		},
		Line: rec.Line,
	}

	for _, col := range years {
		cell := rec.Get(col.Name)
		v, state := ParseValue(cell)
		switch state {
		case CellValue:
			row.Values = append(row.Values, YearValue{Year: col.Year, Value: v})
		case CellInvalid:
			diags = append(diags, Diagnostic{
				Line:   rec.Line,
				Kind:   DropInvalidCell,
				Column: col.Name,
				Detail: fmt.Sprintf("not a number: %q", cell),
			})
		}
	}

	return row, diags, true
}

// Normalize converts every record of the table, returning the admitted rows
// in input order and the diagnostics for everything dropped.
func (n Normalizer) Normalize(records []Record, years []YearColumn) ([]NormalizedRow, []Diagnostic) {
	rows := make([]NormalizedRow, 0, len(records))
	var diags []Diagnostic
	for _, rec := range records {
		row, d, ok := n.NormalizeRow(rec, years)
		diags = append(diags, d...)
		if ok {
			rows = append(rows, row)
		}
	}
	return rows, diags
}

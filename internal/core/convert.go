package core

// convert.go provides conversion between the source's locale-formatted cells
// and numeric values, and back to the two-decimal export format.
//
// Source cells use a decimal comma ("101,5"). A lone dash means "no
// observation" and is distinct from zero. Values are parsed and formatted
// through shopspring/decimal so that the two-decimal export rounds the
// decimal text rather than its binary approximation.

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MissingValueSentinel marks a year with no observation.
const MissingValueSentinel = "-"

// ExportDecimals is the number of decimals written for each exported value.
const ExportDecimals = 2

// CellState classifies a value cell.
type CellState int

const (
	CellValue   CellState = iota // Parsed into a number
	CellAbsent                   // Empty or sentinel dash
	CellInvalid                  // Present but not a number
)

// ParseValue converts a source value cell to a number.
// Empty cells and the sentinel dash are CellAbsent; cells that do not parse
// as a finite decimal number after replacing the decimal comma are CellInvalid.
func ParseValue(cell string) (float64, CellState) {
	cell = strings.TrimSpace(cell)
	if cell == "" || cell == MissingValueSentinel {
		return 0, CellAbsent
	}

	d, err := decimal.NewFromString(strings.Replace(cell, ",", ".", 1))
	if err != nil {
		return 0, CellInvalid
	}
	v := d.InexactFloat64()
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, CellInvalid
	}
	return v, CellValue
}

// FormatValue renders v with exactly two decimals, rounding half away from zero.
// Rounding applies to the shortest decimal text of v, so 1.005 gives "1.01"
// and a value that rounds to zero is written "0.00", never "-0.00".
func FormatValue(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(ExportDecimals)
}

// CleanText strips NUL characters and surrounding whitespace from a
// descriptive field.
func CleanText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\x00", ""))
}

package core

import "fmt"

// DropKind names why a row or cell was left out of a refresh.
type DropKind string

const (
	DropMalformedRow   DropKind = "malformed_row"
	DropMissingField   DropKind = "missing_field"
	DropFamilyMismatch DropKind = "family_mismatch"
	DropInvalidCell    DropKind = "invalid_cell"
)

// Diagnostic records one dropped row or cell. Column is empty for whole-row drops.
type Diagnostic struct {
	Line   int      `json:"line"`
	Kind   DropKind `json:"kind"`
	Column string   `json:"column,omitempty"`
	Detail string   `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Column != "" {
		return fmt.Sprintf("line %d: %s in column %q: %s", d.Line, d.Kind, d.Column, d.Detail)
	}
	return fmt.Sprintf("line %d: %s: %s", d.Line, d.Kind, d.Detail)
}

// CountByKind tallies diagnostics per kind. It returns nil for no diagnostics.
func CountByKind(diags []Diagnostic) map[DropKind]int {
	if len(diags) == 0 {
		return nil
	}
	counts := make(map[DropKind]int)
	for _, d := range diags {
		counts[d.Kind]++
	}
	return counts
}

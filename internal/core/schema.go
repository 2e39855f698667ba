package core

import (
	"fmt"
	"regexp"
	"strconv"
)

// yearColumnRegex matches header names that are four-digit years.
var yearColumnRegex = regexp.MustCompile(`^\d{4}$`)

// YearColumn is a header column holding one year's values.
type YearColumn struct {
	Name string
	Year int
}

// InferYearColumns returns the year columns of header, in header order.
//
// Columns before the first year-shaped name are descriptive metadata. From
// the first year column to the end of the header, every name matching the
// four-digit pattern is a year column; anything else in that range is ignored,
// as is a repeated year.
//
// Returns ErrNoYearColumns when no name matches.
func InferYearColumns(header []string) ([]YearColumn, error) {
	start := -1
	for i, name := range header {
		if yearColumnRegex.MatchString(name) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: header has %d columns", ErrNoYearColumns, len(header))
	}

	var cols []YearColumn
	seen := make(map[int]bool)
	for _, name := range header[start:] {
		if !yearColumnRegex.MatchString(name) {
			continue
		}
		year, err := strconv.Atoi(name)
		if err != nil || seen[year] {
			continue
		}
		seen[year] = true
		cols = append(cols, YearColumn{Name: name, Year: year})
	}
	return cols, nil
}

// Years returns the integer years of cols, in order.
func Years(cols []YearColumn) []int {
	years := make([]int, len(cols))
	for i, c := range cols {
		years[i] = c.Year
	}
	return years
}

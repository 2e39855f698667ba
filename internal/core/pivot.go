package core

// pivot.go turns the long (series, year, value) dataset into the wide export
// layout: one row per series, one column per year.

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportHeader is the fixed descriptive part of the export header.
var ExportHeader = []string{"Libellé", "ID Bank", "Dernière mise à jour", "Période"}

const (
	exportDelimiter = ";"
	exportBOM       = "\ufeff"
	xlsxSheet       = "IPAMPA"
)

// FilterDataset returns the series whose label, idBank or period contains
// query, ignoring case. A blank query returns ds unchanged.
func FilterDataset(ds Dataset, query string) Dataset {
	query = strings.TrimSpace(query)
	if query == "" {
		return ds
	}
	q := strings.ToLower(query)

	out := make(Dataset, 0, len(ds))
	for _, s := range ds {
		if strings.Contains(strings.ToLower(s.Label), q) ||
			strings.Contains(strings.ToLower(s.IDBank), q) ||
			strings.Contains(strings.ToLower(s.Period), q) {
			out = append(out, s)
		}
	}
	return out
}

// YearsOf returns the ascending union of the years observed in ds.
func YearsOf(ds Dataset) []int {
	seen := make(map[int]struct{})
	for _, s := range ds {
		for _, v := range s.Values {
			seen[v.Year] = struct{}{}
		}
	}

	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// EscapeCSV quotes s when it contains the delimiter, a double quote or a
// newline, doubling inner quotes. Other values are returned as is.
func EscapeCSV(s string) string {
	if !strings.ContainsAny(s, ";\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Pivot is the wide form of a dataset.
type Pivot struct {
	Years  []int
	Series Dataset
}

// NewPivot filters ds by query and collects the year columns of what remains.
func NewPivot(ds Dataset, query string) Pivot {
	filtered := FilterDataset(ds, query)
	return Pivot{Years: YearsOf(filtered), Series: filtered}
}

// Header returns the column names: the descriptive columns followed by each year.
func (p Pivot) Header() []string {
	header := make([]string, 0, len(ExportHeader)+len(p.Years))
	header = append(header, ExportHeader...)
	for _, y := range p.Years {
		header = append(header, strconv.Itoa(y))
	}
	return header
}

// CSV renders the pivot as BOM-prefixed ;-delimited text. The header line
// ends in a newline; data rows are separated by newlines with none after the
// last row. Values carry exactly two decimals; missing years are empty.
func (p Pivot) CSV() []byte {
	var b bytes.Buffer
	b.WriteString(exportBOM)
	b.WriteString(strings.Join(p.Header(), exportDelimiter))
	b.WriteByte('\n')

	fields := make([]string, 0, len(ExportHeader)+len(p.Years))
	for i, s := range p.Series {
		if i > 0 {
			b.WriteByte('\n')
		}
		fields = append(fields[:0],
			EscapeCSV(s.Label),
			EscapeCSV(s.IDBank),
			EscapeCSV(s.LastUpdate),
			EscapeCSV(s.Period),
		)
		for _, y := range p.Years {
			if v, ok := s.ValueFor(y); ok {
				fields = append(fields, FormatValue(v))
			} else {
				fields = append(fields, "")
			}
		}
		b.WriteString(strings.Join(fields, exportDelimiter))
	}
	return b.Bytes()
}

// XLSX renders the pivot as a single-sheet workbook with the same layout as
// CSV. Values are numeric cells rounded to two decimals.
func (p Pivot) XLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return nil, err
	}

	for col, name := range p.Header() {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(xlsxSheet, cell, name); err != nil {
			return nil, err
		}
	}

	for i, s := range p.Series {
		row := i + 2
		values := []interface{}{s.Label, s.IDBank, s.LastUpdate, s.Period}
		for _, y := range p.Years {
			if v, ok := s.ValueFor(y); ok {
				values = append(values, roundValue(v))
			} else {
				values = append(values, nil)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", row, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func roundValue(v float64) float64 {
	f, _ := strconv.ParseFloat(FormatValue(v), 64)
	return f
}

// ExportFileName returns the download name for an export created at t.
func ExportFileName(t time.Time, ext string) string {
	return fmt.Sprintf("ipampa-export-%d.%s", t.UnixMilli(), ext)
}

package core

import (
	"errors"
	"strings"
	"testing"
)

func TestParseTable(t *testing.T) {
	input := "\ufeffLibellé;idBank;Dernière mise à jour;Période;2020;2021\n" +
		"IPAMPA Engrais ; 001234567 ;15/01/2024;Annuelle;101,5;-\n" +
		"\n" +
		"   ;  \n" +
		"IPAMPA Aliments;001234568\n" +
		"IPAMPA Energie;001234569;;;1;2;3;4\n"

	table, err := ParseTable(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}

	wantHeader := []string{"Libellé", "idBank", "Dernière mise à jour", "Période", "2020", "2021"}
	if strings.Join(table.Header, "|") != strings.Join(wantHeader, "|") {
		t.Errorf("Header = %q, want %q", table.Header, wantHeader)
	}

	if len(table.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(table.Records))
	}

	first := table.Records[0]
	if got := first.Get("Libellé"); got != "IPAMPA Engrais" {
		t.Errorf("label = %q, want trimmed value", got)
	}
	if got := first.Get("idBank"); got != "001234567" {
		t.Errorf("idBank = %q, want 001234567", got)
	}
	if got := first.Get("2021"); got != "-" {
		t.Errorf("2021 = %q, want -", got)
	}
	if first.Line != 2 {
		t.Errorf("Line = %d, want 2", first.Line)
	}

	short := table.Records[1]
	if _, ok := short.Fields["2020"]; ok {
		t.Error("short row should not carry missing trailing fields")
	}
	if short.Line != 5 {
		t.Errorf("short row Line = %d, want 5", short.Line)
	}

	long := table.Records[2]
	if len(long.Fields) != len(wantHeader) {
		t.Errorf("long row has %d fields, want %d", len(long.Fields), len(wantHeader))
	}

	if table.Bytes != int64(len(input)) {
		t.Errorf("Bytes = %d, want %d", table.Bytes, len(input))
	}
}

func TestParseTable_SkipsMalformedRows(t *testing.T) {
	input := "Libellé;idBank;2020\n" +
		"IPAMPA A;1;100\n" +
		"IPAMPA \"broken;2;100\n"

	table, err := ParseTable(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	if len(table.Records) != 1 {
		t.Errorf("got %d records, want 1", len(table.Records))
	}
	if len(table.Skipped) != 1 {
		t.Fatalf("got %d skipped, want 1", len(table.Skipped))
	}
	if table.Skipped[0].Kind != DropMalformedRow {
		t.Errorf("Skipped kind = %q, want %q", table.Skipped[0].Kind, DropMalformedRow)
	}
	if table.Skipped[0].Line != 3 {
		t.Errorf("Skipped line = %d, want 3", table.Skipped[0].Line)
	}
}

func TestParseTable_BlanksAroundQuotedFields(t *testing.T) {
	input := "\"Libellé\" ; \"idBank\";\"2020\" \n" +
		"\"IPAMPA A\";\"001\";\"100,5\"\n" +
		"\"IPAMPA B\"; \"002\";\"101\"\n" +
		"\"IPAMPA C\" ;\"003\" ; \"102\"  \r\n"

	table, err := ParseTable(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	if len(table.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", table.Skipped)
	}

	wantHeader := []string{"Libellé", "idBank", "2020"}
	if strings.Join(table.Header, "|") != strings.Join(wantHeader, "|") {
		t.Errorf("Header = %q, want %q", table.Header, wantHeader)
	}

	want := []struct {
		label, idBank, value string
		line                 int
	}{
		{"IPAMPA A", "001", "100,5", 2},
		{"IPAMPA B", "002", "101", 3},
		{"IPAMPA C", "003", "102", 4},
	}
	if len(table.Records) != len(want) {
		t.Fatalf("got %d records, want %d", len(table.Records), len(want))
	}
	for i, w := range want {
		rec := table.Records[i]
		if rec.Get("Libellé") != w.label || rec.Get("idBank") != w.idBank || rec.Get("2020") != w.value {
			t.Errorf("record %d = %v, want %s/%s/%s", i, rec.Fields, w.label, w.idBank, w.value)
		}
		if rec.Line != w.line {
			t.Errorf("record %d Line = %d, want %d", i, rec.Line, w.line)
		}
	}

	if table.Bytes != int64(len(input)) {
		t.Errorf("Bytes = %d, want %d", table.Bytes, len(input))
	}
}

func TestParseTable_Empty(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty input", input: ""},
		{name: "only BOM", input: "\ufeff"},
		{name: "header only", input: "Libellé;idBank;2020\n"},
		{name: "header and blank lines", input: "Libellé;idBank;2020\n\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable(strings.NewReader(tt.input))
			if !errors.Is(err, ErrEmptyResult) {
				t.Errorf("ParseTable() error = %v, want ErrEmptyResult", err)
			}
		})
	}
}

func TestIsEmptyRow(t *testing.T) {
	tests := []struct {
		name string
		row  []string
		want bool
	}{
		{name: "empty slice", row: []string{}, want: true},
		{name: "empty strings", row: []string{"", "", ""}, want: true},
		{name: "whitespace only", row: []string{"  ", "\t"}, want: true},
		{name: "one value", row: []string{"", "x"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isEmptyRow(tt.row); got != tt.want {
				t.Errorf("isEmptyRow(%q) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}

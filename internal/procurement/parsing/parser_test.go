package parsing

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestParseCSVBasic(t *testing.T) {
	csvData := `Part Number,Description,Quantity,Unit,Reference
R-1001,Resistor 10K Ohm,100,EA,R1-R100
C-2002,"Capacitor, 0.1uF",50,EA,C1-C50
M-3003,M3 Screw,,PCS,
`
	items, err := Parse("bom.csv", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}

	first := items[0]
	if first.LineNumber != 1 {
		t.Errorf("Expected line number 1, got %d", first.LineNumber)
	}
	if first.PartNumber != "R-1001" {
		t.Errorf("Expected part number R-1001, got %q", first.PartNumber)
	}
	if first.Description != "Resistor 10K Ohm" {
		t.Errorf("Expected description, got %q", first.Description)
	}
	if !first.Quantity.Equal(mustDecimal(t, "100")) {
		t.Errorf("Expected quantity 100, got %s", first.Quantity)
	}
	if first.Reference != "R1-R100" {
		t.Errorf("Expected reference R1-R100, got %q", first.Reference)
	}

	// Quoted comma stays inside the field
	if items[1].Description != "Capacitor, 0.1uF" {
		t.Errorf("Expected quoted description, got %q", items[1].Description)
	}

	// Missing quantity defaults to 1
	if !items[2].Quantity.Equal(mustDecimal(t, "1")) {
		t.Errorf("Expected default quantity 1, got %s", items[2].Quantity)
	}
	if items[2].Unit != "PCS" {
		t.Errorf("Expected unit PCS, got %q", items[2].Unit)
	}
}

func TestParseCSVHeaderNotOnFirstRow(t *testing.T) {
	csvData := `ACME Corp BOM Export
Generated 2026-01-15

PN,Description,Qty
X-100,Widget,5
`
	items, err := Parse("export.csv", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].PartNumber != "X-100" {
		t.Errorf("Expected X-100, got %q", items[0].PartNumber)
	}
	// Unit column absent defaults to EA
	if items[0].Unit != "EA" {
		t.Errorf("Expected default unit EA, got %q", items[0].Unit)
	}
}

func TestParseCSVUTF8BOM(t *testing.T) {
	csvData := "\xEF\xBB\xBFPart Number,Qty\nA-1,2\n"
	items, err := Parse("bom.csv", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if items[0].PartNumber != "A-1" {
		t.Errorf("Expected A-1 after BOM strip, got %q", items[0].PartNumber)
	}
}

func TestParseCSVSkipsBlankAndPartialRows(t *testing.T) {
	csvData := `Part Number,Description,Qty
A-1,First,1

,,3
B-2,Second,2
`
	items, err := Parse("bom.csv", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	// Line numbers stay dense across skipped rows
	if items[1].LineNumber != 2 {
		t.Errorf("Expected line number 2, got %d", items[1].LineNumber)
	}
}

func TestParseCSVInvalidQuantity(t *testing.T) {
	csvData := `Part Number,Qty
A-1,abc
`
	_, err := Parse("bom.csv", strings.NewReader(csvData))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ParseError, got %v", err)
	}
	if perr.Line != 2 {
		t.Errorf("Expected error at line 2, got %d", perr.Line)
	}
}

func TestParseCSVNegativeQuantity(t *testing.T) {
	csvData := `Part Number,Qty
A-1,-5
`
	_, err := Parse("bom.csv", strings.NewReader(csvData))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ParseError, got %v", err)
	}
	if !strings.Contains(perr.Reason, "negative") {
		t.Errorf("Expected negative quantity error, got %q", perr.Reason)
	}
}

func TestParseCSVNoHeader(t *testing.T) {
	csvData := "foo,bar\n1,2\n"
	_, err := Parse("bom.csv", strings.NewReader(csvData))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ParseError, got %v", err)
	}
}

func TestParseUnsupportedFormat(t *testing.T) {
	_, err := Parse("bom.pdf", strings.NewReader("data"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestParseExcel(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Part Number", "Description", "Quantity", "Unit"},
		{"R-1001", "Resistor 10K", 100, "EA"},
		{"C-2002", "Capacitor 0.1uF", 50, "EA"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write workbook: %v", err)
	}

	items, err := Parse("bom.xlsx", &buf)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].PartNumber != "R-1001" {
		t.Errorf("Expected R-1001, got %q", items[0].PartNumber)
	}
	if !items[1].Quantity.Equal(mustDecimal(t, "50")) {
		t.Errorf("Expected quantity 50, got %s", items[1].Quantity)
	}
}

func TestParseExcelCorrupt(t *testing.T) {
	_, err := Parse("bom.xlsx", strings.NewReader("not a workbook"))
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected ParseError, got %v", err)
	}
}

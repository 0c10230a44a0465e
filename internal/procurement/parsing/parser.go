package parsing

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat 不支持的文件格式
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ParseError 文件内容无法解析（含行号上下文）
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("parse error: %s", e.Reason)
}

// RawLineItem 解析出的BOM原始行
type RawLineItem struct {
	LineNumber  int
	PartNumber  string
	Description string
	Quantity    decimal.Decimal
	Unit        string
	Reference   string
}

// 列名候选（小写比对）
var (
	partNumberHeaders  = []string{"part number", "part_number", "part no", "part no.", "partnumber", "pn", "mpn", "p/n", "item number"}
	descriptionHeaders = []string{"description", "desc", "part description", "item description", "name"}
	quantityHeaders    = []string{"quantity", "qty", "qty.", "amount", "count"}
	unitHeaders        = []string{"unit", "uom", "u/m", "units"}
	referenceHeaders   = []string{"reference", "ref", "ref des", "reference designator", "refdes"}
)

// Parse 按文件扩展名解析BOM，返回行号升序的原始行
func Parse(filename string, r io.Reader) ([]RawLineItem, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return parseExcel(r)
	case ".csv":
		return parseCSV(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

func parseExcel(r io.Reader) ([]RawLineItem, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("open workbook: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Reason: "workbook has no sheets"}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("read sheet %s: %v", sheets[0], err)}
	}
	return parseRows(rows)
}

func parseCSV(r io.Reader) ([]RawLineItem, error) {
	// 去BOM头，容忍不等长行
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("read file: %v", err)}
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("read csv: %v", err)}
	}
	return parseRows(rows)
}

// parseRows 定位表头行后逐行提取，跳过空行
func parseRows(rows [][]string) ([]RawLineItem, error) {
	headerIdx, cols := locateHeader(rows)
	if headerIdx < 0 {
		return nil, &ParseError{Reason: "header row not found: need part number or description column"}
	}

	var items []RawLineItem
	line := 0
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		if isBlankRow(row) {
			continue
		}
		pn := cellAt(row, cols.partNumber)
		desc := cellAt(row, cols.description)
		if pn == "" && desc == "" {
			continue
		}

		qty := decimal.NewFromInt(1)
		if raw := cellAt(row, cols.quantity); raw != "" {
			q, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
			if err != nil {
				return nil, &ParseError{Line: i + 1, Reason: fmt.Sprintf("invalid quantity %q", raw)}
			}
			if q.IsNegative() {
				return nil, &ParseError{Line: i + 1, Reason: fmt.Sprintf("negative quantity %q", raw)}
			}
			qty = q
		}

		unit := cellAt(row, cols.unit)
		if unit == "" {
			unit = "EA"
		}

		line++
		items = append(items, RawLineItem{
			LineNumber:  line,
			PartNumber:  pn,
			Description: desc,
			Quantity:    qty,
			Unit:        unit,
			Reference:   cellAt(row, cols.reference),
		})
	}
	if len(items) == 0 {
		return nil, &ParseError{Reason: "no line items found"}
	}
	return items, nil
}

type columnMap struct {
	partNumber  int
	description int
	quantity    int
	unit        int
	reference   int
}

// locateHeader 在前20行内寻找含零件号或描述列的表头
func locateHeader(rows [][]string) (int, columnMap) {
	limit := len(rows)
	if limit > 20 {
		limit = 20
	}
	for i := 0; i < limit; i++ {
		cols := columnMap{
			partNumber:  matchColumn(rows[i], partNumberHeaders),
			description: matchColumn(rows[i], descriptionHeaders),
			quantity:    matchColumn(rows[i], quantityHeaders),
			unit:        matchColumn(rows[i], unitHeaders),
			reference:   matchColumn(rows[i], referenceHeaders),
		}
		if cols.partNumber >= 0 || cols.description >= 0 {
			return i, cols
		}
	}
	return -1, columnMap{}
}

func matchColumn(row []string, candidates []string) int {
	for idx, cell := range row {
		name := strings.ToLower(strings.TrimSpace(cell))
		for _, c := range candidates {
			if name == c {
				return idx
			}
		}
	}
	return -1
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

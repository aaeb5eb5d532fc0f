// Package importer turns tabular phone inventory (CSV or XLSX) into
// canonical items. Parsing and row normalization are pure; batch policy
// (abort vs skip on a bad row) belongs to the caller.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/refurbly/listing-engine/internal/model"
)

// ErrUnsupportedFormat is returned for uploads that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("importer: only CSV and XLSX files are supported")

// Row error codes. These surface verbatim in import reports.
const (
	CodeMissingField     = "missing_required_field"
	CodeInvalidCondition = "invalid_condition"
	CodeInvalidNumber    = "invalid_number"
)

// RowError describes why a single row was rejected. Row numbers match the
// source file (header is row 1).
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s (%s)", e.Row, e.Message, e.Code)
}

func missingField(row int, field string) *RowError {
	return &RowError{
		Row:     row,
		Field:   field,
		Code:    CodeMissingField,
		Message: fmt.Sprintf("required field %q is missing or blank", field),
	}
}

func invalidNumber(row int, field, msg string) *RowError {
	return &RowError{Row: row, Field: field, Code: CodeInvalidNumber, Message: msg}
}

// NormalizeRow validates one raw string-keyed row and builds the item fields
// from it. It never partially succeeds: the result is either a fully
// normalized item or a RowError naming the first offending field.
//
// brand, model, condition, base_net (alias base_price) and stock_qty are
// required columns. A blank condition value defaults to Good; any other value
// must be a valid grade. Numeric fields fail loudly instead of coercing to
// zero. The returned item carries no ID, prices or timestamps; the caller
// assigns those.
func NormalizeRow(fields map[string]string, rowIndex int) (*model.Item, *RowError) {
	brand := strings.TrimSpace(fields["brand"])
	if brand == "" {
		return nil, missingField(rowIndex, "brand")
	}
	modelName := strings.TrimSpace(fields["model"])
	if modelName == "" {
		return nil, missingField(rowIndex, "model")
	}

	rawCond, ok := fields["condition"]
	if !ok {
		return nil, missingField(rowIndex, "condition")
	}
	grade := model.GradeGood
	if s := strings.TrimSpace(rawCond); s != "" {
		g, err := model.ParseGrade(s)
		if err != nil {
			return nil, &RowError{
				Row:     rowIndex,
				Field:   "condition",
				Code:    CodeInvalidCondition,
				Message: fmt.Sprintf("unknown condition grade %q", s),
			}
		}
		grade = g
	}

	rawNet, ok := fields["base_net"]
	if !ok {
		rawNet, ok = fields["base_price"]
	}
	rawNet = strings.TrimSpace(rawNet)
	if !ok || rawNet == "" {
		return nil, missingField(rowIndex, "base_net")
	}
	baseNet, err := decimal.NewFromString(rawNet)
	if err != nil {
		return nil, invalidNumber(rowIndex, "base_net", fmt.Sprintf("cannot parse %q as an amount", rawNet))
	}
	if !baseNet.IsPositive() {
		return nil, invalidNumber(rowIndex, "base_net", fmt.Sprintf("base_net must be positive, got %s", baseNet))
	}

	rawQty, ok := fields["stock_qty"]
	rawQty = strings.TrimSpace(rawQty)
	if !ok || rawQty == "" {
		return nil, missingField(rowIndex, "stock_qty")
	}
	qty, err := strconv.Atoi(rawQty)
	if err != nil {
		return nil, invalidNumber(rowIndex, "stock_qty", fmt.Sprintf("cannot parse %q as a whole number", rawQty))
	}
	if qty < 0 {
		return nil, invalidNumber(rowIndex, "stock_qty", fmt.Sprintf("stock_qty must not be negative, got %d", qty))
	}

	cost := decimal.Zero
	if raw := strings.TrimSpace(fields["cost_price"]); raw != "" {
		c, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, invalidNumber(rowIndex, "cost_price", fmt.Sprintf("cannot parse %q as an amount", raw))
		}
		if c.IsNegative() {
			return nil, invalidNumber(rowIndex, "cost_price", fmt.Sprintf("cost_price must not be negative, got %s", c))
		}
		cost = c
	}

	var tags []string
	for _, t := range strings.Split(fields["tags"], ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	return &model.Item{
		Brand:        brand,
		Model:        modelName,
		Storage:      strings.TrimSpace(fields["storage"]),
		Color:        strings.TrimSpace(fields["color"]),
		Condition:    grade,
		BaseNet:      baseNet,
		CostPrice:    cost,
		StockQty:     qty,
		Discontinued: isTruthy(fields["discontinued"]),
		Tags:         tags,
	}, nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// ParseFile dispatches on the filename extension.
func ParseFile(r io.Reader, filename string) ([]map[string]string, error) {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".csv"):
		return ParseCSV(r)
	case strings.HasSuffix(name, ".xlsx"):
		return ParseXLSX(r)
	}
	return nil, ErrUnsupportedFormat
}

// ParseCSV reads a CSV stream into string-keyed rows. Headers are lowercased
// and trimmed; each row carries its 1-based source line under "_row".
func ParseCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("importer: read CSV header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.ToLower(headers[i]))
	}

	var rows []map[string]string
	lineNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("importer: read CSV line %d: %w", lineNum+1, err)
		}
		row := make(map[string]string, len(headers)+1)
		for i, value := range record {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(lineNum + 1)
		rows = append(rows, row)
		lineNum++
	}
	return rows, nil
}

// ParseXLSX reads the first sheet of an Excel workbook into string-keyed
// rows, with the same header and "_row" conventions as ParseCSV.
func ParseXLSX(r io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("importer: open XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("importer: no sheets found in XLSX file")
	}
	excelRows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("importer: read sheet %q: %w", sheets[0], err)
	}
	if len(excelRows) < 2 {
		return nil, errors.New("importer: file needs a header row and at least one data row")
	}

	headers := excelRows[0]
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.ToLower(headers[i]))
	}

	rows := make([]map[string]string, 0, len(excelRows)-1)
	for rowIdx, excelRow := range excelRows[1:] {
		row := make(map[string]string, len(headers)+1)
		for i, value := range excelRow {
			if i < len(headers) {
				row[headers[i]] = strings.TrimSpace(value)
			}
		}
		row["_row"] = strconv.Itoa(rowIdx + 2)
		rows = append(rows, row)
	}
	return rows, nil
}

package importer

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/refurbly/listing-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func validRow() map[string]string {
	return map[string]string{
		"brand":        "Samsung",
		"model":        "Galaxy S21",
		"storage":      "128GB",
		"color":        "Phantom Gray",
		"condition":    "Good",
		"base_net":     "100",
		"cost_price":   "80",
		"stock_qty":    "4",
		"tags":         "warranty, promo",
		"discontinued": "no",
	}
}

func TestNormalizeRow_Valid(t *testing.T) {
	item, rerr := NormalizeRow(validRow(), 2)
	if rerr != nil {
		t.Fatalf("unexpected row error: %v", rerr)
	}
	if item.Brand != "Samsung" || item.Model != "Galaxy S21" {
		t.Errorf("brand/model = %q/%q", item.Brand, item.Model)
	}
	if item.Storage != "128GB" || item.Color != "Phantom Gray" {
		t.Errorf("storage/color = %q/%q", item.Storage, item.Color)
	}
	if item.Condition != model.GradeGood {
		t.Errorf("condition = %q, want Good", item.Condition)
	}
	if !item.BaseNet.Equal(d(100)) {
		t.Errorf("base net = %s, want 100", item.BaseNet)
	}
	if !item.CostPrice.Equal(d(80)) {
		t.Errorf("cost price = %s, want 80", item.CostPrice)
	}
	if item.StockQty != 4 {
		t.Errorf("stock qty = %d, want 4", item.StockQty)
	}
	if item.Discontinued {
		t.Error("item should not be discontinued")
	}
	if len(item.Tags) != 2 || item.Tags[0] != "warranty" || item.Tags[1] != "promo" {
		t.Errorf("tags = %v, want [warranty promo]", item.Tags)
	}
	if item.ID != "" || !item.CreatedAt.IsZero() {
		t.Error("normalizer must not assign identity or timestamps")
	}
}

func TestNormalizeRow_BasePriceAlias(t *testing.T) {
	row := validRow()
	delete(row, "base_net")
	row["base_price"] = "250.50"

	item, rerr := NormalizeRow(row, 2)
	if rerr != nil {
		t.Fatalf("unexpected row error: %v", rerr)
	}
	if !item.BaseNet.Equal(d(250.50)) {
		t.Errorf("base net = %s, want 250.5", item.BaseNet)
	}
}

func TestNormalizeRow_BlankConditionDefaultsToGood(t *testing.T) {
	row := validRow()
	row["condition"] = "   "

	item, rerr := NormalizeRow(row, 2)
	if rerr != nil {
		t.Fatalf("unexpected row error: %v", rerr)
	}
	if item.Condition != model.GradeGood {
		t.Errorf("condition = %q, want Good", item.Condition)
	}
}

func TestNormalizeRow_MissingRequiredFields(t *testing.T) {
	cases := []struct {
		name      string
		mutate    func(map[string]string)
		wantField string
	}{
		{"blank brand", func(r map[string]string) { r["brand"] = "  " }, "brand"},
		{"absent model", func(r map[string]string) { delete(r, "model") }, "model"},
		{"absent condition column", func(r map[string]string) { delete(r, "condition") }, "condition"},
		{"blank base_net", func(r map[string]string) { r["base_net"] = "" }, "base_net"},
		{"absent base_net and alias", func(r map[string]string) { delete(r, "base_net") }, "base_net"},
		{"blank stock_qty", func(r map[string]string) { r["stock_qty"] = "" }, "stock_qty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := validRow()
			tc.mutate(row)

			item, rerr := NormalizeRow(row, 5)
			if item != nil || rerr == nil {
				t.Fatalf("expected row error, got item=%v err=%v", item, rerr)
			}
			if rerr.Code != CodeMissingField {
				t.Errorf("code = %q, want %q", rerr.Code, CodeMissingField)
			}
			if rerr.Field != tc.wantField {
				t.Errorf("field = %q, want %q", rerr.Field, tc.wantField)
			}
			if rerr.Row != 5 {
				t.Errorf("row = %d, want 5", rerr.Row)
			}
		})
	}
}

func TestNormalizeRow_InvalidCondition(t *testing.T) {
	row := validRow()
	row["condition"] = "Mint"

	_, rerr := NormalizeRow(row, 3)
	if rerr == nil {
		t.Fatal("expected row error for unknown grade")
	}
	if rerr.Code != CodeInvalidCondition {
		t.Errorf("code = %q, want %q", rerr.Code, CodeInvalidCondition)
	}
	if !strings.Contains(rerr.Message, "Mint") {
		t.Errorf("message %q should name the bad grade", rerr.Message)
	}
}

func TestNormalizeRow_InvalidNumbers(t *testing.T) {
	cases := []struct {
		name      string
		field     string
		value     string
		wantField string
	}{
		{"non-numeric base_net", "base_net", "abc", "base_net"},
		{"zero base_net", "base_net", "0", "base_net"},
		{"negative base_net", "base_net", "-5", "base_net"},
		{"non-numeric stock_qty", "stock_qty", "two", "stock_qty"},
		{"fractional stock_qty", "stock_qty", "2.5", "stock_qty"},
		{"negative stock_qty", "stock_qty", "-1", "stock_qty"},
		{"non-numeric cost_price", "cost_price", "n/a", "cost_price"},
		{"negative cost_price", "cost_price", "-80", "cost_price"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := validRow()
			row[tc.field] = tc.value

			_, rerr := NormalizeRow(row, 4)
			if rerr == nil {
				t.Fatal("expected row error")
			}
			if rerr.Code != CodeInvalidNumber {
				t.Errorf("code = %q, want %q", rerr.Code, CodeInvalidNumber)
			}
			if rerr.Field != tc.wantField {
				t.Errorf("field = %q, want %q", rerr.Field, tc.wantField)
			}
		})
	}
}

func TestNormalizeRow_DiscontinuedTruthyTokens(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"YES", true},
		{"  yes  ", true},
		{"0", false},
		{"no", false},
		{"", false},
		{"maybe", false},
	}
	for _, tc := range cases {
		row := validRow()
		row["discontinued"] = tc.value

		item, rerr := NormalizeRow(row, 2)
		if rerr != nil {
			t.Fatalf("value %q: unexpected row error: %v", tc.value, rerr)
		}
		if item.Discontinued != tc.want {
			t.Errorf("value %q: discontinued = %v, want %v", tc.value, item.Discontinued, tc.want)
		}
	}
}

func TestNormalizeRow_TagsSplitAndTrimmed(t *testing.T) {
	row := validRow()
	row["tags"] = " warranty , reserved_b2b ,, promo "

	item, rerr := NormalizeRow(row, 2)
	if rerr != nil {
		t.Fatalf("unexpected row error: %v", rerr)
	}
	want := []string{"warranty", "reserved_b2b", "promo"}
	if len(item.Tags) != len(want) {
		t.Fatalf("tags = %v, want %v", item.Tags, want)
	}
	for i := range want {
		if item.Tags[i] != want[i] {
			t.Errorf("tags[%d] = %q, want %q", i, item.Tags[i], want[i])
		}
	}
}

func TestParseCSV(t *testing.T) {
	csvData := "Brand,MODEL,condition,base_net,stock_qty\n" +
		" Apple ,iPhone 12,Good,150,3\n" +
		"Samsung,Galaxy S21,,100,0\n"

	rows, err := ParseCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["brand"] != "Apple" {
		t.Errorf("headers should be lowercased and values trimmed, got brand=%q", rows[0]["brand"])
	}
	if rows[0]["_row"] != "2" || rows[1]["_row"] != "3" {
		t.Errorf("_row = %q/%q, want 2/3", rows[0]["_row"], rows[1]["_row"])
	}
	if rows[1]["condition"] != "" {
		t.Errorf("blank cell should stay blank, got %q", rows[1]["condition"])
	}
}

func TestParseCSV_RaggedRows(t *testing.T) {
	csvData := "brand,model,condition,base_net,stock_qty\nApple,iPhone 12,Good,150\n"

	rows, err := ParseCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if _, ok := rows[0]["stock_qty"]; ok {
		t.Error("short row must not invent a stock_qty cell")
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	header := []interface{}{"Brand", "Model", "Condition", "base_net", "stock_qty"}
	if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	data := []interface{}{"Apple", "iPhone 12", "New", 150, 3}
	if err := f.SetSheetRow("Sheet1", "A2", &data); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	rows, perr := ParseXLSX(buf)
	if perr != nil {
		t.Fatalf("ParseXLSX: %v", perr)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["brand"] != "Apple" || rows[0]["condition"] != "New" {
		t.Errorf("row = %v", rows[0])
	}
	if rows[0]["_row"] != "2" {
		t.Errorf("_row = %q, want 2", rows[0]["_row"])
	}
}

func TestParseXLSX_HeaderOnly(t *testing.T) {
	f := excelize.NewFile()
	header := []interface{}{"brand", "model"}
	if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
		t.Fatalf("SetSheetRow: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	if _, perr := ParseXLSX(buf); perr == nil {
		t.Fatal("expected error for a file with no data rows")
	}
}

func TestParseFile_DispatchAndUnsupported(t *testing.T) {
	csvData := "brand,model,condition,base_net,stock_qty\nApple,iPhone 12,Good,150,3\n"

	rows, err := ParseFile(strings.NewReader(csvData), "PHONES.CSV")
	if err != nil {
		t.Fatalf("ParseFile csv: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want 1", len(rows))
	}

	_, err = ParseFile(strings.NewReader("x"), "phones.pdf")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

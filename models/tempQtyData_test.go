package models

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseTempQtyDataEmptyPayload(t *testing.T) {
	for _, raw := range []string{"", "   ", "null"} {
		rows, err := ParseTempQtyData(raw)
		if err != nil {
			t.Errorf("ParseTempQtyData(%q): %v", raw, err)
			continue
		}
		if len(rows) != 0 {
			t.Errorf("ParseTempQtyData(%q) = %d rows, want empty snapshot", raw, len(rows))
		}
	}
}

func TestParseTempQtyDataValidPayload(t *testing.T) {
	raw := `[
		{"material_id": 10, "batch_id": "B-1", "location_id": "BIN-A", "gd_quantity": "2.5"},
		{"material_id": 20, "batch_id": "", "location_id": "BIN-B", "gd_quantity": "4"}
	]`
	rows, err := ParseTempQtyData(raw)
	if err != nil {
		t.Fatalf("ParseTempQtyData: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].MaterialId != 10 || rows[0].BatchId != "B-1" || rows[0].LocationId != "BIN-A" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if !rows[0].GdQuantity.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("row 0 quantity = %s, want 2.5", rows[0].GdQuantity)
	}
}

func TestParseTempQtyDataRejectsInvalidRows(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		wantField string
	}{
		{"missing material", `[{"batch_id": "", "location_id": "BIN-A", "gd_quantity": "1"}]`, "MaterialId"},
		{"missing location", `[{"material_id": 10, "gd_quantity": "1"}]`, "LocationId"},
		{"malformed json", `[{"material_id": 10,`, ""},
	}
	for _, tc := range cases {
		_, err := ParseTempQtyData(tc.raw)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if tc.wantField != "" && !strings.Contains(err.Error(), tc.wantField) {
			t.Errorf("%s: error %q does not name field %s", tc.name, err, tc.wantField)
		}
	}
}

func TestTempQtyRowKeyNormalizesBatchAndLocation(t *testing.T) {
	row := TempQtyRow{MaterialId: 10, BatchId: "  ", LocationId: " BIN-A "}
	key := row.Key()
	if key.BatchId != "" {
		t.Errorf("batch = %q, want empty after normalization", key.BatchId)
	}
	if key.BinLocation != "BIN-A" {
		t.Errorf("bin = %q, want trimmed", key.BinLocation)
	}
}

func TestSnapshotKeysCollapsesDuplicates(t *testing.T) {
	rows := []TempQtyRow{
		{MaterialId: 10, BatchId: "B-1", LocationId: "BIN-A"},
		{MaterialId: 10, BatchId: " B-1 ", LocationId: "BIN-A"},
		{MaterialId: 20, BatchId: "", LocationId: "BIN-B"},
	}
	keys := SnapshotKeys(rows)
	if len(keys) != 2 {
		t.Errorf("len(keys) = %d, want 2 distinct keys", len(keys))
	}
	if !keys[StockKey{MaterialId: 10, BatchId: "B-1", BinLocation: "BIN-A"}] {
		t.Error("normalized batch key missing from snapshot set")
	}
}

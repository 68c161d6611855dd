package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var tempQtyValidate = validator.New()

// TempQtyRow is one entry of a demand line's temp_qty_data snapshot: the
// bin/batch allocation the document currently intends to consume. The engine
// treats the snapshot as current truth when diffing against the ledger.
type TempQtyRow struct {
	MaterialId int             `json:"material_id" validate:"required,gt=0"`
	BatchId    string          `json:"batch_id"`
	LocationId string          `json:"location_id" validate:"required"`
	GdQuantity decimal.Decimal `json:"gd_quantity"`
}

func (r TempQtyRow) Key() StockKey {
	return StockKey{
		MaterialId:  r.MaterialId,
		BatchId:     NormalizeBatch(r.BatchId),
		BinLocation: strings.TrimSpace(r.LocationId),
	}
}

// ParseTempQtyData decodes a temp_qty_data JSON payload. An empty payload is a
// valid empty snapshot (the document no longer claims any stock).
func ParseTempQtyData(raw string) ([]TempQtyRow, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return []TempQtyRow{}, nil
	}
	var rows []TempQtyRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, err
	}
	for i := range rows {
		if err := tempQtyValidate.Struct(&rows[i]); err != nil {
			return nil, fmt.Errorf("temp_qty_data row %d invalid: %v", i, utils.ProcessValidationErrors(err))
		}
	}
	return rows, nil
}

// SnapshotKeys collapses a snapshot into its set of stock keys.
func SnapshotKeys(rows []TempQtyRow) map[StockKey]bool {
	keys := make(map[StockKey]bool, len(rows))
	for _, r := range rows {
		keys[r.Key()] = true
	}
	return keys
}

package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"github.com/shopspring/decimal"
)

// RowValidation is the outcome of the quantity guard for one snapshot row.
type RowValidation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// ValidationResultMap maps row index to its guard outcome. The map is scoped
// to one submission attempt and passed through the call chain; nothing here is
// shared across submissions.
type ValidationResultMap map[int]RowValidation

func (m ValidationResultMap) AllValid() bool {
	for _, r := range m {
		if !r.Valid {
			return false
		}
	}
	return true
}

// AvailableLookup returns unrestricted + reserved for a stock key. Backed by
// models.GetAvailableByKey in production.
type AvailableLookup func(key models.StockKey) (decimal.Decimal, error)

// ValidateDeliveredQuantities runs the quantity guards over a delivery
// snapshot. Insufficient balance is a user-facing validation message, never a
// ledger mutation: callers must not post any row while the map holds a
// failure.
func ValidateDeliveredQuantities(rows []models.TempQtyRow, available AvailableLookup) (ValidationResultMap, error) {
	results := make(ValidationResultMap, len(rows))
	for i, row := range rows {
		qty := row.GdQuantity
		if qty.LessThanOrEqual(decimal.Zero) {
			results[i] = RowValidation{Valid: false, Message: "Quantity must be greater than 0"}
			continue
		}

		have, err := available(row.Key())
		if err != nil {
			return nil, err
		}
		if qty.GreaterThan(have) {
			results[i] = RowValidation{
				Valid: false,
				Message: fmt.Sprintf("Quantity %s exceeds available stock %s for material %d at %s",
					qty.String(), have.String(), row.MaterialId, row.LocationId),
			}
			continue
		}
		results[i] = RowValidation{Valid: true}
	}
	return results, nil
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FifoCostHistory is one receipt-dated cost layer. Layers are consumed
// oldest-sequence-first on delivery; a fully consumed layer is retained with
// fifo_available_quantity = 0, never deleted.
type FifoCostHistory struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	OrganizationId        string          `gorm:"index;not null" json:"organization_id"`
	PlantId               string          `gorm:"index;size:100" json:"plant_id"`
	MaterialId            int             `gorm:"index;not null" json:"material_id"`
	BatchId               *string         `gorm:"index;size:100" json:"batch_id"`
	FifoSequence          int             `gorm:"index;not null" json:"fifo_sequence"`
	FifoCostPrice         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fifo_cost_price"`
	FifoInitialQuantity   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fifo_initial_quantity"`
	FifoAvailableQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"fifo_available_quantity"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// CostKey identifies one costing ledger: material/plant, optionally scoped to
// a batch. BatchId nil means the material is not batch-tracked.
type CostKey struct {
	OrganizationId string
	PlantId        string
	MaterialId     int
	BatchId        *string
}

// costKeyScope narrows a query to exactly one costing ledger. A nil batch is a
// key value, not a wildcard: it selects only the batch-less rows, never the
// batch-scoped ledgers of the same material.
func costKeyScope(tx *gorm.DB, key CostKey) *gorm.DB {
	batch := ""
	if key.BatchId != nil {
		batch = NormalizeBatch(*key.BatchId)
	}
	return tx.
		Where("organization_id = ?", key.OrganizationId).
		Where("plant_id = ?", key.PlantId).
		Where("material_id = ?", key.MaterialId).
		Where("COALESCE(batch_id,'') = ?", batch)
}

// FindFifoLayers returns every layer for the key, oldest sequence first.
// Strict FIFO: sequence order only, no exceptions for batch or location.
func FindFifoLayers(tx *gorm.DB, key CostKey) ([]*FifoCostHistory, error) {
	var layers []*FifoCostHistory
	err := costKeyScope(tx.Model(&FifoCostHistory{}), key).
		Order("fifo_sequence ASC").
		Find(&layers).Error
	if err != nil {
		return nil, err
	}
	return layers, nil
}

// FindFifoLayersByMaterial returns all layers for one material across plants,
// oldest sequence first. Used by the delivery preview.
func FindFifoLayersByMaterial(tx *gorm.DB, organizationId string, materialId int) ([]*FifoCostHistory, error) {
	var layers []*FifoCostHistory
	err := tx.Model(&FifoCostHistory{}).
		Where("organization_id = ?", organizationId).
		Where("material_id = ?", materialId).
		Order("fifo_sequence ASC").
		Find(&layers).Error
	if err != nil {
		return nil, err
	}
	return layers, nil
}

// ListCostKeys returns every distinct costing key present in either costing
// collection for the organization. Used by the migration report to enumerate
// keys worth auditing.
func ListCostKeys(tx *gorm.DB, organizationId string) ([]CostKey, error) {
	var rows []struct {
		PlantId    string
		MaterialId int
		BatchId    *string
	}
	err := tx.Raw(`
		SELECT DISTINCT plant_id, material_id, batch_id
		FROM fifo_cost_histories
		WHERE organization_id = ?
		UNION
		SELECT DISTINCT plant_id, material_id, batch_id
		FROM wa_cost_histories
		WHERE organization_id = ?
	`, organizationId, organizationId).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make([]CostKey, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, CostKey{
			OrganizationId: organizationId,
			PlantId:        r.PlantId,
			MaterialId:     r.MaterialId,
			BatchId:        r.BatchId,
		})
	}
	return keys, nil
}

// DeleteFifoLayersByIds removes layers after a costing migration has folded
// them into the target representation. Migration is the only caller allowed to
// delete layers.
func DeleteFifoLayersByIds(tx *gorm.DB, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Where("id IN (?)", ids).Delete(&FifoCostHistory{}).Error
}

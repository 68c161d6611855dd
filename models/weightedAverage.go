package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WaCostHistory is the single blended cost/quantity record per costing key,
// recomputed as a quantity-weighted mean on every incoming merge.
type WaCostHistory struct {
	ID             int             `gorm:"primary_key" json:"id"`
	OrganizationId string          `gorm:"index;not null" json:"organization_id"`
	PlantId        string          `gorm:"index;size:100" json:"plant_id"`
	MaterialId     int             `gorm:"index;not null" json:"material_id"`
	BatchId        *string         `gorm:"index;size:100" json:"batch_id"`
	WaQuantity     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"wa_quantity"`
	WaCostPrice    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"wa_cost_price"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// FindWaRecords returns every weighted-average record for the key, newest
// first. At most one live record should exist per key; the ordering makes the
// "latest" pick deterministic when drifted data holds several.
func FindWaRecords(tx *gorm.DB, key CostKey) ([]*WaCostHistory, error) {
	var rows []*WaCostHistory
	err := costKeyScope(tx.Model(&WaCostHistory{}), key).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteWaRecordsByIds removes records folded away by a costing migration.
func DeleteWaRecordsByIds(tx *gorm.DB, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Where("id IN (?)", ids).Delete(&WaCostHistory{}).Error
}

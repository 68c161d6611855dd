package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ItemAllocation is one row of the allocation ledger: a quantity of one
// material/batch/bin reserved for one demand or outbound document line.
//
// Rows are never deleted. Cancellation is a terminal status so the ledger
// keeps its audit trail.
type ItemAllocation struct {
	ID             int              `gorm:"primary_key" json:"id"`
	OrganizationId string           `gorm:"index;not null" json:"organization_id"`
	DocType        DocType          `gorm:"index;size:50;not null" json:"doc_type"`
	DocId          int              `gorm:"index" json:"doc_id"`
	DocNo          string           `gorm:"size:100" json:"doc_no"`
	DocLineId      int              `gorm:"index" json:"doc_line_id"`
	ParentLineId   int              `gorm:"index" json:"parent_line_id"`
	MaterialId     int              `gorm:"index;not null" json:"material_id"`
	BatchId        string           `gorm:"size:100" json:"batch_id"`
	BinLocation    string           `gorm:"size:100" json:"bin_location"`
	ItemUom        string           `gorm:"size:50" json:"item_uom"`
	ReservedQty    decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"reserved_qty"`
	OpenQty        decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"open_qty"`
	Status         AllocationStatus `gorm:"type:enum('Pending','Allocated','Cancelled');default:'Pending';index" json:"status"`
	TargetGdId     *int             `gorm:"index" json:"target_gd_id"`
	ReleasedAt     *time.Time       `gorm:"index" json:"released_at"`
	ReleaseReason  *string          `gorm:"type:text" json:"release_reason"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeSave enforces internal invariants for the allocation ledger.
//
// CRITICAL: release queries classify rows by status. A Cancelled row with a
// non-zero open_qty would be double-released by the next reconciliation pass.
//
// We ensure:
// - Cancelled rows always carry open_qty = 0 and no target document
// - open_qty never exceeds reserved_qty
func (a *ItemAllocation) BeforeSave(tx *gorm.DB) error {
	_ = tx // signature required by gorm; tx may be nil in tests
	if a == nil {
		return nil
	}
	if a.Status == AllocationStatusCancelled {
		a.OpenQty = decimal.Zero
		a.TargetGdId = nil
	}
	if a.OpenQty.GreaterThan(a.ReservedQty) {
		a.OpenQty = a.ReservedQty
	}
	return nil
}

// NormalizeBatch maps the "no batch" spellings (NULL, "", whitespace) onto the
// empty string so key comparison treats them as equal.
func NormalizeBatch(batch string) string {
	return strings.TrimSpace(batch)
}

// StockKey identifies the physical stock an allocation holds.
type StockKey struct {
	MaterialId  int
	BatchId     string
	BinLocation string
}

func (a *ItemAllocation) Key() StockKey {
	return StockKey{
		MaterialId:  a.MaterialId,
		BatchId:     NormalizeBatch(a.BatchId),
		BinLocation: strings.TrimSpace(a.BinLocation),
	}
}

// FindAllocated returns the Allocated-status rows tied to a specific outbound
// document line for one stock key. Matching is exact equality on every key
// field; there is no fuzzy matching. A mismatch on any field means "not the
// same allocation lineage".
func FindAllocated(tx *gorm.DB, organizationId string, key StockKey, targetGdId int, docLineId int) ([]*ItemAllocation, error) {
	var rows []*ItemAllocation
	err := tx.
		Where("organization_id = ?", organizationId).
		Where("material_id = ?", key.MaterialId).
		Where("COALESCE(batch_id, '') = ?", key.BatchId).
		Where("bin_location = ?", key.BinLocation).
		Where("target_gd_id = ?", targetGdId).
		Where("doc_line_id = ?", docLineId).
		Where("status = ?", AllocationStatusAllocated).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindAllocatedForDoc returns every Allocated-status row currently held by one
// outbound document, for orphan detection against its latest snapshot.
func FindAllocatedForDoc(tx *gorm.DB, organizationId string, targetGdId int) ([]*ItemAllocation, error) {
	var rows []*ItemAllocation
	err := tx.
		Where("organization_id = ?", organizationId).
		Where("target_gd_id = ?", targetGdId).
		Where("status = ?", AllocationStatusAllocated).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// FindPendingMergeCandidate looks for the Pending row a released quantity can
// be merged back into: same document type, same upstream demand line, same
// stock key. Returns nil (no error) when there is none.
func FindPendingMergeCandidate(tx *gorm.DB, organizationId string, docType DocType, parentLineId int, key StockKey) (*ItemAllocation, error) {
	var row ItemAllocation
	err := tx.
		Where("organization_id = ?", organizationId).
		Where("doc_type = ?", docType).
		Where("parent_line_id = ?", parentLineId).
		Where("material_id = ?", key.MaterialId).
		Where("COALESCE(batch_id, '') = ?", key.BatchId).
		Where("bin_location = ?", key.BinLocation).
		Where("status = ?", AllocationStatusPending).
		Order("id ASC").
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemBalance holds the categorized on-hand quantities for a material/bin key
// without batch tracking. Batch-tracked materials live in item_batch_balances.
type ItemBalance struct {
	ID              int             `gorm:"primary_key" json:"id"`
	OrganizationId  string          `gorm:"index;not null" json:"organization_id"`
	PlantId         string          `gorm:"index;size:100" json:"plant_id"`
	MaterialId      int             `gorm:"index;not null" json:"material_id"`
	BinLocation     string          `gorm:"index;size:100;not null" json:"bin_location"`
	UnrestrictedQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unrestricted_qty"`
	ReservedQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reserved_qty"`
	BlockQty        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"block_qty"`
	QualityinspQty  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qualityinsp_qty"`
	IntransitQty    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"intransit_qty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ItemBatchBalance struct {
	ID              int             `gorm:"primary_key" json:"id"`
	OrganizationId  string          `gorm:"index;not null" json:"organization_id"`
	PlantId         string          `gorm:"index;size:100" json:"plant_id"`
	MaterialId      int             `gorm:"index;not null" json:"material_id"`
	BatchId         string          `gorm:"index;size:100;not null" json:"batch_id"`
	BinLocation     string          `gorm:"index;size:100;not null" json:"bin_location"`
	UnrestrictedQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unrestricted_qty"`
	ReservedQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reserved_qty"`
	BlockQty        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"block_qty"`
	QualityinspQty  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"qualityinsp_qty"`
	IntransitQty    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"intransit_qty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Balance is the categorized quantity view handed to callers.
type Balance struct {
	UnrestrictedQty decimal.Decimal `json:"unrestricted_qty"`
	ReservedQty     decimal.Decimal `json:"reserved_qty"`
	BlockQty        decimal.Decimal `json:"block_qty"`
	QualityinspQty  decimal.Decimal `json:"qualityinsp_qty"`
	IntransitQty    decimal.Decimal `json:"intransit_qty"`
}

func firstOrCreateItemBalance(tx *gorm.DB, organizationId string, key StockKey) (*ItemBalance, error) {
	balance := ItemBalance{
		OrganizationId: organizationId,
		MaterialId:     key.MaterialId,
		BinLocation:    key.BinLocation,
	}
	// FirstOrCreate will try to find a record matching the conditions, and if
	// it doesn't find one, it will create a new record
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND material_id = ? AND bin_location = ?",
			organizationId, key.MaterialId, key.BinLocation).
		FirstOrCreate(&balance)
	if result.Error != nil {
		return nil, result.Error
	}
	return &balance, nil
}

func firstOrCreateItemBatchBalance(tx *gorm.DB, organizationId string, key StockKey) (*ItemBatchBalance, error) {
	balance := ItemBatchBalance{
		OrganizationId: organizationId,
		MaterialId:     key.MaterialId,
		BatchId:        key.BatchId,
		BinLocation:    key.BinLocation,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND material_id = ? AND COALESCE(batch_id,'') = ? AND bin_location = ?",
			organizationId, key.MaterialId, key.BatchId, key.BinLocation).
		FirstOrCreate(&balance)
	if result.Error != nil {
		return nil, result.Error
	}
	return &balance, nil
}

// ApplyMovement applies one categorized quantity transition for a stock key as
// a single atomic increment/decrement statement. Callers never read-modify-write
// a previously fetched balance.
func ApplyMovement(tx *gorm.DB, organizationId string, key StockKey, kind MovementKind, quantity decimal.Decimal) error {
	if quantity.IsZero() {
		return nil
	}

	var table string
	var id int
	if key.BatchId != "" {
		balance, err := firstOrCreateItemBatchBalance(tx, organizationId, key)
		if err != nil {
			return err
		}
		table = "item_batch_balances"
		id = balance.ID
	} else {
		balance, err := firstOrCreateItemBalance(tx, organizationId, key)
		if err != nil {
			return err
		}
		table = "item_balances"
		id = balance.ID
	}

	switch kind {
	case MovementReservedToUnrestricted:
		err := tx.Exec(
			fmt.Sprintf("UPDATE %s SET reserved_qty = reserved_qty - ?, unrestricted_qty = unrestricted_qty + ? WHERE id = ?", table),
			quantity, quantity, id,
		).Error
		if err != nil {
			return err
		}
		InvalidateAvailableCache(organizationId, key)
		return nil
	default:
		return fmt.Errorf("unknown movement kind %q", kind)
	}
}

// GetBalance returns the categorized balance for a stock key, zero-valued when
// the key has never held stock.
func GetBalance(ctx context.Context, key StockKey) (*Balance, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.ErrorOrganizationIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorDBNotInitialized
	}

	var out Balance
	var err error
	if key.BatchId != "" {
		var row ItemBatchBalance
		err = db.WithContext(ctx).
			Where("organization_id = ? AND material_id = ? AND COALESCE(batch_id,'') = ? AND bin_location = ?",
				organizationId, key.MaterialId, key.BatchId, key.BinLocation).
			First(&row).Error
		if err == nil {
			out = Balance{row.UnrestrictedQty, row.ReservedQty, row.BlockQty, row.QualityinspQty, row.IntransitQty}
		}
	} else {
		var row ItemBalance
		err = db.WithContext(ctx).
			Where("organization_id = ? AND material_id = ? AND bin_location = ?",
				organizationId, key.MaterialId, key.BinLocation).
			First(&row).Error
		if err == nil {
			out = Balance{row.UnrestrictedQty, row.ReservedQty, row.BlockQty, row.QualityinspQty, row.IntransitQty}
		}
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Balance{}, nil
		}
		return nil, err
	}
	return &out, nil
}

// GetAvailableByKey returns unrestricted + reserved for the quantity guards.
// Cached briefly in redis; guard reads are advisory, the posting path always
// re-checks inside its transaction.
func GetAvailableByKey(ctx context.Context, key StockKey) (decimal.Decimal, error) {
	organizationId, _ := utils.GetOrganizationIdFromContext(ctx)
	cacheKey := availableCacheKey(organizationId, key)

	var cached string
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
		if dec, perr := utils.ParseDecimal(cached); perr == nil {
			return dec, nil
		}
	}

	balance, err := GetBalance(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	available := balance.UnrestrictedQty.Add(balance.ReservedQty)
	_ = config.SetRedisObject(cacheKey, available.String(), 30*time.Second)
	return available, nil
}

func availableCacheKey(organizationId string, key StockKey) string {
	return fmt.Sprintf("ItemBalanceAvailable:%s:%d:%s:%s", organizationId, key.MaterialId, key.BatchId, key.BinLocation)
}

// InvalidateAvailableCache drops the cached available quantity for a key after
// its balance moved. Stale reads self-heal within the cache TTL either way.
func InvalidateAvailableCache(organizationId string, key StockKey) {
	_ = config.RemoveRedisKey(availableCacheKey(organizationId, key))
}

package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// The engines compute mutations; this file applies them. One transaction per
// invocation, serialized per organization via redis lock so two documents
// saving against the same stock keys cannot interleave ledger writes. Balance
// movements themselves are single atomic increment statements (see
// models.ApplyMovement), never read-modify-write.

// txMergeLookup adapts models.FindPendingMergeCandidate to the engine's lookup
// contract and snapshots a pre-image of every row it hands out, so the
// conservation check can account for merge targets the engine mutates.
func txMergeLookup(tx *gorm.DB, organizationId string, preImages *[]models.ItemAllocation) MergeCandidateLookup {
	return func(docType models.DocType, parentLineId int, key models.StockKey) (*models.ItemAllocation, error) {
		target, err := models.FindPendingMergeCandidate(tx, organizationId, docType, parentLineId, key)
		if err != nil {
			return nil, err
		}
		if target != nil {
			*preImages = append(*preImages, *target)
		}
		return target, nil
	}
}

func snapshotRows(rows []*models.ItemAllocation) []models.ItemAllocation {
	out := make([]models.ItemAllocation, 0, len(rows))
	for _, r := range rows {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func applyReleaseResult(tx *gorm.DB, organizationId string, result *ReleaseResult) error {
	for _, rec := range result.RecordsToUpdate {
		if err := tx.Save(rec).Error; err != nil {
			return err
		}
	}
	for _, rec := range result.RecordsToInsert {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
	}
	for _, mv := range result.InventoryMovements {
		if err := models.ApplyMovement(tx, organizationId, mv.Key, mv.Kind, mv.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// RunReleaseForCancelledDocument releases every allocation currently held by a
// cancelled outbound document and persists the result. Re-running it for an
// already released document is a no-op.
func RunReleaseForCancelledDocument(ctx context.Context, logger *logrus.Logger, targetGdId int, reason string) (*ReleaseResult, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.ErrorOrganizationIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorDBNotInitialized
	}

	lock, err := utils.KeyLock(ctx, "allocationPosting", organizationId, "applyResult.go", "RunReleaseForCancelledDocument")
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	candidates, err := models.FindAllocatedForDoc(tx, organizationId, targetGdId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	preImages := snapshotRows(candidates)
	lookup := txMergeLookup(tx, organizationId, &preImages)

	result, err := ReleaseCancelledAllocations(logger, candidates, lookup, reason)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := CheckReleaseConservation(preImages, result); err != nil {
		tx.Rollback()
		config.LogError(logger, "workflow", "RunReleaseForCancelledDocument", "conservation check failed", targetGdId, err)
		return nil, err
	}
	if err := applyReleaseResult(tx, organizationId, result); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

// RunOrphanCleanupForDocument diffs a document's allocations against its
// current temp_qty_data snapshot, releases the orphans and persists the
// result.
func RunOrphanCleanupForDocument(ctx context.Context, logger *logrus.Logger, targetGdId int, tempQtyData string, reason string) (*ReleaseResult, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.ErrorOrganizationIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorDBNotInitialized
	}

	snapshotRowsParsed, err := models.ParseTempQtyData(tempQtyData)
	if err != nil {
		return nil, err
	}
	snapshot := models.SnapshotKeys(snapshotRowsParsed)

	lock, err := utils.KeyLock(ctx, "allocationPosting", organizationId, "applyResult.go", "RunOrphanCleanupForDocument")
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	allocated, err := models.FindAllocatedForDoc(tx, organizationId, targetGdId)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	preImages := snapshotRows(allocated)
	lookup := txMergeLookup(tx, organizationId, &preImages)

	result, err := CleanupOrphanedAllocations(logger, allocated, snapshot, lookup, reason)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := CheckReleaseConservation(preImages, result); err != nil {
		tx.Rollback()
		config.LogError(logger, "workflow", "RunOrphanCleanupForDocument", "conservation check failed", targetGdId, err)
		return nil, err
	}
	if err := applyReleaseResult(tx, organizationId, result); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyMigrationResult persists a costing migration in one transaction: write
// the target record, then delete the folded-away source rows.
func ApplyMigrationResult(tx *gorm.DB, result *MigrationResult) error {
	if result == nil {
		return errors.New("migration result is nil")
	}
	if result.WaRecord != nil {
		if result.UpdateExisting {
			if err := tx.Save(result.WaRecord).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Create(result.WaRecord).Error; err != nil {
				return err
			}
		}
	}
	if result.FifoRecord != nil {
		if err := tx.Create(result.FifoRecord).Error; err != nil {
			return err
		}
	}
	if err := models.DeleteFifoLayersByIds(tx, result.FifoIdsToDelete); err != nil {
		return err
	}
	if err := models.DeleteWaRecordsByIds(tx, result.WaIdsToDelete); err != nil {
		return err
	}
	return nil
}

// MigrateCostingForKey inspects which costing tables hold rows for the key,
// selects the scenario, runs the engine and persists the outcome. Keys whose
// data already sits only in the target collection are reported as a benign
// no-op.
func MigrateCostingForKey(ctx context.Context, logger *logrus.Logger, key models.CostKey, targetMethod models.CostingMethod) (*MigrationResult, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorDBNotInitialized
	}

	lock, err := utils.KeyLock(ctx, "costingMigration", key.OrganizationId, "applyResult.go", "MigrateCostingForKey")
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	fifoLayers, err := models.FindFifoLayers(tx, key)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	waRecords, err := models.FindWaRecords(tx, key)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	result, err := migrationForPlacement(key, targetMethod, fifoLayers, waRecords)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if result.WaRecord == nil && result.FifoRecord == nil {
		tx.Rollback()
		return result, nil
	}
	if err := ApplyMigrationResult(tx, result); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":      "workflow",
			"material_id": key.MaterialId,
			"plant_id":    key.PlantId,
			"target":      targetMethod.String(),
			"message":     result.Message,
		}).Info("costing migration applied")
	}
	return result, nil
}

// PlanCostingMigrationForKey computes what MigrateCostingForKey would do
// without writing anything. Used by the dry-run tools and the migration
// report.
func PlanCostingMigrationForKey(ctx context.Context, key models.CostKey, targetMethod models.CostingMethod) (*MigrationResult, error) {
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorDBNotInitialized
	}
	fifoLayers, err := models.FindFifoLayers(db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	waRecords, err := models.FindWaRecords(db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	return migrationForPlacement(key, targetMethod, fifoLayers, waRecords)
}

// migrationForPlacement maps data placement onto the scenario enum and runs
// the engine. No rows at all, or rows already only in the target collection,
// short-circuits to a no-op result.
func migrationForPlacement(key models.CostKey, targetMethod models.CostingMethod, fifoLayers []*models.FifoCostHistory, waRecords []*models.WaCostHistory) (*MigrationResult, error) {
	hasFifo := len(fifoLayers) > 0
	hasWa := len(waRecords) > 0

	noop := func(message string) *MigrationResult {
		return &MigrationResult{TargetCosting: targetMethod, Message: message}
	}

	switch {
	case !hasFifo && !hasWa:
		return noop("no costing records found for key"), nil
	case hasFifo && hasWa:
		return MigrateCosting(MigrationInput{
			Scenario:     models.ScenarioBothCollections,
			TargetMethod: targetMethod,
			Key:          key,
			FifoLayers:   fifoLayers,
			WaRecords:    waRecords,
		})
	case hasFifo && targetMethod.UsesLayers():
		return noop("costing records already in FIFO collection"), nil
	case hasWa && targetMethod == models.CostingMethodWeightedAverage:
		return noop("costing records already in weighted average collection"), nil
	default:
		return MigrateCosting(MigrationInput{
			Scenario:     models.ScenarioWrongCollection,
			TargetMethod: targetMethod,
			Key:          key,
			FifoLayers:   fifoLayers,
			WaRecords:    waRecords,
		})
	}
}

package workflow

import (
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"github.com/sirupsen/logrus"
)

// FindOrphans returns the Allocated rows whose stock key no longer appears in
// the owning document's current snapshot.
func FindOrphans(allocated []*models.ItemAllocation, snapshot map[models.StockKey]bool) []*models.ItemAllocation {
	orphans := make([]*models.ItemAllocation, 0)
	for _, rec := range allocated {
		if rec == nil {
			continue
		}
		if !snapshot[rec.Key()] {
			orphans = append(orphans, rec)
		}
	}
	return orphans
}

// CleanupOrphanedAllocations computes the mutations that make the ledger
// consistent with a document's current snapshot again.
//
// Every orphan is cancelled, including demand-tier orphans with no merge
// target: those get a fresh Pending record inserted alongside the
// cancellation, with open_qty restored to the full reserved quantity. This
// differs from ReleaseCancelledAllocations, which repurposes the source row in
// place; the two call sites own different parts of the allocation lifecycle
// and their behavior is kept separate on purpose.
func CleanupOrphanedAllocations(
	logger *logrus.Logger,
	allocated []*models.ItemAllocation,
	snapshot map[models.StockKey]bool,
	findMergeCandidate MergeCandidateLookup,
	reason string,
) (*ReleaseResult, error) {
	orphans := FindOrphans(allocated, snapshot)
	if len(orphans) == 0 {
		return &ReleaseResult{
			Code:               CodeSuccess,
			RecordsToUpdate:    []*models.ItemAllocation{},
			RecordsToInsert:    []*models.ItemAllocation{},
			InventoryMovements: []InventoryMovement{},
			Message:            "no orphaned allocations found",
		}, nil
	}

	sortCandidates(orphans, OrphanCleanupOrder)

	now := time.Now().UTC()
	reasonCopy := reason
	movements := newMovementAccumulator()
	merges := newMergeAccumulator()
	updates := make([]*models.ItemAllocation, 0, len(orphans))
	inserts := make([]*models.ItemAllocation, 0)

	for _, rec := range orphans {
		released := rec.ReservedQty

		if rec.DocType.IsOutboundConsuming() {
			cancelAllocation(rec, now, &reasonCopy)
			movements.add(rec.Key(), released)
			updates = append(updates, rec)
			continue
		}

		target, err := findMergeCandidate(rec.DocType, rec.ParentLineId, rec.Key())
		if err != nil {
			return nil, err
		}
		if target != nil {
			merges.add(target, released)
			cancelAllocation(rec, now, &reasonCopy)
			updates = append(updates, rec)
			continue
		}

		// Full reinstatement: the orphan is cancelled for the audit trail and
		// a fresh Pending row takes over its reserved quantity.
		replacement := &models.ItemAllocation{
			OrganizationId: rec.OrganizationId,
			DocType:        rec.DocType,
			ParentLineId:   rec.ParentLineId,
			MaterialId:     rec.MaterialId,
			BatchId:        rec.BatchId,
			BinLocation:    rec.BinLocation,
			ItemUom:        rec.ItemUom,
			ReservedQty:    released,
			OpenQty:        released,
			Status:         models.AllocationStatusPending,
		}
		cancelAllocation(rec, now, &reasonCopy)
		updates = append(updates, rec)
		inserts = append(inserts, replacement)
	}

	updates = append(updates, merges.apply()...)

	result := &ReleaseResult{
		Code:               CodeSuccess,
		RecordsToUpdate:    updates,
		RecordsToInsert:    inserts,
		InventoryMovements: movements.movements(),
		Message:            "cleaned up orphaned allocations",
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":    "workflow",
			"orphans":   len(orphans),
			"updates":   len(result.RecordsToUpdate),
			"inserts":   len(result.RecordsToInsert),
			"movements": len(result.InventoryMovements),
		}).Debug("orphan cleanup computed")
	}
	return result, nil
}

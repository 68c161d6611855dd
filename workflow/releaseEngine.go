package workflow

import (
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ReleaseCancelledAllocations computes the ledger mutations and balance-store
// movements for allocations tied to a cancelled document.
//
// Outbound-consuming rows (Good Delivery / Picking Plan tier) are cancelled
// and their reserved quantity is handed back to unrestricted. Demand-tier rows
// are merged onto the matching Pending row for their upstream line when one
// exists; when none exists the row itself is repurposed into the new Pending
// record, keeping its id. That repurposing is specific to this call site: the
// orphan-cleanup variant in orphanCleanup.go always cancels and inserts a
// fresh Pending row instead. Do not fold the two into one function.
//
// Zero candidates is a valid idempotent outcome (repeated cancellation
// requests), reported as success with no mutations.
func ReleaseCancelledAllocations(
	logger *logrus.Logger,
	candidates []*models.ItemAllocation,
	findMergeCandidate MergeCandidateLookup,
	reason string,
) (*ReleaseResult, error) {
	if len(candidates) == 0 {
		return &ReleaseResult{
			Code:               CodeSuccess,
			RecordsToUpdate:    []*models.ItemAllocation{},
			InventoryMovements: []InventoryMovement{},
			Message:            "no allocations to release",
		}, nil
	}

	sortCandidates(candidates, CancellationReleaseOrder)

	now := time.Now().UTC()
	reasonCopy := reason
	movements := newMovementAccumulator()
	merges := newMergeAccumulator()
	updates := make([]*models.ItemAllocation, 0, len(candidates))

	for _, rec := range candidates {
		if rec == nil {
			continue
		}
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

		// No merge target: the record itself becomes the new Pending record,
		// detached from any document but keeping its upstream line and id.
		rec.DocId = 0
		rec.DocNo = ""
		rec.DocLineId = 0
		rec.TargetGdId = nil
		rec.Status = models.AllocationStatusPending
		rec.OpenQty = rec.ReservedQty
		updates = append(updates, rec)
	}

	updates = append(updates, merges.apply()...)

	result := &ReleaseResult{
		Code:               CodeSuccess,
		RecordsToUpdate:    updates,
		InventoryMovements: movements.movements(),
		Message:            "released cancelled allocations",
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":     "workflow",
			"candidates": len(candidates),
			"updates":    len(result.RecordsToUpdate),
			"movements":  len(result.InventoryMovements),
		}).Debug("release computed")
	}
	return result, nil
}

func cancelAllocation(rec *models.ItemAllocation, at time.Time, reason *string) {
	rec.Status = models.AllocationStatusCancelled
	rec.OpenQty = decimal.Zero
	rec.TargetGdId = nil
	at = at.UTC()
	rec.ReleasedAt = &at
	rec.ReleaseReason = reason
}

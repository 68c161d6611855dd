package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
)

func snapshotOf(keys ...models.StockKey) map[models.StockKey]bool {
	m := map[models.StockKey]bool{}
	for _, k := range keys {
		m[k] = true
	}
	return m
}

func TestFindOrphansDiffsLedgerAgainstSnapshot(t *testing.T) {
	kept := makeAlloc(1, models.DocTypeGoodDelivery, 10, "B1", "BIN-A", "3")
	dropped := makeAlloc(2, models.DocTypeGoodDelivery, 10, "B1", "BIN-B", "2")

	orphans := FindOrphans([]*models.ItemAllocation{kept, dropped}, snapshotOf(kept.Key()))
	if len(orphans) != 1 || orphans[0].ID != 2 {
		t.Fatalf("orphans = %v, want exactly the BIN-B row", orphans)
	}
}

func TestFindOrphansTreatsMissingBatchAsEmptyString(t *testing.T) {
	rec := makeAlloc(1, models.DocTypeGoodDelivery, 10, "  ", "BIN-A", "3")
	snapshot := snapshotOf(models.StockKey{MaterialId: 10, BatchId: "", BinLocation: "BIN-A"})

	if orphans := FindOrphans([]*models.ItemAllocation{rec}, snapshot); len(orphans) != 0 {
		t.Errorf("whitespace batch should match empty-batch snapshot key, got %d orphans", len(orphans))
	}
}

func TestOrphanCleanupNoOrphansIsNoOp(t *testing.T) {
	rec := makeAlloc(1, models.DocTypeGoodDelivery, 10, "", "BIN-A", "3")
	result, err := CleanupOrphanedAllocations(nil, []*models.ItemAllocation{rec}, snapshotOf(rec.Key()), noMerge, "resave")
	if err != nil {
		t.Fatalf("CleanupOrphanedAllocations: %v", err)
	}
	if result.Code != CodeSuccess || result.Message != "no orphaned allocations found" {
		t.Errorf("result = %q %q", result.Code, result.Message)
	}
	if len(result.RecordsToUpdate) != 0 || len(result.RecordsToInsert) != 0 || len(result.InventoryMovements) != 0 {
		t.Error("expected no mutations")
	}
	if rec.Status != models.AllocationStatusAllocated {
		t.Error("non-orphaned row must stay Allocated")
	}
}

func TestOrphanCleanupCancelsDemandTierAndInsertsReplacement(t *testing.T) {
	orphan := makeAlloc(5, models.DocTypeSalesOrder, 10, "B1", "BIN-A", "4")

	result, err := CleanupOrphanedAllocations(nil, []*models.ItemAllocation{orphan}, snapshotOf(), noMerge, "resave")
	if err != nil {
		t.Fatalf("CleanupOrphanedAllocations: %v", err)
	}

	// Unlike the cancellation release, the orphan itself is always cancelled.
	if orphan.Status != models.AllocationStatusCancelled {
		t.Errorf("orphan status = %s, want Cancelled", orphan.Status)
	}
	if !orphan.OpenQty.IsZero() {
		t.Errorf("orphan open_qty = %s, want 0", orphan.OpenQty)
	}
	if len(result.RecordsToUpdate) != 1 {
		t.Fatalf("got %d updates, want 1", len(result.RecordsToUpdate))
	}
	if len(result.RecordsToInsert) != 1 {
		t.Fatalf("got %d inserts, want 1", len(result.RecordsToInsert))
	}
	repl := result.RecordsToInsert[0]
	if repl.ID != 0 {
		t.Errorf("replacement must be a new record, got id %d", repl.ID)
	}
	if repl.Status != models.AllocationStatusPending {
		t.Errorf("replacement status = %s, want Pending", repl.Status)
	}
	if !repl.OpenQty.Equal(qty("4")) || !repl.ReservedQty.Equal(qty("4")) {
		t.Errorf("replacement qty = open %s reserved %s, want 4/4", repl.OpenQty, repl.ReservedQty)
	}
	if repl.DocId != 0 || repl.DocNo != "" || repl.DocLineId != 0 || repl.TargetGdId != nil {
		t.Error("replacement must be detached from any document")
	}
	if repl.ParentLineId != orphan.ParentLineId || repl.Key() != orphan.Key() {
		t.Error("replacement must keep the upstream line and stock key")
	}
	// Only outbound-tier releases touch the balance store.
	if len(result.InventoryMovements) != 0 {
		t.Errorf("got %d movements, want 0", len(result.InventoryMovements))
	}
}

func TestOrphanCleanupMergesDemandTierIntoPending(t *testing.T) {
	orphan := makeAlloc(5, models.DocTypeSalesOrder, 10, "", "BIN-A", "4")
	target := &models.ItemAllocation{
		ID:             60,
		OrganizationId: "org-1",
		DocType:        models.DocTypeSalesOrder,
		ParentLineId:   orphan.ParentLineId,
		MaterialId:     10,
		BinLocation:    "BIN-A",
		ReservedQty:    qty("2"),
		OpenQty:        qty("2"),
		Status:         models.AllocationStatusPending,
	}
	fixtures := newFixtureLookup()
	fixtures.put(target)

	result, err := CleanupOrphanedAllocations(nil, []*models.ItemAllocation{orphan}, snapshotOf(), fixtures.lookup, "resave")
	if err != nil {
		t.Fatalf("CleanupOrphanedAllocations: %v", err)
	}

	if orphan.Status != models.AllocationStatusCancelled {
		t.Error("merged orphan must be cancelled")
	}
	if !target.ReservedQty.Equal(qty("6")) || !target.OpenQty.Equal(qty("6")) {
		t.Errorf("target qty = reserved %s open %s, want 6/6", target.ReservedQty, target.OpenQty)
	}
	if len(result.RecordsToInsert) != 0 {
		t.Error("merge-found case must not insert a replacement")
	}
}

func TestOrphanCleanupOutboundTierReleasesToUnrestricted(t *testing.T) {
	orphan := makeAlloc(5, models.DocTypeGoodDelivery, 10, "B1", "BIN-A", "3")

	result, err := CleanupOrphanedAllocations(nil, []*models.ItemAllocation{orphan}, snapshotOf(), noMerge, "resave")
	if err != nil {
		t.Fatalf("CleanupOrphanedAllocations: %v", err)
	}
	if len(result.InventoryMovements) != 1 {
		t.Fatalf("got %d movements, want 1", len(result.InventoryMovements))
	}
	mv := result.InventoryMovements[0]
	if mv.Kind != models.MovementReservedToUnrestricted || !mv.Quantity.Equal(qty("3")) {
		t.Errorf("movement = %s %s", mv.Kind, mv.Quantity)
	}
}

func TestOrphanCleanupProcessesSalesOrderTierFirst(t *testing.T) {
	gd := makeAlloc(1, models.DocTypeGoodDelivery, 10, "", "BIN-A", "3")
	so := makeAlloc(2, models.DocTypeSalesOrder, 10, "", "BIN-B", "2")

	result, err := CleanupOrphanedAllocations(nil, []*models.ItemAllocation{gd, so}, snapshotOf(), noMerge, "resave")
	if err != nil {
		t.Fatalf("CleanupOrphanedAllocations: %v", err)
	}
	if result.RecordsToUpdate[0].ID != 2 {
		t.Errorf("first processed id = %d, want the Sales Order row (2)", result.RecordsToUpdate[0].ID)
	}
}

func TestOrphanCleanupConservationHolds(t *testing.T) {
	gd := makeAlloc(1, models.DocTypeGoodDelivery, 10, "B1", "BIN-A", "3")
	so := makeAlloc(2, models.DocTypeSalesOrder, 10, "B1", "BIN-A", "2")

	before := []models.ItemAllocation{*gd, *so}
	result, err := CleanupOrphanedAllocations(nil, []*models.ItemAllocation{gd, so}, snapshotOf(), noMerge, "resave")
	if err != nil {
		t.Fatalf("CleanupOrphanedAllocations: %v", err)
	}
	if err := CheckReleaseConservation(before, result); err != nil {
		t.Errorf("conservation check failed: %v", err)
	}
}

// The two variants must not be collapsed into one function: given the same
// demand-tier row with no merge target, cancellation-release repurposes the
// row in place while orphan cleanup cancels it and inserts a replacement.
func TestReleaseVariantsDivergeOnNoMergeTarget(t *testing.T) {
	releaseSrc := makeAlloc(1, models.DocTypeSalesOrder, 10, "", "BIN-A", "5")
	cleanupSrc := makeAlloc(1, models.DocTypeSalesOrder, 10, "", "BIN-A", "5")

	releaseResult, err := ReleaseCancelledAllocations(nil, []*models.ItemAllocation{releaseSrc}, noMerge, "x")
	if err != nil {
		t.Fatal(err)
	}
	cleanupResult, err := CleanupOrphanedAllocations(nil, []*models.ItemAllocation{cleanupSrc}, snapshotOf(), noMerge, "x")
	if err != nil {
		t.Fatal(err)
	}

	if releaseSrc.Status != models.AllocationStatusPending {
		t.Errorf("release variant: source status = %s, want Pending (repurposed)", releaseSrc.Status)
	}
	if len(releaseResult.RecordsToInsert) != 0 {
		t.Error("release variant must not insert")
	}
	if cleanupSrc.Status != models.AllocationStatusCancelled {
		t.Errorf("cleanup variant: source status = %s, want Cancelled", cleanupSrc.Status)
	}
	if len(cleanupResult.RecordsToInsert) != 1 {
		t.Error("cleanup variant must insert a replacement")
	}
}

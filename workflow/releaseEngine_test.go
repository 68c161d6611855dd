package workflow

import (
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. The engines are pure over
// in-memory records; storage round-trips are exercised by the apply layer in
// an environment that can run MySQL.

func qty(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func makeAlloc(id int, docType models.DocType, material int, batch, bin string, reserved string) *models.ItemAllocation {
	gd := 900
	return &models.ItemAllocation{
		ID:             id,
		OrganizationId: "org-1",
		DocType:        docType,
		DocId:          100 + id,
		DocNo:          fmt.Sprintf("DOC-%04d", 100+id),
		DocLineId:      200 + id,
		ParentLineId:   300 + id,
		MaterialId:     material,
		BatchId:        batch,
		BinLocation:    bin,
		ItemUom:        "PCS",
		ReservedQty:    qty(reserved),
		OpenQty:        qty(reserved),
		Status:         models.AllocationStatusAllocated,
		TargetGdId:     &gd,
	}
}

// fixtureLookup serves merge candidates keyed by (docType, parentLineId,
// stock key).
type fixtureLookup struct {
	rows map[string]*models.ItemAllocation
}

func newFixtureLookup() *fixtureLookup {
	return &fixtureLookup{rows: map[string]*models.ItemAllocation{}}
}

func mergeKey(docType models.DocType, parentLineId int, key models.StockKey) string {
	return fmt.Sprintf("%s|%d|%d|%s|%s", docType, parentLineId, key.MaterialId, key.BatchId, key.BinLocation)
}

func (f *fixtureLookup) put(target *models.ItemAllocation) {
	f.rows[mergeKey(target.DocType, target.ParentLineId, target.Key())] = target
}

func (f *fixtureLookup) lookup(docType models.DocType, parentLineId int, key models.StockKey) (*models.ItemAllocation, error) {
	return f.rows[mergeKey(docType, parentLineId, key)], nil
}

func noMerge(models.DocType, int, models.StockKey) (*models.ItemAllocation, error) {
	return nil, nil
}

func TestReleaseZeroCandidatesIsIdempotentNoOp(t *testing.T) {
	result, err := ReleaseCancelledAllocations(nil, nil, noMerge, "cancelled")
	if err != nil {
		t.Fatalf("ReleaseCancelledAllocations: %v", err)
	}
	if result.Code != CodeSuccess {
		t.Errorf("code = %q, want %q", result.Code, CodeSuccess)
	}
	if result.Message != "no allocations to release" {
		t.Errorf("message = %q", result.Message)
	}
	if len(result.RecordsToUpdate) != 0 || len(result.InventoryMovements) != 0 {
		t.Errorf("expected no mutations, got %d updates %d movements",
			len(result.RecordsToUpdate), len(result.InventoryMovements))
	}
}

func TestReleaseOutboundTierCancelsAndEmitsNetMovements(t *testing.T) {
	a := makeAlloc(1, models.DocTypeGoodDelivery, 10, "B1", "BIN-A", "3")
	b := makeAlloc(2, models.DocTypePickingPlan, 10, "B1", "BIN-A", "2")
	c := makeAlloc(3, models.DocTypeGoodDelivery, 10, "B1", "BIN-B", "4")

	result, err := ReleaseCancelledAllocations(nil, []*models.ItemAllocation{a, b, c}, noMerge, "cancelled")
	if err != nil {
		t.Fatalf("ReleaseCancelledAllocations: %v", err)
	}

	for _, rec := range []*models.ItemAllocation{a, b, c} {
		if rec.Status != models.AllocationStatusCancelled {
			t.Errorf("id=%d status = %s, want Cancelled", rec.ID, rec.Status)
		}
		if !rec.OpenQty.IsZero() {
			t.Errorf("id=%d open_qty = %s, want 0", rec.ID, rec.OpenQty)
		}
		if rec.TargetGdId != nil {
			t.Errorf("id=%d target_gd_id not cleared", rec.ID)
		}
		if rec.ReleasedAt == nil {
			t.Errorf("id=%d released_at not stamped", rec.ID)
		}
	}

	// One net movement per key, accumulated by addition.
	if len(result.InventoryMovements) != 2 {
		t.Fatalf("got %d movements, want 2", len(result.InventoryMovements))
	}
	byBin := map[string]decimal.Decimal{}
	for _, mv := range result.InventoryMovements {
		if mv.Kind != models.MovementReservedToUnrestricted {
			t.Errorf("movement kind = %s", mv.Kind)
		}
		byBin[mv.Key.BinLocation] = mv.Quantity
	}
	if !byBin["BIN-A"].Equal(qty("5")) {
		t.Errorf("BIN-A movement = %s, want 5", byBin["BIN-A"])
	}
	if !byBin["BIN-B"].Equal(qty("4")) {
		t.Errorf("BIN-B movement = %s, want 4", byBin["BIN-B"])
	}
}

func TestReleaseDemandTierMergeAccumulatesOnceAfterLoop(t *testing.T) {
	src1 := makeAlloc(1, models.DocTypeSalesOrder, 10, "", "BIN-A", "3")
	src2 := makeAlloc(2, models.DocTypeSalesOrder, 10, "", "BIN-A", "2")
	src2.ParentLineId = src1.ParentLineId

	target := &models.ItemAllocation{
		ID:             50,
		OrganizationId: "org-1",
		DocType:        models.DocTypeSalesOrder,
		ParentLineId:   src1.ParentLineId,
		MaterialId:     10,
		BinLocation:    "BIN-A",
		ReservedQty:    qty("1"),
		OpenQty:        qty("1"),
		Status:         models.AllocationStatusPending,
	}
	fixtures := newFixtureLookup()
	fixtures.put(target)

	result, err := ReleaseCancelledAllocations(nil, []*models.ItemAllocation{src1, src2}, fixtures.lookup, "cancelled")
	if err != nil {
		t.Fatalf("ReleaseCancelledAllocations: %v", err)
	}

	if src1.Status != models.AllocationStatusCancelled || src2.Status != models.AllocationStatusCancelled {
		t.Error("merged sources must be cancelled")
	}
	if !target.ReservedQty.Equal(qty("6")) {
		t.Errorf("target reserved = %s, want 6 (1 + 3 + 2 applied once)", target.ReservedQty)
	}
	if !target.OpenQty.Equal(qty("6")) {
		t.Errorf("target open = %s, want 6", target.OpenQty)
	}
	if target.Status != models.AllocationStatusPending {
		t.Errorf("target status = %s, want Pending", target.Status)
	}
	// Demand-tier releases never touch the balance store.
	if len(result.InventoryMovements) != 0 {
		t.Errorf("got %d movements, want 0", len(result.InventoryMovements))
	}
	// Updates: both sources plus the target, exactly once each.
	if len(result.RecordsToUpdate) != 3 {
		t.Errorf("got %d updates, want 3", len(result.RecordsToUpdate))
	}
}

func TestReleaseDemandTierRepurposesRecordWithoutMergeTarget(t *testing.T) {
	src := makeAlloc(7, models.DocTypeSalesOrder, 10, "B1", "BIN-A", "5")

	result, err := ReleaseCancelledAllocations(nil, []*models.ItemAllocation{src}, noMerge, "cancelled")
	if err != nil {
		t.Fatalf("ReleaseCancelledAllocations: %v", err)
	}

	if len(result.RecordsToUpdate) != 1 {
		t.Fatalf("got %d updates, want exactly 1", len(result.RecordsToUpdate))
	}
	rec := result.RecordsToUpdate[0]
	if rec.ID != 7 {
		t.Errorf("record id = %d, want the source record itself (7)", rec.ID)
	}
	if rec.Status != models.AllocationStatusPending {
		t.Errorf("status = %s, want Pending", rec.Status)
	}
	if !rec.OpenQty.Equal(qty("5")) || !rec.ReservedQty.Equal(qty("5")) {
		t.Errorf("qty = open %s reserved %s, want 5/5", rec.OpenQty, rec.ReservedQty)
	}
	if rec.DocId != 0 || rec.DocNo != "" || rec.DocLineId != 0 || rec.TargetGdId != nil {
		t.Error("document references must be cleared on repurpose")
	}
	if rec.ParentLineId == 0 {
		t.Error("upstream parent line must be retained")
	}
	if len(result.InventoryMovements) != 0 {
		t.Errorf("got %d movements, want 0", len(result.InventoryMovements))
	}
	if len(result.RecordsToInsert) != 0 {
		t.Errorf("cancellation variant must not insert records, got %d", len(result.RecordsToInsert))
	}
}

func TestReleaseProcessesOutboundTierFirst(t *testing.T) {
	so := makeAlloc(1, models.DocTypeSalesOrder, 10, "", "BIN-A", "2")
	gd := makeAlloc(2, models.DocTypeGoodDelivery, 10, "", "BIN-A", "3")

	result, err := ReleaseCancelledAllocations(nil, []*models.ItemAllocation{so, gd}, noMerge, "cancelled")
	if err != nil {
		t.Fatalf("ReleaseCancelledAllocations: %v", err)
	}
	if result.RecordsToUpdate[0].ID != 2 {
		t.Errorf("first processed id = %d, want the Good Delivery row (2)", result.RecordsToUpdate[0].ID)
	}
}

func TestReleaseConservationHolds(t *testing.T) {
	gd := makeAlloc(1, models.DocTypeGoodDelivery, 10, "B1", "BIN-A", "3")
	so := makeAlloc(2, models.DocTypeSalesOrder, 10, "B1", "BIN-A", "2")
	prod := makeAlloc(3, models.DocTypeProduction, 11, "", "BIN-B", "4")

	target := &models.ItemAllocation{
		ID:             50,
		OrganizationId: "org-1",
		DocType:        models.DocTypeSalesOrder,
		ParentLineId:   so.ParentLineId,
		MaterialId:     10,
		BatchId:        "B1",
		BinLocation:    "BIN-A",
		ReservedQty:    qty("1"),
		OpenQty:        qty("1"),
		Status:         models.AllocationStatusPending,
	}
	fixtures := newFixtureLookup()
	fixtures.put(target)

	before := []models.ItemAllocation{*gd, *so, *prod, *target}

	result, err := ReleaseCancelledAllocations(nil, []*models.ItemAllocation{gd, so, prod}, fixtures.lookup, "cancelled")
	if err != nil {
		t.Fatalf("ReleaseCancelledAllocations: %v", err)
	}
	if err := CheckReleaseConservation(before, result); err != nil {
		t.Errorf("conservation check failed: %v", err)
	}

	// Total released to unrestricted equals total reserved of outbound-tier rows.
	total := decimal.Zero
	for _, mv := range result.InventoryMovements {
		total = total.Add(mv.Quantity)
	}
	if !total.Equal(qty("3")) {
		t.Errorf("total released = %s, want 3", total)
	}
}

func TestCheckReleaseConservationDetectsLoss(t *testing.T) {
	gd := makeAlloc(1, models.DocTypeGoodDelivery, 10, "", "BIN-A", "3")
	before := []models.ItemAllocation{*gd}

	// A broken result: the row was cancelled but only part of the quantity
	// reached the balance store.
	broken := *gd
	broken.Status = models.AllocationStatusCancelled
	broken.OpenQty = decimal.Zero
	result := &ReleaseResult{
		Code:            CodeSuccess,
		RecordsToUpdate: []*models.ItemAllocation{&broken},
		InventoryMovements: []InventoryMovement{
			{Key: gd.Key(), Kind: models.MovementReservedToUnrestricted, Quantity: qty("2")},
		},
	}
	if err := CheckReleaseConservation(before, result); err == nil {
		t.Error("expected conservation violation, got nil")
	}
}

package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"github.com/shopspring/decimal"
)

// Result codes. Not-found outcomes are success-coded with an explanatory
// message (repeated cancellation requests are valid and idempotent).
const (
	CodeSuccess = "SUCCESS"
)

// InventoryMovement is one net balance-store instruction. Movements for the
// same stock key accumulate by addition, so a release emits one movement per
// key, not one per record.
type InventoryMovement struct {
	Key      models.StockKey
	Kind     models.MovementKind
	Quantity decimal.Decimal
}

// ReleaseResult carries every mutation a release computed. The engine never
// touches storage; the caller applies the whole set in one transaction or not
// at all.
type ReleaseResult struct {
	Code               string
	RecordsToUpdate    []*models.ItemAllocation
	RecordsToInsert    []*models.ItemAllocation
	InventoryMovements []InventoryMovement
	Message            string
}

// MergeCandidateLookup finds the Pending row a released quantity could merge
// back into, or nil when there is none. Backed by
// models.FindPendingMergeCandidate in production and by fixtures in tests.
type MergeCandidateLookup func(docType models.DocType, parentLineId int, key models.StockKey) (*models.ItemAllocation, error)

// movementAccumulator nets movements per stock key while preserving first-seen
// order for deterministic output.
type movementAccumulator struct {
	order []models.StockKey
	byKey map[models.StockKey]decimal.Decimal
}

func newMovementAccumulator() *movementAccumulator {
	return &movementAccumulator{byKey: map[models.StockKey]decimal.Decimal{}}
}

func (m *movementAccumulator) add(key models.StockKey, qty decimal.Decimal) {
	if _, seen := m.byKey[key]; !seen {
		m.order = append(m.order, key)
	}
	m.byKey[key] = m.byKey[key].Add(qty)
}

func (m *movementAccumulator) movements() []InventoryMovement {
	out := make([]InventoryMovement, 0, len(m.order))
	for _, key := range m.order {
		qty := m.byKey[key]
		if qty.IsZero() {
			continue
		}
		out = append(out, InventoryMovement{
			Key:      key,
			Kind:     models.MovementReservedToUnrestricted,
			Quantity: qty,
		})
	}
	return out
}

// mergeAccumulator gathers released quantities per merge target. Targets are
// topped up once after the candidate loop, never mid-loop.
type mergeAccumulator struct {
	order   []int
	targets map[int]*models.ItemAllocation
	totals  map[int]decimal.Decimal
}

func newMergeAccumulator() *mergeAccumulator {
	return &mergeAccumulator{
		targets: map[int]*models.ItemAllocation{},
		totals:  map[int]decimal.Decimal{},
	}
}

func (m *mergeAccumulator) add(target *models.ItemAllocation, qty decimal.Decimal) {
	if _, seen := m.targets[target.ID]; !seen {
		m.order = append(m.order, target.ID)
		m.targets[target.ID] = target
	}
	m.totals[target.ID] = m.totals[target.ID].Add(qty)
}

// apply tops up each merge target with its summed quantity and returns the
// mutated targets in first-seen order.
func (m *mergeAccumulator) apply() []*models.ItemAllocation {
	out := make([]*models.ItemAllocation, 0, len(m.order))
	for _, id := range m.order {
		target := m.targets[id]
		sum := m.totals[id]
		target.ReservedQty = target.ReservedQty.Add(sum)
		target.OpenQty = target.OpenQty.Add(sum)
		target.Status = models.AllocationStatusPending
		out = append(out, target)
	}
	return out
}

// CheckReleaseConservation verifies that a computed release neither creates
// nor destroys reserved quantity: per stock key, the sum of reserved_qty over
// non-Cancelled rows before the call equals the sum after, plus the quantity
// handed back to the balance store.
//
// before must hold pre-mutation copies of every row the engine touched
// (candidates and merge targets).
func CheckReleaseConservation(before []models.ItemAllocation, result *ReleaseResult) error {
	activeBefore := map[models.StockKey]decimal.Decimal{}
	for i := range before {
		row := before[i]
		if row.Status == models.AllocationStatusCancelled {
			continue
		}
		key := row.Key()
		activeBefore[key] = activeBefore[key].Add(row.ReservedQty)
	}

	afterById := map[int]*models.ItemAllocation{}
	for _, row := range result.RecordsToUpdate {
		afterById[row.ID] = row
	}

	activeAfter := map[models.StockKey]decimal.Decimal{}
	seen := map[int]bool{}
	for i := range before {
		row := &before[i]
		if after, mutated := afterById[row.ID]; mutated {
			seen[row.ID] = true
			if after.Status == models.AllocationStatusCancelled {
				continue
			}
			key := after.Key()
			activeAfter[key] = activeAfter[key].Add(after.ReservedQty)
			continue
		}
		if row.Status == models.AllocationStatusCancelled {
			continue
		}
		key := row.Key()
		activeAfter[key] = activeAfter[key].Add(row.ReservedQty)
	}
	for _, row := range result.RecordsToUpdate {
		if !seen[row.ID] {
			return fmt.Errorf("conservation check: mutated record id=%d has no pre-image", row.ID)
		}
	}
	for _, row := range result.RecordsToInsert {
		if row.Status == models.AllocationStatusCancelled {
			continue
		}
		key := row.Key()
		activeAfter[key] = activeAfter[key].Add(row.ReservedQty)
	}

	released := map[models.StockKey]decimal.Decimal{}
	for _, mv := range result.InventoryMovements {
		released[mv.Key] = released[mv.Key].Add(mv.Quantity)
	}

	keys := map[models.StockKey]bool{}
	for k := range activeBefore {
		keys[k] = true
	}
	for k := range activeAfter {
		keys[k] = true
	}
	for k := range released {
		keys[k] = true
	}
	for key := range keys {
		lhs := activeBefore[key]
		rhs := activeAfter[key].Add(released[key])
		if !lhs.Equal(rhs) {
			return fmt.Errorf(
				"conservation violated for material_id=%d batch=%s bin=%s: before=%s after=%s released=%s",
				key.MaterialId, key.BatchId, key.BinLocation,
				lhs.String(), activeAfter[key].String(), released[key].String(),
			)
		}
	}
	return nil
}

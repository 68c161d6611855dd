package workflow

import (
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"github.com/shopspring/decimal"
)

// MigrationInput is everything the costing migration engine needs. The caller
// decides the scenario by inspecting which costing tables hold rows for the
// key; the engine is a pure function of (scenario, records).
type MigrationInput struct {
	Scenario     models.MigrationScenario
	TargetMethod models.CostingMethod
	Key          models.CostKey
	FifoLayers   []*models.FifoCostHistory
	WaRecords    []*models.WaCostHistory
}

// MigrationResult carries the emitted target record and the source ids to
// delete. Exactly one of FifoRecord / WaRecord is set when there was anything
// to migrate.
type MigrationResult struct {
	TargetCosting models.CostingMethod
	FifoRecord    *models.FifoCostHistory
	WaRecord      *models.WaCostHistory
	// UpdateExisting marks the WaRecord as an update of an existing row
	// (Scenario B merge) instead of an insert.
	UpdateExisting  bool
	FifoIdsToDelete []int
	WaIdsToDelete   []int
	Message         string
}

// fifoTotals folds a set of layers into (total quantity, total cost, weighted
// average cost). Running totals are rounded after each addition to match the
// upstream platform's fixed-point arithmetic.
func fifoTotals(layers []*models.FifoCostHistory) (totalQty, totalCost, avgCost decimal.Decimal) {
	totalQty = decimal.Zero
	totalCost = decimal.Zero
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		totalQty = RoundQty(totalQty.Add(layer.FifoAvailableQuantity))
		totalCost = RoundPrice(totalCost.Add(layer.FifoAvailableQuantity.Mul(layer.FifoCostPrice)))
	}
	avgCost = decimal.Zero
	if totalQty.GreaterThan(decimal.Zero) {
		avgCost = RoundPrice(totalCost.Div(totalQty))
	}
	return totalQty, totalCost, avgCost
}

// latestWaRecord picks the most recently created record, created_at then id
// descending. At most one live record should exist per key; the ordering makes
// the pick deterministic when drifted data holds several.
func latestWaRecord(records []*models.WaCostHistory) *models.WaCostHistory {
	var latest *models.WaCostHistory
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if latest == nil ||
			rec.CreatedAt.After(latest.CreatedAt) ||
			(rec.CreatedAt.Equal(latest.CreatedAt) && rec.ID > latest.ID) {
			latest = rec
		}
	}
	return latest
}

func maxFifoSequence(layers []*models.FifoCostHistory) int {
	max := 0
	for _, layer := range layers {
		if layer != nil && layer.FifoSequence > max {
			max = layer.FifoSequence
		}
	}
	return max
}

// batchForKey returns the batch pointer for emitted records: set only when a
// batch context was supplied, omitted otherwise.
func batchForKey(key models.CostKey) *string {
	if key.BatchId == nil {
		return nil
	}
	batch := models.NormalizeBatch(*key.BatchId)
	return &batch
}

// MigrateCosting converts or merges FIFO and Weighted-Average costing records
// so the key's data ends up in the collection matching the configured costing
// method. Pure: no storage access, no mutation of its inputs.
func MigrateCosting(input MigrationInput) (*MigrationResult, error) {
	if !input.TargetMethod.IsValid() {
		return nil, fmt.Errorf("invalid target costing method %q", input.TargetMethod)
	}
	switch input.Scenario {
	case models.ScenarioWrongCollection:
		return migrateWrongCollection(input)
	case models.ScenarioBothCollections:
		return migrateBothCollections(input)
	default:
		return nil, fmt.Errorf("invalid migration scenario %q", input.Scenario)
	}
}

// migrateWrongCollection converts wholesale: all data sits in the collection
// of the other costing method.
func migrateWrongCollection(input MigrationInput) (*MigrationResult, error) {
	result := &MigrationResult{TargetCosting: input.TargetMethod}

	switch input.TargetMethod {
	case models.CostingMethodWeightedAverage:
		if len(input.FifoLayers) == 0 {
			result.Message = "no FIFO layers to convert"
			return result, nil
		}
		totalQty, _, avgCost := fifoTotals(input.FifoLayers)
		result.WaRecord = &models.WaCostHistory{
			OrganizationId: input.Key.OrganizationId,
			PlantId:        input.Key.PlantId,
			MaterialId:     input.Key.MaterialId,
			BatchId:        batchForKey(input.Key),
			WaQuantity:     totalQty,
			WaCostPrice:    avgCost,
		}
		result.FifoIdsToDelete = collectFifoIds(input.FifoLayers)
		result.Message = "converted FIFO layers to weighted average"
		return result, nil

	case models.CostingMethodFIFO:
		source := latestWaRecord(input.WaRecords)
		if source == nil {
			result.Message = "no weighted average records to convert"
			return result, nil
		}
		result.FifoRecord = &models.FifoCostHistory{
			OrganizationId:        input.Key.OrganizationId,
			PlantId:               input.Key.PlantId,
			MaterialId:            input.Key.MaterialId,
			BatchId:               batchForKey(input.Key),
			FifoSequence:          1,
			FifoCostPrice:         RoundPrice(source.WaCostPrice),
			FifoInitialQuantity:   RoundQty(source.WaQuantity),
			FifoAvailableQuantity: RoundQty(source.WaQuantity),
		}
		result.WaIdsToDelete = collectWaIds(input.WaRecords)
		result.Message = "converted weighted average to FIFO layer"
		return result, nil
	}
	return nil, fmt.Errorf("invalid target costing method %q", input.TargetMethod)
}

// migrateBothCollections merges the incorrect side into the target side
// instead of discarding it.
func migrateBothCollections(input MigrationInput) (*MigrationResult, error) {
	result := &MigrationResult{TargetCosting: input.TargetMethod}

	switch input.TargetMethod {
	case models.CostingMethodWeightedAverage:
		existing := latestWaRecord(input.WaRecords)
		if existing == nil {
			// Nothing on the target side after all; same as a wholesale convert.
			return migrateWrongCollection(MigrationInput{
				Scenario:     models.ScenarioWrongCollection,
				TargetMethod: input.TargetMethod,
				Key:          input.Key,
				FifoLayers:   input.FifoLayers,
			})
		}
		if len(input.FifoLayers) == 0 {
			result.Message = "no FIFO layers to merge"
			return result, nil
		}
		fifoQty, _, fifoAvgCost := fifoTotals(input.FifoLayers)

		newQty := RoundQty(existing.WaQuantity.Add(fifoQty))
		newCost := existing.WaCostPrice
		if newQty.GreaterThan(decimal.Zero) {
			existingValue := RoundPrice(existing.WaCostPrice.Mul(existing.WaQuantity))
			fifoValue := RoundPrice(fifoAvgCost.Mul(fifoQty))
			newCost = RoundPrice(RoundPrice(existingValue.Add(fifoValue)).Div(newQty))
		}

		merged := *existing
		merged.WaQuantity = newQty
		merged.WaCostPrice = newCost
		result.WaRecord = &merged
		result.UpdateExisting = true
		result.FifoIdsToDelete = collectFifoIds(input.FifoLayers)
		result.Message = "merged FIFO layers into existing weighted average"
		return result, nil

	case models.CostingMethodFIFO:
		source := latestWaRecord(input.WaRecords)
		if source == nil {
			result.Message = "no weighted average records to merge"
			return result, nil
		}
		// Existing layers are preserved; the WA side is appended as one new
		// layer after the newest existing sequence.
		result.FifoRecord = &models.FifoCostHistory{
			OrganizationId:        input.Key.OrganizationId,
			PlantId:               input.Key.PlantId,
			MaterialId:            input.Key.MaterialId,
			BatchId:               batchForKey(input.Key),
			FifoSequence:          maxFifoSequence(input.FifoLayers) + 1,
			FifoCostPrice:         RoundPrice(source.WaCostPrice),
			FifoInitialQuantity:   RoundQty(source.WaQuantity),
			FifoAvailableQuantity: RoundQty(source.WaQuantity),
		}
		result.WaIdsToDelete = []int{source.ID}
		result.Message = "appended weighted average as new FIFO layer"
		return result, nil
	}
	return nil, fmt.Errorf("invalid target costing method %q", input.TargetMethod)
}

func collectFifoIds(layers []*models.FifoCostHistory) []int {
	ids := make([]int, 0, len(layers))
	for _, l := range layers {
		if l != nil {
			ids = append(ids, l.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

func collectWaIds(records []*models.WaCostHistory) []int {
	ids := make([]int, 0, len(records))
	for _, r := range records {
		if r != nil {
			ids = append(ids, r.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

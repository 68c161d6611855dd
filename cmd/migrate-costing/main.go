// migrate-costing moves one costing key's records into the collection matching
// its configured costing method. Keys drift into the wrong collection when the
// material's costing method is switched after receipts were posted: FIFO
// layers for a weighted-average material, or the other way around.
//
// Usage (dry-run, show the planned migration):
//
//	go run ./cmd/migrate-costing \
//	  -organization-id=a195a02a-ee0c-4047-a6f4-443633d0aca4 \
//	  -plant-id=P1 -material-id=1234 -target=WEIGHTED_AVERAGE
//
// To apply:
//
//	go run ./cmd/migrate-costing \
//	  -organization-id=... -plant-id=P1 -material-id=1234 -target=WEIGHTED_AVERAGE \
//	  -dry-run=false -confirm=MIGRATE
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/workflow"
)

func main() {
	organizationId := flag.String("organization-id", "", "Required: organization id (uuid)")
	plantId := flag.String("plant-id", "", "Required: plant id")
	materialId := flag.Int("material-id", 0, "Required: material id")
	batchId := flag.String("batch-id", "", "Batch id (omit for non-batch-tracked materials)")
	target := flag.String("target", "", "Required: target costing method, FIFO or WEIGHTED_AVERAGE")
	dryRun := flag.Bool("dry-run", true, "Show the planned migration only (no writes)")
	confirm := flag.String("confirm", "", "Type MIGRATE to proceed when dry-run=false")
	flag.Parse()

	if strings.TrimSpace(*organizationId) == "" {
		fmt.Fprintln(os.Stderr, "-organization-id is required")
		os.Exit(1)
	}
	if strings.TrimSpace(*plantId) == "" {
		fmt.Fprintln(os.Stderr, "-plant-id is required")
		os.Exit(1)
	}
	if *materialId <= 0 {
		fmt.Fprintln(os.Stderr, "-material-id is required")
		os.Exit(1)
	}
	targetMethod := models.CostingMethod(strings.ToUpper(strings.TrimSpace(*target)))
	if !targetMethod.IsValid() {
		fmt.Fprintln(os.Stderr, "-target must be FIFO or WEIGHTED_AVERAGE")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "MIGRATE" {
		fmt.Fprintln(os.Stderr, "set -confirm=MIGRATE to proceed when -dry-run=false")
		os.Exit(1)
	}

	key := models.CostKey{
		OrganizationId: *organizationId,
		PlantId:        *plantId,
		MaterialId:     *materialId,
	}
	if strings.TrimSpace(*batchId) != "" {
		batch := models.NormalizeBatch(*batchId)
		key.BatchId = &batch
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()

	if *dryRun {
		result, err := workflow.PlanCostingMigrationForKey(ctx, key, targetMethod)
		if err != nil {
			fmt.Fprintf(os.Stderr, "plan failed: %v\n", err)
			os.Exit(1)
		}
		printResult("would apply", result)
		if result.WaRecord != nil || result.FifoRecord != nil {
			fmt.Println("run with -dry-run=false -confirm=MIGRATE to apply")
		}
		return
	}

	// The apply path holds the per-organization costing lock.
	config.ConnectRedisWithRetry()

	result, err := workflow.MigrateCostingForKey(ctx, config.GetLogger(), key, targetMethod)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	printResult("applied", result)
}

func printResult(prefix string, result *workflow.MigrationResult) {
	fmt.Printf("%s: %s\n", prefix, result.Message)
	if result.WaRecord != nil {
		verb := "insert"
		if result.UpdateExisting {
			verb = "update"
		}
		fmt.Printf("  %s weighted average record: qty=%s cost=%s\n",
			verb, result.WaRecord.WaQuantity.String(), result.WaRecord.WaCostPrice.String())
	}
	if result.FifoRecord != nil {
		fmt.Printf("  insert FIFO layer: sequence=%d qty=%s cost=%s\n",
			result.FifoRecord.FifoSequence,
			result.FifoRecord.FifoAvailableQuantity.String(),
			result.FifoRecord.FifoCostPrice.String())
	}
	if len(result.FifoIdsToDelete) > 0 {
		fmt.Printf("  delete FIFO layer ids: %v\n", result.FifoIdsToDelete)
	}
	if len(result.WaIdsToDelete) > 0 {
		fmt.Printf("  delete weighted average record ids: %v\n", result.WaIdsToDelete)
	}
}

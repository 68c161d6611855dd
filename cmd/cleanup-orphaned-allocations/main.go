// cleanup-orphaned-allocations releases ledger rows whose stock key no longer
// appears in the demand line's current temp_qty_data snapshot. Orphans linger
// when a delivery line is edited to a different bin or batch after its
// allocations were posted; they keep stock reserved that the document no
// longer claims.
//
// Usage (dry-run, list orphans only):
//
//	go run ./cmd/cleanup-orphaned-allocations \
//	  -organization-id=a195a02a-ee0c-4047-a6f4-443633d0aca4 \
//	  -target-gd-id=1234 \
//	  -temp-qty-file=snapshot.json
//
// To release:
//
//	go run ./cmd/cleanup-orphaned-allocations \
//	  -organization-id=... -target-gd-id=1234 -temp-qty-file=snapshot.json \
//	  -dry-run=false -confirm=DELETE
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
	"bitbucket.org/mmdatafocus/stocklink_backend/workflow"
)

func main() {
	organizationId := flag.String("organization-id", "", "Required: organization id (uuid)")
	targetGdId := flag.Int("target-gd-id", 0, "Required: good delivery id whose allocations to diff")
	tempQtyData := flag.String("temp-qty-data", "", "temp_qty_data snapshot JSON (empty means the document claims no stock)")
	tempQtyFile := flag.String("temp-qty-file", "", "Read the snapshot JSON from this file instead of -temp-qty-data")
	reason := flag.String("reason", "orphaned allocation cleanup", "Release reason recorded on cancelled rows")
	dryRun := flag.Bool("dry-run", true, "List orphans only (no writes)")
	confirm := flag.String("confirm", "", "Type DELETE to proceed when dry-run=false")
	flag.Parse()

	if strings.TrimSpace(*organizationId) == "" {
		fmt.Fprintln(os.Stderr, "-organization-id is required")
		os.Exit(1)
	}
	if *targetGdId <= 0 {
		fmt.Fprintln(os.Stderr, "-target-gd-id is required")
		os.Exit(1)
	}
	if !*dryRun && strings.TrimSpace(*confirm) != "DELETE" {
		fmt.Fprintln(os.Stderr, "set -confirm=DELETE to proceed when -dry-run=false")
		os.Exit(1)
	}

	snapshotJSON := *tempQtyData
	if strings.TrimSpace(*tempQtyFile) != "" {
		raw, err := os.ReadFile(*tempQtyFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", *tempQtyFile, err)
			os.Exit(1)
		}
		snapshotJSON = string(raw)
	}
	snapshotRows, err := models.ParseTempQtyData(snapshotJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid snapshot: %v\n", err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	if *dryRun {
		allocated, err := models.FindAllocatedForDoc(db, *organizationId, *targetGdId)
		if err != nil {
			fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
			os.Exit(1)
		}
		orphans := workflow.FindOrphans(allocated, models.SnapshotKeys(snapshotRows))
		if len(orphans) == 0 {
			fmt.Println("no orphaned allocations")
			return
		}
		fmt.Printf("orphaned allocations (%d):\n", len(orphans))
		for _, o := range orphans {
			fmt.Printf("  id=%d doc_type=%q doc_no=%q material_id=%d batch=%q bin=%q reserved=%s open=%s\n",
				o.ID, o.DocType, o.DocNo, o.MaterialId, o.BatchId, o.BinLocation,
				o.ReservedQty.String(), o.OpenQty.String())
		}
		fmt.Println("run with -dry-run=false -confirm=DELETE to release these rows")
		return
	}

	// The release path holds the per-organization posting lock.
	config.ConnectRedisWithRetry()

	ctx := utils.SetOrganizationIdInContext(context.Background(), *organizationId)
	result, err := workflow.RunOrphanCleanupForDocument(ctx, config.GetLogger(), *targetGdId, snapshotJSON, *reason)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cleanup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: %d row(s) updated, %d row(s) inserted, %d balance movement(s)\n",
		result.Message, len(result.RecordsToUpdate), len(result.RecordsToInsert), len(result.InventoryMovements))
	for _, mv := range result.InventoryMovements {
		fmt.Printf("  material_id=%d batch=%q bin=%q %s qty=%s\n",
			mv.Key.MaterialId, mv.Key.BatchId, mv.Key.BinLocation, mv.Kind, mv.Quantity.String())
	}
}

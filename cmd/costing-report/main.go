// costing-report audits every costing key of an organization against a target
// costing method and exports the planned migrations to an xlsx workbook. Read
// only: nothing is written to the database. Feed the rows whose action is not
// a no-op into ./cmd/migrate-costing.
//
// Usage:
//
//	go run ./cmd/costing-report \
//	  -organization-id=a195a02a-ee0c-4047-a6f4-443633d0aca4 \
//	  -target=WEIGHTED_AVERAGE \
//	  -out=costing-report.xlsx
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
	"github.com/xuri/excelize/v2"
)

func main() {
	organizationId := flag.String("organization-id", "", "Required: organization id (uuid)")
	target := flag.String("target", "", "Required: target costing method, FIFO or WEIGHTED_AVERAGE")
	out := flag.String("out", "costing-report.xlsx", "Output workbook path")
	flag.Parse()

	if strings.TrimSpace(*organizationId) == "" {
		fmt.Fprintln(os.Stderr, "-organization-id is required")
		os.Exit(1)
	}
	targetMethod := models.CostingMethod(strings.ToUpper(strings.TrimSpace(*target)))
	if !targetMethod.IsValid() {
		fmt.Fprintln(os.Stderr, "-target must be FIFO or WEIGHTED_AVERAGE")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	keys, err := models.ListCostKeys(db, *organizationId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing costing keys failed: %v\n", err)
		os.Exit(1)
	}
	if len(keys) == 0 {
		fmt.Println("no costing keys for this organization")
		return
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	headers := []string{"PlantId", "MaterialId", "BatchId", "Action", "TargetQty", "TargetCost", "FifoIdsToDelete", "WaIdsToDelete"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	ctx := context.Background()
	row := 2
	pending := 0
	for _, key := range keys {
		result, err := workflow.PlanCostingMigrationForKey(ctx, key, targetMethod)
		if err != nil {
			fmt.Fprintf(os.Stderr, "plan failed for material %d plant %s: %v\n", key.MaterialId, key.PlantId, err)
			os.Exit(1)
		}

		batch := ""
		if key.BatchId != nil {
			batch = *key.BatchId
		}
		targetQty, targetCost := "", ""
		if result.WaRecord != nil {
			targetQty = result.WaRecord.WaQuantity.String()
			targetCost = result.WaRecord.WaCostPrice.String()
		}
		if result.FifoRecord != nil {
			targetQty = result.FifoRecord.FifoAvailableQuantity.String()
			targetCost = result.FifoRecord.FifoCostPrice.String()
		}
		if result.WaRecord != nil || result.FifoRecord != nil {
			pending++
		}

		f.SetCellValue(sheet, "A"+fmt.Sprint(row), key.PlantId)
		f.SetCellValue(sheet, "B"+fmt.Sprint(row), key.MaterialId)
		f.SetCellValue(sheet, "C"+fmt.Sprint(row), batch)
		f.SetCellValue(sheet, "D"+fmt.Sprint(row), result.Message)
		f.SetCellValue(sheet, "E"+fmt.Sprint(row), targetQty)
		f.SetCellValue(sheet, "F"+fmt.Sprint(row), targetCost)
		f.SetCellValue(sheet, "G"+fmt.Sprint(row), fmt.Sprint(result.FifoIdsToDelete))
		f.SetCellValue(sheet, "H"+fmt.Sprint(row), fmt.Sprint(result.WaIdsToDelete))
		row++
	}

	if err := f.SaveAs(*out); err != nil {
		fmt.Fprintf(os.Stderr, "writing %s failed: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("audited %d costing key(s), %d need migration: %s\n", len(keys), pending, *out)
}

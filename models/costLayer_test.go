package models

import (
	"strings"
	"testing"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "stocklink:stocklink@tcp(127.0.0.1:3306)/stocklink?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry-run session: %v", err)
	}
	return db
}

func buildCostKeySQL(t *testing.T, key CostKey) (string, []interface{}) {
	t.Helper()
	var rows []*FifoCostHistory
	stmt := costKeyScope(dryRunDB(t).Model(&FifoCostHistory{}), key).Find(&rows).Statement
	return stmt.SQL.String(), stmt.Vars
}

func TestCostKeyScopeNilBatchSelectsOnlyBatchlessRows(t *testing.T) {
	sql, vars := buildCostKeySQL(t, CostKey{OrganizationId: "org-1", PlantId: "P1", MaterialId: 10})

	if !strings.Contains(sql, "COALESCE(batch_id,'') = ?") {
		t.Fatalf("batch predicate missing from query: %s", sql)
	}
	if len(vars) != 4 {
		t.Fatalf("expected 4 bind variables, got %d: %v", len(vars), vars)
	}
	if vars[3] != "" {
		t.Fatalf("nil batch must bind the empty batch value, got %v", vars[3])
	}
}

func TestCostKeyScopeNormalizesBatchValue(t *testing.T) {
	batch := " B-7 "
	sql, vars := buildCostKeySQL(t, CostKey{OrganizationId: "org-1", PlantId: "P1", MaterialId: 10, BatchId: &batch})

	if !strings.Contains(sql, "COALESCE(batch_id,'') = ?") {
		t.Fatalf("batch predicate missing from query: %s", sql)
	}
	if len(vars) != 4 {
		t.Fatalf("expected 4 bind variables, got %d: %v", len(vars), vars)
	}
	if vars[3] != "B-7" {
		t.Fatalf("batch value not normalized, got %v", vars[3])
	}
}

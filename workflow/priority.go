package workflow

import (
	"sort"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
)

// Release candidates are processed in document-type priority order, lowest
// rank first. The two release call sites carry different tables on purpose:
// they encode different upstream-fallback semantics, so they are kept as two
// named orders instead of one shared constant. Unifying them would change
// which demand tier reclaims stock first in each flow and must be a
// deliberate decision, not a refactor side effect.

// defaultReleasePriority is applied to unrecognized document types so they are
// processed last rather than rejected.
const defaultReleasePriority = 99

type ReleasePriorityOrder struct {
	name  string
	ranks map[models.DocType]int
}

func (o ReleasePriorityOrder) Name() string { return o.name }

func (o ReleasePriorityOrder) Rank(docType models.DocType) int {
	if r, ok := o.ranks[docType]; ok {
		return r
	}
	return defaultReleasePriority
}

// CancellationReleaseOrder drains the outbound tier first so the balance store
// movements are computed before demand-tier merges re-home anything.
var CancellationReleaseOrder = ReleasePriorityOrder{
	name: "cancellation-release",
	ranks: map[models.DocType]int{
		models.DocTypeGoodDelivery: 1,
		models.DocTypePickingPlan:  1,
		models.DocTypeSalesOrder:   2,
		models.DocTypeProduction:   3,
	},
}

// OrphanCleanupOrder re-homes demand-tier orphans first so their quantities
// land on pending demand before outbound-tier stock is returned to
// unrestricted.
var OrphanCleanupOrder = ReleasePriorityOrder{
	name: "orphan-cleanup",
	ranks: map[models.DocType]int{
		models.DocTypeSalesOrder:        1,
		models.DocTypeProductionReceipt: 2,
		models.DocTypeGoodDelivery:      3,
	},
}

// sortCandidates orders rows by priority rank. The sort is stable: rows of the
// same tier keep their ledger order, which the merge accumulation depends on.
func sortCandidates(rows []*models.ItemAllocation, order ReleasePriorityOrder) {
	sort.SliceStable(rows, func(i, j int) bool {
		return order.Rank(rows[i].DocType) < order.Rank(rows[j].DocType)
	})
}

package models

import "errors"

// DocType identifies the document a ledger row belongs to. The raw values are
// the strings the upstream form platform writes into the ledger, so they keep
// their spaces.
type DocType string

const (
	DocTypeGoodDelivery      DocType = "Good Delivery"
	DocTypePickingPlan       DocType = "Picking Plan"
	DocTypeSalesOrder        DocType = "Sales Order"
	DocTypeProduction        DocType = "Production"
	DocTypeProductionReceipt DocType = "Production Receipt"
)

func (d DocType) String() string { return string(d) }

// IsOutboundConsuming reports whether rows of this type hold stock on behalf of
// an outbound document (and therefore release straight back to unrestricted)
// rather than being a demand line themselves.
func (d DocType) IsOutboundConsuming() bool {
	return d == DocTypeGoodDelivery || d == DocTypePickingPlan
}

type AllocationStatus string

const (
	AllocationStatusPending   AllocationStatus = "Pending"
	AllocationStatusAllocated AllocationStatus = "Allocated"
	AllocationStatusCancelled AllocationStatus = "Cancelled"
)

func (s AllocationStatus) String() string { return string(s) }

func (s *AllocationStatus) Parse(str string) error {
	switch str {
	case "Pending":
		*s = AllocationStatusPending
	case "Allocated":
		*s = AllocationStatusAllocated
	case "Cancelled":
		*s = AllocationStatusCancelled
	default:
		return errors.New("invalid allocation status")
	}
	return nil
}

// MovementKind is a balance-category transition applied atomically by the
// balance store. Only the reserved release kind belongs to this core; the
// other transitions are owned by the receiving/putaway workflows.
type MovementKind string

const (
	MovementReservedToUnrestricted MovementKind = "RESERVED_TO_UNRESTRICTED"
)

type CostingMethod string

const (
	CostingMethodFIFO            CostingMethod = "FIFO"
	CostingMethodWeightedAverage CostingMethod = "WEIGHTED_AVERAGE"
)

func (m CostingMethod) String() string { return string(m) }

func (m CostingMethod) IsValid() bool {
	return m == CostingMethodFIFO || m == CostingMethodWeightedAverage
}

// UsesLayers reports whether the method keeps per-receipt cost layers.
func (m CostingMethod) UsesLayers() bool {
	return m == CostingMethodFIFO
}

// MigrationScenario tells the costing migration engine how the data got into
// the state it is in. The caller decides by inspecting which costing tables
// hold rows for the key; the engine never queries.
type MigrationScenario string

const (
	// ScenarioWrongCollection: all data sits in the collection of the other
	// costing method. Convert wholesale.
	ScenarioWrongCollection MigrationScenario = "WRONG_COLLECTION"
	// ScenarioBothCollections: both costing tables hold rows for the key.
	// Merge the incorrect side into the target side.
	ScenarioBothCollections MigrationScenario = "BOTH_COLLECTIONS"
)

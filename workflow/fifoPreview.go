package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"bitbucket.org/mmdatafocus/stocklink_backend/utils"
	"github.com/shopspring/decimal"
)

// LayerConsumption is one (sequence, quantity) pair a delivery would consume.
type LayerConsumption struct {
	Sequence int             `json:"sequence"`
	Quantity decimal.Decimal `json:"quantity"`
}

type FifoPreview struct {
	Consumptions []LayerConsumption `json:"consumptions"`
	// Remaining is the unfulfillable portion when the layers cannot cover the
	// requested quantity. Zero on full coverage.
	Remaining decimal.Decimal `json:"remaining"`
	Summary   string          `json:"summary"`
}

// PreviewFifoConsumption greedily walks the layers oldest sequence first and
// reports which layers a delivery of the given quantity would draw down.
//
// Preview only: fifo_available_quantity is never mutated here. Actual
// consumption belongs to the posting workflow.
func PreviewFifoConsumption(layers []*models.FifoCostHistory, quantity decimal.Decimal) *FifoPreview {
	ordered := make([]*models.FifoCostHistory, 0, len(layers))
	for _, l := range layers {
		if l != nil {
			ordered = append(ordered, l)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FifoSequence < ordered[j].FifoSequence
	})

	preview := &FifoPreview{Consumptions: []LayerConsumption{}}
	remaining := quantity
	for _, layer := range ordered {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		consumed := decimal.Min(layer.FifoAvailableQuantity, remaining)
		if consumed.GreaterThan(decimal.Zero) {
			preview.Consumptions = append(preview.Consumptions, LayerConsumption{
				Sequence: layer.FifoSequence,
				Quantity: consumed,
			})
			remaining = remaining.Sub(consumed)
		}
	}
	if remaining.GreaterThan(decimal.Zero) {
		preview.Remaining = remaining
	} else {
		preview.Remaining = decimal.Zero
	}

	parts := make([]string, 0, len(preview.Consumptions))
	for _, c := range preview.Consumptions {
		parts = append(parts, fmt.Sprintf("%d(%s)", c.Sequence, c.Quantity.String()))
	}
	preview.Summary = strings.Join(parts, ", ")
	return preview
}

// PreviewFIFOSequences fetches the FIFO layers for a material and previews
// which cost layers a delivery of the given quantity would consume.
func PreviewFIFOSequences(ctx context.Context, materialId int, quantity decimal.Decimal) (*FifoPreview, error) {
	organizationId, ok := utils.GetOrganizationIdFromContext(ctx)
	if !ok || organizationId == "" {
		return nil, utils.ErrorOrganizationIdRequired
	}
	db := config.GetDB()
	if db == nil {
		return nil, utils.ErrorDBNotInitialized
	}
	layers, err := models.FindFifoLayersByMaterial(db.WithContext(ctx), organizationId, materialId)
	if err != nil {
		return nil, err
	}
	return PreviewFifoConsumption(layers, quantity), nil
}

package workflow

import (
	"testing"

	"bitbucket.org/mmdatafocus/stocklink_backend/models"
	"github.com/shopspring/decimal"
)

func layer(id, seq int, available, cost string) *models.FifoCostHistory {
	return &models.FifoCostHistory{
		ID:                    id,
		OrganizationId:        "org-1",
		PlantId:               "P1",
		MaterialId:            10,
		FifoSequence:          seq,
		FifoCostPrice:         qty(cost),
		FifoInitialQuantity:   qty(available),
		FifoAvailableQuantity: qty(available),
	}
}

func TestPreviewConsumesOldestSequenceFirst(t *testing.T) {
	// Deliberately out of order; the preview must sort by sequence.
	layers := []*models.FifoCostHistory{
		layer(3, 7, "4", "1.5"),
		layer(1, 2, "5", "1.0"),
		layer(2, 5, "3", "1.2"),
	}

	preview := PreviewFifoConsumption(layers, qty("9"))

	want := []LayerConsumption{
		{Sequence: 2, Quantity: qty("5")},
		{Sequence: 5, Quantity: qty("3")},
		{Sequence: 7, Quantity: qty("1")},
	}
	if len(preview.Consumptions) != len(want) {
		t.Fatalf("got %d consumptions, want %d", len(preview.Consumptions), len(want))
	}
	prevSeq := 0
	for i, c := range preview.Consumptions {
		if c.Sequence != want[i].Sequence || !c.Quantity.Equal(want[i].Quantity) {
			t.Errorf("consumption %d = %d(%s), want %d(%s)", i, c.Sequence, c.Quantity, want[i].Sequence, want[i].Quantity)
		}
		if c.Sequence <= prevSeq {
			t.Errorf("sequences not strictly ascending at %d", i)
		}
		prevSeq = c.Sequence
	}
	if !preview.Remaining.IsZero() {
		t.Errorf("remaining = %s, want 0", preview.Remaining)
	}
	if preview.Summary != "2(5), 5(3), 7(1)" {
		t.Errorf("summary = %q", preview.Summary)
	}
}

func TestPreviewNeverOverconsumesALayer(t *testing.T) {
	layers := []*models.FifoCostHistory{
		layer(1, 1, "2", "1.0"),
		layer(2, 2, "2", "1.0"),
	}
	preview := PreviewFifoConsumption(layers, qty("100"))

	for _, c := range preview.Consumptions {
		for _, l := range layers {
			if l.FifoSequence == c.Sequence && c.Quantity.GreaterThan(l.FifoInitialQuantity) {
				t.Errorf("seq %d consumed %s > available %s", c.Sequence, c.Quantity, l.FifoInitialQuantity)
			}
		}
	}
	if !preview.Remaining.Equal(qty("96")) {
		t.Errorf("remaining = %s, want 96", preview.Remaining)
	}
}

func TestPreviewSkipsEmptyLayersAndStopsWhenCovered(t *testing.T) {
	layers := []*models.FifoCostHistory{
		layer(1, 1, "0", "1.0"),
		layer(2, 2, "10", "1.0"),
		layer(3, 3, "10", "1.0"),
	}
	preview := PreviewFifoConsumption(layers, qty("4"))

	if len(preview.Consumptions) != 1 {
		t.Fatalf("got %d consumptions, want 1", len(preview.Consumptions))
	}
	if preview.Consumptions[0].Sequence != 2 || !preview.Consumptions[0].Quantity.Equal(qty("4")) {
		t.Errorf("consumption = %d(%s), want 2(4)", preview.Consumptions[0].Sequence, preview.Consumptions[0].Quantity)
	}
	if preview.Summary != "2(4)" {
		t.Errorf("summary = %q", preview.Summary)
	}
}

func TestPreviewDoesNotMutateLayers(t *testing.T) {
	l := layer(1, 1, "5", "1.0")
	PreviewFifoConsumption([]*models.FifoCostHistory{l}, qty("3"))
	if !l.FifoAvailableQuantity.Equal(qty("5")) {
		t.Errorf("layer available mutated to %s", l.FifoAvailableQuantity)
	}
}

func TestPreviewZeroQuantityRequestsNothing(t *testing.T) {
	preview := PreviewFifoConsumption([]*models.FifoCostHistory{layer(1, 1, "5", "1.0")}, decimal.Zero)
	if len(preview.Consumptions) != 0 || preview.Summary != "" {
		t.Errorf("expected empty preview, got %+v", preview)
	}
}

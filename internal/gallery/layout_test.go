package gallery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func images(ratios ...float64) []*Image {
	group := make([]*Image, len(ratios))
	for i, r := range ratios {
		group[i] = &Image{AspectRatio: r}
	}
	return group
}

// renderedWidth is the width an image occupies at its assigned height.
func renderedWidth(img *Image) float64 {
	return img.DisplayHeight * img.AspectRatio
}

// assertRowFill checks the row-fill invariant: the images of one
// completed row plus their inter-image margins exactly span the
// available width.
func assertRowFill(t *testing.T, row []*Image, avail float64) {
	t.Helper()
	total := Margin * float64(len(row)-1)
	for _, img := range row {
		total += renderedWidth(img)
	}
	assert.InEpsilon(t, avail, total, 1e-6, "row should exactly fill the container")
}

func TestFlowReferenceScenario(t *testing.T) {
	// Container 800, inset 2 -> 798 available. Five 3:2 images are
	// 240 wide at the default height; three fit (724 <= 798), the
	// fourth overflows. The trailing pair's exact fill (~265.3) blows
	// past the 1.10 cap (~194.1), so it reuses the first row's height.
	group := images(1.5, 1.5, 1.5, 1.5, 1.5)
	NewEngine().Flow(800, group)

	firstRowHeight := DefaultHeight * (798 - 2*Margin) / (3 * 1.5 * DefaultHeight)
	for i, img := range group[:3] {
		assert.InEpsilon(t, firstRowHeight, img.DisplayHeight, 1e-9, "image %d", i)
	}
	assertRowFill(t, group[:3], 798)

	for _, img := range group[3:] {
		assert.InEpsilon(t, firstRowHeight, img.DisplayHeight, 1e-9,
			"last row must be capped to the previous row height, not stretched")
	}
}

func TestFlowRowFillInvariant(t *testing.T) {
	ratios := []float64{1.78, 0.75, 1.33, 1.5, 1.0, 2.39, 0.56, 1.78, 1.78, 1.33, 0.8, 3.2, 1.5, 1.5}
	group := images(ratios...)
	engine := NewEngine()
	engine.Flow(1200, group)

	avail := 1200.0 - Inset
	// Recover row boundaries from the assigned heights: a height
	// change always starts a new row, and equal heights that would
	// overflow the container mark the capped last row.
	var start int
	for i := 1; i <= len(group); i++ {
		if i == len(group) {
			break // final row is exempt from exact fill
		}
		if group[i].DisplayHeight != group[start].DisplayHeight {
			assertRowFill(t, group[start:i], avail)
			start = i
		}
	}
	require.Greater(t, start, 0, "expected more than one row")

	for _, img := range group {
		assert.Positive(t, img.DisplayHeight)
	}
}

func TestFlowAspectRatioPreserved(t *testing.T) {
	group := images(1.78, 0.56, 1.0, 2.39)
	NewEngine().Flow(640, group)
	for _, img := range group {
		require.Positive(t, img.DisplayHeight)
		assert.Equal(t, img.AspectRatio, renderedWidth(img)/img.DisplayHeight)
	}
}

func TestFlowIdempotent(t *testing.T) {
	group := images(1.78, 1.78, 1.78, 1.78, 1.78, 0.56, 1.0)
	engine := NewEngine()

	engine.Flow(1024, group)
	first := make([]float64, len(group))
	for i, img := range group {
		first[i] = img.DisplayHeight
	}

	engine.Flow(1024, group)
	for i, img := range group {
		assert.Equal(t, first[i], img.DisplayHeight, "image %d", i)
	}
}

func TestFlowLastRowCap(t *testing.T) {
	// Several 16:9 images followed by one very narrow portrait. The
	// narrow straggler alone would have to stretch enormously to fill
	// the row, so it must inherit the previous row's height instead.
	group := images(1.78, 1.78, 1.78, 1.78, 1.78, 1.78, 1.78, 0.1)
	NewEngine().Flow(900, group)

	last := group[len(group)-1]
	prev := group[len(group)-2]
	require.Positive(t, prev.DisplayHeight)
	assert.LessOrEqual(t, last.DisplayHeight, prev.DisplayHeight*maxStretch+1e-9)
}

func TestFlowSingleRowStretchesUnconditionally(t *testing.T) {
	// The whole group fits one row: no previous row exists, so the
	// exact-fill height applies even when it is far above the default.
	group := images(1.0, 1.0)
	NewEngine().Flow(800, group)

	want := DefaultHeight * (798 - Margin) / (2 * DefaultHeight)
	for _, img := range group {
		assert.InEpsilon(t, want, img.DisplayHeight, 1e-9)
	}
	assertRowFill(t, group, 798)
}

func TestFlowSingleOversizedImage(t *testing.T) {
	// Wider than the container at the default height: forms its own
	// row and is scaled down to fit exactly.
	group := images(8.0)
	NewEngine().Flow(800, group)

	assert.InEpsilon(t, DefaultHeight*798/(8.0*DefaultHeight), group[0].DisplayHeight, 1e-9)
	assertRowFill(t, group, 798)
}

func TestFlowEmptyGroupIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		NewEngine().Flow(800, nil)
		NewEngine().Flow(800, []*Image{})
	})
}

func TestFlowZeroWidthContainer(t *testing.T) {
	group := images(1.5, 1.5, 1.5)
	assert.NotPanics(t, func() {
		NewEngine().Flow(0, group)
	})
	for _, img := range group {
		assert.GreaterOrEqual(t, img.DisplayHeight, 0.0, "degenerate containers must not yield negative heights")
	}
}

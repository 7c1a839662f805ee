// Package gallery implements the browser-side logic of the photo
// gallery: justified thumbnail-row layout, page-number input handling
// and the resize dispatch that ties the two to a host viewport.
package gallery

// Layout constants. Heights and widths are CSS pixels.
const (
	// DefaultHeight is the target row height rows are packed against
	// before the exact-fill correction is applied.
	DefaultHeight = 160.0
	// Margin is the fixed gap between adjacent images in a row.
	Margin = 2.0
	// Inset is subtracted from the measured container width before
	// packing, matching the container's own horizontal padding.
	Inset = 2.0

	// maxStretch caps how far the last row may grow past the previous
	// row's height before we give up on exact fill. The 1.10 factor is
	// a deliberate aesthetic cutoff, not a derived constant.
	maxStretch = 1.10
)

// Image is one thumbnail to lay out. AspectRatio (natural width over
// natural height) is supplied by the host and never modified;
// DisplayHeight is the engine's only output.
type Image struct {
	AspectRatio   float64
	DisplayHeight float64
}

// Engine computes justified row layouts. The zero value is not useful;
// construct one with NewEngine.
type Engine struct {
	defaultHeight float64
	margin        float64
	inset         float64
}

// NewEngine returns an engine packing rows against the package
// defaults.
func NewEngine() Engine {
	return Engine{defaultHeight: DefaultHeight, margin: Margin, inset: Inset}
}

// Flow assigns DisplayHeight to every image in group so that each
// completed row exactly fills containerWidth (minus the inset),
// preserving every aspect ratio. The final row is exact-filled unless
// that would stretch it past maxStretch times the previous row's
// height, in which case the previous height is reused. Flow is a full
// recompute: it is deterministic and idempotent for a fixed width.
func (e Engine) Flow(containerWidth float64, group []*Image) {
	if len(group) == 0 {
		return
	}
	avail := containerWidth - e.inset

	var (
		row        []*Image
		rowWidth   float64 // widths at defaultHeight, margins excluded
		prevHeight float64
		havePrev   bool
	)
	for _, img := range group {
		w := e.defaultHeight * img.AspectRatio
		// A row of n images carries n-1 inter-image margins, so
		// accepting this image adds len(row) boundaries. An empty row
		// accepts unconditionally: an image wider than the container
		// still forms its own row and is scaled down on close.
		if len(row) > 0 && rowWidth+w+e.margin*float64(len(row)) > avail {
			prevHeight = e.closeRow(row, rowWidth, avail)
			havePrev = true
			row = row[:0]
			rowWidth = 0
		}
		row = append(row, img)
		rowWidth += w
	}

	// The last row may legitimately be short. Exact fill would blow
	// tiny trailing rows up to grotesque sizes, so cap it against the
	// previous row; with no previous row the exact fill stands.
	h := e.rowHeight(len(row), rowWidth, avail)
	if havePrev && h > prevHeight*maxStretch {
		h = prevHeight
	}
	for _, img := range row {
		img.DisplayHeight = h
	}
}

// rowHeight is the uniform height at which n images of combined
// unscaled width rowWidth exactly fill avail, margins included.
func (e Engine) rowHeight(n int, rowWidth, avail float64) float64 {
	margins := e.margin * float64(n-1)
	h := e.defaultHeight * (avail - margins) / rowWidth
	if h < 0 {
		// Degenerate container narrower than its own margins.
		return 0
	}
	return h
}

func (e Engine) closeRow(row []*Image, rowWidth, avail float64) float64 {
	h := e.rowHeight(len(row), rowWidth, avail)
	for _, img := range row {
		img.DisplayHeight = h
	}
	return h
}

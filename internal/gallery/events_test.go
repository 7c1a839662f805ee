package gallery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinderResizeReflowsEverySection(t *testing.T) {
	first := images(1.5, 1.5, 1.5, 1.5, 1.5)
	second := images(1.0, 1.0)

	width := 800.0
	binder := NewBinder(NewEngine())
	binder.Bind(func() float64 { return width }, first)
	binder.Bind(func() float64 { return width }, second)

	binder.Resize()
	for _, img := range append(append([]*Image{}, first...), second...) {
		require.Positive(t, img.DisplayHeight)
	}
	before := first[0].DisplayHeight

	// Groups are independent: the two-image section fills its single
	// row regardless of what the other section does.
	assert.InEpsilon(t, DefaultHeight*(798-Margin)/(2*DefaultHeight), second[0].DisplayHeight, 1e-9)

	// A narrower viewport must produce a different packing on the next
	// trigger; the latest result is authoritative.
	width = 500
	binder.Resize()
	assert.NotEqual(t, before, first[0].DisplayHeight)
	assertRowFill(t, second, 498)
}

func TestBinderWithoutSections(t *testing.T) {
	assert.NotPanics(t, func() { NewBinder(NewEngine()).Resize() })
}

package gallery

// Section ties one independently packed image group to the container
// it is measured against. Width is re-read on every trigger because
// the container may have been resized.
type Section struct {
	Width func() float64
	Group []*Image
}

// Binder is the synchronous dispatch point for viewport events. Hosts
// register every {container, group} pair once and invoke Resize on
// load and on each "container resized" event. Binder is not safe for
// concurrent use: the contract is a single-threaded event loop, and a
// flood of triggers should be debounced by the host, never run in
// parallel.
type Binder struct {
	engine   Engine
	sections []Section
}

// NewBinder returns a Binder that lays sections out with engine.
func NewBinder(engine Engine) *Binder {
	return &Binder{engine: engine}
}

// Bind registers a section. Order is irrelevant; groups never share
// state.
func (b *Binder) Bind(width func() float64, group []*Image) {
	b.sections = append(b.sections, Section{Width: width, Group: group})
}

// Resize re-measures every section and recomputes its layout from
// scratch. The latest invocation is authoritative.
func (b *Binder) Resize() {
	for _, s := range b.sections {
		b.engine.Flow(s.Width(), s.Group)
	}
}

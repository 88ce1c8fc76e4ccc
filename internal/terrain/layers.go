package terrain

import "fmt"

// LayerSet holds at most one grid per kind. It is owned by a single
// goroutine; readers get immutable grids through Layer.
type LayerSet struct {
	grids [layerKinds]*Grid
}

func NewLayerSet() *LayerSet { return &LayerSet{} }

// Add stores g, replacing any grid of the same kind. A grid whose size
// disagrees with another populated layer is rejected and the set is left
// unchanged.
func (s *LayerSet) Add(g *Grid) error {
	if g == nil {
		return ErrNoImage
	}
	if g.kind < 0 || g.kind >= layerKinds {
		return fmt.Errorf("terrain: unknown layer kind %d", int(g.kind))
	}
	for k, other := range s.grids {
		if other == nil || LayerKind(k) == g.kind {
			continue
		}
		if other.width != g.width || other.height != g.height {
			return fmt.Errorf("%w: %s is %dx%d, %s is %dx%d",
				ErrDimensionMismatch, g.kind, g.width, g.height, other.kind, other.width, other.height)
		}
	}
	s.grids[g.kind] = g
	return nil
}

// Layer returns the grid of kind k, or nil.
func (s *LayerSet) Layer(k LayerKind) *Grid {
	if k < 0 || k >= layerKinds {
		return nil
	}
	return s.grids[k]
}

// Remove drops the grid of kind k.
func (s *LayerSet) Remove(k LayerKind) {
	if k >= 0 && k < layerKinds {
		s.grids[k] = nil
	}
}

// Dimensions reports the size of the first populated layer, or (0, 0).
func (s *LayerSet) Dimensions() (int, int) {
	for _, g := range s.grids {
		if g != nil {
			return g.width, g.height
		}
	}
	return 0, 0
}

// Empty reports whether no layer is populated.
func (s *LayerSet) Empty() bool {
	for _, g := range s.grids {
		if g != nil {
			return false
		}
	}
	return true
}

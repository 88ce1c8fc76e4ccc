// Package terrain turns the engine's packed map images into dense per-cell
// grids and blends them into display colours.
package terrain

import (
	"bytes"
	"errors"
	"fmt"

	"sc2tap.ai/internal/protocol"
)

var (
	ErrUnsupportedDepth  = errors.New("terrain: unsupported bits per pixel")
	ErrSizeMismatch      = errors.New("terrain: payload size does not match dimensions")
	ErrDimensionMismatch = errors.New("terrain: layer dimensions disagree")
	ErrNoImage           = errors.New("terrain: missing image")
)

// LayerKind identifies one terrain property grid.
type LayerKind int

const (
	Pathing LayerKind = iota
	Placement
	Height
	Creep
	Energy

	layerKinds
)

func (k LayerKind) String() string {
	switch k {
	case Pathing:
		return "pathing"
	case Placement:
		return "placement"
	case Height:
		return "height"
	case Creep:
		return "creep"
	case Energy:
		return "energy"
	default:
		return fmt.Sprintf("layer(%d)", int(k))
	}
}

// Static layers are sent once per game; dynamic ones change per tick.
func (k LayerKind) Static() bool { return k == Pathing || k == Placement || k == Height }

// Grid is one decoded layer: width*height bytes, rows first. A Grid is never
// mutated after construction.
type Grid struct {
	kind   LayerKind
	width  int
	height int
	cells  []byte
}

// NewGrid copies cells into a new grid. len(cells) must equal width*height.
func NewGrid(kind LayerKind, width, height int, cells []byte) (*Grid, error) {
	if width < 0 || height < 0 || len(cells) != width*height {
		return nil, fmt.Errorf("%w: %s %dx%d with %d cells", ErrSizeMismatch, kind, width, height, len(cells))
	}
	return &Grid{kind: kind, width: width, height: height, cells: bytes.Clone(cells)}, nil
}

func (g *Grid) Kind() LayerKind { return g.kind }
func (g *Grid) Width() int      { return g.width }
func (g *Grid) Height() int     { return g.height }

// Value returns the cell at (x, y), or 0 for coordinates outside the grid.
func (g *Grid) Value(x, y int) uint8 {
	if g == nil || x < 0 || y < 0 || x >= g.width || y >= g.height {
		return 0
	}
	return g.cells[y*g.width+x]
}

// Bytes returns a copy of the cells.
func (g *Grid) Bytes() []byte { return bytes.Clone(g.cells) }

// Equal reports whether both grids hold the same kind, size and cells.
func (g *Grid) Equal(o *Grid) bool {
	if g == nil || o == nil {
		return g == o
	}
	return g.kind == o.kind && g.width == o.width && g.height == o.height && bytes.Equal(g.cells, o.cells)
}

// DecodeImage unpacks an engine image into a grid of the given kind.
//
// 1 bit images are unpacked most significant bit first and widened to 0/255.
// 8 bit images are copied as is and must hold exactly width*height bytes.
// Any other depth is rejected.
func DecodeImage(kind LayerKind, img *protocol.ImageData) (*Grid, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoImage, kind)
	}
	w, h := int(img.Size.X), int(img.Size.Y)
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("%w: %s has negative size %dx%d", ErrSizeMismatch, kind, w, h)
	}
	n := w * h

	switch img.BitsPerPixel {
	case 1:
		if len(img.Data)*8 < n {
			return nil, fmt.Errorf("%w: %s needs %d bits, got %d bytes", ErrSizeMismatch, kind, n, len(img.Data))
		}
		return &Grid{kind: kind, width: w, height: h, cells: unpackBits(img.Data, n)}, nil
	case 8:
		if len(img.Data) != n {
			return nil, fmt.Errorf("%w: %s %dx%d with %d bytes", ErrSizeMismatch, kind, w, h, len(img.Data))
		}
		return &Grid{kind: kind, width: w, height: h, cells: bytes.Clone(img.Data)}, nil
	default:
		return nil, fmt.Errorf("%w: %s has %d", ErrUnsupportedDepth, kind, img.BitsPerPixel)
	}
}

// MustDecodeImage is DecodeImage for callers that treat a bad image as a bug.
func MustDecodeImage(kind LayerKind, img *protocol.ImageData) *Grid {
	g, err := DecodeImage(kind, img)
	if err != nil {
		panic(err)
	}
	return g
}

// unpackBits expands the first n bits of packed, MSB first, to 0 or 255.
func unpackBits(packed []byte, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		if packed[i>>3]&(0x80>>uint(i&7)) != 0 {
			out[i] = 255
		}
	}
	return out
}

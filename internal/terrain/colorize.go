package terrain

import (
	"math"

	"sc2tap.ai/internal/protocol"
)

// defaultHeight is used for cells when no height layer has arrived yet.
const defaultHeight = 128

// ColorGrid is the blended colour of every cell, rows first.
type ColorGrid struct {
	Width  int
	Height int
	Cells  []Color
}

// At returns the colour at (x, y), or the zero colour out of range.
func (c ColorGrid) At(x, y int) Color {
	if x < 0 || y < 0 || x >= c.Width || y >= c.Height {
		return Color{}
	}
	return c.Cells[y*c.Width+x]
}

// RGB packs the grid as 3 bytes per cell.
func (c ColorGrid) RGB() []byte {
	out := make([]byte, 0, len(c.Cells)*3)
	for _, col := range c.Cells {
		p := col.RGB8()
		out = append(out, p[0], p[1], p[2])
	}
	return out
}

// Colorize blends every cell of s. Missing layers read as 0, except height
// which reads as mid grey.
func Colorize(s *LayerSet, style Style) ColorGrid {
	w, h := s.Dimensions()
	out := ColorGrid{Width: w, Height: h, Cells: make([]Color, w*h)}
	pathing := s.Layer(Pathing)
	placement := s.Layer(Placement)
	heights := s.Layer(Height)
	creep := s.Layer(Creep)
	energy := s.Layer(Energy)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hv := uint8(defaultHeight)
			if heights != nil {
				hv = heights.Value(x, y)
			}
			out.Cells[y*w+x] = Blend(
				pathing.Value(x, y),
				placement.Value(x, y),
				creep.Value(x, y),
				energy.Value(x, y),
				hv,
				style,
			)
		}
	}
	return out
}

// RasterizePower builds the energy layer from power source circles. A cell
// is powered when its centre lies within a source's radius.
func RasterizePower(width, height int, sources []protocol.PowerSource) *Grid {
	cells := make([]byte, width*height)
	for _, src := range sources {
		r := float64(src.Radius)
		if r <= 0 {
			continue
		}
		cx, cy := float64(src.Pos.X), float64(src.Pos.Y)
		x0 := clampInt(int(math.Floor(cx-r)), 0, width)
		x1 := clampInt(int(math.Ceil(cx+r)), 0, width)
		y0 := clampInt(int(math.Floor(cy-r)), 0, height)
		y1 := clampInt(int(math.Ceil(cy+r)), 0, height)
		for y := y0; y < y1; y++ {
			dy := float64(y) + 0.5 - cy
			for x := x0; x < x1; x++ {
				dx := float64(x) + 0.5 - cx
				if dx*dx+dy*dy <= r*r {
					cells[y*width+x] = 255
				}
			}
		}
	}
	return &Grid{kind: Energy, width: width, height: height, cells: cells}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package terrain

// Color is a linear RGBA colour with channels in [0, 1].
type Color struct {
	R, G, B, A float32
}

// RGB is the configuration form of a colour.
type RGB [3]float32

func (c RGB) Color() Color { return Color{R: c[0], G: c[1], B: c[2], A: 1} }

// RGB8 quantizes c to bytes, clamping out of range channels.
func (c Color) RGB8() [3]byte {
	return [3]byte{channel8(c.R), channel8(c.G), channel8(c.B)}
}

func channel8(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return byte(v*255 + 0.5)
	}
}

// Style configures the blender. It carries constants only.
type Style struct {
	TerrainBlocked   RGB        `yaml:"terrain_blocked" json:"terrain_blocked"`
	TerrainPathable  RGB        `yaml:"terrain_pathable" json:"terrain_pathable"`
	TerrainPlaceable RGB        `yaml:"terrain_placeable" json:"terrain_placeable"`
	TerrainBoth      RGB        `yaml:"terrain_both" json:"terrain_both"`
	Creep            RGB        `yaml:"creep" json:"creep"`
	Energy           RGB        `yaml:"energy" json:"energy"`
	HeightIntensity  [2]float32 `yaml:"height_intensity" json:"height_intensity"`
	TileSize         float32    `yaml:"tile_size" json:"tile_size"`
}

// DefaultStyle is the dark theme: near black blocked cells, greys for
// pathable/placeable ground, purple creep and blue power fields.
func DefaultStyle() Style {
	return Style{
		TerrainBlocked:   RGB{0.05, 0.05, 0.05},
		TerrainPathable:  RGB{0.12, 0.12, 0.13},
		TerrainPlaceable: RGB{0.18, 0.18, 0.20},
		TerrainBoth:      RGB{0.22, 0.22, 0.24},
		Creep:            RGB{0.4, 0.1, 0.5},
		Energy:           RGB{0.1, 0.3, 0.6},
		HeightIntensity:  [2]float32{0.6, 1.0},
		TileSize:         16,
	}
}

// TerrainColor picks one of the four ground colours.
func (s Style) TerrainColor(pathable, placeable bool) Color {
	switch {
	case pathable && placeable:
		return s.TerrainBoth.Color()
	case pathable:
		return s.TerrainPathable.Color()
	case placeable:
		return s.TerrainPlaceable.Color()
	default:
		return s.TerrainBlocked.Color()
	}
}

// Blend maps one cell's layer values to a colour. Creep wins over energy,
// energy wins over ground; the result is then scaled by height. Alpha is
// always 1.
func Blend(pathing, placement, creep, energy, height uint8, s Style) Color {
	var base Color
	switch {
	case creep > 0:
		base = s.Creep.Color()
	case energy > 0:
		base = s.Energy.Color()
	default:
		base = s.TerrainColor(pathing > 0, placement > 0)
	}

	lo, hi := s.HeightIntensity[0], s.HeightIntensity[1]
	k := lo + (float32(height)/255)*(hi-lo)
	return Color{R: base.R * k, G: base.G * k, B: base.B * k, A: base.A}
}

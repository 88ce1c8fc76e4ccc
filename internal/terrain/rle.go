package terrain

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Palettize replaces each cell's RGB with an index into a palette of the
// distinct colours, in first-seen order. Ground colours times a handful of
// height levels keep the palette small.
func Palettize(c ColorGrid) (palette [][3]byte, ids []uint16, err error) {
	index := make(map[[3]byte]uint16)
	ids = make([]uint16, len(c.Cells))
	for i, col := range c.Cells {
		p := col.RGB8()
		id, ok := index[p]
		if !ok {
			if len(palette) > 0xFFFF {
				return nil, nil, fmt.Errorf("terrain: palette overflow at cell %d", i)
			}
			id = uint16(len(palette))
			index[p] = id
			palette = append(palette, p)
		}
		ids[i] = id
	}
	return palette, ids, nil
}

// EncodeRLE encodes palette ids into base64(varint pairs).
// The pairs are (palette_id, run_len) repeated.
func EncodeRLE(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(b))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. max bounds the decoded length so a hostile
// run cannot exhaust memory; pass a negative max for no bound.
func DecodeRLE(b64 string, max int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if b > 0xFFFF {
			return nil, fmt.Errorf("palette id too large: %d", b)
		}
		if run == 0 {
			return nil, fmt.Errorf("empty run at %d", i)
		}
		if max >= 0 && run > uint64(max-len(out)) {
			return nil, fmt.Errorf("run exceeds %d cells", max)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(b))
		}
	}
	return out, nil
}

package presence

import (
	"context"
	"image"
)

// PixelHeuristic is the fallback detector used when no real face detector is
// available. It classifies presence by the share of skin-toned pixels in the
// center of the frame: enough skin reads as one face, otherwise none. It can
// never distinguish multiple faces and reports no landmarks.
type PixelHeuristic struct {
	// Threshold is the minimum skin-pixel ratio that counts as presence.
	// Defaults to 0.04.
	Threshold float64
}

func (p *PixelHeuristic) Name() string    { return "pixel-heuristic" }
func (p *PixelHeuristic) Available() bool { return true }

func (p *PixelHeuristic) Detect(_ context.Context, frame image.Image) ([]Face, error) {
	if frame == nil {
		return nil, nil
	}

	threshold := p.Threshold
	if threshold <= 0 {
		threshold = 0.04
	}

	b := frame.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, nil
	}

	// Sample the center two-thirds of the frame on a sparse grid.
	x0 := b.Min.X + b.Dx()/6
	x1 := b.Max.X - b.Dx()/6
	y0 := b.Min.Y + b.Dy()/6
	y1 := b.Max.Y - b.Dy()/6

	step := b.Dx() / 64
	if step < 1 {
		step = 1
	}

	var total, skin int
	for y := y0; y < y1; y += step {
		for x := x0; x < x1; x += step {
			total++
			r, g, bl, _ := frame.At(x, y).RGBA()
			if isSkinTone(uint8(r>>8), uint8(g>>8), uint8(bl>>8)) {
				skin++
			}
		}
	}
	if total == 0 {
		return nil, nil
	}

	if float64(skin)/float64(total) >= threshold {
		return []Face{{}}, nil
	}
	return nil, nil
}

// isSkinTone is a loose RGB rule: red dominant over blue, green in between,
// and not too dark. It misfires on beige walls, which is acceptable for a
// presence signal of last resort.
func isSkinTone(r, g, b uint8) bool {
	return r > 95 && g > 40 && b > 20 &&
		r > b && int(r)-int(b) > 15 &&
		r >= g && int(maxU8(r, g, b))-int(minU8(r, g, b)) > 15
}

func maxU8(vals ...uint8) uint8 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minU8(vals ...uint8) uint8 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

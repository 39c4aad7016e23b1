package compositor

import (
	"math"

	"github.com/yazidnurfadil/mosque-hero/internal/frames"
)

// Layout is the resolved placement of a portrait on a frame canvas.
type Layout struct {
	CanvasWidth  int
	CanvasHeight int
	Width        int
	Height       int
	OffsetX      int
	OffsetY      int
}

// FitInside scales (w, h) to fit inside (maxW, maxH) keeping the aspect ratio.
// Sources already inside the box keep their size; they are never enlarged.
func FitInside(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 || maxW <= 0 || maxH <= 0 {
		return 0, 0
	}
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	fw := clamp(int(math.Round(float64(w)*scale)), 1, maxW)
	fh := clamp(int(math.Round(float64(h)*scale)), 1, maxH)
	return fw, fh
}

// Placement centers a (w, h) portrait on the canvas, lifting it by captionBias.
func Placement(canvasW, canvasH, w, h, captionBias int) (int, int) {
	x := int(math.Round(float64(canvasW-w) / 2))
	y := int(math.Round(float64(canvasH-h)/2)) - captionBias
	return clamp(x, 0, max(canvasW-w, 0)), clamp(y, 0, max(canvasH-h, 0))
}

// ComputeLayout resolves the portrait geometry for a descriptor and source size.
func ComputeLayout(d frames.Descriptor, srcW, srcH int) Layout {
	boxW, boxH := d.TargetBox()
	w, h := FitInside(srcW, srcH, boxW, boxH)
	x, y := Placement(d.CanvasWidth, d.CanvasHeight, w, h, d.CaptionBias)
	return Layout{
		CanvasWidth:  d.CanvasWidth,
		CanvasHeight: d.CanvasHeight,
		Width:        w,
		Height:       h,
		OffsetX:      x,
		OffsetY:      y,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

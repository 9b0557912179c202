package compose

import (
	"image"
	"math"
)

// coverWindow computes the source crop window that makes src cover dst
// without letterboxing or distortion. Only the crop window changes between
// the wide and tall cases; the cropped region always scales uniformly.
func coverWindow(src, dst image.Rectangle) image.Rectangle {
	srcW, srcH := src.Dx(), src.Dy()
	dstAspect := float64(dst.Dx()) / float64(dst.Dy())
	srcAspect := float64(srcW) / float64(srcH)

	if srcAspect > dstAspect {
		// Source is relatively wider: crop width, use full height.
		winW := int(math.Round(float64(srcH) * dstAspect))
		if winW < 1 {
			winW = 1
		}
		x := src.Min.X + (srcW-winW)/2
		return image.Rect(x, src.Min.Y, x+winW, src.Max.Y)
	}

	// Source is relatively taller or equal: crop height, use full width.
	winH := int(math.Round(float64(srcW) / dstAspect))
	if winH < 1 {
		winH = 1
	}
	y := src.Min.Y + (srcH-winH)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+winH)
}

// centeredSquare computes the centered square crop window of r with edge
// min(width, height).
func centeredSquare(r image.Rectangle) image.Rectangle {
	size := r.Dx()
	if r.Dy() < size {
		size = r.Dy()
	}
	x := r.Min.X + (r.Dx()-size)/2
	y := r.Min.Y + (r.Dy()-size)/2
	return image.Rect(x, y, x+size, y+size)
}

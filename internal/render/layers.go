package render

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// transform returns a scaled and optionally flipped copy of src. src is never
// written to.
func transform(src *image.RGBA, scale float64, flipH, flipV bool) *image.RGBA {
	bounds := src.Bounds()
	width := max(int(float64(bounds.Dx())*scale), 1)
	height := max(int(float64(bounds.Dy())*scale), 1)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	if width == bounds.Dx() && height == bounds.Dy() {
		xdraw.Copy(dst, image.Point{}, src, bounds, xdraw.Src, nil)
	} else {
		xdraw.BiLinear.Scale(dst, dst.Bounds(), src, bounds, xdraw.Src, nil)
	}

	if flipH {
		mirrorHorizontal(dst)
	}

	if flipV {
		mirrorVertical(dst)
	}

	return dst
}

func mirrorHorizontal(img *image.RGBA) {
	width := img.Bounds().Dx()

	for y := range img.Bounds().Dy() {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for left, right := 0, width-1; left < right; left, right = left+1, right-1 {
			l, r := row[left*4:left*4+4], row[right*4:right*4+4]
			for c := range 4 {
				l[c], r[c] = r[c], l[c]
			}
		}
	}
}

func mirrorVertical(img *image.RGBA) {
	rowBytes := img.Bounds().Dx() * 4
	swap := make([]byte, rowBytes)

	for top, bottom := 0, img.Bounds().Dy()-1; top < bottom; top, bottom = top+1, bottom-1 {
		upper := img.Pix[top*img.Stride : top*img.Stride+rowBytes]
		lower := img.Pix[bottom*img.Stride : bottom*img.Stride+rowBytes]
		copy(swap, upper)
		copy(upper, lower)
		copy(lower, swap)
	}
}

// crossfade linearly mixes from and to, weight being the share of to. Both
// images are centred on a canvas large enough to hold either.
func crossfade(from, to *image.RGBA, weight float64) *image.RGBA {
	weight = math.Min(math.Max(weight, 0), 1)

	width := max(from.Bounds().Dx(), to.Bounds().Dx())
	height := max(from.Bounds().Dy(), to.Bounds().Dy())
	out := image.NewRGBA(image.Rect(0, 0, width, height))

	a := centred(from, width, height)
	b := centred(to, width, height)

	for i := range out.Pix {
		mixed := float64(a.Pix[i])*(1-weight) + float64(b.Pix[i])*weight
		out.Pix[i] = uint8(math.Round(mixed))
	}

	return out
}

func centred(src *image.RGBA, width, height int) *image.RGBA {
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height && src.Rect.Min == (image.Point{}) {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	at := image.Pt((width-src.Bounds().Dx())/2, (height-src.Bounds().Dy())/2)
	xdraw.Copy(dst, at, src, src.Bounds(), xdraw.Src, nil)

	return dst
}

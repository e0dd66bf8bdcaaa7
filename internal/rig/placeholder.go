package rig

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Placeholder geometry.
const (
	PlaceholderSize   = 200
	placeholderBorder = 2
)

var (
	placeholderBorderColor = color.NRGBA{R: 255, A: 128}
	placeholderTextColor   = color.NRGBA{R: 255, A: 255}
)

// Placeholder returns a transparent square with a translucent red border and
// the missing file's name written across its middle.
func Placeholder(label string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, PlaceholderSize, PlaceholderSize))
	border := image.NewUniform(placeholderBorderColor)

	edges := []image.Rectangle{
		image.Rect(0, 0, PlaceholderSize, placeholderBorder),
		image.Rect(0, PlaceholderSize-placeholderBorder, PlaceholderSize, PlaceholderSize),
		image.Rect(0, placeholderBorder, placeholderBorder, PlaceholderSize-placeholderBorder),
		image.Rect(PlaceholderSize-placeholderBorder, placeholderBorder, PlaceholderSize, PlaceholderSize-placeholderBorder),
	}
	for _, edge := range edges {
		draw.Draw(img, edge, border, image.Point{}, draw.Src)
	}

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(placeholderTextColor),
		Face: face,
	}

	width := drawer.MeasureString(label).Ceil()
	x := max((PlaceholderSize-width)/2, placeholderBorder)
	y := (PlaceholderSize + face.Ascent - face.Descent) / 2
	drawer.Dot = fixed.P(x, y)
	drawer.DrawString(label)

	return img
}

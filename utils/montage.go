package utils

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

const titleHeight = 18

// Tile is one titled image of a montage.
type Tile struct {
	Image image.Image
	Title string
}

// Montage lays tiles out row-major on a white canvas, cols per row. Each
// tile is scaled to tileWidth (aspect kept) and captioned above.
func Montage(tiles []Tile, cols, tileWidth int) *image.NRGBA {
	if len(tiles) == 0 {
		return imaging.New(1, 1, color.White)
	}
	cols = max(1, min(cols, len(tiles)))
	rows := (len(tiles) + cols - 1) / cols

	cells := make([]image.Image, len(tiles))
	cellH := 0
	for i, t := range tiles {
		cells[i] = titledCell(t, tileWidth)
		cellH = max(cellH, cells[i].Bounds().Dy())
	}

	canvas := imaging.New(cols*tileWidth, rows*cellH, color.White)
	for i, c := range cells {
		pos := image.Pt((i%cols)*tileWidth, (i/cols)*cellH)
		canvas = imaging.Paste(canvas, c, pos)
	}
	return canvas
}

func titledCell(t Tile, width int) image.Image {
	thumb := imaging.Resize(t.Image, width, 0, imaging.Lanczos)
	dc := gg.NewContext(width, thumb.Bounds().Dy()+titleHeight)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(thumb, 0, titleHeight)
	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(t.Title, float64(width)/2, titleHeight/2, 0.5, 0.5)
	return dc.Image()
}

package utils

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"

	"github.com/carbocation/pfx"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ReadImage decodes a PNG, JPEG, GIF, BMP, TIFF or WebP file.
func ReadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer file.Close()
	img, format, err := image.Decode(file)
	if err != nil {
		return nil, pfx.Err(fmt.Errorf("decoding %s: %w", path, err))
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, pfx.Err(fmt.Errorf("%s: empty %s image", path, format))
	}
	return img, nil
}

// FlattenRGB drops the alpha channel: every pixel keeps its straight RGB
// value and becomes opaque.
func FlattenRGB(img image.Image) *image.NRGBA {
	out := imaging.Clone(img)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

// SaveImage writes img as an 8-bit RGB PNG.
func SaveImage(img image.Image, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return pfx.Err(err)
	}
	if err := png.Encode(f, FlattenRGB(img)); err != nil {
		f.Close()
		return pfx.Err(err)
	}
	return pfx.Err(f.Close())
}

func SavePalette(palette []colorful.Color, tileSize int, filename string) error {
	if len(palette) == 0 {
		return fmt.Errorf("empty palette")
	}
	if tileSize <= 0 {
		tileSize = 64
	}
	img := imaging.New(tileSize*len(palette), tileSize, color.Black)
	for i, c := range palette {
		r, g, b := c.Clamped().RGB255()
		swatch := imaging.New(tileSize, tileSize, color.NRGBA{R: r, G: g, B: b, A: 255})
		img = imaging.Paste(img, swatch, image.Pt(i*tileSize, 0))
	}
	return SaveImage(img, filename)
}

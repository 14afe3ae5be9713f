// Package tiles draws the built-in fallback images: the transparent blank
// used for empty slots and the error tile substituted for failed renders.
package tiles

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Size is the edge length of a device tile.
const Size = 196

var errorFill = color.NRGBA{R: 0x8B, G: 0x1A, B: 0x1A, A: 0xFF}

// Blank returns a fully transparent tile.
func Blank() *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, Size, Size))
}

// Error returns a red tile with label centred in white.
func Error(label string) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, Size, Size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: errorFill}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	w := d.MeasureString(label).Ceil()
	h := face.Metrics().Ascent.Ceil()
	d.Dot = fixed.P((Size-w)/2, (Size+h)/2)
	d.DrawString(label)
	return img
}

// Write encodes img as PNG at path through a temporary file.
func Write(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Ensure writes img to path unless a file is already there. It is used to
// seed the blank and error tiles on first start.
func Ensure(path string, img func() image.Image) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return Write(path, img())
}

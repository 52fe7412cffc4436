// Package imageout turns accumulated framebuffer samples into viewable images.
package imageout

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"path/filepath"
	"strings"

	"lumen/framebuffer"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

type Format int

const (
	FormatPPM Format = iota
	FormatPNG
	FormatBMP
	FormatTIFF
)

func (f Format) String() string {
	switch f {
	case FormatPPM:
		return "ppm"
	case FormatPNG:
		return "png"
	case FormatBMP:
		return "bmp"
	case FormatTIFF:
		return "tiff"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatFromPath picks an output format from the extension of path.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ppm":
		return FormatPPM, nil
	case ".png":
		return FormatPNG, nil
	case ".bmp":
		return FormatBMP, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	}
	return 0, fmt.Errorf("no image format for %q", path)
}

// channel maps a linear intensity to an 8-bit value: gamma 2, then clamped
// below 1 so that 256*x never reaches 256.
func channel(x float64) uint8 {
	if !(x > 0) {
		return 0
	}
	x = math.Sqrt(x)
	if x > 0.999 {
		x = 0.999
	}
	return uint8(256 * x)
}

// Tonemap converts one pixel's samples to display color.  A pixel with no
// samples is black.
func Tonemap(s framebuffer.Sample) color.RGBA {
	if s.Count == 0 {
		return color.RGBA{A: 255}
	}
	scale := 1.0 / float64(s.Count)
	return color.RGBA{
		R: channel(s.Sum[0] * scale),
		G: channel(s.Sum[1] * scale),
		B: channel(s.Sum[2] * scale),
		A: 255,
	}
}

// ToImage tonemaps the whole framebuffer.  Image row 0 is the top scanline,
// so framebuffer rows come out in reverse.
func ToImage(fb *framebuffer.Framebuffer) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, fb.ColSize, fb.RowSize))
	for r := 0; r < fb.RowSize; r++ {
		y := fb.RowSize - 1 - r
		for c := 0; c < fb.ColSize; c++ {
			img.SetRGBA(c, y, Tonemap(fb.ReadSample(c, r)))
		}
	}
	return img
}

// WritePPM writes fb as a plain-text PPM, top scanline first.
func WritePPM(w io.Writer, fb *framebuffer.Framebuffer) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "P3\n%d %d\n255\n", fb.ColSize, fb.RowSize); err != nil {
		return fmt.Errorf("while writing PPM header: %w", err)
	}

	for r := fb.RowSize - 1; r >= 0; r-- {
		for c := 0; c < fb.ColSize; c++ {
			px := Tonemap(fb.ReadSample(c, r))
			if _, err := fmt.Fprintf(bw, "%d %d %d\n", px.R, px.G, px.B); err != nil {
				return fmt.Errorf("while writing pixel (%d, %d): %w", c, r, err)
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("while flushing PPM: %w", err)
	}
	return nil
}

// Encode writes fb to w in the given format.
func Encode(w io.Writer, fb *framebuffer.Framebuffer, format Format) error {
	switch format {
	case FormatPPM:
		return WritePPM(w, fb)
	case FormatPNG:
		if err := png.Encode(w, ToImage(fb)); err != nil {
			return fmt.Errorf("while encoding PNG: %w", err)
		}
	case FormatBMP:
		if err := bmp.Encode(w, ToImage(fb)); err != nil {
			return fmt.Errorf("while encoding BMP: %w", err)
		}
	case FormatTIFF:
		if err := tiff.Encode(w, ToImage(fb), &tiff.Options{Compression: tiff.Deflate}); err != nil {
			return fmt.Errorf("while encoding TIFF: %w", err)
		}
	default:
		return fmt.Errorf("unknown image format %v", format)
	}
	return nil
}

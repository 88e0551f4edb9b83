// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bitmap

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
	"github.com/makeworld-the-better-one/dither/v2"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
)

// Options controls image conversion
type Options struct {
	Dither    string // none, floyd, atkinson, bayer4x4 or bayer8x8
	Threshold uint8  // gray level below which a pixel is black, 0 means 128
}

func (o Options) threshold() uint8 {
	if o.Threshold == 0 {
		return 128
	}
	return o.Threshold
}

// DitherNames lists the accepted Options.Dither values
var DitherNames = []string{"none", "floyd", "atkinson", "bayer4x4", "bayer8x8"}

func newDitherer(name string) (*dither.Ditherer, error) {
	if name == "" || name == "none" {
		return nil, nil
	}

	d := dither.NewDitherer([]color.Color{color.Black, color.White})
	switch name {
	case "floyd":
		d.Matrix = dither.FloydSteinberg
	case "atkinson":
		d.Matrix = dither.Atkinson
	case "bayer4x4":
		d.Mapper = dither.Bayer(4, 4, 1.0)
	case "bayer8x8":
		d.Mapper = dither.Bayer(8, 8, 1.0)
	default:
		return nil, fmt.Errorf("unknown dither type: %s", name)
	}
	return d, nil
}

// isRed reports whether a pixel belongs on the red plane
func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	r, g, b = r>>8, g>>8, b>>8
	return r >= 128 && g < 100 && b < 100
}

// FromImage converts img to BW and RED planes. The image is fitted into
// 400x300 on a white background. Red-dominant pixels go to the RED plane,
// everything else is converted to grayscale for the BW plane.
func FromImage(img image.Image, opts Options) (bw, red []byte, err error) {
	d, err := newDitherer(opts.Dither)
	if err != nil {
		return nil, nil, err
	}

	canvas := imaging.New(Width, Height, color.White)
	if b := img.Bounds(); b.Dx() != Width || b.Dy() != Height {
		img = imaging.Fit(img, Width, Height, imaging.Lanczos)
	}
	canvas = imaging.PasteCenter(canvas, img)

	red = make([]byte, epdlink.PlaneSize)
	gray := imaging.Clone(canvas)
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if isRed(canvas.At(x, y)) {
				setBit(red, x, y)
				gray.Set(x, y, color.White)
			}
		}
	}

	var mono image.Image = imaging.Grayscale(gray)
	if d != nil {
		mono = d.DitherCopy(mono)
	}

	bw = make([]byte, epdlink.PlaneSize)
	threshold := opts.threshold()
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			g := color.GrayModel.Convert(mono.At(x, y)).(color.Gray)
			if g.Y >= threshold {
				setBit(bw, x, y)
			}
		}
	}
	return bw, red, nil
}

// ToImage renders the planes. Red takes precedence over black.
func ToImage(bw, red []byte) (*image.NRGBA, error) {
	if len(bw) != epdlink.PlaneSize || len(red) != epdlink.PlaneSize {
		return nil, fmt.Errorf("%w: bw=%d red=%d", epdlink.ErrPlaneSize, len(bw), len(red))
	}

	img := imaging.New(Width, Height, color.White)
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			switch {
			case bit(red, x, y):
				img.Set(x, y, color.NRGBA{R: 0xFF, A: 0xFF})
			case !bit(bw, x, y):
				img.Set(x, y, color.Black)
			}
		}
	}
	return img, nil
}

// LoadImageFile decodes a PNG, JPEG, GIF, BMP or TIFF file into planes
func LoadImageFile(path string, opts Options) (bw, red []byte, err error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open image: %w", err)
	}
	return FromImage(img, opts)
}

// SaveImageFile renders the planes to path; the format follows the extension
func SaveImageFile(path string, bw, red []byte) error {
	img, err := ToImage(bw, red)
	if err != nil {
		return err
	}
	return imaging.Save(img, path)
}

// LoadRaw reads a plane stored as exactly PlaneSize raw bytes
func LoadRaw(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) != epdlink.PlaneSize {
		return nil, fmt.Errorf("%s: %w: expected %d bytes, got %d", path, epdlink.ErrPlaneSize, epdlink.PlaneSize, len(data))
	}
	return data, nil
}

func setBit(plane []byte, x, y int) {
	i := y*Width + x
	plane[i/8] |= 0x80 >> (i % 8)
}

func bit(plane []byte, x, y int) bool {
	i := y*Width + x
	return plane[i/8]&(0x80>>(i%8)) != 0
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bitmap

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
)

// ============================================================================
// Patterns
// ============================================================================

func TestPatterns(t *testing.T) {
	for _, name := range PatternNames() {
		t.Run(name, func(t *testing.T) {
			bw, red, err := Pattern(name)
			require.NoError(t, err)
			require.Len(t, bw, epdlink.PlaneSize)
			require.Len(t, red, epdlink.PlaneSize)
		})
	}

	_, _, err := Pattern("nope")
	require.ErrorContains(t, err, "unknown pattern")
}

func TestCheckerboard(t *testing.T) {
	plane := Checkerboard()
	require.Equal(t, byte(0xAA), plane[0])
	require.Equal(t, byte(0xAA), plane[49])
	require.Equal(t, byte(0x55), plane[50])
	require.Equal(t, byte(0xAA), plane[100])
}

func TestGradient(t *testing.T) {
	plane := Gradient()
	require.Equal(t, byte(0), plane[0])
	require.Equal(t, byte(127), plane[7500])
	require.Equal(t, byte(254), plane[epdlink.PlaneSize-1])
}

func TestStripes(t *testing.T) {
	plane := Stripes()
	rowBytes := Width / 8
	require.Equal(t, byte(0xFF), plane[0])
	require.Equal(t, byte(0xFF), plane[19*rowBytes])
	require.Equal(t, byte(0x00), plane[20*rowBytes])
	require.Equal(t, byte(0xFF), plane[40*rowBytes])
}

func TestBlank(t *testing.T) {
	bw, red, err := Pattern("blank")
	require.NoError(t, err)
	for i := range bw {
		require.Equal(t, byte(0xFF), bw[i])
		require.Equal(t, byte(0x00), red[i])
	}
}

// ============================================================================
// Image conversion
// ============================================================================

func solid(w, h int, c color.Color) *image.NRGBA {
	return imaging.New(w, h, c)
}

func TestFromImage_Colors(t *testing.T) {
	img := solid(Width, Height, color.White)
	for y := 0; y < 10; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.Black)
			img.Set(x+8, y, color.NRGBA{R: 0xFF, A: 0xFF})
		}
	}

	bw, red, err := FromImage(img, Options{})
	require.NoError(t, err)

	require.Equal(t, byte(0x00), bw[0], "black pixels clear BW bits")
	require.Equal(t, byte(0xFF), bw[1], "red pixels stay white on BW")
	require.Equal(t, byte(0x00), red[0])
	require.Equal(t, byte(0xFF), red[1])
	require.Equal(t, byte(0xFF), bw[2])
	require.Equal(t, byte(0x00), red[2])
}

func TestFromImage_Fits(t *testing.T) {
	// A black 200x300 image is letterboxed into the middle of the canvas.
	bw, red, err := FromImage(solid(200, 300, color.Black), Options{})
	require.NoError(t, err)
	require.Len(t, bw, epdlink.PlaneSize)
	require.Len(t, red, epdlink.PlaneSize)

	require.Equal(t, byte(0xFF), bw[0], "left margin is white")
	require.Equal(t, byte(0x00), bw[Width/16], "center is black")
}

func TestFromImage_Dither(t *testing.T) {
	gray := solid(Width, Height, color.Gray{Y: 0x80})
	for _, name := range DitherNames {
		t.Run(name, func(t *testing.T) {
			bw, _, err := FromImage(gray, Options{Dither: name})
			require.NoError(t, err)
			require.Len(t, bw, epdlink.PlaneSize)
		})
	}

	bw, _, err := FromImage(gray, Options{Dither: "floyd"})
	require.NoError(t, err)
	var white, black bool
	for _, b := range bw {
		white = white || b != 0x00
		black = black || b != 0xFF
	}
	require.True(t, white && black, "mid gray dithers to a mix of pixels")

	_, _, err = FromImage(gray, Options{Dither: "sierra"})
	require.ErrorContains(t, err, "unknown dither")
}

func TestToImage_RoundTrip(t *testing.T) {
	bw, red, err := Pattern("test")
	require.NoError(t, err)
	// Red has precedence, so a pixel cannot be both red and black.
	for i := range bw {
		bw[i] |= red[i]
	}

	img, err := ToImage(bw, red)
	require.NoError(t, err)

	gotBW, gotRED, err := FromImage(img, Options{})
	require.NoError(t, err)
	require.Equal(t, bw, gotBW)
	require.Equal(t, red, gotRED)

	_, err = ToImage(bw[:10], red)
	require.ErrorIs(t, err, epdlink.ErrPlaneSize)
}

func TestImageFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pattern.png")

	bw, red, err := Pattern("stripes")
	require.NoError(t, err)
	require.NoError(t, SaveImageFile(path, bw, red))

	gotBW, gotRED, err := LoadImageFile(path, Options{})
	require.NoError(t, err)
	require.Equal(t, bw, gotBW)
	require.Equal(t, red, gotRED)

	_, _, err = LoadImageFile(filepath.Join(dir, "missing.png"), Options{})
	require.Error(t, err)
}

func TestLoadRaw(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "bw.bin")
	require.NoError(t, os.WriteFile(good, Checkerboard(), 0o644))
	plane, err := LoadRaw(good)
	require.NoError(t, err)
	require.Equal(t, Checkerboard(), plane)

	short := filepath.Join(dir, "short.bin")
	require.NoError(t, os.WriteFile(short, make([]byte, 100), 0o644))
	_, err = LoadRaw(short)
	require.ErrorIs(t, err, epdlink.ErrPlaneSize)
}

// ============================================================================
// Bundles
// ============================================================================

func TestBundle(t *testing.T) {
	b := &Bundle{Slot: 2, BW: Checkerboard(), RED: Gradient(), Name: "test", Created: 1700000000}

	data, err := MarshalBundle(b)
	require.NoError(t, err)

	got, err := UnmarshalBundle(data)
	require.NoError(t, err)
	require.Equal(t, b, got)

	path := filepath.Join(t.TempDir(), "image.cbor")
	require.NoError(t, SaveBundle(path, b))
	got, err = LoadBundle(path)
	require.NoError(t, err)
	require.Equal(t, b, got)
}

func TestBundle_Invalid(t *testing.T) {
	_, err := MarshalBundle(&Bundle{Slot: 16, BW: Checkerboard(), RED: Gradient()})
	require.ErrorContains(t, err, "slot out of range")

	_, err = MarshalBundle(&Bundle{Slot: 1, BW: Checkerboard()[:10], RED: Gradient()})
	require.ErrorIs(t, err, epdlink.ErrPlaneSize)

	_, err = UnmarshalBundle(nil)
	require.Error(t, err)

	_, err = UnmarshalBundle([]byte{0xFF, 0x00})
	require.ErrorContains(t, err, "failed to decode")
}

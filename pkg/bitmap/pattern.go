// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bitmap produces the two 1bpp planes of a 400x300 image.
//
// Pixels are packed MSB first, row by row. In the BW plane a set bit is
// white; in the RED plane a set bit is red.
package bitmap

import (
	"fmt"
	"sort"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
)

const (
	Width  = epdlink.ImageWidth
	Height = epdlink.ImageHeight

	checkerRun  = 50 // bytes per checkerboard run
	stripeWidth = 20 // rows per stripe
)

// Blank returns an empty plane: all white for BW, no red for RED
func Blank(c epdlink.Color) []byte {
	plane := make([]byte, epdlink.PlaneSize)
	if c == epdlink.ColorBW {
		for i := range plane {
			plane[i] = 0xFF
		}
	}
	return plane
}

// Checkerboard alternates 0xAA and 0x55 every 50 bytes
func Checkerboard() []byte {
	plane := make([]byte, epdlink.PlaneSize)
	for i := range plane {
		if (i/checkerRun)%2 == 0 {
			plane[i] = 0xAA
		} else {
			plane[i] = 0x55
		}
	}
	return plane
}

// Gradient ramps byte values from 0x00 to 0xFE across the plane
func Gradient() []byte {
	plane := make([]byte, epdlink.PlaneSize)
	for i := range plane {
		plane[i] = byte(i * 255 / epdlink.PlaneSize)
	}
	return plane
}

// Stripes sets alternating bands of 20 rows, starting with a set band
func Stripes() []byte {
	plane := make([]byte, epdlink.PlaneSize)
	for i := range plane {
		row := i * 8 / Width
		if row%(2*stripeWidth) < stripeWidth {
			plane[i] = 0xFF
		}
	}
	return plane
}

var patterns = map[string]func() (bw, red []byte){
	"test":     func() ([]byte, []byte) { return Checkerboard(), Gradient() },
	"checker":  func() ([]byte, []byte) { return Checkerboard(), Blank(epdlink.ColorRED) },
	"gradient": func() ([]byte, []byte) { return Blank(epdlink.ColorBW), Gradient() },
	"stripes":  func() ([]byte, []byte) { return Blank(epdlink.ColorBW), Stripes() },
	"blank":    func() ([]byte, []byte) { return Blank(epdlink.ColorBW), Blank(epdlink.ColorRED) },
}

// Pattern returns the planes of a named test pattern
func Pattern(name string) (bw, red []byte, err error) {
	gen, ok := patterns[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown pattern %q (available: %v)", name, PatternNames())
	}
	bw, red = gen()
	return bw, red, nil
}

// PatternNames lists the available test patterns
func PatternNames() []string {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

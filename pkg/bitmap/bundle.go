// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bitmap

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
)

// Bundle is a ready-to-send image stored as a CBOR map with integer keys
type Bundle struct {
	Slot    int    `cbor:"1,keyasint"`
	BW      []byte `cbor:"2,keyasint"`
	RED     []byte `cbor:"3,keyasint"`
	Name    string `cbor:"4,keyasint,omitempty"`
	Created int64  `cbor:"5,keyasint,omitempty"` // unix seconds
}

// Validate checks the slot and both plane sizes
func (b *Bundle) Validate() error {
	if !epdlink.ValidSlot(b.Slot) {
		return fmt.Errorf("bundle slot out of range: %d", b.Slot)
	}
	if len(b.BW) != epdlink.PlaneSize {
		return fmt.Errorf("bundle BW plane: %w: %d bytes", epdlink.ErrPlaneSize, len(b.BW))
	}
	if len(b.RED) != epdlink.PlaneSize {
		return fmt.Errorf("bundle RED plane: %w: %d bytes", epdlink.ErrPlaneSize, len(b.RED))
	}
	return nil
}

// MarshalBundle validates and encodes b
func MarshalBundle(b *Bundle) ([]byte, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return cbor.Marshal(b)
}

// UnmarshalBundle decodes and validates a bundle
func UnmarshalBundle(data []byte) (*Bundle, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty bundle")
	}

	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveBundle writes b to path
func SaveBundle(path string, b *Bundle) error {
	data, err := MarshalBundle(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadBundle reads a bundle from path
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalBundle(data)
}

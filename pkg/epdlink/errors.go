// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package epdlink

import (
	"errors"
	"fmt"
)

// Decode failure reasons
var (
	ErrLength         = errors.New("length mismatch")
	ErrShortFrame     = errors.New("frame too short")
	ErrBadMagic       = errors.New("bad magic")
	ErrBadEndMagic    = errors.New("bad end magic")
	ErrUnknownCommand = errors.New("unexpected command")
	ErrPlaneSize      = errors.New("plane size mismatch")
	ErrPageCRC        = errors.New("page CRC mismatch")
)

// DecodeError describes a frame or reply that failed structural checks.
// Reason is one of the Err* values above and is matched by errors.Is.
type DecodeError struct {
	Kind   string // "start-reply", "data", ...
	Reason error
	Want   uint32
	Got    uint32
}

func (e *DecodeError) Error() string {
	switch e.Reason {
	case ErrLength, ErrShortFrame:
		return fmt.Sprintf("%s: %v: expected %d bytes, got %d", e.Kind, e.Reason, e.Want, e.Got)
	case ErrBadMagic:
		return fmt.Sprintf("%s: %v: expected 0x%04X, got 0x%04X", e.Kind, e.Reason, e.Want, e.Got)
	case ErrBadEndMagic:
		return fmt.Sprintf("%s: %v: expected 0x%08X, got 0x%08X", e.Kind, e.Reason, e.Want, e.Got)
	}
	return fmt.Sprintf("%s: %v (0x%02X)", e.Kind, e.Reason, e.Got)
}

func (e *DecodeError) Unwrap() error {
	return e.Reason
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transfer

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
)

var (
	// ErrPlaneSize is returned when a plane is not exactly epdlink.PlaneSize bytes
	ErrPlaneSize = epdlink.ErrPlaneSize
	// ErrSlotRange is returned when the slot is outside [0,15]
	ErrSlotRange = errors.New("slot out of range")
	// ErrClosed is returned when a transfer is attempted on a closed sender
	ErrClosed = errors.New("sender closed")
	// ErrInProgress is returned when SendImage is called while another transfer runs
	ErrInProgress = errors.New("transfer already in progress")
	// ErrBusy marks a Start attempt the device refused with the busy status
	ErrBusy = errors.New("device busy")
	// ErrRejected marks a reply carrying a negative status
	ErrRejected = errors.New("rejected by device")
	// ErrPageMismatch marks a page reply echoing a different page
	ErrPageMismatch = errors.New("page sequence mismatch")
)

// ValidationError reports an input rejected before any I/O
type ValidationError struct {
	Field  string // "bw", "red" or "slot"
	Value  int
	Reason error
}

func (e *ValidationError) Error() string {
	if e.Reason == ErrSlotRange {
		return fmt.Sprintf("invalid %s: %d (expected %d..%d)", e.Field, e.Value, epdlink.MinSlot, epdlink.MaxSlot)
	}
	return fmt.Sprintf("invalid %s plane: %d bytes (expected %d)", e.Field, e.Value, epdlink.PlaneSize)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// ShortReplyError is returned when fewer bytes than expected arrived
// before the reply timeout
type ShortReplyError struct {
	Want int
	Got  int
}

func (e *ShortReplyError) Error() string {
	return fmt.Sprintf("reply timeout: expected %d bytes, got %d", e.Want, e.Got)
}

// Timeout reports true so the error satisfies the net.Error style check
func (e *ShortReplyError) Timeout() bool {
	return true
}

// StatusError carries the unsuccessful status byte of a reply
type StatusError struct {
	Command uint8
	Status  uint8
	Name    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %s", epdlink.FormatCommand(e.Command), e.Name)
}

func (e *StatusError) Unwrap() error {
	if e.Command == epdlink.CmdStart && epdlink.StartStatus(e.Status) == epdlink.StartBusy {
		return ErrBusy
	}
	return ErrRejected
}

// UnitError is returned when a unit (Start, page or End) exhausted its
// attempts. The transfer is aborted and not rolled back.
type UnitError struct {
	Unit     string // "start BW", "page 12 RED", "end"
	Attempts int
	Err      error // last attempt's failure
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Unit, e.Attempts, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

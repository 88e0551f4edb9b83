// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package epdlink

import "fmt"

// StartStatus is the status byte of a Start reply
type StartStatus uint8

const (
	StartOK    StartStatus = 0x01
	StartBusy  StartStatus = 0x02
	StartError StartStatus = 0xFF
)

// Known reports whether s is one of the defined Start statuses
func (s StartStatus) Known() bool {
	switch s {
	case StartOK, StartBusy, StartError:
		return true
	}
	return false
}

func (s StartStatus) String() string {
	switch s {
	case StartOK:
		return "OK"
	case StartBusy:
		return "BUSY"
	case StartError:
		return "ERROR"
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(s))
}

// DataStatus is the status byte of a page (Data) reply
type DataStatus uint8

const (
	DataOK           DataStatus = 0x00
	DataCRCError     DataStatus = 0x10
	DataFrameMissing DataStatus = 0x20 // Low nibble carries the missing sub-frame
	DataTimeout      DataStatus = 0x30
)

// IsFrameMissing reports whether the device is missing a sub-frame
func (s DataStatus) IsFrameMissing() bool {
	return s&0xF0 == DataFrameMissing
}

// MissingFrame returns the sub-frame index reported missing, or 0
func (s DataStatus) MissingFrame() uint8 {
	if !s.IsFrameMissing() {
		return 0
	}
	return uint8(s) & 0x0F
}

// FrameMissingStatus builds the status reported for a missing sub-frame
func FrameMissingStatus(frameSeq uint8) DataStatus {
	return DataFrameMissing | DataStatus(frameSeq&0x0F)
}

// Known reports whether s is one of the defined page statuses
func (s DataStatus) Known() bool {
	switch {
	case s == DataOK, s == DataCRCError, s == DataTimeout, s.IsFrameMissing():
		return true
	}
	return false
}

func (s DataStatus) String() string {
	switch {
	case s == DataOK:
		return "OK"
	case s == DataCRCError:
		return "CRC_ERROR"
	case s == DataTimeout:
		return "TIMEOUT"
	case s.IsFrameMissing():
		return fmt.Sprintf("FRAME_MISSING(%d)", s.MissingFrame())
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(s))
}

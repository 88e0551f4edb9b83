// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package epdlink implements the wire protocol used to push two-plane
// (black/white and red/white) images to an e-paper controller over a
// serial or radio byte stream.
//
// The host sends an 8-byte Start frame per color plane, 61 pages of five
// 64-byte Data frames each, and a final 8-byte End frame. The device answers
// the Start frame, every completed page and the End frame with fixed-size
// replies. This package provides frame encoding and decoding, plane
// chunking, the page CRC32 and human-readable formatting.
package epdlink

// Frame magic numbers
const (
	MagicHost    = 0xA5A5     // Host → device leading magic
	MagicDevice  = 0x5A5A     // Device → host leading magic
	EndMagicHost = 0xA5A5AFAF // Host trailing magic
	EndMagicDev  = 0x5A5A5F5F // Device trailing magic
)

// Commands
const (
	CmdStart = 0xC0 // Image transfer start, one per color plane
	CmdData  = 0xD0 // Image data sub-frame
	CmdEnd   = 0xC1 // Transfer end, one per image
)

// Frame sizes
const (
	StartFrameSize = 8
	DataFrameSize  = 64
	EndFrameSize   = 8

	StartReplySize = 10
	DataReplySize  = 6
	EndReplySize   = 8

	dataHeaderSize    = 6  // magic + cmd + slotColor + pageSeq + frameSeq
	dataEndMagicIndex = 60 // Offset of the trailing magic inside a Data frame
	endMagicSize      = 4
)

// Image geometry
const (
	ImageWidth  = 400
	ImageHeight = 300
	PlaneSize   = ImageWidth * ImageHeight / 8 // 15000 bytes

	PagesPerPlane    = 61
	PageSize         = 248
	LastPageDataSize = PlaneSize - (PagesPerPlane-1)*PageSize // 120 bytes

	FramesPerPage     = 5
	FrameDataSize     = 54
	LastFrameDataSize = PageSize - (FramesPerPage-1)*FrameDataSize // 32 bytes
	CRCSize           = 4
	MaxFramePayload   = DataFrameSize - dataHeaderSize - endMagicSize // 54 bytes
)

// Slot range
const (
	MinSlot  = 0
	MaxSlot  = 15
	slotMask = 0x0F
)

// CRC-32 (IEEE 802.3, reflected) configuration
const (
	crc32Polynomial = 0xEDB88320
	crc32Initial    = 0xFFFFFFFF
)

// Flash page magics the device stores each plane page under
const (
	MagicFlashBW  = 0xB1
	MagicFlashRED = 0xB2
)

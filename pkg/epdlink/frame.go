// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package epdlink

import (
	"encoding/binary"
	"fmt"
)

// Color selects one of the two image planes. It is carried in the high
// nibble of the slot/color byte.
type Color uint8

const (
	ColorBW  Color = 0x00
	ColorRED Color = 0x10
)

// String returns the plane label reported to progress listeners
func (c Color) String() string {
	switch c {
	case ColorBW:
		return "BW"
	case ColorRED:
		return "RED"
	default:
		return fmt.Sprintf("COLOR(0x%02X)", uint8(c))
	}
}

// FlashMagic returns the page magic the device stores this plane under
func (c Color) FlashMagic() uint8 {
	if c == ColorRED {
		return MagicFlashRED
	}
	return MagicFlashBW
}

// Colors lists the planes in transfer order
var Colors = [...]Color{ColorBW, ColorRED}

// SlotColor packs a plane tag and slot into the combined header byte
func SlotColor(c Color, slot uint8) uint8 {
	return uint8(c) | (slot & slotMask)
}

// SplitSlotColor unpacks the combined header byte
func SplitSlotColor(b uint8) (Color, uint8) {
	return Color(b &^ slotMask), b & slotMask
}

// ValidSlot reports whether slot addresses a device storage slot
func ValidSlot(slot int) bool {
	return slot >= MinSlot && slot <= MaxSlot
}

// Frame is a decoded host → device frame
type Frame struct {
	Command   uint8
	SlotColor uint8
	PageSeq   uint8  // Data frames only
	FrameSeq  uint8  // Data frames only
	Payload   []byte // Data frames only, MaxFramePayload bytes including padding
}

// Color returns the plane tag of the frame
func (f *Frame) Color() Color {
	c, _ := SplitSlotColor(f.SlotColor)
	return c
}

// Slot returns the target slot of the frame
func (f *Frame) Slot() uint8 {
	_, s := SplitSlotColor(f.SlotColor)
	return s
}

// Size returns the wire size of the frame
func (f *Frame) Size() int {
	return frameSize(f.Command)
}

func frameSize(cmd uint8) int {
	switch cmd {
	case CmdStart:
		return StartFrameSize
	case CmdData:
		return DataFrameSize
	case CmdEnd:
		return EndFrameSize
	}
	return 0
}

// EncodeStartFrame builds the 8-byte Start frame for one plane
func EncodeStartFrame(c Color, slot uint8) []byte {
	buf := make([]byte, StartFrameSize)
	binary.LittleEndian.PutUint16(buf[0:2], MagicHost)
	buf[2] = CmdStart
	buf[3] = SlotColor(c, slot)
	binary.LittleEndian.PutUint32(buf[4:8], EndMagicHost)
	return buf
}

// EncodeDataFrame builds a 64-byte Data frame. The payload is zero padded
// up to the trailing magic. It fails if the payload does not fit or a
// sequence number is out of range.
func EncodeDataFrame(c Color, slot, pageSeq, frameSeq uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(payload), MaxFramePayload)
	}
	if pageSeq < 1 || pageSeq > PagesPerPlane {
		return nil, fmt.Errorf("page sequence out of range: %d", pageSeq)
	}
	if frameSeq < 1 || frameSeq > FramesPerPage {
		return nil, fmt.Errorf("frame sequence out of range: %d", frameSeq)
	}

	buf := make([]byte, DataFrameSize)
	binary.LittleEndian.PutUint16(buf[0:2], MagicHost)
	buf[2] = CmdData
	buf[3] = SlotColor(c, slot)
	buf[4] = pageSeq
	buf[5] = frameSeq
	copy(buf[dataHeaderSize:], payload)
	binary.LittleEndian.PutUint32(buf[dataEndMagicIndex:], EndMagicHost)
	return buf, nil
}

// EncodeEndFrame builds the 8-byte End frame. Only the slot is carried.
func EncodeEndFrame(slot uint8) []byte {
	buf := make([]byte, EndFrameSize)
	binary.LittleEndian.PutUint16(buf[0:2], MagicHost)
	buf[2] = CmdEnd
	buf[3] = slot & slotMask
	binary.LittleEndian.PutUint32(buf[4:8], EndMagicHost)
	return buf
}

// ParseFrame decodes a complete host frame of any type
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < 3 {
		return nil, &DecodeError{Kind: "frame", Reason: ErrShortFrame, Want: 3, Got: uint32(len(data))}
	}
	switch data[2] {
	case CmdStart:
		return ParseStartFrame(data)
	case CmdData:
		return ParseDataFrame(data)
	case CmdEnd:
		return ParseEndFrame(data)
	}
	return nil, &DecodeError{Kind: "frame", Reason: ErrUnknownCommand, Got: uint32(data[2])}
}

// ParseStartFrame decodes an 8-byte Start frame
func ParseStartFrame(data []byte) (*Frame, error) {
	if err := checkHostFrame("start", data, StartFrameSize, CmdStart, 4); err != nil {
		return nil, err
	}
	return &Frame{Command: CmdStart, SlotColor: data[3]}, nil
}

// ParseDataFrame decodes a 64-byte Data frame
func ParseDataFrame(data []byte) (*Frame, error) {
	if err := checkHostFrame("data", data, DataFrameSize, CmdData, dataEndMagicIndex); err != nil {
		return nil, err
	}
	payload := make([]byte, MaxFramePayload)
	copy(payload, data[dataHeaderSize:dataEndMagicIndex])
	return &Frame{
		Command:   CmdData,
		SlotColor: data[3],
		PageSeq:   data[4],
		FrameSeq:  data[5],
		Payload:   payload,
	}, nil
}

// ParseEndFrame decodes an 8-byte End frame
func ParseEndFrame(data []byte) (*Frame, error) {
	if err := checkHostFrame("end", data, EndFrameSize, CmdEnd, 4); err != nil {
		return nil, err
	}
	return &Frame{Command: CmdEnd, SlotColor: data[3]}, nil
}

func checkHostFrame(kind string, data []byte, size int, cmd uint8, endAt int) error {
	if len(data) != size {
		return &DecodeError{Kind: kind, Reason: ErrLength, Want: uint32(size), Got: uint32(len(data))}
	}
	if m := binary.LittleEndian.Uint16(data[0:2]); m != MagicHost {
		return &DecodeError{Kind: kind, Reason: ErrBadMagic, Want: MagicHost, Got: uint32(m)}
	}
	if data[2] != cmd {
		return &DecodeError{Kind: kind, Reason: ErrUnknownCommand, Want: uint32(cmd), Got: uint32(data[2])}
	}
	if m := binary.LittleEndian.Uint32(data[endAt:]); m != EndMagicHost {
		return &DecodeError{Kind: kind, Reason: ErrBadEndMagic, Want: EndMagicHost, Got: uint32(m)}
	}
	return nil
}

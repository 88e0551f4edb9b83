// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package epdlink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"strings"
	"testing"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC32_Empty(t *testing.T) {
	crc := CalculateCRC32([]byte{})
	if crc != 0x00000000 {
		t.Errorf("CRC of empty data should be 0, got 0x%08X", crc)
	}
}

func TestCalculateCRC32_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint32
	}{
		{
			name:     "ASCII '123456789'",
			data:     []byte("123456789"),
			expected: 0xCBF43926, // Standard CRC-32 check value
		},
		{
			name:     "single zero byte",
			data:     []byte{0x00},
			expected: 0xD202EF8D,
		},
		{
			name:     "quick brown fox",
			data:     []byte("The quick brown fox jumps over the lazy dog"),
			expected: 0x414FA339,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crc := CalculateCRC32(tt.data)
			if crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%08X, got 0x%08X", tt.expected, crc)
			}
		})
	}
}

func TestCalculateCRC32_MatchesIEEETable(t *testing.T) {
	data := make([]byte, PageSize)
	for i := range data {
		data[i] = byte(i * 7)
	}
	for n := 0; n <= len(data); n += 31 {
		if got, want := CalculateCRC32(data[:n]), crc32.ChecksumIEEE(data[:n]); got != want {
			t.Errorf("len=%d: expected 0x%08X, got 0x%08X", n, want, got)
		}
	}
}

// ============================================================
// Slot/Color Tests
// ============================================================

func TestSlotColor(t *testing.T) {
	tests := []struct {
		color Color
		slot  uint8
		want  uint8
	}{
		{ColorBW, 0, 0x00},
		{ColorBW, 3, 0x03},
		{ColorRED, 3, 0x13},
		{ColorRED, 15, 0x1F},
		{ColorRED, 0x23, 0x13}, // slot is masked to 4 bits
	}

	for _, tt := range tests {
		got := SlotColor(tt.color, tt.slot)
		if got != tt.want {
			t.Errorf("SlotColor(%s, %d) = 0x%02X, want 0x%02X", tt.color, tt.slot, got, tt.want)
		}
		c, s := SplitSlotColor(got)
		if c != tt.color || s != tt.slot&0x0F {
			t.Errorf("SplitSlotColor(0x%02X) = %s, %d", got, c, s)
		}
	}
}

func TestValidSlot(t *testing.T) {
	for _, slot := range []int{0, 7, 15} {
		if !ValidSlot(slot) {
			t.Errorf("slot %d should be valid", slot)
		}
	}
	for _, slot := range []int{-1, 16, 255} {
		if ValidSlot(slot) {
			t.Errorf("slot %d should be invalid", slot)
		}
	}
}

// ============================================================
// Frame Encoding Tests
// ============================================================

func TestEncodeStartFrame(t *testing.T) {
	frame := EncodeStartFrame(ColorRED, 3)
	expected := []byte{0xA5, 0xA5, 0xC0, 0x13, 0xAF, 0xAF, 0xA5, 0xA5}
	if !bytes.Equal(frame, expected) {
		t.Errorf("start frame mismatch:\n got  % X\n want % X", frame, expected)
	}
}

func TestEncodeEndFrame(t *testing.T) {
	frame := EncodeEndFrame(9)
	expected := []byte{0xA5, 0xA5, 0xC1, 0x09, 0xAF, 0xAF, 0xA5, 0xA5}
	if !bytes.Equal(frame, expected) {
		t.Errorf("end frame mismatch:\n got  % X\n want % X", frame, expected)
	}
}

func TestEncodeDataFrame_Layout(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, LastFrameDataSize+CRCSize)
	frame, err := EncodeDataFrame(ColorBW, 5, 61, 5, payload)
	if err != nil {
		t.Fatalf("EncodeDataFrame failed: %v", err)
	}

	if len(frame) != DataFrameSize {
		t.Fatalf("expected %d bytes, got %d", DataFrameSize, len(frame))
	}
	if binary.LittleEndian.Uint16(frame[0:2]) != MagicHost {
		t.Errorf("bad magic: % X", frame[0:2])
	}
	if frame[2] != CmdData || frame[3] != 0x05 || frame[4] != 61 || frame[5] != 5 {
		t.Errorf("bad header: % X", frame[:6])
	}
	if !bytes.Equal(frame[6:42], payload) {
		t.Errorf("payload not at offset 6")
	}
	for i := 42; i < 60; i++ {
		if frame[i] != 0 {
			t.Fatalf("padding byte %d = 0x%02X, want 0", i, frame[i])
		}
	}
	if binary.LittleEndian.Uint32(frame[60:64]) != EndMagicHost {
		t.Errorf("bad end magic: % X", frame[60:64])
	}
}

func TestEncodeDataFrame_Errors(t *testing.T) {
	tests := []struct {
		name     string
		page     uint8
		frameSeq uint8
		payload  []byte
	}{
		{"payload too large", 1, 1, make([]byte, MaxFramePayload+1)},
		{"page zero", 0, 1, nil},
		{"page past end", PagesPerPlane + 1, 1, nil},
		{"frame zero", 1, 0, nil},
		{"frame past end", 1, FramesPerPage + 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeDataFrame(ColorBW, 0, tt.page, tt.frameSeq, tt.payload); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseFrame_RoundTrip(t *testing.T) {
	data, err := EncodeDataFrame(ColorRED, 2, 17, 3, []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	frames := [][]byte{EncodeStartFrame(ColorBW, 2), data, EncodeEndFrame(2)}
	for _, raw := range frames {
		f, err := ParseFrame(raw)
		if err != nil {
			t.Fatalf("ParseFrame(% X) failed: %v", raw[:4], err)
		}
		if f.Slot() != 2 {
			t.Errorf("slot = %d, want 2", f.Slot())
		}
		if f.Size() != len(raw) {
			t.Errorf("size = %d, want %d", f.Size(), len(raw))
		}
	}

	f, _ := ParseDataFrame(data)
	if f.Color() != ColorRED || f.PageSeq != 17 || f.FrameSeq != 3 {
		t.Errorf("unexpected data frame fields: %+v", f)
	}
	if len(f.Payload) != MaxFramePayload || !bytes.Equal(f.Payload[:3], []byte{1, 2, 3}) {
		t.Errorf("unexpected payload: % X", f.Payload)
	}
}

func TestParseFrame_Invalid(t *testing.T) {
	badEnd := EncodeStartFrame(ColorBW, 0)
	badEnd[7] = 0x00
	badMagic := EncodeEndFrame(0)
	badMagic[0] = 0x00
	unknown := EncodeStartFrame(ColorBW, 0)
	unknown[2] = 0x99

	tests := []struct {
		name   string
		data   []byte
		reason error
	}{
		{"short", []byte{0xA5}, ErrShortFrame},
		{"bad end magic", badEnd, ErrBadEndMagic},
		{"bad magic", badMagic, ErrBadMagic},
		{"unknown command", unknown, ErrUnknownCommand},
		{"truncated data frame", make([]byte, 10), ErrUnknownCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.data)
			if !errors.Is(err, tt.reason) {
				t.Errorf("expected %v, got %v", tt.reason, err)
			}
		})
	}
}

// ============================================================
// Reply Tests
// ============================================================

func TestDecodeStartReply(t *testing.T) {
	raw := []byte{0x5A, 0x5A, 0xC0, 0x13, 0x02, 0x00, 0x5F, 0x5F, 0x5A, 0x5A}
	r, err := DecodeStartReply(raw)
	if err != nil {
		t.Fatalf("DecodeStartReply failed: %v", err)
	}
	if r.Status != StartBusy || r.SlotColor != 0x13 || r.Command != CmdStart {
		t.Errorf("unexpected reply: %+v", r)
	}
	if !bytes.Equal(EncodeStartReply(0x13, StartBusy), raw) {
		t.Error("EncodeStartReply does not match the wire layout")
	}
}

func TestDecodeDataReply(t *testing.T) {
	raw := EncodeDataReply(0x03, 42, FrameMissingStatus(4))
	r, err := DecodeDataReply(raw)
	if err != nil {
		t.Fatalf("DecodeDataReply failed: %v", err)
	}
	if r.PageSeq != 42 || !r.Status.IsFrameMissing() || r.Status.MissingFrame() != 4 {
		t.Errorf("unexpected reply: %+v", r)
	}
}

func TestDecodeEndReply(t *testing.T) {
	raw := EncodeEndReply(0x07)
	if !bytes.Equal(raw, []byte{0x5A, 0x5A, 0xC1, 0x07, 0x5F, 0x5F, 0x5A, 0x5A}) {
		t.Errorf("end reply layout mismatch: % X", raw)
	}
	if _, err := DecodeEndReply(raw); err != nil {
		t.Errorf("DecodeEndReply failed: %v", err)
	}
}

func TestDecodeReply_Invalid(t *testing.T) {
	badMagic := EncodeStartReply(0, StartOK)
	badMagic[1] = 0xA5
	badEnd := EncodeEndReply(0)
	badEnd[4] = 0x00
	badStartEnd := EncodeStartReply(0, StartOK)
	badStartEnd[9] = 0x00

	tests := []struct {
		name   string
		decode func([]byte) error
		data   []byte
		reason error
	}{
		{"start bad magic", startErr, badMagic, ErrBadMagic},
		{"start bad end magic", startErr, badStartEnd, ErrBadEndMagic},
		{"start short", startErr, badMagic[:9], ErrLength},
		{"data long", dataErr, make([]byte, 7), ErrLength},
		{"data bad magic", dataErr, make([]byte, 6), ErrBadMagic},
		{"end bad end magic", endErr, badEnd, ErrBadEndMagic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decode(tt.data)
			if !errors.Is(err, tt.reason) {
				t.Errorf("expected %v, got %v", tt.reason, err)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("expected *DecodeError, got %T", err)
			}
		})
	}
}

func startErr(b []byte) error { _, err := DecodeStartReply(b); return err }
func dataErr(b []byte) error  { _, err := DecodeDataReply(b); return err }
func endErr(b []byte) error   { _, err := DecodeEndReply(b); return err }

// ============================================================
// Status Tests
// ============================================================

func TestDataStatus(t *testing.T) {
	tests := []struct {
		status  DataStatus
		known   bool
		missing uint8
		name    string
	}{
		{DataOK, true, 0, "OK"},
		{DataCRCError, true, 0, "CRC_ERROR"},
		{DataTimeout, true, 0, "TIMEOUT"},
		{0x20, true, 0, "FRAME_MISSING(0)"},
		{0x23, true, 3, "FRAME_MISSING(3)"},
		{0x41, false, 0, "UNKNOWN(0x41)"},
		{0xFF, false, 0, "UNKNOWN(0xFF)"},
	}

	for _, tt := range tests {
		if tt.status.Known() != tt.known {
			t.Errorf("0x%02X Known() = %v", uint8(tt.status), !tt.known)
		}
		if tt.status.MissingFrame() != tt.missing {
			t.Errorf("0x%02X MissingFrame() = %d, want %d", uint8(tt.status), tt.status.MissingFrame(), tt.missing)
		}
		if tt.status.String() != tt.name {
			t.Errorf("0x%02X String() = %q, want %q", uint8(tt.status), tt.status.String(), tt.name)
		}
	}
}

func TestStartStatus(t *testing.T) {
	if !StartOK.Known() || !StartBusy.Known() || !StartError.Known() {
		t.Error("defined statuses should be known")
	}
	if StartStatus(0x03).Known() {
		t.Error("0x03 should be unknown")
	}
	if got := StartStatus(0x03).String(); got != "UNKNOWN(0x03)" {
		t.Errorf("String() = %q", got)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatPacket(t *testing.T) {
	d := NewReplyDecoder()
	packets, errs := d.Decode(EncodeDataReply(0x12, 7, DataCRCError))
	if len(errs) != 0 || len(packets) != 1 {
		t.Fatalf("decode failed: %v", errs)
	}

	out := FormatPacket(packets[0])
	for _, want := range []string{"DEV", "IMAGE_DATA", "Slot: 2", "Plane: RED", "Page: 7", "CRC_ERROR"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatCommand(t *testing.T) {
	if FormatCommand(CmdEnd) != "TRANSFER_END" {
		t.Error("unexpected name for CmdEnd")
	}
	if FormatCommand(0x00) != "UNKNOWN" {
		t.Error("unexpected name for unknown command")
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package epdlink

import (
	"testing"
)

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_HostFrames(t *testing.T) {
	data, _ := EncodeDataFrame(ColorBW, 1, 1, 1, []byte{0xAA})

	var stream []byte
	stream = append(stream, EncodeStartFrame(ColorBW, 1)...)
	stream = append(stream, data...)
	stream = append(stream, EncodeEndFrame(1)...)

	d := NewDecoder()
	packets, errs := d.Decode(stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(packets) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(packets))
	}

	want := []uint8{CmdStart, CmdData, CmdEnd}
	for i, p := range packets {
		if p.Direction != FromHost || p.Frame == nil {
			t.Errorf("packet %d: expected host frame", i)
			continue
		}
		if p.Command() != want[i] {
			t.Errorf("packet %d: command 0x%02X, want 0x%02X", i, p.Command(), want[i])
		}
	}
}

func TestDecoder_Replies(t *testing.T) {
	var stream []byte
	stream = append(stream, EncodeStartReply(0x10, StartOK)...)
	stream = append(stream, EncodeDataReply(0x10, 1, DataOK)...)
	stream = append(stream, EncodeEndReply(0x00)...)

	d := NewReplyDecoder()
	packets, errs := d.Decode(stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(packets) != 3 {
		t.Fatalf("expected 3 packets, got %d", len(packets))
	}
	if packets[0].StartReply == nil || packets[0].StartReply.Status != StartOK {
		t.Error("packet 0 should be an OK start reply")
	}
	if packets[1].DataReply == nil || packets[1].DataReply.PageSeq != 1 {
		t.Error("packet 1 should be a page 1 reply")
	}
	if packets[2].EndReply == nil {
		t.Error("packet 2 should be an end reply")
	}
}

func TestDecoder_Resync(t *testing.T) {
	// Garbage and a lone magic byte before a valid frame
	stream := []byte{0x00, 0x13, 0xA5, 0x42, 0xFF}
	stream = append(stream, EncodeStartFrame(ColorRED, 4)...)

	d := NewDecoder()
	packets, errs := d.Decode(stream)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(packets) != 1 || packets[0].Frame.SlotColor != 0x14 {
		t.Fatalf("expected one start frame, got %d packets", len(packets))
	}
}

func TestDecoder_TruncatedFrame(t *testing.T) {
	good := EncodeStartFrame(ColorBW, 3)
	stream := append(append([]byte(nil), good[:4]...), good...)

	d := NewDecoder()
	packets, errs := d.Decode(stream)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error for the truncated frame, got %v", errs)
	}
	if len(packets) != 1 || packets[0].Frame.SlotColor != 0x03 {
		t.Fatalf("expected the full start frame after the truncated one, got %d packets", len(packets))
	}
	if d.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", d.Pending())
	}
}

// nestedStream returns a data frame cut after 10 bytes, a start frame and
// a full data frame. The cut frame swallows the start frame and the head of
// the following data frame before its size is reached.
func nestedStream(t *testing.T) []byte {
	t.Helper()
	payload := make([]byte, FrameDataSize)
	data, err := EncodeDataFrame(ColorRED, 2, 7, 1, payload)
	if err != nil {
		t.Fatal(err)
	}

	var stream []byte
	stream = append(stream, data[:10]...)
	stream = append(stream, EncodeStartFrame(ColorRED, 2)...)
	stream = append(stream, data...)
	return stream
}

func checkNested(t *testing.T, packets []*Packet, errs []error) {
	t.Helper()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if len(packets) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(packets))
	}
	if packets[0].Command() != CmdStart || packets[1].Command() != CmdData {
		t.Errorf("packets out of order: 0x%02X 0x%02X", packets[0].Command(), packets[1].Command())
	}
	if packets[1].Frame.PageSeq != 7 {
		t.Errorf("PageSeq = %d, want 7", packets[1].Frame.PageSeq)
	}
}

func TestDecoder_FrameInsideTruncatedFrame(t *testing.T) {
	d := NewDecoder()
	packets, errs := d.Decode(nestedStream(t))
	checkNested(t, packets, errs)
}

func TestDecoder_DecodeByteQueuesRescanResults(t *testing.T) {
	d := NewDecoder()
	var packets []*Packet
	var errs []error
	queued := 0
	for _, b := range nestedStream(t) {
		p, err := d.DecodeByte(b)
		for first := true; p != nil || err != nil; first = false {
			if !first {
				queued++
			}
			if err != nil {
				errs = append(errs, err)
			}
			if p != nil {
				packets = append(packets, p)
			}
			p, err = d.Next()
		}
	}

	checkNested(t, packets, errs)
	if queued != 1 {
		t.Errorf("expected the start frame to be queued behind the error, queued %d", queued)
	}
}

func TestDecoder_ExtraMagic(t *testing.T) {
	stream := append([]byte{0x5A}, EncodeEndReply(0x02)...)

	d := NewReplyDecoder()
	packets, errs := d.Decode(stream)
	if len(errs) != 0 || len(packets) != 1 {
		t.Fatalf("expected one packet, got %d (errors %v)", len(packets), errs)
	}
	if len(packets[0].Raw) != EndReplySize {
		t.Errorf("raw length %d, want %d", len(packets[0].Raw), EndReplySize)
	}
}

func TestDecoder_UnknownCommand(t *testing.T) {
	d := NewDecoder()
	_, errs := d.Decode([]byte{0xA5, 0xA5, 0x77})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if d.Pending() != 0 {
		t.Error("decoder should reset after an unknown command")
	}
}

func TestDecoder_BadEndMagic(t *testing.T) {
	frame := EncodeStartFrame(ColorBW, 0)
	frame[5] = 0x00

	d := NewDecoder()
	packets, errs := d.Decode(append(frame, EncodeEndFrame(0)...))
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if len(packets) != 1 || packets[0].Command() != CmdEnd {
		t.Error("decoder should recover and return the following frame")
	}
}

func TestDecoder_Partial(t *testing.T) {
	frame := EncodeStartReply(0x01, StartBusy)

	d := NewReplyDecoder()
	packets, _ := d.Decode(frame[:5])
	if len(packets) != 0 {
		t.Fatal("partial reply should not produce a packet")
	}
	if d.Pending() != 5 {
		t.Errorf("Pending() = %d, want 5", d.Pending())
	}

	packets, _ = d.Decode(frame[5:])
	if len(packets) != 1 || packets[0].StartReply.Status != StartBusy {
		t.Fatal("expected the completed busy reply")
	}

	d.Decode(frame[:3])
	d.Reset()
	if d.Pending() != 0 {
		t.Error("Reset should drop the partial reply")
	}
}

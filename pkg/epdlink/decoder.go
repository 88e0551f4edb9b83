// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package epdlink

import (
	"fmt"
	"time"
)

// Direction tells which side produced a packet
type Direction int

const (
	FromHost Direction = iota
	FromDevice
)

func (d Direction) String() string {
	if d == FromDevice {
		return "DEV"
	}
	return "HOST"
}

// Packet is a complete frame or reply found in a byte stream
type Packet struct {
	Direction Direction
	Raw       []byte
	Timestamp time.Time

	Frame      *Frame // FromHost
	StartReply *StartReply
	DataReply  *DataReply
	EndReply   *EndReply
}

// Command returns the command byte of the packet
func (p *Packet) Command() uint8 {
	return p.Raw[2]
}

// Decoder states
const (
	stateIdle = iota
	stateMagic
	stateCommand
	stateBody
)

// Decoder finds frames in a byte stream. It synchronises on the two-byte
// leading magic, sizes the frame from its command byte and validates the
// complete frame before returning it. A frame that fails validation is
// rescanned from its second byte, so a frame starting inside a truncated
// one is still found.
type Decoder struct {
	direction Direction
	magic     byte
	state     int
	size      int
	buffer    []byte
	results   []result // found but not yet returned
}

type result struct {
	packet *Packet
	err    error
}

// NewDecoder creates a decoder for host → device frames
func NewDecoder() *Decoder {
	return newDecoder(FromHost, byte(MagicHost&0xFF))
}

// NewReplyDecoder creates a decoder for device → host replies
func NewReplyDecoder() *Decoder {
	return newDecoder(FromDevice, byte(MagicDevice&0xFF))
}

func newDecoder(dir Direction, magic byte) *Decoder {
	return &Decoder{
		direction: dir,
		magic:     magic,
		state:     stateIdle,
		buffer:    make([]byte, 0, DataFrameSize),
	}
}

// Reset drops any partial frame and any result not yet returned
func (d *Decoder) Reset() {
	d.resetFrame()
	d.results = d.results[:0]
}

func (d *Decoder) resetFrame() {
	d.state = stateIdle
	d.size = 0
	d.buffer = d.buffer[:0]
}

// Pending returns the number of bytes of a partially received frame
func (d *Decoder) Pending() int {
	return len(d.buffer)
}

// DecodeByte feeds one byte to the decoder.
// Returns a completed packet, or nil if the packet is incomplete.
// Returns an error if a frame fails validation. A rescan after a failed
// frame can find more than one result; the rest are returned by Next.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	d.step(b)
	return d.Next()
}

// Next returns the next result queued by DecodeByte, or nil, nil
func (d *Decoder) Next() (*Packet, error) {
	if len(d.results) == 0 {
		return nil, nil
	}
	r := d.results[0]
	d.results = d.results[1:]
	return r.packet, r.err
}

func (d *Decoder) emit(p *Packet, err error) {
	d.results = append(d.results, result{packet: p, err: err})
}

func (d *Decoder) step(b byte) {
	switch d.state {
	case stateIdle:
		if b == d.magic {
			d.buffer = append(d.buffer[:0], b)
			d.state = stateMagic
		}

	case stateMagic:
		if b != d.magic {
			d.resetFrame()
			return
		}
		d.buffer = append(d.buffer, b)
		d.state = stateCommand

	case stateCommand:
		if b == d.magic {
			// Extra magic byte, keep the last two as the header
			return
		}
		size := d.sizeFor(b)
		if size == 0 {
			d.resetFrame()
			d.emit(nil, fmt.Errorf("unknown %s command 0x%02X", d.direction, b))
			return
		}
		d.buffer = append(d.buffer, b)
		d.size = size
		d.state = stateBody

	case stateBody:
		d.buffer = append(d.buffer, b)
		if len(d.buffer) < d.size {
			return
		}
		raw := append([]byte(nil), d.buffer...)
		d.resetFrame()

		p, err := d.finish(raw)
		if err != nil {
			d.emit(nil, err)
			// Another frame may start inside this one
			for _, rb := range raw[1:] {
				d.step(rb)
			}
			return
		}
		d.emit(p, nil)

	default:
		state := d.state
		d.resetFrame()
		d.emit(nil, fmt.Errorf("invalid state: %d", state))
	}
}

// Decode feeds a buffer and returns all packets and errors found in it
func (d *Decoder) Decode(data []byte) ([]*Packet, []error) {
	var packets []*Packet
	var errs []error
	for _, b := range data {
		d.step(b)
	}
	for _, r := range d.results {
		if r.err != nil {
			errs = append(errs, r.err)
		}
		if r.packet != nil {
			packets = append(packets, r.packet)
		}
	}
	d.results = d.results[:0]
	return packets, errs
}

func (d *Decoder) sizeFor(cmd byte) int {
	if d.direction == FromHost {
		return frameSize(cmd)
	}
	return replySize(cmd)
}

func (d *Decoder) finish(raw []byte) (*Packet, error) {
	p := &Packet{Direction: d.direction, Raw: raw, Timestamp: time.Now()}
	var err error
	if d.direction == FromHost {
		p.Frame, err = ParseFrame(raw)
	} else {
		switch raw[2] {
		case CmdStart:
			p.StartReply, err = DecodeStartReply(raw)
		case CmdData:
			p.DataReply, err = DecodeDataReply(raw)
		case CmdEnd:
			p.EndReply, err = DecodeEndReply(raw)
		}
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func replySize(cmd uint8) int {
	switch cmd {
	case CmdStart:
		return StartReplySize
	case CmdData:
		return DataReplySize
	case CmdEnd:
		return EndReplySize
	}
	return 0
}

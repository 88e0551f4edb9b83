// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package epdlink

import (
	"encoding/binary"
	"fmt"
)

// Page is one acknowledged unit of a plane: PageSize bytes on the wire,
// of which the first DataSize bytes are image data and the rest zero fill.
type Page struct {
	Seq      uint8 // 1..PagesPerPlane
	Data     [PageSize]byte
	DataSize int
}

// CRC returns the page checksum, computed over the unpadded data
func (p *Page) CRC() uint32 {
	return CalculateCRC32(p.Data[:p.DataSize])
}

// PageDataSize returns the number of meaningful bytes in page seq
func PageDataSize(seq uint8) int {
	if seq == PagesPerPlane {
		return LastPageDataSize
	}
	return PageSize
}

// ChunkPlane splits a PlaneSize-byte plane into PagesPerPlane pages.
// The last page holds LastPageDataSize bytes and is zero padded.
func ChunkPlane(plane []byte) ([]Page, error) {
	if len(plane) != PlaneSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrPlaneSize, PlaneSize, len(plane))
	}

	pages := make([]Page, PagesPerPlane)
	for i := range pages {
		seq := uint8(i + 1)
		size := PageDataSize(seq)
		offset := i * PageSize
		pages[i].Seq = seq
		pages[i].DataSize = size
		copy(pages[i].Data[:], plane[offset:offset+size])
	}
	return pages, nil
}

// SplitPage returns the FramesPerPage sub-frame payloads for a page.
// Payloads 1-4 carry FrameDataSize bytes each; payload 5 carries the
// remaining LastFrameDataSize bytes followed by the little-endian page CRC.
func SplitPage(p *Page) [FramesPerPage][]byte {
	var out [FramesPerPage][]byte
	for i := 0; i < FramesPerPage-1; i++ {
		start := i * FrameDataSize
		out[i] = append([]byte(nil), p.Data[start:start+FrameDataSize]...)
	}

	last := make([]byte, LastFrameDataSize+CRCSize)
	copy(last, p.Data[(FramesPerPage-1)*FrameDataSize:])
	binary.LittleEndian.PutUint32(last[LastFrameDataSize:], p.CRC())
	out[FramesPerPage-1] = last
	return out
}

// AssemblePage rebuilds a page from its sub-frame payloads and verifies the
// CRC trailer. Payloads may carry trailing padding as received on the wire.
func AssemblePage(seq uint8, payloads [FramesPerPage][]byte) (*Page, error) {
	if seq < 1 || seq > PagesPerPlane {
		return nil, fmt.Errorf("page sequence out of range: %d", seq)
	}

	p := &Page{Seq: seq, DataSize: PageDataSize(seq)}
	for i := 0; i < FramesPerPage-1; i++ {
		if len(payloads[i]) < FrameDataSize {
			return nil, fmt.Errorf("sub-frame %d too short: %d bytes", i+1, len(payloads[i]))
		}
		copy(p.Data[i*FrameDataSize:], payloads[i][:FrameDataSize])
	}

	last := payloads[FramesPerPage-1]
	if len(last) < LastFrameDataSize+CRCSize {
		return nil, fmt.Errorf("sub-frame %d too short: %d bytes", FramesPerPage, len(last))
	}
	copy(p.Data[(FramesPerPage-1)*FrameDataSize:], last[:LastFrameDataSize])

	received := binary.LittleEndian.Uint32(last[LastFrameDataSize:])
	if calculated := p.CRC(); received != calculated {
		return p, fmt.Errorf("%w: page %d expected 0x%08X, got 0x%08X", ErrPageCRC, seq, calculated, received)
	}
	return p, nil
}

// JoinPages concatenates the meaningful bytes of pages back into a plane
func JoinPages(pages []Page) []byte {
	plane := make([]byte, 0, PlaneSize)
	for i := range pages {
		plane = append(plane, pages[i].Data[:pages[i].DataSize]...)
	}
	return plane
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transfer

import (
	"errors"
	"io"
	"sync"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
)

// replyFunc returns the reply for a frame. Only Start, End and the last
// sub-frame of a page are offered. A nil reply keeps the device silent.
type replyFunc func(f *epdlink.Frame) []byte

// okReply answers every unit with success
func okReply(f *epdlink.Frame) []byte {
	switch f.Command {
	case epdlink.CmdStart:
		return epdlink.EncodeStartReply(f.SlotColor, epdlink.StartOK)
	case epdlink.CmdData:
		return epdlink.EncodeDataReply(f.SlotColor, f.PageSeq, epdlink.DataOK)
	case epdlink.CmdEnd:
		return epdlink.EncodeEndReply(f.SlotColor)
	}
	return nil
}

// mockDevice is a scripted device on the far side of a Stream
type mockDevice struct {
	mu       sync.Mutex
	frames   [][]byte
	respond  replyFunc
	writeErr error
	closeErr error
	closes   int

	replies  chan []byte
	pending  []byte
	closed   chan struct{}
	shutOnce sync.Once
}

func newMockDevice(respond replyFunc) *mockDevice {
	if respond == nil {
		respond = okReply
	}
	return &mockDevice{
		respond: respond,
		replies: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (d *mockDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.frames = append(d.frames, append([]byte(nil), p...))

	f, err := epdlink.ParseFrame(p)
	if err != nil {
		return len(p), nil
	}
	if f.Command == epdlink.CmdData && f.FrameSeq != epdlink.FramesPerPage {
		return len(p), nil
	}
	if reply := d.respond(f); reply != nil {
		d.replies <- reply
	}
	return len(p), nil
}

func (d *mockDevice) Read(p []byte) (int, error) {
	if len(d.pending) == 0 {
		select {
		case r := <-d.replies:
			d.pending = r
		case <-d.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *mockDevice) Close() error {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
	d.shutOnce.Do(func() { close(d.closed) })
	return d.closeErr
}

// Frames returns the parsed frames written so far
func (d *mockDevice) Frames() []*epdlink.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*epdlink.Frame, 0, len(d.frames))
	for _, raw := range d.frames {
		if f, err := epdlink.ParseFrame(raw); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// Count returns the number of frames written with cmd
func (d *mockDevice) Count(cmd uint8) int {
	n := 0
	for _, f := range d.Frames() {
		if f.Command == cmd {
			n++
		}
	}
	return n
}

// Written returns the number of raw bytes written
func (d *mockDevice) Written() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, raw := range d.frames {
		n += len(raw)
	}
	return n
}

// failing answers the frames matched by target with fault for the first n
// matches and with okReply afterwards
func failing(n int, target func(*epdlink.Frame) bool, fault replyFunc) replyFunc {
	var mu sync.Mutex
	hits := 0
	return func(f *epdlink.Frame) []byte {
		mu.Lock()
		defer mu.Unlock()
		if target(f) && hits < n {
			hits++
			return fault(f)
		}
		return okReply(f)
	}
}

type progressCall struct {
	page, total int
	plane       string
}

// recorder is a Listener that remembers every call
type recorder struct {
	mu        sync.Mutex
	progress  []progressCall
	errors    []string
	completes int
}

func (r *recorder) OnProgress(page, total int, plane string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, progressCall{page, total, plane})
}

func (r *recorder) OnError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recorder) OnComplete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes++
}

var errWriteFailed = errors.New("link down")

func testPlanes() ([]byte, []byte) {
	bw := make([]byte, epdlink.PlaneSize)
	red := make([]byte, epdlink.PlaneSize)
	for i := range bw {
		bw[i] = byte(i)
		red[i] = byte(i*7 + 3)
	}
	return bw, red
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package emulator implements the receiving side of the image transfer
// protocol: it answers Start, Data and End frames like the display
// controller and commits complete images to a Store.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/inkwell/pkg/epdlink"
)

// DefaultIdleTimeout resets a session that received no frame for this long
const DefaultIdleTimeout = time.Second

// Faults injects misbehaviour. Each counter is consumed as it fires.
type Faults struct {
	BusyStarts   int // answer this many Start frames with busy
	CorruptPages int // answer this many completed pages with a CRC error
	DropReplies  int // swallow this many replies
}

// Config configures a Device
type Config struct {
	Store       Store // nil means a new MemoryStore
	Faults      Faults
	IdleTimeout time.Duration // 0 means DefaultIdleTimeout
	Logger      zerolog.Logger
	Now         func() time.Time // clock, time.Now when nil
}

// Stats counts device activity
type Stats struct {
	Frames      uint64
	Replies     uint64
	PagesStored uint64
	Images      uint64
	Rejected    uint64 // negative replies
	Dropped     uint64
	Expired     uint64 // sessions reset by the idle timeout
}

type sessionState int

const (
	sessionIdle sessionState = iota
	sessionReceiving
	sessionPlaneDone
)

func (s sessionState) String() string {
	switch s {
	case sessionIdle:
		return "idle"
	case sessionReceiving:
		return "receiving"
	case sessionPlaneDone:
		return "plane-done"
	}
	return "unknown"
}

// session is the receive context of one image
type session struct {
	state  sessionState
	slot   uint8
	color  epdlink.Color
	next   uint8 // next page to store
	pages  []epdlink.Page
	planes map[epdlink.Color][]epdlink.Page

	// Page being collected
	current  uint8
	frame    uint8 // next expected sub-frame
	payloads [epdlink.FramesPerPage][]byte
	fault    *epdlink.DataStatus

	lastActive time.Time
}

func (s *session) slotColor() uint8 {
	return epdlink.SlotColor(s.color, s.slot)
}

func (s *session) beginPlane(c epdlink.Color) {
	s.state = sessionReceiving
	s.color = c
	s.next = 1
	s.pages = make([]epdlink.Page, 0, epdlink.PagesPerPlane)
	s.resetPage(0)
}

func (s *session) resetPage(seq uint8) {
	s.current = seq
	s.frame = 1
	s.payloads = [epdlink.FramesPerPage][]byte{}
	s.fault = nil
}

func (s *session) setFault(status epdlink.DataStatus) {
	if s.fault == nil {
		s.fault = &status
	}
}

// Device emulates the display controller
type Device struct {
	store       Store
	idleTimeout time.Duration
	now         func() time.Time
	log         zerolog.Logger

	mu        sync.Mutex
	faults    Faults
	session   session
	committed int // slot of the last committed image, -1 when none
	stats     Stats
}

// NewDevice creates an idle device
func NewDevice(cfg Config) *Device {
	d := &Device{
		store:       cfg.Store,
		idleTimeout: cfg.IdleTimeout,
		now:         cfg.Now,
		log:         cfg.Logger.With().Str("component", "emulator").Logger(),
		faults:      cfg.Faults,
		committed:   -1,
	}
	if d.store == nil {
		d.store = NewMemoryStore()
	}
	if d.idleTimeout <= 0 {
		d.idleTimeout = DefaultIdleTimeout
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Store returns the store images are committed to
func (d *Device) Store() Store {
	return d.store
}

// Stats returns a snapshot of the device counters
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// SetFaults replaces the pending fault counters
func (d *Device) SetFaults(f Faults) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults = f
}

// Handle processes one host frame and returns the reply to send, or nil
func (d *Device) Handle(f *epdlink.Frame) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)
	d.session.lastActive = now
	d.stats.Frames++

	var reply []byte
	switch f.Command {
	case epdlink.CmdStart:
		reply = d.handleStart(f)
	case epdlink.CmdData:
		reply = d.handleData(f)
	case epdlink.CmdEnd:
		reply = d.handleEnd(f)
	}
	if reply == nil {
		return nil
	}

	if d.faults.DropReplies > 0 {
		d.faults.DropReplies--
		d.stats.Dropped++
		d.log.Debug().Hex("reply", reply).Msg("fault: dropping reply")
		return nil
	}
	d.stats.Replies++
	return reply
}

func (d *Device) expire(now time.Time) {
	s := &d.session
	if s.state == sessionIdle || now.Sub(s.lastActive) <= d.idleTimeout {
		return
	}
	d.log.Warn().Stringer("state", s.state).Uint8("slot", s.slot).Msg("transfer timeout, resetting")
	d.session = session{}
	d.stats.Expired++
}

func (d *Device) handleStart(f *epdlink.Frame) []byte {
	color, slot := f.Color(), f.Slot()
	if color != epdlink.ColorBW && color != epdlink.ColorRED {
		return d.startReply(f, epdlink.StartError)
	}
	if d.faults.BusyStarts > 0 {
		d.faults.BusyStarts--
		d.log.Debug().Msg("fault: busy start")
		return d.startReply(f, epdlink.StartBusy)
	}

	s := &d.session
	switch s.state {
	case sessionReceiving:
		// A repeated Start whose reply was lost
		if f.SlotColor == s.slotColor() && s.next == 1 && s.frame == 1 {
			d.log.Debug().Uint8("slot", slot).Stringer("plane", color).Msg("start repeated")
			return d.startReply(f, epdlink.StartOK)
		}
		return d.startReply(f, epdlink.StartBusy)

	case sessionPlaneDone:
		if slot != s.slot {
			return d.startReply(f, epdlink.StartBusy)
		}

	case sessionIdle:
		s.slot = slot
		s.planes = make(map[epdlink.Color][]epdlink.Page, len(epdlink.Colors))
		d.committed = -1
	}

	s.beginPlane(color)
	d.log.Info().Uint8("slot", slot).Stringer("plane", color).Msg("start frame received")
	return d.startReply(f, epdlink.StartOK)
}

func (d *Device) handleData(f *epdlink.Frame) []byte {
	s := &d.session
	last := f.FrameSeq == epdlink.FramesPerPage

	if s.state == sessionIdle || f.SlotColor != s.slotColor() {
		if last {
			return d.dataReply(f, epdlink.DataCRCError)
		}
		return nil
	}

	if f.FrameSeq == 1 {
		s.resetPage(f.PageSeq)
	}
	switch {
	case s.fault != nil:
	case f.FrameSeq != s.frame:
		s.setFault(epdlink.FrameMissingStatus(s.frame))
	case f.PageSeq != s.current:
		s.setFault(epdlink.DataCRCError)
	default:
		s.payloads[f.FrameSeq-1] = f.Payload
		s.frame++
	}
	if !last {
		return nil
	}

	defer s.resetPage(0)
	if s.fault != nil {
		return d.dataReply(f, *s.fault)
	}

	page, err := epdlink.AssemblePage(f.PageSeq, s.payloads)
	if err != nil {
		d.log.Debug().Err(err).Msg("page rejected")
		return d.dataReply(f, epdlink.DataCRCError)
	}

	switch f.PageSeq {
	case s.next:
		if d.faults.CorruptPages > 0 {
			d.faults.CorruptPages--
			d.log.Debug().Uint8("page", f.PageSeq).Msg("fault: corrupt page")
			return d.dataReply(f, epdlink.DataCRCError)
		}
		s.pages = append(s.pages, *page)
		s.next++
		d.stats.PagesStored++
		d.log.Trace().Uint8("page", f.PageSeq).Stringer("plane", s.color).Msg("page stored")

		if f.PageSeq == epdlink.PagesPerPlane {
			s.planes[s.color] = s.pages
			s.state = sessionPlaneDone
			d.log.Info().Uint8("slot", s.slot).Stringer("plane", s.color).Msg("plane received")
		}
		return d.dataReply(f, epdlink.DataOK)

	case s.next - 1:
		// Page already stored, its reply was lost
		return d.dataReply(f, epdlink.DataOK)
	}
	return d.dataReply(f, epdlink.DataCRCError)
}

func (d *Device) handleEnd(f *epdlink.Frame) []byte {
	s := &d.session
	slot := f.Slot()

	if s.state == sessionIdle && d.committed == int(slot) {
		return epdlink.EncodeEndReply(f.SlotColor)
	}
	if s.state != sessionPlaneDone || s.slot != slot || len(s.planes) != len(epdlink.Colors) {
		d.log.Debug().Uint8("slot", slot).Stringer("state", s.state).Msg("end frame ignored, image incomplete")
		return nil
	}

	img := &Image{
		Slot:     int(slot),
		BW:       epdlink.JoinPages(s.planes[epdlink.ColorBW]),
		RED:      epdlink.JoinPages(s.planes[epdlink.ColorRED]),
		StoredAt: d.now(),
	}
	if err := d.store.Save(context.Background(), img); err != nil {
		d.log.Error().Err(err).Uint8("slot", slot).Msg("failed to commit image")
		return nil
	}

	d.session = session{}
	d.committed = int(slot)
	d.stats.Images++
	d.log.Info().Uint8("slot", slot).Msg("image committed")
	return epdlink.EncodeEndReply(f.SlotColor)
}

func (d *Device) startReply(f *epdlink.Frame, status epdlink.StartStatus) []byte {
	if status != epdlink.StartOK {
		d.stats.Rejected++
	}
	return epdlink.EncodeStartReply(f.SlotColor, status)
}

func (d *Device) dataReply(f *epdlink.Frame, status epdlink.DataStatus) []byte {
	if status != epdlink.DataOK {
		d.stats.Rejected++
	}
	return epdlink.EncodeDataReply(f.SlotColor, f.PageSeq, status)
}

// Serve reads host frames from rw and writes replies until rw is exhausted
// or ctx is done. A Closer is closed when ctx is done to unblock reads.
func (d *Device) Serve(ctx context.Context, rw io.ReadWriter) error {
	if c, ok := rw.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	decoder := epdlink.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := rw.Read(buf)
		packets, derrs := decoder.Decode(buf[:n])
		for _, derr := range derrs {
			d.log.Debug().Err(derr).Msg("invalid frame")
		}
		for _, packet := range packets {
			d.log.Trace().Hex("frame", packet.Raw).Msg("received")
			if reply := d.Handle(packet.Frame); reply != nil {
				if _, werr := rw.Write(reply); werr != nil {
					return fmt.Errorf("write reply: %w", werr)
				}
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

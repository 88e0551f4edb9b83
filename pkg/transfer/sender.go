// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transfer drives the image transfer handshake: a Start frame and
// 61 acknowledged pages per plane, then one End frame, each unit retried
// up to a fixed budget.
package transfer

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

// State is the position of the sender in the handshake
type State int

const (
	StateIdle State = iota
	StateSendingStart
	StateAwaitingStartReply
	StateSendingPages
	StateAwaitingPageReply
	StatePlaneDone
	StateSendingEnd
	StateAwaitingEndReply
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSendingStart:
		return "SENDING_START"
	case StateAwaitingStartReply:
		return "AWAITING_START_REPLY"
	case StateSendingPages:
		return "SENDING_PAGES"
	case StateAwaitingPageReply:
		return "AWAITING_PAGE_REPLY"
	case StatePlaneDone:
		return "PLANE_DONE"
	case StateSendingEnd:
		return "SENDING_END"
	case StateAwaitingEndReply:
		return "AWAITING_END_REPLY"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Sender transfers images over one stream. One transfer runs at a time.
type Sender struct {
	stream Stream
	opts   Options
	log    zerolog.Logger
	reader *replyReader

	mu      sync.Mutex // guards the fields below
	state   State
	stats   Statistics
	running bool
	closed  bool

	closeOnce sync.Once
}

// NewSender creates a sender that owns stream
func NewSender(stream Stream, opts ...Option) *Sender {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.Logger.With().Str("component", "transfer").Logger()

	return &Sender{
		stream: stream,
		opts:   o,
		log:    log,
		reader: newReplyReader(stream, o.PollInterval, log),
	}
}

// State returns the current handshake state
func (s *Sender) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the statistics of the last transfer
func (s *Sender) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SendImage transfers both planes to slot and blocks until the End reply
// arrived or a unit exhausted its attempts
func (s *Sender) SendImage(bw, red []byte, slot int) error {
	return s.SendImageContext(context.Background(), bw, red, slot)
}

// SendImageContext is SendImage with cancellation between attempts
func (s *Sender) SendImageContext(ctx context.Context, bw, red []byte, slot int) error {
	if err := Validate(bw, red, slot); err != nil {
		return err
	}

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.running:
		s.mu.Unlock()
		return ErrInProgress
	}
	s.running = true
	s.state = StateIdle
	s.stats = Statistics{StartTime: time.Now()}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.stats.EndTime = time.Now()
		s.mu.Unlock()
	}()

	s.log.Info().Int("slot", slot).Msg("starting image transfer")

	if err := s.run(ctx, bw, red, uint8(slot)); err != nil {
		s.setState(StateFailed)
		s.log.Error().Err(err).Int("slot", slot).Msg("image transfer failed")
		s.opts.Listener.OnError(err.Error())
		return err
	}

	s.setState(StateDone)
	s.log.Info().Int("slot", slot).Msg("image transfer complete")
	s.opts.Listener.OnComplete()
	return nil
}

// Validate checks planes and slot the way SendImage does
func Validate(bw, red []byte, slot int) error {
	if len(bw) != epdlink.PlaneSize {
		return &ValidationError{Field: "bw", Value: len(bw), Reason: ErrPlaneSize}
	}
	if len(red) != epdlink.PlaneSize {
		return &ValidationError{Field: "red", Value: len(red), Reason: ErrPlaneSize}
	}
	if !epdlink.ValidSlot(slot) {
		return &ValidationError{Field: "slot", Value: slot, Reason: ErrSlotRange}
	}
	return nil
}

// Close closes the stream. It is safe to call more than once; close errors
// are logged and not returned.
func (s *Sender) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.reader.close()
		if err := s.stream.Close(); err != nil {
			s.log.Warn().Err(err).Msg("error closing stream")
		}
	})
	return nil
}

func (s *Sender) run(ctx context.Context, bw, red []byte, slot uint8) error {
	planes := [...][]byte{bw, red}
	for i, color := range epdlink.Colors {
		if err := s.sendPlane(ctx, color, planes[i], slot); err != nil {
			return err
		}
	}
	return s.sendEnd(ctx, slot)
}

func (s *Sender) sendPlane(ctx context.Context, color epdlink.Color, plane []byte, slot uint8) error {
	pages, err := epdlink.ChunkPlane(plane)
	if err != nil {
		return err
	}

	err = s.unit(ctx, "start "+color.String(), func() error {
		return s.startAttempt(ctx, color, slot)
	})
	if err != nil {
		return err
	}

	for i := range pages {
		page := &pages[i]
		subs := epdlink.SplitPage(page)

		err := s.unit(ctx, fmt.Sprintf("page %d %s", page.Seq, color), func() error {
			return s.pageAttempt(ctx, color, slot, page.Seq, &subs)
		})
		if err != nil {
			return err
		}

		s.count(func(st *Statistics) { st.PagesAcked++ })
		s.opts.Listener.OnProgress(int(page.Seq), epdlink.PagesPerPlane, color.String())
	}

	s.setState(StatePlaneDone)
	s.log.Debug().Str("plane", color.String()).Msg("plane transferred")
	return nil
}

func (s *Sender) sendEnd(ctx context.Context, slot uint8) error {
	return s.unit(ctx, "end", func() error {
		s.setState(StateSendingEnd)
		s.drain()
		if err := s.write(epdlink.EncodeEndFrame(slot)); err != nil {
			return err
		}

		s.setState(StateAwaitingEndReply)
		raw, err := s.readReply(ctx, epdlink.EndReplySize)
		if err != nil {
			return err
		}
		if _, err := epdlink.DecodeEndReply(raw); err != nil {
			s.count(func(st *Statistics) { st.DecodeErrors++ })
			return err
		}
		return nil
	})
}

// unit runs one retry-governed operation
func (s *Sender) unit(ctx context.Context, name string, fn func() error) error {
	attempts, err := withRetries(ctx, s.opts.MaxRetries, func(attempt int) error {
		if attempt > 1 {
			s.log.Warn().Str("unit", name).Msgf("retry %d/%d", attempt, s.opts.MaxRetries)
		}
		return fn()
	}, func(attempt int, err error) time.Duration {
		s.count(func(st *Statistics) { st.Retries++ })
		s.log.Debug().Err(err).Str("unit", name).Int("attempt", attempt).Msg("attempt failed")
		if errors.Is(err, ErrBusy) {
			return s.opts.BusyBackoff
		}
		return 0
	})
	if err != nil {
		if attempts == 0 {
			// Cancelled before anything was sent for this unit
			return fmt.Errorf("%s: %w", name, err)
		}
		return &UnitError{Unit: name, Attempts: attempts, Err: err}
	}
	return nil
}

func (s *Sender) startAttempt(ctx context.Context, color epdlink.Color, slot uint8) error {
	s.setState(StateSendingStart)
	s.drain()
	if err := s.write(epdlink.EncodeStartFrame(color, slot)); err != nil {
		return err
	}

	s.setState(StateAwaitingStartReply)
	raw, err := s.readReply(ctx, epdlink.StartReplySize)
	if err != nil {
		return err
	}
	reply, err := epdlink.DecodeStartReply(raw)
	if err != nil {
		s.count(func(st *Statistics) { st.DecodeErrors++ })
		return err
	}

	if reply.Status != epdlink.StartOK {
		s.count(func(st *Statistics) {
			if reply.Status == epdlink.StartBusy {
				st.BusyReplies++
			} else {
				st.StartErrors++
			}
		})
		return &StatusError{Command: epdlink.CmdStart, Status: uint8(reply.Status), Name: reply.Status.String()}
	}
	return nil
}

func (s *Sender) pageAttempt(ctx context.Context, color epdlink.Color, slot, seq uint8, subs *[epdlink.FramesPerPage][]byte) error {
	s.setState(StateSendingPages)
	s.drain()
	for i, payload := range subs {
		frame, err := epdlink.EncodeDataFrame(color, slot, seq, uint8(i+1), payload)
		if err != nil {
			return err
		}
		if err := s.write(frame); err != nil {
			return err
		}
	}

	s.setState(StateAwaitingPageReply)
	raw, err := s.readReply(ctx, epdlink.DataReplySize)
	if err != nil {
		return err
	}
	reply, err := epdlink.DecodeDataReply(raw)
	if err != nil {
		s.count(func(st *Statistics) { st.DecodeErrors++ })
		return err
	}

	if reply.Status != epdlink.DataOK {
		status := reply.Status
		s.count(func(st *Statistics) {
			switch {
			case status == epdlink.DataCRCError:
				st.CRCErrors++
			case status == epdlink.DataTimeout:
				st.DeviceTimeouts++
			case status.IsFrameMissing():
				st.MissingFrames++
			default:
				st.UnknownStatus++
			}
		})
		if status.IsFrameMissing() {
			s.log.Debug().Uint8("page", seq).Uint8("frame", status.MissingFrame()).Msg("device missing sub-frame")
		}
		return &StatusError{Command: epdlink.CmdData, Status: uint8(status), Name: status.String()}
	}
	if reply.PageSeq != seq {
		s.count(func(st *Statistics) { st.PageMismatches++ })
		return fmt.Errorf("%w: sent %d, acknowledged %d", ErrPageMismatch, seq, reply.PageSeq)
	}
	return nil
}

func (s *Sender) write(frame []byte) error {
	n, err := s.stream.Write(frame)
	if err == nil && n < len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.count(func(st *Statistics) { st.WriteErrors++ })
		return fmt.Errorf("write %s frame: %w", epdlink.FormatCommand(frame[2]), err)
	}

	s.count(func(st *Statistics) {
		st.FramesSent++
		st.BytesSent += uint64(n)
	})
	s.log.Trace().Hex("frame", frame).Msg("sent")
	return nil
}

func (s *Sender) readReply(ctx context.Context, n int) ([]byte, error) {
	raw, err := s.reader.ReadReply(ctx, n, s.opts.ReplyTimeout)
	if err != nil {
		var short *ShortReplyError
		if errors.As(err, &short) {
			s.count(func(st *Statistics) { st.Timeouts++ })
		}
		return nil, err
	}
	s.log.Trace().Hex("reply", raw).Msg("received")
	return raw, nil
}

func (s *Sender) drain() {
	if n := s.reader.Drain(); n > 0 {
		s.log.Debug().Int("bytes", n).Msg("discarded stale input")
	}
}

func (s *Sender) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev != state {
		s.log.Trace().Stringer("from", prev).Stringer("to", state).Msg("state")
	}
}

func (s *Sender) count(fn func(*Statistics)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

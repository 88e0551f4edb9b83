// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transfer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Stream is the duplex byte stream a transfer runs over. It is owned by the
// Sender once handed to NewSender.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// ReadTimeouter is implemented by streams whose Read returns (0, nil) once
// a read timeout elapses, such as serial ports
type ReadTimeouter interface {
	SetReadTimeout(t time.Duration) error
}

const (
	pumpBufferSize = 256
	pumpQueueSize  = 16
	maxDrainReads  = 64
	drainSettle    = time.Millisecond // wait for a chunk in flight behind stale input
)

// replyReader reads fixed-length replies with a wall-clock bound.
//
// Streams implementing ReadTimeouter are polled in PollInterval slices on
// the calling goroutine. Any other stream is read by a pump goroutine,
// started with the reader, feeding a channel the caller selects on.
type replyReader struct {
	r     io.Reader
	timed bool
	log   zerolog.Logger

	// Pump mode
	chunks   chan []byte
	done     chan struct{}
	doneOnce sync.Once
	pending  []byte
	err      error // set by the pump before chunks is closed
}

func newReplyReader(r io.Reader, poll time.Duration, log zerolog.Logger) *replyReader {
	rr := &replyReader{
		r:      r,
		log:    log,
		chunks: make(chan []byte, pumpQueueSize),
		done:   make(chan struct{}),
	}
	if t, ok := r.(ReadTimeouter); ok {
		if err := t.SetReadTimeout(poll); err != nil {
			log.Warn().Err(err).Msg("failed to set read timeout, using reader goroutine")
		} else {
			rr.timed = true
		}
	}
	if !rr.timed {
		go rr.pump()
	}
	return rr
}

// ReadReply returns exactly n bytes or fails once timeout elapses.
// Partial reads are accumulated. Fewer than n bytes at the deadline yields
// a *ShortReplyError.
func (r *replyReader) ReadReply(ctx context.Context, n int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 0, n)
	if r.timed {
		return r.readTimed(ctx, buf, n, deadline)
	}
	return r.readPumped(ctx, buf, n, deadline)
}

func (r *replyReader) readTimed(ctx context.Context, buf []byte, n int, deadline time.Time) ([]byte, error) {
	chunk := make([]byte, n)
	for len(buf) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, &ShortReplyError{Want: n, Got: len(buf)}
		}
		k, err := r.r.Read(chunk[:n-len(buf)])
		buf = append(buf, chunk[:k]...)
		if err != nil {
			return nil, fmt.Errorf("read reply: %w", err)
		}
	}
	return buf, nil
}

func (r *replyReader) readPumped(ctx context.Context, buf []byte, n int, deadline time.Time) ([]byte, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for len(buf) < n {
		if len(r.pending) > 0 {
			take := min(n-len(buf), len(r.pending))
			buf = append(buf, r.pending[:take]...)
			r.pending = r.pending[take:]
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, &ShortReplyError{Want: n, Got: len(buf)}
		case chunk, ok := <-r.chunks:
			if !ok {
				return nil, fmt.Errorf("read reply: %w", r.err)
			}
			r.pending = chunk
		}
	}
	return buf, nil
}

func (r *replyReader) pump() {
	defer close(r.chunks)
	for {
		b := make([]byte, pumpBufferSize)
		k, err := r.r.Read(b)
		if k > 0 {
			select {
			case r.chunks <- b[:k]:
			case <-r.done:
				r.err = io.ErrClosedPipe
				return
			}
		}
		if err != nil {
			r.err = err
			return
		}
	}
}

// Drain discards bytes already received, such as a late reply to a timed
// out attempt. It returns the number of bytes dropped.
//
// In pump mode the queue is watched for drainSettle after it runs empty,
// which catches a chunk the pump has read but not yet queued. Bytes that
// arrive later reach the next ReadReply. At most maxDrainReads chunks are
// dropped per call.
func (r *replyReader) Drain() int {
	if r.timed {
		return r.drainTimed()
	}

	dropped := len(r.pending)
	r.pending = nil
	for chunks := 0; chunks < maxDrainReads; chunks++ {
		select {
		case chunk, ok := <-r.chunks:
			if !ok {
				return dropped
			}
			dropped += len(chunk)
			continue
		default:
		}

		settle := time.NewTimer(drainSettle)
		select {
		case chunk, ok := <-r.chunks:
			settle.Stop()
			if !ok {
				return dropped
			}
			dropped += len(chunk)
		case <-settle.C:
			return dropped
		}
	}
	return dropped
}

func (r *replyReader) drainTimed() int {
	dropped := 0
	b := make([]byte, pumpBufferSize)
	for i := 0; i < maxDrainReads; i++ {
		k, err := r.r.Read(b)
		dropped += k
		if k == 0 || err != nil {
			break
		}
	}
	return dropped
}

func (r *replyReader) close() {
	r.doneOnce.Do(func() { close(r.done) })
}
